// Package analysis classifies recorded rides from telemetry logs and
// computes summary statistics for replay weighting.
package analysis

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/gvance/cyclebridge/internal/telemetry"
)

// Reference geometry of the scenario the rides were recorded in.
const (
	DefaultCar1X     = 99.5
	DefaultDecisionY = -12.0
)

// Report summarizes one ride.
type Report struct {
	Outcome      string // "left", "right", or "behind"
	FinalX       float64
	DurationS    float64
	MeanSpeed    float64
	MaxSpeed     float64
	MeanDistRef1 float64
	MeanDistRef2 float64
	MinDistRef1  float64
	MinDistRef2  float64
}

// Classify labels a ride from its trajectory. A ride that never crosses
// decisionY stayed behind the parked cars. Otherwise the last X position
// after the crossing decides the side: past car1's X means the rider
// went around on the left.
func Classify(samples []telemetry.Sample, car1X, decisionY float64) string {
	var post []telemetry.Sample
	for _, s := range samples {
		if s.Y >= decisionY {
			post = append(post, s)
		}
	}
	if len(post) == 0 {
		return "behind"
	}

	finalX := post[len(post)-1].X
	if finalX > car1X {
		return "left"
	}
	return "right"
}

// Analyze classifies a ride and computes its summary statistics.
func Analyze(samples []telemetry.Sample, car1X, decisionY float64) (Report, error) {
	if len(samples) == 0 {
		return Report{}, fmt.Errorf("analyze: no samples")
	}

	speeds := make([]float64, len(samples))
	dist1 := make([]float64, len(samples))
	dist2 := make([]float64, len(samples))
	for i, s := range samples {
		speeds[i] = s.Speed
		dist1[i] = s.DistRef1
		dist2[i] = s.DistRef2
	}

	return Report{
		Outcome:      Classify(samples, car1X, decisionY),
		FinalX:       samples[len(samples)-1].X,
		DurationS:    samples[len(samples)-1].Elapsed - samples[0].Elapsed,
		MeanSpeed:    stat.Mean(speeds, nil),
		MaxSpeed:     floats.Max(speeds),
		MeanDistRef1: stat.Mean(dist1, nil),
		MeanDistRef2: stat.Mean(dist2, nil),
		MinDistRef1:  floats.Min(dist1),
		MinDistRef2:  floats.Min(dist2),
	}, nil
}

// Read parses a telemetry CSV. Columns are located by header name so the
// file survives column reordering.
func Read(r io.Reader) ([]telemetry.Sample, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range []string{"Time (s)", "Speed (km/h)", "X", "Y", "Z", "Distance to Car 1 (m)", "Distance to Car 2 (m)"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var samples []telemetry.Sample
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		field := func(name string) (float64, error) {
			return strconv.ParseFloat(record[col[name]], 64)
		}

		var s telemetry.Sample
		for name, dst := range map[string]*float64{
			"Time (s)":              &s.Elapsed,
			"Speed (km/h)":          &s.Speed,
			"X":                     &s.X,
			"Y":                     &s.Y,
			"Z":                     &s.Z,
			"Distance to Car 1 (m)": &s.DistRef1,
			"Distance to Car 2 (m)": &s.DistRef2,
		} {
			v, err := field(name)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %q: %w", len(samples)+2, name, err)
			}
			*dst = v
		}
		samples = append(samples, s)
	}

	return samples, nil
}

// Load reads a telemetry CSV from disk.
func Load(path string) ([]telemetry.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}
