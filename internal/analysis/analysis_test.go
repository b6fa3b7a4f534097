package analysis

import (
	"math"
	"strings"
	"testing"

	"github.com/gvance/cyclebridge/internal/telemetry"
)

func traj(points ...[2]float64) []telemetry.Sample {
	samples := make([]telemetry.Sample, len(points))
	for i, p := range points {
		samples[i] = telemetry.Sample{X: p[0], Y: p[1]}
	}
	return samples
}

func TestClassifyBehind(t *testing.T) {
	// Never crosses the decision line
	samples := traj([2]float64{99.5, -30}, [2]float64{99.5, -25}, [2]float64{99.5, -15})

	got := Classify(samples, DefaultCar1X, DefaultDecisionY)
	if got != "behind" {
		t.Errorf("got %q, want behind", got)
	}
}

func TestClassifyLeft(t *testing.T) {
	// Crosses the line and ends up past car1's X
	samples := traj([2]float64{99.5, -30}, [2]float64{100.0, -12}, [2]float64{103.0, -8})

	got := Classify(samples, DefaultCar1X, DefaultDecisionY)
	if got != "left" {
		t.Errorf("got %q, want left", got)
	}
}

func TestClassifyRight(t *testing.T) {
	samples := traj([2]float64{99.5, -30}, [2]float64{98.0, -12}, [2]float64{95.0, -8})

	got := Classify(samples, DefaultCar1X, DefaultDecisionY)
	if got != "right" {
		t.Errorf("got %q, want right", got)
	}
}

func TestClassifyUsesLastPostDecisionPoint(t *testing.T) {
	// Drifts left at the crossing but ends right of car1
	samples := traj(
		[2]float64{99.5, -30},
		[2]float64{101.0, -12}, // left of the line at the crossing
		[2]float64{98.0, -5},   // ends on the right
	)

	got := Classify(samples, DefaultCar1X, DefaultDecisionY)
	if got != "right" {
		t.Errorf("got %q, want right (final position decides)", got)
	}
}

func TestClassifyEmpty(t *testing.T) {
	got := Classify(nil, DefaultCar1X, DefaultDecisionY)
	if got != "behind" {
		t.Errorf("got %q, want behind for empty trajectory", got)
	}
}

func TestAnalyze(t *testing.T) {
	samples := []telemetry.Sample{
		{Elapsed: 0.0, Speed: 5, X: 99.5, Y: -30, DistRef1: 19, DistRef2: 25},
		{Elapsed: 0.5, Speed: 10, X: 100.5, Y: -12, DistRef1: 1.5, DistRef2: 7},
		{Elapsed: 1.0, Speed: 15, X: 103.0, Y: -8, DistRef1: 4.6, DistRef2: 3},
	}

	report, err := Analyze(samples, DefaultCar1X, DefaultDecisionY)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if report.Outcome != "left" {
		t.Errorf("Outcome: got %q, want left", report.Outcome)
	}
	if report.FinalX != 103.0 {
		t.Errorf("FinalX: got %v, want 103.0", report.FinalX)
	}
	if math.Abs(report.DurationS-1.0) > 1e-9 {
		t.Errorf("DurationS: got %v, want 1.0", report.DurationS)
	}
	if math.Abs(report.MeanSpeed-10) > 1e-9 {
		t.Errorf("MeanSpeed: got %v, want 10", report.MeanSpeed)
	}
	if report.MaxSpeed != 15 {
		t.Errorf("MaxSpeed: got %v, want 15", report.MaxSpeed)
	}
	if report.MinDistRef1 != 1.5 {
		t.Errorf("MinDistRef1: got %v, want 1.5", report.MinDistRef1)
	}
	if report.MinDistRef2 != 3 {
		t.Errorf("MinDistRef2: got %v, want 3", report.MinDistRef2)
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	if _, err := Analyze(nil, DefaultCar1X, DefaultDecisionY); err == nil {
		t.Error("expected error for empty samples")
	}
}

func TestRead(t *testing.T) {
	input := strings.Join([]string{
		"Time (s),Speed (km/h),X,Y,Z,Distance to Car 1 (m),Distance to Car 2 (m)",
		"0.000,5.0,99.5,-30.0,1.0,19.0,25.0",
		"0.250,7.2,99.8,-25.0,1.0,14.0,20.0",
	}, "\n")

	samples, err := Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].Speed != 5.0 || samples[0].Y != -30.0 {
		t.Errorf("sample 0: got %+v", samples[0])
	}
	if samples[1].Elapsed != 0.25 || samples[1].DistRef2 != 20.0 {
		t.Errorf("sample 1: got %+v", samples[1])
	}
}

func TestReadColumnOrderIndependent(t *testing.T) {
	input := strings.Join([]string{
		"X,Y,Z,Time (s),Speed (km/h),Distance to Car 2 (m),Distance to Car 1 (m)",
		"99.5,-30.0,1.0,0.000,5.0,25.0,19.0",
	}, "\n")

	samples, err := Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if samples[0].X != 99.5 || samples[0].DistRef1 != 19.0 || samples[0].DistRef2 != 25.0 {
		t.Errorf("got %+v", samples[0])
	}
}

func TestReadMissingColumn(t *testing.T) {
	input := "Time (s),Speed (km/h),X,Y,Z\n0.0,5.0,99.5,-30.0,1.0\n"

	if _, err := Read(strings.NewReader(input)); err == nil {
		t.Error("expected error for missing distance columns")
	}
}

func TestReadBadValue(t *testing.T) {
	input := strings.Join([]string{
		"Time (s),Speed (km/h),X,Y,Z,Distance to Car 1 (m),Distance to Car 2 (m)",
		"0.000,not-a-number,99.5,-30.0,1.0,19.0,25.0",
	}, "\n")

	if _, err := Read(strings.NewReader(input)); err == nil {
		t.Error("expected error for unparseable value")
	}
}

func TestRoundTripWithTelemetryWriter(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/ride.csv"

	sink, err := telemetry.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := []telemetry.Sample{
		{Elapsed: 0, Speed: 5, X: 99.5, Y: -30, Z: 1, DistRef1: 19, DistRef2: 25},
		{Elapsed: 0.25, Speed: 7.2, X: 99.8, Y: -25, Z: 1, DistRef1: 14, DistRef2: 20},
	}
	for _, s := range want {
		if err := sink.Log(s); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	sink.Close()

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if math.Abs(got[i].Speed-want[i].Speed) > 1e-6 || math.Abs(got[i].Y-want[i].Y) > 1e-6 {
			t.Errorf("sample %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}
