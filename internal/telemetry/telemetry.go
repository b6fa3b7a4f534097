// Package telemetry writes the append-only ride log: one CSV row per control
// tick with position, speed, and distances to the two reference vehicles.
package telemetry

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// header is written once when the file is created.
var header = []string{
	"Time (s)",
	"Speed (km/h)",
	"X",
	"Y",
	"Z",
	"Distance to Car 1 (m)",
	"Distance to Car 2 (m)",
}

// Sample is one ride log row.
type Sample struct {
	Elapsed  float64
	Speed    float64
	X, Y, Z  float64
	DistRef1 float64
	DistRef2 float64
}

// Logger appends samples to a CSV file. Safe for use from one goroutine
// (the scheduler); Close may race with a final Log, so both lock.
type Logger struct {
	mu     sync.Mutex
	f      *os.File
	w      *csv.Writer
	closed bool
}

// Create truncates (or creates) the ride log and writes the header row.
func Create(path string) (*Logger, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("telemetry: write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("telemetry: flush header: %w", err)
	}

	return &Logger{f: f, w: w}, nil
}

// Log appends one sample.
func (l *Logger) Log(s Sample) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("telemetry: logger closed")
	}

	row := []string{
		formatFloat(s.Elapsed),
		formatFloat(s.Speed),
		formatFloat(s.X),
		formatFloat(s.Y),
		formatFloat(s.Z),
		formatFloat(s.DistRef1),
		formatFloat(s.DistRef2),
	}
	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("telemetry: write row: %w", err)
	}
	return nil
}

// Close flushes and closes the file. Closing twice is harmless.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	l.w.Flush()
	flushErr := l.w.Error()
	closeErr := l.f.Close()
	if flushErr != nil {
		return fmt.Errorf("telemetry: flush: %w", flushErr)
	}
	return closeErr
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
