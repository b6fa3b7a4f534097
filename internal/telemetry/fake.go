package telemetry

import "sync"

// FakeSink records samples for test assertions.
type FakeSink struct {
	mu      sync.Mutex
	Samples []Sample
	Closed  int

	// LogError, if set, is returned by Log.
	LogError error
}

// NewFakeSink creates an empty FakeSink.
func NewFakeSink() *FakeSink {
	return &FakeSink{}
}

// Log records the sample.
func (f *FakeSink) Log(s Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LogError != nil {
		return f.LogError
	}
	f.Samples = append(f.Samples, s)
	return nil
}

// Close counts invocations; it never errors so cleanup idempotence can be
// asserted.
func (f *FakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed++
	return nil
}

// Len reports how many samples were logged.
func (f *FakeSink) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Samples)
}
