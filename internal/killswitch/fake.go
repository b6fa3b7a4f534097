package killswitch

import "errors"

// FakeButton is a test double that returns scripted switch states.
type FakeButton struct {
	// Samples contains scripted pressed values to return.
	// Each call to Pressed() consumes the next sample.
	// If samples are exhausted, the last sample repeats.
	Samples []bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// PressedError, if set, will be returned by Pressed()
	PressedError error
}

// NewFakeButton creates a FakeButton with the given samples.
func NewFakeButton(samples []bool) *FakeButton {
	return &FakeButton{Samples: samples}
}

// Pressed returns the next scripted sample.
func (f *FakeButton) Pressed() (bool, error) {
	if f.PressedError != nil {
		return false, f.PressedError
	}

	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Close marks the button as closed.
func (f *FakeButton) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the button to the beginning of samples.
func (f *FakeButton) Reset() {
	f.index = 0
	f.Closed = false
}
