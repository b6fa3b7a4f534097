//go:build !linux

package killswitch

import "errors"

// RealButton is not available on non-Linux platforms.
type RealButton struct{}

// NewRealButton returns an error on non-Linux platforms.
func NewRealButton(pin int) (*RealButton, error) {
	return nil, errors.New("killswitch: not supported on this platform (requires Linux)")
}

// Pressed is not implemented on non-Linux platforms.
func (b *RealButton) Pressed() (bool, error) {
	return false, errors.New("killswitch: not supported")
}

// Close is not implemented on non-Linux platforms.
func (b *RealButton) Close() error {
	return nil
}
