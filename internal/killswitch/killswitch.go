// Package killswitch provides the physical stop-button input with hardware
// abstraction. The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package killswitch

// Button reads the kill switch state.
type Button interface {
	// Pressed returns true while the switch is held.
	// The switch is wired active-low: raw 0 = pressed.
	Pressed() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultPin is the BCM line the kill switch is wired to.
const DefaultPin = 21
