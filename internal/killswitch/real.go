//go:build linux

package killswitch

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealButton reads the kill switch from actual hardware using Linux GPIO
// character device.
type RealButton struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealButton opens the kill switch line on gpiochip0.
func NewRealButton(pin int) (*RealButton, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// The switch shorts the line to ground, so request with pull-up:
	// the line idles high and reads 0 while the switch is held.
	line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request kill switch pin %d: %w", pin, err)
	}

	return &RealButton{
		chip: chip,
		line: line,
	}, nil
}

// Pressed returns true while the switch is held.
// Inverts raw GPIO: raw 0 = pressed, raw 1 = released.
func (b *RealButton) Pressed() (bool, error) {
	raw, err := b.line.Value()
	if err != nil {
		return false, fmt.Errorf("read kill switch pin: %w", err)
	}
	return raw == 0, nil
}

// Close releases GPIO resources.
// Reconfigures the pin to input with pull-down (matching Pi boot defaults)
// before closing so the line is in a clean state for system shutdown/reboot.
func (b *RealButton) Close() error {
	var errs []error

	if b.line != nil {
		if err := b.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure kill switch pin: %w", err))
		}
		if err := b.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kill switch pin: %w", err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
