// Package control converts fused sensor state into steering/throttle
// commands. The policy is pure over its inputs (the previous tick's throttle
// is an explicit field of the snapshot's stall state); the scheduler drives
// it at a fixed rate. No I/O here beyond logging in the scheduler.
package control

import (
	"math"

	"github.com/gvance/cyclebridge/internal/fused"
)

// Command is one steering/throttle pair handed to the actuator and then
// discarded. Steer is in [-1,1]; throttle in [0,1].
type Command struct {
	Steer    float64
	Throttle float64
}

// lowRevDecay is the gentle per-evaluation deceleration applied while the
// cadence is still ramping up from rest (or no heading has arrived yet).
const lowRevDecay = 0.9

// Policy holds the control constants.
type Policy struct {
	// Damping scales the trigonometric steering mapping to reduce
	// aggressiveness relative to the raw heading.
	Damping float64

	// StallThreshold is the number of consecutive no-growth notifications
	// after which the throttle ramps down via DecayFactor.
	StallThreshold int

	// DecayFactor multiplies the previous throttle each tick while stalled.
	DecayFactor float64

	// LowRevThreshold: below this many cumulative revolutions, throttle
	// decays gently instead of following the cadence mapping.
	LowRevThreshold uint32

	// BaseOffset and Gain define the cadence-to-throttle mapping
	// min(BaseOffset + revs*Gain, 1).
	BaseOffset float64
	Gain       float64
}

// DefaultPolicy returns the tuning used on the prototype rig.
func DefaultPolicy() Policy {
	return Policy{
		Damping:         0.5,
		StallThreshold:  2,
		DecayFactor:     0.3,
		LowRevThreshold: 5,
		BaseOffset:      0.1,
		Gain:            0.015,
	}
}

// Evaluate maps one fused snapshot to a command.
//
// Steering: sin(radians(heading)) * Damping, clamped to [-1,1]. The sine is
// periodic, so headings outside [0,360) need no explicit normalization. With
// no heading record yet, steer is 0.
//
// Throttle, in priority order: stall decay, low-revolution decay, cadence
// mapping. A snapshot with no cadence reading ever received behaves as zero
// revolutions. A stalled sensor must never freeze throttle at its last
// value; both decay branches ramp toward zero across successive ticks.
func (p Policy) Evaluate(snap fused.Snapshot) Command {
	var steer float64
	if snap.Heading != nil {
		steer = clamp(math.Sin(snap.Heading.Heading*math.Pi/180)*p.Damping, -1, 1)
	}

	var revs uint32
	if snap.Cadence != nil {
		revs = snap.Cadence.CumulativeRevs
	}

	last := snap.Stall.LastThrottle
	var throttle float64
	switch {
	case snap.Stall.NoGrowthCount >= p.StallThreshold:
		throttle = math.Max(0, last*p.DecayFactor)
	case snap.Heading == nil, revs < p.LowRevThreshold:
		throttle = math.Max(0, last*lowRevDecay)
	default:
		throttle = math.Min(p.BaseOffset+float64(revs)*p.Gain, 1.0)
	}

	return Command{Steer: steer, Throttle: throttle}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
