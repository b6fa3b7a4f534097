package control

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/gvance/cyclebridge/internal/fused"
	"github.com/gvance/cyclebridge/internal/telemetry"
)

// Actuator consumes commands, one per scheduler tick. Failures are
// non-fatal: the tick is skipped and the loop continues.
type Actuator interface {
	Apply(Command) error

	// Neutralize issues a zero command. Must be safe to call repeatedly,
	// including after the actuator is already neutral.
	Neutralize() error
}

// VehicleState is the simulator's latest report of the controlled vehicle.
type VehicleState struct {
	X, Y, Z float64
	Speed   float64 // km/h
}

// VehicleSource exposes the most recent vehicle state, if any has arrived.
type VehicleSource interface {
	Vehicle() (VehicleState, bool)
}

// TelemetrySink receives one ride sample per tick.
type TelemetrySink interface {
	Log(telemetry.Sample) error
	Close() error
}

// StatusSink receives per-tick control state for the status page. Optional.
type StatusSink interface {
	SetControl(snap fused.Snapshot, cmd Command)
	AddActuatorErrors(n int)
}

// Point is a fixed reference position, e.g. a parked vehicle's spawn point.
type Point struct {
	X, Y, Z float64
}

// Distance is the Euclidean distance from a vehicle state to a reference.
func Distance(v VehicleState, p Point) float64 {
	dx, dy, dz := v.X-p.X, v.Y-p.Y, v.Z-p.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Scheduler drives the control loop at a fixed period. Each tick it samples
// the fused store, evaluates the policy every Every-th heading-bearing tick,
// applies the current command, and appends a telemetry sample. It never
// blocks waiting for new sensor data: a tick with nothing new re-applies the
// previous command.
type Scheduler struct {
	Policy   Policy
	Store    *fused.Store
	Actuator Actuator

	// Vehicle and Telemetry are optional; without both, no ride log is
	// written.
	Vehicle   VehicleSource
	Telemetry TelemetrySink

	// Status is optional.
	Status StatusSink

	// Period is the tick period (default 50ms). Every down-samples policy
	// evaluation: the policy runs on every Every-th tick that has a
	// heading record (default 5); the command is re-applied every tick.
	Period time.Duration
	Every  int

	// Ref1 and Ref2 are the reference positions for the telemetry
	// distance columns.
	Ref1, Ref2 Point

	// Now and Tick are injectable for tests. Nil means real time.
	Now  func() time.Time
	Tick <-chan time.Time
}

// Run loops until ctx is cancelled, then performs best-effort cleanup and
// returns the context's error.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Period <= 0 {
		s.Period = 50 * time.Millisecond
	}
	if s.Every < 1 {
		s.Every = 1
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}

	tick := s.Tick
	if tick == nil {
		ticker := time.NewTicker(s.Period)
		defer ticker.Stop()
		tick = ticker.C
	}

	start := now()
	var cmd Command // zero steer, zero throttle until data arrives
	headingTicks := 0

	for {
		select {
		case <-ctx.Done():
			s.Cleanup()
			return ctx.Err()

		case <-tick:
			snap := s.Store.Snapshot()

			if snap.Heading != nil {
				headingTicks++
				if headingTicks%s.Every == 0 {
					cmd = s.Policy.Evaluate(snap)
					s.Store.RecordThrottle(cmd.Throttle)
				}
			}

			if err := s.Actuator.Apply(cmd); err != nil {
				log.Printf("control: actuator: %v (tick skipped)", err)
				if s.Status != nil {
					s.Status.AddActuatorErrors(1)
				}
			}

			s.logTelemetry(now().Sub(start))

			if s.Status != nil {
				s.Status.SetControl(snap, cmd)
			}
		}
	}
}

// Cleanup neutralizes the actuator and flushes the ride log. Errors are
// logged, never returned: cleanup is best-effort and safe to re-run.
func (s *Scheduler) Cleanup() {
	if err := s.Actuator.Neutralize(); err != nil {
		log.Printf("control: neutralize: %v", err)
	}
	if s.Telemetry != nil {
		if err := s.Telemetry.Close(); err != nil {
			log.Printf("control: close telemetry: %v", err)
		}
	}
}

func (s *Scheduler) logTelemetry(elapsed time.Duration) {
	if s.Telemetry == nil || s.Vehicle == nil {
		return
	}
	v, ok := s.Vehicle.Vehicle()
	if !ok {
		return
	}

	sample := telemetry.Sample{
		Elapsed:  elapsed.Seconds(),
		Speed:    v.Speed,
		X:        v.X,
		Y:        v.Y,
		Z:        v.Z,
		DistRef1: Distance(v, s.Ref1),
		DistRef2: Distance(v, s.Ref2),
	}
	if err := s.Telemetry.Log(sample); err != nil {
		log.Printf("control: telemetry: %v", err)
	}
}
