// Package fused holds the latest value from each sensor feed plus the stall
// bookkeeping derived from them. It is the only shared-mutable object in the
// system: the socket ingest path, the BLE notification path, and the control
// scheduler communicate exclusively through a Store.
//
// Publishing is last-write-wins per field: a new value always replaces the
// previous one, nothing queues, and readers never block. No atomicity is
// promised across the two sensor fields together; a heading from time T1 may
// be fused with a cadence reading from T2.
package fused

import (
	"sync"
	"time"

	"github.com/gvance/cyclebridge/internal/csc"
	"github.com/gvance/cyclebridge/internal/heading"
)

// Stall tracks whether the cadence sensor has stopped producing new
// information, plus the throttle memory the decay ramps work from.
// Owned exclusively by the Store; the counter only resets on growth.
type Stall struct {
	// NoGrowthCount is the number of consecutive notifications whose
	// cumulative revolution count did not grow.
	NoGrowthCount int

	// LastThrottle is the throttle issued on the previous control tick.
	LastThrottle float64
}

// Snapshot is an atomically taken copy of the fused state for one control
// tick. It is a value type, constructed fresh per tick and never mutated.
type Snapshot struct {
	// Heading is the most recent heading record, nil before any arrived.
	Heading *heading.Record

	// Cadence is the most recent wheel revolution reading, nil before any
	// arrived.
	Cadence *csc.Measurement

	// Stall is the stall state as of the snapshot.
	Stall Stall

	// SensorSpeed is the speed in km/h derived from the last two cadence
	// readings, 0 when not derivable.
	SensorSpeed float64

	// Taken is when the snapshot was constructed.
	Taken time.Time
}

// Store is the concurrency-safe latest-value state shared by all paths.
type Store struct {
	// circumferenceM is the configured wheel circumference used for the
	// diagnostic speed derivation.
	circumferenceM float64

	mu          sync.RWMutex
	heading     *heading.Record
	cadence     *csc.Measurement
	stall       Stall
	sensorSpeed float64
}

// NewStore creates an empty Store. circumferenceM is the wheel circumference
// in metres used to derive a diagnostic speed from cadence deltas; pass 0 to
// disable the derivation.
func NewStore(circumferenceM float64) *Store {
	return &Store{circumferenceM: circumferenceM}
}

// PublishHeading replaces the current heading record.
func (s *Store) PublishHeading(r heading.Record) {
	s.mu.Lock()
	s.heading = &r
	s.mu.Unlock()
}

// PublishCadence replaces the current cadence reading and updates the stall
// counter in the same critical section: unchanged cumulative revolutions
// increment it, growth resets it to zero. The first reading always counts as
// growth since there is nothing to compare against.
func (s *Store) PublishCadence(m csc.Measurement) {
	s.mu.Lock()
	prev := s.cadence
	if prev != nil && m.CumulativeRevs == prev.CumulativeRevs {
		s.stall.NoGrowthCount++
	} else {
		s.stall.NoGrowthCount = 0
	}
	if prev != nil && s.circumferenceM > 0 {
		if kmh, ok := csc.Speed(*prev, m, s.circumferenceM); ok {
			s.sensorSpeed = kmh
		}
	}
	s.cadence = &m
	s.mu.Unlock()
}

// RecordThrottle stores the throttle issued this tick so the next tick's
// decay branches have it.
func (s *Store) RecordThrottle(v float64) {
	s.mu.Lock()
	s.stall.LastThrottle = v
	s.mu.Unlock()
}

// Snapshot returns a consistent copy of the fused state. The pointers refer
// to immutable records, so the copy is safe to use after return.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Heading:     s.heading,
		Cadence:     s.cadence,
		Stall:       s.stall,
		SensorSpeed: s.sensorSpeed,
	}
	s.mu.RUnlock()
	snap.Taken = time.Now()
	return snap
}
