// Package csc decodes the Cycling Speed and Cadence (CSC) Measurement
// characteristic payload. Decoding is pure: no I/O, no shared state.
// Stall/growth bookkeeping belongs to the fusion layer, not here.
package csc

import (
	"encoding/binary"
	"errors"
)

// ErrMalformedPayload is returned when a notification payload is too short
// to carry a wheel revolution measurement.
var ErrMalformedPayload = errors.New("csc: malformed payload")

// eventTimeHz is the resolution of the wheel event time field: the sensor
// reports time in units of 1/1024 second on a 16-bit rolling counter.
const eventTimeHz = 1024

// Measurement is one decoded wheel revolution reading.
//
// EventTime wraps every 65536/1024 = 64 seconds. It is a rolling clock,
// not absolute time: consumers must only compute differences within a
// wraparound-aware window (see Speed), never raw subtraction across an
// unknown number of wraps.
type Measurement struct {
	// Flags is byte 0 of the payload. Ignored by control policy but
	// retained for diagnostics.
	Flags byte

	// CumulativeRevs is the lifetime wheel revolution count, monotonically
	// non-decreasing modulo 32-bit wraparound.
	CumulativeRevs uint32

	// EventTime is the last wheel event time in seconds.
	EventTime float64

	// EventTimeRaw is the undivided 16-bit counter value.
	EventTimeRaw uint16
}

// Decode parses a CSC Measurement payload.
// Layout: byte 0 flags, bytes 1-4 cumulative wheel revolutions (uint32 LE),
// bytes 5-6 last wheel event time (uint16 LE, 1/1024 s units).
func Decode(p []byte) (Measurement, error) {
	if len(p) < 7 {
		return Measurement{}, ErrMalformedPayload
	}

	raw := binary.LittleEndian.Uint16(p[5:7])
	return Measurement{
		Flags:          p[0],
		CumulativeRevs: binary.LittleEndian.Uint32(p[1:5]),
		EventTime:      float64(raw) / eventTimeHz,
		EventTimeRaw:   raw,
	}, nil
}

// Speed derives speed in km/h between two consecutive measurements for a
// wheel of the given circumference in metres.
//
// Both deltas are taken modulo their counter width, so a single wraparound
// of either field between notifications is handled. More than one wrap
// cannot be detected (the event clock rolls over every 64 s); callers must
// only pass consecutive readings. Returns ok=false when no new revolution
// was recorded or the event clock did not advance.
func Speed(prev, cur Measurement, circumferenceM float64) (kmh float64, ok bool) {
	revs := cur.CumulativeRevs - prev.CumulativeRevs // wraps modulo 2^32
	ticks := cur.EventTimeRaw - prev.EventTimeRaw    // wraps modulo 2^16
	if revs == 0 || ticks == 0 {
		return 0, false
	}

	seconds := float64(ticks) / eventTimeHz
	metersPerSecond := float64(revs) * circumferenceM / seconds
	return metersPerSecond * 3.6, true
}
