// Package status provides a thread-safe status tracker for the bridge daemon.
// It is read by HTTP handlers and serialized into MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/gvance/cyclebridge/internal/control"
	"github.com/gvance/cyclebridge/internal/fused"
)

// Config contains daemon configuration for display.
type Config struct {
	ListenAddr    string
	DeviceName    string
	Broker        string
	SimURL        string
	TickMs        int64
	Every         int
	HTTPPort      string
	TelemetryPath string
}

// Counts tracks cumulative ingest and actuation counters.
type Counts struct {
	HeadingRecords int
	FramingErrors  int
	Notifications  int
	DecodeErrors   int
	ActuatorErrors int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Link          string
	LinkDetail    string
	Fused         fused.Snapshot
	Command       control.Command
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether both sensor feeds have delivered at least one value.
func (s Snapshot) Ready() bool {
	return s.Fused.Heading != nil && s.Fused.Cadence != nil
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetControl records the fused sensor view and the command computed from it.
// Called from the control loop on every policy evaluation.
func (t *Tracker) SetControl(snap fused.Snapshot, cmd control.Command) {
	t.mu.Lock()
	t.snap.Fused = snap
	t.snap.Command = cmd
	t.mu.Unlock()
}

// SetLink records the BLE link state and an optional detail string
// (e.g., the sensor address).
func (t *Tracker) SetLink(link, detail string) {
	t.mu.Lock()
	t.snap.Link = link
	t.snap.LinkDetail = detail
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// AddHeadingRecords increments the heading record counter.
func (t *Tracker) AddHeadingRecords(n int) {
	t.mu.Lock()
	t.snap.Counts.HeadingRecords += n
	t.mu.Unlock()
}

// AddFramingErrors increments the malformed heading frame counter.
func (t *Tracker) AddFramingErrors(n int) {
	t.mu.Lock()
	t.snap.Counts.FramingErrors += n
	t.mu.Unlock()
}

// AddNotifications increments the BLE notification counter.
func (t *Tracker) AddNotifications(n int) {
	t.mu.Lock()
	t.snap.Counts.Notifications += n
	t.mu.Unlock()
}

// AddDecodeErrors increments the BLE payload decode error counter.
func (t *Tracker) AddDecodeErrors(n int) {
	t.mu.Lock()
	t.snap.Counts.DecodeErrors += n
	t.mu.Unlock()
}

// AddActuatorErrors increments the actuator failure counter.
func (t *Tracker) AddActuatorErrors(n int) {
	t.mu.Lock()
	t.snap.Counts.ActuatorErrors += n
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
