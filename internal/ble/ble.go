// Package ble acquires and holds the link to the wheel sensor: discovery by
// advertised name with a bounded budget, connection with bounded retries,
// and notification routing into the fused store.
//
// The platform stack sits behind the Adapter/Peripheral interfaces so the
// link state machine is testable without hardware, the same way the GPIO
// reader is abstracted elsewhere in this codebase.
package ble

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gvance/cyclebridge/internal/csc"
)

// State is the BLE link state. Disconnected is reachable from any state on
// error; the happy path is Scanning -> Connecting -> Subscribed.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateSubscribed
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateScanning:
		return "SCANNING"
	case StateConnecting:
		return "CONNECTING"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrDeviceNotFound means the discovery budget elapsed with no
	// advertisement matching the target name.
	ErrDeviceNotFound = errors.New("ble: device not found")

	// ErrLinkExhausted means every connection attempt failed.
	ErrLinkExhausted = errors.New("ble: connection attempts exhausted")

	// ErrLinkDropped means a subscribed link disconnected unexpectedly.
	ErrLinkDropped = errors.New("ble: link dropped")
)

// Advertisement is one peripheral seen during a scan.
type Advertisement struct {
	Name string
	Addr string
	RSSI int16
}

// Adapter abstracts the BLE stack. RealAdapter wraps the platform stack;
// FakeAdapter scripts it for tests.
type Adapter interface {
	// Enable powers up the adapter. Must be called once before scanning.
	Enable() error

	// Scan streams advertisements to found until ctx is cancelled or the
	// scan fails. Cancellation is a normal end of a scan window, not an
	// error.
	Scan(ctx context.Context, found func(Advertisement)) error

	// Connect opens a connection to a previously scanned address.
	Connect(ctx context.Context, addr string) (Peripheral, error)
}

// Peripheral is a connected device.
type Peripheral interface {
	// SubscribeCSC enables notifications on the CSC Measurement
	// characteristic, delivering each raw payload to notify.
	SubscribeCSC(notify func(payload []byte)) error

	// Disconnected is closed when the link drops unexpectedly.
	Disconnected() <-chan struct{}

	// Disconnect tears the link down.
	Disconnect() error
}

// Sink receives decoded cadence readings. Satisfied by the fused store,
// which owns the stall counter.
type Sink interface {
	PublishCadence(csc.Measurement)
}

// Metrics receives notification counters. Optional.
type Metrics interface {
	AddNotifications(n int)
	AddDecodeErrors(n int)
}

// Config holds the acquisition parameters.
type Config struct {
	// DeviceName is the advertised name to discover, e.g. "Wahoo SPEED C1E5".
	DeviceName string

	// DiscoveryBudget bounds the total time spent discovering.
	DiscoveryBudget time.Duration

	// ScanWindow is how long each individual scan attempt runs.
	ScanWindow time.Duration

	// ScanBackoff is the wait between scan attempts.
	ScanBackoff time.Duration

	// MaxAttempts bounds connection retries.
	MaxAttempts int

	// RetryDelay is the wait between failed connection attempts.
	RetryDelay time.Duration
}

// Manager owns the link state machine. A failed acquisition is reported to
// the caller but is never fatal to the process: the control loop keeps
// running and throttle decays through the stall path.
type Manager struct {
	adapter Adapter
	sink    Sink
	metrics Metrics
	cfg     Config

	// OnStateChange, if set, is invoked after every state transition with
	// a short human-readable detail. Used for operator events.
	OnStateChange func(s State, detail string)

	mu    sync.Mutex
	state State
}

// NewManager wires a Manager. metrics may be nil.
func NewManager(adapter Adapter, sink Sink, metrics Metrics, cfg Config) *Manager {
	return &Manager{adapter: adapter, sink: sink, metrics: metrics, cfg: cfg}
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State, detail string) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	log.Printf("ble: link %s %s", s, detail)
	if m.OnStateChange != nil {
		m.OnStateChange(s, detail)
	}
}

// Run performs the whole acquisition and then holds the link open until ctx
// is cancelled or the link drops. It returns ErrDeviceNotFound,
// ErrLinkExhausted, or ErrLinkDropped for the operator to act on; none of
// these should stop the process.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.adapter.Enable(); err != nil {
		m.setState(StateDisconnected, "adapter enable failed")
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	adv, err := m.Discover(ctx, m.cfg.DeviceName, m.cfg.DiscoveryBudget)
	if err != nil {
		m.setState(StateDisconnected, "discovery failed")
		return err
	}
	log.Printf("ble: found %q at %s (rssi %d)", adv.Name, adv.Addr, adv.RSSI)

	p, err := m.ConnectAndSubscribe(ctx, adv, m.cfg.MaxAttempts)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		if err := p.Disconnect(); err != nil {
			log.Printf("ble: disconnect: %v", err)
		}
		m.setState(StateDisconnected, "shutdown")
		return ctx.Err()
	case <-p.Disconnected():
		// No automatic reconnect mid-session; the operator can issue a
		// reconnect command to re-run acquisition.
		m.setState(StateDisconnected, "link dropped")
		return ErrLinkDropped
	}
}

// Discover scans until a peripheral advertising target is seen or the budget
// elapses, waiting ScanBackoff between scan windows. Cancellation interrupts
// any wait within one interval.
func (m *Manager) Discover(ctx context.Context, target string, budget time.Duration) (Advertisement, error) {
	m.setState(StateScanning, fmt.Sprintf("for %q", target))

	deadline := time.Now().Add(budget)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return Advertisement{}, err
		}

		adv, found, err := m.scanOnce(ctx, target)
		if found {
			return adv, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return Advertisement{}, ctx.Err()
			}
			log.Printf("ble: scan: %v", err)
		}

		select {
		case <-ctx.Done():
			return Advertisement{}, ctx.Err()
		case <-time.After(m.cfg.ScanBackoff):
		}
	}

	return Advertisement{}, fmt.Errorf("%w: %q not seen within %v", ErrDeviceNotFound, target, budget)
}

func (m *Manager) scanOnce(ctx context.Context, target string) (Advertisement, bool, error) {
	window, cancel := context.WithTimeout(ctx, m.cfg.ScanWindow)
	defer cancel()

	var (
		mu    sync.Mutex
		match Advertisement
		found bool
	)
	err := m.adapter.Scan(window, func(adv Advertisement) {
		if adv.Name != target {
			return
		}
		mu.Lock()
		if !found {
			match, found = adv, true
		}
		mu.Unlock()
		cancel()
	})

	mu.Lock()
	defer mu.Unlock()
	if found {
		return match, true, nil
	}
	if window.Err() != nil {
		// Window elapsed or caller cancelled; not a scan failure.
		return Advertisement{}, false, nil
	}
	return Advertisement{}, false, err
}

// ConnectAndSubscribe connects to the discovered peripheral with up to
// maxAttempts tries, RetryDelay apart, then subscribes to the CSC
// Measurement characteristic.
func (m *Manager) ConnectAndSubscribe(ctx context.Context, adv Advertisement, maxAttempts int) (Peripheral, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		m.setState(StateConnecting, fmt.Sprintf("attempt %d/%d", attempt, maxAttempts))

		p, err := m.adapter.Connect(ctx, adv.Addr)
		if err == nil {
			if err = p.SubscribeCSC(m.handleNotification); err == nil {
				m.setState(StateSubscribed, adv.Addr)
				return p, nil
			}
			p.Disconnect()
		}
		log.Printf("ble: attempt %d/%d failed: %v", attempt, maxAttempts, err)

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.cfg.RetryDelay):
		}
	}

	m.setState(StateDisconnected, "attempts exhausted")
	return nil, fmt.Errorf("%w: %d attempts to %s", ErrLinkExhausted, maxAttempts, adv.Addr)
}

// handleNotification decodes one notification payload and forwards the
// reading. Decode failures are logged and dropped; the stall counter in the
// fused store is untouched by a dropped reading.
func (m *Manager) handleNotification(payload []byte) {
	if m.metrics != nil {
		m.metrics.AddNotifications(1)
	}

	meas, err := csc.Decode(payload)
	if err != nil {
		log.Printf("ble: %v (%d bytes)", err, len(payload))
		if m.metrics != nil {
			m.metrics.AddDecodeErrors(1)
		}
		return
	}

	m.sink.PublishCadence(meas)
}
