package ble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gvance/cyclebridge/internal/csc"
)

// cadenceSink records forwarded measurements.
type cadenceSink struct {
	mu       sync.Mutex
	readings []csc.Measurement
}

func (s *cadenceSink) PublishCadence(m csc.Measurement) {
	s.mu.Lock()
	s.readings = append(s.readings, m)
	s.mu.Unlock()
}

func (s *cadenceSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readings)
}

func fastConfig() Config {
	return Config{
		DeviceName:      "Wahoo SPEED C1E5",
		DiscoveryBudget: 200 * time.Millisecond,
		ScanWindow:      20 * time.Millisecond,
		ScanBackoff:     20 * time.Millisecond,
		MaxAttempts:     3,
		RetryDelay:      10 * time.Millisecond,
	}
}

func TestDiscoverFindsTarget(t *testing.T) {
	adapter := &FakeAdapter{
		Advertisements: []Advertisement{
			{Name: "Someone's Watch", Addr: "aa:00"},
			{Name: "Wahoo SPEED C1E5", Addr: "bb:11", RSSI: -60},
			{Name: "Other Sensor", Addr: "cc:22"},
		},
	}
	m := NewManager(adapter, &cadenceSink{}, nil, fastConfig())

	adv, err := m.Discover(context.Background(), "Wahoo SPEED C1E5", time.Second)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if adv.Addr != "bb:11" {
		t.Errorf("Addr: got %s, want bb:11", adv.Addr)
	}
}

func TestDiscoverTimesOut(t *testing.T) {
	adapter := &FakeAdapter{
		Advertisements: []Advertisement{{Name: "Not The One", Addr: "aa:00"}},
	}
	cfg := fastConfig()
	m := NewManager(adapter, &cadenceSink{}, nil, cfg)

	start := time.Now()
	_, err := m.Discover(context.Background(), "Wahoo SPEED C1E5", cfg.DiscoveryBudget)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("got err %v, want ErrDeviceNotFound", err)
	}
	if elapsed < cfg.DiscoveryBudget {
		t.Errorf("gave up after %v, before the %v budget", elapsed, cfg.DiscoveryBudget)
	}
	// Overshoot is bounded by one scan window plus one backoff.
	if max := cfg.DiscoveryBudget + cfg.ScanWindow + cfg.ScanBackoff + 50*time.Millisecond; elapsed > max {
		t.Errorf("took %v, want at most %v", elapsed, max)
	}
}

func TestDiscoverCancellationIsPrompt(t *testing.T) {
	adapter := &FakeAdapter{}
	cfg := fastConfig()
	cfg.DiscoveryBudget = time.Minute
	m := NewManager(adapter, &cadenceSink{}, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := m.Discover(ctx, "Wahoo SPEED C1E5", cfg.DiscoveryBudget)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got err %v, want context.Canceled", err)
	}
	// Bounded by one backoff interval, not the discovery budget.
	if elapsed := time.Since(start); elapsed > cfg.ScanWindow+cfg.ScanBackoff+100*time.Millisecond {
		t.Errorf("cancellation took %v", elapsed)
	}
}

func TestConnectRetriesThenSucceeds(t *testing.T) {
	adapter := &FakeAdapter{
		ConnectErrors: []error{errors.New("gatt timeout"), errors.New("gatt timeout")},
	}
	m := NewManager(adapter, &cadenceSink{}, nil, fastConfig())

	p, err := m.ConnectAndSubscribe(context.Background(), Advertisement{Addr: "bb:11"}, 3)
	if err != nil {
		t.Fatalf("ConnectAndSubscribe: %v", err)
	}
	if p == nil {
		t.Fatal("expected a peripheral")
	}
	if got := adapter.ConnectCalls(); got != 3 {
		t.Errorf("connect calls: got %d, want 3", got)
	}
	if m.State() != StateSubscribed {
		t.Errorf("state: got %s, want SUBSCRIBED", m.State())
	}
}

func TestConnectExhaustsAttempts(t *testing.T) {
	adapter := &FakeAdapter{
		ConnectErrors: []error{
			errors.New("gatt timeout"),
			errors.New("gatt timeout"),
			errors.New("gatt timeout"),
		},
	}
	m := NewManager(adapter, &cadenceSink{}, nil, fastConfig())

	_, err := m.ConnectAndSubscribe(context.Background(), Advertisement{Addr: "bb:11"}, 3)
	if !errors.Is(err, ErrLinkExhausted) {
		t.Fatalf("got err %v, want ErrLinkExhausted", err)
	}
	if got := adapter.ConnectCalls(); got != 3 {
		t.Errorf("connect calls: got %d, want 3", got)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state: got %s, want DISCONNECTED", m.State())
	}
}

func TestSubscribeFailureCountsAsAttempt(t *testing.T) {
	adapter := &FakeAdapter{SubscribeError: errors.New("no such characteristic")}
	m := NewManager(adapter, &cadenceSink{}, nil, fastConfig())

	_, err := m.ConnectAndSubscribe(context.Background(), Advertisement{Addr: "bb:11"}, 2)
	if !errors.Is(err, ErrLinkExhausted) {
		t.Fatalf("got err %v, want ErrLinkExhausted", err)
	}
}

func TestRunRoutesNotifications(t *testing.T) {
	adapter := &FakeAdapter{
		Advertisements: []Advertisement{{Name: "Wahoo SPEED C1E5", Addr: "bb:11"}},
	}
	sink := &cadenceSink{}
	m := NewManager(adapter, sink, nil, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for m.State() != StateSubscribed && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if m.State() != StateSubscribed {
		t.Fatal("link never subscribed")
	}

	p := adapter.Peripheral()
	// Valid reading, a short (dropped) payload, then another valid one.
	p.Notify([]byte{0x01, 0x0a, 0x00, 0x00, 0x00, 0x00, 0x04})
	p.Notify([]byte{0x01, 0x02})
	p.Notify([]byte{0x01, 0x0b, 0x00, 0x00, 0x00, 0x00, 0x08})

	if sink.len() != 2 {
		t.Fatalf("forwarded readings: got %d, want 2", sink.len())
	}
	sink.mu.Lock()
	first := sink.readings[0]
	sink.mu.Unlock()
	if first.CumulativeRevs != 10 {
		t.Errorf("CumulativeRevs: got %d, want 10", first.CumulativeRevs)
	}

	// Unexpected drop surfaces as ErrLinkDropped, not a crash.
	p.Drop()
	select {
	case err := <-done:
		if !errors.Is(err, ErrLinkDropped) {
			t.Errorf("Run: got err %v, want ErrLinkDropped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after link drop")
	}
	if m.State() != StateDisconnected {
		t.Errorf("state after drop: got %s, want DISCONNECTED", m.State())
	}
}

func TestRunShutdownDisconnects(t *testing.T) {
	adapter := &FakeAdapter{
		Advertisements: []Advertisement{{Name: "Wahoo SPEED C1E5", Addr: "bb:11"}},
	}
	m := NewManager(adapter, &cadenceSink{}, nil, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for m.State() != StateSubscribed && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run: got err %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if !adapter.Peripheral().IsDisconnected() {
		t.Error("peripheral was not disconnected on shutdown")
	}
}

func TestStateTransitionsReported(t *testing.T) {
	adapter := &FakeAdapter{
		Advertisements: []Advertisement{{Name: "Wahoo SPEED C1E5", Addr: "bb:11"}},
	}
	m := NewManager(adapter, &cadenceSink{}, nil, fastConfig())

	var mu sync.Mutex
	var states []State
	m.OnStateChange = func(s State, _ string) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}

	adv, err := m.Discover(context.Background(), "Wahoo SPEED C1E5", time.Second)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if _, err := m.ConnectAndSubscribe(context.Background(), adv, 1); err != nil {
		t.Fatalf("ConnectAndSubscribe: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateScanning, StateConnecting, StateSubscribed}
	if len(states) != len(want) {
		t.Fatalf("transitions: got %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d: got %s, want %s", i, states[i], want[i])
		}
	}
}
