package ble

import (
	"context"
	"sync"
)

// FakeAdapter scripts the BLE stack for tests.
type FakeAdapter struct {
	// Advertisements are streamed to every scan window.
	Advertisements []Advertisement

	// EnableError, if set, is returned by Enable.
	EnableError error

	// ConnectErrors are returned by successive Connect calls; once
	// exhausted, Connect succeeds.
	ConnectErrors []error

	// SubscribeError, if set, is returned by the peripheral's SubscribeCSC.
	SubscribeError error

	mu          sync.Mutex
	connectCall int
	peripheral  *FakePeripheral
}

// Enable returns the scripted error, if any.
func (a *FakeAdapter) Enable() error {
	return a.EnableError
}

// Scan delivers the scripted advertisements, then blocks until the window
// is cancelled (mirroring a radio that keeps scanning until stopped).
func (a *FakeAdapter) Scan(ctx context.Context, found func(Advertisement)) error {
	for _, adv := range a.Advertisements {
		if ctx.Err() != nil {
			return nil
		}
		found(adv)
	}
	<-ctx.Done()
	return nil
}

// Connect consumes scripted errors before succeeding.
func (a *FakeAdapter) Connect(ctx context.Context, addr string) (Peripheral, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connectCall < len(a.ConnectErrors) {
		err := a.ConnectErrors[a.connectCall]
		a.connectCall++
		if err != nil {
			return nil, err
		}
	} else {
		a.connectCall++
	}

	a.peripheral = &FakePeripheral{
		Addr:           addr,
		subscribeError: a.SubscribeError,
		dropped:        make(chan struct{}),
	}
	return a.peripheral, nil
}

// ConnectCalls reports how many times Connect was invoked.
func (a *FakeAdapter) ConnectCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connectCall
}

// Peripheral returns the most recently connected fake peripheral.
func (a *FakeAdapter) Peripheral() *FakePeripheral {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peripheral
}

// FakePeripheral captures the notification callback so tests can inject
// payloads and simulate link drops.
type FakePeripheral struct {
	Addr string

	subscribeError error

	mu           sync.Mutex
	notify       func([]byte)
	disconnected bool

	dropOnce sync.Once
	dropped  chan struct{}
}

func (p *FakePeripheral) SubscribeCSC(notify func(payload []byte)) error {
	if p.subscribeError != nil {
		return p.subscribeError
	}
	p.mu.Lock()
	p.notify = notify
	p.mu.Unlock()
	return nil
}

// Notify injects one notification payload as if the sensor sent it.
func (p *FakePeripheral) Notify(payload []byte) {
	p.mu.Lock()
	notify := p.notify
	p.mu.Unlock()
	if notify != nil {
		notify(payload)
	}
}

// Drop simulates an unexpected link loss.
func (p *FakePeripheral) Drop() {
	p.dropOnce.Do(func() { close(p.dropped) })
}

func (p *FakePeripheral) Disconnected() <-chan struct{} {
	return p.dropped
}

func (p *FakePeripheral) Disconnect() error {
	p.mu.Lock()
	p.disconnected = true
	p.mu.Unlock()
	return nil
}

// IsDisconnected reports whether Disconnect was called.
func (p *FakePeripheral) IsDisconnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnected
}
