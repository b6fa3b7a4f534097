package ble

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// Cycling Speed and Cadence service and its Measurement characteristic.
var (
	cscServiceUUID     = bluetooth.New16BitUUID(0x1816)
	cscMeasurementUUID = bluetooth.New16BitUUID(0x2A5B)
)

// RealAdapter drives the platform BLE stack.
type RealAdapter struct {
	adapter *bluetooth.Adapter

	mu    sync.Mutex
	addrs map[string]bluetooth.Address
	conns map[string]*realPeripheral
}

// NewRealAdapter wraps the default platform adapter.
func NewRealAdapter() *RealAdapter {
	return &RealAdapter{
		adapter: bluetooth.DefaultAdapter,
		addrs:   make(map[string]bluetooth.Address),
		conns:   make(map[string]*realPeripheral),
	}
}

// Enable powers up the adapter and installs the disconnect watcher.
func (a *RealAdapter) Enable() error {
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		a.mu.Lock()
		p := a.conns[device.Address.String()]
		delete(a.conns, device.Address.String())
		a.mu.Unlock()
		if p != nil {
			p.drop()
		}
	})
	return a.adapter.Enable()
}

// Scan streams advertisements until ctx is done. The raw stack scans until
// StopScan, so cancellation is bridged here.
func (a *RealAdapter) Scan(ctx context.Context, found func(Advertisement)) error {
	stop := context.AfterFunc(ctx, func() { a.adapter.StopScan() })
	defer stop()

	err := a.adapter.Scan(func(_ *bluetooth.Adapter, res bluetooth.ScanResult) {
		addr := res.Address.String()
		a.mu.Lock()
		a.addrs[addr] = res.Address
		a.mu.Unlock()
		found(Advertisement{Name: res.LocalName(), Addr: addr, RSSI: res.RSSI})
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Connect opens a connection to an address seen in a previous scan.
func (a *RealAdapter) Connect(ctx context.Context, addr string) (Peripheral, error) {
	a.mu.Lock()
	target, ok := a.addrs[addr]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("ble: address %s not seen in any scan", addr)
	}

	device, err := a.adapter.Connect(target, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("ble: connect %s: %w", addr, err)
	}

	p := &realPeripheral{device: device, dropped: make(chan struct{})}
	a.mu.Lock()
	a.conns[addr] = p
	a.mu.Unlock()
	return p, nil
}

// realPeripheral is a connected device on the platform stack.
type realPeripheral struct {
	device   bluetooth.Device
	dropOnce sync.Once
	dropped  chan struct{}
}

func (p *realPeripheral) SubscribeCSC(notify func(payload []byte)) error {
	services, err := p.device.DiscoverServices([]bluetooth.UUID{cscServiceUUID})
	if err != nil {
		return fmt.Errorf("ble: discover CSC service: %w", err)
	}
	if len(services) == 0 {
		return fmt.Errorf("ble: peripheral has no CSC service")
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{cscMeasurementUUID})
	if err != nil {
		return fmt.Errorf("ble: discover CSC measurement characteristic: %w", err)
	}
	if len(chars) == 0 {
		return fmt.Errorf("ble: service has no CSC measurement characteristic")
	}

	if err := chars[0].EnableNotifications(notify); err != nil {
		return fmt.Errorf("ble: enable notifications: %w", err)
	}
	return nil
}

func (p *realPeripheral) Disconnected() <-chan struct{} {
	return p.dropped
}

func (p *realPeripheral) Disconnect() error {
	return p.device.Disconnect()
}

func (p *realPeripheral) drop() {
	p.dropOnce.Do(func() { close(p.dropped) })
}
