// Package sim is the boundary to the vehicle simulator. The bridge speaks a
// small JSON protocol over a websocket: outbound control/camera/replay/
// destroy messages, inbound vehicle state reports. The simulator itself
// (world, physics, actors) is an external collaborator; nothing here models
// it beyond this wire surface.
package sim

import (
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/gvance/cyclebridge/internal/control"
)

// Message is the wire envelope in both directions.
type Message struct {
	Type string `json:"type"`

	// control
	Steer    float64 `json:"steer,omitempty"`
	Throttle float64 `json:"throttle,omitempty"`

	// camera
	Target string `json:"target,omitempty"`

	// replay
	File string `json:"file,omitempty"`

	// state (inbound)
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`
	Z     float64 `json:"z,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

// Bridge is a websocket client to the simulator. It implements
// control.Actuator and control.VehicleSource.
type Bridge struct {
	conn *websocket.Conn

	writeMu sync.Mutex // gorilla permits one concurrent writer

	mu      sync.Mutex
	state   control.VehicleState
	haveState bool
	closed  bool
}

// Dial connects to the simulator bridge endpoint, e.g.
// ws://127.0.0.1:2000/sim, and starts the inbound state reader.
func Dial(url string) (*Bridge, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("sim: dial %s: %w", url, err)
	}

	b := &Bridge{conn: conn}
	go b.readLoop()
	return b, nil
}

// readLoop keeps the latest vehicle state. Last write wins; the scheduler
// reads whatever is current at its own cadence.
func (b *Bridge) readLoop() {
	for {
		var msg Message
		if err := b.conn.ReadJSON(&msg); err != nil {
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if !closed {
				log.Printf("sim: read: %v", err)
			}
			return
		}
		if msg.Type != "state" {
			continue
		}
		b.mu.Lock()
		b.state = control.VehicleState{X: msg.X, Y: msg.Y, Z: msg.Z, Speed: msg.Speed}
		b.haveState = true
		b.mu.Unlock()
	}
}

// Apply sends one control command.
func (b *Bridge) Apply(cmd control.Command) error {
	return b.send(Message{Type: "control", Steer: cmd.Steer, Throttle: cmd.Throttle})
}

// Neutralize sends a zero command. Safe to repeat.
func (b *Bridge) Neutralize() error {
	return b.send(Message{Type: "control", Steer: 0, Throttle: 0})
}

// SwitchView moves the observation camera to the named actor. Decoupled
// from control: a failed camera move never affects actuation.
func (b *Bridge) SwitchView(target string) error {
	return b.send(Message{Type: "camera", Target: target})
}

// Replay asks the simulator to play back a recording file.
func (b *Bridge) Replay(file string) error {
	return b.send(Message{Type: "replay", File: file})
}

// DestroyVehicles asks the simulator to remove all spawned vehicles.
func (b *Bridge) DestroyVehicles() error {
	return b.send(Message{Type: "destroy"})
}

// Vehicle returns the most recent inbound vehicle state.
func (b *Bridge) Vehicle() (control.VehicleState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.haveState
}

// Close tears the connection down.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	b.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return b.conn.Close()
}

func (b *Bridge) send(msg Message) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("sim: send %s: %w", msg.Type, err)
	}
	return nil
}
