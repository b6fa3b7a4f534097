// Package operator provides the MQTT command and event channel with
// abstraction for testing.
package operator

import (
	"encoding/json"
	"fmt"
	"time"
)

// TopicCommands is the MQTT topic the bridge subscribes to for operator commands.
const TopicCommands = "cyclebridge/commands"

// TopicEvents is the MQTT topic for ride events.
const TopicEvents = "cyclebridge/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "cyclebridge/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishEvent sends a ride event to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishEvent(event Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandSource delivers operator commands received from the broker.
type CommandSource interface {
	Commands() <-chan Command
}

// Command is an operator instruction published on TopicCommands.
type Command struct {
	Name   string `json:"command"`          // e.g., "stop", "camera", "replay", "destroy"
	Target string `json:"target,omitempty"` // camera: view target
	File   string `json:"file,omitempty"`   // replay: recording file
}

// ParseCommand decodes an operator command payload.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("parse command: %w", err)
	}
	if cmd.Name == "" {
		return Command{}, fmt.Errorf("parse command: missing command name")
	}
	return cmd, nil
}

// Event represents a ride event (e.g., link state change, stall detected).
type Event struct {
	Timestamp time.Time
	Kind      string // e.g., "LINK", "STALL", "STALL_CLEARED"
	Link      string // BLE link state at the time of the event
	Detail    string // free-form context, e.g. the sensor address
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Bike BikePayload `json:"bike"`
}

// BikePayload contains the ride event details.
type BikePayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Link      string `json:"link,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// FormatEventPayload creates the JSON payload for a ride event.
func FormatEventPayload(event Event) ([]byte, error) {
	payload := Payload{
		Bike: BikePayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Kind,
			Link:      event.Link,
			Detail:    event.Detail,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
