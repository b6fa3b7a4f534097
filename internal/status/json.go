package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Link          string       `json:"link"`
	LinkDetail    string       `json:"link_detail,omitempty"`
	Ready         bool         `json:"ready"`
	Heading       *HeadingJSON `json:"heading,omitempty"`
	Cadence       *CadenceJSON `json:"cadence,omitempty"`
	Control       ControlJSON  `json:"control"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Config        ConfigJSON   `json:"config"`
}

// HeadingJSON is the JSON representation of the latest heading record.
type HeadingJSON struct {
	Degrees  float64 `json:"degrees"`
	LoggedAt string  `json:"logged_at,omitempty"`
}

// CadenceJSON is the JSON representation of the latest wheel measurement.
type CadenceJSON struct {
	CumulativeRevs uint32  `json:"cumulative_revs"`
	EventTime      float64 `json:"event_time"`
	SpeedKmh       float64 `json:"speed_kmh"`
	StallCount     int     `json:"stall_count"`
}

// ControlJSON is the JSON representation of the last command.
type ControlJSON struct {
	Steer    float64 `json:"steer"`
	Throttle float64 `json:"throttle"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of ingest and actuation counters.
type CountsJSON struct {
	HeadingRecords int `json:"heading_records"`
	FramingErrors  int `json:"framing_errors"`
	Notifications  int `json:"notifications"`
	DecodeErrors   int `json:"decode_errors"`
	ActuatorErrors int `json:"actuator_errors"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ListenAddr    string `json:"listen_addr"`
	DeviceName    string `json:"device_name"`
	Broker        string `json:"broker"`
	SimURL        string `json:"sim_url"`
	TickMs        int64  `json:"tick_ms"`
	Every         int    `json:"every"`
	HTTPPort      string `json:"http_port"`
	TelemetryPath string `json:"telemetry_path,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	link := snap.Link
	if link == "" {
		link = "UNKNOWN"
	}

	inner := StatusInner{
		Link:          link,
		LinkDetail:    snap.LinkDetail,
		Ready:         snap.Ready(),
		Control:       ControlJSON{Steer: snap.Command.Steer, Throttle: snap.Command.Throttle},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			HeadingRecords: snap.Counts.HeadingRecords,
			FramingErrors:  snap.Counts.FramingErrors,
			Notifications:  snap.Counts.Notifications,
			DecodeErrors:   snap.Counts.DecodeErrors,
			ActuatorErrors: snap.Counts.ActuatorErrors,
		},
		Config: ConfigJSON{
			ListenAddr:    snap.Config.ListenAddr,
			DeviceName:    snap.Config.DeviceName,
			Broker:        snap.Config.Broker,
			SimURL:        snap.Config.SimURL,
			TickMs:        snap.Config.TickMs,
			Every:         snap.Config.Every,
			HTTPPort:      snap.Config.HTTPPort,
			TelemetryPath: snap.Config.TelemetryPath,
		},
	}

	if snap.Fused.Heading != nil {
		inner.Heading = &HeadingJSON{
			Degrees:  snap.Fused.Heading.Heading,
			LoggedAt: snap.Fused.Heading.LoggedAt,
		}
	}
	if snap.Fused.Cadence != nil {
		inner.Cadence = &CadenceJSON{
			CumulativeRevs: snap.Fused.Cadence.CumulativeRevs,
			EventTime:      snap.Fused.Cadence.EventTime,
			SpeedKmh:       snap.Fused.SensorSpeed,
			StallCount:     snap.Fused.Stall.NoGrowthCount,
		}
	}

	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
