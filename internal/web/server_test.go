package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gvance/cyclebridge/internal/control"
	"github.com/gvance/cyclebridge/internal/csc"
	"github.com/gvance/cyclebridge/internal/fused"
	"github.com/gvance/cyclebridge/internal/heading"
	"github.com/gvance/cyclebridge/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		ListenAddr: ":12345",
		DeviceName: "Wahoo SPEED C1E5",
		Broker:     "tcp://192.168.1.200:1883",
		SimURL:     "ws://127.0.0.1:2000/sim",
		TickMs:     50,
		Every:      5,
		HTTPPort:   ":80",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetLink("SUBSCRIBED", "")
	tr.SetControl(fused.Snapshot{
		Heading:     &heading.Record{Heading: 45},
		Cadence:     &csc.Measurement{CumulativeRevs: 10},
		SensorSpeed: 7.2,
	}, control.Command{Steer: 0.35, Throttle: 0.25})
	tr.SetMQTTConnected(true)
	tr.AddHeadingRecords(5)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Link != "SUBSCRIBED" {
		t.Errorf("Link: got %q, want SUBSCRIBED", sj.Status.Link)
	}
	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if sj.Status.Heading == nil || sj.Status.Heading.Degrees != 45 {
		t.Errorf("Heading: got %+v, want 45", sj.Status.Heading)
	}
	if sj.Status.Cadence == nil || sj.Status.Cadence.SpeedKmh != 7.2 {
		t.Errorf("Cadence: got %+v, want speed 7.2", sj.Status.Cadence)
	}
	if sj.Status.Control.Steer != 0.35 {
		t.Errorf("Control.Steer: got %v, want 0.35", sj.Status.Control.Steer)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q, want tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.HeadingRecords != 5 {
		t.Errorf("Counts.HeadingRecords: got %d, want 5", sj.Status.Counts.HeadingRecords)
	}
	if sj.Status.Config.TickMs != 50 {
		t.Errorf("Config.TickMs: got %d, want 50", sj.Status.Config.TickMs)
	}
	if sj.Status.Config.SimURL != "ws://127.0.0.1:2000/sim" {
		t.Errorf("Config.SimURL: got %q", sj.Status.Config.SimURL)
	}
}

func TestJSONUnknownLinkBeforeData(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	json.NewDecoder(resp.Body).Decode(&sj)

	if sj.Status.Link != "UNKNOWN" {
		t.Errorf("Link before data: got %q, want UNKNOWN", sj.Status.Link)
	}
	if sj.Status.Ready {
		t.Error("expected Ready=false before data")
	}
	if sj.Status.Heading != nil {
		t.Error("expected heading omitted before data")
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetLink("SCANNING", "")

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "SCANNING") {
		t.Error("expected link state in HTML body")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	// Initially not ready
	resp1, _ := http.Get(ts.URL + "/index.json")
	var sj1 status.StatusJSON
	json.NewDecoder(resp1.Body).Decode(&sj1)
	resp1.Body.Close()
	if sj1.Status.Ready {
		t.Error("expected Ready=false initially")
	}

	// Update state
	tr.SetControl(fused.Snapshot{
		Heading: &heading.Record{Heading: 10},
		Cadence: &csc.Measurement{CumulativeRevs: 3},
	}, control.Command{Throttle: 0.145})
	tr.SetMQTTConnected(true)

	// Should reflect new state
	resp2, _ := http.Get(ts.URL + "/index.json")
	var sj2 status.StatusJSON
	json.NewDecoder(resp2.Body).Decode(&sj2)
	resp2.Body.Close()

	if !sj2.Status.Ready {
		t.Error("expected Ready=true after update")
	}
	if sj2.Status.Control.Throttle != 0.145 {
		t.Errorf("Throttle: got %v, want 0.145", sj2.Status.Control.Throttle)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
