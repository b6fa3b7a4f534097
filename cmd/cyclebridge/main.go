// Command cyclebridge fuses a TCP heading feed and a BLE wheel-speed sensor
// into steering and throttle commands for a simulated bicycle.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gvance/cyclebridge/internal/ble"
	"github.com/gvance/cyclebridge/internal/control"
	"github.com/gvance/cyclebridge/internal/fused"
	"github.com/gvance/cyclebridge/internal/heading"
	"github.com/gvance/cyclebridge/internal/killswitch"
	"github.com/gvance/cyclebridge/internal/operator"
	"github.com/gvance/cyclebridge/internal/sim"
	"github.com/gvance/cyclebridge/internal/status"
	"github.com/gvance/cyclebridge/internal/telemetry"
	"github.com/gvance/cyclebridge/internal/web"
)

// appConfig collects the parsed flags.
type appConfig struct {
	listen        string
	device        string
	scanBudget    time.Duration
	scanWindow    time.Duration
	scanBackoff   time.Duration
	attempts      int
	retryDelay    time.Duration
	wheel         float64
	simURL        string
	broker        string
	heartbeat     time.Duration
	tick          time.Duration
	every         int
	telemetryPath string
	httpAddr      string
	killPin       int
	policy        control.Policy
	car1, car2    control.Point
}

func main() {
	def := control.DefaultPolicy()

	listen := flag.String("listen", ":12345", "TCP listen address for the heading feed")
	device := flag.String("device", "Wahoo SPEED C1E5", "advertised name of the BLE speed sensor")
	scanBudget := flag.Duration("scan-budget", 60*time.Second, "total time allowed for BLE discovery")
	scanWindow := flag.Duration("scan-window", 10*time.Second, "length of one BLE scan attempt")
	scanBackoff := flag.Duration("scan-backoff", 5*time.Second, "wait between BLE scan attempts")
	attempts := flag.Int("attempts", 3, "BLE connection attempts before giving up")
	retryDelay := flag.Duration("retry-delay", 2*time.Second, "wait between failed BLE connection attempts")
	wheel := flag.Float64("wheel", 2.199, "wheel circumference in metres")
	simURL := flag.String("sim", "ws://127.0.0.1:2000/sim", "simulator websocket URL")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address (empty to disable)")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "heartbeat interval (0 to disable)")
	tick := flag.Duration("tick", 50*time.Millisecond, "control loop period")
	every := flag.Int("every", 5, "evaluate the policy every Nth heading-bearing tick")
	telemetryPath := flag.String("telemetry", "bike_movement_log.csv", "ride log path (empty to disable)")
	httpAddr := flag.String("http", ":80", "HTTP status address (empty to disable)")
	killPin := flag.Int("kill-pin", killswitch.DefaultPin, "BCM pin for the kill switch (-1 to disable)")
	car1 := flag.String("car1", "99.5,-11.0,0.5", "reference car 1 position as x,y,z")
	car2 := flag.String("car2", "99.5,-5.0,0.5", "reference car 2 position as x,y,z")

	damping := flag.Float64("damping", def.Damping, "steering damping factor")
	stallTicks := flag.Int("stall-ticks", def.StallThreshold, "cadence samples without growth before the stall brake")
	decay := flag.Float64("decay", def.DecayFactor, "throttle decay factor while stalled")
	lowRev := flag.Uint("low-rev", uint(def.LowRevThreshold), "rev count below which throttle coasts down")
	base := flag.Float64("base", def.BaseOffset, "throttle base offset")
	gain := flag.Float64("gain", def.Gain, "throttle gain per rev")

	flag.Parse()

	p1, err := parsePoint(*car1)
	if err != nil {
		log.Fatalf("fatal: -car1: %v", err)
	}
	p2, err := parsePoint(*car2)
	if err != nil {
		log.Fatalf("fatal: -car2: %v", err)
	}

	cfg := appConfig{
		listen:        *listen,
		device:        *device,
		scanBudget:    *scanBudget,
		scanWindow:    *scanWindow,
		scanBackoff:   *scanBackoff,
		attempts:      *attempts,
		retryDelay:    *retryDelay,
		wheel:         *wheel,
		simURL:        *simURL,
		broker:        *broker,
		heartbeat:     *heartbeat,
		tick:          *tick,
		every:         *every,
		telemetryPath: *telemetryPath,
		httpAddr:      *httpAddr,
		killPin:       *killPin,
		policy: control.Policy{
			Damping:         *damping,
			StallThreshold:  *stallTicks,
			DecayFactor:     *decay,
			LowRevThreshold: uint32(*lowRev),
			BaseOffset:      *base,
			Gain:            *gain,
		},
		car1: p1,
		car2: p2,
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg appConfig) error {
	store := fused.NewStore(cfg.wheel)

	// Operator channel (optional)
	var publisher operator.Publisher
	var connStatus operator.ConnectionStatus
	var commands <-chan operator.Command
	if cfg.broker != "" {
		client, err := operator.NewRealClient(cfg.broker)
		if err != nil {
			return fmt.Errorf("connect broker: %w", err)
		}
		defer client.Close()
		publisher = client
		connStatus = client
		commands = client.Commands()
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		ListenAddr:    cfg.listen,
		DeviceName:    cfg.device,
		Broker:        cfg.broker,
		SimURL:        cfg.simURL,
		TickMs:        cfg.tick.Milliseconds(),
		Every:         cfg.every,
		HTTPPort:      cfg.httpAddr,
		TelemetryPath: cfg.telemetryPath,
	})
	if connStatus != nil {
		tracker.SetMQTTConnected(connStatus.IsConnected())
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	publishSystem(publisher, operator.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	})

	// HTTP status server
	if cfg.httpAddr != "" {
		srv := web.New(cfg.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.httpAddr)
	}

	// Simulator bridge: the actuator and vehicle state source
	bridge, err := sim.Dial(cfg.simURL)
	if err != nil {
		return fmt.Errorf("dial simulator: %w", err)
	}
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Heading feed
	hsrv, err := heading.Listen(cfg.listen, store, tracker)
	if err != nil {
		return fmt.Errorf("listen heading feed: %w", err)
	}
	go func() {
		if err := hsrv.Serve(ctx); err != nil && ctx.Err() == nil {
			log.Printf("heading server: %v", err)
		}
	}()
	log.Printf("heading feed listening on %s", cfg.listen)

	// BLE acquisition. A failed or dropped link never stops the process:
	// throttle decays through the stall path and the operator can request
	// a fresh acquisition.
	mgr := ble.NewManager(ble.NewRealAdapter(), store, tracker, ble.Config{
		DeviceName:      cfg.device,
		DiscoveryBudget: cfg.scanBudget,
		ScanWindow:      cfg.scanWindow,
		ScanBackoff:     cfg.scanBackoff,
		MaxAttempts:     cfg.attempts,
		RetryDelay:      cfg.retryDelay,
	})
	mgr.OnStateChange = func(s ble.State, detail string) {
		tracker.SetLink(s.String(), detail)
		publishEvent(publisher, operator.Event{
			Timestamp: time.Now(),
			Kind:      "LINK",
			Link:      s.String(),
			Detail:    detail,
		})
	}
	reconnect := make(chan struct{}, 1)
	go func() {
		for {
			err := mgr.Run(ctx)
			if ctx.Err() != nil {
				return
			}
			log.Printf("ble: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-reconnect:
				log.Printf("ble: reconnect requested")
			}
		}
	}()

	// Ride log
	var sink control.TelemetrySink
	if cfg.telemetryPath != "" {
		logger, err := telemetry.Create(cfg.telemetryPath)
		if err != nil {
			return fmt.Errorf("create ride log: %w", err)
		}
		sink = logger
		log.Printf("ride log: %s", cfg.telemetryPath)
	}

	// Control loop
	sched := &control.Scheduler{
		Policy:    cfg.policy,
		Store:     store,
		Actuator:  bridge,
		Vehicle:   bridge,
		Telemetry: sink,
		Status:    tracker,
		Period:    cfg.tick,
		Every:     cfg.every,
		Ref1:      cfg.car1,
		Ref2:      cfg.car2,
	}
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("control: %v", err)
		}
	}()

	// Kill switch (optional)
	var kill <-chan struct{}
	if cfg.killPin >= 0 {
		button, err := killswitch.NewRealButton(cfg.killPin)
		if err != nil {
			log.Printf("kill switch unavailable: %v", err)
		} else {
			defer button.Close()
			kill = watchKillSwitch(ctx, button)
			log.Printf("kill switch on pin %d", cfg.killPin)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var heartbeatTick <-chan time.Time
	if cfg.heartbeat > 0 {
		ht := time.NewTicker(cfg.heartbeat)
		defer ht.Stop()
		heartbeatTick = ht.C
	}

	log.Printf("started: listen=%s device=%q sim=%s broker=%s tick=%v every=%d",
		cfg.listen, cfg.device, cfg.simURL, cfg.broker, cfg.tick, cfg.every)

	loopErr := runLoop(publisher, connStatus, tracker, commands, bridge, reconnect,
		time.Now, heartbeatTick, sigCh, kill)

	// Stop the scheduler and wait for its cleanup (neutralize + log flush)
	// before the bridge is closed.
	cancel()
	<-schedDone
	return loopErr
}

// simSideChannel is the non-control surface of the simulator bridge used by
// operator commands.
type simSideChannel interface {
	SwitchView(target string) error
	Replay(file string) error
	DestroyVehicles() error
}

// runLoop handles signals, operator commands, the kill switch, and
// heartbeats until shutdown. The control loop runs independently; this loop
// only decides when the process stops.
func runLoop(publisher operator.Publisher, connStatus operator.ConnectionStatus, tracker *status.Tracker, commands <-chan operator.Command, simc simSideChannel, reconnect chan<- struct{}, now func() time.Time, heartbeatTick <-chan time.Time, sig <-chan os.Signal, kill <-chan struct{}) error {
	shutdown := func(reason string) {
		if connStatus != nil {
			tracker.SetMQTTConnected(connStatus.IsConnected())
		}
		snap := tracker.Snapshot()
		publishSystem(publisher, operator.SystemEvent{
			Timestamp:  now(),
			Event:      "SHUTDOWN",
			Reason:     reason,
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
		})
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			shutdown(signalName)
			return nil

		case <-kill:
			log.Printf("kill switch pressed, shutting down")
			shutdown("KILL_SWITCH")
			return nil

		case <-heartbeatTick:
			if connStatus != nil {
				tracker.SetMQTTConnected(connStatus.IsConnected())
			}
			snap := tracker.Snapshot()
			publishSystem(publisher, operator.SystemEvent{
				Timestamp:  snap.Now,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			})

		case cmd := <-commands:
			switch cmd.Name {
			case "stop":
				log.Printf("operator stop command, shutting down")
				shutdown("OPERATOR")
				return nil
			case "camera":
				if err := simc.SwitchView(cmd.Target); err != nil {
					log.Printf("camera %q: %v", cmd.Target, err)
				}
			case "replay":
				if err := simc.Replay(cmd.File); err != nil {
					log.Printf("replay %q: %v", cmd.File, err)
				}
			case "destroy":
				if err := simc.DestroyVehicles(); err != nil {
					log.Printf("destroy: %v", err)
				}
			case "reconnect":
				select {
				case reconnect <- struct{}{}:
				default:
					// A reconnect is already pending.
				}
			default:
				log.Printf("unknown operator command %q", cmd.Name)
			}
		}
	}
}

// watchKillSwitch polls the button and closes the returned channel when it
// is pressed.
func watchKillSwitch(ctx context.Context, button killswitch.Button) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pressed, err := button.Pressed()
				if err != nil {
					log.Printf("kill switch: %v", err)
					continue
				}
				if pressed {
					close(ch)
					return
				}
			}
		}
	}()
	return ch
}

func publishSystem(p operator.Publisher, event operator.SystemEvent) {
	if p == nil {
		return
	}
	if err := p.PublishSystem(event); err != nil {
		log.Printf("publish %s: %v", event.Event, err)
	}
}

func publishEvent(p operator.Publisher, event operator.Event) {
	if p == nil {
		return
	}
	if err := p.PublishEvent(event); err != nil {
		log.Printf("publish %s: %v", event.Kind, err)
	}
}

// parsePoint parses "x,y,z" into a reference point.
func parsePoint(s string) (control.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return control.Point{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var vals [3]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return control.Point{}, fmt.Errorf("coordinate %d of %q: %w", i+1, s, err)
		}
		vals[i] = v
	}
	return control.Point{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}
