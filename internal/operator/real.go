package operator

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// RealClient talks to an actual MQTT broker. Events published while the
// connection is down are held in a ring buffer and replayed on reconnect.
type RealClient struct {
	client paho.Client

	mu  sync.Mutex
	buf *ringBuffer

	commands chan Command
}

// NewRealClient connects to the given broker and subscribes to the
// operator command topic.
func NewRealClient(broker string) (*RealClient, error) {
	c := &RealClient{
		buf:      newRingBuffer(256),
		commands: make(chan Command, 16),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("cyclebridge").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.onConnect)

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return c, nil
}

// onConnect runs on every (re)connect: it restores the command
// subscription and flushes messages buffered while disconnected.
func (c *RealClient) onConnect(client paho.Client) {
	token := client.Subscribe(TopicCommands, 1, c.handleCommand)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("operator: subscribe %s: %v", TopicCommands, token.Error())
	}

	c.mu.Lock()
	pending := c.buf.drainAll()
	c.mu.Unlock()

	if len(pending) > 0 {
		log.Printf("operator: replaying %d buffered messages", len(pending))
	}
	for _, msg := range pending {
		token := client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("operator: replay to %s: %v", msg.topic, token.Error())
		}
	}
}

func (c *RealClient) handleCommand(_ paho.Client, msg paho.Message) {
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		log.Printf("operator: %v", err)
		return
	}
	select {
	case c.commands <- cmd:
	default:
		log.Printf("operator: command channel full, dropping %q", cmd.Name)
	}
}

// Commands returns the channel of operator commands received from the broker.
func (c *RealClient) Commands() <-chan Command {
	return c.commands
}

// PublishEvent sends a ride event to the MQTT broker.
func (c *RealClient) PublishEvent(event Event) error {
	payload, err := FormatEventPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return c.publish(TopicEvents, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return c.publish(TopicSystem, 1, event.Retained, payload)
}

func (c *RealClient) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnected() {
		c.mu.Lock()
		c.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		c.mu.Unlock()
		return nil
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is active.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnected()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
