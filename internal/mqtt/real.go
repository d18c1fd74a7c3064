package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/rotary-phone/internal/monitor"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are held in an offline buffer and sent
// when the client reconnects.
type RealPublisher struct {
	client paho.Client
	log    *slog.Logger

	mu       sync.Mutex
	buf      *offlineBuffer
	onStatus func(connected bool)
}

// NewRealPublisher creates a publisher for the given broker. The broker
// being unreachable at startup is not an error: the client keeps retrying
// in the background and messages are buffered until it connects.
func NewRealPublisher(broker, clientID string, logger *slog.Logger) (*RealPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &RealPublisher{
		log: logger.With("component", "mqtt", "broker", broker),
		buf: newOfflineBuffer(defaultBufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "CONNECTION_LOST"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.handleConnectionLost(err) })

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.Warn("broker not reachable yet, buffering until connected", "timeout", connectTimeout)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// newPublisher wraps an existing client. Used by tests.
func newPublisher(client paho.Client, logger *slog.Logger) *RealPublisher {
	return &RealPublisher{client: client, log: logger, buf: newOfflineBuffer(defaultBufferSize)}
}

// Publish sends a phone event to the MQTT broker.
func (p *RealPublisher) Publish(event monitor.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(pendingMessage{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) so lifecycle events survive a flaky link
	return p.send(pendingMessage{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(msg pendingMessage) error {
	// The check and the push share the lock with flush, so a message is
	// either sent directly or drained by the connect handler.
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.buf.push(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

// OnConnectionChange registers fn to be called with the connection state
// whenever the client connects or loses its connection. fn is called once
// immediately with the current state.
func (p *RealPublisher) OnConnectionChange(fn func(connected bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStatus = fn
	if fn != nil {
		fn(p.client.IsConnectionOpen())
	}
}

func (p *RealPublisher) setStatus(connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onStatus != nil {
		p.onStatus(connected)
	}
}

func (p *RealPublisher) handleConnect() {
	p.setStatus(true)
	p.flush()
}

func (p *RealPublisher) handleConnectionLost(err error) {
	p.log.Warn("connection lost", "error", err)
	p.setStatus(false)
}

// flush sends everything buffered while offline. It runs from the
// client's connect handler so it must not block on delivery.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs := p.buf.drain()
	p.mu.Unlock()

	if len(msgs) > 0 {
		p.log.Info("connected, flushing buffered messages", "count", len(msgs))
	} else {
		p.log.Info("connected")
	}
	for _, m := range msgs {
		p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

// Buffered returns how many messages are waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
