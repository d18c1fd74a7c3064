// Package mqtt publishes phone events to an MQTT broker, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/rotary-phone/internal/monitor"
)

// Topic is the MQTT topic for hook and digit events.
const Topic = "phone/rotary/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "phone/rotary/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a phone event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event monitor.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "FAULT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Phone PhonePayload `json:"phone"`
}

// PhonePayload contains the event details. Hook is set for hook changes,
// Digit for dialed digits.
type PhonePayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Hook      string `json:"hook,omitempty"`
	Digit     *int   `json:"digit,omitempty"`
}

// FormatPayload creates the JSON payload for a phone event.
func FormatPayload(event monitor.Event) ([]byte, error) {
	p := PhonePayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Event:     string(event.Type),
	}
	switch event.Type {
	case monitor.EventHookChanged:
		p.Hook = string(event.Hook)
	case monitor.EventDigitDialed:
		d := int(event.Digit)
		p.Digit = &d
	}
	return json.Marshal(Payload{Phone: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
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
