package status

import (
	"encoding/json"
	"strconv"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Hook          string     `json:"hook"`
	HookChangedAt string     `json:"hook_changed_at,omitempty"`
	LastDigit     *int       `json:"last_digit,omitempty"`
	InSession     bool       `json:"in_session"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"event_counts"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
// Digits is keyed by pulse count; counts that were never dialed are omitted.
type CountsJSON struct {
	OffHook           int            `json:"off_hook"`
	OnHook            int            `json:"on_hook"`
	Digits            int            `json:"digits"`
	PerDigit          map[string]int `json:"per_digit,omitempty"`
	AssistantSessions int            `json:"assistant_sessions"`
	AssistantRounds   int            `json:"assistant_rounds"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	HookPin        int    `json:"hook_pin"`
	DialPin        int    `json:"dial_pin"`
	SettleMs       int64  `json:"settle_ms"`
	QuietMs        int64  `json:"quiet_timeout_ms"`
	HeartbeatMs    int64  `json:"heartbeat_ms"`
	AssistantDigit int    `json:"assistant_digit"`
	Broker         string `json:"broker"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	hook := string(snap.Hook)
	if hook == "" {
		hook = "UNKNOWN"
	}

	inner := StatusInner{
		Hook:          hook,
		HookChangedAt: formatTime(snap.HookChangedAt),
		InSession:     snap.InSession,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			OffHook:           snap.Counts.OffHook,
			OnHook:            snap.Counts.OnHook,
			Digits:            snap.Counts.Digits,
			AssistantSessions: snap.Counts.AssistantSessions,
			AssistantRounds:   snap.Counts.AssistantRounds,
		},
		Config: ConfigJSON{
			HookPin:        snap.Config.HookPin,
			DialPin:        snap.Config.DialPin,
			SettleMs:       snap.Config.SettleMs,
			QuietMs:        snap.Config.QuietMs,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			AssistantDigit: snap.Config.AssistantDigit,
			Broker:         snap.Config.Broker,
		},
	}

	if !snap.LastDigitAt.IsZero() {
		d := snap.LastDigit
		inner.LastDigit = &d
	}
	for n, c := range snap.Counts.PerDigit {
		if c == 0 {
			continue
		}
		if inner.Counts.PerDigit == nil {
			inner.Counts.PerDigit = make(map[string]int)
		}
		inner.Counts.PerDigit[strconv.Itoa(n)] = c
	}
	return inner
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
