// Package status provides a thread-safe status tracker for the rotary-phone daemon.
// The coordinator writes to it; system events and heartbeats read snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/rotary-phone/internal/monitor"
)

// maxCountedDigit is the largest pulse count given its own counter.
const maxCountedDigit = 10

// Config contains daemon configuration for display.
type Config struct {
	HookPin        int
	DialPin        int
	SettleMs       int64
	QuietMs        int64
	HeartbeatMs    int64
	AssistantDigit int
	Broker         string
}

// Counts tracks what the phone has done since startup.
type Counts struct {
	OffHook           int
	OnHook            int
	Digits            int
	PerDigit          [maxCountedDigit + 1]int // index = pulse count
	AssistantSessions int
	AssistantRounds   int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and stays valid after the lock is released.
type Snapshot struct {
	Hook          monitor.HookState
	HookChangedAt time.Time
	LastDigit     int
	LastDigitAt   time.Time
	InSession     bool
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, initial hook
// state and config.
func NewTracker(startTime time.Time, hook monitor.HookState, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Hook:      hook,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetHook records a hook transition. Repeats of the current state are not counted.
func (t *Tracker) SetHook(state monitor.HookState, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state == t.snap.Hook {
		return
	}
	t.snap.Hook = state
	t.snap.HookChangedAt = at
	switch state {
	case monitor.OffHook:
		t.snap.Counts.OffHook++
	case monitor.OnHook:
		t.snap.Counts.OnHook++
	}
}

// RecordDigit counts a dialed digit.
func (t *Tracker) RecordDigit(d monitor.Digit, at time.Time) {
	t.mu.Lock()
	t.snap.LastDigit = int(d)
	t.snap.LastDigitAt = at
	t.snap.Counts.Digits++
	if d >= 0 && int(d) <= maxCountedDigit {
		t.snap.Counts.PerDigit[d]++
	}
	t.mu.Unlock()
}

// BeginSession marks an assistant session as running.
func (t *Tracker) BeginSession() {
	t.mu.Lock()
	t.snap.InSession = true
	t.snap.Counts.AssistantSessions++
	t.mu.Unlock()
}

// EndSession marks the running assistant session as complete after rounds interactions.
func (t *Tracker) EndSession(rounds int) {
	t.mu.Lock()
	t.snap.InSession = false
	t.snap.Counts.AssistantRounds += rounds
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
