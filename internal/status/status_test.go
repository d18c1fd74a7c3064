package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/rotary-phone/internal/monitor"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{HookPin: 18, DialPin: 23, SettleMs: 10, QuietMs: 150, Broker: "tcp://localhost:1883"}
	tr := NewTracker(start, monitor.OnHook, cfg)

	snap := tr.Snapshot()
	assert.True(t, snap.StartTime.Equal(start))
	assert.Equal(t, monitor.OnHook, snap.Hook)
	assert.Equal(t, 18, snap.Config.HookPin)
	assert.False(t, snap.MQTTConnected)
	assert.False(t, snap.InSession)
	assert.Zero(t, snap.Counts.Digits)
}

func TestSetHookCountsTransitionsOnly(t *testing.T) {
	tr := NewTracker(time.Now(), monitor.OnHook, Config{})
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tr.SetHook(monitor.OnHook, at) // no change
	tr.SetHook(monitor.OffHook, at)
	tr.SetHook(monitor.OffHook, at.Add(time.Second)) // repeat
	tr.SetHook(monitor.OnHook, at.Add(2*time.Second))

	snap := tr.Snapshot()
	assert.Equal(t, monitor.OnHook, snap.Hook)
	assert.Equal(t, 1, snap.Counts.OffHook)
	assert.Equal(t, 1, snap.Counts.OnHook)
	assert.True(t, snap.HookChangedAt.Equal(at.Add(2*time.Second)))
}

func TestRecordDigit(t *testing.T) {
	tr := NewTracker(time.Now(), monitor.OffHook, Config{})
	at := time.Now()

	tr.RecordDigit(3, at)
	tr.RecordDigit(10, at)
	tr.RecordDigit(3, at)
	tr.RecordDigit(14, at) // counted in total only

	snap := tr.Snapshot()
	assert.Equal(t, 4, snap.Counts.Digits)
	assert.Equal(t, 2, snap.Counts.PerDigit[3])
	assert.Equal(t, 1, snap.Counts.PerDigit[10])
	assert.Equal(t, 14, snap.LastDigit)
}

func TestAssistantSession(t *testing.T) {
	tr := NewTracker(time.Now(), monitor.OffHook, Config{})

	tr.BeginSession()
	assert.True(t, tr.Snapshot().InSession)

	tr.EndSession(3)
	snap := tr.Snapshot()
	assert.False(t, snap.InSession)
	assert.Equal(t, 1, snap.Counts.AssistantSessions)
	assert.Equal(t, 3, snap.Counts.AssistantRounds)
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), monitor.OnHook, Config{})

	tr.SetMQTTConnected(true)
	assert.True(t, tr.Snapshot().MQTTConnected)

	tr.SetMQTTConnected(false)
	assert.False(t, tr.Snapshot().MQTTConnected)
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), monitor.OnHook, Config{})
	tr.RecordDigit(2, time.Now())

	snap := tr.Snapshot()
	tr.RecordDigit(2, time.Now())

	assert.Equal(t, 1, snap.Counts.PerDigit[2], "earlier snapshot must not change")
	assert.Equal(t, 2, tr.Snapshot().Counts.PerDigit[2])
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Now().Add(-90 * time.Second)
	tr := NewTracker(start, monitor.OnHook, Config{})

	up := tr.Snapshot().Uptime()
	assert.GreaterOrEqual(t, up, 90*time.Second)
	assert.Less(t, up, 95*time.Second)
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), monitor.OnHook, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tr.RecordDigit(monitor.Digit(j%11), time.Now())
				tr.SetMQTTConnected(j%2 == 0)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = tr.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, tr.Snapshot().Counts.Digits)
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, monitor.OnHook, Config{HookPin: 18, DialPin: 23, AssistantDigit: 0, Broker: "tcp://b:1883"})
	tr.SetHook(monitor.OffHook, start.Add(time.Minute))
	tr.RecordDigit(4, start.Add(2*time.Minute))
	tr.SetMQTTConnected(true)

	data := FormatStatusEvent(tr.Snapshot(), "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	require.NoError(t, json.Unmarshal(data, &parsed))
	s := parsed.Status
	assert.Equal(t, "SHUTDOWN", s.Event)
	assert.Equal(t, "SIGTERM", s.Reason)
	assert.Equal(t, "OFF_HOOK", s.Hook)
	assert.Equal(t, "2026-01-01T00:01:00Z", s.HookChangedAt)
	require.NotNil(t, s.LastDigit)
	assert.Equal(t, 4, *s.LastDigit)
	assert.Equal(t, map[string]int{"4": 1}, s.Counts.PerDigit)
	assert.Equal(t, 1, s.Counts.OffHook)
	assert.True(t, s.MQTT.Connected)
	assert.Equal(t, "tcp://b:1883", s.MQTT.Broker)
	assert.Equal(t, 23, s.Config.DialPin)
	assert.Equal(t, "2026-01-01T00:00:00Z", s.StartTime)
}

func TestFormatStatusEventOmitsEmptyFields(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})

	data := FormatStatusEvent(tr.Snapshot(), "STARTUP", "")

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	s := raw["status"]
	assert.Equal(t, "UNKNOWN", s["hook"])
	assert.NotContains(t, s, "reason")
	assert.NotContains(t, s, "last_digit")
	assert.NotContains(t, s, "hook_changed_at")
	assert.NotContains(t, s["event_counts"], "per_digit")
}
