package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/rotary-phone/internal/mailbox"
	"github.com/sweeney/rotary-phone/internal/monitor"
	"github.com/sweeney/rotary-phone/internal/status"
)

const eventually = time.Second

// fakeMonitor records commands and exits on KILL or with the error sent on fail.
type fakeMonitor struct {
	cmds *mailbox.Queue[monitor.Command]
	fail chan error

	mu   sync.Mutex
	seen []monitor.Command
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{cmds: mailbox.New[monitor.Command](), fail: make(chan error, 1)}
}

func (m *fakeMonitor) Run() error {
	defer m.cmds.Close()
	for {
		select {
		case err := <-m.fail:
			return err
		case <-m.cmds.Wait():
		}
		for {
			cmd, ok := m.cmds.TryTake()
			if !ok {
				break
			}
			m.mu.Lock()
			m.seen = append(m.seen, cmd)
			m.mu.Unlock()
			if cmd == monitor.CommandKill {
				return nil
			}
		}
	}
}

func (m *fakeMonitor) Send(cmd monitor.Command) bool { return m.cmds.Put(cmd) }

func (m *fakeMonitor) commands() []monitor.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]monitor.Command(nil), m.seen...)
}

// scriptedAssistant returns answers in order, then false.
type scriptedAssistant struct {
	answers []bool
	err     error
	gate    chan struct{} // if set, the first round waits on it

	mu    sync.Mutex
	calls int
}

func (a *scriptedAssistant) Interact(ctx context.Context) (bool, error) {
	a.mu.Lock()
	n := a.calls
	a.calls++
	a.mu.Unlock()

	if n == 0 && a.gate != nil {
		<-a.gate
	}
	if a.err != nil {
		return false, a.err
	}
	if n < len(a.answers) {
		return a.answers[n], nil
	}
	return false, nil
}

func (a *scriptedAssistant) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type recordingSink struct {
	mu     sync.Mutex
	events []monitor.Event
	err    error
}

func (s *recordingSink) Publish(ev monitor.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) Events() []monitor.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]monitor.Event(nil), s.events...)
}

type harness struct {
	hook, dial *fakeMonitor
	events     *mailbox.Queue[monitor.Event]
	sink       *recordingSink
	tracker    *status.Tracker
	cancel     context.CancelFunc
	finished   chan struct{}
	err        error // valid once finished is closed
}

func startCoordinator(t *testing.T, a Assistant) *harness {
	t.Helper()
	h := &harness{
		hook:     newFakeMonitor(),
		dial:     newFakeMonitor(),
		events:   mailbox.New[monitor.Event](),
		sink:     &recordingSink{},
		tracker:  status.NewTracker(time.Now(), monitor.OnHook, status.Config{}),
		finished: make(chan struct{}),
	}
	c, err := New(Config{
		Hook:           h.hook,
		Dial:           h.dial,
		Events:         h.events,
		InitialHook:    monitor.OnHook,
		Assistant:      a,
		AssistantDigit: DefaultAssistantDigit,
		Sink:           h.sink,
		Tracker:        h.tracker,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.err = c.Run(ctx)
		close(h.finished)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.finished:
		case <-time.After(eventually):
		}
	})
	return h
}

func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case <-h.finished:
		return h.err
	case <-time.After(eventually):
		t.Fatal("coordinator did not stop")
		return nil
	}
}

func digits(events []monitor.Event) []monitor.Digit {
	var out []monitor.Digit
	for _, e := range events {
		if e.Type == monitor.EventDigitDialed {
			out = append(out, e.Digit)
		}
	}
	return out
}

func TestNewRequiresMonitorsAndEvents(t *testing.T) {
	_, err := New(Config{Events: mailbox.New[monitor.Event]()})
	assert.Error(t, err)

	_, err = New(Config{Hook: newFakeMonitor(), Dial: newFakeMonitor()})
	assert.Error(t, err)
}

func TestHookChangePushedToDialMonitor(t *testing.T) {
	h := startCoordinator(t, &scriptedAssistant{})

	now := time.Now()
	h.events.Put(monitor.HookChanged(monitor.OffHook, now))
	h.events.Put(monitor.HookChanged(monitor.OnHook, now.Add(time.Second)))

	assert.Eventually(t, func() bool { return len(h.dial.commands()) == 2 }, eventually, 5*time.Millisecond)
	assert.Equal(t, []monitor.Command{monitor.CommandHookOff, monitor.CommandHookOn}, h.dial.commands())
	assert.Empty(t, h.hook.commands(), "hook monitor gets no hook commands")

	assert.Eventually(t, func() bool { return len(h.sink.Events()) == 2 }, eventually, 5*time.Millisecond)
	snap := h.tracker.Snapshot()
	assert.Equal(t, monitor.OnHook, snap.Hook)
	assert.Equal(t, 1, snap.Counts.OffHook)
}

func TestDigitsForwardedInOrder(t *testing.T) {
	h := startCoordinator(t, &scriptedAssistant{})

	for _, d := range []monitor.Digit{3, 10, 7} {
		h.events.Put(monitor.DigitDialed(d, time.Now()))
	}

	assert.Eventually(t, func() bool { return len(h.sink.Events()) == 3 }, eventually, 5*time.Millisecond)
	assert.Equal(t, []monitor.Digit{3, 10, 7}, digits(h.sink.Events()))
	assert.Equal(t, 3, h.tracker.Snapshot().Counts.Digits)
}

func TestTriggerDigitRunsAssistantUntilFalse(t *testing.T) {
	a := &scriptedAssistant{answers: []bool{true, true, false}}
	h := startCoordinator(t, a)

	h.events.Put(monitor.DigitDialed(DefaultAssistantDigit, time.Now()))
	h.events.Put(monitor.DigitDialed(5, time.Now()))

	assert.Eventually(t, func() bool { return len(h.sink.Events()) == 1 }, eventually, 5*time.Millisecond)
	assert.Equal(t, 3, a.Calls())
	assert.Equal(t, []monitor.Digit{5}, digits(h.sink.Events()), "trigger digit is not forwarded")

	snap := h.tracker.Snapshot()
	assert.False(t, snap.InSession)
	assert.Equal(t, 1, snap.Counts.AssistantSessions)
	assert.Equal(t, 3, snap.Counts.AssistantRounds)
}

func TestEventsQueueDuringAssistant(t *testing.T) {
	gate := make(chan struct{})
	a := &scriptedAssistant{gate: gate}
	h := startCoordinator(t, a)

	h.events.Put(monitor.DigitDialed(DefaultAssistantDigit, time.Now()))
	require.Eventually(t, func() bool { return a.Calls() == 1 }, eventually, 5*time.Millisecond)

	h.events.Put(monitor.HookChanged(monitor.OffHook, time.Now()))
	h.events.Put(monitor.DigitDialed(4, time.Now()))
	h.events.Put(monitor.DigitDialed(2, time.Now()))

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, h.sink.Events(), "loop is blocked while the assistant runs")
	assert.Empty(t, h.dial.commands())
	assert.True(t, h.tracker.Snapshot().InSession)

	close(gate)

	require.Eventually(t, func() bool { return len(h.sink.Events()) == 3 }, eventually, 5*time.Millisecond)
	got := h.sink.Events()
	assert.Equal(t, monitor.EventHookChanged, got[0].Type)
	assert.Equal(t, []monitor.Digit{4, 2}, digits(got))
	assert.Eventually(t, func() bool { return len(h.dial.commands()) == 1 }, eventually, 5*time.Millisecond)
	assert.Equal(t, []monitor.Command{monitor.CommandHookOff}, h.dial.commands())
}

func TestAssistantErrorEndsSession(t *testing.T) {
	a := &scriptedAssistant{answers: []bool{true, true}, err: errors.New("microphone unplugged")}
	h := startCoordinator(t, a)

	h.events.Put(monitor.DigitDialed(DefaultAssistantDigit, time.Now()))
	h.events.Put(monitor.DigitDialed(8, time.Now()))

	assert.Eventually(t, func() bool { return len(h.sink.Events()) == 1 }, eventually, 5*time.Millisecond)
	assert.Equal(t, 1, a.Calls(), "an error is treated as the end of the session")
	assert.Equal(t, 1, h.tracker.Snapshot().Counts.AssistantRounds)
}

func TestTriggerWithoutAssistant(t *testing.T) {
	h := startCoordinator(t, nil)

	h.events.Put(monitor.DigitDialed(DefaultAssistantDigit, time.Now()))
	h.events.Put(monitor.DigitDialed(1, time.Now()))

	assert.Eventually(t, func() bool { return len(h.sink.Events()) == 1 }, eventually, 5*time.Millisecond)
	assert.Zero(t, h.tracker.Snapshot().Counts.AssistantSessions)
}

func TestSinkErrorDoesNotStopLoop(t *testing.T) {
	h := startCoordinator(t, &scriptedAssistant{})
	h.sink.mu.Lock()
	h.sink.err = errors.New("broker unreachable")
	h.sink.mu.Unlock()

	h.events.Put(monitor.DigitDialed(6, time.Now()))
	h.events.Put(monitor.DigitDialed(9, time.Now()))

	assert.Eventually(t, func() bool { return len(h.sink.Events()) == 2 }, eventually, 5*time.Millisecond)
}

func TestUnknownEventIgnored(t *testing.T) {
	h := startCoordinator(t, &scriptedAssistant{})

	h.events.Put(monitor.Event{Type: "RING", Timestamp: time.Now()})
	h.events.Put(monitor.DigitDialed(2, time.Now()))

	assert.Eventually(t, func() bool { return len(h.sink.Events()) == 1 }, eventually, 5*time.Millisecond)
}

func TestCancelKillsBothMonitors(t *testing.T) {
	h := startCoordinator(t, &scriptedAssistant{})

	require.NoError(t, h.stop(t))
	assert.Equal(t, []monitor.Command{monitor.CommandKill}, h.hook.commands())
	assert.Equal(t, []monitor.Command{monitor.CommandKill}, h.dial.commands())
	assert.True(t, h.events.Closed())
	assert.False(t, h.dial.Send(monitor.CommandHookOff), "no commands after termination")
}

func TestMonitorFaultStopsCoordinator(t *testing.T) {
	h := startCoordinator(t, &scriptedAssistant{})
	fault := errors.New("read line: device gone")

	h.dial.fail <- fault

	select {
	case <-h.finished:
		require.Error(t, h.err)
		assert.ErrorIs(t, h.err, fault)
	case <-time.After(eventually):
		t.Fatal("coordinator did not stop on monitor fault")
	}
	assert.Equal(t, []monitor.Command{monitor.CommandKill}, h.hook.commands(), "surviving monitor is killed")
	assert.Empty(t, h.dial.commands())
}
