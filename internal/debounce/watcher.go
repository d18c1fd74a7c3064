// Package debounce turns the raw, chattering transition notifications of a
// mechanical switch line into confirmed edges.
package debounce

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sweeney/rotary-phone/internal/gpio"
)

// DefaultSettle is how long a contact is given to stop bouncing before its
// level is trusted.
const DefaultSettle = 10 * time.Millisecond

// Edge is a confirmed transition.
type Edge struct {
	Kind  gpio.EdgeKind // EdgeRising or EdgeFalling
	Level gpio.Level    // level read at confirmation
	Time  time.Time
}

// Watcher confirms transitions on one line.
//
// A raw notification arms a one-shot settle timer unless one is already
// armed, in which case the notification is dropped. When the timer fires the
// line is read once: if the level differs from the last confirmed level and
// the direction passes the filter, the subscriber is called. Only one
// confirmation cycle runs at a time, so last is never read concurrently.
type Watcher struct {
	line   gpio.Line
	filter gpio.EdgeKind
	settle time.Duration
	onEdge func(Edge)

	initial gpio.Level
	last    gpio.Level // owned by the active confirmation cycle
	pending atomic.Bool
	closed  atomic.Bool
	timer   atomic.Pointer[time.Timer]
	faults  chan error
}

// New reads the line's initial level and starts watching it.
// settle <= 0 selects DefaultSettle. onEdge is called from a timer goroutine
// and must not block.
func New(line gpio.Line, filter gpio.EdgeKind, settle time.Duration, onEdge func(Edge)) (*Watcher, error) {
	if settle <= 0 {
		settle = DefaultSettle
	}

	lvl, err := line.Read()
	if err != nil {
		return nil, fmt.Errorf("initial read: %w", err)
	}

	w := &Watcher{
		line:    line,
		filter:  filter,
		settle:  settle,
		onEdge:  onEdge,
		initial: lvl,
		last:    lvl,
		faults:  make(chan error, 1),
	}

	// Every raw transition starts a cycle; the filter applies at confirmation.
	if err := line.Watch(gpio.EdgeBoth, w.notify); err != nil {
		return nil, fmt.Errorf("watch line: %w", err)
	}
	return w, nil
}

// Initial returns the level read when the watcher was created. Edges are
// confirmed relative to it.
func (w *Watcher) Initial() gpio.Level {
	return w.initial
}

// Faults delivers the first line read failure seen while confirming.
// After a fault the watcher stops confirming.
func (w *Watcher) Faults() <-chan error {
	return w.faults
}

// Close stops watching. A settle timer already running finishes without
// effect.
func (w *Watcher) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	if t := w.timer.Load(); t != nil {
		t.Stop()
	}
	if err := w.line.Unwatch(); err != nil {
		return fmt.Errorf("unwatch line: %w", err)
	}
	return nil
}

// notify is the raw transition handler. It never blocks.
func (w *Watcher) notify() {
	if w.closed.Load() {
		return
	}
	if !w.pending.CompareAndSwap(false, true) {
		return
	}
	if t := w.timer.Load(); t != nil {
		t.Reset(w.settle)
		return
	}
	w.timer.Store(time.AfterFunc(w.settle, w.confirm))
}

func (w *Watcher) confirm() {
	if w.closed.Load() {
		return
	}

	lvl, err := w.line.Read()
	if err != nil {
		// pending stays set: a dead line is not read again.
		select {
		case w.faults <- fmt.Errorf("confirm read: %w", err):
		default:
		}
		return
	}

	prev := w.last
	w.last = lvl
	if w.filter.Matches(prev, lvl) && w.onEdge != nil {
		kind := gpio.EdgeRising
		if lvl == gpio.Low {
			kind = gpio.EdgeFalling
		}
		w.onEdge(Edge{Kind: kind, Level: lvl, Time: time.Now()})
	}
	w.pending.Store(false)
}
