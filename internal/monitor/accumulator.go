package monitor

import (
	"sync"
	"time"
)

// DefaultQuietTimeout is the gap after which no more pulses of the current
// digit are expected. A dial pulses at about 10 pps, so pulses inside one
// digit are roughly 100ms apart and digits are separated by the hand
// winding the dial again.
const DefaultQuietTimeout = 150 * time.Millisecond

// Accumulator groups pulses arriving less than the quiet timeout apart into
// a single Digit.
//
// The count and the timer are owned by the Run goroutine; Pulse, Discard
// and Stop only send to it. A burst still being counted when Stop is called
// is dropped.
type Accumulator struct {
	quiet time.Duration
	emit  func(Digit)

	pulses   chan struct{}
	discard  chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewAccumulator creates an idle accumulator. quiet <= 0 selects
// DefaultQuietTimeout. emit is called from the Run goroutine.
func NewAccumulator(quiet time.Duration, emit func(Digit)) *Accumulator {
	if quiet <= 0 {
		quiet = DefaultQuietTimeout
	}
	return &Accumulator{
		quiet:   quiet,
		emit:    emit,
		pulses:  make(chan struct{}),
		discard: make(chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run counts pulses until Stop is called.
func (a *Accumulator) Run() {
	defer close(a.done)

	var (
		count   int
		dropped bool // current burst is counted out but not emitted
		timer   *time.Timer
		expired <-chan time.Time // nil while idle
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-a.stop:
			return

		case <-a.pulses:
			count++
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(a.quiet)
			expired = timer.C

		case <-a.discard:
			if expired != nil {
				dropped = true
			}

		case <-expired:
			// Stop wins over an expiry that lands at the same time.
			select {
			case <-a.stop:
				return
			default:
			}
			if !dropped {
				a.emit(Digit(count))
			}
			count = 0
			dropped = false
			expired = nil
		}
	}
}

// Pulse records one pulse. It returns once the Run goroutine has taken it,
// or immediately if the accumulator has stopped.
func (a *Accumulator) Pulse() {
	select {
	case a.pulses <- struct{}{}:
	case <-a.done:
	}
}

// Discard marks the burst being counted, if any, so that it expires without
// being emitted. Pulses that extend the burst are dropped with it.
func (a *Accumulator) Discard() {
	select {
	case a.discard <- struct{}{}:
	case <-a.done:
	}
}

// Stop asks Run to return. Wait on Done for it to finish.
func (a *Accumulator) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// Done is closed when Run has returned.
func (a *Accumulator) Done() <-chan struct{} {
	return a.done
}
