// Package mailbox provides the unbounded FIFO queues that carry commands and
// events between the phone's goroutines.
package mailbox

import "sync"

// Queue is an unbounded, ordered, multi-producer/single-consumer queue.
//
// Producers never block. The single consumer waits on Wait() and drains with
// TryTake until it reports false. Close is called by the consumer when it
// stops reading; later Puts are refused so a sender can tell the receiver
// has gone away.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{} // buffered, size 1; coalesces wake-ups
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Put appends v. Safe for concurrent use.
// Returns false, dropping v, if the queue is closed.
func (q *Queue[T]) Put(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, v)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryTake removes and returns the front item without blocking.
func (q *Queue[T]) TryTake() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return v, true
}

// Wait returns a channel that becomes ready when items may be available.
// After a wake-up the consumer must drain with TryTake; a wake-up may find
// the queue empty.
func (q *Queue[T]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close refuses further Puts and wakes the consumer. Items already queued
// remain available to TryTake. Closing twice is a no-op.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
