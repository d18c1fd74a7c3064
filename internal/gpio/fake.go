package gpio

import "sync"

// FakeLine is a test double whose level is driven by the test.
// Setting a level invokes the watch handler synchronously, as an
// interrupt would, when the transition matches the watched edge.
type FakeLine struct {
	mu      sync.Mutex
	level   Level
	edge    EdgeKind
	handler func()
	reads   int

	// readErr, if set, will be returned by Read(). See SetReadError.
	readErr error

	// WatchError, if set, will be returned by Watch().
	WatchError error

	closed bool
}

// NewFakeLine creates a FakeLine at the given level.
func NewFakeLine(level Level) *FakeLine {
	return &FakeLine{level: level}
}

// Read returns the current scripted level.
func (f *FakeLine) Read() (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return Low, f.readErr
	}
	return f.level, nil
}

// Watch registers the handler.
func (f *FakeLine) Watch(edge EdgeKind, fn func()) error {
	if f.WatchError != nil {
		return f.WatchError
	}
	f.mu.Lock()
	f.edge = edge
	f.handler = fn
	f.mu.Unlock()
	return nil
}

// Unwatch removes the handler.
func (f *FakeLine) Unwatch() error {
	f.mu.Lock()
	f.handler = nil
	f.mu.Unlock()
	return nil
}

// Close marks the line as closed.
func (f *FakeLine) Close() error {
	f.mu.Lock()
	f.closed = true
	f.handler = nil
	f.mu.Unlock()
	return nil
}

// Set drives the line to level and notifies the handler on a matching transition.
func (f *FakeLine) Set(level Level) {
	f.mu.Lock()
	from := f.level
	f.level = level
	fn := f.handler
	notify := fn != nil && f.edge.Matches(from, level)
	f.mu.Unlock()

	if notify {
		fn()
	}
}

// Bounce drives the line through levels in order with no delay between them,
// simulating contact chatter.
func (f *FakeLine) Bounce(levels ...Level) {
	for _, l := range levels {
		f.Set(l)
	}
}

// SetReadError makes subsequent reads fail with err (nil clears it).
func (f *FakeLine) SetReadError(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

// Watched reports whether a handler is registered.
func (f *FakeLine) Watched() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler != nil
}

// Reads returns how many times Read has been called.
func (f *FakeLine) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Closed reports whether Close was called.
func (f *FakeLine) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
