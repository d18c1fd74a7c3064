package monitor

import (
	"log/slog"
	"time"

	"github.com/sweeney/rotary-phone/internal/debounce"
)

// DefaultHookWait bounds how long the hook monitor sleeps on its command
// mailbox before logging that it is alive.
const DefaultHookWait = 5 * time.Second

type options struct {
	settle time.Duration
	quiet  time.Duration
	wait   time.Duration
	logger *slog.Logger
}

// Option configures a monitor.
type Option func(*options)

// WithSettle sets the debounce settle delay.
func WithSettle(d time.Duration) Option {
	return func(o *options) { o.settle = d }
}

// WithQuietTimeout sets the pulse accumulator's quiet timeout (dial only).
func WithQuietTimeout(d time.Duration) Option {
	return func(o *options) { o.quiet = d }
}

// WithHookWait sets the hook monitor's liveness interval.
func WithHookWait(d time.Duration) Option {
	return func(o *options) { o.wait = d }
}

// WithLogger sets the logger; the component attribute is added by the monitor.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(component string, opts []Option) options {
	o := options{
		settle: debounce.DefaultSettle,
		quiet:  DefaultQuietTimeout,
		wait:   DefaultHookWait,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.wait <= 0 {
		o.wait = DefaultHookWait
	}
	o.logger = o.logger.With("component", component)
	return o
}
