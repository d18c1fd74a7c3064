// Package coordinator is the single consumer of phone events. It owns the
// canonical hook state, keeps the dial monitor's gate in step with it and
// decides whether a digit starts an assistant session or is forwarded.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/rotary-phone/internal/mailbox"
	"github.com/sweeney/rotary-phone/internal/monitor"
	"github.com/sweeney/rotary-phone/internal/status"
)

// DefaultAssistantDigit is the digit that starts an assistant session.
// No pulse burst counts to zero, so with the default the assistant is
// never started from the dial. A dialed "0" arrives as 10.
const DefaultAssistantDigit = 0

// Monitor is a hardware monitor task that accepts commands.
type Monitor interface {
	Run() error
	Send(cmd monitor.Command) bool
}

// Assistant performs one round of voice interaction and reports whether
// the conversation continues.
type Assistant interface {
	Interact(ctx context.Context) (bool, error)
}

// Sink receives every forwarded event.
type Sink interface {
	Publish(event monitor.Event) error
}

// Config wires a Coordinator. Hook, Dial and Events are required.
type Config struct {
	Hook   Monitor
	Dial   Monitor
	Events *mailbox.Queue[monitor.Event]

	// InitialHook is the hook position read at startup.
	InitialHook monitor.HookState

	Assistant      Assistant
	AssistantDigit int

	Sink    Sink            // optional
	Tracker *status.Tracker // optional
	Logger  *slog.Logger
}

// Coordinator merges hook and digit events from both monitors.
type Coordinator struct {
	hookMon   Monitor
	dialMon   Monitor
	events    *mailbox.Queue[monitor.Event]
	hook      monitor.HookState
	assistant Assistant
	trigger   monitor.Digit
	sink      Sink
	tracker   *status.Tracker
	log       *slog.Logger
}

// New validates cfg and returns a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Hook == nil || cfg.Dial == nil {
		return nil, errors.New("coordinator: hook and dial monitors are required")
	}
	if cfg.Events == nil {
		return nil, errors.New("coordinator: event mailbox is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		hookMon:   cfg.Hook,
		dialMon:   cfg.Dial,
		events:    cfg.Events,
		hook:      cfg.InitialHook,
		assistant: cfg.Assistant,
		trigger:   monitor.Digit(cfg.AssistantDigit),
		sink:      cfg.Sink,
		tracker:   cfg.Tracker,
		log:       logger.With("component", "coordinator"),
	}, nil
}

// Run starts both monitors and processes events until ctx is cancelled
// or a monitor fails. Both monitors are killed and waited for before Run
// returns. A monitor fault is returned; a cancelled ctx is not an error.
func (c *Coordinator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.hookMon.Run() })
	g.Go(func() error { return c.dialMon.Run() })

	c.log.Info("coordinator started", "hook", c.hook, "assistant_digit", int(c.trigger))
	c.loop(gctx)

	c.kill("hook", c.hookMon)
	c.kill("dial", c.dialMon)
	err := g.Wait()
	c.events.Close()

	if err != nil {
		return fmt.Errorf("monitor failed: %w", err)
	}
	c.log.Info("coordinator stopped")
	return nil
}

func (c *Coordinator) kill(name string, m Monitor) {
	if !m.Send(monitor.CommandKill) {
		c.log.Debug("monitor already exited", "monitor", name)
	}
}

func (c *Coordinator) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.events.Wait():
		}

		for ctx.Err() == nil {
			ev, ok := c.events.TryTake()
			if !ok {
				break
			}
			c.handle(ctx, ev)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, ev monitor.Event) {
	switch ev.Type {
	case monitor.EventHookChanged:
		c.hook = ev.Hook
		if !c.dialMon.Send(monitor.CommandFor(ev.Hook)) {
			c.log.Warn("dial monitor gone, hook state not delivered", "hook", ev.Hook)
		}
		if c.tracker != nil {
			c.tracker.SetHook(ev.Hook, ev.Timestamp)
		}
		c.log.Info("hook changed", "hook", ev.Hook)
		c.forward(ev)

	case monitor.EventDigitDialed:
		if c.tracker != nil {
			c.tracker.RecordDigit(ev.Digit, ev.Timestamp)
		}
		if ev.Digit == c.trigger {
			c.converse(ctx)
			return
		}
		c.log.Info("digit dialed", "digit", int(ev.Digit))
		c.forward(ev)

	default:
		c.log.Warn("unknown event", "type", string(ev.Type))
	}
}

func (c *Coordinator) forward(ev monitor.Event) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Publish(ev); err != nil {
		c.log.Warn("forward event", "event", ev.String(), "error", err)
	}
}

// converse runs assistant rounds until one reports the conversation is
// over. Events arriving meanwhile wait in the mailbox.
func (c *Coordinator) converse(ctx context.Context) {
	if c.assistant == nil {
		c.log.Warn("assistant digit dialed but no assistant configured")
		return
	}

	c.log.Info("assistant session started")
	if c.tracker != nil {
		c.tracker.BeginSession()
	}

	rounds := 0
	for ctx.Err() == nil {
		more, err := c.assistant.Interact(ctx)
		rounds++
		if err != nil {
			c.log.Warn("assistant failed, ending session", "round", rounds, "error", err)
			break
		}
		if !more {
			break
		}
	}

	if c.tracker != nil {
		c.tracker.EndSession(rounds)
	}
	c.log.Info("assistant session ended", "rounds", rounds, "queued", c.events.Len())
}
