package monitor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/rotary-phone/internal/debounce"
	"github.com/sweeney/rotary-phone/internal/gpio"
	"github.com/sweeney/rotary-phone/internal/mailbox"
)

// dialInput is one entry in the dial monitor's inbox: a command, or a
// confirmed rising edge when pulse is set.
type dialInput struct {
	cmd   Command
	pulse bool
}

// DialMonitor turns dial pulses into digits while the handset is off hook.
//
// Commands and confirmed rising edges share one inbox, so each pulse is
// gated by the hook state in force when it was confirmed. The hook state is
// written only by HOOK_ON / HOOK_OFF commands. Completed digits go straight
// to the event mailbox.
type DialMonitor struct {
	line   gpio.Line
	inbox  *mailbox.Queue[dialInput]
	events *mailbox.Queue[Event]
	hook   HookState
	opts   options
	log    *slog.Logger
}

// NewDialMonitor creates a monitor for the dial line. initial is the
// presumed hook position until the first command arrives.
func NewDialMonitor(line gpio.Line, events *mailbox.Queue[Event], initial HookState, opts ...Option) *DialMonitor {
	o := buildOptions("dial", opts)
	return &DialMonitor{
		line:   line,
		inbox:  mailbox.New[dialInput](),
		events: events,
		hook:   initial,
		opts:   o,
		log:    o.logger,
	}
}

// Send queues a command. It reports false once the monitor has exited.
func (d *DialMonitor) Send(cmd Command) bool {
	return d.inbox.Put(dialInput{cmd: cmd})
}

// Run watches the dial until KILL. A line fault is returned as an error.
func (d *DialMonitor) Run() error {
	defer d.inbox.Close()

	w, err := debounce.New(d.line, gpio.EdgeRising, d.opts.settle, func(debounce.Edge) {
		d.inbox.Put(dialInput{pulse: true})
	})
	if err != nil {
		return fmt.Errorf("dial monitor: %w", err)
	}

	acc := NewAccumulator(d.opts.quiet, func(dg Digit) {
		d.log.Debug("digit complete", "pulses", int(dg))
		d.events.Put(DigitDialed(dg, time.Now()))
	})
	go acc.Run()

	stop := func() {
		if err := w.Close(); err != nil {
			d.log.Warn("close watcher", "error", err)
		}
		acc.Stop()
		<-acc.Done()
	}

	d.log.Info("dial monitor started", "hook", d.hook, "settle", d.opts.settle, "quiet_timeout", d.opts.quiet)

	var batch []dialInput
	for {
		select {
		case <-d.inbox.Wait():
		case err := <-w.Faults():
			stop()
			return fmt.Errorf("dial monitor: %w", err)
		}

		batch = batch[:0]
		for {
			in, ok := d.inbox.TryTake()
			if !ok {
				break
			}
			batch = append(batch, in)
		}

		// KILL anywhere in the batch wins; pulses ahead of it are dropped
		// with the partial digit.
		if hasKill(batch) {
			stop()
			d.log.Info("dial monitor exiting")
			return nil
		}

		for _, in := range batch {
			if in.pulse {
				d.gate(acc)
				continue
			}
			d.handleCommand(acc, in.cmd)
		}
	}
}

func hasKill(batch []dialInput) bool {
	for _, in := range batch {
		if !in.pulse && in.cmd == CommandKill {
			return true
		}
	}
	return false
}

func (d *DialMonitor) handleCommand(acc *Accumulator, cmd Command) {
	switch cmd {
	case CommandHookOn:
		if d.hook != OnHook {
			// A burst interrupted by hanging up expires unreported.
			acc.Discard()
		}
		d.hook = OnHook
	case CommandHookOff:
		d.hook = OffHook
	default:
		d.log.Warn("unknown command", "command", string(cmd))
	}
}

func (d *DialMonitor) gate(acc *Accumulator) {
	if d.hook != OffHook {
		d.log.Debug("ignoring pulse on hook")
		return
	}
	acc.Pulse()
}
