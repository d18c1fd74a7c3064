package monitor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/rotary-phone/internal/debounce"
	"github.com/sweeney/rotary-phone/internal/gpio"
	"github.com/sweeney/rotary-phone/internal/mailbox"
)

// HookMonitor reports the handset being lifted or replaced.
type HookMonitor struct {
	line   gpio.Line
	cmds   *mailbox.Queue[Command]
	events *mailbox.Queue[Event]
	hook   HookState
	opts   options
	log    *slog.Logger
}

// NewHookMonitor creates a monitor for the hook switch line. initial is the
// hook position the rest of the system presumes; if the line reads
// differently when Run starts watching it, a HookChanged is reported.
func NewHookMonitor(line gpio.Line, events *mailbox.Queue[Event], initial HookState, opts ...Option) *HookMonitor {
	o := buildOptions("hook", opts)
	return &HookMonitor{
		line:   line,
		cmds:   mailbox.New[Command](),
		events: events,
		hook:   initial,
		opts:   o,
		log:    o.logger,
	}
}

// Send queues a command. It reports false once the monitor has exited.
func (h *HookMonitor) Send(cmd Command) bool {
	return h.cmds.Put(cmd)
}

// Run watches the hook switch until KILL. A line fault is returned as an error.
func (h *HookMonitor) Run() error {
	defer h.cmds.Close()

	edges := mailbox.New[debounce.Edge]()
	defer edges.Close()

	w, err := debounce.New(h.line, gpio.EdgeBoth, h.opts.settle, func(e debounce.Edge) {
		edges.Put(e)
	})
	if err != nil {
		return fmt.Errorf("hook monitor: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			h.log.Warn("close watcher", "error", err)
		}
	}()

	// The handset may have moved since the presumed position was read.
	if state := HookStateFor(w.Initial()); state != h.hook {
		h.log.Info("hook moved before watching started", "presumed", h.hook, "state", state)
		h.events.Put(HookChanged(state, time.Now()))
	}

	alive := time.NewTicker(h.opts.wait)
	defer alive.Stop()

	h.log.Info("hook monitor started", "settle", h.opts.settle)

	for {
		select {
		case <-h.cmds.Wait():
		case <-edges.Wait():
		case err := <-w.Faults():
			return fmt.Errorf("hook monitor: %w", err)
		case <-alive.C:
			h.log.Debug("hook monitor alive")
			continue
		}

		if h.handleCommands() {
			h.log.Info("hook monitor exiting")
			return nil
		}

		for {
			e, ok := edges.TryTake()
			if !ok {
				break
			}
			state := HookStateFor(e.Level)
			h.log.Debug("hook edge", "edge", e.Kind, "state", state)
			h.events.Put(HookChanged(state, e.Time))
		}
	}
}

// handleCommands drains the command mailbox and reports whether KILL was seen.
func (h *HookMonitor) handleCommands() bool {
	for {
		cmd, ok := h.cmds.TryTake()
		if !ok {
			return false
		}
		if cmd == CommandKill {
			return true
		}
		h.log.Warn("unknown command", "command", string(cmd))
	}
}
