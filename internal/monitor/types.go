// Package monitor contains the hook and dial monitors: long-lived goroutines
// that own one switch line each and report what the handset is doing as
// events on the coordinator's mailbox.
package monitor

import (
	"fmt"
	"time"

	"github.com/sweeney/rotary-phone/internal/gpio"
)

// HookState is the position of the handset.
type HookState string

const (
	OnHook  HookState = "ON_HOOK"
	OffHook HookState = "OFF_HOOK"
)

// HookStateFor maps a hook line level to a hook state.
// The switch closes to ground when the handset rests in the cradle.
func HookStateFor(level gpio.Level) HookState {
	if level == gpio.High {
		return OffHook
	}
	return OnHook
}

// Digit is the number of pulses in one dialing gesture. A rotary dial sends
// N pulses for 1-9 and ten pulses for 0; the count is reported unmapped.
type Digit int

// Command is sent to a monitor's command mailbox.
type Command string

const (
	CommandKill    Command = "KILL"
	CommandHookOn  Command = "HOOK_ON"
	CommandHookOff Command = "HOOK_OFF"
)

// CommandFor returns the dial gate command that replicates state.
func CommandFor(state HookState) Command {
	if state == OffHook {
		return CommandHookOff
	}
	return CommandHookOn
}

// EventType identifies what an Event reports.
type EventType string

const (
	EventHookChanged EventType = "HOOK_CHANGED"
	EventDigitDialed EventType = "DIGIT_DIALED"
)

// Event is sent from the monitors to the coordinator.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Hook      HookState // set for EventHookChanged
	Digit     Digit     // set for EventDigitDialed
}

// HookChanged builds a hook event.
func HookChanged(state HookState, at time.Time) Event {
	return Event{Timestamp: at, Type: EventHookChanged, Hook: state}
}

// DigitDialed builds a digit event.
func DigitDialed(d Digit, at time.Time) Event {
	return Event{Timestamp: at, Type: EventDigitDialed, Digit: d}
}

func (e Event) String() string {
	switch e.Type {
	case EventHookChanged:
		return fmt.Sprintf("%s(%s)", e.Type, e.Hook)
	case EventDigitDialed:
		return fmt.Sprintf("%s(%d)", e.Type, e.Digit)
	}
	return string(e.Type)
}
