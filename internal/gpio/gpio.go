// Package gpio provides edge-triggered GPIO input lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Level is the binary value of a line.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// EdgeKind selects which transitions a consumer cares about.
type EdgeKind int

const (
	EdgeRising EdgeKind = iota + 1
	EdgeFalling
	EdgeBoth
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeRising:
		return "RISING"
	case EdgeFalling:
		return "FALLING"
	case EdgeBoth:
		return "BOTH"
	}
	return "UNKNOWN"
}

// Matches reports whether a from->to transition passes the filter.
// A non-transition never matches.
func (k EdgeKind) Matches(from, to Level) bool {
	switch {
	case from == Low && to == High:
		return k == EdgeRising || k == EdgeBoth
	case from == High && to == Low:
		return k == EdgeFalling || k == EdgeBoth
	}
	return false
}

// Line is a digital input that can be read and that notifies a registered
// handler on level transitions.
type Line interface {
	// Read returns the current level of the line.
	Read() (Level, error)

	// Watch registers fn to be called on every transition matching edge.
	// fn may be called from any goroutine, concurrently with Read, and at
	// high frequency while contacts bounce. Only one handler is kept.
	Watch(edge EdgeKind, fn func()) error

	// Unwatch removes the registered handler.
	Unwatch() error

	// Close releases the line.
	Close() error
}

// Default pin definitions (BCM numbering).
// BOARD 12 and 16 on a 40-pin header.
const (
	DefaultPinHook = 18
	DefaultPinDial = 23
)

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"
