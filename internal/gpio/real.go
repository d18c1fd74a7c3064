//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// consumer is the label shown for requested lines in gpioinfo.
const consumer = "rotary-phone"

// RealChip opens lines on an actual GPIO chip using the Linux GPIO character device.
type RealChip struct {
	chip *gpiocdev.Chip
}

// NewRealChip opens the named chip, e.g. "gpiochip0".
func NewRealChip(name string) (*RealChip, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealChip{chip: chip}, nil
}

// Line requests offset as an input with pull-up and kernel edge detection
// on both edges. Filtering to the watched edge happens in the handler.
func (c *RealChip) Line(offset int) (*RealLine, error) {
	l := &RealLine{offset: offset}
	line, err := c.chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(l.dispatch),
	)
	if err != nil {
		return nil, fmt.Errorf("request pin %d: %w", offset, err)
	}
	l.line = line
	return l, nil
}

// Close releases the chip. Lines must be closed separately.
func (c *RealChip) Close() error {
	if err := c.chip.Close(); err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	return nil
}

// RealLine is a single requested input line.
type RealLine struct {
	line   *gpiocdev.Line
	offset int

	mu      sync.Mutex
	edge    EdgeKind
	handler func()
}

// Read returns the current line level.
func (l *RealLine) Read() (Level, error) {
	v, err := l.line.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin %d: %w", l.offset, err)
	}
	if v != 0 {
		return High, nil
	}
	return Low, nil
}

// Watch registers fn for transitions matching edge.
func (l *RealLine) Watch(edge EdgeKind, fn func()) error {
	l.mu.Lock()
	l.edge = edge
	l.handler = fn
	l.mu.Unlock()
	return nil
}

// Unwatch removes the handler. Kernel events keep arriving but are dropped.
func (l *RealLine) Unwatch() error {
	l.mu.Lock()
	l.handler = nil
	l.mu.Unlock()
	return nil
}

// dispatch runs on the gpiocdev event goroutine.
func (l *RealLine) dispatch(evt gpiocdev.LineEvent) {
	l.mu.Lock()
	edge, fn := l.edge, l.handler
	l.mu.Unlock()
	if fn == nil {
		return
	}
	switch evt.Type {
	case gpiocdev.LineEventRisingEdge:
		if edge == EdgeFalling {
			return
		}
	case gpiocdev.LineEventFallingEdge:
		if edge == EdgeRising {
			return
		}
	}
	fn()
}

// Close drops the handler and releases the line.
func (l *RealLine) Close() error {
	var errs []error

	if err := l.Unwatch(); err != nil {
		errs = append(errs, err)
	}
	if l.line != nil {
		if err := l.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", l.offset, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
