//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealChip is not available on non-Linux platforms.
type RealChip struct{}

// NewRealChip returns an error on non-Linux platforms.
func NewRealChip(name string) (*RealChip, error) {
	return nil, errUnsupported
}

// Line is not implemented on non-Linux platforms.
func (c *RealChip) Line(offset int) (*RealLine, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (c *RealChip) Close() error {
	return nil
}

// RealLine is not available on non-Linux platforms.
type RealLine struct{}

// Read is not implemented on non-Linux platforms.
func (l *RealLine) Read() (Level, error) {
	return Low, errUnsupported
}

// Watch is not implemented on non-Linux platforms.
func (l *RealLine) Watch(edge EdgeKind, fn func()) error {
	return errUnsupported
}

// Unwatch is not implemented on non-Linux platforms.
func (l *RealLine) Unwatch() error {
	return nil
}

// Close is not implemented on non-Linux platforms.
func (l *RealLine) Close() error {
	return nil
}
