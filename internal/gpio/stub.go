//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, errUnsupported
}

// Input is not implemented on non-Linux platforms.
func (c *Chip) Input(offset int, opts InputOptions) (Input, error) {
	return nil, errUnsupported
}

// LatchedInput is not implemented on non-Linux platforms.
func (c *Chip) LatchedInput(offset int, opts InputOptions) (Latched, error) {
	return nil, errUnsupported
}

// Output is not implemented on non-Linux platforms.
func (c *Chip) Output(offset int, initial bool) (Output, error) {
	return nil, errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (c *Chip) Close() error {
	return nil
}
