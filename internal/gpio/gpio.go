// Package gpio provides GPIO line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Input reads a single line. Value is the logical level after any
// active-low inversion configured when the line was requested.
type Input interface {
	Value() (bool, error)
	Close() error
}

// Latched is an input whose rising logical edges are captured by the
// kernel event stream between polls. Fired reports and clears the latch.
type Latched interface {
	Input
	Fired() bool
}

// Output drives a single line.
type Output interface {
	Set(on bool) error
	Close() error
}

// Pull selects the input bias.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// InputOptions configures a requested input line.
type InputOptions struct {
	Pull Pull
	// ActiveLow inverts the raw value: raw 0 reads as true.
	ActiveLow bool
}

// DefaultChip is the Raspberry Pi header controller.
const DefaultChip = "gpiochip0"
