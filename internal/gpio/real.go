//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
)

// Chip hands out lines from one GPIO character device and releases them
// together on Close.
type Chip struct {
	chip *gpiocdev.Chip

	mu    sync.Mutex
	lines []*gpiocdev.Line
}

// OpenChip opens the named GPIO chip, e.g. "gpiochip0".
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &Chip{chip: chip}, nil
}

func biasOption(p Pull) gpiocdev.LineReqOption {
	switch p {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

func (c *Chip) track(l *gpiocdev.Line) {
	c.mu.Lock()
	c.lines = append(c.lines, l)
	c.mu.Unlock()
}

// Input requests offset as an input.
func (c *Chip) Input(offset int, opts InputOptions) (Input, error) {
	reqOpts := []gpiocdev.LineReqOption{gpiocdev.AsInput, biasOption(opts.Pull)}
	if opts.ActiveLow {
		reqOpts = append(reqOpts, gpiocdev.AsActiveLow)
	}
	l, err := c.chip.RequestLine(offset, reqOpts...)
	if err != nil {
		return nil, fmt.Errorf("request input %d: %w", offset, err)
	}
	c.track(l)
	return &inputLine{line: l}, nil
}

// LatchedInput requests offset as an input with rising-edge detection.
func (c *Chip) LatchedInput(offset int, opts InputOptions) (Latched, error) {
	in := &latchedLine{}
	reqOpts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		biasOption(opts.Pull),
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { in.fired.Store(true) }),
	}
	if opts.ActiveLow {
		reqOpts = append(reqOpts, gpiocdev.AsActiveLow)
	}
	l, err := c.chip.RequestLine(offset, reqOpts...)
	if err != nil {
		return nil, fmt.Errorf("request latched input %d: %w", offset, err)
	}
	c.track(l)
	in.line = l
	return in, nil
}

// Output requests offset as an output at the initial level.
func (c *Chip) Output(offset int, initial bool) (Output, error) {
	v := 0
	if initial {
		v = 1
	}
	l, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(v))
	if err != nil {
		return nil, fmt.Errorf("request output %d: %w", offset, err)
	}
	c.track(l)
	return &outputLine{line: l}, nil
}

// Close releases every line handed out and the chip itself.
// Lines are reconfigured to input with pull-down (matching Pi boot defaults)
// before closing so attached hardware sees a clean state across reboots.
func (c *Chip) Close() error {
	c.mu.Lock()
	lines := c.lines
	c.lines = nil
	c.mu.Unlock()

	var errs []error
	for _, l := range lines {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if err := c.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	return errors.Join(errs...)
}

type inputLine struct {
	line *gpiocdev.Line
}

func (l *inputLine) Value() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("read line: %w", err)
	}
	return v == 1, nil
}

// Close is a no-op; the owning Chip releases the line.
func (l *inputLine) Close() error { return nil }

type latchedLine struct {
	line  *gpiocdev.Line
	fired atomic.Bool
}

func (l *latchedLine) Value() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("read line: %w", err)
	}
	return v == 1, nil
}

func (l *latchedLine) Fired() bool { return l.fired.Swap(false) }

func (l *latchedLine) Close() error { return nil }

type outputLine struct {
	line *gpiocdev.Line
}

func (l *outputLine) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("set line: %w", err)
	}
	return nil
}

func (l *outputLine) Close() error { return nil }
