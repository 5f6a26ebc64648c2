// Package clock is the daemon's wall clock. Network time from the modem is
// applied as an offset over the host clock and, when allowed, written to
// the system clock as well.
package clock

import (
	"sync"
	"time"
)

// Clock is a wall clock that can be corrected at runtime.
type Clock struct {
	base      func() time.Time
	setSystem func(time.Time) error

	mu       sync.Mutex
	offset   time.Duration
	lastSync time.Time
}

// New returns a Clock over time.Now. With setSystem the system clock is
// also set on each correction.
func New(setSystem bool) *Clock {
	c := &Clock{base: time.Now}
	if setSystem {
		c.setSystem = settime
	}
	return c
}

// NewWithBase returns a Clock over base that never touches the system clock.
func NewWithBase(base func() time.Time) *Clock {
	return &Clock{base: base}
}

// Now returns the corrected time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	off := c.offset
	c.mu.Unlock()
	return c.base().Add(off)
}

// Set corrects the clock to t. If writing the system clock fails the
// offset still applies and the error is returned.
func (c *Clock) Set(t time.Time) error {
	var err error
	if c.setSystem != nil {
		err = c.setSystem(t)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setSystem != nil && err == nil {
		c.offset = 0
	} else {
		c.offset = t.Sub(c.base())
	}
	c.lastSync = t
	return err
}

// Offset returns the correction applied over the base clock.
func (c *Clock) Offset() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// LastSync returns the time of the last correction, or zero if none.
func (c *Clock) LastSync() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync
}
