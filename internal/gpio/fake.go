package gpio

import "sync"

// FakeLine is a test double usable as Input, Latched or Output.
type FakeLine struct {
	mu sync.Mutex

	// Samples contains scripted values for Value. Each call consumes the
	// next sample; the last one repeats once exhausted. With no samples,
	// Value returns Level.
	Samples []bool
	index   int

	// Level is the current level: set by Set, or read when Samples is empty.
	Level bool

	// History records every value passed to Set.
	History []bool

	// Latch is returned (and cleared) by Fired.
	Latch bool

	// ReadError, if set, is returned by Value.
	ReadError error
	// SetError, if set, is returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeLine creates a FakeLine with the given scripted samples.
func NewFakeLine(samples ...bool) *FakeLine {
	return &FakeLine{Samples: samples}
}

// Value returns the next scripted sample.
func (f *FakeLine) Value() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Samples) == 0 {
		return f.Level, nil
	}

	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// Fired reports and clears Latch.
func (f *FakeLine) Fired() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.Latch
	f.Latch = false
	return v
}

// Trigger sets the latch as an edge interrupt would.
func (f *FakeLine) Trigger() {
	f.mu.Lock()
	f.Latch = true
	f.mu.Unlock()
}

// SetLevel changes the value returned when no samples are scripted.
func (f *FakeLine) SetLevel(on bool) {
	f.mu.Lock()
	f.Level = on
	f.mu.Unlock()
}

// Set records the driven value.
func (f *FakeLine) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Level = on
	f.History = append(f.History, on)
	return nil
}

// Sets returns a copy of History.
func (f *FakeLine) Sets() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.History...)
}

// Close marks the line as closed.
func (f *FakeLine) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
