package modem

import (
	"strings"
	"sync"
	"time"
)

// FakePort is a scripted modem for tests. Every Write is looked up by its
// text (trailing CRLF removed) and the next scripted reply for it is queued
// for reading. Idle reads advance the port's own clock by the read timeout,
// so an Engine built with Now/Sleep from the port never waits in real time.
type FakePort struct {
	mu sync.Mutex

	replies map[string][]string
	calls   map[string]int

	pending []byte

	// ChunkSize limits how many bytes one Read returns. Zero means no limit.
	ChunkSize int

	// Writes records every write with its trailing CRLF removed.
	Writes []string

	now         time.Time
	readTimeout time.Duration

	Closed bool
}

// NewFakePort creates a FakePort whose clock starts at start.
func NewFakePort(start time.Time) *FakePort {
	return &FakePort{
		replies:     make(map[string][]string),
		calls:       make(map[string]int),
		now:         start,
		readTimeout: 10 * time.Millisecond,
	}
}

// On scripts replies for cmd. Successive writes of cmd get successive
// replies; the last one repeats. An empty reply means silence.
func (f *FakePort) On(cmd string, replies ...string) *FakePort {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[cmd] = replies
	f.calls[cmd] = 0
	return f
}

// OK scripts a plain "\r\nOK\r\n" reply for each cmd.
func (f *FakePort) OK(cmds ...string) *FakePort {
	for _, c := range cmds {
		f.On(c, "\r\nOK\r\n")
	}
	return f
}

// Inject queues unsolicited bytes for reading.
func (f *FakePort) Inject(s string) {
	f.mu.Lock()
	f.pending = append(f.pending, s...)
	f.mu.Unlock()
}

// Count returns how many times cmd was written.
func (f *FakePort) Count(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.Writes {
		if w == cmd {
			n++
		}
	}
	return n
}

// Commands returns a copy of Writes.
func (f *FakePort) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Writes...)
}

// Now returns the port's clock.
func (f *FakePort) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep advances the port's clock.
func (f *FakePort) Sleep(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *FakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimSuffix(string(p), "\r\n")
	f.Writes = append(f.Writes, key)

	replies, ok := f.replies[key]
	if !ok || len(replies) == 0 {
		return len(p), nil
	}
	i := f.calls[key]
	if i >= len(replies) {
		i = len(replies) - 1
	}
	f.calls[key]++
	f.pending = append(f.pending, replies[i]...)
	return len(p), nil
}

func (f *FakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) == 0 {
		f.now = f.now.Add(f.readTimeout)
		return 0, nil
	}
	n := len(p)
	if f.ChunkSize > 0 && n > f.ChunkSize {
		n = f.ChunkSize
	}
	n = copy(p[:n], f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *FakePort) SetReadTimeout(t time.Duration) error {
	f.mu.Lock()
	f.readTimeout = t
	f.mu.Unlock()
	return nil
}

func (f *FakePort) ResetInputBuffer() error {
	f.mu.Lock()
	f.pending = nil
	f.mu.Unlock()
	return nil
}

func (f *FakePort) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakePower records the power sequence.
type FakePower struct {
	Steps []string
	Err   error
}

func (p *FakePower) SetReset(high bool) error {
	p.Steps = append(p.Steps, step("RST", high))
	return p.Err
}

func (p *FakePower) SetPowerKey(high bool) error {
	p.Steps = append(p.Steps, step("PWRKEY", high))
	return p.Err
}

func step(name string, high bool) string {
	if high {
		return name + "=1"
	}
	return name + "=0"
}
