package mqtt

import "github.com/Xylopyrographer/CabinMonitor/internal/device"

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	Events         []device.Event
	Payloads       [][]byte
	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool
	Backlog   int
}

// NewFakePublisher returns an empty FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the event.
func (f *FakePublisher) Publish(e device.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(e, "fake", "")
	if err != nil {
		return err
	}
	f.Events = append(f.Events, e)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the lifecycle event.
func (f *FakePublisher) PublishSystem(e SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(e)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, e)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected returns Connected.
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Buffered returns Backlog.
func (f *FakePublisher) Buffered() int {
	return f.Backlog
}

// SystemEventNames lists the recorded lifecycle event names in order.
func (f *FakePublisher) SystemEventNames() []string {
	out := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		out[i] = e.Event
	}
	return out
}
