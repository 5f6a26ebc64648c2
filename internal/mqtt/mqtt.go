// Package mqtt publishes device telemetry: orchestrator events and system
// lifecycle messages. Messages published while the broker is unreachable
// are held in a bounded buffer and replayed on reconnect.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/Xylopyrographer/CabinMonitor/internal/device"
)

// Topic suffixes below the configured prefix.
const (
	EventsSuffix = "events"
	SystemSuffix = "system"
)

// Topics are the resolved topic names for one device.
type Topics struct {
	Events string
	System string
}

// NewTopics joins prefix and the topic suffixes.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = "cabin/monitor"
	}
	return Topics{Events: prefix + "/" + EventsSuffix, System: prefix + "/" + SystemSuffix}
}

// Publisher publishes telemetry. It satisfies device.EventSink.
type Publisher interface {
	// Publish sends an orchestrator event. Errors are reported but never
	// fatal to the caller.
	Publish(event device.Event) error

	// PublishSystem sends a lifecycle event.
	PublishSystem(event SystemEvent) error

	Close() error
}

// ConnectionStatus reports the broker connection and the offline backlog.
type ConnectionStatus interface {
	IsConnected() bool
	Buffered() int
}

// SystemEvent is a lifecycle message (STARTUP, SHUTDOWN, RESTART, HALTED,
// OFFLINE, RECONNECTED).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string
	RawPayload []byte // sent as is when set, e.g. a full status snapshot
	Retained   bool
}

// EventPayload is the JSON body published for a device event.
type EventPayload struct {
	Event EventBody `json:"event"`
}

// EventBody carries the event fields.
type EventBody struct {
	ID        string      `json:"id"`
	Device    string      `json:"device,omitempty"`
	Timestamp string      `json:"timestamp"`
	Type      string      `json:"type"`
	From      string      `json:"from,omitempty"`
	To        string      `json:"to,omitempty"`
	Detail    string      `json:"detail,omitempty"`
	Upload    *UploadBody `json:"upload,omitempty"`
}

// UploadBody summarizes an upload cycle.
type UploadBody struct {
	Outcome   string `json:"outcome"`
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
}

// FormatPayload renders e as JSON under the given message id.
func FormatPayload(e device.Event, id, deviceName string) ([]byte, error) {
	body := EventBody{
		ID:        id,
		Device:    deviceName,
		Timestamp: e.Time.UTC().Format(time.RFC3339),
		Type:      string(e.Type),
		From:      string(e.From),
		To:        string(e.To),
		Detail:    e.Detail,
	}
	if e.Upload != nil {
		body.Upload = &UploadBody{
			Outcome:   e.Upload.Label(),
			Attempted: e.Upload.Attempted,
			Succeeded: e.Upload.Succeeded,
		}
	}
	return json.Marshal(EventPayload{Event: body})
}

// SystemPayload is the JSON body for simple lifecycle events.
type SystemPayload struct {
	System SystemBody `json:"system"`
}

// SystemBody carries the lifecycle fields.
type SystemBody struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload renders a lifecycle event. RawPayload wins when set.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemBody{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
