package device

import "time"

// EventType classifies an Event.
type EventType string

const (
	EventState        EventType = "STATE"
	EventCapture      EventType = "CAPTURE"
	EventUpload       EventType = "UPLOAD"
	EventMonitoring   EventType = "MONITORING"
	EventConnectivity EventType = "CONNECTIVITY"
	EventTimeSync     EventType = "TIME_SYNC"
)

// Event is something the orchestrator did, published for telemetry.
type Event struct {
	Time   time.Time
	Type   EventType
	From   State // EventState only
	To     State // EventState only
	Detail string
	Upload *UploadOutcome // EventUpload only
}

// EventSink receives events. Publish must not block for long; failures
// are logged and otherwise ignored.
type EventSink interface {
	Publish(Event) error
}

// UploadOutcome is the result of one upload cycle.
type UploadOutcome struct {
	Attempted   int
	Succeeded   int
	Interrupted bool
	Skipped     bool // probe failed, no transfer attempted
}

// Complete reports whether every attempted file went through and the
// cycle ran to the end.
func (o UploadOutcome) Complete() bool {
	return !o.Interrupted && !o.Skipped && o.Succeeded == o.Attempted
}

// Label names the outcome for metrics and logs.
func (o UploadOutcome) Label() string {
	switch {
	case o.Skipped:
		return "skipped"
	case o.Interrupted:
		return "interrupted"
	case o.Complete():
		return "complete"
	default:
		return "partial"
	}
}

// Info is a point-in-time view of the orchestrator for status reporting.
type Info struct {
	State             State
	MonitoringEnabled bool
	ResumesAt         time.Time
	LastActivity      time.Time
	LastCapture       time.Time
	Captures          int
	Stored            int
	Confirmed         int
	UploadInterrupted bool
	LastUpload        *UploadOutcome
	LastUploadAt      time.Time
	ProbeKnown        bool
	ProbeOK           bool
	LastProbe         time.Time
	LastTimeSync      time.Time
}
