package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string           `json:"event,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Device        string           `json:"device"`
	State         string           `json:"state"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartTime     string           `json:"start_time"`
	Timestamp     string           `json:"timestamp"`
	Monitoring    MonitoringJSON   `json:"monitoring"`
	Captures      CapturesJSON     `json:"captures"`
	Upload        UploadJSON       `json:"upload"`
	Connectivity  ConnectivityJSON `json:"connectivity"`
	MQTT          MQTTStatus       `json:"mqtt"`
	Modem         *ModemJSON       `json:"modem,omitempty"`
	Config        ConfigJSON       `json:"config"`
}

// MonitoringJSON reports the monitoring flag.
type MonitoringJSON struct {
	Enabled   bool   `json:"enabled"`
	ResumesAt string `json:"resumes_at,omitempty"`
}

// CapturesJSON reports capture counters.
type CapturesJSON struct {
	Total        int    `json:"total"`
	Stored       int    `json:"stored"`
	Confirmed    int    `json:"confirmed"`
	LastCapture  string `json:"last_capture,omitempty"`
	LastActivity string `json:"last_activity,omitempty"`
}

// UploadJSON reports the last upload cycle.
type UploadJSON struct {
	LastOutcome string `json:"last_outcome,omitempty"`
	LastAt      string `json:"last_at,omitempty"`
	Attempted   int    `json:"attempted"`
	Succeeded   int    `json:"succeeded"`
	Interrupted bool   `json:"interrupted"`
}

// ConnectivityJSON reports the last server probe and time sync.
type ConnectivityJSON struct {
	Probed       bool   `json:"probed"`
	OK           bool   `json:"ok"`
	LastProbe    string `json:"last_probe,omitempty"`
	LastTimeSync string `json:"last_time_sync,omitempty"`
}

// MQTTStatus reports the telemetry connection.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Buffered  int    `json:"buffered"`
}

// ModemJSON reports the cellular session.
type ModemJSON struct {
	Port        string `json:"port"`
	Online      bool   `json:"online"`
	Ready       bool   `json:"ready"`
	Registered  bool   `json:"registered"`
	ContextOpen bool   `json:"context_open"`
	TCPOpen     bool   `json:"tcp_open"`
}

// ConfigJSON is the daemon configuration.
type ConfigJSON struct {
	LoopMs          int64  `json:"loop_ms"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
	UploadTransport string `json:"upload_transport"`
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	d := snap.Device
	inner := StatusInner{
		Device:        snap.Config.DeviceName,
		State:         string(d.State),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     stamp(snap.StartTime),
		Timestamp:     stamp(snap.Now),
		Monitoring: MonitoringJSON{
			Enabled:   d.MonitoringEnabled,
			ResumesAt: stamp(d.ResumesAt),
		},
		Captures: CapturesJSON{
			Total:        d.Captures,
			Stored:       d.Stored,
			Confirmed:    d.Confirmed,
			LastCapture:  stamp(d.LastCapture),
			LastActivity: stamp(d.LastActivity),
		},
		Upload: UploadJSON{
			LastAt:      stamp(d.LastUploadAt),
			Interrupted: d.UploadInterrupted,
		},
		Connectivity: ConnectivityJSON{
			Probed:       d.ProbeKnown,
			OK:           d.ProbeOK,
			LastProbe:    stamp(d.LastProbe),
			LastTimeSync: stamp(d.LastTimeSync),
		},
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Buffered:  snap.MQTTBuffered,
		},
		Config: ConfigJSON{
			LoopMs:          snap.Config.LoopMs,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
			UploadTransport: snap.Config.UploadTransport,
		},
	}
	if inner.State == "" {
		inner.State = "UNKNOWN"
	}
	if u := d.LastUpload; u != nil {
		inner.Upload.LastOutcome = u.Label()
		inner.Upload.Attempted = u.Attempted
		inner.Upload.Succeeded = u.Succeeded
	}
	if m := snap.Modem; m != nil {
		inner.Modem = &ModemJSON{
			Port:        m.Port,
			Online:      m.Online,
			Ready:       m.Ready,
			Registered:  m.Registered,
			ContextOpen: m.ContextOpen,
			TCPOpen:     m.TCPOpen,
		}
	}
	return inner
}

// FormatJSON returns the indented status document served over HTTP.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the compact status document for an MQTT
// lifecycle event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
