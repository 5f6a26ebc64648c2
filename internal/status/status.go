// Package status keeps a thread-safe snapshot of the daemon for the HTTP
// handlers and MQTT lifecycle messages. The loop goroutine writes it; any
// goroutine may read it.
package status

import (
	"sync"
	"time"

	"github.com/Xylopyrographer/CabinMonitor/internal/device"
)

// ModemInfo is the cellular session as last seen by the loop. A local
// copy so status does not depend on the modem package.
type ModemInfo struct {
	Port        string
	Online      bool // serial port opened
	Ready       bool
	Registered  bool
	ContextOpen bool
	TCPOpen     bool
}

// Config is the daemon configuration shown on the status page.
type Config struct {
	DeviceName      string
	LoopMs          int64
	Broker          string
	HTTPAddr        string
	UploadTransport string
}

// Snapshot is a point-in-time copy of the daemon state.
type Snapshot struct {
	Device        device.Info
	Modem         *ModemInfo
	MQTTConnected bool
	MQTTBuffered  int
	StartTime     time.Time
	Now           time.Time
	Config        Config
}

// Uptime returns the time since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds the mutable snapshot behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker for a daemon started at startTime.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Device:    device.Info{State: device.Init, MonitoringEnabled: true},
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update stores the orchestrator view. Called from the loop every tick.
func (t *Tracker) Update(info device.Info) {
	t.mu.Lock()
	t.snap.Device = info
	t.mu.Unlock()
}

// SetModem stores the cellular session view.
func (t *Tracker) SetModem(m ModemInfo) {
	t.mu.Lock()
	t.snap.Modem = &m
	t.mu.Unlock()
}

// SetMQTT stores the telemetry connection state.
func (t *Tracker) SetMQTT(connected bool, buffered int) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.snap.MQTTBuffered = buffered
	t.mu.Unlock()
}

// State returns the orchestrator state from the last Update.
func (t *Tracker) State() device.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Device.State
}

// Snapshot returns a copy with Now set to the current time.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.Modem != nil {
		m := *s.Modem
		s.Modem = &m
	}
	s.Now = t.now()
	return s
}
