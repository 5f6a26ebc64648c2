package gesture

import "time"

// Monitor is the monitoring-enabled flag. While disabled a resume timer is
// always running and the flag flips back on after resumeDelay even if no
// further gesture arrives.
type Monitor struct {
	resumeDelay time.Duration
	enabled     bool
	disabledAt  time.Time
}

// NewMonitor returns an enabled Monitor.
func NewMonitor(resumeDelay time.Duration) *Monitor {
	return &Monitor{resumeDelay: resumeDelay, enabled: true}
}

// Restore loads persisted state after a reboot.
func (m *Monitor) Restore(enabled bool, disabledAt time.Time) {
	m.enabled = enabled
	m.disabledAt = disabledAt
}

// Toggle applies a toggle gesture at now.
func (m *Monitor) Toggle(now time.Time) MonitorEvent {
	if m.enabled {
		m.enabled = false
		m.disabledAt = now
		return MonitorDisabled
	}
	m.enabled = true
	return MonitorResumed
}

// Tick runs the resume timer.
func (m *Monitor) Tick(now time.Time) MonitorEvent {
	if m.enabled {
		return MonitorUnchanged
	}
	if now.Sub(m.disabledAt) >= m.resumeDelay {
		m.enabled = true
		return MonitorResumed
	}
	return MonitorUnchanged
}

// Enabled reports whether monitoring is on.
func (m *Monitor) Enabled() bool {
	return m.enabled
}

// DisabledAt returns when monitoring was last disabled.
func (m *Monitor) DisabledAt() time.Time {
	return m.disabledAt
}

// ResumesAt returns when the resume timer fires, or the zero time if enabled.
func (m *Monitor) ResumesAt() time.Time {
	if m.enabled {
		return time.Time{}
	}
	return m.disabledAt.Add(m.resumeDelay)
}
