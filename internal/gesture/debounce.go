package gesture

import "time"

// Debouncer turns raw samples into stable edges. A new level must be
// observed continuously for the debounce duration before it is reported.
// The first stable level is the baseline and produces no edge.
type Debouncer struct {
	duration     time.Duration
	stable       Level
	pending      Level
	pendingSince time.Time
	baselined    bool
}

// NewDebouncer creates a Debouncer with the given debounce duration.
func NewDebouncer(d time.Duration) *Debouncer {
	return &Debouncer{duration: d}
}

// Process feeds one sample. It returns the edge and true when the stable
// level changed on this sample.
func (d *Debouncer) Process(pressed bool, now time.Time) (Edge, bool) {
	level := Released
	if pressed {
		level = Pressed
	}

	if !d.baselined {
		if d.pending != level {
			d.pending = level
			d.pendingSince = now
			return Edge{}, false
		}
		if now.Sub(d.pendingSince) >= d.duration {
			d.stable = level
			d.baselined = true
			d.pending = ""
		}
		return Edge{}, false
	}

	if level == d.stable {
		d.pending = ""
		return Edge{}, false
	}

	if d.pending != level {
		d.pending = level
		d.pendingSince = now
		return Edge{}, false
	}

	if now.Sub(d.pendingSince) >= d.duration {
		d.stable = level
		d.pending = ""
		return Edge{Level: level, Time: now}, true
	}
	return Edge{}, false
}

// Stable returns the current debounced level and whether a baseline exists.
func (d *Debouncer) Stable() (Level, bool) {
	return d.stable, d.baselined
}
