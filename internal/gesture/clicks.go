package gesture

import "time"

// ClickDetector turns debounced edges into completed clicks. A click is a
// press followed by a release within maxHold; longer holds are ignored.
type ClickDetector struct {
	maxHold    time.Duration
	pressedAt  time.Time
	inProgress bool
}

// NewClickDetector creates a ClickDetector.
func NewClickDetector(maxHold time.Duration) *ClickDetector {
	return &ClickDetector{maxHold: maxHold}
}

// Edge feeds a debounced edge and reports a completed click at release time.
func (c *ClickDetector) Edge(e Edge) (time.Time, bool) {
	switch e.Level {
	case Pressed:
		c.pressedAt = e.Time
		c.inProgress = true
	case Released:
		if !c.inProgress {
			return time.Time{}, false
		}
		c.inProgress = false
		if e.Time.Sub(c.pressedAt) < c.maxHold {
			return e.Time, true
		}
	}
	return time.Time{}, false
}

// ClickClassifier counts clicks whose consecutive gaps are below window.
// Reaching threshold emits one toggle and resets to the start state; a gap
// of window or more restarts the sequence at one.
type ClickClassifier struct {
	window    time.Duration
	threshold int
	count     int
	last      time.Time
}

// NewClickClassifier creates a classifier emitting after threshold clicks.
func NewClickClassifier(window time.Duration, threshold int) *ClickClassifier {
	return &ClickClassifier{window: window, threshold: threshold}
}

// Click records a completed click at t and reports whether it completed
// the sequence.
func (c *ClickClassifier) Click(t time.Time) bool {
	if c.count > 0 && t.Sub(c.last) < c.window {
		c.count++
	} else {
		c.count = 1
	}
	c.last = t

	if c.count >= c.threshold {
		c.Reset()
		return true
	}
	return false
}

// Count returns the clicks accumulated in the current sequence.
func (c *ClickClassifier) Count() int {
	return c.count
}

// Reset returns the classifier to its start state.
func (c *ClickClassifier) Reset() {
	c.count = 0
	c.last = time.Time{}
}

// RecognizerConfig configures the runtime button pipeline.
type RecognizerConfig struct {
	Debounce     time.Duration
	ClickMaxHold time.Duration
	ClickWindow  time.Duration
	ClickCount   int
}

// Recognizer chains debounce, click detection and multi-click classification.
type Recognizer struct {
	debounce   *Debouncer
	clicks     *ClickDetector
	classifier *ClickClassifier
}

// NewRecognizer builds the runtime button pipeline.
func NewRecognizer(cfg RecognizerConfig) *Recognizer {
	return &Recognizer{
		debounce:   NewDebouncer(cfg.Debounce),
		clicks:     NewClickDetector(cfg.ClickMaxHold),
		classifier: NewClickClassifier(cfg.ClickWindow, cfg.ClickCount),
	}
}

// Sample feeds one raw button sample taken at now.
func (r *Recognizer) Sample(pressed bool, now time.Time) Gesture {
	edge, ok := r.debounce.Process(pressed, now)
	if !ok {
		return GestureNone
	}
	at, clicked := r.clicks.Edge(edge)
	if !clicked {
		return GestureNone
	}
	if r.classifier.Click(at) {
		return GestureToggle
	}
	return GestureNone
}
