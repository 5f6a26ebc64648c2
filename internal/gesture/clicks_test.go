package gesture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func ms(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Millisecond)
}

func TestTripleClickWithinWindowEmits(t *testing.T) {
	c := NewClickClassifier(3000*time.Millisecond, 3)

	assert.False(t, c.Click(ms(0)))
	assert.False(t, c.Click(ms(1000)))
	assert.True(t, c.Click(ms(2200)))
	assert.Equal(t, 0, c.Count(), "classifier resets after emitting")
}

func TestGapAtWindowRestartsSequence(t *testing.T) {
	c := NewClickClassifier(3000*time.Millisecond, 3)

	assert.False(t, c.Click(ms(0)))
	assert.False(t, c.Click(ms(1000)))
	// gap of exactly the window is not "within"
	assert.False(t, c.Click(ms(4000)))
	assert.Equal(t, 1, c.Count())
}

func TestGapOverWindowNeedsThreeFreshClicks(t *testing.T) {
	c := NewClickClassifier(3000*time.Millisecond, 3)

	assert.False(t, c.Click(ms(0)))
	assert.False(t, c.Click(ms(1000)))
	assert.False(t, c.Click(ms(4100)), "3100ms gap restarts at one")
	assert.False(t, c.Click(ms(5000)))
	assert.True(t, c.Click(ms(6000)))
}

func TestEmitIsAtMostOncePerSequence(t *testing.T) {
	c := NewClickClassifier(3000*time.Millisecond, 3)

	emitted := 0
	for i := 0; i < 7; i++ {
		if c.Click(ms(i * 500)) {
			emitted++
		}
	}
	// clicks 1-3 emit, 4-6 emit, 7th starts a new sequence
	assert.Equal(t, 2, emitted)
	assert.Equal(t, 1, c.Count())
}

func TestEmitIffEveryConsecutiveGapWithinWindow(t *testing.T) {
	window := 3000 * time.Millisecond
	gaps := []int{0, 1, 1500, 2999, 3000, 3001, 10000}

	for _, g1 := range gaps {
		for _, g2 := range gaps {
			c := NewClickClassifier(window, 3)
			c.Click(ms(0))
			c.Click(ms(g1))
			got := c.Click(ms(g1 + g2))

			want := time.Duration(g1)*time.Millisecond < window && time.Duration(g2)*time.Millisecond < window
			assert.Equal(t, want, got, "gaps %d,%d", g1, g2)
		}
	}
}

func TestClickDetectorIgnoresLongHold(t *testing.T) {
	d := NewClickDetector(time.Second)

	_, ok := d.Edge(Edge{Level: Pressed, Time: ms(0)})
	assert.False(t, ok)
	_, ok = d.Edge(Edge{Level: Released, Time: ms(1500)})
	assert.False(t, ok, "a 1.5s hold is not a click")

	d.Edge(Edge{Level: Pressed, Time: ms(2000)})
	at, ok := d.Edge(Edge{Level: Released, Time: ms(2200)})
	require.True(t, ok)
	assert.Equal(t, ms(2200), at)
}

func TestClickDetectorReleaseWithoutPress(t *testing.T) {
	d := NewClickDetector(time.Second)
	_, ok := d.Edge(Edge{Level: Released, Time: ms(10)})
	assert.False(t, ok)
}

type sample struct {
	at      int
	pressed bool
}

// press returns raw samples for a press of holdMs followed by releaseMs of
// release, sampled every 10ms from startMs.
func press(startMs, holdMs, releaseMs int) []sample {
	var out []sample
	for t := startMs; t < startMs+holdMs; t += 10 {
		out = append(out, sample{t, true})
	}
	for t := startMs + holdMs; t < startMs+holdMs+releaseMs; t += 10 {
		out = append(out, sample{t, false})
	}
	return out
}

func TestRecognizerTripleClickFromRawSamples(t *testing.T) {
	r := NewRecognizer(RecognizerConfig{
		Debounce:     50 * time.Millisecond,
		ClickMaxHold: time.Second,
		ClickWindow:  3000 * time.Millisecond,
		ClickCount:   3,
	})

	// establish released baseline
	for i := 0; i <= 100; i += 10 {
		require.Equal(t, GestureNone, r.Sample(false, ms(i)))
	}

	var gestures []Gesture
	for _, start := range []int{200, 800, 1400} {
		for _, s := range press(start, 200, 300) {
			if g := r.Sample(s.pressed, ms(s.at)); g != GestureNone {
				gestures = append(gestures, g)
			}
		}
	}

	assert.Equal(t, []Gesture{GestureToggle}, gestures)
}

func TestRecognizerIgnoresBounce(t *testing.T) {
	r := NewRecognizer(RecognizerConfig{
		Debounce:     50 * time.Millisecond,
		ClickMaxHold: time.Second,
		ClickWindow:  3000 * time.Millisecond,
		ClickCount:   3,
	})
	for i := 0; i <= 100; i += 10 {
		r.Sample(false, ms(i))
	}

	// 20ms spikes never survive the debounce
	at := 200
	for n := 0; n < 6; n++ {
		r.Sample(true, ms(at))
		r.Sample(true, ms(at+10))
		r.Sample(false, ms(at+20))
		r.Sample(false, ms(at+30))
		at += 40
	}

	level, ok := r.debounce.Stable()
	require.True(t, ok)
	assert.Equal(t, Released, level)
	assert.Equal(t, 0, r.classifier.Count())
}
