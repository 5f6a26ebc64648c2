// Package indicator drives the RGB status LED. Each state has a colour and
// a pattern (steady, blink or double blink); the LED keeps its own timing
// and only needs Update(now) once per loop iteration.
package indicator

import (
	"errors"
	"time"

	"github.com/Xylopyrographer/CabinMonitor/internal/gpio"
)

// State selects colour and pattern.
type State string

const (
	Init               State = "INIT"
	Idle               State = "IDLE"
	PIR                State = "PIR"
	Sound              State = "SOUND"
	Capturing          State = "CAPTURING"
	Uploading          State = "UPLOADING"
	OTA                State = "OTA"
	Error              State = "ERROR"
	Provisioning       State = "PROVISIONING"
	ButtonPressed      State = "BUTTON_PRESSED"
	FactoryReset       State = "FACTORY_RESET"
	MonitoringDisabled State = "MONITORING_DISABLED"
)

// Color is an on/off mix of the three channels.
type Color struct{ R, G, B bool }

var (
	Off    = Color{}
	Red    = Color{R: true}
	Green  = Color{G: true}
	Blue   = Color{B: true}
	Yellow = Color{R: true, G: true}
	Purple = Color{R: true, B: true}
	Cyan   = Color{G: true, B: true}
	White  = Color{R: true, G: true, B: true}
)

// Pattern is how a colour is shown over time.
type Pattern int

const (
	Steady Pattern = iota
	Blink
	DoubleBlink
)

type style struct {
	color   Color
	pattern Pattern
}

var styles = map[State]style{
	Init:               {Blue, Steady},
	Idle:               {Green, Steady},
	PIR:                {Red, Steady},
	Sound:              {Yellow, Steady},
	Capturing:          {Blue, Steady},
	Uploading:          {Purple, Steady},
	OTA:                {Cyan, Steady},
	Error:              {Red, Blink},
	Provisioning:       {Green, Blink},
	ButtonPressed:      {White, Steady},
	FactoryReset:       {Yellow, Blink},
	MonitoringDisabled: {Red, DoubleBlink},
}

// Style returns the colour and pattern for s. Unknown states are off.
func Style(s State) (Color, Pattern) {
	st := styles[s]
	return st.color, st.pattern
}

// Double-blink timing: on, off, on, then dark for the rest of a minute.
const (
	flash       = 200 * time.Millisecond
	doublePause = time.Minute - 3*flash
)

// LED is an RGB LED on three output lines.
type LED struct {
	red, green, blue gpio.Output
	blinkInterval    time.Duration

	state   State
	phase   int
	phaseAt time.Time
	lit     bool

	shown Color
	wrote bool
}

// New creates an LED in the Init state. It does not touch the lines until
// the first Update.
func New(red, green, blue gpio.Output, blinkInterval time.Duration) *LED {
	return &LED{red: red, green: green, blue: blue, blinkInterval: blinkInterval, state: Init}
}

// State returns the current state.
func (l *LED) State() State { return l.state }

// Set switches to s and restarts its pattern.
func (l *LED) Set(s State, now time.Time) error {
	l.state = s
	l.phase = 0
	l.phaseAt = now
	l.lit = false
	return l.Update(now)
}

// Update advances the pattern and writes the lines if the visible colour
// changed.
func (l *LED) Update(now time.Time) error {
	return l.show(l.colorAt(now))
}

func (l *LED) colorAt(now time.Time) Color {
	color, pattern := Style(l.state)
	switch pattern {
	case Blink:
		if now.Sub(l.phaseAt) >= l.blinkInterval {
			l.lit = !l.lit
			l.phaseAt = now
		}
		if !l.lit {
			return Off
		}
	case DoubleBlink:
		wait := flash
		if l.phase == 3 {
			wait = doublePause
		}
		if now.Sub(l.phaseAt) >= wait {
			l.phase = (l.phase + 1) % 4
			l.phaseAt = now
		}
		if l.phase == 1 || l.phase == 3 {
			return Off
		}
	}
	return color
}

func (l *LED) show(c Color) error {
	if l.wrote && c == l.shown {
		return nil
	}
	err := errors.Join(l.red.Set(c.R), l.green.Set(c.G), l.blue.Set(c.B))
	if err == nil {
		l.shown = c
		l.wrote = true
	}
	return err
}

// Close turns the LED off.
func (l *LED) Close() error {
	l.wrote = false
	return l.show(Off)
}
