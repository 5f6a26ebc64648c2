// Package sensors reads the activity and light sensors and drives the
// night-vision outputs.
package sensors

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Xylopyrographer/CabinMonitor/internal/gpio"
)

// PIR is a passive infrared motion sensor. After a trigger it stays quiet
// for the cooldown.
type PIR struct {
	line     gpio.Latched
	cooldown time.Duration
	last     time.Time
}

// NewPIR wraps a latched input.
func NewPIR(line gpio.Latched, cooldown time.Duration) *PIR {
	return &PIR{line: line, cooldown: cooldown}
}

// Triggered reports motion seen since the last call (latched edge or
// current level) once the cooldown has passed.
func (p *PIR) Triggered(now time.Time) (bool, error) {
	fired := p.line.Fired()
	level, err := p.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pir: %w", err)
	}
	if !fired && !level {
		return false, nil
	}
	if !p.last.IsZero() && now.Sub(p.last) <= p.cooldown {
		return false, nil
	}
	p.last = now
	return true, nil
}

// Sound is the digital output of a sound-detector module whose threshold
// is set by its on-board trimmer.
type Sound struct {
	line gpio.Latched
}

// NewSound wraps a latched input.
func NewSound(line gpio.Latched) *Sound {
	return &Sound{line: line}
}

// Detected reports sound seen since the last call.
func (s *Sound) Detected() (bool, error) {
	fired := s.line.Fired()
	level, err := s.line.Value()
	if err != nil {
		return false, fmt.Errorf("read sound: %w", err)
	}
	return fired || level, nil
}

// Light reads an ADC channel exposed through sysfs IIO and scales it to
// 0..100.
type Light struct {
	path string
	max  int
	read func(string) ([]byte, error)
}

// NewLight reads raw values from path, full scale at max.
func NewLight(path string, max int) *Light {
	return &Light{path: path, max: max, read: os.ReadFile}
}

// Check verifies that the channel is readable.
func (l *Light) Check() error {
	_, err := l.Level()
	return err
}

// Level returns the light level 0 (dark) to 100.
func (l *Light) Level() (int, error) {
	if l.max <= 0 {
		return 0, fmt.Errorf("light full scale must be positive, got %d", l.max)
	}
	data, err := l.read(l.path)
	if err != nil {
		return 0, fmt.Errorf("read light: %w", err)
	}
	raw, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse light %q: %w", data, err)
	}
	if raw < 0 {
		raw = 0
	}
	if raw > l.max {
		raw = l.max
	}
	return raw * 100 / l.max, nil
}

// IR drives the infrared illuminator and the IR-cut filter.
type IR struct {
	led gpio.Output
	cut gpio.Output
}

// NewIR wraps the two outputs and applies the daylight defaults: LEDs off,
// filter in.
func NewIR(led, cut gpio.Output) (*IR, error) {
	ir := &IR{led: led, cut: cut}
	if err := ir.Set(false, true); err != nil {
		return nil, err
	}
	return ir, nil
}

// Set switches the LEDs and the filter (true blocks IR).
func (ir *IR) Set(leds, filter bool) error {
	if err := ir.led.Set(leds); err != nil {
		return fmt.Errorf("ir leds: %w", err)
	}
	if err := ir.cut.Set(filter); err != nil {
		return fmt.Errorf("ir cut: %w", err)
	}
	return nil
}

// Thresholds are light levels below which night mode parts engage.
type Thresholds struct {
	IRLEDs int
	IRCut  int
}

// Suite bundles the sensors the orchestrator polls.
type Suite struct {
	PIR        *PIR
	Sound      *Sound
	Light      *Light
	IR         *IR
	Thresholds Thresholds
	Log        zerolog.Logger
}

// Motion reports a PIR trigger. Read errors count as no motion.
func (s *Suite) Motion(now time.Time) bool {
	ok, err := s.PIR.Triggered(now)
	if err != nil {
		s.Log.Warn().Err(err).Msg("pir read failed")
	}
	return ok
}

// SoundDetected reports a sound trigger. Read errors count as silence.
func (s *Suite) SoundDetected(now time.Time) bool {
	ok, err := s.Sound.Detected()
	if err != nil {
		s.Log.Warn().Err(err).Msg("sound read failed")
	}
	return ok
}

// PrepareCapture sets night-vision outputs for the current light level.
// It returns the level it used.
func (s *Suite) PrepareCapture() (int, error) {
	level, err := s.Light.Level()
	if err != nil {
		return 0, err
	}
	leds := level < s.Thresholds.IRLEDs
	filter := level >= s.Thresholds.IRCut
	return level, s.IR.Set(leds, filter)
}
