package gesture

import (
	"fmt"
	"time"
)

// HoldThresholds are the ascending boot-time hold durations.
type HoldThresholds struct {
	Provisioning time.Duration
	OTA          time.Duration
	FactoryReset time.Duration
}

// Classify maps a continuous hold duration to the highest threshold
// strictly exceeded.
func (h HoldThresholds) Classify(held time.Duration) StartupAction {
	switch {
	case held > h.FactoryReset:
		return ActionFactoryReset
	case held > h.OTA:
		return ActionOTA
	case held > h.Provisioning:
		return ActionProvisioning
	default:
		return ActionNormal
	}
}

// StartupOptions configures DetectStartup.
type StartupOptions struct {
	Thresholds   HoldThresholds
	Settle       time.Duration // sampling before the pressed check
	MaxHold      time.Duration // hold measurement stops here
	SamplePeriod time.Duration

	Now   func() time.Time
	Sleep func(time.Duration)

	// OnPress is called once when the button is found held after Settle.
	OnPress func()
	// OnProgress is called each time the running classification rises.
	OnProgress func(StartupAction)
}

// DetectStartup samples the button after boot and classifies the hold.
// Only the final classification is returned; OnProgress lets the caller
// show intermediate feedback while the button is still down.
func DetectStartup(read func() (bool, error), opts StartupOptions) (StartupAction, error) {
	start := opts.Now()
	pressed := false
	for {
		p, err := read()
		if err != nil {
			return ActionNormal, fmt.Errorf("sample button: %w", err)
		}
		pressed = p
		if opts.Now().Sub(start) >= opts.Settle {
			break
		}
		opts.Sleep(opts.SamplePeriod)
	}

	if !pressed {
		return ActionNormal, nil
	}
	if opts.OnPress != nil {
		opts.OnPress()
	}

	holdStart := opts.Now()
	reported := ActionNormal
	for pressed && opts.Now().Sub(holdStart) < opts.MaxHold {
		opts.Sleep(opts.SamplePeriod)
		p, err := read()
		if err != nil {
			return ActionNormal, fmt.Errorf("sample button: %w", err)
		}
		pressed = p

		if a := opts.Thresholds.Classify(opts.Now().Sub(holdStart)); a > reported {
			reported = a
			if opts.OnProgress != nil {
				opts.OnProgress(a)
			}
		}
	}

	return opts.Thresholds.Classify(opts.Now().Sub(holdStart)), nil
}
