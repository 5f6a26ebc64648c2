package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/Xylopyrographer/CabinMonitor/internal/camera"
	"github.com/Xylopyrographer/CabinMonitor/internal/config"
	"github.com/Xylopyrographer/CabinMonitor/internal/device"
	"github.com/Xylopyrographer/CabinMonitor/internal/gesture"
	"github.com/Xylopyrographer/CabinMonitor/internal/gpio"
	"github.com/Xylopyrographer/CabinMonitor/internal/log"
	"github.com/Xylopyrographer/CabinMonitor/internal/sensors"
	"github.com/Xylopyrographer/CabinMonitor/internal/settings"
	"github.com/Xylopyrographer/CabinMonitor/internal/storage"
)

// hardware holds the lines requested at boot. Sensor lines are requested
// later by openSensors; the chip releases every line on Close.
type hardware struct {
	chip *gpio.Chip

	button                    gpio.Input
	ledRed, ledGreen, ledBlue gpio.Output
	modemReset, modemPowerKey gpio.Output
}

func openHardware(cfg config.Config) (*hardware, error) {
	chip, err := gpio.OpenChip(cfg.Pins.Chip)
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	hw := &hardware{chip: chip}

	var errs []error
	request := func(name string, f func() error) {
		if err := f(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	output := func(name string, offset int, initial bool, dst *gpio.Output) {
		request(name, func() (err error) {
			*dst, err = chip.Output(offset, initial)
			return err
		})
	}

	request("button", func() (err error) {
		hw.button, err = chip.Input(cfg.Pins.Button, gpio.InputOptions{Pull: gpio.PullUp, ActiveLow: true})
		return err
	})
	output("led red", cfg.Pins.LEDRed, false, &hw.ledRed)
	output("led green", cfg.Pins.LEDGreen, false, &hw.ledGreen)
	output("led blue", cfg.Pins.LEDBlue, false, &hw.ledBlue)
	output("modem reset", cfg.Pins.ModemReset, true, &hw.modemReset)
	output("modem power key", cfg.Pins.ModemPower, true, &hw.modemPowerKey)

	if err := errors.Join(errs...); err != nil {
		chip.Close()
		return nil, fmt.Errorf("request gpio lines: %w", err)
	}
	return hw, nil
}

func (hw *hardware) Close() error {
	return hw.chip.Close()
}

// openSensors requests the sensor and night-vision lines. It runs once,
// from the orchestrator's boot sequence.
func (hw *hardware) openSensors(cfg config.Config, th sensors.Thresholds) (*sensors.Suite, error) {
	latched := gpio.InputOptions{Pull: gpio.PullDown}
	pir, err := hw.chip.LatchedInput(cfg.Pins.PIR, latched)
	if err != nil {
		return nil, fmt.Errorf("pir: %w", err)
	}
	sound, err := hw.chip.LatchedInput(cfg.Pins.Sound, latched)
	if err != nil {
		return nil, fmt.Errorf("sound: %w", err)
	}
	irLED, err := hw.chip.Output(cfg.Pins.IRLED, false)
	if err != nil {
		return nil, fmt.Errorf("ir led: %w", err)
	}
	irCut, err := hw.chip.Output(cfg.Pins.IRCut, true)
	if err != nil {
		return nil, fmt.Errorf("ir cut: %w", err)
	}
	ir, err := sensors.NewIR(irLED, irCut)
	if err != nil {
		return nil, err
	}
	light := sensors.NewLight(cfg.Sensors.LightADCPath, cfg.Sensors.LightADCMax)
	if err := light.Check(); err != nil {
		return nil, err
	}
	return &sensors.Suite{
		PIR:        sensors.NewPIR(pir, cfg.Monitor.PIRCooldown),
		Sound:      sensors.NewSound(sound),
		Light:      light,
		IR:         ir,
		Thresholds: th,
		Log:        log.WithComponent("sensors"),
	}, nil
}

// printState reports the button, PIR, sound and light levels.
func (hw *hardware) printState(w io.Writer, cfg config.Config) error {
	button, err := hw.button.Value()
	if err != nil {
		return fmt.Errorf("read button: %w", err)
	}
	pir, err := hw.chip.Input(cfg.Pins.PIR, gpio.InputOptions{Pull: gpio.PullDown})
	if err != nil {
		return fmt.Errorf("pir: %w", err)
	}
	sound, err := hw.chip.Input(cfg.Pins.Sound, gpio.InputOptions{Pull: gpio.PullDown})
	if err != nil {
		return fmt.Errorf("sound: %w", err)
	}
	motion, err := pir.Value()
	if err != nil {
		return fmt.Errorf("read pir: %w", err)
	}
	noise, err := sound.Value()
	if err != nil {
		return fmt.Errorf("read sound: %w", err)
	}
	light := "n/a"
	if level, err := sensors.NewLight(cfg.Sensors.LightADCPath, cfg.Sensors.LightADCMax).Level(); err == nil {
		light = fmt.Sprintf("%d", level)
	}
	_, err = fmt.Fprintf(w, "button: %s, pir: %s, sound: %s, light: %s\n",
		onOff(button), onOff(motion), onOff(noise), light)
	return err
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// lightThresholds applies the provisioned light threshold to the IR LEDs.
// The IR cut threshold never drops below it, so the filter is out
// whenever the LEDs are lit.
func lightThresholds(cfg config.Config, store *settings.Store) sensors.Thresholds {
	th := sensors.Thresholds{IRLEDs: cfg.Monitor.LightIRLEDs, IRCut: cfg.Monitor.LightIRCut}
	th.IRLEDs = store.Int(settings.Sensors, settings.KeyLightThreshold, th.IRLEDs)
	if th.IRCut < th.IRLEDs {
		th.IRCut = th.IRLEDs
	}
	return th
}

func openStorage(cfg config.Config) (*storage.Dir, error) {
	return storage.Open(cfg.Storage.CaptureDir, cfg.Storage.MinFreeMB)
}

func openCamera(cfg config.Config) (*camera.Exec, error) {
	cam, err := camera.NewExec(cfg.Camera.Command, cfg.Camera.Timeout)
	if err != nil {
		return nil, err
	}
	if err := cam.Check(); err != nil {
		return nil, err
	}
	return cam, nil
}

func slot(s config.Slot) device.Schedule {
	return device.Schedule{Weekday: s.Weekday, Hour: s.Hour, Minute: s.Minute}
}

func deviceConfig(cfg config.Config) device.Config {
	return device.Config{
		InactivityTimeout:  cfg.Monitor.InactivityTimeout,
		CaptureInterval:    cfg.Monitor.CaptureInterval,
		MaxFilesPerSession: cfg.Monitor.MaxFilesPerSession,
		ProbeMaxAge:        cfg.Monitor.ProbeMaxAge,
		BaseFilename:       cfg.Storage.BaseFilename,
		CredentialsFile:    cfg.Upload.CredentialsFile,
		OTATimeout:         cfg.Device.OTATimeout,
		ResumeDelay:        cfg.Button.ResumeDelay,
		TimeSyncRetry:      cfg.Schedule.TimeSyncRetry,

		WeeklyPhoto:       slot(cfg.Schedule.WeeklyPhoto),
		ConnectivityCheck: slot(cfg.Schedule.ConnectivityCheck),
		TimeSync:          slot(cfg.Schedule.TimeSync),

		Startup: gesture.StartupOptions{
			Thresholds: gesture.HoldThresholds{
				Provisioning: cfg.Button.ProvisioningHold,
				OTA:          cfg.Button.OTAHold,
				FactoryReset: cfg.Button.FactoryResetHold,
			},
			Settle:       cfg.Button.StartupSettle,
			MaxHold:      cfg.Button.MaxHold,
			SamplePeriod: cfg.Button.SamplePeriod,
		},
		Recognizer: gesture.RecognizerConfig{
			Debounce:     cfg.Button.Debounce,
			ClickMaxHold: cfg.Button.ClickMaxHold,
			ClickWindow:  cfg.Button.ClickWindow,
			ClickCount:   cfg.Button.ClickCount,
		},
	}
}
