package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}

	positive("device.loop_interval", c.Device.LoopInterval)
	positive("device.ota_timeout", c.Device.OTATimeout)
	positive("monitor.pir_cooldown", c.Monitor.PIRCooldown)
	positive("monitor.inactivity_timeout", c.Monitor.InactivityTimeout)
	positive("monitor.capture_interval", c.Monitor.CaptureInterval)
	positive("monitor.probe_max_age", c.Monitor.ProbeMaxAge)
	positive("button.debounce", c.Button.Debounce)
	positive("button.click_window", c.Button.ClickWindow)
	positive("button.resume_delay", c.Button.ResumeDelay)
	positive("button.max_hold", c.Button.MaxHold)
	positive("button.sample_period", c.Button.SamplePeriod)
	positive("modem.command_timeout", c.Modem.CommandTimeout)
	positive("modem.poll_interval", c.Modem.PollInterval)
	positive("schedule.time_sync_retry", c.Schedule.TimeSyncRetry)

	if c.Button.ClickCount < 2 {
		errs = append(errs, fmt.Errorf("button.click_count must be at least 2, got %d", c.Button.ClickCount))
	}
	if !(c.Button.ProvisioningHold < c.Button.OTAHold && c.Button.OTAHold < c.Button.FactoryResetHold) {
		errs = append(errs, errors.New("button hold thresholds must be strictly ascending: provisioning < ota < factory_reset"))
	}
	if c.Button.FactoryResetHold >= c.Button.MaxHold {
		errs = append(errs, errors.New("button.max_hold must exceed button.factory_reset_hold"))
	}
	if c.MQTT.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("mqtt.heartbeat must not be negative, got %v", c.MQTT.Heartbeat))
	}
	if c.Modem.RetryCount < 1 {
		errs = append(errs, fmt.Errorf("modem.retry_count must be at least 1, got %d", c.Modem.RetryCount))
	}
	if c.Sensors.LightADCMax <= 0 {
		errs = append(errs, fmt.Errorf("sensors.light_adc_max must be positive, got %d", c.Sensors.LightADCMax))
	}
	if c.Monitor.MaxFilesPerSession < 1 {
		errs = append(errs, fmt.Errorf("monitor.max_files_per_session must be at least 1, got %d", c.Monitor.MaxFilesPerSession))
	}

	for name, s := range map[string]Slot{
		"schedule.weekly_photo":       c.Schedule.WeeklyPhoto,
		"schedule.connectivity_check": c.Schedule.ConnectivityCheck,
		"schedule.time_sync":          c.Schedule.TimeSync,
	} {
		if s.Weekday < -1 || s.Weekday > 6 {
			errs = append(errs, fmt.Errorf("%s.weekday must be -1..6, got %d", name, s.Weekday))
		}
		if s.Hour < 0 || s.Hour > 23 {
			errs = append(errs, fmt.Errorf("%s.hour must be 0..23, got %d", name, s.Hour))
		}
		if s.Minute < 0 || s.Minute > 59 {
			errs = append(errs, fmt.Errorf("%s.minute must be 0..59, got %d", name, s.Minute))
		}
	}

	if n := len(c.Storage.BaseFilename); n < 2 || n > 8 {
		errs = append(errs, fmt.Errorf("storage.base_filename must be 2-8 characters, got %q", c.Storage.BaseFilename))
	}
	switch c.Upload.Transport {
	case "modem", "direct":
	default:
		errs = append(errs, fmt.Errorf("upload.transport must be modem or direct, got %q", c.Upload.Transport))
	}
	if len(c.Camera.Command) == 0 {
		errs = append(errs, errors.New("camera.command must not be empty"))
	}

	return errors.Join(errs...)
}
