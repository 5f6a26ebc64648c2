package device

import (
	"context"
	"time"

	"github.com/Xylopyrographer/CabinMonitor/internal/gesture"
	"github.com/Xylopyrographer/CabinMonitor/internal/metrics"
	"github.com/Xylopyrographer/CabinMonitor/internal/notify"
	"github.com/Xylopyrographer/CabinMonitor/internal/settings"
	"github.com/Xylopyrographer/CabinMonitor/internal/storage"
	"github.com/Xylopyrographer/CabinMonitor/internal/upload"
)

// Step runs one loop iteration: transport polling in the maintenance
// states, otherwise the state handler, the schedules and the button, and
// finally the indicator. Modem work inside a step blocks until it
// finishes; nothing else is evaluated meanwhile.
func (d *Device) Step(ctx context.Context) error {
	now := d.now()
	switch d.state {
	case FactoryReset:
		d.updateIndicator(now)
		return ErrHalted
	case OTAUpdate:
		err := d.stepOTA(now)
		d.updateIndicator(now)
		return err
	case NeedsProvisioning, Provisioning:
		err := d.stepProvisioning(now)
		d.updateIndicator(now)
		return err
	case Init, Error:
		d.updateIndicator(now)
		return nil
	}

	d.handleState(ctx, now)
	d.timeEvents(ctx, d.now())
	d.button(ctx, d.now())
	d.updateIndicator(d.now())
	return nil
}

func (d *Device) updateIndicator(now time.Time) {
	if err := d.deps.Indicator.Update(now); err != nil {
		d.log.Debug().Err(err).Msg("update indicator")
	}
}

func (d *Device) stepOTA(now time.Time) error {
	d.deps.OTA.Poll(now)
	if !d.deps.OTA.Active() {
		d.log.Info().Msg("firmware update transport finished, restarting")
		return ErrRestart
	}
	if now.Sub(d.otaSince) > d.cfg.OTATimeout {
		d.log.Warn().Dur("timeout", d.cfg.OTATimeout).Msg("firmware update timed out, restarting")
		if err := d.deps.OTA.Stop(); err != nil {
			d.log.Warn().Err(err).Msg("stop firmware update transport")
		}
		return ErrRestart
	}
	return nil
}

func (d *Device) stepProvisioning(now time.Time) error {
	d.deps.Provisioning.Poll(now)
	if d.deps.Provisioning.Active() {
		return nil
	}
	if _, err := upload.LoadCredentials(d.cfg.CredentialsFile); err != nil {
		return nil
	}
	d.log.Info().Msg("provisioning complete, restarting")
	return ErrRestart
}

func (d *Device) handleState(ctx context.Context, now time.Time) {
	switch d.state {
	case Idle:
		d.checkSensors(now)
	case MotionDetected, SoundDetected:
		d.lastActivity = now
		d.transition(Capturing, now)
	case Capturing:
		d.stepCapturing(ctx, now)
	case Uploading:
		d.stepUploading(ctx, now)
	case MonitoringDisabled:
		if d.monitor.Enabled() {
			d.log.Info().Msg("monitoring re-enabled")
			d.transition(Idle, now)
		}
	default:
		d.log.Error().Str("state", string(d.state)).Msg("unknown state")
		d.transition(Error, now)
	}
}

// checkSensors moves to MotionDetected or SoundDetected on activity. Both
// sensors are read every time; sound wins when both fire, and only one
// transition is made.
func (d *Device) checkSensors(now time.Time) bool {
	if !d.monitor.Enabled() {
		return false
	}
	motion := d.sensors.Motion(now)
	sound := d.sensors.SoundDetected(now)
	if !motion && !sound {
		return false
	}
	d.log.Info().Bool("motion", motion).Bool("sound", sound).Msg("activity detected")
	d.lastActivity = now
	if sound {
		d.transition(SoundDetected, now)
	} else {
		d.transition(MotionDetected, now)
	}
	return true
}

// activity polls the sensors without changing state.
func (d *Device) activity(now time.Time) bool {
	if !d.monitor.Enabled() {
		return false
	}
	motion := d.sensors.Motion(now)
	sound := d.sensors.SoundDetected(now)
	return motion || sound
}

func (d *Device) stepCapturing(ctx context.Context, now time.Time) {
	if idle := now.Sub(d.lastActivity); idle > d.cfg.InactivityTimeout {
		d.log.Info().Dur("idle", idle).Msg("inactivity timeout, starting upload")
		d.transition(Uploading, now)
		d.notify(ctx, notify.Activity)
		return
	}

	d.checkSensors(now)

	if now.Sub(d.lastCapture) >= d.cfg.CaptureInterval {
		d.capture(ctx, now)
		d.lastCapture = now
		if d.stored >= d.cfg.MaxFilesPerSession {
			d.log.Info().Int("files", d.stored).Msg("session file limit reached, starting upload")
			d.transition(Uploading, now)
			d.notify(ctx, notify.Activity)
		}
	}
}

// capture takes one photo and stores it. Failures are logged and counted;
// the episode carries on.
func (d *Device) capture(ctx context.Context, now time.Time) bool {
	level, err := d.sensors.PrepareCapture()
	if err != nil {
		d.log.Warn().Err(err).Msg("night vision setup failed")
	}

	data, err := d.camera.Capture(ctx)
	if err != nil {
		metrics.RecordCapture(false)
		d.log.Warn().Err(err).Msg("capture failed")
		return false
	}

	name := storage.FileName(d.baseFilename, now)
	if err := d.storage.Save(name, data); err != nil {
		metrics.RecordCapture(false)
		d.log.Warn().Err(err).Str("file", name).Msg("save capture failed")
		return false
	}
	d.stored++
	d.captures++
	metrics.RecordCapture(true)
	d.log.Debug().Str("file", name).Int("light", level).Int("bytes", len(data)).Msg("capture saved")
	d.publish(Event{Time: now, Type: EventCapture, Detail: name})
	return true
}

func (d *Device) timeEvents(ctx context.Context, now time.Time) {
	retry := !d.syncFailedAt.IsZero() && now.Sub(d.syncFailedAt) >= d.cfg.TimeSyncRetry
	if d.timeSync.Due(now) || retry {
		d.syncTime(ctx, now)
	}

	if d.connectivity.Due(now) {
		d.log.Info().Msg("daily connectivity check")
		if d.probe(ctx, now, true) && d.state == Idle && d.stored > 0 {
			d.log.Info().Int("files", d.stored).Msg("retrying pending upload")
			d.transition(Uploading, now)
		}
	}

	if d.state == Idle && d.monitor.Enabled() && d.weekly.Due(now) {
		d.log.Info().Msg("taking weekly photo")
		d.capture(ctx, now)
		d.lastCapture = now
		d.notify(ctx, notify.NoActivity)
		d.transition(Uploading, now)
	}
}

func (d *Device) button(ctx context.Context, now time.Time) {
	pressed, err := d.deps.Button.Value()
	if err != nil {
		if !d.buttonFailed {
			d.log.Warn().Err(err).Msg("button read failed")
			d.buttonFailed = true
		}
		pressed = false
	} else {
		d.buttonFailed = false
	}

	var ev gesture.MonitorEvent
	if g := d.buttons.Sample(pressed, now); g == gesture.GestureToggle {
		metrics.RecordGesture(g.String())
		ev = d.monitor.Toggle(now)
	} else {
		ev = d.monitor.Tick(now)
	}

	switch ev {
	case gesture.MonitorDisabled:
		d.log.Info().Msg("monitoring disabled")
		d.saveMonitoring()
		d.transition(MonitoringDisabled, now)
		d.notify(ctx, notify.MonitoringDisabled)
		d.publish(Event{Time: now, Type: EventMonitoring, Detail: ev.String()})
	case gesture.MonitorResumed:
		d.log.Info().Msg("monitoring enabled")
		d.saveMonitoring()
		d.notify(ctx, notify.MonitoringEnabled)
		d.publish(Event{Time: now, Type: EventMonitoring, Detail: ev.String()})
	}
}

func (d *Device) saveMonitoring() {
	s := d.deps.Settings
	if err := s.Put(settings.Monitoring, keyEnabled, d.monitor.Enabled()); err != nil {
		d.log.Warn().Err(err).Msg("persist monitoring flag")
	}
	if err := s.Put(settings.Monitoring, keyDisabledAt, d.monitor.DisabledAt()); err != nil {
		d.log.Warn().Err(err).Msg("persist monitoring flag")
	}
}
