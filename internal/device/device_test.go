package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xylopyrographer/CabinMonitor/internal/indicator"
	"github.com/Xylopyrographer/CabinMonitor/internal/notify"
	"github.com/Xylopyrographer/CabinMonitor/internal/settings"
	"github.com/Xylopyrographer/CabinMonitor/internal/upload"
)

func TestNormalBootGoesIdle(t *testing.T) {
	h := newHarness(t)
	h.mustStart()

	assert.Equal(t, Idle, h.dev.State())
	assert.Equal(t, []string{"storage", "camera", "sensors"}, h.opened)
	assert.Equal(t, 1, h.link.bringUps)
	assert.Equal(t, 1, h.link.syncs)
	assert.Len(t, h.clock.sets, 1)
	assert.Equal(t, []indicator.State{indicator.Init, indicator.Idle}, h.led.states)
	assert.Equal(t, []State{Idle}, h.events.transitions())
	assert.Equal(t, Init, h.events.events[0].From)
	assert.Equal(t, "Activity detected", h.notifier.msgs.Text(notify.Activity))
	assert.Empty(t, h.notifier.kinds)
}

func TestLinkFailureAtBootIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.link.bringUpErr = errBoom
	h.link.syncErr = errBoom
	h.mustStart()

	assert.Equal(t, Idle, h.dev.State())
	assert.Empty(t, h.clock.sets)
}

func TestCollaboratorFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.openErr["camera"] = errBoom
	h.mustStart()

	assert.Equal(t, Error, h.dev.State())
	assert.Equal(t, []string{"storage", "camera"}, h.opened)
	assert.Zero(t, h.link.bringUps, "link is not touched after a fatal failure")

	h.sensors.motion = true
	h.clock.Advance(time.Second)
	h.step()
	assert.Equal(t, Error, h.dev.State(), "error state needs a restart")
	assert.Equal(t, indicator.Error, h.led.states[len(h.led.states)-1])
}

func TestUnprovisionedBootEntersProvisioning(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.settings.Delete(settings.Monitoring, keyProvisioned))
	require.NoError(t, upload.DeleteCredentials(h.cfg.CredentialsFile))
	h.mustStart()

	assert.Equal(t, Provisioning, h.dev.State())
	assert.Equal(t, []State{NeedsProvisioning, Provisioning}, h.events.transitions())
	assert.Empty(t, h.opened, "collaborators are not opened for provisioning")
	assert.Equal(t, 1, h.prov.starts)

	h.step()
	assert.Equal(t, 1, h.prov.polls)

	h.prov.active = false
	h.step()
	assert.Equal(t, Provisioning, h.dev.State(), "no restart until credentials exist")

	require.NoError(t, upload.SaveCredentials(h.cfg.CredentialsFile, testCreds))
	assert.ErrorIs(t, h.dev.Step(context.Background()), ErrRestart)
}

func TestMissingCredentialsEntersProvisioning(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, upload.DeleteCredentials(h.cfg.CredentialsFile))
	h.mustStart()

	assert.Equal(t, Provisioning, h.dev.State())
	assert.Equal(t, []string{"storage", "camera", "sensors"}, h.opened)
}

func TestProvisioningTransportFailure(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.settings.Delete(settings.Monitoring, keyProvisioned))
	h.prov.startErr = errBoom
	h.mustStart()
	assert.Equal(t, Error, h.dev.State())
}

func TestStartupHoldProvisioning(t *testing.T) {
	h := newHarness(t)
	h.button.pressedUntil = t0.Add(1700 * time.Millisecond)
	h.mustStart()

	assert.Equal(t, Provisioning, h.dev.State())
	assert.Equal(t, []State{Provisioning}, h.events.transitions(), "already provisioned")
}

func TestStartupHoldOTA(t *testing.T) {
	h := newHarness(t)
	h.button.pressedUntil = t0.Add(2700 * time.Millisecond)
	h.mustStart()

	assert.Equal(t, OTAUpdate, h.dev.State())
	assert.Equal(t, 1, h.ota.starts)
	assert.Contains(t, h.led.states, indicator.ButtonPressed)

	h.clock.Advance(time.Minute)
	h.step()
	assert.Equal(t, 1, h.ota.polls)

	h.clock.Advance(5 * time.Minute)
	assert.ErrorIs(t, h.dev.Step(context.Background()), ErrRestart)
	assert.Equal(t, 1, h.ota.stops)
}

func TestOTAFinishRestarts(t *testing.T) {
	h := newHarness(t)
	h.button.pressedUntil = t0.Add(2700 * time.Millisecond)
	h.mustStart()

	h.ota.active = false
	assert.ErrorIs(t, h.dev.Step(context.Background()), ErrRestart)
}

func TestStartupHoldFactoryReset(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.settings.Put(settings.SMS, "phone", "5551234"))
	require.NoError(t, h.settings.Put(settings.Sensors, "light_threshold", 40))
	h.button.pressedUntil = t0.Add(11 * time.Second)

	assert.ErrorIs(t, h.start(), ErrHalted)
	assert.Equal(t, FactoryReset, h.dev.State())
	assert.Empty(t, h.opened)

	for _, ns := range settings.FactoryNamespaces {
		keys, err := h.settings.Keys(ns)
		require.NoError(t, err)
		assert.Empty(t, keys, ns)
	}
	_, err := upload.LoadCredentials(h.cfg.CredentialsFile)
	assert.ErrorIs(t, err, upload.ErrNotConfigured)

	assert.Equal(t, []indicator.State{
		indicator.Init, indicator.ButtonPressed, indicator.Provisioning,
		indicator.OTA, indicator.FactoryReset, indicator.FactoryReset,
	}, h.led.states)

	assert.ErrorIs(t, h.dev.Step(context.Background()), ErrHalted)
}

func TestPendingFilesAtBootAreUploaded(t *testing.T) {
	h := newHarness(t)
	h.seed("cap_20251231_100000.jpg", "cap_20251231_100002.jpg")
	h.mustStart()

	assert.Equal(t, Uploading, h.dev.State())
	assert.Equal(t, []notify.Kind{notify.Activity}, h.notifier.kinds)

	h.clock.Advance(10 * time.Millisecond)
	h.step()
	assert.Equal(t, Idle, h.dev.State())
	assert.Equal(t, []string{"cap_20251231_100000.jpg", "cap_20251231_100002.jpg"}, h.uploader.uploaded)
	assert.Empty(t, h.stored())
	assert.Equal(t, []notify.Kind{notify.Activity, notify.CommunicationOK}, h.notifier.kinds)

	info := h.dev.Info()
	require.NotNil(t, info.LastUpload)
	assert.True(t, info.LastUpload.Complete())
	assert.Equal(t, 0, info.Stored)
	assert.Equal(t, 0, info.Confirmed)
}

func TestMotionStartsCaptureEpisode(t *testing.T) {
	h := newHarness(t)
	h.mustStart()

	h.sensors.motion = true
	h.clock.Advance(10 * time.Millisecond)
	h.step()
	assert.Equal(t, MotionDetected, h.dev.State())

	h.clock.Advance(10 * time.Millisecond)
	h.step()
	assert.Equal(t, Capturing, h.dev.State())

	h.clock.Advance(10 * time.Millisecond)
	h.step()
	assert.Equal(t, 1, h.camera.Captures)
	assert.Equal(t, 1, h.sensors.prepared)

	h.run(1900*time.Millisecond, 100*time.Millisecond)
	assert.Equal(t, 1, h.camera.Captures, "interval not yet elapsed")
	h.run(200*time.Millisecond, 100*time.Millisecond)
	assert.Equal(t, 2, h.camera.Captures)

	assert.Len(t, h.stored(), 2)
	assert.Equal(t, []indicator.State{
		indicator.Init, indicator.Idle, indicator.PIR, indicator.Capturing,
	}, h.led.states)
}

func TestSoundStartsCaptureEpisode(t *testing.T) {
	h := newHarness(t)
	h.mustStart()

	h.sensors.sound = true
	h.clock.Advance(10 * time.Millisecond)
	h.step()
	assert.Equal(t, SoundDetected, h.dev.State())
	h.step()
	assert.Equal(t, Capturing, h.dev.State())
}

func TestMotionAndSoundTogetherMakeOneTransition(t *testing.T) {
	h := newHarness(t)
	h.mustStart()

	h.sensors.motion = true
	h.sensors.sound = true
	h.clock.Advance(10 * time.Millisecond)
	h.step()
	assert.Equal(t, SoundDetected, h.dev.State())
	assert.Equal(t, []State{Idle, SoundDetected}, h.events.transitions())
	assert.Equal(t, []indicator.State{indicator.Init, indicator.Idle, indicator.Sound}, h.led.states)
	assert.False(t, h.sensors.motion, "both sensors are read")
}

func TestCapturingEndsExactlyAfterInactivityTimeout(t *testing.T) {
	h := newHarness(t)
	h.mustStart()

	h.sensors.motion = true
	h.clock.Advance(10 * time.Millisecond)
	h.step()
	h.clock.Advance(10 * time.Millisecond)
	h.step()
	require.Equal(t, Capturing, h.dev.State())
	activity := h.clock.Now()

	h.clock.t = activity.Add(60 * time.Second)
	h.step()
	assert.Equal(t, Capturing, h.dev.State(), "timeout must be exceeded, not reached")
	assert.Empty(t, h.notifier.kinds)

	h.clock.t = activity.Add(60*time.Second + time.Millisecond)
	h.step()
	assert.Equal(t, Uploading, h.dev.State())
	assert.Equal(t, []notify.Kind{notify.Activity}, h.notifier.kinds)
}

func TestNewActivityExtendsEpisode(t *testing.T) {
	h := newHarness(t)
	h.mustStart()

	h.sensors.motion = true
	h.step()
	h.step()
	start := h.clock.Now()

	h.clock.t = start.Add(50 * time.Second)
	h.sensors.sound = true
	h.step()
	assert.Equal(t, SoundDetected, h.dev.State())
	h.step()
	assert.Equal(t, Capturing, h.dev.State())

	h.clock.t = start.Add(100 * time.Second)
	h.step()
	assert.Equal(t, Capturing, h.dev.State())
	h.clock.t = start.Add(111 * time.Second)
	h.step()
	assert.Equal(t, Uploading, h.dev.State())
}

func TestSessionFileLimitForcesUpload(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxFilesPerSession = 3
	h.mustStart()

	h.sensors.motion = true
	h.step()
	h.step()
	h.run(5*time.Second, time.Second)
	assert.Equal(t, 3, h.camera.Captures)
	assert.Equal(t, Uploading, h.dev.State())
}

func TestUploadInterruptedByActivityRetriesRemainingFiles(t *testing.T) {
	h := newHarness(t)
	f1, f2, f3 := "cap_20251231_100000.jpg", "cap_20251231_100002.jpg", "cap_20251231_100004.jpg"
	h.seed(f1, f2, f3)
	h.mustStart()
	require.Equal(t, Uploading, h.dev.State())

	h.uploader.onUpload = func(name string) {
		if name == f1 {
			h.sensors.motion = true
		}
	}
	h.clock.Advance(10 * time.Millisecond)
	h.step()

	assert.Equal(t, Capturing, h.dev.State())
	assert.Equal(t, []string{f1}, h.uploader.uploaded)
	info := h.dev.Info()
	assert.True(t, info.UploadInterrupted)
	assert.Equal(t, 1, info.Confirmed)
	require.NotNil(t, info.LastUpload)
	assert.True(t, info.LastUpload.Interrupted)
	assert.Equal(t, "interrupted", info.LastUpload.Label())
	assert.Len(t, h.stored(), 3, "nothing is deleted after an interrupted cycle")

	h.uploader.onUpload = nil
	h.run(70*time.Second, time.Second)

	assert.Equal(t, Idle, h.dev.State())
	assert.Equal(t, 1, count(h.uploader.uploaded, f1), "confirmed file is not sent twice")
	assert.Equal(t, 1, count(h.uploader.uploaded, f2))
	assert.Equal(t, 1, count(h.uploader.uploaded, f3))
	assert.Equal(t, 3+h.camera.Captures, len(h.uploader.uploaded))
	assert.Empty(t, h.stored())
	assert.False(t, h.dev.Info().UploadInterrupted)
}

func TestActivityBeforeUploadStartsReturnsToCapturing(t *testing.T) {
	h := newHarness(t)
	h.seed("cap_20251231_100000.jpg")
	h.mustStart()

	h.sensors.motion = true
	h.step()
	assert.Equal(t, Capturing, h.dev.State())
	assert.Zero(t, h.uploader.probes)
	assert.True(t, h.dev.Info().UploadInterrupted)
}

func TestPartialUploadKeepsUnconfirmedFiles(t *testing.T) {
	h := newHarness(t)
	f1, f2 := "cap_20251231_100000.jpg", "cap_20251231_100002.jpg"
	h.seed(f1, f2)
	h.uploader.failures[f2] = errBoom
	h.mustStart()

	h.step()
	assert.Equal(t, Idle, h.dev.State())
	assert.Equal(t, []string{f1, f2}, h.uploader.attempts)
	assert.Equal(t, []string{f1, f2}, h.stored())
	assert.Equal(t, 1, h.dev.Info().Confirmed)
	assert.Equal(t, "partial", h.dev.Info().LastUpload.Label())

	delete(h.uploader.failures, f2)
	h.clock.t = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	h.step()
	assert.Equal(t, Uploading, h.dev.State(), "daily check retries pending files")

	h.clock.Advance(time.Second)
	h.step()
	assert.Equal(t, Idle, h.dev.State())
	assert.Equal(t, []string{f1, f2, f2}, h.uploader.attempts)
	assert.Empty(t, h.stored())
	assert.Equal(t, []notify.Kind{notify.Activity, notify.CommunicationOK, notify.CommunicationOK}, h.notifier.kinds)
}

func TestProbeFailureSkipsTransfer(t *testing.T) {
	h := newHarness(t)
	h.seed("cap_20251231_100000.jpg")
	h.uploader.probeErr = errBoom
	h.mustStart()

	h.step()
	assert.Equal(t, Idle, h.dev.State())
	assert.Empty(t, h.uploader.attempts)
	assert.Len(t, h.stored(), 1)
	assert.Equal(t, []notify.Kind{notify.Activity, notify.NoCommunication}, h.notifier.kinds)
	assert.True(t, h.dev.Info().LastUpload.Skipped)

	h.uploader.probeErr = nil
	h.clock.t = time.Date(2026, 1, 5, 9, 0, 30, 0, time.UTC)
	h.step()
	h.step()
	assert.Equal(t, Idle, h.dev.State())
	assert.Len(t, h.uploader.uploaded, 1)
	assert.Equal(t, 2, h.uploader.probes)
}

func TestDailyConnectivityCheckFiresOncePerMinute(t *testing.T) {
	h := newHarness(t)
	h.mustStart()
	require.Equal(t, Idle, h.dev.State())

	h.clock.t = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	h.step()
	assert.Equal(t, 1, h.uploader.probes)
	assert.Equal(t, []notify.Kind{notify.CommunicationOK}, h.notifier.kinds)
	assert.Equal(t, Idle, h.dev.State(), "nothing stored, nothing to upload")

	h.clock.t = time.Date(2026, 1, 5, 9, 0, 30, 0, time.UTC)
	h.step()
	h.clock.t = time.Date(2026, 1, 5, 9, 0, 59, 0, time.UTC)
	h.step()
	assert.Equal(t, 1, h.uploader.probes, "same minute does not fire twice")
	assert.Len(t, h.notifier.kinds, 1)

	h.clock.t = time.Date(2026, 1, 6, 9, 0, 5, 0, time.UTC)
	h.step()
	assert.Equal(t, 2, h.uploader.probes)
	assert.Equal(t, []notify.Kind{notify.CommunicationOK, notify.CommunicationOK}, h.notifier.kinds,
		"a scheduled check notifies even when the result is unchanged")

	h.uploader.probeErr = errBoom
	h.clock.t = time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)
	h.step()
	assert.Equal(t, 3, h.uploader.probes)
	assert.Equal(t, notify.NoCommunication, h.notifier.kinds[len(h.notifier.kinds)-1])
	assert.Equal(t, Idle, h.dev.State())

	var checks int
	for _, e := range h.events.events {
		if e.Type == EventConnectivity {
			checks++
		}
	}
	assert.Equal(t, 3, checks)
}

func TestDailyConnectivityCheckRetriesPendingUpload(t *testing.T) {
	h := newHarness(t)
	f := "cap_20251231_100000.jpg"
	h.seed(f)
	h.uploader.probeErr = errBoom
	h.mustStart()
	h.step()
	require.Equal(t, Idle, h.dev.State())
	require.Len(t, h.stored(), 1)

	h.clock.t = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	h.step()
	assert.Equal(t, Idle, h.dev.State(), "a failed check leaves files pending")
	assert.Equal(t, 2, h.uploader.probes)

	h.uploader.probeErr = nil
	h.clock.t = time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)
	h.step()
	assert.Equal(t, Uploading, h.dev.State())
	assert.Equal(t, 3, h.uploader.probes)

	h.clock.Advance(time.Second)
	h.step()
	assert.Equal(t, Idle, h.dev.State())
	assert.Equal(t, 3, h.uploader.probes, "the check's result is reused for the transfer")
	assert.Equal(t, []string{f}, h.uploader.uploaded)
	assert.Empty(t, h.stored())
	assert.Equal(t, []notify.Kind{
		notify.Activity, notify.NoCommunication, notify.NoCommunication, notify.CommunicationOK,
	}, h.notifier.kinds)
}

func TestProbeReusedWhileFresh(t *testing.T) {
	h := newHarness(t)
	h.seed("cap_20251231_100000.jpg")
	h.mustStart()
	h.step()
	require.Equal(t, 1, h.uploader.probes)

	episode := func() {
		h.sensors.motion = true
		h.run(70*time.Second, time.Second)
		require.Equal(t, Idle, h.dev.State())
	}

	episode()
	assert.Equal(t, 1, h.uploader.probes, "fresh probe is reused")

	h.clock.Advance(7 * time.Hour)
	episode()
	assert.Equal(t, 2, h.uploader.probes, "stale probe is repeated")
	assert.Equal(t, 1, count(kindsToStrings(h.notifier.kinds), string(notify.CommunicationOK)),
		"unchanged result is not re-announced")
}

func kindsToStrings(ks []notify.Kind) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = string(k)
	}
	return out
}

func TestWeeklyPhotoFiresOncePerMinute(t *testing.T) {
	h := newHarness(t)
	h.mustStart()

	h.clock.t = time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	h.step()
	assert.Equal(t, Uploading, h.dev.State())
	assert.Equal(t, 1, h.camera.Captures)
	assert.Equal(t, []notify.Kind{notify.NoActivity}, h.notifier.kinds)

	h.run(50*time.Second, time.Second)
	assert.Equal(t, Idle, h.dev.State())
	assert.Equal(t, 1, h.camera.Captures, "same minute does not fire twice")
	assert.Len(t, h.uploader.uploaded, 1)

	h.clock.t = time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC)
	h.step()
	assert.Equal(t, 1, h.camera.Captures, "tuesday is not a photo day")

	h.clock.t = time.Date(2026, 1, 12, 12, 0, 5, 0, time.UTC)
	h.step()
	assert.Equal(t, 2, h.camera.Captures)
}

func TestWeeklyPhotoWaitsForIdle(t *testing.T) {
	h := newHarness(t)
	h.mustStart()

	h.clock.t = time.Date(2026, 1, 5, 11, 59, 50, 0, time.UTC)
	h.sensors.motion = true
	h.step()
	h.step()
	require.Equal(t, Capturing, h.dev.State())

	h.clock.t = time.Date(2026, 1, 5, 12, 0, 10, 0, time.UTC)
	h.step()
	assert.Empty(t, h.notifier.kinds, "no weekly photo during an episode")
}

func TestTimeSyncScheduleAndRetry(t *testing.T) {
	h := newHarness(t)
	h.link.syncErr = errBoom
	h.mustStart()
	require.Equal(t, 1, h.link.syncs)

	h.clock.Advance(59 * time.Minute)
	h.step()
	assert.Equal(t, 1, h.link.syncs)

	h.clock.Advance(time.Minute)
	h.step()
	assert.Equal(t, 2, h.link.syncs, "failed sync is retried")

	h.link.syncErr = nil
	h.clock.Advance(time.Hour)
	h.step()
	assert.Equal(t, 3, h.link.syncs)
	assert.Len(t, h.clock.sets, 1)

	h.clock.Advance(time.Hour)
	h.step()
	assert.Equal(t, 3, h.link.syncs, "no retry after success")

	h.clock.t = time.Date(2026, 1, 6, 3, 0, 0, 0, time.UTC)
	h.step()
	h.clock.Advance(30 * time.Second)
	h.step()
	assert.Equal(t, 4, h.link.syncs, "daily sync fires once in its minute")
	assert.Equal(t, h.clock.sets[len(h.clock.sets)-1], h.dev.Info().LastTimeSync)
}

func TestTripleClickDisablesAndAutoResumes(t *testing.T) {
	h := newHarness(t)
	h.mustStart()

	h.click()
	h.click()
	assert.Equal(t, Idle, h.dev.State(), "two clicks do nothing")
	h.click()
	assert.Equal(t, MonitoringDisabled, h.dev.State())
	assert.Equal(t, []notify.Kind{notify.MonitoringDisabled}, h.notifier.kinds)
	assert.False(t, h.settings.Bool(settings.Monitoring, keyEnabled, true))
	assert.False(t, h.dev.Info().MonitoringEnabled)

	h.sensors.motion = true
	h.clock.Advance(time.Second)
	h.step()
	assert.Equal(t, MonitoringDisabled, h.dev.State(), "sensors are ignored while disabled")

	h.clock.Advance(20 * time.Minute)
	h.step()
	assert.Equal(t, []notify.Kind{notify.MonitoringDisabled, notify.MonitoringEnabled}, h.notifier.kinds)
	assert.True(t, h.settings.Bool(settings.Monitoring, keyEnabled, false))

	h.step()
	assert.Equal(t, Idle, h.dev.State())
	h.step()
	assert.Equal(t, MotionDetected, h.dev.State())
}

func TestTripleClickResumesEarly(t *testing.T) {
	h := newHarness(t)
	h.mustStart()

	for i := 0; i < 3; i++ {
		h.click()
	}
	require.Equal(t, MonitoringDisabled, h.dev.State())

	h.clock.Advance(5 * time.Second)
	for i := 0; i < 3; i++ {
		h.click()
	}
	assert.Equal(t, Idle, h.dev.State())
	assert.Equal(t, []notify.Kind{notify.MonitoringDisabled, notify.MonitoringEnabled}, h.notifier.kinds)
}

func TestMonitoringFlagSurvivesReboot(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.settings.Put(settings.Monitoring, keyEnabled, false))
	require.NoError(t, h.settings.Put(settings.Monitoring, keyDisabledAt, t0.Add(-time.Minute)))
	h.mustStart()

	assert.Equal(t, MonitoringDisabled, h.dev.State())
	assert.Equal(t, t0.Add(19*time.Minute), h.dev.Info().ResumesAt)

	h.clock.t = t0.Add(19 * time.Minute)
	h.step()
	h.step()
	assert.Equal(t, Idle, h.dev.State())
}

func TestBaseFilenameFromSettings(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.settings.Put(settings.Storage, keyBaseFilename, "barn"))
	h.mustStart()

	h.sensors.motion = true
	h.step()
	h.step()
	h.step()
	names := h.stored()
	require.Len(t, names, 1)
	assert.Equal(t, "barn_20260105_080000.jpg", names[0])
}

func TestCaptureFailureKeepsEpisodeRunning(t *testing.T) {
	h := newHarness(t)
	h.mustStart()
	h.camera.Err = errBoom
	h.sensors.prepareErr = errBoom

	h.sensors.motion = true
	h.step()
	h.step()
	h.step()
	assert.Equal(t, Capturing, h.dev.State())
	assert.Empty(t, h.stored())
	assert.Zero(t, h.dev.Info().Captures)
}

func TestButtonReadErrorIsTolerated(t *testing.T) {
	h := newHarness(t)
	h.mustStart()
	h.button.err = errBoom
	h.run(time.Second, 10*time.Millisecond)
	assert.Equal(t, Idle, h.dev.State())
}
