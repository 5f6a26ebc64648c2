package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xylopyrographer/CabinMonitor/internal/device"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedTracker(cfg Config, now time.Time) *Tracker {
	tr := NewTracker(start, cfg)
	tr.now = func() time.Time { return now }
	return tr
}

func TestNewTracker(t *testing.T) {
	tr := NewTracker(start, Config{DeviceName: "cabin", HTTPAddr: ":80"})
	snap := tr.Snapshot()

	assert.True(t, snap.StartTime.Equal(start))
	assert.Equal(t, ":80", snap.Config.HTTPAddr)
	assert.Equal(t, device.Init, snap.Device.State)
	assert.True(t, snap.Device.MonitoringEnabled)
	assert.False(t, snap.MQTTConnected)
	assert.Nil(t, snap.Modem)
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.Update(device.Info{State: device.Capturing, Captures: 4, Stored: 4})
	tr.SetMQTT(true, 3)
	tr.SetModem(ModemInfo{Port: "/dev/ttyAMA0", Online: true, Registered: true})

	snap := tr.Snapshot()
	assert.Equal(t, device.Capturing, snap.Device.State)
	assert.Equal(t, device.Capturing, tr.State())
	assert.Equal(t, 4, snap.Device.Captures)
	assert.True(t, snap.MQTTConnected)
	assert.Equal(t, 3, snap.MQTTBuffered)
	require.NotNil(t, snap.Modem)
	assert.True(t, snap.Modem.Registered)
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.Update(device.Info{State: device.Idle})
	tr.SetModem(ModemInfo{Registered: true})

	snap := tr.Snapshot()
	snap.Modem.Registered = false
	tr.Update(device.Info{State: device.Uploading})

	assert.Equal(t, device.Idle, snap.Device.State)
	assert.True(t, tr.Snapshot().Modem.Registered)
}

func TestSnapshotUptime(t *testing.T) {
	snap := fixedTracker(Config{}, start.Add(15*time.Minute)).Snapshot()
	assert.Equal(t, 15*time.Minute, snap.Uptime())
}

func TestFormatJSON(t *testing.T) {
	tr := fixedTracker(Config{DeviceName: "cabin", LoopMs: 10, Broker: "tcp://localhost:1883", UploadTransport: "modem"},
		start.Add(15*time.Minute))
	tr.Update(device.Info{
		State:             device.MonitoringDisabled,
		MonitoringEnabled: false,
		ResumesAt:         start.Add(20 * time.Minute),
		Captures:          12,
		Stored:            2,
		Confirmed:         1,
		LastUpload:        &device.UploadOutcome{Attempted: 2, Succeeded: 1},
		LastUploadAt:      start.Add(10 * time.Minute),
		ProbeKnown:        true,
		ProbeOK:           true,
	})
	tr.SetMQTT(true, 0)

	var parsed StatusJSON
	require.NoError(t, json.Unmarshal(FormatJSON(tr.Snapshot()), &parsed))
	s := parsed.Status

	assert.Equal(t, "cabin", s.Device)
	assert.Equal(t, "MONITORING_DISABLED", s.State)
	assert.Equal(t, int64(900), s.UptimeSeconds)
	assert.Equal(t, MonitoringJSON{Enabled: false, ResumesAt: "2026-01-01T00:20:00Z"}, s.Monitoring)
	assert.Equal(t, CapturesJSON{Total: 12, Stored: 2, Confirmed: 1}, s.Captures)
	assert.Equal(t, "partial", s.Upload.LastOutcome)
	assert.Equal(t, "2026-01-01T00:10:00Z", s.Upload.LastAt)
	assert.True(t, s.Connectivity.Probed)
	assert.Empty(t, s.Connectivity.LastTimeSync)
	assert.True(t, s.MQTT.Connected)
	assert.Equal(t, "modem", s.Config.UploadTransport)
	assert.Nil(t, s.Modem)
	assert.Empty(t, s.Event)
	assert.Empty(t, s.Reason)
}

func TestFormatJSONUnknownState(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(time.Second)}
	var parsed StatusJSON
	require.NoError(t, json.Unmarshal(FormatJSON(snap), &parsed))
	assert.Equal(t, "UNKNOWN", parsed.Status.State)
}

func TestFormatJSONWithModem(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start,
		Modem:     &ModemInfo{Port: "/dev/ttyS0", Online: true, Ready: true, Registered: true, ContextOpen: true},
	}
	var parsed StatusJSON
	require.NoError(t, json.Unmarshal(FormatJSON(snap), &parsed))
	require.NotNil(t, parsed.Status.Modem)
	assert.Equal(t, ModemJSON{Port: "/dev/ttyS0", Online: true, Ready: true, Registered: true, ContextOpen: true},
		*parsed.Status.Modem)
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(30 * time.Minute), Device: device.Info{State: device.Idle}}

	var parsed StatusJSON
	require.NoError(t, json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &parsed))
	assert.Equal(t, "SHUTDOWN", parsed.Status.Event)
	assert.Equal(t, "SIGTERM", parsed.Status.Reason)
	assert.Equal(t, "IDLE", parsed.Status.State)

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(FormatStatusEvent(snap, "STARTUP", ""), &raw))
	_, hasReason := raw["status"]["reason"]
	assert.False(t, hasReason)
	assert.Equal(t, "STARTUP", raw["status"]["event"])
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(start, Config{})
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(device.Info{State: device.Capturing, Captures: i})
			tr.SetMQTT(i%2 == 0, i)
			tr.SetModem(ModemInfo{Registered: i%2 == 0})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = FormatJSON(tr.Snapshot())
		}
	}()
	wg.Wait()
}
