// Package device is the orchestrator: a state machine driven by sensor
// events, wall-clock schedules, button gestures and modem results. It runs
// on a single goroutine; the caller invokes Start once and then Step on
// every loop tick. Nothing in here is safe for concurrent use.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Xylopyrographer/CabinMonitor/internal/gesture"
	"github.com/Xylopyrographer/CabinMonitor/internal/indicator"
	"github.com/Xylopyrographer/CabinMonitor/internal/log"
	"github.com/Xylopyrographer/CabinMonitor/internal/metrics"
	"github.com/Xylopyrographer/CabinMonitor/internal/notify"
	"github.com/Xylopyrographer/CabinMonitor/internal/settings"
	"github.com/Xylopyrographer/CabinMonitor/internal/upload"
)

var (
	// ErrRestart is returned by Step when provisioning or a firmware
	// update has finished and the process should be restarted.
	ErrRestart = errors.New("device restart requested")
	// ErrHalted is returned after a factory reset. The device does nothing
	// further until it is restarted.
	ErrHalted = errors.New("device halted after factory reset")
)

const (
	keyProvisioned  = settings.KeyProvisioned
	keyEnabled      = settings.KeyEnabled
	keyDisabledAt   = settings.KeyDisabledAt
	keyBaseFilename = settings.KeyBaseFilename
)

// Clock is the corrected wall clock.
type Clock interface {
	Now() time.Time
	Set(time.Time) error
}

// Button is the raw user button level, true while pressed.
type Button interface {
	Value() (bool, error)
}

// Indicator is the status LED.
type Indicator interface {
	Set(indicator.State, time.Time) error
	Update(time.Time) error
}

// Camera takes one still.
type Camera interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Storage holds captures until they are uploaded.
type Storage interface {
	Save(name string, data []byte) error
	Count() (int, error)
	List() ([]string, error)
	Read(name string) ([]byte, error)
	DeleteAll() error
}

// Sensors are the activity sensors and the night-vision setup.
type Sensors interface {
	Motion(now time.Time) bool
	SoundDetected(now time.Time) bool
	PrepareCapture() (int, error)
}

// Link is the cellular link as far as the orchestrator drives it directly.
type Link interface {
	BringUp(ctx context.Context) error
	SyncTime(ctx context.Context) (time.Time, error)
}

// Notifier sends SMS notifications.
type Notifier interface {
	SetMessages(notify.Messages)
	Notify(ctx context.Context, k notify.Kind) error
}

// Transport is a provisioning or firmware-update channel. Poll is called
// on every loop tick while the transport is in use; Active turning false
// means its work is done.
type Transport interface {
	Start() error
	Stop() error
	Active() bool
	Poll(now time.Time)
}

// Config holds the orchestrator's timing and naming.
type Config struct {
	InactivityTimeout  time.Duration
	CaptureInterval    time.Duration
	MaxFilesPerSession int
	ProbeMaxAge        time.Duration
	BaseFilename       string
	CredentialsFile    string
	OTATimeout         time.Duration
	ResumeDelay        time.Duration
	TimeSyncRetry      time.Duration

	WeeklyPhoto       Schedule
	ConnectivityCheck Schedule
	TimeSync          Schedule

	// Startup configures the boot hold classifier; Now and Sleep are
	// taken from Deps.
	Startup    gesture.StartupOptions
	Recognizer gesture.RecognizerConfig
}

// Deps are the orchestrator's collaborators. The Open functions are called
// during Start; a failure there is fatal and leaves the device in Error.
type Deps struct {
	Clock     Clock
	Sleep     func(time.Duration)
	Button    Button
	Indicator Indicator
	Settings  *settings.Store
	Link      Link
	Notifier  Notifier

	OpenStorage func() (Storage, error)
	OpenCamera  func() (Camera, error)
	OpenSensors func() (Sensors, error)
	NewUploader func(upload.Credentials) upload.Uploader

	Provisioning Transport
	OTA          Transport

	// Events may be nil.
	Events EventSink
	Logger *zerolog.Logger
}

// Device is the orchestrator.
type Device struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	state   State
	monitor *gesture.Monitor
	buttons *gesture.Recognizer

	storage  Storage
	camera   Camera
	sensors  Sensors
	uploader upload.Uploader

	baseFilename string
	lastActivity time.Time
	lastCapture  time.Time
	captures     int
	stored       int

	// confirmed holds stored files the server has accepted. They are only
	// deleted once a cycle finishes with nothing left unsent.
	confirmed    map[string]bool
	interrupted  bool
	lastOutcome  *UploadOutcome
	lastUploadAt time.Time

	probeKnown bool
	probeOK    bool
	lastProbe  time.Time

	lastTimeSync time.Time
	syncFailedAt time.Time

	weekly       *Trigger
	connectivity *Trigger
	timeSync     *Trigger

	otaSince     time.Time
	buttonFailed bool
}

// New creates a Device in the Init state.
func New(cfg Config, deps Deps) *Device {
	d := &Device{
		cfg:          cfg,
		deps:         deps,
		state:        Init,
		monitor:      gesture.NewMonitor(cfg.ResumeDelay),
		buttons:      gesture.NewRecognizer(cfg.Recognizer),
		baseFilename: cfg.BaseFilename,
		confirmed:    make(map[string]bool),
		weekly:       NewTrigger(cfg.WeeklyPhoto),
		connectivity: NewTrigger(cfg.ConnectivityCheck),
		timeSync:     NewTrigger(cfg.TimeSync),
	}
	if deps.Logger != nil {
		d.log = *deps.Logger
	} else {
		d.log = log.WithComponent("device")
	}
	if d.deps.Sleep == nil {
		d.deps.Sleep = time.Sleep
	}
	return d
}

// State returns the active state.
func (d *Device) State() State { return d.state }

// Info returns a snapshot for status reporting.
func (d *Device) Info() Info {
	return Info{
		State:             d.state,
		MonitoringEnabled: d.monitor.Enabled(),
		ResumesAt:         d.monitor.ResumesAt(),
		LastActivity:      d.lastActivity,
		LastCapture:       d.lastCapture,
		Captures:          d.captures,
		Stored:            d.stored,
		Confirmed:         len(d.confirmed),
		UploadInterrupted: d.interrupted,
		LastUpload:        d.lastOutcome,
		LastUploadAt:      d.lastUploadAt,
		ProbeKnown:        d.probeKnown,
		ProbeOK:           d.probeOK,
		LastProbe:         d.lastProbe,
		LastTimeSync:      d.lastTimeSync,
	}
}

func (d *Device) now() time.Time { return d.deps.Clock.Now() }

// Start runs the boot sequence: startup gesture, provisioning check,
// collaborator initialization, link bring-up and time sync. It returns
// ErrHalted after a factory reset and nil otherwise; fatal failures are
// reported through the Error state.
func (d *Device) Start(ctx context.Context) error {
	d.showState(d.now())

	action := d.startupGesture()
	d.log.Info().Str("action", action.String()).Msg("startup gesture")
	switch action {
	case gesture.ActionFactoryReset:
		d.transition(FactoryReset, d.now())
		d.factoryReset()
		return ErrHalted
	case gesture.ActionOTA:
		d.enterOTA(d.now())
		return nil
	}

	provisioned := d.deps.Settings.Bool(settings.Monitoring, keyProvisioned, false)
	if action == gesture.ActionProvisioning || !provisioned {
		d.enterProvisioning(d.now(), !provisioned)
		return nil
	}

	if err := d.openCollaborators(); err != nil {
		d.log.Error().Err(err).Msg("initialization failed")
		d.transition(Error, d.now())
		return nil
	}

	if err := d.deps.Link.BringUp(ctx); err != nil {
		d.log.Warn().Err(err).Msg("cellular link unavailable, will retry later")
	}

	msgs := notify.Load(d.deps.Settings)
	d.deps.Notifier.SetMessages(msgs)
	if msgs.Phone == "" {
		d.log.Info().Msg("sms recipient not configured, notifications disabled")
	}

	d.syncTime(ctx, d.now())

	creds, err := upload.LoadCredentials(d.cfg.CredentialsFile)
	if err != nil {
		d.log.Warn().Err(err).Msg("upload credentials unusable, entering provisioning")
		d.enterProvisioning(d.now(), true)
		return nil
	}
	d.uploader = d.deps.NewUploader(creds)

	d.baseFilename = d.deps.Settings.String(settings.Storage, keyBaseFilename, d.cfg.BaseFilename)
	d.monitor.Restore(
		d.deps.Settings.Bool(settings.Monitoring, keyEnabled, true),
		d.deps.Settings.Time(settings.Monitoring, keyDisabledAt),
	)

	now := d.now()
	n, err := d.storage.Count()
	if err != nil {
		d.log.Warn().Err(err).Msg("count stored captures")
	}
	d.stored = n
	if n > 0 {
		d.log.Info().Int("files", n).Msg("unsent captures found, starting upload")
		d.transition(Uploading, now)
		d.notify(ctx, notify.Activity)
		return nil
	}
	d.toIdle(now)
	d.log.Info().Msg("initialization complete")
	return nil
}

func (d *Device) startupGesture() gesture.StartupAction {
	opts := d.cfg.Startup
	opts.Now = d.deps.Clock.Now
	opts.Sleep = d.deps.Sleep
	opts.OnPress = func() { d.setIndicator(indicator.ButtonPressed, d.now()) }
	opts.OnProgress = func(a gesture.StartupAction) {
		switch a {
		case gesture.ActionProvisioning:
			d.setIndicator(indicator.Provisioning, d.now())
		case gesture.ActionOTA:
			d.setIndicator(indicator.OTA, d.now())
		case gesture.ActionFactoryReset:
			d.setIndicator(indicator.FactoryReset, d.now())
		}
	}
	action, err := gesture.DetectStartup(d.deps.Button.Value, opts)
	if err != nil {
		d.log.Warn().Err(err).Msg("startup button check failed, starting normally")
		return gesture.ActionNormal
	}
	if action != gesture.ActionNormal {
		metrics.RecordGesture(action.String())
	}
	return action
}

func (d *Device) openCollaborators() error {
	var err error
	if d.storage, err = d.deps.OpenStorage(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if d.camera, err = d.deps.OpenCamera(); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if d.sensors, err = d.deps.OpenSensors(); err != nil {
		return fmt.Errorf("sensors: %w", err)
	}
	return nil
}

func (d *Device) factoryReset() {
	d.log.Warn().Msg("factory reset")
	for _, ns := range settings.FactoryNamespaces {
		if err := d.deps.Settings.Clear(ns); err != nil {
			d.log.Error().Err(err).Str("namespace", ns).Msg("clear settings")
		}
	}
	if err := upload.DeleteCredentials(d.cfg.CredentialsFile); err != nil {
		d.log.Error().Err(err).Msg("remove upload credentials")
	}
	d.log.Warn().Msg("factory reset complete, halting")
}

func (d *Device) enterOTA(now time.Time) {
	d.transition(OTAUpdate, now)
	if err := d.deps.OTA.Start(); err != nil {
		d.log.Error().Err(err).Msg("start firmware update transport")
		d.transition(Error, now)
		return
	}
	d.otaSince = now
}

func (d *Device) enterProvisioning(now time.Time, needed bool) {
	if needed {
		d.transition(NeedsProvisioning, now)
	}
	if err := d.deps.Provisioning.Start(); err != nil {
		d.log.Error().Err(err).Msg("start provisioning transport")
		d.transition(Error, now)
		return
	}
	d.transition(Provisioning, now)
	d.log.Info().Msg("waiting for provisioning")
}

// transition switches state, updating the indicator, metrics and the
// event sink.
func (d *Device) transition(to State, now time.Time) {
	if to == d.state {
		return
	}
	from := d.state
	d.state = to
	d.log.Info().Str("from", string(from)).Str("to", string(to)).Msg("state change")
	d.showState(now)
	d.publish(Event{Time: now, Type: EventState, From: from, To: to})
}

func (d *Device) showState(now time.Time) {
	d.setIndicator(d.state.Indicator(), now)
	metrics.SetDeviceState(stateNames, string(d.state))
}

func (d *Device) setIndicator(s indicator.State, now time.Time) {
	if err := d.deps.Indicator.Set(s, now); err != nil {
		d.log.Warn().Err(err).Str("indicator", string(s)).Msg("set indicator")
	}
}

// toIdle returns to Idle, or to MonitoringDisabled while monitoring is off.
func (d *Device) toIdle(now time.Time) {
	if !d.monitor.Enabled() {
		d.transition(MonitoringDisabled, now)
		return
	}
	d.transition(Idle, now)
}

func (d *Device) publish(e Event) {
	if d.deps.Events == nil {
		return
	}
	if err := d.deps.Events.Publish(e); err != nil {
		d.log.Debug().Err(err).Str("type", string(e.Type)).Msg("publish event")
	}
}

func (d *Device) notify(ctx context.Context, k notify.Kind) {
	err := d.deps.Notifier.Notify(ctx, k)
	switch {
	case err == nil:
	case errors.Is(err, notify.ErrNoRecipient):
		d.log.Debug().Str("kind", string(k)).Msg("notification skipped, no recipient")
	default:
		d.log.Warn().Err(err).Str("kind", string(k)).Msg("notification failed")
	}
}

func (d *Device) syncTime(ctx context.Context, now time.Time) {
	t, err := d.deps.Link.SyncTime(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("time sync failed, will retry later")
		d.syncFailedAt = now
		return
	}
	if err := d.deps.Clock.Set(t); err != nil {
		d.log.Warn().Err(err).Msg("system clock not updated, using offset")
	}
	d.lastTimeSync = t
	d.syncFailedAt = time.Time{}
	d.log.Info().Time("time", t).Msg("time synchronized")
	d.publish(Event{Time: t, Type: EventTimeSync, Detail: t.Format(time.RFC3339)})
}
