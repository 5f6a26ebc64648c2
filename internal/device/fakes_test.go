package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Xylopyrographer/CabinMonitor/internal/camera"
	"github.com/Xylopyrographer/CabinMonitor/internal/gesture"
	"github.com/Xylopyrographer/CabinMonitor/internal/indicator"
	"github.com/Xylopyrographer/CabinMonitor/internal/log"
	"github.com/Xylopyrographer/CabinMonitor/internal/notify"
	"github.com/Xylopyrographer/CabinMonitor/internal/settings"
	"github.com/Xylopyrographer/CabinMonitor/internal/storage"
	"github.com/Xylopyrographer/CabinMonitor/internal/upload"
)

// t0 is a Monday morning.
var t0 = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	t    time.Time
	sets []time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Sleep(d time.Duration)   { c.t = c.t.Add(d) }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *fakeClock) Set(t time.Time) error {
	c.sets = append(c.sets, t)
	c.t = t
	return nil
}

type fakeButton struct {
	clock        *fakeClock
	pressed      bool
	pressedUntil time.Time
	err          error
}

func (b *fakeButton) Value() (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	return b.pressed || b.clock.Now().Before(b.pressedUntil), nil
}

type fakeIndicator struct {
	states  []indicator.State
	updates int
}

func (f *fakeIndicator) Set(s indicator.State, _ time.Time) error {
	f.states = append(f.states, s)
	return nil
}

func (f *fakeIndicator) Update(time.Time) error {
	f.updates++
	return nil
}

type fakeSensors struct {
	motion, sound bool
	prepareErr    error
	prepared      int
}

func (s *fakeSensors) Motion(time.Time) bool {
	m := s.motion
	s.motion = false
	return m
}

func (s *fakeSensors) SoundDetected(time.Time) bool {
	m := s.sound
	s.sound = false
	return m
}

func (s *fakeSensors) PrepareCapture() (int, error) {
	s.prepared++
	return 50, s.prepareErr
}

type fakeLink struct {
	clock      *fakeClock
	bringUpErr error
	syncErr    error
	bringUps   int
	syncs      int
}

func (l *fakeLink) BringUp(context.Context) error {
	l.bringUps++
	return l.bringUpErr
}

func (l *fakeLink) SyncTime(context.Context) (time.Time, error) {
	l.syncs++
	if l.syncErr != nil {
		return time.Time{}, l.syncErr
	}
	return l.clock.Now(), nil
}

type fakeNotifier struct {
	msgs  notify.Messages
	kinds []notify.Kind
}

func (n *fakeNotifier) SetMessages(m notify.Messages) { n.msgs = m }

func (n *fakeNotifier) Notify(_ context.Context, k notify.Kind) error {
	n.kinds = append(n.kinds, k)
	return nil
}

type fakeUploader struct {
	probeErr error
	probes   int
	failures map[string]error
	attempts []string
	uploaded []string
	onUpload func(name string)
}

func (u *fakeUploader) Probe(context.Context) error {
	u.probes++
	return u.probeErr
}

func (u *fakeUploader) Upload(_ context.Context, name string, _ []byte) error {
	u.attempts = append(u.attempts, name)
	if err := u.failures[name]; err != nil {
		return err
	}
	u.uploaded = append(u.uploaded, name)
	if u.onUpload != nil {
		u.onUpload(name)
	}
	return nil
}

type fakeTransport struct {
	active   bool
	startErr error
	starts   int
	stops    int
	polls    int
}

func (f *fakeTransport) Start() error {
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.active = true
	return nil
}

func (f *fakeTransport) Stop() error {
	f.stops++
	f.active = false
	return nil
}

func (f *fakeTransport) Active() bool   { return f.active }
func (f *fakeTransport) Poll(time.Time) { f.polls++ }

type fakeSink struct{ events []Event }

func (s *fakeSink) Publish(e Event) error {
	s.events = append(s.events, e)
	return nil
}

func (s *fakeSink) transitions() []State {
	var out []State
	for _, e := range s.events {
		if e.Type == EventState {
			out = append(out, e.To)
		}
	}
	return out
}

type harness struct {
	t        *testing.T
	cfg      Config
	clock    *fakeClock
	button   *fakeButton
	led      *fakeIndicator
	settings *settings.Store
	link     *fakeLink
	notifier *fakeNotifier
	storage  *storage.Dir
	camera   *camera.Fake
	sensors  *fakeSensors
	uploader *fakeUploader
	prov     *fakeTransport
	ota      *fakeTransport
	events   *fakeSink
	openErr  map[string]error
	opened   []string
	dev      *Device
}

var testCreds = upload.Credentials{Endpoint: "http://upload.example", Folder: "cabin", Token: "t"}

func testConfig(dir string) Config {
	return Config{
		InactivityTimeout:  60 * time.Second,
		CaptureInterval:    2 * time.Second,
		MaxFilesPerSession: 100,
		ProbeMaxAge:        6 * time.Hour,
		BaseFilename:       "cap",
		CredentialsFile:    filepath.Join(dir, "credentials.json"),
		OTATimeout:         5 * time.Minute,
		ResumeDelay:        20 * time.Minute,
		TimeSyncRetry:      time.Hour,
		WeeklyPhoto:        Weekly(time.Monday, 12, 0),
		ConnectivityCheck:  Daily(9, 0),
		TimeSync:           Daily(3, 0),
		Startup: gesture.StartupOptions{
			Thresholds:   gesture.HoldThresholds{Provisioning: time.Second, OTA: 2 * time.Second, FactoryReset: 10 * time.Second},
			Settle:       200 * time.Millisecond,
			MaxHold:      15 * time.Second,
			SamplePeriod: 10 * time.Millisecond,
		},
		Recognizer: gesture.RecognizerConfig{
			Debounce:     50 * time.Millisecond,
			ClickMaxHold: time.Second,
			ClickWindow:  3 * time.Second,
			ClickCount:   3,
		},
	}
}

// newHarness returns a provisioned device with credentials and an empty
// capture directory. Call start to boot it.
func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	store, err := settings.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Put(settings.Monitoring, keyProvisioned, true))

	cfg := testConfig(dir)
	require.NoError(t, upload.SaveCredentials(cfg.CredentialsFile, testCreds))

	captures, err := storage.Open(filepath.Join(dir, "captures"), 0)
	require.NoError(t, err)

	clock := &fakeClock{t: t0}
	return &harness{
		t:        t,
		cfg:      cfg,
		clock:    clock,
		button:   &fakeButton{clock: clock},
		led:      &fakeIndicator{},
		settings: store,
		link:     &fakeLink{clock: clock},
		notifier: &fakeNotifier{},
		storage:  captures,
		camera:   &camera.Fake{},
		sensors:  &fakeSensors{},
		uploader: &fakeUploader{failures: map[string]error{}},
		prov:     &fakeTransport{},
		ota:      &fakeTransport{},
		events:   &fakeSink{},
		openErr:  map[string]error{},
	}
}

func (h *harness) build() *Device {
	l := log.Nop()
	open := func(name string) error {
		h.opened = append(h.opened, name)
		return h.openErr[name]
	}
	h.dev = New(h.cfg, Deps{
		Clock:     h.clock,
		Sleep:     h.clock.Sleep,
		Button:    h.button,
		Indicator: h.led,
		Settings:  h.settings,
		Link:      h.link,
		Notifier:  h.notifier,
		OpenStorage: func() (Storage, error) {
			return h.storage, open("storage")
		},
		OpenCamera: func() (Camera, error) {
			return h.camera, open("camera")
		},
		OpenSensors: func() (Sensors, error) {
			return h.sensors, open("sensors")
		},
		NewUploader:  func(upload.Credentials) upload.Uploader { return h.uploader },
		Provisioning: h.prov,
		OTA:          h.ota,
		Events:       h.events,
		Logger:       &l,
	})
	return h.dev
}

func (h *harness) start() error {
	h.t.Helper()
	if h.dev == nil {
		h.build()
	}
	return h.dev.Start(context.Background())
}

func (h *harness) mustStart() {
	h.t.Helper()
	require.NoError(h.t, h.start())
}

func (h *harness) step() {
	h.t.Helper()
	require.NoError(h.t, h.dev.Step(context.Background()))
}

// run steps every tick until d has elapsed.
func (h *harness) run(d, tick time.Duration) {
	h.t.Helper()
	end := h.clock.Now().Add(d)
	for h.clock.Now().Before(end) {
		h.clock.Advance(tick)
		h.step()
	}
}

// click performs one short press and release at loop rate.
func (h *harness) click() {
	h.t.Helper()
	h.button.pressed = true
	h.run(100*time.Millisecond, 10*time.Millisecond)
	h.button.pressed = false
	h.run(200*time.Millisecond, 10*time.Millisecond)
}

func (h *harness) seed(names ...string) {
	h.t.Helper()
	for _, n := range names {
		require.NoError(h.t, h.storage.Save(n, camera.FakeFrame))
	}
}

func (h *harness) stored() []string {
	h.t.Helper()
	names, err := h.storage.List()
	require.NoError(h.t, err)
	return names
}

func count(list []string, s string) int {
	n := 0
	for _, x := range list {
		if x == s {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
