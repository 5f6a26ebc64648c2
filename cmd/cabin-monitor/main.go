// Command cabin-monitor watches a remote building: it photographs motion
// and sound, uploads the captures over a cellular modem and sends SMS
// notifications.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Xylopyrographer/CabinMonitor/internal/clock"
	"github.com/Xylopyrographer/CabinMonitor/internal/config"
	"github.com/Xylopyrographer/CabinMonitor/internal/device"
	"github.com/Xylopyrographer/CabinMonitor/internal/indicator"
	"github.com/Xylopyrographer/CabinMonitor/internal/log"
	"github.com/Xylopyrographer/CabinMonitor/internal/mqtt"
	"github.com/Xylopyrographer/CabinMonitor/internal/notify"
	"github.com/Xylopyrographer/CabinMonitor/internal/settings"
	"github.com/Xylopyrographer/CabinMonitor/internal/status"
	"github.com/Xylopyrographer/CabinMonitor/internal/upload"
	"github.com/Xylopyrographer/CabinMonitor/internal/web"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config file")
	serialPort := flag.String("serial", "", "Modem serial port (overrides modem.port)")
	broker := flag.String("broker", "", `MQTT broker address (overrides mqtt.broker, "off" disables)`)
	httpAddr := flag.String("http", "", `HTTP listen address (overrides http.addr, "off" disables)`)
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataDir := flag.String("data-dir", "", "Directory for settings and staged firmware (overrides device.data_dir)")
	printState := flag.Bool("print-state", false, "Print the input line levels and exit")

	flag.Parse()

	log.Configure(log.Config{Level: *logLevel})
	logger := log.WithComponent("main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *configPath).Msg("load config")
	}
	applyOverrides(&cfg, overrides{
		Serial:  *serialPort,
		Broker:  *broker,
		HTTP:    *httpAddr,
		DataDir: *dataDir,
	})

	err = run(cfg, *printState, logger)
	if errors.Is(err, device.ErrRestart) {
		logger.Info().Msg("exiting for restart")
		os.Exit(0)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("fatal")
	}
}

// overrides are the flag values layered over the config file. Empty
// strings leave the config untouched; "off" clears broker and HTTP.
type overrides struct {
	Serial  string
	Broker  string
	HTTP    string
	DataDir string
}

func applyOverrides(cfg *config.Config, o overrides) {
	if o.Serial != "" {
		cfg.Modem.Port = o.Serial
	}
	switch o.Broker {
	case "":
	case "off":
		cfg.MQTT.Broker = ""
	default:
		cfg.MQTT.Broker = o.Broker
	}
	switch o.HTTP {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = o.HTTP
	}
	if o.DataDir != "" {
		cfg.Device.DataDir = o.DataDir
	}
}

// errNoHTTP is returned when a maintenance transport is started while the
// HTTP surface is disabled.
var errNoHTTP = errors.New("http surface disabled, provisioning and firmware update unreachable")

// transports returns the provisioning and firmware update transports. With
// no HTTP address their routes are never served, so starting either fails
// and the device reports Error instead of waiting forever.
func transports(cfg config.Config, prov *web.Provisioning, ota *web.OTA) (device.Transport, device.Transport) {
	if cfg.HTTP.Addr != "" {
		return prov, ota
	}
	return unserved{}, unserved{}
}

type unserved struct{}

func (unserved) Start() error   { return errNoHTTP }
func (unserved) Stop() error    { return nil }
func (unserved) Active() bool   { return false }
func (unserved) Poll(time.Time) {}

func run(cfg config.Config, printState bool, logger zerolog.Logger) error {
	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()

	if printState {
		return hw.printState(os.Stdout, cfg)
	}

	if err := os.MkdirAll(cfg.Device.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := settings.Open(filepath.Join(cfg.Device.DataDir, "settings"))
	if err != nil {
		return err
	}
	defer store.Close()

	led := indicator.New(hw.ledRed, hw.ledGreen, hw.ledBlue, cfg.Indicator.BlinkInterval)
	defer led.Close()

	clk := clock.New(cfg.Modem.SetSystemClock)
	cell := openCellular(cfg, hw)
	defer cell.Close()

	notifier := notify.New(cell, notify.Options{
		BreakerFailures: cfg.Notify.BreakerFailures,
		BreakerOpen:     cfg.Notify.BreakerOpen,
	})

	tracker := status.NewTracker(time.Now(), status.Config{
		DeviceName:      cfg.Device.Name,
		LoopMs:          cfg.Device.LoopInterval.Milliseconds(),
		Broker:          cfg.MQTT.Broker,
		HTTPAddr:        cfg.HTTP.Addr,
		UploadTransport: cfg.Upload.Transport,
	})

	publisher, events := openTelemetry(cfg, logger)
	defer publisher.Close()

	prov := web.NewProvisioning(store, cfg.Upload.CredentialsFile)
	ota := web.NewOTA(filepath.Join(cfg.Device.DataDir, "firmware.new"), 0)
	provT, otaT := transports(cfg, prov, ota)
	if cfg.HTTP.Addr == "" {
		logger.Warn().Msg("http disabled, provisioning and firmware update cannot be served")
	}

	dev := device.New(deviceConfig(cfg), device.Deps{
		Clock:     clk,
		Button:    hw.button,
		Indicator: led,
		Settings:  store,
		Link:      cell,
		Notifier:  notifier,
		OpenStorage: func() (device.Storage, error) {
			return openStorage(cfg)
		},
		OpenCamera: func() (device.Camera, error) {
			return openCamera(cfg)
		},
		OpenSensors: func() (device.Sensors, error) {
			return hw.openSensors(cfg, lightThresholds(cfg, store))
		},
		NewUploader: func(c upload.Credentials) upload.Uploader {
			return newUploader(cfg, cell, c)
		},
		Provisioning: provT,
		OTA:          otaT,
		Events:       events,
	})

	if cfg.HTTP.Addr != "" {
		srv := web.New(web.Options{
			Addr:              cfg.HTTP.Addr,
			Tracker:           tracker,
			Provisioning:      prov,
			OTA:               ota,
			ProvisioningLimit: cfg.HTTP.ProvisioningLimit,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
	}

	logger.Info().
		Str("device", cfg.Device.Name).
		Dur("loop", cfg.Device.LoopInterval).
		Str("broker", cfg.MQTT.Broker).
		Str("upload", cfg.Upload.Transport).
		Msg("started")

	ticker := time.NewTicker(cfg.Device.LoopInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	return runLoop(ctx, loop{
		dev:         dev,
		publisher:   publisher,
		mqttStatus:  publisher,
		tracker:     tracker,
		modem:       cell.Info,
		heartbeat:   cfg.MQTT.Heartbeat,
		onHeartbeat: cell.RefreshSignal,
		now:         time.Now,
		log:         logger,
	}, ticker.C, sigCh)
}

// orchestrator is the part of *device.Device the loop drives.
type orchestrator interface {
	Start(ctx context.Context) error
	Step(ctx context.Context) error
	Info() device.Info
}

// telemetry is a publisher that also reports its connection.
type telemetry interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
}

type loop struct {
	dev        orchestrator
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker

	// modem returns the cellular session; nil leaves it unreported.
	modem       func() status.ModemInfo
	heartbeat   time.Duration
	onHeartbeat func(ctx context.Context)
	now         func() time.Time
	log         zerolog.Logger
}

// refresh copies the orchestrator, modem and broker views into the tracker.
func (l *loop) refresh() status.Snapshot {
	l.tracker.Update(l.dev.Info())
	if l.modem != nil {
		l.tracker.SetModem(l.modem())
	}
	if l.mqttStatus != nil {
		l.tracker.SetMQTT(l.mqttStatus.IsConnected(), l.mqttStatus.Buffered())
	}
	return l.tracker.Snapshot()
}

func (l *loop) system(event, reason string, retained bool) {
	snap := l.refresh()
	e := mqtt.SystemEvent{
		Timestamp:  l.now(),
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := l.publisher.PublishSystem(e); err != nil {
		l.log.Warn().Err(err).Str("event", event).Msg("publish system event")
		return
	}
	l.log.Info().Str("event", event).Msg("published system event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// runLoop boots the orchestrator and steps it on every tick until a
// signal arrives or the orchestrator asks for a restart. After a factory
// reset it keeps the tracker current and waits for a signal.
func runLoop(ctx context.Context, l loop, tick <-chan time.Time, sig <-chan os.Signal) error {
	err := l.dev.Start(ctx)
	halted := errors.Is(err, device.ErrHalted)
	if err != nil && !halted {
		return fmt.Errorf("start: %w", err)
	}
	l.system("STARTUP", "", true)
	if halted {
		l.system("HALTED", "factory reset", true)
	}

	lastBeat := l.now()
	for {
		select {
		case s := <-sig:
			name := signalName(s)
			l.log.Info().Str("signal", name).Msg("shutting down")
			l.system("SHUTDOWN", name, true)
			return nil

		case <-tick:
			if halted {
				l.refresh()
				continue
			}
			err := l.dev.Step(ctx)
			switch {
			case errors.Is(err, device.ErrRestart):
				l.system("RESTART", string(l.dev.Info().State), true)
				return err
			case errors.Is(err, device.ErrHalted):
				halted = true
				l.system("HALTED", "factory reset", true)
				continue
			case err != nil:
				l.log.Warn().Err(err).Msg("step")
			}

			now := l.now()
			if l.heartbeat > 0 && now.Sub(lastBeat) >= l.heartbeat {
				lastBeat = now
				if l.onHeartbeat != nil {
					l.onHeartbeat(ctx)
				}
				l.system("HEARTBEAT", "", false)
				continue
			}
			l.refresh()
		}
	}
}
