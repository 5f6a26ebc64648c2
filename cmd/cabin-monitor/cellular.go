package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Xylopyrographer/CabinMonitor/internal/config"
	"github.com/Xylopyrographer/CabinMonitor/internal/device"
	"github.com/Xylopyrographer/CabinMonitor/internal/log"
	"github.com/Xylopyrographer/CabinMonitor/internal/modem"
	"github.com/Xylopyrographer/CabinMonitor/internal/mqtt"
	"github.com/Xylopyrographer/CabinMonitor/internal/status"
	"github.com/Xylopyrographer/CabinMonitor/internal/upload"
)

var errModemOffline = errors.New("modem offline: serial port not open")

// cellular fronts the modem engine for the orchestrator, the notifier and
// the modem uploader. Without a serial port every operation fails fast so
// the device still captures and stores locally.
type cellular struct {
	port   string
	engine *modem.Engine
	log    zerolog.Logger
}

func openCellular(cfg config.Config, hw *hardware) *cellular {
	c := &cellular{port: cfg.Modem.Port, log: log.WithComponent("cellular")}
	port, err := modem.OpenSerial(cfg.Modem.Port, cfg.Modem.Baud)
	if err != nil {
		c.log.Error().Err(err).Msg("modem unavailable, running offline")
		return c
	}
	engine, err := modem.New(port, modem.Options{
		APN:                    cfg.Modem.APN,
		CommandTimeout:         cfg.Modem.CommandTimeout,
		PollInterval:           cfg.Modem.PollInterval,
		RetryCount:             cfg.Modem.RetryCount,
		RegistrationRetryDelay: cfg.Modem.RegistrationRetryDelay,
		ContextRetryDelay:      cfg.Modem.ContextRetryDelay,
		ContextOpenTimeout:     cfg.Modem.ContextOpenTimeout,
		TCPOpenTimeout:         cfg.Modem.TCPOpenTimeout,
		SendTimeout:            cfg.Modem.SendTimeout,
		HTTPActionTimeout:      cfg.Modem.HTTPActionTimeout,
		NTPServer:              cfg.Modem.NTPServer,
		NTPTimezoneHours:       cfg.Modem.NTPTimezoneHours,
		Power:                  modem.GPIOPower{Reset: hw.modemReset, Key: hw.modemPowerKey},
	})
	if err != nil {
		port.Close()
		c.log.Error().Err(err).Msg("modem init failed, running offline")
		return c
	}
	c.engine = engine
	return c
}

func (c *cellular) BringUp(ctx context.Context) error {
	if c.engine == nil {
		return errModemOffline
	}
	return c.engine.BringUp(ctx)
}

func (c *cellular) SyncTime(ctx context.Context) (time.Time, error) {
	if c.engine == nil {
		return time.Time{}, errModemOffline
	}
	return c.engine.SyncTime(ctx)
}

func (c *cellular) SendSMS(ctx context.Context, number, text string) error {
	if c.engine == nil {
		return errModemOffline
	}
	return c.engine.SendSMS(ctx, number, text)
}

func (c *cellular) HTTPGet(ctx context.Context, url string) ([]byte, error) {
	if c.engine == nil {
		return nil, errModemOffline
	}
	return c.engine.HTTPGet(ctx, url)
}

func (c *cellular) HTTPPost(ctx context.Context, url, contentType string, body []byte) ([]byte, error) {
	if c.engine == nil {
		return nil, errModemOffline
	}
	return c.engine.HTTPPost(ctx, url, contentType, body)
}

// Info reports the session for the status tracker.
func (c *cellular) Info() status.ModemInfo {
	info := status.ModemInfo{Port: c.port}
	if c.engine == nil {
		return info
	}
	s := c.engine.Session()
	info.Online = true
	info.Ready = s.Ready
	info.Registered = s.Registered
	info.ContextOpen = s.ContextOpen
	info.TCPOpen = s.TCPOpen
	return info
}

// RefreshSignal reads the signal quality while registered. The engine
// exports the reading as a metric.
func (c *cellular) RefreshSignal(ctx context.Context) {
	if c.engine == nil || !c.engine.Session().Registered {
		return
	}
	sq, err := c.engine.SignalQuality(ctx)
	if err != nil {
		c.log.Debug().Err(err).Msg("signal quality")
		return
	}
	c.log.Info().Int("rssi", sq.RSSI).Int("dbm", sq.DBm()).Msg("signal quality")
}

func (c *cellular) Close() error {
	if c.engine == nil {
		return nil
	}
	return c.engine.Close()
}

func newUploader(cfg config.Config, cell upload.HTTPClient, creds upload.Credentials) upload.Uploader {
	if cfg.Upload.Transport == "direct" {
		return upload.NewDirectUploader(creds, cfg.Upload.Timeout)
	}
	return upload.NewModemUploader(cell, creds)
}

// openTelemetry connects the MQTT publisher. The sink is nil when telemetry
// is disabled or the broker rejected the connection.
func openTelemetry(cfg config.Config, logger zerolog.Logger) (telemetry, device.EventSink) {
	if cfg.MQTT.Broker == "" {
		logger.Info().Msg("mqtt disabled")
		return discard{}, nil
	}
	p, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		ClientID:   cfg.MQTT.ClientID,
		Topics:     mqtt.NewTopics(cfg.MQTT.TopicPrefix),
		DeviceName: cfg.Device.Name,
	})
	if err != nil {
		logger.Error().Err(err).Str("broker", cfg.MQTT.Broker).Msg("mqtt unavailable, telemetry disabled")
		return discard{}, nil
	}
	return p, p
}

// discard is the telemetry used when MQTT is off.
type discard struct{}

func (discard) Publish(device.Event) error           { return nil }
func (discard) PublishSystem(mqtt.SystemEvent) error { return nil }
func (discard) Close() error                         { return nil }
func (discard) IsConnected() bool                    { return false }
func (discard) Buffered() int                        { return 0 }
