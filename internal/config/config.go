// Package config loads the daemon configuration from a YAML file layered
// over built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the packaged service looks for its config file.
const DefaultPath = "/etc/cabin-monitor/config.yaml"

// Config is the full daemon configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Button    ButtonConfig    `yaml:"button"`
	Modem     ModemConfig     `yaml:"modem"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Storage   StorageConfig   `yaml:"storage"`
	Pins      PinConfig       `yaml:"pins"`
	Camera    CameraConfig    `yaml:"camera"`
	Sensors   SensorConfig    `yaml:"sensors"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Notify    NotifyConfig    `yaml:"notify"`
	Upload    UploadConfig    `yaml:"upload"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// DeviceConfig holds identity and loop pacing.
type DeviceConfig struct {
	Name         string        `yaml:"name"`
	DataDir      string        `yaml:"data_dir"`
	LoopInterval time.Duration `yaml:"loop_interval"`
	OTATimeout   time.Duration `yaml:"ota_timeout"`
}

// MonitorConfig controls capture episodes.
type MonitorConfig struct {
	PIRCooldown        time.Duration `yaml:"pir_cooldown"`
	InactivityTimeout  time.Duration `yaml:"inactivity_timeout"`
	CaptureInterval    time.Duration `yaml:"capture_interval"`
	MaxFilesPerSession int           `yaml:"max_files_per_session"`
	LightIRLEDs        int           `yaml:"light_threshold_ir_leds"`
	LightIRCut         int           `yaml:"light_threshold_ir_cut"`
	ProbeMaxAge        time.Duration `yaml:"probe_max_age"`
}

// ButtonConfig holds gesture timing.
type ButtonConfig struct {
	Debounce         time.Duration `yaml:"debounce"`
	ClickMaxHold     time.Duration `yaml:"click_max_hold"`
	ClickWindow      time.Duration `yaml:"click_window"`
	ClickCount       int           `yaml:"click_count"`
	ResumeDelay      time.Duration `yaml:"resume_delay"`
	StartupSettle    time.Duration `yaml:"startup_settle"`
	ProvisioningHold time.Duration `yaml:"provisioning_hold"`
	OTAHold          time.Duration `yaml:"ota_hold"`
	FactoryResetHold time.Duration `yaml:"factory_reset_hold"`
	MaxHold          time.Duration `yaml:"max_hold"`
	SamplePeriod     time.Duration `yaml:"sample_period"`
}

// ModemConfig holds serial and protocol parameters.
type ModemConfig struct {
	Port                   string        `yaml:"port"`
	Baud                   int           `yaml:"baud"`
	APN                    string        `yaml:"apn"`
	CommandTimeout         time.Duration `yaml:"command_timeout"`
	RetryCount             int           `yaml:"retry_count"`
	RegistrationRetryDelay time.Duration `yaml:"registration_retry_delay"`
	ContextRetryDelay      time.Duration `yaml:"context_retry_delay"`
	ContextOpenTimeout     time.Duration `yaml:"context_open_timeout"`
	TCPOpenTimeout         time.Duration `yaml:"tcp_open_timeout"`
	SendTimeout            time.Duration `yaml:"send_timeout"`
	HTTPActionTimeout      time.Duration `yaml:"http_action_timeout"`
	PollInterval           time.Duration `yaml:"poll_interval"`
	NTPServer              string        `yaml:"ntp_server"`
	NTPTimezoneHours       int           `yaml:"ntp_timezone_hours"`
	SetSystemClock         bool          `yaml:"set_system_clock"`
}

// Slot is a wall-clock trigger. Weekday is -1 for daily slots.
type Slot struct {
	Weekday int `yaml:"weekday"`
	Hour    int `yaml:"hour"`
	Minute  int `yaml:"minute"`
}

// ScheduleConfig holds the daily and weekly background checks.
type ScheduleConfig struct {
	WeeklyPhoto       Slot          `yaml:"weekly_photo"`
	ConnectivityCheck Slot          `yaml:"connectivity_check"`
	TimeSync          Slot          `yaml:"time_sync"`
	TimeSyncRetry     time.Duration `yaml:"time_sync_retry"`
}

// StorageConfig describes the capture directory.
type StorageConfig struct {
	CaptureDir   string `yaml:"capture_dir"`
	BaseFilename string `yaml:"base_filename"`
	MinFreeMB    uint64 `yaml:"min_free_mb"`
}

// PinConfig maps functions to BCM line offsets on Chip.
type PinConfig struct {
	Chip       string `yaml:"chip"`
	Button     int    `yaml:"button"`
	PIR        int    `yaml:"pir"`
	Sound      int    `yaml:"sound"`
	ModemReset int    `yaml:"modem_reset"`
	ModemPower int    `yaml:"modem_power"`
	IRLED      int    `yaml:"ir_led"`
	IRCut      int    `yaml:"ir_cut"`
	LEDRed     int    `yaml:"led_red"`
	LEDGreen   int    `yaml:"led_green"`
	LEDBlue    int    `yaml:"led_blue"`
}

// CameraConfig is the still-capture command; it must write JPEG to stdout.
type CameraConfig struct {
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// SensorConfig holds analog sensor sources.
type SensorConfig struct {
	LightADCPath string `yaml:"light_adc_path"`
	LightADCMax  int    `yaml:"light_adc_max"`
}

// IndicatorConfig holds LED timing.
type IndicatorConfig struct {
	BlinkInterval time.Duration `yaml:"blink_interval"`
}

// NotifyConfig tunes the SMS circuit breaker.
type NotifyConfig struct {
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerOpen     time.Duration `yaml:"breaker_open"`
}

// UploadConfig selects the upload transport.
type UploadConfig struct {
	Transport       string        `yaml:"transport"` // "modem" or "direct"
	CredentialsFile string        `yaml:"credentials_file"`
	Timeout         time.Duration `yaml:"timeout"`
}

// MQTTConfig configures telemetry. An empty broker disables it; a zero
// heartbeat disables the periodic status message.
type MQTTConfig struct {
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
}

// HTTPConfig configures the local status/provisioning server.
type HTTPConfig struct {
	Addr              string `yaml:"addr"`
	ProvisioningLimit int    `yaml:"provisioning_limit"` // requests per minute
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Device: DeviceConfig{
			Name:         "cabin-monitor",
			DataDir:      "/var/lib/cabin-monitor",
			LoopInterval: 10 * time.Millisecond,
			OTATimeout:   5 * time.Minute,
		},
		Monitor: MonitorConfig{
			PIRCooldown:        5 * time.Second,
			InactivityTimeout:  60 * time.Second,
			CaptureInterval:    2 * time.Second,
			MaxFilesPerSession: 100,
			LightIRLEDs:        20,
			LightIRCut:         30,
			ProbeMaxAge:        6 * time.Hour,
		},
		Button: ButtonConfig{
			Debounce:         50 * time.Millisecond,
			ClickMaxHold:     time.Second,
			ClickWindow:      3000 * time.Millisecond,
			ClickCount:       3,
			ResumeDelay:      20 * time.Minute,
			StartupSettle:    200 * time.Millisecond,
			ProvisioningHold: time.Second,
			OTAHold:          2 * time.Second,
			FactoryResetHold: 10 * time.Second,
			MaxHold:          15 * time.Second,
			SamplePeriod:     10 * time.Millisecond,
		},
		Modem: ModemConfig{
			Port:                   "/dev/ttyAMA0",
			Baud:                   115200,
			APN:                    "internet",
			CommandTimeout:         3 * time.Second,
			RetryCount:             3,
			RegistrationRetryDelay: 2 * time.Second,
			ContextRetryDelay:      time.Second,
			ContextOpenTimeout:     10 * time.Second,
			TCPOpenTimeout:         20 * time.Second,
			SendTimeout:            10 * time.Second,
			HTTPActionTimeout:      30 * time.Second,
			PollInterval:           10 * time.Millisecond,
			NTPServer:              "pool.ntp.org",
		},
		Schedule: ScheduleConfig{
			WeeklyPhoto:       Slot{Weekday: int(time.Monday), Hour: 12, Minute: 0},
			ConnectivityCheck: Slot{Weekday: -1, Hour: 9, Minute: 0},
			TimeSync:          Slot{Weekday: -1, Hour: 3, Minute: 0},
			TimeSyncRetry:     time.Hour,
		},
		Storage: StorageConfig{
			CaptureDir:   "/mnt/sd/captures",
			BaseFilename: "capture",
			MinFreeMB:    100,
		},
		Pins: PinConfig{
			Chip:       "gpiochip0",
			Button:     17,
			PIR:        27,
			Sound:      22,
			ModemReset: 23,
			ModemPower: 24,
			IRLED:      5,
			IRCut:      6,
			LEDRed:     12,
			LEDGreen:   13,
			LEDBlue:    19,
		},
		Camera: CameraConfig{
			Command: []string{"rpicam-still", "-n", "-t", "1", "-e", "jpg", "-o", "-"},
			Timeout: 10 * time.Second,
		},
		Sensors: SensorConfig{
			LightADCPath: "/sys/bus/iio/devices/iio:device0/in_voltage0_raw",
			LightADCMax:  4095,
		},
		Indicator: IndicatorConfig{
			BlinkInterval: 500 * time.Millisecond,
		},
		Notify: NotifyConfig{
			BreakerFailures: 3,
			BreakerOpen:     10 * time.Minute,
		},
		Upload: UploadConfig{
			Transport:       "modem",
			CredentialsFile: "/var/lib/cabin-monitor/upload_credentials.json",
			Timeout:         60 * time.Second,
		},
		MQTT: MQTTConfig{
			ClientID:    "cabin-monitor",
			TopicPrefix: "cabin/monitor",
			Heartbeat:   15 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr:              ":80",
			ProvisioningLimit: 30,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}
