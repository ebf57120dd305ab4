package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the config file lives unless --config says otherwise.
const DefaultPath = "~/.config/solarctl/config.yaml"

// File is the top-level application configuration.
type File struct {
	Logger LoggerConfig `yaml:"logger"`
	BLE    BLEConfig    `yaml:"ble"`
	Cloud  CloudConfig  `yaml:"cloud"`
}

// LoggerConfig controls log level, format and destination.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stderr, stdout or a file path
}

// BLEConfig holds the GATT contract and provisioning timings.
type BLEConfig struct {
	ServiceUUID        string        `yaml:"service_uuid"`
	SSIDCharUUID       string        `yaml:"ssid_char_uuid"`
	PassphraseCharUUID string        `yaml:"passphrase_char_uuid"`
	DataCharUUID       string        `yaml:"data_char_uuid"` // echo flow
	DisconnectDelay    time.Duration `yaml:"disconnect_delay"`
	ScanTimeout        time.Duration `yaml:"scan_timeout"`
	AwaitWrites        bool          `yaml:"await_writes"` // gate the auto-disconnect on write completion
}

// CloudConfig holds the IoT broker endpoint and polling settings.
type CloudConfig struct {
	Server            string        `yaml:"server"`
	Scheme            string        `yaml:"scheme"`
	Token             string        `yaml:"token"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 = unlimited
	BreakerFailures   uint32        `yaml:"breaker_failures"`    // 0 = no circuit breaker
	BreakerTimeout    time.Duration `yaml:"breaker_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ReconcileRelay    bool          `yaml:"reconcile_relay"`
	Pins              PinsConfig    `yaml:"pins"`
}

// PinsConfig names the virtual pins on the broker.
type PinsConfig struct {
	Relay   string `yaml:"relay"`
	Battery string `yaml:"battery"`
	Status  string `yaml:"status"`
	Power   string `yaml:"power"`
}

// Defaults returns a config with every field set to its default value.
func Defaults() *File {
	return &File{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		BLE: BLEConfig{
			ServiceUUID:        "853f29b2-f5ed-4b69-b4c6-9cd68a9fc2b0",
			SSIDCharUUID:       "b72b9432-25f9-4c7f-96cb-fcb8efde84fd",
			PassphraseCharUUID: "7c8451c7-7909-47ef-b072-35d24729b8aa",
			DataCharUUID:       "b72b9432-25f9-4c7f-96cb-fcb8efde84fd",
			DisconnectDelay:    time.Second,
			ScanTimeout:        30 * time.Second,
		},
		Cloud: CloudConfig{
			Server:         "blynk.cloud",
			Scheme:         "https",
			Timeout:        10 * time.Second,
			BreakerTimeout: 30 * time.Second,
			PollInterval:   5 * time.Second,
			Pins: PinsConfig{
				Relay:   "v0",
				Battery: "v1",
				Status:  "v2",
				Power:   "v3",
			},
		},
	}
}

// Load reads a YAML config file and applies env var overrides.
// A missing file is not an error; defaults are used instead.
func Load(path string) (*File, error) {
	if path == "" {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand config path: %w", err)
	}

	cfg := Defaults()

	data, err := os.ReadFile(filepath.Clean(expanded))
	switch {
	case os.IsNotExist(err):
		Debugf("No config at %s, using defaults", expanded)
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps SOLARCTL_* env vars to config fields.
func ApplyEnvOverrides(cfg *File) {
	if v := os.Getenv("SOLARCTL_CLOUD_TOKEN"); v != "" {
		cfg.Cloud.Token = v
	}
	if v := os.Getenv("SOLARCTL_CLOUD_SERVER"); v != "" {
		cfg.Cloud.Server = v
	}
	if v := os.Getenv("SOLARCTL_CLOUD_SCHEME"); v != "" {
		cfg.Cloud.Scheme = v
	}
	if v := os.Getenv("SOLARCTL_RECONCILE_RELAY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cloud.ReconcileRelay = b
		}
	}
	if v := os.Getenv("SOLARCTL_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SOLARCTL_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
}
