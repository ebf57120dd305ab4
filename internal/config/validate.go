package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validate checks the config for values the rest of the program cannot work with.
// All problems are reported together.
func Validate(cfg *File) error {
	var errs []error

	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logger.format: unknown format %q", cfg.Logger.Format))
	}

	uuids := []struct {
		name, value string
	}{
		{"ble.service_uuid", cfg.BLE.ServiceUUID},
		{"ble.ssid_char_uuid", cfg.BLE.SSIDCharUUID},
		{"ble.passphrase_char_uuid", cfg.BLE.PassphraseCharUUID},
		{"ble.data_char_uuid", cfg.BLE.DataCharUUID},
	}
	for _, u := range uuids {
		if _, err := uuid.Parse(u.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.name, err))
		}
	}
	if cfg.BLE.DisconnectDelay <= 0 {
		errs = append(errs, errors.New("ble.disconnect_delay must be positive"))
	}
	if cfg.BLE.ScanTimeout < 0 {
		errs = append(errs, errors.New("ble.scan_timeout must not be negative"))
	}

	switch cfg.Cloud.Scheme {
	case "http", "https":
	default:
		errs = append(errs, fmt.Errorf("cloud.scheme: must be http or https, got %q", cfg.Cloud.Scheme))
	}
	if cfg.Cloud.Server == "" {
		errs = append(errs, errors.New("cloud.server is required"))
	}
	if cfg.Cloud.PollInterval <= 0 {
		errs = append(errs, errors.New("cloud.poll_interval must be positive"))
	}
	if cfg.Cloud.Timeout <= 0 {
		errs = append(errs, errors.New("cloud.timeout must be positive"))
	}
	if cfg.Cloud.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("cloud.requests_per_second must not be negative"))
	}
	pins := map[string]string{
		"relay":   cfg.Cloud.Pins.Relay,
		"battery": cfg.Cloud.Pins.Battery,
		"status":  cfg.Cloud.Pins.Status,
		"power":   cfg.Cloud.Pins.Power,
	}
	for name, pin := range pins {
		if pin == "" {
			errs = append(errs, fmt.Errorf("cloud.pins.%s is required", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
