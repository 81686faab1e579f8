package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	BLE      BLEConfig    `yaml:"ble"`
	Hotkey   HotkeyConfig `yaml:"hotkey"`
	LogLevel string       `yaml:"log_level"`
}

// BLEConfig holds the arm's GATT identity and connection settings.
type BLEConfig struct {
	ServiceUUID        string        `yaml:"service_uuid"`
	CommandUUID        string        `yaml:"command_uuid"`
	StatusUUID         string        `yaml:"status_uuid"`
	DeviceName         string        `yaml:"device_name"`    // optional local-name prefix
	DeviceAddress      string        `yaml:"device_address"` // optional exact address
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	ScanWindow         time.Duration `yaml:"scan_window"`
	AcknowledgedWrites bool          `yaml:"acknowledged_writes"`
}

// HotkeyConfig binds global key combos to operator actions.
type HotkeyConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Home     []string `yaml:"home"`
	SendPose []string `yaml:"send_pose"`
	Connect  []string `yaml:"connect"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sarmctl")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		BLE: BLEConfig{
			ServiceUUID:    "12345678-1234-5678-1234-56789abcdef0",
			CommandUUID:    "12345678-1234-5678-1234-56789abcdef1",
			StatusUUID:     "12345678-1234-5678-1234-56789abcdef2",
			ConnectTimeout: 20 * time.Second,
			ScanWindow:     5 * time.Second,
		},
		Hotkey: HotkeyConfig{
			Home:     []string{"ctrl", "shift", "h"},
			SendPose: []string{"ctrl", "shift", "p"},
			Connect:  []string{"ctrl", "shift", "c"},
		},
		LogLevel: "info",
	}
}

// defaultConfigYAML is written by WriteDefault. Keep in sync with Default.
const defaultConfigYAML = `# sarmctl configuration

ble:
  # GATT identity of the arm firmware.
  service_uuid: 12345678-1234-5678-1234-56789abcdef0
  command_uuid: 12345678-1234-5678-1234-56789abcdef1
  status_uuid: 12345678-1234-5678-1234-56789abcdef2
  # Optional filters when several arms are in range.
  device_name: ""
  device_address: ""
  # Upper bound on scan + connect + discovery + subscribe.
  connect_timeout: 20s
  scan_window: 5s
  # Force acknowledged writes even when write-without-response is available.
  acknowledged_writes: false

hotkey:
  enabled: false
  home: ["ctrl", "shift", "h"]
  send_pose: ["ctrl", "shift", "p"]
  connect: ["ctrl", "shift", "c"]

log_level: info
`

// WriteDefault writes the default config to path unless a file already
// exists there.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. UUIDs are normalized to lower case.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.BLE.ServiceUUID = normalizeUUID(cfg.BLE.ServiceUUID)
	cfg.BLE.CommandUUID = normalizeUUID(cfg.BLE.CommandUUID)
	cfg.BLE.StatusUUID = normalizeUUID(cfg.BLE.StatusUUID)
	cfg.BLE.DeviceAddress = strings.TrimSpace(cfg.BLE.DeviceAddress)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	uuids := []struct {
		key, val string
	}{
		{"ble.service_uuid", c.BLE.ServiceUUID},
		{"ble.command_uuid", c.BLE.CommandUUID},
		{"ble.status_uuid", c.BLE.StatusUUID},
	}
	seen := make(map[uuid.UUID]string)
	for _, u := range uuids {
		parsed, err := uuid.Parse(u.val)
		if err != nil {
			return fmt.Errorf("%s: invalid UUID %q: %w", u.key, u.val, err)
		}
		if other, dup := seen[parsed]; dup {
			return fmt.Errorf("%s must differ from %s", u.key, other)
		}
		seen[parsed] = u.key
	}

	if c.BLE.ConnectTimeout <= 0 {
		return fmt.Errorf("ble.connect_timeout must be > 0")
	}
	if c.BLE.ScanWindow <= 0 {
		return fmt.Errorf("ble.scan_window must be > 0")
	}
	if c.BLE.ScanWindow >= c.BLE.ConnectTimeout {
		return fmt.Errorf("ble.scan_window (%s) must be shorter than ble.connect_timeout (%s)",
			c.BLE.ScanWindow, c.BLE.ConnectTimeout)
	}

	if c.Hotkey.Enabled {
		bindings := map[string][]string{
			"hotkey.home":      c.Hotkey.Home,
			"hotkey.send_pose": c.Hotkey.SendPose,
			"hotkey.connect":   c.Hotkey.Connect,
		}
		for key, keys := range bindings {
			if len(keys) == 0 {
				return fmt.Errorf("%s must not be empty when hotkeys are enabled", key)
			}
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a config log level to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// normalizeUUID lower-cases a well-formed UUID and leaves anything else for
// Validate to reject.
func normalizeUUID(s string) string {
	s = strings.TrimSpace(s)
	parsed, err := uuid.Parse(s)
	if err != nil {
		return s
	}
	return parsed.String()
}
