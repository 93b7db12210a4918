package config

import (
	"errors"
	"fmt"
	"io/fs"
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
	Device   DeviceConfig   `yaml:"device"`
	BLE      BLEConfig      `yaml:"ble"`
	Security SecurityConfig `yaml:"security"`
	Relay    RelayConfig    `yaml:"relay"`
	Buzzer   BuzzerConfig   `yaml:"buzzer"`
	Jukebox  JukeboxConfig  `yaml:"jukebox"`
	LogLevel string         `yaml:"log_level"`
}

// DeviceConfig identifies the peripheral.
type DeviceConfig struct {
	Name    string `yaml:"name"`    // advertised local name
	Adapter string `yaml:"adapter"` // BlueZ adapter id, e.g. "hci0"
}

// BLEConfig holds the GATT layout of the command and data services.
type BLEConfig struct {
	CommandServiceUUID string `yaml:"command_service_uuid"`
	CommandCharUUID    string `yaml:"command_char_uuid"`
	CommandInitial     string `yaml:"command_initial"`
	DataServiceUUID    string `yaml:"data_service_uuid"`
	DataCharUUID       string `yaml:"data_char_uuid"`
	DataInitial        string `yaml:"data_initial"`
}

// SecurityConfig holds pairing settings.
type SecurityConfig struct {
	Agent        bool   `yaml:"agent"`         // register a BlueZ pairing agent
	PasskeyMode  string `yaml:"passkey_mode"`  // "fixed" or "derived"
	Passkey      uint32 `yaml:"passkey"`       // used when passkey_mode is "fixed"
	Secret       string `yaml:"secret"`        // used when passkey_mode is "derived"
	IOCapability string `yaml:"io_capability"` // BlueZ agent capability
	KeySize      int    `yaml:"key_size"`      // logged only; BlueZ negotiates the key size
}

// RelayConfig holds the preference API settings.
type RelayConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Path           string        `yaml:"path"`
	Key            string        `yaml:"key"`
	Attempts       int           `yaml:"attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	PostDelay      time.Duration `yaml:"post_delay"`
	Trust          string        `yaml:"trust"` // "verified" or "insecure"
	QueueSize      int           `yaml:"queue_size"`
}

// BuzzerConfig holds tone output settings.
type BuzzerConfig struct {
	Backend    string  `yaml:"backend"` // "gpio", "audio", "wav" or "none"
	Chip       string  `yaml:"chip"`
	Line       int     `yaml:"line"`
	SampleRate uint32  `yaml:"sample_rate"`
	Volume     float32 `yaml:"volume"`
	WAVPath    string  `yaml:"wav_path"`
}

// JukeboxConfig holds settings for the command consumer.
type JukeboxConfig struct {
	StartupChime bool `yaml:"startup_chime"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "jukebox")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config matching the lab firmware constants.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:    "TTGO_Jukebox",
			Adapter: "hci0",
		},
		BLE: BLEConfig{
			CommandServiceUUID: "7e6a3000-0000-0000-0000-000000000001",
			CommandCharUUID:    "7e6a3001-0000-0000-0000-000000000001",
			CommandInitial:     "P|N|B",
			DataServiceUUID:    "7e6a5000-0000-0000-0000-000000000001",
			DataCharUUID:       "7e6a5001-0000-0000-0000-000000000001",
			DataInitial:        "DATA",
		},
		Security: SecurityConfig{
			Agent:        true,
			PasskeyMode:  "fixed",
			Passkey:      123456,
			IOCapability: "DisplayOnly",
			KeySize:      16,
		},
		Relay: RelayConfig{
			BaseURL:        "https://iotjukebox.onrender.com",
			Path:           "/preference",
			Key:            "IoT_Jukebox",
			Attempts:       5,
			RetryDelay:     time.Second,
			AttemptTimeout: 15 * time.Second,
			PostDelay:      500 * time.Millisecond,
			Trust:          "insecure",
			QueueSize:      16,
		},
		Buzzer: BuzzerConfig{
			Backend:    "gpio",
			Chip:       "gpiochip0",
			Line:       21,
			SampleRate: 44100,
			Volume:     0.5,
		},
		Jukebox: JukeboxConfig{
			StartupChime: true,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in buzzer.wav_path is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Buzzer.WAVPath = expandTilde(cfg.Buzzer.WAVPath)

	return cfg, nil
}

// defaultConfigYAML is written by WriteDefault. Keep in sync with Default.
const defaultConfigYAML = `# jukebox configuration
# Values below are the defaults; delete any line to keep its default.

device:
  name: TTGO_Jukebox
  adapter: hci0

ble:
  command_service_uuid: 7e6a3000-0000-0000-0000-000000000001
  command_char_uuid: 7e6a3001-0000-0000-0000-000000000001
  command_initial: "P|N|B"
  data_service_uuid: 7e6a5000-0000-0000-0000-000000000001
  data_char_uuid: 7e6a5001-0000-0000-0000-000000000001
  data_initial: DATA

security:
  agent: true
  # "fixed" uses passkey below; "derived" computes one from secret and the adapter address.
  passkey_mode: fixed
  passkey: 123456
  secret: ""
  # With DisplayOnly or DisplayYesNo BlueZ generates the passkey and logs it;
  # the passkey above is only used with KeyboardOnly or KeyboardDisplay.
  io_capability: DisplayOnly
  # Reported at startup only; BlueZ negotiates the encryption key size.
  key_size: 16

relay:
  base_url: https://iotjukebox.onrender.com
  path: /preference
  key: IoT_Jukebox
  attempts: 5
  retry_delay: 1s
  attempt_timeout: 15s
  post_delay: 500ms
  # "insecure" skips TLS certificate verification.
  trust: insecure
  queue_size: 16

buzzer:
  # gpio, audio, wav or none
  backend: gpio
  chip: gpiochip0
  line: 21
  sample_rate: 44100
  volume: 0.5
  wav_path: ""

jukebox:
  startup_chime: true

log_level: info
`

// WriteDefault writes the default config to DefaultConfigPath. If a file
// already exists there it is left untouched and ("", nil) is returned.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Name == "" {
		return fmt.Errorf("device.name must not be empty")
	}

	uuids := []struct {
		field string
		value string
	}{
		{"ble.command_service_uuid", c.BLE.CommandServiceUUID},
		{"ble.command_char_uuid", c.BLE.CommandCharUUID},
		{"ble.data_service_uuid", c.BLE.DataServiceUUID},
		{"ble.data_char_uuid", c.BLE.DataCharUUID},
	}
	for _, u := range uuids {
		if _, err := uuid.Parse(u.value); err != nil {
			return fmt.Errorf("%s: invalid UUID %q: %w", u.field, u.value, err)
		}
	}
	if strings.EqualFold(c.BLE.CommandServiceUUID, c.BLE.DataServiceUUID) {
		return fmt.Errorf("ble.command_service_uuid and ble.data_service_uuid must differ")
	}

	switch c.Security.PasskeyMode {
	case "fixed":
		if c.Security.Passkey > 999999 {
			return fmt.Errorf("security.passkey must be at most 6 digits, got %d", c.Security.Passkey)
		}
	case "derived":
		if c.Security.Secret == "" {
			return fmt.Errorf("security.secret is required when security.passkey_mode is \"derived\"")
		}
	default:
		return fmt.Errorf("security.passkey_mode must be \"fixed\" or \"derived\", got %q", c.Security.PasskeyMode)
	}

	switch c.Security.IOCapability {
	case "DisplayOnly", "DisplayYesNo", "KeyboardOnly", "NoInputNoOutput", "KeyboardDisplay":
	default:
		return fmt.Errorf("security.io_capability %q is not a BlueZ agent capability", c.Security.IOCapability)
	}

	if c.Security.KeySize < 7 || c.Security.KeySize > 16 {
		return fmt.Errorf("security.key_size must be between 7 and 16, got %d", c.Security.KeySize)
	}

	if !strings.HasPrefix(c.Relay.BaseURL, "http://") && !strings.HasPrefix(c.Relay.BaseURL, "https://") {
		return fmt.Errorf("relay.base_url must start with http:// or https://, got %q", c.Relay.BaseURL)
	}
	if c.Relay.Key == "" {
		return fmt.Errorf("relay.key must not be empty")
	}
	if c.Relay.Attempts < 1 {
		return fmt.Errorf("relay.attempts must be >= 1")
	}
	if c.Relay.AttemptTimeout <= 0 {
		return fmt.Errorf("relay.attempt_timeout must be > 0")
	}
	if c.Relay.RetryDelay < 0 || c.Relay.PostDelay < 0 {
		return fmt.Errorf("relay delays must not be negative")
	}
	switch c.Relay.Trust {
	case "verified", "insecure":
	default:
		return fmt.Errorf("relay.trust must be \"verified\" or \"insecure\", got %q", c.Relay.Trust)
	}
	if c.Relay.QueueSize < 1 {
		return fmt.Errorf("relay.queue_size must be >= 1")
	}

	switch c.Buzzer.Backend {
	case "gpio":
		if c.Buzzer.Chip == "" {
			return fmt.Errorf("buzzer.chip must not be empty for the gpio backend")
		}
		if c.Buzzer.Line < 0 {
			return fmt.Errorf("buzzer.line must be >= 0")
		}
	case "audio":
		if c.Buzzer.SampleRate == 0 {
			return fmt.Errorf("buzzer.sample_rate must be > 0")
		}
	case "wav":
		if c.Buzzer.WAVPath == "" {
			return fmt.Errorf("buzzer.wav_path is required for the wav backend")
		}
		if c.Buzzer.SampleRate == 0 {
			return fmt.Errorf("buzzer.sample_rate must be > 0")
		}
	case "none":
	default:
		return fmt.Errorf("buzzer.backend must be gpio, audio, wav, or none, got %q", c.Buzzer.Backend)
	}
	if c.Buzzer.Volume < 0 || c.Buzzer.Volume > 1 {
		return fmt.Errorf("buzzer.volume must be between 0 and 1")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a log_level value to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
