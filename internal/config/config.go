// Package config handles TOML configuration loading with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"

	"github.com/setevik/kmsgd/internal/device"
	"github.com/setevik/kmsgd/internal/event"
	"github.com/setevik/kmsgd/internal/format"
	"github.com/setevik/kmsgd/internal/reassembler"
	"github.com/setevik/kmsgd/internal/watcher"
)

// Config is the top-level configuration for kmsgd.
type Config struct {
	Instance InstanceConfig `toml:"instance"`
	Device   DeviceConfig   `toml:"device"`
	DB       DBConfig       `toml:"db"`
	Ntfy     NtfyConfig     `toml:"ntfy"`
	Log      LogConfig      `toml:"log"`
}

// InstanceConfig identifies this machine.
type InstanceConfig struct {
	ID string `toml:"id"`
}

// DeviceConfig selects the kernel log source and how it is read.
type DeviceConfig struct {
	Path        string   `toml:"path"`
	Framing     string   `toml:"framing"`
	BufferSize  ByteSize `toml:"buffer_size"`
	MaxReopen   int      `toml:"max_reopen"`
	ReopenDelay Duration `toml:"reopen_delay"`
}

// DBConfig controls the event database.
type DBConfig struct {
	// Path overrides the default $XDG_DATA_HOME/kmsgd/events.db.
	Path string `toml:"path"`
	// BatchLimit caps how many startup records share one transaction.
	BatchLimit int `toml:"batch_limit"`
}

// NtfyConfig controls the ntfy notification target.
type NtfyConfig struct {
	URL string `toml:"url"`

	// Priority is used for the alert sent when ingestion stops for good.
	Priority    string            `toml:"priority"`
	PriorityMap map[string]string `toml:"priority_map"`

	// AlertSeverity forwards live records at least this urgent; "" disables.
	AlertSeverity string `toml:"alert_severity"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration wraps time.Duration for TOML string parsing (e.g. "5m", "1h").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ByteSize is a byte count written as "8KB", "1MB" or a plain integer.
// Units are binary.
type ByteSize int64

func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := units.RAMInBytes(string(text))
	if err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%dB", int64(b))), nil
}

func (b ByteSize) String() string {
	return format.Bytes(int64(b))
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	return &Config{
		Instance: InstanceConfig{
			ID: hostname,
		},
		Device: DeviceConfig{
			Path:        "/dev/kmsg",
			Framing:     string(device.FramingKmsg),
			BufferSize:  ByteSize(reassembler.DefaultCapacity),
			MaxReopen:   watcher.MaxReopenAttempts,
			ReopenDelay: Duration{time.Second},
		},
		DB: DBConfig{
			BatchLimit: 512,
		},
		Ntfy: NtfyConfig{
			Priority:      "urgent",
			AlertSeverity: "crit",
			PriorityMap: map[string]string{
				"emerg":   "urgent",
				"alert":   "urgent",
				"crit":    "high",
				"err":     "high",
				"warning": "default",
			},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "kmsgd", "config.toml")
}

// Load reads configuration from the given path, falling back to defaults
// for any unset fields. If the file does not exist, returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports settings the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Device.Path == "" {
		return fmt.Errorf("device.path is empty")
	}
	fr := device.Framing(c.Device.Framing)
	if !fr.Valid() {
		return fmt.Errorf("device.framing %q: want %q or %q", c.Device.Framing, device.FramingKmsg, device.FramingStream)
	}
	if c.Device.BufferSize <= 0 {
		return fmt.Errorf("device.buffer_size must be positive")
	}
	// /dev/kmsg rejects reads into buffers smaller than one record.
	if fr == device.FramingKmsg && c.Device.BufferSize < reassembler.DefaultCapacity {
		return fmt.Errorf("device.buffer_size %s is below the %s a kmsg record may need",
			c.Device.BufferSize, ByteSize(reassembler.DefaultCapacity))
	}
	if c.Device.MaxReopen < 0 {
		return fmt.Errorf("device.max_reopen must not be negative")
	}
	if c.Device.ReopenDelay.Duration < 0 {
		return fmt.Errorf("device.reopen_delay must not be negative")
	}
	if c.Ntfy.AlertSeverity != "" {
		if _, ok := event.ParseSeverity(c.Ntfy.AlertSeverity); !ok {
			return fmt.Errorf("ntfy.alert_severity %q is not a syslog severity", c.Ntfy.AlertSeverity)
		}
	}
	if c.DB.BatchLimit < 0 {
		return fmt.Errorf("db.batch_limit must not be negative")
	}
	return nil
}

// DBPath returns the configured database path, or the default under dataDir.
func (c *Config) DBPath(dataDir string) string {
	if c.DB.Path != "" {
		return c.DB.Path
	}
	return filepath.Join(dataDir, "events.db")
}

// ShouldAlert reports whether a live event of severity sev is forwarded to ntfy.
func (c *Config) ShouldAlert(sev event.Severity) bool {
	threshold, ok := c.AlertThreshold()
	return ok && sev <= threshold
}

// AlertThreshold returns the parsed ntfy.alert_severity, or false if
// alerting on records is disabled.
func (c *Config) AlertThreshold() (event.Severity, bool) {
	if c.Ntfy.AlertSeverity == "" {
		return 0, false
	}
	return event.ParseSeverity(c.Ntfy.AlertSeverity)
}

// NtfyPriority maps a severity to an ntfy priority string.
func (c *Config) NtfyPriority(sev event.Severity) string {
	if p, ok := c.Ntfy.PriorityMap[strings.ToLower(sev.Label())]; ok {
		return p
	}
	return "default"
}
