// Package config loads and saves the pburn TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/theirongolddev/pburn/internal/model"
	"github.com/theirongolddev/pburn/internal/monitor"
	"github.com/theirongolddev/pburn/internal/packy"
)

// Config holds all pburn configuration.
type Config struct {
	API          APIConfig          `toml:"api"`
	Polling      PollingConfig      `toml:"polling"`
	Alerts       AlertConfig        `toml:"alerts"`
	Notification NotificationConfig `toml:"notification"`
	Daemon       DaemonConfig       `toml:"daemon"`
	Logging      LoggingConfig      `toml:"logging"`
	Appearance   AppearanceConfig   `toml:"appearance"`
}

// APIConfig holds budget endpoint settings.
type APIConfig struct {
	Endpoint  string   `toml:"endpoint"`
	Token     string   `toml:"token,omitempty"`
	Timeout   Duration `toml:"timeout"`
	Proxy     string   `toml:"proxy,omitempty"`
	UserAgent string   `toml:"user_agent,omitempty"`
}

// PollingConfig holds scheduler timing.
type PollingConfig struct {
	Interval        Duration `toml:"interval"`
	RetryCount      int      `toml:"retry_count"`
	RetryBackoff    Duration `toml:"retry_backoff"`
	RetryBackoffMax Duration `toml:"retry_backoff_max"`
	FetchTimeout    Duration `toml:"fetch_timeout"`
}

// AlertConfig holds classification thresholds in percent. Daily and Monthly
// override the defaults for one bucket.
type AlertConfig struct {
	Warning  float64          `toml:"warning"`
	Critical float64          `toml:"critical"`
	Daily    *ThresholdConfig `toml:"daily,omitempty"`
	Monthly  *ThresholdConfig `toml:"monthly,omitempty"`
}

// ThresholdConfig is a per-bucket threshold override.
type ThresholdConfig struct {
	Warning  float64 `toml:"warning"`
	Critical float64 `toml:"critical"`
}

// NotificationConfig holds alert delivery settings. QuietStart and QuietEnd are
// "HH:MM"; leaving either empty disables quiet hours.
type NotificationConfig struct {
	Enabled       bool     `toml:"enabled"`
	Cooldown      Duration `toml:"cooldown"`
	QuietStart    string   `toml:"quiet_start"`
	QuietEnd      string   `toml:"quiet_end"`
	Desktop       bool     `toml:"desktop"`
	WebhookURL    string   `toml:"webhook_url,omitempty"`
	WebhookSecret string   `toml:"webhook_secret,omitempty"`
}

// DaemonConfig holds the background service's HTTP settings.
type DaemonConfig struct {
	Addr         string `toml:"addr"`
	EventsBuffer int    `toml:"events_buffer"`
}

// LoggingConfig holds the zerolog level name.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Endpoint:  packy.DefaultEndpoint,
			Timeout:   Duration{packy.DefaultTimeout},
			UserAgent: packy.DefaultUserAgent,
		},
		Polling: PollingConfig{
			Interval:        Duration{monitor.DefaultInterval},
			RetryCount:      monitor.DefaultRetryCount,
			RetryBackoff:    Duration{monitor.DefaultRetryBackoff},
			RetryBackoffMax: Duration{monitor.DefaultRetryBackoffMax},
			FetchTimeout:    Duration{monitor.DefaultFetchTimeout},
		},
		Alerts: AlertConfig{
			Warning:  monitor.DefaultThresholds().Warning,
			Critical: monitor.DefaultThresholds().Critical,
		},
		Notification: NotificationConfig{
			Enabled:    true,
			Cooldown:   Duration{monitor.DefaultCooldown},
			QuietStart: "22:00",
			QuietEnd:   "08:00",
			Desktop:    true,
		},
		Daemon: DaemonConfig{
			Addr:         "127.0.0.1:8787",
			EventsBuffer: 200,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

var dirOverride string

// SetDir overrides the config directory, as --config-dir does.
func SetDir(dir string) { dirOverride = dir }

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if dirOverride != "" {
		return dirOverride
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pburn")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pburn")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist, then
// applies environment overrides.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %v: %w", err, model.ErrConfig)
		}
	}

	ApplyEnv(&cfg, os.Getenv)
	return cfg, nil
}

// ApplyEnv overlays PBURN_* environment variables onto cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv("PBURN_ENDPOINT")); v != "" {
		cfg.API.Endpoint = v
	}
	if v := strings.TrimSpace(getenv("PBURN_PROXY")); v != "" {
		cfg.API.Proxy = v
	}
	if v := strings.TrimSpace(getenv("PBURN_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
}

// Save writes the config to disk. The file may hold a token, so it is 0600.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// Settings converts the file settings into validated engine settings.
func (c Config) Settings() (monitor.Settings, error) {
	s := monitor.Settings{
		Interval: c.Polling.Interval.Duration,
		Thresholds: monitor.ThresholdSet{
			Default: monitor.Thresholds{Warning: c.Alerts.Warning, Critical: c.Alerts.Critical},
		},
		Cooldown:        c.Notification.Cooldown.Duration,
		RetryCount:      c.Polling.RetryCount,
		RetryBackoff:    c.Polling.RetryBackoff.Duration,
		RetryBackoffMax: c.Polling.RetryBackoffMax.Duration,
		FetchTimeout:    c.Polling.FetchTimeout.Duration,
	}

	for kind, o := range map[model.BucketKind]*ThresholdConfig{model.Daily: c.Alerts.Daily, model.Monthly: c.Alerts.Monthly} {
		if o == nil {
			continue
		}
		if s.Thresholds.Overrides == nil {
			s.Thresholds.Overrides = make(map[model.BucketKind]monitor.Thresholds)
		}
		// A field left out of the override table inherits the shared value.
		s.Thresholds.Overrides[kind] = monitor.Thresholds{
			Warning:  orDefault(o.Warning, c.Alerts.Warning),
			Critical: orDefault(o.Critical, c.Alerts.Critical),
		}
	}

	quiet, err := c.Notification.QuietHours()
	if err != nil {
		return monitor.Settings{}, err
	}
	s.Quiet = quiet

	return monitor.NewSettings(s)
}

// QuietHours parses the quiet-hours window.
func (n NotificationConfig) QuietHours() (monitor.QuietHours, error) {
	if strings.TrimSpace(n.QuietStart) == "" || strings.TrimSpace(n.QuietEnd) == "" {
		return monitor.QuietHours{}, nil
	}
	start, err := monitor.ParseClock(n.QuietStart)
	if err != nil {
		return monitor.QuietHours{}, &model.ConfigError{Field: "notification.quiet_start", Reason: err.Error()}
	}
	end, err := monitor.ParseClock(n.QuietEnd)
	if err != nil {
		return monitor.QuietHours{}, &model.ConfigError{Field: "notification.quiet_end", Reason: err.Error()}
	}
	return monitor.QuietHours{Start: start, End: end}, nil
}

// ClientOptions returns the API client settings.
func (c Config) ClientOptions() packy.Options {
	return packy.Options{
		Endpoint:  c.API.Endpoint,
		Proxy:     c.API.Proxy,
		UserAgent: c.API.UserAgent,
		Timeout:   c.API.Timeout.Duration,
	}
}
