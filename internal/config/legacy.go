package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/theirongolddev/pburn/internal/model"
)

// legacyConfig mirrors ~/.packy-usage/config.yaml written by packy-usage.
// Only the keys with a pburn equivalent are read.
type legacyConfig struct {
	API struct {
		Endpoint   string `yaml:"endpoint"`
		Timeout    int    `yaml:"timeout"`
		RetryCount *int   `yaml:"retry_count"`
	} `yaml:"api"`
	Polling struct {
		Interval int `yaml:"interval"`
	} `yaml:"polling"`
	Alerts struct {
		DailyWarning    float64 `yaml:"daily_warning"`
		DailyCritical   float64 `yaml:"daily_critical"`
		MonthlyWarning  float64 `yaml:"monthly_warning"`
		MonthlyCritical float64 `yaml:"monthly_critical"`
	} `yaml:"alerts"`
	Notification struct {
		Enabled         *bool    `yaml:"enabled"`
		QuietHoursStart string   `yaml:"quiet_hours_start"`
		QuietHoursEnd   string   `yaml:"quiet_hours_end"`
		Channels        []string `yaml:"channels"`
	} `yaml:"notification"`
	Network struct {
		Proxy     string `yaml:"proxy"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"network"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LegacyPath returns packy-usage's config file, honoring
// PACKY_USAGE_CONFIG_DIR.
func LegacyPath() string {
	if dir := os.Getenv("PACKY_USAGE_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".packy-usage", "config.yaml")
}

// ImportLegacy reads a legacy YAML config and overlays it onto base. Keys
// missing from the file keep base's values.
func ImportLegacy(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the local user
	if err != nil {
		return base, fmt.Errorf("reading legacy config: %w", err)
	}

	var lc legacyConfig
	if err := yaml.Unmarshal(data, &lc); err != nil {
		return base, fmt.Errorf("parsing legacy config: %v: %w", err, model.ErrConfig)
	}

	cfg := base
	if lc.API.Endpoint != "" {
		cfg.API.Endpoint = lc.API.Endpoint
	}
	if lc.API.Timeout > 0 {
		cfg.API.Timeout = Duration{time.Duration(lc.API.Timeout) * time.Second}
	}
	if lc.API.RetryCount != nil {
		cfg.Polling.RetryCount = *lc.API.RetryCount
	}
	if lc.Polling.Interval > 0 {
		cfg.Polling.Interval = Duration{time.Duration(lc.Polling.Interval) * time.Second}
	}

	if lc.Alerts.DailyWarning > 0 || lc.Alerts.DailyCritical > 0 {
		cfg.Alerts.Daily = &ThresholdConfig{
			Warning:  orDefault(lc.Alerts.DailyWarning, cfg.Alerts.Warning),
			Critical: orDefault(lc.Alerts.DailyCritical, cfg.Alerts.Critical),
		}
	}
	if lc.Alerts.MonthlyWarning > 0 || lc.Alerts.MonthlyCritical > 0 {
		cfg.Alerts.Monthly = &ThresholdConfig{
			Warning:  orDefault(lc.Alerts.MonthlyWarning, cfg.Alerts.Warning),
			Critical: orDefault(lc.Alerts.MonthlyCritical, cfg.Alerts.Critical),
		}
	}

	if lc.Notification.Enabled != nil {
		cfg.Notification.Enabled = *lc.Notification.Enabled
	}
	if lc.Notification.QuietHoursStart != "" {
		cfg.Notification.QuietStart = lc.Notification.QuietHoursStart
	}
	if lc.Notification.QuietHoursEnd != "" {
		cfg.Notification.QuietEnd = lc.Notification.QuietHoursEnd
	}
	if lc.Notification.Channels != nil {
		cfg.Notification.Desktop = slices.Contains(lc.Notification.Channels, "desktop")
	}

	if lc.Network.Proxy != "" {
		cfg.API.Proxy = lc.Network.Proxy
	}
	if lc.Network.UserAgent != "" {
		cfg.API.UserAgent = lc.Network.UserAgent
	}
	if lc.Logging.Level != "" {
		cfg.Logging.Level = strings.ToLower(lc.Logging.Level)
	}

	if _, err := cfg.Settings(); err != nil {
		return base, fmt.Errorf("legacy config: %w", err)
	}
	return cfg, nil
}

func orDefault(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
