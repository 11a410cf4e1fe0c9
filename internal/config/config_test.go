package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/pburn/internal/model"
	"github.com/theirongolddev/pburn/internal/monitor"
)

func useTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	SetDir(dir)
	t.Cleanup(func() { SetDir("") })
	return dir
}

func TestLoad_DefaultsWhenMissing(t *testing.T) {
	useTempDir(t)
	t.Setenv("PBURN_ENDPOINT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.False(t, Exists())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := useTempDir(t)
	t.Setenv("PBURN_ENDPOINT", "")

	cfg := DefaultConfig()
	cfg.Polling.Interval = Duration{45 * time.Second}
	cfg.Alerts.Monthly = &ThresholdConfig{Warning: 80, Critical: 95}
	cfg.Notification.WebhookURL = "https://hooks.example.com/budget"
	require.NoError(t, Save(cfg))
	require.True(t, Exists())

	info, err := os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoad_PartialFileAndDurations(t *testing.T) {
	dir := useTempDir(t)
	t.Setenv("PBURN_ENDPOINT", "https://override.example.com/info")

	body := `
[polling]
interval = "1m"
fetch_timeout = 5

[alerts]
warning = 70.0
critical = 85.0

[alerts.daily]
warning = 60.0
critical = 80.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Polling.Interval.Duration)
	assert.Equal(t, 5*time.Second, cfg.Polling.FetchTimeout.Duration)
	assert.Equal(t, monitor.DefaultRetryCount, cfg.Polling.RetryCount)
	assert.Equal(t, "https://override.example.com/info", cfg.API.Endpoint)

	s, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, monitor.Thresholds{Warning: 70, Critical: 85}, s.Thresholds.Default)
	assert.Equal(t, monitor.Thresholds{Warning: 60, Critical: 80}, s.Thresholds.For(model.Daily))
	assert.Equal(t, monitor.Thresholds{Warning: 70, Critical: 85}, s.Thresholds.For(model.Monthly))
}

func TestLoad_BadTOML(t *testing.T) {
	dir := useTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[polling\n"), 0o600))

	_, err := Load()
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestSettings_Validation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alerts.Warning = 95
	_, err := cfg.Settings()
	assert.ErrorIs(t, err, model.ErrConfig)

	cfg = DefaultConfig()
	cfg.Notification.QuietStart = "25:99"
	_, err = cfg.Settings()
	var ce *model.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "notification.quiet_start", ce.Field)

	cfg = DefaultConfig()
	cfg.Notification.QuietEnd = ""
	s, err := cfg.Settings()
	require.NoError(t, err)
	assert.False(t, s.Quiet.Enabled())

	cfg = DefaultConfig()
	cfg.Polling.Interval = Duration{time.Second}
	s, err = cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, monitor.MinInterval, s.Interval)
}

func TestSettings_PartialOverrideInheritsShared(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alerts.Warning = 70
	cfg.Alerts.Critical = 85
	cfg.Alerts.Daily = &ThresholdConfig{Warning: 60}
	cfg.Alerts.Monthly = &ThresholdConfig{Critical: 95}

	s, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, monitor.Thresholds{Warning: 60, Critical: 85}, s.Thresholds.For(model.Daily))
	assert.Equal(t, monitor.Thresholds{Warning: 70, Critical: 95}, s.Thresholds.For(model.Monthly))

	cfg.Alerts.Daily = &ThresholdConfig{Warning: 90}
	_, err = cfg.Settings()
	var ce *model.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "alerts.daily.critical", ce.Field)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90")))
	assert.Equal(t, 90*time.Second, d.Duration)
	require.NoError(t, d.UnmarshalText([]byte("2m30s")))
	assert.Equal(t, 150*time.Second, d.Duration)
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	out, err := toml.Marshal(struct {
		D Duration `toml:"d"`
	}{Duration{5 * time.Minute}})
	require.NoError(t, err)
	assert.Contains(t, string(out), `d = "5m0s"`)
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{"PBURN_PROXY": "http://proxy:3128", "PBURN_LOG_LEVEL": "debug"}
	ApplyEnv(&cfg, func(k string) string { return env[k] })

	assert.Equal(t, "http://proxy:3128", cfg.API.Proxy)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, DefaultConfig().API.Endpoint, cfg.API.Endpoint)
}

func TestImportLegacy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
api:
  endpoint: https://legacy.example.com/api/backend/users/info
  timeout: 15
  retry_count: 5
polling:
  enabled: true
  interval: 60
alerts:
  daily_warning: 75.0
  daily_critical: 90.0
  monthly_warning: 80.0
  monthly_critical: 95.0
notification:
  enabled: false
  quiet_hours_start: "23:00"
  quiet_hours_end: "07:00"
  channels: []
network:
  proxy: http://127.0.0.1:7890
logging:
  level: DEBUG
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := ImportLegacy(path, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "https://legacy.example.com/api/backend/users/info", cfg.API.Endpoint)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout.Duration)
	assert.Equal(t, 5, cfg.Polling.RetryCount)
	assert.Equal(t, time.Minute, cfg.Polling.Interval.Duration)
	assert.Equal(t, &ThresholdConfig{Warning: 80, Critical: 95}, cfg.Alerts.Monthly)
	assert.False(t, cfg.Notification.Enabled)
	assert.False(t, cfg.Notification.Desktop)
	assert.Equal(t, "23:00", cfg.Notification.QuietStart)
	assert.Equal(t, "http://127.0.0.1:7890", cfg.API.Proxy)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestImportLegacy_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := ImportLegacy(filepath.Join(dir, "missing.yaml"), DefaultConfig())
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("alerts:\n  daily_warning: 95\n  daily_critical: 90\n"), 0o600))
	base := DefaultConfig()
	got, err := ImportLegacy(bad, base)
	assert.ErrorIs(t, err, model.ErrConfig)
	assert.Equal(t, base, got)
}
