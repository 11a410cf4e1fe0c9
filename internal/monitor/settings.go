// Package monitor is the budget monitoring engine: it polls the remote budget,
// classifies each reading, decides which alerts to raise and publishes snapshots
// to any number of readers.
package monitor

import (
	"fmt"
	"maps"
	"time"

	"github.com/theirongolddev/pburn/internal/model"
)

const (
	// MinInterval is the floor applied to the polling interval.
	MinInterval = 5 * time.Second

	DefaultInterval        = 30 * time.Second
	DefaultCooldown        = 5 * time.Minute
	DefaultRetryCount      = 3
	DefaultRetryBackoff    = time.Second
	DefaultRetryBackoffMax = 30 * time.Second
	DefaultFetchTimeout    = 10 * time.Second
)

// Settings is the validated, immutable engine configuration. Build it with
// NewSettings; the zero value is not usable.
type Settings struct {
	Interval        time.Duration
	Thresholds      ThresholdSet
	Cooldown        time.Duration
	Quiet           QuietHours
	RetryCount      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	FetchTimeout    time.Duration
	// StaleAfter marks the published snapshot stale once it is this old.
	StaleAfter time.Duration
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		Interval:        DefaultInterval,
		Thresholds:      ThresholdSet{Default: DefaultThresholds()},
		Cooldown:        DefaultCooldown,
		RetryCount:      DefaultRetryCount,
		RetryBackoff:    DefaultRetryBackoff,
		RetryBackoffMax: DefaultRetryBackoffMax,
		FetchTimeout:    DefaultFetchTimeout,
		StaleAfter:      2 * DefaultInterval,
	}
}

// NewSettings validates s and returns a normalized copy. Invalid values fail with
// a *model.ConfigError; a too-short interval is clamped instead.
func NewSettings(s Settings) (Settings, error) {
	if s.Interval < MinInterval {
		s.Interval = MinInterval
	}
	if err := s.Thresholds.validate(); err != nil {
		return Settings{}, err
	}
	if s.Cooldown < 0 {
		return Settings{}, &model.ConfigError{Field: "notification.cooldown", Reason: "must not be negative"}
	}
	if s.RetryCount < 0 {
		return Settings{}, &model.ConfigError{Field: "polling.retry_count", Reason: "must not be negative"}
	}
	if s.RetryBackoff <= 0 {
		return Settings{}, &model.ConfigError{Field: "polling.retry_backoff", Reason: "must be positive"}
	}
	if s.RetryBackoffMax == 0 {
		s.RetryBackoffMax = DefaultRetryBackoffMax
	}
	if s.RetryBackoffMax < s.RetryBackoff {
		return Settings{}, &model.ConfigError{
			Field:  "polling.retry_backoff_max",
			Reason: fmt.Sprintf("must be at least retry_backoff (%s)", s.RetryBackoff),
		}
	}
	if s.FetchTimeout <= 0 {
		s.FetchTimeout = DefaultFetchTimeout
	}
	if s.StaleAfter <= 0 {
		s.StaleAfter = 2 * s.Interval
	}
	s.Thresholds.Overrides = maps.Clone(s.Thresholds.Overrides)
	return s, nil
}
