package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/pburn/internal/model"
)

func bucket(kind model.BucketKind, used, total float64) model.BudgetBucket {
	return model.BudgetBucket{Kind: kind, Used: used, Total: total}
}

func TestClassifyBoundaries(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		pct  float64
		want model.Level
	}{
		{0, model.Normal},
		{49.99, model.Normal},
		{50.0, model.Moderate},
		{74.99, model.Moderate},
		{75.0, model.Warning},
		{89.99, model.Warning},
		{90.0, model.Critical},
		{150, model.Critical},
	}
	for _, tt := range tests {
		got := Classify(bucket(model.Daily, tt.pct, 100), th)
		assert.Equal(t, tt.want, got, "pct=%.2f", tt.pct)
	}
}

func TestClassifyMonotonic(t *testing.T) {
	th := DefaultThresholds()
	prev := model.Normal
	for p := 0.0; p <= 120; p += 0.25 {
		got := Classify(bucket(model.Monthly, p, 100), th)
		require.GreaterOrEqual(t, got, prev, "classification decreased at %.2f%%", p)
		prev = got
	}
}

func TestBuildSnapshot_ModerateScenario(t *testing.T) {
	raw := model.RawUsage{Buckets: []model.RawBucket{
		{Kind: model.Daily, Used: 65.2, Total: 100},
		{Kind: model.Monthly, Used: 42.8, Total: 100},
	}}
	snap, err := BuildSnapshot(raw, time.Now(), ThresholdSet{Default: DefaultThresholds()})
	require.NoError(t, err)

	assert.Equal(t, model.Moderate, snap.OverallStatus())

	p := NewPolicy(DefaultCooldown, QuietHours{})
	assert.Empty(t, p.Evaluate(snap, time.Now()))
}

func TestBuildSnapshot_PerKindOverride(t *testing.T) {
	ts := ThresholdSet{
		Default:   DefaultThresholds(),
		Overrides: map[model.BucketKind]Thresholds{model.Monthly: {Warning: 80, Critical: 95}},
	}
	raw := model.RawUsage{Buckets: []model.RawBucket{
		{Kind: model.Daily, Used: 78, Total: 100},
		{Kind: model.Monthly, Used: 78, Total: 100},
	}}
	snap, err := BuildSnapshot(raw, time.Now(), ts)
	require.NoError(t, err)

	daily, _ := snap.Reading(model.Daily)
	monthly, _ := snap.Reading(model.Monthly)
	assert.Equal(t, model.Warning, daily.Level)
	assert.Equal(t, model.Moderate, monthly.Level)
}

func TestBuildSnapshot_Invalid(t *testing.T) {
	ts := ThresholdSet{Default: DefaultThresholds()}

	_, err := BuildSnapshot(model.RawUsage{}, time.Now(), ts)
	assert.ErrorIs(t, err, model.ErrParse)

	_, err = BuildSnapshot(model.RawUsage{Buckets: []model.RawBucket{{Kind: model.Daily, Used: 1, Total: 0}}}, time.Now(), ts)
	assert.ErrorIs(t, err, model.ErrParse)

	_, err = BuildSnapshot(model.RawUsage{Buckets: []model.RawBucket{
		{Kind: model.Daily, Used: 1, Total: 10},
		{Kind: model.Daily, Used: 2, Total: 10},
	}}, time.Now(), ts)
	assert.ErrorIs(t, err, model.ErrParse)
}

func TestNewSettings(t *testing.T) {
	s := DefaultSettings()
	s.Interval = time.Second
	got, err := NewSettings(s)
	require.NoError(t, err)
	assert.Equal(t, MinInterval, got.Interval)

	bad := DefaultSettings()
	bad.Thresholds.Default = Thresholds{Warning: 90, Critical: 75}
	_, err = NewSettings(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfig)

	bad = DefaultSettings()
	bad.Thresholds.Overrides = map[model.BucketKind]Thresholds{model.Daily: {Warning: 0, Critical: 10}}
	_, err = NewSettings(bad)
	assert.ErrorIs(t, err, model.ErrConfig)

	bad = DefaultSettings()
	bad.RetryCount = -1
	_, err = NewSettings(bad)
	assert.ErrorIs(t, err, model.ErrConfig)

	bad = DefaultSettings()
	bad.RetryBackoffMax = time.Millisecond
	_, err = NewSettings(bad)
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestNewSettingsCopiesOverrides(t *testing.T) {
	overrides := map[model.BucketKind]Thresholds{model.Daily: {Warning: 60, Critical: 80}}
	s := DefaultSettings()
	s.Thresholds.Overrides = overrides

	got, err := NewSettings(s)
	require.NoError(t, err)

	overrides[model.Daily] = Thresholds{Warning: 1, Critical: 2}
	overrides[model.Monthly] = Thresholds{Warning: 1, Critical: 2}
	assert.Equal(t, Thresholds{Warning: 60, Critical: 80}, got.Thresholds.For(model.Daily))
	assert.Equal(t, got.Thresholds.Default, got.Thresholds.For(model.Monthly))
}

func TestCheckExitCode(t *testing.T) {
	at := time.Now()
	snap := model.NewSnapshot(at, []model.Reading{
		{Bucket: bucket(model.Daily, 91, 100), Level: model.Critical},
		{Bucket: bucket(model.Monthly, 40, 100), Level: model.Normal},
	})

	assert.Equal(t, CheckOver, CheckExitCode(snap, 90))
	assert.Equal(t, CheckOK, CheckExitCode(snap, 95))
	assert.Equal(t, CheckOver, CheckExitCode(snap, 91))
	assert.Equal(t, CheckFailed, CheckExitCode(nil, 90))
}
