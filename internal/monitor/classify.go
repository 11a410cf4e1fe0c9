package monitor

import (
	"fmt"
	"time"

	"github.com/theirongolddev/pburn/internal/model"
)

// ModeratePct is the cosmetic tier boundary. It changes icon colors only and never
// triggers alerts.
const ModeratePct = 50.0

// Thresholds holds the alerting boundaries, in percent.
type Thresholds struct {
	Warning  float64
	Critical float64
}

// DefaultThresholds returns warning=75, critical=90.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 75.0, Critical: 90.0}
}

func (t Thresholds) validate(field string) error {
	switch {
	case t.Warning <= 0:
		return &model.ConfigError{Field: field + ".warning", Reason: "must be positive"}
	case t.Critical <= t.Warning:
		return &model.ConfigError{
			Field:  field + ".critical",
			Reason: fmt.Sprintf("must be greater than warning (%.1f)", t.Warning),
		}
	}
	return nil
}

// ThresholdSet is the shared default plus optional per-period overrides.
type ThresholdSet struct {
	Default   Thresholds
	Overrides map[model.BucketKind]Thresholds
}

// For returns the thresholds that apply to kind.
func (ts ThresholdSet) For(kind model.BucketKind) Thresholds {
	if t, ok := ts.Overrides[kind]; ok {
		return t
	}
	return ts.Default
}

func (ts ThresholdSet) validate() error {
	if err := ts.Default.validate("alerts"); err != nil {
		return err
	}
	for kind, t := range ts.Overrides {
		if err := t.validate("alerts." + string(kind)); err != nil {
			return err
		}
	}
	return nil
}

// Classify maps a bucket to its level. Each tier includes its lower bound.
func Classify(b model.BudgetBucket, t Thresholds) model.Level {
	p := b.Percentage()
	switch {
	case p >= t.Critical:
		return model.Critical
	case p >= t.Warning:
		return model.Warning
	case p >= ModeratePct:
		return model.Moderate
	default:
		return model.Normal
	}
}

// BuildSnapshot validates raw readings, classifies them and returns the snapshot.
// Any invalid bucket fails the whole snapshot with model.ErrParse.
func BuildSnapshot(raw model.RawUsage, fetchedAt time.Time, ts ThresholdSet) (*model.Snapshot, error) {
	if len(raw.Buckets) == 0 {
		return nil, fmt.Errorf("%w: no budget buckets in response", model.ErrParse)
	}

	readings := make([]model.Reading, 0, len(raw.Buckets))
	seen := make(map[model.BucketKind]bool, len(raw.Buckets))
	for _, rb := range raw.Buckets {
		if seen[rb.Kind] {
			return nil, fmt.Errorf("%w: duplicate %s bucket", model.ErrParse, rb.Kind)
		}
		seen[rb.Kind] = true

		b, err := model.NewBucket(rb.Kind, rb.Used, rb.Total)
		if err != nil {
			return nil, err
		}
		readings = append(readings, model.Reading{Bucket: b, Level: Classify(b, ts.For(b.Kind))})
	}
	return model.NewSnapshot(fetchedAt, readings), nil
}
