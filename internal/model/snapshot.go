package model

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"
)

// Reading is a classified bucket inside a snapshot.
type Reading struct {
	Bucket BudgetBucket
	Level  Level
}

// Snapshot is an immutable, fully formed reading of every bucket at one fetch time.
// It is superseded by the next successful fetch, never mutated.
type Snapshot struct {
	readings  []Reading
	fetchedAt time.Time
	overall   Level
}

// NewSnapshot builds a snapshot. Readings are copied and sorted into bucket order.
func NewSnapshot(fetchedAt time.Time, readings []Reading) *Snapshot {
	rs := slices.Clone(readings)
	slices.SortStableFunc(rs, func(a, b Reading) int {
		return a.Bucket.Kind.order() - b.Bucket.Kind.order()
	})

	overall := Normal
	for _, r := range rs {
		overall = MaxLevel(overall, r.Level)
	}

	return &Snapshot{readings: rs, fetchedAt: fetchedAt, overall: overall}
}

// Readings returns a copy of the classified buckets in bucket order.
func (s *Snapshot) Readings() []Reading {
	return slices.Clone(s.readings)
}

// Reading returns the reading for kind, if tracked.
func (s *Snapshot) Reading(kind BucketKind) (Reading, bool) {
	for _, r := range s.readings {
		if r.Bucket.Kind == kind {
			return r, true
		}
	}
	return Reading{}, false
}

// FetchedAt is when the underlying data was retrieved.
func (s *Snapshot) FetchedAt() time.Time { return s.fetchedAt }

// OverallStatus is the most severe level among all buckets.
func (s *Snapshot) OverallStatus() Level { return s.overall }

// MaxPercentage returns the highest unclamped bucket percentage.
func (s *Snapshot) MaxPercentage() float64 {
	maxPct := 0.0
	for _, r := range s.readings {
		maxPct = math.Max(maxPct, r.Bucket.Percentage())
	}
	return maxPct
}

// Age returns how long ago the snapshot was fetched.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.fetchedAt)
}

// IsStale reports whether the snapshot is older than after.
func (s *Snapshot) IsStale(now time.Time, after time.Duration) bool {
	return after > 0 && s.Age(now) > after
}

type bucketJSON struct {
	Percentage float64 `json:"percentage"`
	Total      float64 `json:"total"`
	Used       float64 `json:"used"`
	Remaining  float64 `json:"remaining"`
	Status     Level   `json:"status"`
}

// MarshalJSON renders the snapshot keyed by bucket kind, amounts rounded to cents.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.readings)+3)
	for _, r := range s.readings {
		b := r.Bucket
		out[string(b.Kind)] = bucketJSON{
			Percentage: round2(b.Percentage()),
			Total:      round2(b.Total),
			Used:       round2(b.Used),
			Remaining:  round2(b.Remaining()),
			Status:     r.Level,
		}
	}
	out["overall_status"] = s.overall
	out["max_usage_percentage"] = round2(s.MaxPercentage())
	out["last_updated"] = s.fetchedAt.Format(time.RFC3339)
	return json.Marshal(out)
}

// UnmarshalJSON reads the MarshalJSON form back. Amounts come back rounded and
// the fetch time truncated to seconds.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var readings []Reading
	for _, kind := range Kinds {
		raw, ok := fields[string(kind)]
		if !ok {
			continue
		}
		var b bucketJSON
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("snapshot %s: %w", kind, err)
		}
		readings = append(readings, Reading{
			Bucket: BudgetBucket{Kind: kind, Used: b.Used, Total: b.Total},
			Level:  b.Status,
		})
	}

	var fetchedAt time.Time
	if raw, ok := fields["last_updated"]; ok {
		var ts string
		if err := json.Unmarshal(raw, &ts); err != nil {
			return fmt.Errorf("snapshot last_updated: %w", err)
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return fmt.Errorf("snapshot last_updated: %w", err)
		}
		fetchedAt = t
	}

	*s = *NewSnapshot(fetchedAt, readings)
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
