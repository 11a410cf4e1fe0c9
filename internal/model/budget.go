package model

import (
	"fmt"
	"math"
)

// BucketKind identifies one tracked budget period.
type BucketKind string

const (
	Daily   BucketKind = "daily"
	Monthly BucketKind = "monthly"
)

// Kinds lists every tracked period in display order.
var Kinds = []BucketKind{Daily, Monthly}

// order returns the sort position of k; unknown kinds sort last.
func (k BucketKind) order() int {
	for i, known := range Kinds {
		if k == known {
			return i
		}
	}
	return len(Kinds)
}

// Label returns a human-readable period name.
func (k BucketKind) Label() string {
	switch k {
	case Daily:
		return "Daily"
	case Monthly:
		return "Monthly"
	default:
		return string(k)
	}
}

// BudgetBucket is the spend reading for one budget period, in USD.
type BudgetBucket struct {
	Kind  BucketKind
	Used  float64
	Total float64
}

// NewBucket validates a raw reading. A zero or negative total is not "no usage",
// it means the remote returned something that cannot describe a budget.
func NewBucket(kind BucketKind, used, total float64) (BudgetBucket, error) {
	switch {
	case math.IsNaN(used) || math.IsNaN(total) || math.IsInf(used, 0) || math.IsInf(total, 0):
		return BudgetBucket{}, fmt.Errorf("%w: %s budget has non-finite amounts", ErrParse, kind)
	case total <= 0:
		return BudgetBucket{}, fmt.Errorf("%w: %s budget total is %.2f", ErrParse, kind, total)
	case used < 0:
		return BudgetBucket{}, fmt.Errorf("%w: %s budget used is negative (%.2f)", ErrParse, kind, used)
	}
	return BudgetBucket{Kind: kind, Used: used, Total: total}, nil
}

// Percentage returns Used/Total*100, unclamped.
func (b BudgetBucket) Percentage() float64 {
	if b.Total <= 0 {
		return 0
	}
	return b.Used / b.Total * 100
}

// DisplayPercentage returns Percentage clamped to [0, 100].
func (b BudgetBucket) DisplayPercentage() float64 {
	return math.Min(math.Max(b.Percentage(), 0), 100)
}

// Remaining returns Total-Used; negative when over budget.
func (b BudgetBucket) Remaining() float64 {
	return b.Total - b.Used
}

// RawBucket is an unvalidated reading as returned by the remote API.
type RawBucket struct {
	Kind  BucketKind
	Used  float64
	Total float64
}

// RawUsage is the result of one successful fetch.
type RawUsage struct {
	Buckets []RawBucket
}
