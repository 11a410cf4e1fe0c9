package monitor

import "github.com/theirongolddev/pburn/internal/model"

// Exit codes for the CI-style budget check.
const (
	CheckOK     = 0
	CheckOver   = 1
	CheckFailed = 2
)

// CheckExitCode returns CheckOver if any bucket is at or above threshold percent,
// CheckFailed if there is no snapshot, and CheckOK otherwise.
func CheckExitCode(snap *model.Snapshot, threshold float64) int {
	if snap == nil {
		return CheckFailed
	}
	for _, r := range snap.Readings() {
		if r.Bucket.Percentage() >= threshold {
			return CheckOver
		}
	}
	return CheckOK
}
