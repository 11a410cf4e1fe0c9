package monitor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/theirongolddev/pburn/internal/model"
)

// Notification is an alert the policy decided to emit.
type Notification struct {
	ID       string             `json:"id"`
	Kind     model.BucketKind   `json:"bucket_kind"`
	Level    model.Level        `json:"level"`
	Bucket   model.BudgetBucket `json:"-"`
	Snapshot *model.Snapshot    `json:"snapshot"`
	At       time.Time          `json:"at"`
	Title    string             `json:"title"`
	Message  string             `json:"message"`
}

type alertRecord struct {
	lastSentAt time.Time
	lastLevel  model.Level
}

// Policy decides which classified buckets become notifications. It enforces a
// per-bucket cooldown that escalations bypass, a quiet-hours window that only
// Critical bypasses, and a Warning floor. A Policy is not safe for concurrent use;
// the scheduler goroutine owns it.
type Policy struct {
	cooldown time.Duration
	quiet    QuietHours
	records  map[model.BucketKind]alertRecord
}

// NewPolicy returns a policy with no alert history.
func NewPolicy(cooldown time.Duration, quiet QuietHours) *Policy {
	return &Policy{
		cooldown: cooldown,
		quiet:    quiet,
		records:  make(map[model.BucketKind]alertRecord),
	}
}

// Evaluate returns the notifications to emit for snap at time now, in bucket order.
func (p *Policy) Evaluate(snap *model.Snapshot, now time.Time) []Notification {
	var out []Notification
	for _, r := range snap.Readings() {
		kind, level := r.Bucket.Kind, r.Level

		if !level.Alerting() {
			delete(p.records, kind)
			continue
		}

		rec, seen := p.records[kind]
		escalation := !seen || level > rec.lastLevel
		coolingDown := seen && now.Sub(rec.lastSentAt) < p.cooldown && !escalation
		quiet := level < model.Critical && p.quiet.Contains(now)
		if coolingDown || quiet {
			continue
		}

		p.records[kind] = alertRecord{lastSentAt: now, lastLevel: level}
		out = append(out, newNotification(r, snap, now))
	}
	return out
}

func newNotification(r model.Reading, snap *model.Snapshot, now time.Time) Notification {
	b := r.Bucket
	title := fmt.Sprintf("%s budget %s", b.Kind.Label(), r.Level)
	msg := fmt.Sprintf("%s usage at %.1f%% ($%.2f of $%.2f, $%.2f left)",
		b.Kind.Label(), b.Percentage(), b.Used, b.Total, b.Remaining())
	if r.Level == model.Critical {
		msg = fmt.Sprintf("%s usage reached %.1f%%! $%.2f of $%.2f spent",
			b.Kind.Label(), b.Percentage(), b.Used, b.Total)
	}

	return Notification{
		ID:       uuid.NewString(),
		Kind:     b.Kind,
		Level:    r.Level,
		Bucket:   b,
		Snapshot: snap,
		At:       now,
		Title:    title,
		Message:  msg,
	}
}
