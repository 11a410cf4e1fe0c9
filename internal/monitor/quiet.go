package monitor

import (
	"fmt"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day in minutes after midnight.
type ClockTime int

// ParseClock parses "HH:MM" (24-hour).
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

// ClockOf returns the wall-clock minute of t in t's location.
func ClockOf(t time.Time) ClockTime {
	h, m, _ := t.Clock()
	return ClockTime(h*60 + m)
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// QuietHours is a [Start, End) window in which non-critical alerts are dropped.
// The window may wrap past midnight. Start == End is an empty window.
type QuietHours struct {
	Start ClockTime
	End   ClockTime
}

// Contains reports whether t falls inside the window.
func (q QuietHours) Contains(t time.Time) bool {
	c := ClockOf(t)
	if q.Start <= q.End {
		return c >= q.Start && c < q.End
	}
	return c >= q.Start || c < q.End
}

// Enabled reports whether the window is non-empty.
func (q QuietHours) Enabled() bool {
	return q.Start != q.End
}

func (q QuietHours) String() string {
	if !q.Enabled() {
		return "off"
	}
	return q.Start.String() + "-" + q.End.String()
}
