package model

import "fmt"

// Level is the severity of a budget reading. Ordering matters: higher is worse.
type Level int

const (
	Normal Level = iota
	Moderate
	Warning
	Critical
)

var levelNames = [...]string{"normal", "moderate", "warning", "critical"}

func (l Level) String() string {
	if l < Normal || l > Critical {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// Icon returns the status glyph used in brief output.
func (l Level) Icon() string {
	switch l {
	case Critical:
		return "🔴"
	case Warning:
		return "🟡"
	case Moderate:
		return "🔵"
	default:
		return "🟢"
	}
}

// Alerting reports whether the level can ever produce a notification.
func (l Level) Alerting() bool {
	return l >= Warning
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	for i, name := range levelNames {
		if string(b) == name {
			*l = Level(i)
			return nil
		}
	}
	return fmt.Errorf("unknown level %q", string(b))
}

// MaxLevel returns the more severe of a and b.
func MaxLevel(a, b Level) Level {
	if b > a {
		return b
	}
	return a
}
