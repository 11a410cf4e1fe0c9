package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/theirongolddev/pburn/internal/model"
	"github.com/theirongolddev/pburn/internal/monitor"
)

// LogNotifier writes alerts to the structured log. It is always installed so
// headless daemons keep a record.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier returns a notifier that logs through l.
func NewLogNotifier(l zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: l}
}

func (l *LogNotifier) Name() string { return "log" }

func (l *LogNotifier) Send(_ context.Context, n monitor.Notification) error {
	ev := l.log.Warn()
	if n.Level == model.Critical {
		ev = l.log.Error()
	}
	ev.Str("alert_id", n.ID).
		Str("kind", string(n.Kind)).
		Str("level", n.Level.String()).
		Float64("percentage", n.Bucket.Percentage()).
		Msg(n.Message)
	return nil
}
