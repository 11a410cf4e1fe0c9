// Package notify delivers budget alerts to the desktop, webhooks and the log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/pburn/internal/metrics"
	"github.com/theirongolddev/pburn/internal/monitor"
)

// DefaultTimeout bounds a single notifier's Send.
const DefaultTimeout = 10 * time.Second

// Notifier delivers one alert.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n monitor.Notification) error
}

// Dispatcher fans each alert out to every notifier in parallel. A slow or
// failing notifier does not hold back the others.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	log       zerolog.Logger
	enabled   atomic.Bool

	mu     sync.Mutex
	onSent []func(monitor.Notification)
}

// NewDispatcher returns an enabled dispatcher.
func NewDispatcher(log zerolog.Logger, notifiers ...Notifier) *Dispatcher {
	d := &Dispatcher{notifiers: notifiers, timeout: DefaultTimeout, log: log}
	d.enabled.Store(true)
	return d
}

// SetTimeout overrides the per-notifier timeout.
func (d *Dispatcher) SetTimeout(t time.Duration) {
	if t > 0 {
		d.timeout = t
	}
}

// SetEnabled mutes or unmutes delivery. The policy keeps running while muted,
// so cooldowns stay accurate when delivery resumes.
func (d *Dispatcher) SetEnabled(on bool) { d.enabled.Store(on) }

// Enabled reports whether alerts are delivered.
func (d *Dispatcher) Enabled() bool { return d.enabled.Load() }

// Notifiers returns the configured notifier names.
func (d *Dispatcher) Notifiers() []string {
	names := make([]string, len(d.notifiers))
	for i, n := range d.notifiers {
		names[i] = n.Name()
	}
	return names
}

// OnSent registers fn to run after an alert was delivered by at least one notifier.
func (d *Dispatcher) OnSent(fn func(monitor.Notification)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSent = append(d.onSent, fn)
}

// Run delivers alerts from sub until it closes or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, sub *monitor.Subscription[monitor.Notification]) error {
	defer sub.Close()
	for n := range sub.All(ctx) {
		ReportDropped(d.log, sub)
		if err := d.Deliver(ctx, n); err != nil {
			d.log.Warn().Err(err).Str("id", n.ID).Msg("alert delivery failed")
		}
	}
	return nil
}

// ReportDropped logs and counts alerts sub lost since the last report.
func ReportDropped(log zerolog.Logger, sub *monitor.Subscription[monitor.Notification]) {
	lost := sub.NewlyDropped()
	if lost <= 0 {
		return
	}
	metrics.NotificationsDropped.Add(float64(lost))
	log.Error().Int64("lost", lost).Int64("total", sub.Dropped()).Msg("alert reader fell behind, alerts were dropped")
}

// Deliver sends n to every notifier and returns the joined failures.
func (d *Dispatcher) Deliver(ctx context.Context, n monitor.Notification) error {
	if !d.Enabled() {
		d.log.Debug().Str("id", n.ID).Str("kind", string(n.Kind)).Msg("alert muted")
		return nil
	}

	errs := make([]error, len(d.notifiers))
	var g errgroup.Group
	for i, nt := range d.notifiers {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			if err := nt.Send(sctx, n); err != nil {
				metrics.DeliveriesTotal.WithLabelValues(nt.Name(), "error").Inc()
				errs[i] = fmt.Errorf("%s: %w", nt.Name(), err)
				return nil
			}
			metrics.DeliveriesTotal.WithLabelValues(nt.Name(), "ok").Inc()
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	delivered := 0
	for _, e := range errs {
		if e == nil {
			delivered++
		}
	}
	if delivered > 0 || len(d.notifiers) == 0 {
		d.mu.Lock()
		hooks := d.onSent
		d.mu.Unlock()
		for _, fn := range hooks {
			fn(n)
		}
	}

	d.log.Debug().
		Str("id", n.ID).
		Str("kind", string(n.Kind)).
		Str("level", n.Level.String()).
		Int("delivered", delivered).
		Msg(n.Title)
	return err
}
