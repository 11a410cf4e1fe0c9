package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/theirongolddev/pburn/internal/metrics"
	"github.com/theirongolddev/pburn/internal/model"
)

// Fetcher retrieves raw budget figures. Failures should wrap model.ErrNetwork,
// model.ErrAuth or model.ErrParse.
type Fetcher interface {
	Fetch(ctx context.Context) (model.RawUsage, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (model.RawUsage, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context) (model.RawUsage, error) { return f(ctx) }

// State is the scheduler's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateSleeping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateStopped; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown scheduler state %q", string(b))
}

// Stats describes the scheduler's recent history.
type Stats struct {
	State               State     `json:"state"`
	PollCount           int64     `json:"poll_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccessAt       time.Time `json:"last_success_at"`
	LastErrorAt         time.Time `json:"last_error_at"`
	LastError           string    `json:"last_error,omitempty"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the logger. By default the logger in Run's context is used.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = &l }
}

// WithFailureHook is called from the scheduler goroutine after every failed cycle.
func WithFailureHook(fn func(error)) Option {
	return func(s *Scheduler) { s.onFailure = fn }
}

// WithPolicy replaces the notification policy built from Settings.
func WithPolicy(p *Policy) Option {
	return func(s *Scheduler) { s.policy = p }
}

// Scheduler polls the fetcher, classifies and publishes snapshots, and emits
// notifications. Run it from a single goroutine.
type Scheduler struct {
	fetcher   Fetcher
	settings  Settings
	policy    *Policy
	pub       *Publisher
	notes     *Hub[Notification]
	now       func() time.Time
	log       *zerolog.Logger
	onFailure func(error)
	refresh   chan struct{}

	state atomic.Int32

	mu    sync.Mutex
	stats Stats
}

// NewScheduler builds a scheduler. settings should come from NewSettings.
func NewScheduler(f Fetcher, settings Settings, pub *Publisher, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:  f,
		settings: settings,
		pub:      pub,
		notes:    NewHub[Notification](DefaultNotificationBuffer),
		now:      time.Now,
		refresh:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy == nil {
		s.policy = NewPolicy(settings.Cooldown, settings.Quiet)
	}
	return s
}

// Publisher returns the snapshot publisher the scheduler writes to.
func (s *Scheduler) Publisher() *Publisher { return s.pub }

// Settings returns the engine settings in effect.
func (s *Scheduler) Settings() Settings { return s.settings }

// Notifications subscribes to emitted alerts.
func (s *Scheduler) Notifications() *Subscription[Notification] {
	return s.notes.Subscribe()
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Stats returns a copy of the scheduler statistics.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.State = s.State()
	return st
}

// Refresh asks a sleeping scheduler to poll now. It never blocks.
func (s *Scheduler) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled, then closes the snapshot and notification
// streams and returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	defer func() {
		s.setState(StateStopped)
		s.notes.Close()
		s.pub.Close()
	}()

	log := s.logger(ctx)
	log.Info().
		Dur("interval", s.settings.Interval).
		Int("retry_count", s.settings.RetryCount).
		Msg("budget monitor started")

	for {
		s.setState(StatePolling)
		if _, err := s.Poll(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("budget poll failed")
		}
		if ctx.Err() != nil {
			log.Info().Msg("budget monitor stopped")
			return nil
		}

		s.setState(StateSleeping)
		timer := time.NewTimer(s.settings.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("budget monitor stopped")
			return nil
		case <-s.refresh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Poll runs a single cycle: fetch with retries, classify, evaluate the alert
// policy and publish. On failure the previously published snapshot stays current.
func (s *Scheduler) Poll(ctx context.Context) (*model.Snapshot, error) {
	log := s.logger(ctx)

	var (
		snap    *model.Snapshot
		attempt int
	)
	op := func() error {
		attempt++
		start := time.Now()
		fctx, cancel := context.WithTimeout(ctx, s.settings.FetchTimeout)
		defer cancel()

		raw, err := s.fetcher.Fetch(fctx)
		metrics.FetchDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			snap, err = BuildSnapshot(raw, s.now(), s.settings.Thresholds)
		}
		if err == nil {
			metrics.FetchAttemptsTotal.WithLabelValues("success").Inc()
			return nil
		}

		metrics.FetchAttemptsTotal.WithLabelValues(errorClass(err)).Inc()
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if !model.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("budget fetch failed, retrying")
	}

	if err := backoff.RetryNotify(op, s.newBackOff(ctx), notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.recordFailure(err)
		return nil, err
	}

	s.publish(ctx, snap)
	return snap, nil
}

func (s *Scheduler) publish(ctx context.Context, snap *model.Snapshot) {
	now := s.now()
	notes := s.policy.Evaluate(snap, now)

	s.pub.Publish(snap)
	for _, n := range notes {
		s.notes.Publish(n)
		metrics.NotificationsTotal.WithLabelValues(string(n.Kind), n.Level.String()).Inc()
	}

	s.mu.Lock()
	s.stats.PollCount++
	s.stats.ConsecutiveFailures = 0
	s.stats.LastSuccessAt = now
	s.mu.Unlock()
	metrics.PollsTotal.WithLabelValues("success").Inc()

	ev := s.logger(ctx).Debug().
		Str("overall", snap.OverallStatus().String()).
		Int("notifications", len(notes))
	for _, r := range snap.Readings() {
		ev = ev.Float64(string(r.Bucket.Kind)+"_pct", r.Bucket.Percentage())
	}
	ev.Msg("budget snapshot published")
}

func (s *Scheduler) recordFailure(err error) {
	s.mu.Lock()
	s.stats.PollCount++
	s.stats.ConsecutiveFailures++
	s.stats.LastError = err.Error()
	s.stats.LastErrorAt = s.now()
	s.mu.Unlock()
	metrics.PollsTotal.WithLabelValues("failure").Inc()

	if s.onFailure != nil {
		s.onFailure(err)
	}
}

// newBackOff yields base, 2*base, 4*base ... capped at RetryBackoffMax, for at
// most RetryCount retries, and stops as soon as ctx is done.
func (s *Scheduler) newBackOff(ctx context.Context) backoff.BackOff {
	expo := &backoff.ExponentialBackOff{
		InitialInterval:     s.settings.RetryBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         s.settings.RetryBackoffMax,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(s.settings.RetryCount)), ctx)
}

func (s *Scheduler) setState(st State) { s.state.Store(int32(st)) }

func (s *Scheduler) logger(ctx context.Context) *zerolog.Logger {
	if s.log != nil {
		return s.log
	}
	return zerolog.Ctx(ctx)
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, model.ErrAuth):
		return "auth"
	case errors.Is(err, model.ErrParse):
		return "parse"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "network"
	}
}
