// Package daemon provides the long-running background budget monitor service.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/pburn/internal/metrics"
	"github.com/theirongolddev/pburn/internal/model"
	"github.com/theirongolddev/pburn/internal/monitor"
	"github.com/theirongolddev/pburn/internal/notify"
	"github.com/theirongolddev/pburn/internal/store"
)

// DefaultAddr is where the daemon listens unless configured otherwise.
const DefaultAddr = "127.0.0.1:8787"

// Config controls the daemon runtime behavior.
type Config struct {
	Addr         string
	EventsBuffer int
}

// Event types.
const (
	EventSnapshot = "snapshot"
	EventAlert    = "alert"
)

// Event is emitted for every published snapshot and every alert.
type Event struct {
	ID        int64                     `json:"id"`
	Type      string                    `json:"type"`
	Timestamp time.Time                 `json:"timestamp"`
	Snapshot  *model.Snapshot           `json:"snapshot,omitempty"`
	Alert     *store.NotificationRecord `json:"alert,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt            time.Time       `json:"started_at"`
	PollIntervalSec      int             `json:"poll_interval_sec"`
	Scheduler            monitor.Stats   `json:"scheduler"`
	Snapshot             *model.Snapshot `json:"snapshot"`
	Stale                bool            `json:"stale"`
	AgeSec               float64         `json:"age_sec"`
	QuietHours           string          `json:"quiet_hours"`
	NotificationsEnabled bool            `json:"notifications_enabled"`
	Notifiers            []string        `json:"notifiers"`
	EventCount           int             `json:"event_count"`
	SubscriberCount      int             `json:"subscriber_count"`
}

// Option configures a Service.
type Option func(*Service)

// WithDispatcher delivers alerts through d.
func WithDispatcher(d *notify.Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithCache persists snapshots and alerts to c and restores them at startup.
func WithCache(c *store.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg        Config
	sched      *monitor.Scheduler
	dispatcher *notify.Dispatcher
	cache      *store.Cache
	log        zerolog.Logger
	now        func() time.Time
	upgrader   websocket.Upgrader

	startedAt time.Time
	addr      atomic.Value // string, set once listening
	streams   *monitor.Hub[Event]

	mu          sync.RWMutex
	nextEventID int64
	events      []Event
}

// New returns a daemon service around sched.
func New(cfg Config, sched *monitor.Scheduler, opts ...Option) *Service {
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Service{
		cfg:       cfg,
		sched:     sched,
		log:       zerolog.Nop(),
		now:       time.Now,
		startedAt: time.Now(),
		streams:   monitor.NewHub[Event](16),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the bound listen address once Run is serving.
func (s *Service) Addr() string {
	if v, ok := s.addr.Load().(string); ok {
		return v
	}
	return ""
}

// Run restores cached state, then polls and serves HTTP until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.restore()

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("daemon listen: %w", err)
	}
	s.addr.Store(ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	// Subscribe before the scheduler starts so the first snapshot is not missed.
	snaps := s.sched.Publisher().Subscribe()
	notes := s.sched.Notifications()

	g.Go(func() error { return s.sched.Run(gctx) })
	g.Go(func() error { s.consumeSnapshots(gctx, snaps); return nil })
	g.Go(func() error { s.consumeAlerts(gctx, notes); return nil })
	g.Go(func() error {
		s.log.Info().Str("addr", s.Addr()).Msg("daemon listening")
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("daemon http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.streams.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// restore seeds the publisher and event ring from the cache.
func (s *Service) restore() {
	if s.cache == nil {
		return
	}
	if snap, err := s.cache.LastSnapshot(); err != nil {
		s.log.Warn().Err(err).Msg("reading cached snapshot")
	} else if snap != nil {
		s.sched.Publisher().Seed(snap)
		s.log.Info().Time("fetched_at", snap.FetchedAt()).Msg("restored cached snapshot")
	}

	recs, err := s.cache.RecentNotifications(s.cfg.EventsBuffer)
	if err != nil {
		s.log.Warn().Err(err).Msg("reading cached alerts")
		return
	}
	for _, rec := range recs {
		s.publishEvent(Event{Type: EventAlert, Timestamp: rec.At, Alert: &rec})
	}
}

func (s *Service) consumeSnapshots(ctx context.Context, sub *monitor.Subscription[*model.Snapshot]) {
	defer sub.Close()
	for snap := range sub.All(ctx) {
		metrics.ObserveSnapshot(snap)
		if s.cache != nil {
			if err := s.cache.SaveSnapshot(snap); err != nil {
				s.log.Warn().Err(err).Msg("caching snapshot")
			}
		}
		s.publishEvent(Event{Type: EventSnapshot, Timestamp: snap.FetchedAt(), Snapshot: snap})
	}
}

func (s *Service) consumeAlerts(ctx context.Context, sub *monitor.Subscription[monitor.Notification]) {
	defer sub.Close()
	for n := range sub.All(ctx) {
		notify.ReportDropped(s.log, sub)
		rec := store.Record(n)
		s.publishEvent(Event{Type: EventAlert, Timestamp: n.At, Alert: &rec})

		if s.dispatcher != nil {
			if err := s.dispatcher.Deliver(ctx, n); err != nil {
				s.log.Warn().Err(err).Str("id", n.ID).Msg("alert delivery failed")
			}
		}
		if s.cache != nil {
			if err := s.cache.SaveNotification(n); err != nil {
				s.log.Warn().Err(err).Msg("caching alert")
			}
		}
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.nextEventID++
	ev.ID = s.nextEventID
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}
	s.mu.Unlock()

	s.streams.Publish(ev)
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	eventCount := len(s.events)
	s.mu.RUnlock()

	settings := s.sched.Settings()
	st := Status{
		StartedAt:       s.startedAt,
		PollIntervalSec: int(settings.Interval.Seconds()),
		Scheduler:       s.sched.Stats(),
		QuietHours:      settings.Quiet.String(),
		EventCount:      eventCount,
		SubscriberCount: s.streams.Len(),
	}
	if s.dispatcher != nil {
		st.NotificationsEnabled = s.dispatcher.Enabled()
		st.Notifiers = s.dispatcher.Notifiers()
	}
	if snap := s.sched.Publisher().Current(); snap != nil {
		now := s.now()
		st.Snapshot = snap
		st.Stale = snap.IsStale(now, settings.StaleAfter)
		st.AgeSec = snap.Age(now).Seconds()
	}
	return st
}

// Handler returns the daemon's HTTP routes.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)
		r.Get("/stream", s.handleStream)
		r.Get("/ws", s.handleWS)
		r.Post("/refresh", s.handleRefresh)
		r.Put("/notifications", s.handleNotifications)
	})
	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus())
}

// handleEvents returns the event ring, optionally only events after ?since=<id>.
func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "since must be an event id", http.StatusBadRequest)
			return
		}
		since = n
	}

	s.mu.RLock()
	events := make([]Event, 0, len(s.events))
	for _, ev := range s.events {
		if ev.ID > since {
			events = append(events, ev)
		}
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, events)
}

func (s *Service) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.sched.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh queued"})
}

func (s *Service) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		http.Error(w, "no notifiers configured", http.StatusConflict)
		return
	}
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		http.Error(w, `body must be {"enabled": true|false}`, http.StatusBadRequest)
		return
	}
	s.dispatcher.SetEnabled(*body.Enabled)
	s.log.Info().Bool("enabled", *body.Enabled).Msg("notifications toggled")
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *body.Enabled})
}

// currentEvent wraps the current snapshot for a newly connected stream.
func (s *Service) currentEvent() (Event, bool) {
	snap := s.sched.Publisher().Current()
	if snap == nil {
		return Event{}, false
	}
	return Event{Type: EventSnapshot, Timestamp: snap.FetchedAt(), Snapshot: snap}, true
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := s.streams.Subscribe()
	defer sub.Close()
	metrics.StreamSubscribers.Inc()
	defer metrics.StreamSubscribers.Dec()

	if ev, ok := s.currentEvent(); ok {
		writeSSE(w, ev)
	}
	flusher.Flush()

	for ev := range sub.All(r.Context()) {
		writeSSE(w, ev)
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if ev.ID > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", ev.ID)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

const wsWriteTimeout = 5 * time.Second

func (s *Service) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	sub := s.streams.Subscribe()
	defer sub.Close()
	metrics.StreamSubscribers.Inc()
	defer metrics.StreamSubscribers.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only detect the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			s.log.Debug().Err(err).Msg("websocket send failed")
			return false
		}
		return true
	}

	if ev, ok := s.currentEvent(); ok && !send(ev) {
		return
	}
	for ev := range sub.All(ctx) {
		if !send(ev) {
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "daemon stopping"),
		time.Now().Add(time.Second))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
