package daemon

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/pburn/internal/model"
	"github.com/theirongolddev/pburn/internal/monitor"
	"github.com/theirongolddev/pburn/internal/notify"
	"github.com/theirongolddev/pburn/internal/store"
)

func fixedFetcher(daily float64) monitor.Fetcher {
	return monitor.FetcherFunc(func(context.Context) (model.RawUsage, error) {
		return model.RawUsage{Buckets: []model.RawBucket{
			{Kind: model.Daily, Used: daily, Total: 100},
			{Kind: model.Monthly, Used: 100, Total: 1000},
		}}, nil
	})
}

func newScheduler(t *testing.T, f monitor.Fetcher) *monitor.Scheduler {
	t.Helper()
	s := monitor.DefaultSettings()
	s.Quiet = monitor.QuietHours{}
	settings, err := monitor.NewSettings(s)
	require.NoError(t, err)
	return monitor.NewScheduler(f, settings, monitor.NewPublisher(4), monitor.WithLogger(zerolog.Nop()))
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []monitor.Notification
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Send(_ context.Context, n monitor.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestPublishEventRingBuffer(t *testing.T) {
	s := New(Config{EventsBuffer: 2}, newScheduler(t, fixedFetcher(10)))

	for range 3 {
		s.publishEvent(Event{Type: EventSnapshot})
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	require.Len(t, s.events, 2)
	assert.Equal(t, int64(2), s.events[0].ID)
	assert.Equal(t, int64(3), s.events[1].ID)
}

func TestHandler_StatusBeforeAndAfterPoll(t *testing.T) {
	sched := newScheduler(t, fixedFetcher(65.2))
	s := New(Config{}, sched)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	c := NewClient(srv.URL)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st.Snapshot)
	assert.Equal(t, 30, st.PollIntervalSec)
	assert.Equal(t, "off", st.QuietHours)

	_, err = sched.Poll(context.Background())
	require.NoError(t, err)

	st, err = c.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st.Snapshot)
	assert.Equal(t, model.Moderate, st.Snapshot.OverallStatus())
	assert.False(t, st.Stale)
	assert.Equal(t, int64(1), st.Scheduler.PollCount)
}

func TestHandler_EventsSince(t *testing.T) {
	s := New(Config{}, newScheduler(t, fixedFetcher(10)))
	for range 3 {
		s.publishEvent(Event{Type: EventSnapshot, Timestamp: time.Now()})
	}
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	evs, err := NewClient(srv.URL).Events(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, int64(2), evs[0].ID)

	resp, err := http.Get(srv.URL + "/v1/events?since=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_Notifications(t *testing.T) {
	srvNoDispatcher := httptest.NewServer(New(Config{}, newScheduler(t, fixedFetcher(10))).Handler())
	defer srvNoDispatcher.Close()
	assert.Error(t, NewClient(srvNoDispatcher.URL).SetNotifications(context.Background(), false))

	d := notify.NewDispatcher(zerolog.Nop())
	s := New(Config{}, newScheduler(t, fixedFetcher(10)), WithDispatcher(d))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL).SetNotifications(context.Background(), false))
	assert.False(t, d.Enabled())
	st, err := NewClient(srv.URL).Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.NotificationsEnabled)
}

func TestHandler_Healthz(t *testing.T) {
	srv := httptest.NewServer(New(Config{}, newScheduler(t, fixedFetcher(10))).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRun_EndToEnd(t *testing.T) {
	cache, err := store.Open(filepath.Join(t.TempDir(), "pburn.db"))
	require.NoError(t, err)
	defer cache.Close()

	rec := &recordingNotifier{}
	sched := newScheduler(t, fixedFetcher(91))
	s := New(Config{Addr: "127.0.0.1:0"}, sched,
		WithCache(cache),
		WithDispatcher(notify.NewDispatcher(zerolog.Nop(), rec)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 5*time.Millisecond)
	c := NewClient(s.Addr())

	require.Eventually(t, func() bool {
		st, err := c.Status(ctx)
		return err == nil && st.Snapshot != nil
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		snap, err := cache.LastSnapshot()
		return err == nil && snap != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		evs, err := c.Events(ctx, 0)
		if err != nil {
			return false
		}
		var snaps, alerts int
		for _, ev := range evs {
			switch ev.Type {
			case EventSnapshot:
				snaps++
			case EventAlert:
				alerts++
			}
		}
		return snaps >= 1 && alerts == 1
	}, 2*time.Second, 10*time.Millisecond)

	// WebSocket gets the current snapshot, then a new one after a refresh.
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/v1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, EventSnapshot, first.Type)
	require.NotNil(t, first.Snapshot)

	require.NoError(t, c.Refresh(ctx))
	var next Event
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, EventSnapshot, next.Type)
	assert.Positive(t, next.ID)

	// SSE opens with the current snapshot.
	resp, err := http.Get("http://" + s.Addr() + "/v1/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "event: snapshot"), line)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(7 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestRun_RestoresCachedSnapshot(t *testing.T) {
	cache, err := store.Open(filepath.Join(t.TempDir(), "pburn.db"))
	require.NoError(t, err)
	defer cache.Close()

	cached := model.NewSnapshot(time.Now().Add(-time.Hour), []model.Reading{
		{Bucket: model.BudgetBucket{Kind: model.Daily, Used: 20, Total: 100}, Level: model.Normal},
	})
	require.NoError(t, cache.SaveSnapshot(cached))

	failing := monitor.FetcherFunc(func(context.Context) (model.RawUsage, error) {
		return model.RawUsage{}, model.ErrAuth
	})
	sched := newScheduler(t, failing)
	s := New(Config{Addr: "127.0.0.1:0"}, sched, WithCache(cache))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return sched.Stats().ConsecutiveFailures >= 1 }, 2*time.Second, 5*time.Millisecond)

	st, err := NewClient(s.Addr()).Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.Snapshot)
	assert.True(t, st.Stale)
	assert.Contains(t, st.Scheduler.LastError, "authentication")
}
