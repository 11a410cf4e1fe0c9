package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/pburn/internal/metrics"
	"github.com/theirongolddev/pburn/internal/model"
	"github.com/theirongolddev/pburn/internal/monitor"
)

func testNotification(level model.Level) monitor.Notification {
	b := model.BudgetBucket{Kind: model.Daily, Used: 91, Total: 100}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return monitor.Notification{
		ID:       "n-1",
		Kind:     model.Daily,
		Level:    level,
		Bucket:   b,
		Snapshot: model.NewSnapshot(at, []model.Reading{{Bucket: b, Level: level}}),
		At:       at,
		Title:    "Daily budget " + level.String(),
		Message:  "Daily usage reached 91.0%",
	}
}

type fakeNotifier struct {
	name  string
	err   error
	delay time.Duration
	mu    sync.Mutex
	got   []monitor.Notification
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Send(ctx context.Context, n monitor.Notification) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, n)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func TestDispatcher_DeliversToAll(t *testing.T) {
	a := &fakeNotifier{name: "a"}
	b := &fakeNotifier{name: "b", err: errors.New("boom")}
	d := NewDispatcher(zerolog.Nop(), a, b)

	var sent atomic.Int32
	d.OnSent(func(monitor.Notification) { sent.Add(1) })

	err := d.Deliver(context.Background(), testNotification(model.Warning))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b: boom")
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.Equal(t, int32(1), sent.Load())
	assert.Equal(t, []string{"a", "b"}, d.Notifiers())
}

func TestDispatcher_TimeoutIsolatesSlowNotifier(t *testing.T) {
	slow := &fakeNotifier{name: "slow", delay: time.Hour}
	fast := &fakeNotifier{name: "fast"}
	d := NewDispatcher(zerolog.Nop(), slow, fast)
	d.SetTimeout(20 * time.Millisecond)

	start := time.Now()
	err := d.Deliver(context.Background(), testNotification(model.Critical))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, fast.count())
}

func TestDispatcher_Muted(t *testing.T) {
	a := &fakeNotifier{name: "a"}
	d := NewDispatcher(zerolog.Nop(), a)
	d.SetEnabled(false)
	require.False(t, d.Enabled())

	require.NoError(t, d.Deliver(context.Background(), testNotification(model.Critical)))
	assert.Zero(t, a.count())
}

func TestDispatcher_RunConsumesSubscription(t *testing.T) {
	a := &fakeNotifier{name: "a"}
	d := NewDispatcher(zerolog.Nop(), a)
	hub := monitor.NewHub[monitor.Notification](4)
	sub := hub.Subscribe()

	done := make(chan struct{})
	go func() {
		_ = d.Run(context.Background(), sub)
		close(done)
	}()

	hub.Publish(testNotification(model.Warning))
	hub.Publish(testNotification(model.Critical))
	require.Eventually(t, func() bool { return a.count() == 2 }, time.Second, time.Millisecond)

	hub.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the hub closed")
	}
}

func TestDispatcher_RunReportsDroppedAlerts(t *testing.T) {
	a := &fakeNotifier{name: "a"}
	var buf bytes.Buffer
	d := NewDispatcher(zerolog.New(&buf), a)
	hub := monitor.NewHub[monitor.Notification](1)
	sub := hub.Subscribe()

	for range 3 {
		hub.Publish(testNotification(model.Critical))
	}
	hub.Close()

	before := testutil.ToFloat64(metrics.NotificationsDropped)
	require.NoError(t, d.Run(context.Background(), sub))

	assert.Equal(t, 1, a.count())
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.NotificationsDropped)-before, 0)
	assert.Contains(t, buf.String(), "alerts were dropped")
	assert.Contains(t, buf.String(), `"lost":2`)
}

func TestWebhookNotifier_Send(t *testing.T) {
	var (
		body []byte
		sig  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		sig = r.Header.Get("X-Signature-256")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "s3cret")
	assert.Equal(t, "webhook", n.Name())
	require.NoError(t, n.Send(context.Background(), testNotification(model.Critical)))

	assert.Equal(t, "sha256="+Sign(body, "s3cret"), sig)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "budget_alert", payload["event"])
	alert := payload["alert"].(map[string]any)
	assert.Equal(t, "critical", alert["level"])
	assert.Equal(t, "daily", alert["bucket_kind"])
	assert.NotNil(t, alert["snapshot"])
}

func TestWebhookNotifier_NoSecretNoSignature(t *testing.T) {
	var hasSig bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasSig = r.Header.Get("X-Signature-256") != ""
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookNotifier(srv.URL, "").Send(context.Background(), testNotification(model.Warning)))
	assert.False(t, hasSig)
}

func TestWebhookNotifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, "").Send(context.Background(), testNotification(model.Warning))
	assert.ErrorContains(t, err, "503")
}

func TestDesktopNotifier_Commands(t *testing.T) {
	var calls [][]string
	rec := func(_ context.Context, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		return nil
	}

	linux := &DesktopNotifier{goos: "linux", run: rec}
	require.NoError(t, linux.Send(context.Background(), testNotification(model.Critical)))
	require.Len(t, calls, 1)
	assert.Equal(t, "notify-send", calls[0][0])
	assert.Contains(t, calls[0], "--urgency=critical")
	assert.Contains(t, calls[0], "--expire-time=15000")
	assert.Equal(t, "Daily usage reached 91.0%", calls[0][len(calls[0])-1])

	mac := &DesktopNotifier{goos: "darwin", run: rec}
	n := testNotification(model.Warning)
	n.Message = `say "hi"`
	require.NoError(t, mac.Send(context.Background(), n))
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"osascript", "-e"}, calls[1][:2])
	assert.Contains(t, calls[1][2], `display notification "say \"hi\""`)

	other := &DesktopNotifier{goos: "plan9", run: rec}
	assert.Error(t, other.Send(context.Background(), n))
}

func TestLogNotifier(t *testing.T) {
	var buf syncBuffer
	l := NewLogNotifier(zerolog.New(&buf))
	assert.Equal(t, "log", l.Name())
	require.NoError(t, l.Send(context.Background(), testNotification(model.Critical)))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "daily", line["kind"])
	assert.InDelta(t, 91.0, line["percentage"], 1e-9)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...)
}
