// Package metrics holds the Prometheus collectors for the budget monitor.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/theirongolddev/pburn/internal/model"
)

// Poller metrics.
var (
	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pburn",
			Name:      "fetch_duration_seconds",
			Help:      "Budget API fetch duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	FetchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pburn",
			Name:      "fetch_attempts_total",
			Help:      "Budget API fetch attempts, including retries",
		},
		[]string{"result"}, // "success" / "network" / "auth" / "parse" / "canceled"
	)

	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pburn",
			Name:      "polls_total",
			Help:      "Completed poll cycles",
		},
		[]string{"result"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pburn",
			Name:      "notifications_total",
			Help:      "Alerts emitted by the notification policy",
		},
		[]string{"kind", "level"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pburn",
			Name:      "notification_deliveries_total",
			Help:      "Alert deliveries per notifier",
		},
		[]string{"notifier", "status"},
	)

	NotificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pburn",
			Name:      "notifications_dropped_total",
			Help:      "Alerts lost because a reader fell behind the alert stream",
		},
	)
)

// Budget gauges, updated from each published snapshot.
var (
	BucketUsagePercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pburn",
			Name:      "bucket_usage_percent",
			Help:      "Spent share of each budget bucket",
		},
		[]string{"kind"},
	)

	BucketSpentUSD = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pburn",
			Name:      "bucket_spent_usd",
			Help:      "Amount spent in each budget bucket",
		},
		[]string{"kind"},
	)

	BucketLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pburn",
			Name:      "bucket_level",
			Help:      "Classification of each bucket (0 normal .. 3 critical)",
		},
		[]string{"kind"},
	)

	LastSuccessTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pburn",
			Name:      "last_success_timestamp_seconds",
			Help:      "Fetch time of the current snapshot",
		},
	)

	StreamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pburn",
			Name:      "stream_subscribers",
			Help:      "Connected SSE and WebSocket clients",
		},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Must be called
// from main before the /metrics handler is served; later calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			FetchDuration,
			FetchAttemptsTotal,
			PollsTotal,
			NotificationsTotal,
			DeliveriesTotal,
			NotificationsDropped,
			BucketUsagePercent,
			BucketSpentUSD,
			BucketLevel,
			LastSuccessTimestamp,
			StreamSubscribers,
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}

// ObserveSnapshot copies a snapshot into the budget gauges.
func ObserveSnapshot(s *model.Snapshot) {
	if s == nil {
		return
	}
	for _, r := range s.Readings() {
		kind := string(r.Bucket.Kind)
		BucketUsagePercent.WithLabelValues(kind).Set(r.Bucket.Percentage())
		BucketSpentUSD.WithLabelValues(kind).Set(r.Bucket.Used)
		BucketLevel.WithLabelValues(kind).Set(float64(r.Level))
	}
	LastSuccessTimestamp.Set(float64(s.FetchedAt().Unix()))
}
