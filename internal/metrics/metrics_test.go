package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/pburn/internal/model"
)

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/events/{id}", "404"))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/v1/events/abc", http.NoBody))
	require.Equal(t, http.StatusNotFound, rr.Code)

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/events/{id}", "404"))
	assert.Equal(t, before+1, after)
	assert.Positive(t, testutil.CollectAndCount(httpRequestDuration))
}

func TestMiddleware_DefaultStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", http.NoBody))

	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/healthz", "200")), 1.0)
}

func TestObserveSnapshot(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := model.NewSnapshot(at, []model.Reading{
		{Bucket: model.BudgetBucket{Kind: model.Daily, Used: 91, Total: 100}, Level: model.Critical},
		{Bucket: model.BudgetBucket{Kind: model.Monthly, Used: 40, Total: 200}, Level: model.Normal},
	})

	ObserveSnapshot(snap)
	ObserveSnapshot(nil)

	assert.InDelta(t, 91.0, testutil.ToFloat64(BucketUsagePercent.WithLabelValues("daily")), 1e-9)
	assert.InDelta(t, 20.0, testutil.ToFloat64(BucketUsagePercent.WithLabelValues("monthly")), 1e-9)
	assert.InDelta(t, 40.0, testutil.ToFloat64(BucketSpentUSD.WithLabelValues("monthly")), 1e-9)
	assert.Equal(t, float64(model.Critical), testutil.ToFloat64(BucketLevel.WithLabelValues("daily")))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(LastSuccessTimestamp))
}

func TestRegisterTwice(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}
