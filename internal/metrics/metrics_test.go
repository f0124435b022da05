package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"herald/internal/metrics"
	"herald/internal/queue"
)

func TestObservationsUpdateCollectors(t *testing.T) {
	m := metrics.New()
	m.ObserveCycle(2*time.Second, nil)
	m.ObserveCycle(time.Second, errors.New("store unavailable"))
	m.ObservePublish(queue.PlatformTwitter, metrics.OutcomePosted, 300*time.Millisecond)
	m.ObservePublish(queue.PlatformTwitter, metrics.OutcomeRetry, 100*time.Millisecond)
	m.ObserveRendition("instagram-feed", nil)
	m.SetQueueStats(queue.Stats{Pending: 2, Approved: 1, Failed: 4})

	if got := testutil.ToFloat64(m.Cycles.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok cycles = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Cycles.WithLabelValues("error")); got != 1 {
		t.Fatalf("error cycles = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Publishes.WithLabelValues("twitter", metrics.OutcomePosted)); got != 1 {
		t.Fatalf("posted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Renditions.WithLabelValues("instagram-feed", "ok")); got != 1 {
		t.Fatalf("renditions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.QueuePosts.WithLabelValues("failed")); got != 4 {
		t.Fatalf("failed gauge = %v, want 4", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := metrics.New()
	m.ObservePublish(queue.PlatformFacebook, metrics.OutcomeFailed, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `herald_publishes_total{outcome="failed",platform="facebook"} 1`) {
		t.Fatalf("publish counter missing from exposition:\n%s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveCycle(time.Second, nil)
	m.ObservePublish(queue.PlatformTwitter, metrics.OutcomePosted, time.Second)
	m.ObserveRendition("twitter", nil)
	m.SetQueueStats(queue.Stats{})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("nil handler status = %d, want 404", rec.Code)
	}
}
