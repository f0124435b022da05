// Package metrics exposes processor counters to Prometheus.
//
// Every method is nil-safe so components can hold a nil *Metrics when
// metrics are disabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"herald/internal/queue"
)

const namespace = "herald"

// Publish outcomes as recorded on the publishes counter.
const (
	OutcomePosted = "posted"
	OutcomeRetry  = "retry"
	OutcomeFailed = "failed"
)

// Metrics holds the processor's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Cycles          *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	Publishes       *prometheus.CounterVec
	PublishDuration *prometheus.HistogramVec
	Renditions      *prometheus.CounterVec
	QueuePosts      *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Processing cycles by result.",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of processing cycles.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Publish attempts by platform and outcome.",
		}, []string{"platform", "outcome"}),
		PublishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Time spent in platform publish calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform"}),
		Renditions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renditions_total",
			Help:      "Asset adaptations by target format and result.",
		}, []string{"format", "result"}),
		QueuePosts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_posts",
			Help:      "Posts in the queue by status, as of the last save.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.Cycles,
		m.CycleDuration,
		m.Publishes,
		m.PublishDuration,
		m.Renditions,
		m.QueuePosts,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCycle(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Cycles.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePublish(platform queue.Platform, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Publishes.WithLabelValues(string(platform), outcome).Inc()
	m.PublishDuration.WithLabelValues(string(platform)).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRendition(format string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Renditions.WithLabelValues(format, result).Inc()
}

// SetQueueStats publishes per-status counts.
func (m *Metrics) SetQueueStats(stats queue.Stats) {
	if m == nil {
		return
	}
	m.QueuePosts.WithLabelValues(string(queue.StatusPending)).Set(float64(stats.Pending))
	m.QueuePosts.WithLabelValues(string(queue.StatusApproved)).Set(float64(stats.Approved))
	m.QueuePosts.WithLabelValues(string(queue.StatusScheduled)).Set(float64(stats.Scheduled))
	m.QueuePosts.WithLabelValues(string(queue.StatusPosted)).Set(float64(stats.Posted))
	m.QueuePosts.WithLabelValues(string(queue.StatusFailed)).Set(float64(stats.Failed))
}
