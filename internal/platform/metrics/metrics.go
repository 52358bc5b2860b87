package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// HTTP request latency by route pattern and status
	RequestLatency *prometheus.HistogramVec

	// Profile operation outcomes by operation and result
	ProfileOutcome *prometheus.CounterVec

	// Profile operation latency by operation
	ProfileLatency *prometheus.HistogramVec

	// Composite view cache lookups by result (hit, miss, error)
	CacheLookups *prometheus.CounterVec

	// Outbox relay
	OutboxPublished prometheus.Counter
	OutboxFailures  prometheus.Counter
}

// New creates the collectors and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "waterlily_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "status"}),

		ProfileOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "waterlily_profile_operations_total",
			Help: "Profile operations by operation and outcome",
		}, []string{"operation", "outcome"}), // operation: "upsert", "fetch", "register"

		ProfileLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "waterlily_profile_operation_duration_seconds",
			Help:    "Duration of profile operations including the store transaction",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "waterlily_profile_cache_lookups_total",
			Help: "Composite view cache lookups by result",
		}, []string{"result"}),

		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "waterlily_outbox_published_total",
			Help: "Outbox events published to the broker",
		}),

		OutboxFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "waterlily_outbox_publish_failures_total",
			Help: "Outbox relay batches that failed to publish",
		}),
	}
}

// ObserveRequestLatency records one HTTP request.
func (m *Metrics) ObserveRequestLatency(route, status string, d time.Duration) {
	if m != nil {
		m.RequestLatency.WithLabelValues(route, status).Observe(d.Seconds())
	}
}

// ObserveProfileOperation records the latency and outcome of a profile operation.
func (m *Metrics) ObserveProfileOperation(operation, outcome string, d time.Duration) {
	if m != nil {
		m.ProfileOutcome.WithLabelValues(operation, outcome).Inc()
		m.ProfileLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// RecordCacheLookup counts a composite view cache lookup.
func (m *Metrics) RecordCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

// AddOutboxPublished counts relayed events.
func (m *Metrics) AddOutboxPublished(n int) {
	if m != nil {
		m.OutboxPublished.Add(float64(n))
	}
}

// IncrementOutboxFailures counts a failed relay batch.
func (m *Metrics) IncrementOutboxFailures() {
	if m != nil {
		m.OutboxFailures.Inc()
	}
}
