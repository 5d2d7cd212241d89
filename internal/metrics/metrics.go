// Package metrics exposes prometheus counters for API key verification and
// usage accounting on a private registry served at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Verification results.
const (
	ResultValid      = "valid"
	ResultMissing    = "missing"
	ResultInvalid    = "invalid"
	ResultStoreError = "store_error"
	ResultCanceled   = "canceled"
)

// Usage record outcomes.
const (
	UsageOK    = "ok"
	UsageError = "error"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing,
// which keeps callers free of nil checks in tests.
type Metrics struct {
	registry             *prometheus.Registry
	verificationsTotal   *prometheus.CounterVec
	verificationDuration *prometheus.HistogramVec
	usageRecordsTotal    *prometheus.CounterVec
	usageOverflowTotal   prometheus.Counter
	keysIssuedTotal      prometheus.Counter
}

// New creates a Metrics instance with its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "reelvault"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "verifications_total",
			Help:      "Total number of API key verification attempts by result",
		},
		[]string{"result"},
	)
	m.verificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "verification_duration_seconds",
			Help:      "Time spent scanning active keys for a match",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"result"},
	)
	m.usageRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "records_total",
			Help:      "Total number of usage increments written, by outcome",
		},
		[]string{"status"},
	)
	m.usageOverflowTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "queue_overflow_total",
			Help:      "Usage records dispatched outside the worker pool because the queue was full",
		},
	)
	m.keysIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "issued_total",
			Help:      "Total number of API keys issued",
		},
	)

	m.registry.MustRegister(
		m.verificationsTotal,
		m.verificationDuration,
		m.usageRecordsTotal,
		m.usageOverflowTotal,
		m.keysIssuedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Pre-create label combinations so series show up before first use.
	for _, r := range []string{ResultValid, ResultMissing, ResultInvalid, ResultStoreError, ResultCanceled} {
		m.verificationsTotal.WithLabelValues(r)
	}
	for _, s := range []string{UsageOK, UsageError} {
		m.usageRecordsTotal.WithLabelValues(s)
	}
	return m
}

// ObserveVerification records one verification attempt.
func (m *Metrics) ObserveVerification(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.verificationsTotal.WithLabelValues(result).Inc()
	m.verificationDuration.WithLabelValues(result).Observe(took.Seconds())
}

// ObserveUsage records the outcome of one usage increment.
func (m *Metrics) ObserveUsage(status string) {
	if m == nil {
		return
	}
	m.usageRecordsTotal.WithLabelValues(status).Inc()
}

// ObserveUsageOverflow records a usage record that bypassed the full queue.
func (m *Metrics) ObserveUsageOverflow() {
	if m == nil {
		return
	}
	m.usageOverflowTotal.Inc()
}

// ObserveIssued records a newly issued key.
func (m *Metrics) ObserveIssued() {
	if m == nil {
		return
	}
	m.keysIssuedTotal.Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
