package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hcahps"

// Metrics groups the pipeline and report-server collectors on a private
// registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	rowsRead       prometheus.Counter
	factsLoaded    prometheus.Counter
	rowsSkipped    *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	reportRequests *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Raw survey rows read from the input.",
		}),
		factsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facts_loaded_total",
			Help:      "Cleaned facts loaded into the fact store.",
		}),
		rowsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Raw rows skipped during cleaning, by reason.",
		}, []string{"reason"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stage"}),
		reportRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_requests_total",
			Help:      "Report server requests, by report id and cache outcome.",
		}, []string{"report", "cache"}),
	}

	m.registry.MustRegister(
		m.rowsRead,
		m.factsLoaded,
		m.rowsSkipped,
		m.stageDuration,
		m.reportRequests,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRun adds the outcome of one pipeline run
func (m *Metrics) RecordRun(read, loaded int, skipped map[string]int) {
	if m == nil {
		return
	}
	m.rowsRead.Add(float64(read))
	m.factsLoaded.Add(float64(loaded))
	for reason, n := range skipped {
		m.rowsSkipped.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveStage records how long a pipeline stage took
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// CountReport records a report request
func (m *Metrics) CountReport(id string, cacheHit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if cacheHit {
		outcome = "hit"
	}
	m.reportRequests.WithLabelValues(id, outcome).Inc()
}
