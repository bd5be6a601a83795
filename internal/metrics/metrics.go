// Package metrics holds the Prometheus instruments of the takeaway pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all custom Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Cache metrics
	CacheLookups *prometheus.CounterVec
	CacheWrites  *prometheus.CounterVec
	PrunedRows   prometheus.Counter

	// Generation metrics
	Takeaways          *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec

	// Inference metrics
	InferenceCalls   *prometheus.CounterVec
	InferenceRetries prometheus.Counter
	LimiterWait      prometheus.Histogram
}

// New registers the pipeline metrics on registry. A nil registry gets a fresh one
// carrying the Go and process collectors.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		// Lookups by subject kind and result (hit, miss, error)
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safesight_cache_lookups_total",
			Help: "Total number of takeaway cache lookups by subject kind and result",
		}, []string{"kind", "result"}),

		CacheWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safesight_cache_writes_total",
			Help: "Total number of takeaway inserts by subject kind and result",
		}, []string{"kind", "result"}),

		PrunedRows: factory.NewCounter(prometheus.CounterOpts{
			Name: "safesight_cache_pruned_rows_total",
			Help: "Total number of expired takeaway rows deleted",
		}),

		Takeaways: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safesight_takeaways_total",
			Help: "Total number of takeaways produced by content type and outcome",
		}, []string{"content_type", "outcome"}),

		GenerationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "safesight_generation_duration_seconds",
			Help:    "Time spent generating a takeaway on a cache miss",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"content_type"}),

		// Result: ok, throttled, error
		InferenceCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "safesight_inference_calls_total",
			Help: "Total number of inference service calls by result",
		}, []string{"result"}),

		InferenceRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "safesight_inference_retries_total",
			Help: "Total number of inference retries after throttling",
		}),

		LimiterWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "safesight_ratelimit_wait_seconds",
			Help:    "Time spent waiting for the outbound rate limiter",
			Buckets: []float64{0, 0.01, 0.1, 0.5, 1, 5, 15, 60},
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordLookup records a cache lookup result.
func (m *Metrics) RecordLookup(kind, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordWrite records a cache insert result.
func (m *Metrics) RecordWrite(kind, result string) {
	if m == nil {
		return
	}
	m.CacheWrites.WithLabelValues(kind, result).Inc()
}

// RecordPruned records deleted expired rows.
func (m *Metrics) RecordPruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.PrunedRows.Add(float64(n))
}

// RecordTakeaway records a takeaway returned to a consumer.
func (m *Metrics) RecordTakeaway(contentType, outcome string) {
	if m == nil {
		return
	}
	m.Takeaways.WithLabelValues(contentType, outcome).Inc()
}

// RecordGeneration records generation latency.
func (m *Metrics) RecordGeneration(contentType string, seconds float64) {
	if m == nil {
		return
	}
	m.GenerationDuration.WithLabelValues(contentType).Observe(seconds)
}

// RecordInferenceCall records one call to the inference service.
func (m *Metrics) RecordInferenceCall(result string) {
	if m == nil {
		return
	}
	m.InferenceCalls.WithLabelValues(result).Inc()
}

// RecordRetry records a retry after throttling.
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.InferenceRetries.Inc()
}

// RecordLimiterWait records time blocked on the rate limiter.
func (m *Metrics) RecordLimiterWait(seconds float64) {
	if m == nil {
		return
	}
	m.LimiterWait.Observe(seconds)
}
