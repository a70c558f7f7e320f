// Package metrics defines the Prometheus collectors used by the constellation
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal        *prometheus.CounterVec
	HTTPRequestDuration      *prometheus.HistogramVec
	HTTPRequestsInFlight     prometheus.Gauge
	SimilarityBuildsTotal    *prometheus.CounterVec
	SimilarityBuildDuration  prometheus.Histogram
	SimilarityPairsTotal     *prometheus.CounterVec
	CorpusDocuments          prometheus.Gauge
	RelationshipsEmitted     prometheus.Histogram
	CacheLookupsTotal        *prometheus.CounterVec
	CacheInvalidationsTotal  *prometheus.CounterVec
	NoteEventsTotal          *prometheus.CounterVec
	CircuitBreakerState      *prometheus.GaugeVec
	InvariantViolationsTotal prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates all collectors on a dedicated registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates all collectors and registers them with reg. Tests
// pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
// Handler scrapes reg when it is also a Gatherer, the default gatherer
// otherwise.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	gatherer, ok := reg.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	m := &Metrics{
		gatherer: gatherer,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SimilarityBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "similarity_builds_total",
				Help: "Similarity matrix builds by source (computed, shared_cache) and status.",
			},
			[]string{"source", "status"},
		),
		SimilarityBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "similarity_build_duration_seconds",
				Help:    "Time spent computing a similarity matrix.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		SimilarityPairsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "similarity_pairs_total",
				Help: "Document pairs handled by the matrix computer, by outcome (scored, pruned).",
			},
			[]string{"outcome"},
		),
		CorpusDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_documents",
				Help: "Documents in the most recently built corpus.",
			},
		),
		RelationshipsEmitted: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relationships_emitted",
				Help:    "Relationships returned per extraction.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "similarity_cache_lookups_total",
				Help: "Similarity cache lookups by layer (corpus, shared) and result (hit, miss).",
			},
			[]string{"layer", "result"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "similarity_cache_invalidations_total",
				Help: "Cache invalidations by trigger (api, event, write).",
			},
			[]string{"trigger"},
		),
		NoteEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "note_events_total",
				Help: "Note change events by direction (published, consumed) and status.",
			},
			[]string{"direction", "status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		InvariantViolationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "similarity_invariant_violations_total",
				Help: "Similarity computations aborted by a numeric invariant violation.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SimilarityBuildsTotal,
		m.SimilarityBuildDuration,
		m.SimilarityPairsTotal,
		m.CorpusDocuments,
		m.RelationshipsEmitted,
		m.CacheLookupsTotal,
		m.CacheInvalidationsTotal,
		m.NoteEventsTotal,
		m.CircuitBreakerState,
		m.InvariantViolationsTotal,
	)

	return m
}

// SetBreakerState records a circuit breaker transition. state follows the
// resilience.State numbering.
func (m *Metrics) SetBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler serves the registry the collectors were registered with. A
// collector that fails to gather does not hide the others.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
