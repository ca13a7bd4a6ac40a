// Package metrics defines the Prometheus collectors used by the ingestion
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service. A nil *Metrics is
// valid and records nothing, which keeps call sites free of nil checks.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	UploadsTotal         *prometheus.CounterVec
	PipelineRunsTotal    *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	ChunksPerDocument    prometheus.Histogram
	ChunkerFallbacks     prometheus.Counter
	IndexOpsTotal        *prometheus.CounterVec
	IndexOpDuration      *prometheus.HistogramVec
	CompensationsTotal   *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction never collides.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_uploads_total",
				Help: "Upload attempts by outcome (accepted, duplicate, invalid, error).",
			},
			[]string{"outcome"},
		),
		PipelineRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_pipeline_runs_total",
				Help: "Background pipeline runs by final status (ready, error, skipped).",
			},
			[]string{"status"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"stage"},
		),
		ChunksPerDocument: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_chunks_per_document",
				Help:    "Number of chunks produced per processed document.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
		ChunkerFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_chunker_fallbacks_total",
				Help: "Times the semantic splitter failed and the deterministic chunker was used.",
			},
		),
		IndexOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vector_index_operations_total",
				Help: "Vector index calls by index, operation, and result.",
			},
			[]string{"index", "op", "result"},
		),
		IndexOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vector_index_operation_duration_seconds",
				Help:    "Vector index call latency in seconds.",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"index", "op"},
		),
		CompensationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vector_index_compensations_total",
				Help: "Compensating deletes issued after a partial upsert, by result.",
			},
			[]string{"result"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.UploadsTotal,
		m.PipelineRunsTotal,
		m.StageDuration,
		m.ChunksPerDocument,
		m.ChunkerFallbacks,
		m.IndexOpsTotal,
		m.IndexOpDuration,
		m.CompensationsTotal,
		m.CircuitBreakerState,
	)

	return m
}

func (m *Metrics) Upload(outcome string) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PipelineRun(status string) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) Stage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) Chunks(n int) {
	if m == nil {
		return
	}
	m.ChunksPerDocument.Observe(float64(n))
}

func (m *Metrics) ChunkerFallback() {
	if m == nil {
		return
	}
	m.ChunkerFallbacks.Inc()
}

// IndexOp records one call against a named vector index.
func (m *Metrics) IndexOp(index, op string, err error, seconds float64) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.IndexOpsTotal.WithLabelValues(index, op, result).Inc()
	m.IndexOpDuration.WithLabelValues(index, op).Observe(seconds)
}

func (m *Metrics) Compensation(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CompensationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus scrape HTTP handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
