package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raaihank/pii-sentinel/internal/privacy"
)

// Document sources.
const (
	SourceBatch = "batch"
	SourceHTTP  = "http"
)

// Document outcomes.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Annotator request outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// DocumentsTotal counts processed documents by source and status.
	DocumentsTotal *prometheus.CounterVec
	// ReplacementsTotal counts replaced occurrences by category.
	ReplacementsTotal *prometheus.CounterVec
	// ProcessingDuration observes per-document processing time by source.
	ProcessingDuration *prometheus.HistogramVec
	// AnnotatorRequestsTotal counts annotation calls by outcome.
	AnnotatorRequestsTotal *prometheus.CounterVec
	// AnnotatorCacheTotal counts annotation cache lookups by result.
	AnnotatorCacheTotal *prometheus.CounterVec
	// AnnotatorBreakerState is 0 closed, 1 half-open, 2 open.
	AnnotatorBreakerState prometheus.Gauge
	// HTTPRequestsTotal counts API requests by route, method and status code.
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestDuration observes API latency by route.
	HTTPRequestDuration *prometheus.HistogramVec
	// RateLimitedTotal counts requests rejected by the per-client limiter.
	RateLimitedTotal prometheus.Counter

	registry *prometheus.Registry
}

// New creates metrics on a fresh registry that also carries the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates metrics registered on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		DocumentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pii_sentinel_documents_total",
			Help: "Total number of processed documents",
		}, []string{"source", "status"}),

		ReplacementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pii_sentinel_replacements_total",
			Help: "Total number of pseudonymized occurrences by category",
		}, []string{"category"}),

		ProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pii_sentinel_processing_duration_seconds",
			Help:    "Time spent processing one document",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),

		AnnotatorRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pii_sentinel_annotator_requests_total",
			Help: "Total number of entity annotation requests by outcome",
		}, []string{"outcome"}),

		AnnotatorCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pii_sentinel_annotator_cache_total",
			Help: "Total number of annotation cache lookups by result",
		}, []string{"result"}),

		AnnotatorBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pii_sentinel_annotator_breaker_state",
			Help: "Annotator circuit breaker state (0 closed, 1 half-open, 2 open)",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pii_sentinel_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"route", "method", "code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pii_sentinel_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pii_sentinel_rate_limited_total",
			Help: "Total number of requests rejected by rate limiting",
		}),

		registry: reg,
	}

	reg.MustRegister(
		m.DocumentsTotal,
		m.ReplacementsTotal,
		m.ProcessingDuration,
		m.AnnotatorRequestsTotal,
		m.AnnotatorCacheTotal,
		m.AnnotatorBreakerState,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLimitedTotal,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordDocument records one processed document and its findings.
func (m *Metrics) RecordDocument(source, status string, findings []privacy.Finding, duration time.Duration) {
	if m == nil {
		return
	}
	m.DocumentsTotal.WithLabelValues(source, status).Inc()
	m.ProcessingDuration.WithLabelValues(source).Observe(duration.Seconds())
	for _, f := range findings {
		m.ReplacementsTotal.WithLabelValues(string(f.Category)).Add(float64(f.Count))
	}
}

// RecordAnnotatorRequest increments the annotation request counter.
func (m *Metrics) RecordAnnotatorRequest(outcome string) {
	if m == nil {
		return
	}
	m.AnnotatorRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordAnnotatorCache increments the cache lookup counter.
func (m *Metrics) RecordAnnotatorCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.AnnotatorCacheTotal.WithLabelValues(result).Inc()
}

// SetBreakerState sets the breaker gauge from a gobreaker state name.
func (m *Metrics) SetBreakerState(state string) {
	if m == nil {
		return
	}
	switch state {
	case "half-open":
		m.AnnotatorBreakerState.Set(1)
	case "open":
		m.AnnotatorBreakerState.Set(2)
	default:
		m.AnnotatorBreakerState.Set(0)
	}
}

// RecordHTTPRequest records one API request.
func (m *Metrics) RecordHTTPRequest(route, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordRateLimited increments the rate limited counter.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}
