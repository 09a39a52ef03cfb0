// Package metrics defines the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing, so library code and tests can
// run without a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Scraper metrics
	ScraperRequestsTotal   *prometheus.CounterVec
	ScraperDurationSeconds *prometheus.HistogramVec
	LimiterWaitSeconds     prometheus.Histogram
	LimiterInFlight        prometheus.Gauge

	// Extraction metrics
	ExtractionsTotal     *prometheus.CounterVec
	TeacherLookupsTotal  *prometheus.CounterVec
	ResolverEntriesTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIDurationSeconds *prometheus.HistogramVec

	// Rate limiter metrics
	RateLimitedTotal   prometheus.Counter
	RateLimitedClients prometheus.Gauge
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		ScraperRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atom_scraper_requests_total",
				Help: "Total number of page fetches by source and status",
			},
			[]string{"source", "status"}, // status: success, error, timeout
		),

		ScraperDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atom_scraper_duration_seconds",
				Help:    "Page fetch duration in seconds by source",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"source"},
		),

		LimiterWaitSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "atom_limiter_wait_seconds",
				Help:    "Time spent waiting for a fetch slot",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		),

		LimiterInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "atom_limiter_in_flight",
				Help: "Number of fetches currently holding a slot",
			},
		),

		ExtractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atom_extractions_total",
				Help: "Total number of page extractions by kind and outcome",
			},
			[]string{"kind", "outcome"}, // kind: directory, timetable, substitutions; outcome: ok, empty
		),

		TeacherLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atom_teacher_lookups_total",
				Help: "Deferred teacher lookups on room plans by outcome",
			},
			[]string{"outcome"}, // outcome: resolved, unresolved
		),

		ResolverEntriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atom_resolver_entries_total",
				Help: "Substitution entries seen by the resolver by outcome",
			},
			[]string{"outcome"}, // outcome: matched, kept, dropped, fallback
		),

		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atom_api_requests_total",
				Help: "Total API requests by endpoint and status code class",
			},
			[]string{"endpoint", "status"},
		),

		APIDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atom_api_duration_seconds",
				Help:    "API request duration in seconds by endpoint",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"endpoint"},
		),

		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "atom_rate_limited_total",
				Help: "API requests rejected by the per-client rate limiter",
			},
		),

		RateLimitedClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "atom_rate_limiter_clients",
				Help: "Number of clients currently tracked by the rate limiter",
			},
		),
	}
}

// RecordScraperRequest records a page fetch with status
func (m *Metrics) RecordScraperRequest(source, status string, duration float64) {
	if m == nil {
		return
	}
	m.ScraperRequestsTotal.WithLabelValues(source, status).Inc()
	m.ScraperDurationSeconds.WithLabelValues(source).Observe(duration)
}

// RecordLimiterWait records time spent waiting for a fetch slot
func (m *Metrics) RecordLimiterWait(duration float64) {
	if m == nil {
		return
	}
	m.LimiterWaitSeconds.Observe(duration)
}

// AddInFlight adjusts the in-flight fetch gauge by delta.
func (m *Metrics) AddInFlight(delta float64) {
	if m == nil {
		return
	}
	m.LimiterInFlight.Add(delta)
}

// RecordExtraction records the outcome of extracting one page.
func (m *Metrics) RecordExtraction(kind, outcome string) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordTeacherLookup records a deferred teacher lookup result.
func (m *Metrics) RecordTeacherLookup(outcome string) {
	if m == nil {
		return
	}
	m.TeacherLookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordResolverEntry records what the resolver did with one entry.
func (m *Metrics) RecordResolverEntry(outcome string) {
	if m == nil {
		return
	}
	m.ResolverEntriesTotal.WithLabelValues(outcome).Inc()
}

// RecordAPIRequest records a served API request
func (m *Metrics) RecordAPIRequest(endpoint, status string, duration float64) {
	if m == nil {
		return
	}
	m.APIRequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.APIDurationSeconds.WithLabelValues(endpoint).Observe(duration)
}

// RecordRateLimited records a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// SetRateLimitedClients sets the number of tracked clients.
func (m *Metrics) SetRateLimitedClients(n int) {
	if m == nil {
		return
	}
	m.RateLimitedClients.Set(float64(n))
}
