package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics bundles the Prometheus collectors exposed on /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	Transitions     *prometheus.CounterVec
	LedgerAppends   prometheus.Counter
	ReportsRendered *prometheus.CounterVec
}

// NewMetrics builds a dedicated registry with process and Go collectors plus
// the application series.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: registry,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "library_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_book_transitions_total",
			Help: "Book lifecycle transitions by event.",
		}, []string{"event"}),
		LedgerAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_ledger_appends_total",
			Help: "Transaction ledger entries appended.",
		}),
		ReportsRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_reports_rendered_total",
			Help: "Ledger exports rendered by format and outcome.",
		}, []string{"format", "outcome"}),
	}

	registry.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.Transitions,
		m.LedgerAppends,
		m.ReportsRendered,
	)
	return m
}
