// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	DatasetLoadsTotal    *prometheus.CounterVec
	RecordsIngestedTotal prometheus.Counter
	RecordsSkippedTotal  prometheus.Counter
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DatasetGroups        *prometheus.GaugeVec
	DatasetMembers       *prometheus.GaugeVec
	LoadedDatasets       prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
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
		DatasetLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataset_loads_total",
				Help: "Total dataset load operations by source (db, json) and status.",
			},
			[]string{"source", "status"},
		),
		RecordsIngestedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "records_ingested_total",
				Help: "Total membership records accepted into an index build.",
			},
		),
		RecordsSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "records_skipped_total",
				Help: "Total malformed membership records skipped during index builds.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analysis_queries_total",
				Help: "Total analysis queries by kind (pairs, overlap, intersection, frequent, member_groups, group_search) and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analysis_query_latency_seconds",
				Help:    "Analysis query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"kind"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		DatasetGroups: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dataset_groups",
				Help: "Number of groups in each loaded dataset.",
			},
			[]string{"owner"},
		),
		DatasetMembers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dataset_members",
				Help: "Number of distinct members in each loaded dataset.",
			},
			[]string{"owner"},
		),
		LoadedDatasets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "loaded_datasets",
				Help: "Number of datasets currently held in memory.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DatasetLoadsTotal,
		m.RecordsIngestedTotal,
		m.RecordsSkippedTotal,
		m.QueriesTotal,
		m.QueryLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DatasetGroups,
		m.DatasetMembers,
		m.LoadedDatasets,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
