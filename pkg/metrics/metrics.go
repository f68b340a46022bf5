// Package metrics defines the Prometheus metric collectors used across the
// search service and exposes an HTTP handler for scraping.
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
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	FetchesTotal         *prometheus.CounterVec
	FetchBreakerState    *prometheus.GaugeVec
	PagesIndexedTotal    prometheus.Counter
	PageFailuresTotal    prometheus.Counter
	SitesFinishedTotal   *prometheus.CounterVec
	CrawlsActive         prometheus.Gauge
	RankRecalcDuration   prometheus.Histogram
	EventsTotal          *prometheus.CounterVec
}

// Default is registered with the default Prometheus registry and used by
// the service packages.
var Default = New(prometheus.DefaultRegisterer)

// New creates all collectors and registers them with reg unless it is nil.
func New(reg prometheus.Registerer) *Metrics {
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
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, not_ready, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of ranked pages per search query before paging.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of search cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of search cache misses.",
			},
		),
		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetches_total",
				Help: "Outgoing page fetches by status class (2xx..5xx, error).",
			},
			[]string{"status"},
		),
		FetchBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crawler_host_breaker_state",
				Help: "Per-host circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"host"},
		),
		PagesIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_pages_indexed_total",
				Help: "Pages saved and indexed.",
			},
		),
		PageFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_page_failures_total",
				Help: "Page tasks that finished with an error.",
			},
		),
		SitesFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_sites_finished_total",
				Help: "Site crawls that reached a terminal status.",
			},
			[]string{"status"},
		),
		CrawlsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active",
				Help: "1 while a crawl is running.",
			},
		),
		RankRecalcDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "indexer_rank_recalc_seconds",
				Help:    "Time to re-weight the postings of one site.",
				Buckets: prometheus.ExponentialBuckets(0.005, 3, 10),
			},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_events_total",
				Help: "Crawl events by outcome (published, dropped, failed).",
			},
			[]string{"outcome"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.HTTPRequestsInFlight,
			m.SearchQueriesTotal,
			m.SearchLatency,
			m.SearchResultsCount,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
			m.FetchesTotal,
			m.FetchBreakerState,
			m.PagesIndexedTotal,
			m.PageFailuresTotal,
			m.SitesFinishedTotal,
			m.CrawlsActive,
			m.RankRecalcDuration,
			m.EventsTotal,
		)
	}

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
