// Package metrics holds the Prometheus collectors for the VWO client,
// the detail fetcher and the experiment cache.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequests counts VWO API calls by endpoint and HTTP status code
	// ("error" for transport failures, "rejected" when the breaker is open).
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vwo_api_requests_total",
			Help: "Total number of VWO API requests",
		},
		[]string{"endpoint", "code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vwo_api_request_duration_seconds",
			Help:    "Duration of VWO API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	CampaignPages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vwo_campaign_pages_total",
			Help: "Total number of campaign list pages fetched",
		},
	)

	// DetailFetches counts per-campaign detail outcomes: "ok" or "failed".
	DetailFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vwo_detail_fetches_total",
			Help: "Total number of campaign detail fetches by result",
		},
		[]string{"result"},
	)

	// DetailFetchFailures breaks failed detail fetches down by reason.
	DetailFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vwo_detail_fetch_failures_total",
			Help: "Total number of dropped campaign details by reason",
		},
		[]string{"reason"},
	)

	FetchCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vwo_fetch_cycle_duration_seconds",
			Help:    "Duration of full list+detail+normalize cycles",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	// CacheRequests counts cache reads by status bucket and result
	// ("hit", "miss", "error", "stale").
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vwo_cache_requests_total",
			Help: "Total number of experiment cache reads",
		},
		[]string{"status", "result"},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vwo_cache_buckets",
			Help: "Current number of populated cache buckets",
		},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vwo_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	OverrideImports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vwo_override_imports_total",
			Help: "Total number of CSV/ZIP override imports by result",
		},
		[]string{"result"},
	)
)
