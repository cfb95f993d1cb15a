package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AggregationsTotal counts wallet aggregations by outcome.
	AggregationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frenkabal_aggregations_total",
			Help: "Number of wallet aggregations by outcome.",
		},
		[]string{"outcome"},
	)

	// AggregationDuration observes end-to-end aggregation latency.
	AggregationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "frenkabal_aggregation_duration_seconds",
			Help:    "End-to-end wallet aggregation duration.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// UpstreamRequestsTotal counts calls to external APIs by source and result.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frenkabal_upstream_requests_total",
			Help: "Number of upstream API requests by source and result.",
		},
		[]string{"source", "result"},
	)

	// CacheLookupsTotal counts cache lookups by cache name and hit/miss.
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frenkabal_cache_lookups_total",
			Help: "Number of cache lookups by cache and result.",
		},
		[]string{"cache", "result"},
	)

	// SwapEventsTotal counts detected swap events.
	SwapEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "frenkabal_swap_events_total",
			Help: "Number of detected swap events.",
		},
	)
)

// MustRegisterMetrics registers all collectors with the default registry.
func MustRegisterMetrics() {
	prometheus.MustRegister(
		AggregationsTotal,
		AggregationDuration,
		UpstreamRequestsTotal,
		CacheLookupsTotal,
		SwapEventsTotal,
	)
}
