package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PricingBatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_batch_runs_total",
			Help: "Total number of pricing batch runs by result",
		},
		[]string{"result"},
	)

	PricingBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricing_batch_duration_seconds",
			Help:    "Duration of a pricing batch run in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PricesUpdated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricing_prices_updated_total",
			Help: "Total number of trip prices written by the pricing batch",
		},
	)

	PricingTripFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricing_trip_failures_total",
			Help: "Total number of per-trip failures during pricing batches",
		},
	)

	RankingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_requests_total",
			Help: "Total number of search ranking requests by mode",
		},
		[]string{"mode"},
	)

	PreferenceCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preference_cache_requests_total",
			Help: "User preference cache lookups by outcome",
		},
		[]string{"outcome"},
	)
)
