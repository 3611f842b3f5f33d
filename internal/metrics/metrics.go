package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RemoteFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerdash_remote_fetches_total",
			Help: "Total NASA POWER API fetches by outcome",
		},
		[]string{"outcome"},
	)

	RemoteFetchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "powerdash_remote_fetch_latency_seconds",
			Help:    "NASA POWER API fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerdash_cache_lookups_total",
			Help: "Cache lookups by result (hit_coverage, hit_exact, miss)",
		},
		[]string{"result"},
	)

	RowsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerdash_rows_dropped_total",
			Help: "Observation rows dropped during cleaning by stage",
		},
		[]string{"stage"},
	)

	CacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerdash_cache_evictions_total",
			Help: "Cache entries removed by the retention sweep",
		},
	)

	IndexRecordsReconciled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerdash_index_records_reconciled_total",
			Help: "Dangling coverage-index records dropped by reconciliation",
		},
	)

	GeocodeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerdash_geocode_requests_total",
			Help: "Geocoding requests by outcome",
		},
		[]string{"outcome"},
	)
)
