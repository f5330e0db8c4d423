package chainsync

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusSyncs          *prometheus.CounterVec
	prometheusReorgs         prometheus.Counter
	prometheusBlocksApplied  prometheus.Counter
	prometheusBlocksReverted prometheus.Counter
	prometheusQueries        prometheus.Counter
	prometheusSyncDuration   prometheus.Histogram

	prometheusMetricsInitOnce sync.Once
)

// InitPrometheusMetrics registers the sync metrics with the default
// registry. Safe to call more than once.
func InitPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "klingnet",
			Subsystem: "wallet_sync",
			Name:      "syncs_total",
			Help:      "Number of sync calls by outcome",
		},
		[]string{
			"result", // noop, rollback, advance, reorg, error
		},
	)
	prometheusReorgs = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "klingnet",
			Subsystem: "wallet_sync",
			Name:      "reorgs_total",
			Help:      "Number of syncs that undid at least one block",
		},
	)
	prometheusBlocksApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "klingnet",
			Subsystem: "wallet_sync",
			Name:      "blocks_applied_total",
			Help:      "Number of blocks applied to the wallet ledger",
		},
	)
	prometheusBlocksReverted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "klingnet",
			Subsystem: "wallet_sync",
			Name:      "blocks_reverted_total",
			Help:      "Number of blocks undone from the wallet ledger",
		},
	)
	prometheusQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "klingnet",
			Subsystem: "wallet_sync",
			Name:      "chain_queries_total",
			Help:      "Number of chain view queries issued while syncing",
		},
	)
	prometheusSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "klingnet",
			Subsystem: "wallet_sync",
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync calls",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
	)
}
