package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts the physical work the executor does, so it can be held
// against the blocksAccessed estimates of the plans.
type Metrics struct {
	TempTables      prometheus.Counter
	BlocksRead      *prometheus.CounterVec
	BlocksWritten   *prometheus.CounterVec
	SortRuns        prometheus.Counter
	MergeIterations prometheus.Counter
	HashPartitions  prometheus.Counter
	RowsEmitted     prometheus.Histogram
}

// New registers the collectors on r. A nil registerer leaves them unregistered.
func New(namespace string, r prometheus.Registerer) *Metrics {
	return &Metrics{
		TempTables: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temp_tables_created_total",
			Help:      "Total number of temporary tables created.",
		}),
		BlocksRead: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_read_total",
			Help:      "Total number of blocks read, by device.",
		}, []string{"device"}),
		BlocksWritten: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_written_total",
			Help:      "Total number of blocks written, by device.",
		}, []string{"device"}),
		SortRuns: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sort_runs_total",
			Help:      "Total number of sorted runs generated by external sorts.",
		}),
		MergeIterations: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sort_merge_iterations_total",
			Help:      "Total number of pairwise merge iterations.",
		}),
		HashPartitions: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hash_join_partitions_total",
			Help:      "Total number of non-empty hash join buckets written.",
		}),
		RowsEmitted: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_rows_emitted",
			Help:      "Rows returned per executed query.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}
}

// NewNop is for tests and callers that don't export metrics.
func NewNop() *Metrics {
	return New("", nil)
}
