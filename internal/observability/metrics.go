package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the discovery service.
// Metrics are organized by subsystem: searches, sources, dedup, cache,
// and full-text resolution. All counters and histograms are registered
// via promauto for automatic registration with the default registry.
type Metrics struct {
	// SearchesStarted counts orchestrated searches initiated.
	SearchesStarted prometheus.Counter

	// SearchesCompleted counts searches that produced a result set.
	SearchesCompleted prometheus.Counter

	// SearchesFailed counts searches in which every source failed.
	SearchesFailed prometheus.Counter

	// SearchDuration observes end-to-end search duration in seconds.
	SearchDuration prometheus.Histogram

	// ResultsPerSearch observes the distribution of deduplicated results
	// returned per search.
	ResultsPerSearch prometheus.Histogram

	// SourceSearches counts per-source search calls, labeled by source.
	SourceSearches *prometheus.CounterVec

	// SourceFailures counts per-source failures, labeled by source and
	// failure kind (timeout, error).
	SourceFailures *prometheus.CounterVec

	// SourceSearchDuration observes per-source search duration in
	// seconds, labeled by source.
	SourceSearchDuration *prometheus.HistogramVec

	// SourceRecords observes the distribution of raw records returned
	// per source call, labeled by source.
	SourceRecords *prometheus.HistogramVec

	// RecordsMerged counts raw records absorbed into existing canonical
	// records during deduplication.
	RecordsMerged prometheus.Counter

	// CacheHits counts search cache hits.
	CacheHits prometheus.Counter

	// CacheMisses counts search cache misses.
	CacheMisses prometheus.Counter

	// ResolutionAttempts counts full-text strategy attempts, labeled by
	// strategy and outcome (resolved, failed).
	ResolutionAttempts *prometheus.CounterVec

	// RecordsExhausted counts records for which every full-text strategy
	// failed.
	RecordsExhausted prometheus.Counter

	// ResolutionDuration observes the duration of the full-text
	// resolution phase of a search in seconds.
	ResolutionDuration prometheus.Histogram
}

// NewMetrics creates and registers all service metrics under the given
// namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SearchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of orchestrated searches initiated.",
		}),
		SearchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of searches that produced a result set.",
		}),
		SearchesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of searches in which every source failed.",
		}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ResultsPerSearch: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "results_per_search",
			Help:      "Deduplicated results returned per search.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		SourceSearches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_searches_total",
			Help:      "Per-source search calls.",
		}, []string{"source"}),
		SourceFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Per-source failures by kind.",
		}, []string{"source", "kind"}),
		SourceSearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_search_duration_seconds",
			Help:      "Per-source search duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		SourceRecords: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_records",
			Help:      "Raw records returned per source call.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}, []string{"source"}),
		RecordsMerged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_merged_total",
			Help:      "Raw records absorbed into canonical records during deduplication.",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Search cache hits.",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Search cache misses.",
		}),
		ResolutionAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulltext_attempts_total",
			Help:      "Full-text strategy attempts by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		RecordsExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulltext_exhausted_total",
			Help:      "Records for which every full-text strategy failed.",
		}),
		ResolutionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fulltext_resolution_duration_seconds",
			Help:      "Duration of the full-text resolution phase per search in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}
