package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// searchTotal counts searches.
	// Labels: strategy (scan, nearest), result (success, error)
	searchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "memory",
			Name:      "searches_total",
			Help:      "Total number of memory similarity searches",
		},
		[]string{"strategy", "result"},
	)

	searchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "memory",
			Name:      "search_duration_seconds",
			Help:      "Duration of memory similarity searches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	// searchCandidates tracks how many records were scored per scan.
	searchCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "memory",
			Name:      "search_candidates",
			Help:      "Number of records with embeddings scored per linear scan",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	storedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "memory",
			Name:      "records_stored_total",
			Help:      "Total number of memory records stored",
		},
		[]string{"result"},
	)
)
