package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// classificationsTotal counts classifier outcomes.
	// Labels: label (task, reminder, memory, query, unknown), source (model, cache, error)
	classificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "router",
			Name:      "classifications_total",
			Help:      "Total number of intent classifications",
		},
		[]string{"label", "source"},
	)

	classifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "router",
			Name:      "classify_duration_seconds",
			Help:      "Duration of model-backed intent classification in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	// dispatchTotal counts dispatched requests by the agent that served them.
	// Labels: agent, result (success, error)
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "router",
			Name:      "dispatch_total",
			Help:      "Total number of dispatched requests",
		},
		[]string{"agent", "result"},
	)

	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "router",
			Name:      "dispatch_duration_seconds",
			Help:      "End-to-end duration of dispatched requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "router",
			Name:      "cache_lookups_total",
			Help:      "Classification cache lookups",
		},
		[]string{"backend", "result"},
	)
)
