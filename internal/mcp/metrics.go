package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/assistantd/internal/memory"
	"github.com/fyrsmithlabs/assistantd/internal/store"
)

var (
	toolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "mcp",
			Name:      "tool_invocations_total",
			Help:      "Total number of MCP tool invocations",
		},
		[]string{"tool"},
	)

	toolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "mcp",
			Name:      "tool_duration_seconds",
			Help:      "Duration of MCP tool invocations",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"tool"},
	)

	// toolErrors labels: tool, reason (validation_error, not_found, timeout, storage_error, embedding_error, internal_error)
	toolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "mcp",
			Name:      "tool_errors_total",
			Help:      "Total number of MCP tool errors",
		},
		[]string{"tool", "reason"},
	)

	toolActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "assistant",
			Subsystem: "mcp",
			Name:      "tool_active_requests",
			Help:      "Number of currently active MCP tool requests",
		},
		[]string{"tool"},
	)
)

// track marks a tool invocation active and returns the func that records
// its outcome. Call it deferred with a pointer to the handler's error.
func track(tool string) func(err *error) {
	start := time.Now()
	toolActive.WithLabelValues(tool).Inc()
	return func(err *error) {
		toolActive.WithLabelValues(tool).Dec()
		toolInvocations.WithLabelValues(tool).Inc()
		toolDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
		if *err != nil {
			toolErrors.WithLabelValues(tool, categorizeError(*err)).Inc()
		}
	}
}

func categorizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, memory.ErrEmptyContent), errors.Is(err, errInvalidArgument):
		return "validation_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, memory.ErrEmbedding):
		return "embedding_error"
	case errors.Is(err, store.ErrStorage), errors.Is(err, memory.ErrStorage):
		return "storage_error"
	}
	if strings.Contains(strings.ToLower(err.Error()), "invalid") {
		return "validation_error"
	}
	return "internal_error"
}
