package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func bufferLogger(t *testing.T, mutate func(*Config)) (*Logger, *bytes.Buffer) {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}
	var buf bytes.Buffer
	logger, err := newLogger(cfg, zapcore.AddSync(&buf))
	require.NoError(t, err)
	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewLogger_RejectsInvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg)
	assert.Error(t, err)
}

func TestLogger_JSONOutput(t *testing.T) {
	logger, buf := bufferLogger(t, nil)

	logger.Info(context.Background(), "message handled", zap.String("agent", "task"))
	require.NoError(t, logger.Sync())

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "message handled", lines[0]["msg"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "assistantd", lines[0]["service"])
	assert.Equal(t, "task", lines[0]["agent"])
}

func TestLogger_TraceLevel(t *testing.T) {
	logger, buf := bufferLogger(t, func(c *Config) { c.Level = "trace" })

	logger.Trace(context.Background(), "prompt dump")
	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "trace", lines[0]["level"])

	quiet, qbuf := bufferLogger(t, nil)
	quiet.Trace(context.Background(), "prompt dump")
	quiet.Debug(context.Background(), "debug detail")
	assert.Empty(t, qbuf.String())
	assert.False(t, quiet.Enabled(TraceLevel))
}

func TestLogger_RedactsPerCallFields(t *testing.T) {
	logger, buf := bufferLogger(t, nil)

	logger.Info(context.Background(), "calling provider",
		zap.String("api_key", "plain-value"),
		zap.String("header", "Bearer abc.def"),
		zap.String("model", "gpt-4o-mini"),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED]", lines[0]["api_key"])
	assert.Equal(t, "[REDACTED:pattern]", lines[0]["header"])
	assert.Equal(t, "gpt-4o-mini", lines[0]["model"])
}

func TestLogger_RedactsWithFieldsAndMessage(t *testing.T) {
	logger, buf := bufferLogger(t, nil)

	logger.With(zap.String("token", "t-123")).Warn(context.Background(), "got key sk-abcdefghijklmnopqrstuv")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED]", lines[0]["token"])
	assert.Equal(t, "got key [REDACTED]", lines[0]["msg"])
}

func TestLogger_RedactionDisabled(t *testing.T) {
	logger, buf := bufferLogger(t, func(c *Config) { c.Redaction.Enabled = false })

	logger.Info(context.Background(), "raw", zap.String("password", "hunter2"))
	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "hunter2", lines[0]["password"])
}

func TestLogger_ContextCorrelation(t *testing.T) {
	tl := NewTestLogger()

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	ctx = WithSessionID(ctx, "sess-1")
	ctx = WithRequestID(ctx, "req_42")
	ctx = WithAgent(ctx, "reminder")

	tl.Info(ctx, "dispatched")

	for key, want := range map[string]any{
		"trace_id":   traceID.String(),
		"session.id": "sess-1",
		"request.id": "req_42",
		"agent":      "reminder",
	} {
		got, ok := tl.Field("dispatched", key)
		if assert.True(t, ok, key) {
			assert.Equal(t, want, got, key)
		}
	}
	_, ok := tl.Field("dispatched", "missing")
	assert.False(t, ok)
}

func TestContext_InvalidIDsIgnored(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, SessionIDFromContext(WithSessionID(ctx, "")))
	assert.Empty(t, SessionIDFromContext(WithSessionID(ctx, "a b")))
	assert.Empty(t, RequestIDFromContext(WithRequestID(ctx, strings.Repeat("x", maxIDLen+1))))
	assert.Empty(t, AgentFromContext(WithAgent(ctx, "")))
	assert.Empty(t, ContextFields(ctx))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()).Underlying())

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(ctx, "from context")
	tl.AssertLogged(t, zapcore.InfoLevel, "from context")
}
