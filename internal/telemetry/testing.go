package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Recorder is an enabled Telemetry whose spans stay in memory for tests.
// It does not touch the global provider; install Provider() when code under
// test traces through otel.Tracer.
type Recorder struct {
	*Telemetry
	spans *tracetest.SpanRecorder
}

// NewRecorder returns a Recorder sampling every span.
func NewRecorder() *Recorder {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	spans := tracetest.NewSpanRecorder()
	t := &Telemetry{
		config:         cfg,
		tracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
	}
	t.healthy.Store(true)
	return &Recorder{Telemetry: t, spans: spans}
}

// Provider returns the SDK provider feeding the recorder.
func (r *Recorder) Provider() *sdktrace.TracerProvider {
	return r.tracerProvider
}

// Last returns the most recently ended span called name, or nil.
func (r *Recorder) Last(name string) sdktrace.ReadOnlySpan {
	ended := r.spans.Ended()
	for i := len(ended) - 1; i >= 0; i-- {
		if ended[i].Name() == name {
			return ended[i]
		}
	}
	return nil
}

// RequireSpan stops the test unless a span called name has ended, and
// returns the latest one.
func (r *Recorder) RequireSpan(tb testing.TB, name string) sdktrace.ReadOnlySpan {
	tb.Helper()
	span := r.Last(name)
	if span == nil {
		names := make([]string, 0, len(r.spans.Ended()))
		for _, s := range r.spans.Ended() {
			names = append(names, s.Name())
		}
		tb.Fatalf("no ended span %q, have %v", name, names)
	}
	return span
}

// Attr looks up key on span.
func Attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// Failed reports whether span ended with an error status.
func Failed(span sdktrace.ReadOnlySpan) bool {
	return span.Status().Code == codes.Error
}
