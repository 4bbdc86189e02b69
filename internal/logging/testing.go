package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger keeps every entry in memory, trace level included.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// Entries returns the entries whose message contains msg.
func (t *TestLogger) Entries(msg string) []observer.LoggedEntry {
	return t.observed.FilterMessageSnippet(msg).All()
}

// Field returns the value of key on the first entry containing msg that
// carries it.
func (t *TestLogger) Field(msg, key string) (any, bool) {
	for _, entry := range t.Entries(msg) {
		if v, ok := entry.ContextMap()[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// AssertLogged fails tb unless an entry at level contains msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	for _, entry := range t.Entries(msg) {
		if entry.Level == level {
			return
		}
	}
	var seen []string
	for _, entry := range t.observed.All() {
		seen = append(seen, entry.Level.String()+":"+entry.Message)
	}
	tb.Errorf("no %v entry containing %q; have [%s]", level, msg, strings.Join(seen, ", "))
}
