package logging

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	redactedValue   = "[REDACTED]"
	redactedPattern = "[REDACTED:pattern]"
	maxPatternLen   = 200
)

// RedactingEncoder masks credentials before they reach the log stream.
// Keys listed in RedactionConfig.Fields are masked whatever their type;
// string values matching a pattern are masked whatever their key.
type RedactingEncoder struct {
	zapcore.Encoder
	keys     map[string]struct{}
	patterns []*regexp.Regexp
}

// NewRedactingEncoder wraps base. A disabled config yields a pass-through.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	enc := &RedactingEncoder{Encoder: base}
	if !cfg.Enabled {
		return enc, nil
	}
	enc.keys = make(map[string]struct{}, len(cfg.Fields))
	for _, f := range cfg.Fields {
		enc.keys[strings.ToLower(f)] = struct{}{}
	}
	for _, p := range cfg.Patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern longer than %d chars: %q", maxPatternLen, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		enc.patterns = append(enc.patterns, re)
	}
	return enc, nil
}

func (e *RedactingEncoder) active() bool {
	return len(e.keys) > 0 || len(e.patterns) > 0
}

// mask returns the replacement for a string field, or "" to keep it.
func (e *RedactingEncoder) mask(key, val string) string {
	if _, ok := e.keys[strings.ToLower(key)]; ok {
		return redactedValue
	}
	for _, re := range e.patterns {
		if re.MatchString(val) {
			return redactedPattern
		}
	}
	return ""
}

// AddString covers fields attached through With.
func (e *RedactingEncoder) AddString(key, val string) {
	if m := e.mask(key, val); m != "" {
		val = m
	}
	e.Encoder.AddString(key, val)
}

// AddReflected masks structured values under a sensitive key.
func (e *RedactingEncoder) AddReflected(key string, val any) error {
	if _, ok := e.keys[strings.ToLower(key)]; ok {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), keys: e.keys, patterns: e.patterns}
}

// EncodeEntry masks the message and per-call fields. The wrapped encoder
// writes those itself, so they never pass through AddString.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if !e.active() {
		return e.Encoder.EncodeEntry(ent, fields)
	}
	for _, re := range e.patterns {
		ent.Message = re.ReplaceAllString(ent.Message, redactedValue)
	}
	masked := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		masked[i] = f
		if _, ok := e.keys[strings.ToLower(f.Key)]; ok {
			masked[i] = zap.String(f.Key, redactedValue)
		} else if f.Type == zapcore.StringType {
			if m := e.mask(f.Key, f.String); m != "" {
				masked[i] = zap.String(f.Key, m)
			}
		}
	}
	return e.Encoder.EncodeEntry(ent, masked)
}
