package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zricethezav/gitleaks/v8/detect"
	"go.uber.org/zap"
)

var redactedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "assistant",
		Subsystem: "secrets",
		Name:      "redacted_total",
		Help:      "Total number of secrets redacted, by rule",
	},
	[]string{"rule"},
)

// phraseRules catch secrets stated in conversation. Only the first capture
// group is redacted.
var phraseRules = []struct {
	id      string
	pattern *regexp.Regexp
}{
	{"password-phrase", regexp.MustCompile(`(?i)\b(?:password|passwd|passphrase|pin)\s*(?:is|:|=)\s*['"]?([^\s'",]{4,})`)},
	{"password-phrase-ru", regexp.MustCompile(`(?i)(?:пароль|пин-код|пинкод)(?:\s*[-:=—]\s*|\s+это\s+)['"]?([^\s'",]{4,})`)},
	{"api-key-assignment", regexp.MustCompile(`(?i)\b(?:api[_-]?key|token|secret)\s*[:=]\s*['"]?([A-Za-z0-9_\-./+]{12,})`)},
}

// Finding describes one detected secret without its value.
type Finding struct {
	RuleID string `json:"rule_id"`
	Line   int    `json:"line,omitempty"`
}

// Result is the outcome of a scan.
type Result struct {
	Scrubbed string    `json:"scrubbed"`
	Findings []Finding `json:"findings,omitempty"`
}

// HasFindings reports whether anything was redacted.
func (r Result) HasFindings() bool { return len(r.Findings) > 0 }

// Scrubber detects and redacts secrets. Safe for concurrent use.
type Scrubber struct {
	enabled       bool
	redaction     string
	allowlistFile string
	logger        *zap.Logger

	allowMu sync.RWMutex
	allow   []*regexp.Regexp

	mu       sync.Mutex
	detector *detect.Detector
}

// New creates a scrubber. Loading the gitleaks rule set takes a moment, so
// callers should build one scrubber and share it.
func New(cfg Config, logger *zap.Logger) (*Scrubber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	s := &Scrubber{
		enabled:       cfg.Enabled,
		redaction:     cfg.Redaction,
		allowlistFile: cfg.AllowlistFile,
		logger:        logger,
	}
	if !cfg.Enabled {
		return s, nil
	}

	allowlist, err := LoadAllowlist(cfg.AllowlistFile)
	if err != nil {
		return nil, err
	}
	if s.allow, err = compileAll(allowlist.Regexes); err != nil {
		return nil, err
	}

	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	s.detector = detector
	return s, nil
}

// Scrub returns content with secrets replaced by the redaction string.
func (s *Scrubber) Scrub(content string) string {
	return s.Check(content).Scrubbed
}

// Check scans content and reports what was redacted.
func (s *Scrubber) Check(content string) Result {
	if s == nil || !s.enabled || strings.TrimSpace(content) == "" {
		return Result{Scrubbed: content}
	}

	type hit struct {
		secret string
		rule   string
		line   int
	}
	var hits []hit

	s.mu.Lock()
	for _, f := range s.detector.DetectString(content) {
		if f.Secret != "" {
			hits = append(hits, hit{secret: f.Secret, rule: f.RuleID, line: f.StartLine})
		}
	}
	s.mu.Unlock()

	for _, r := range phraseRules {
		for _, m := range r.pattern.FindAllStringSubmatchIndex(content, -1) {
			if len(m) < 4 || m[2] < 0 {
				continue
			}
			line := strings.Count(content[:m[2]], "\n") + 1
			hits = append(hits, hit{secret: content[m[2]:m[3]], rule: r.id, line: line})
		}
	}

	// Longer secrets first so a secret containing another is replaced whole.
	sort.SliceStable(hits, func(i, j int) bool { return len(hits[i].secret) > len(hits[j].secret) })

	result := Result{Scrubbed: content}
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if seen[h.secret] || s.allowed(h.secret) || !strings.Contains(result.Scrubbed, h.secret) {
			continue
		}
		seen[h.secret] = true
		result.Scrubbed = strings.ReplaceAll(result.Scrubbed, h.secret, s.redaction)
		result.Findings = append(result.Findings, Finding{RuleID: h.rule, Line: h.line})
		redactedTotal.WithLabelValues(h.rule).Inc()
	}
	if len(result.Findings) > 0 {
		s.logger.Debug("secrets redacted", zap.Int("count", len(result.Findings)))
	}
	return result
}

func (s *Scrubber) allowed(secret string) bool {
	s.allowMu.RLock()
	defer s.allowMu.RUnlock()
	for _, re := range s.allow {
		if re.MatchString(secret) {
			return true
		}
	}
	return false
}
