package agent

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/assistantd/internal/memory"
	"go.uber.org/zap"
)

const recallLimit = 5

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MemoryIndex is the part of memory.Index the agent uses.
type MemoryIndex interface {
	Store(ctx context.Context, content string, vec []float32, metadata map[string]string) (memory.Record, error)
	SearchScored(ctx context.Context, query []float32, limit int) ([]memory.SimilarityResult, error)
}

// Scrubber removes secrets from text before it is persisted.
type Scrubber interface {
	Scrub(content string) string
}

// saveTriggers start a "remember this" request. Longer phrases come first
// so the whole phrase is stripped.
var saveTriggers = []string{"remember that", "запомни, что", "запомни что", "запомни"}

// MemoryAgent saves and recalls free-text memories.
type MemoryAgent struct {
	base
	index    MemoryIndex
	embedder Embedder
	scrubber Scrubber
}

var _ Agent = (*MemoryAgent)(nil)

// NewMemoryAgent creates a memory agent. scrubber may be nil.
func NewMemoryAgent(index MemoryIndex, embedder Embedder, scrubber Scrubber, opts ...Option) *MemoryAgent {
	return &MemoryAgent{
		base:     newBase("memory", opts),
		index:    index,
		embedder: embedder,
		scrubber: scrubber,
	}
}

// Label returns Memory.
func (a *MemoryAgent) Label() Label { return Memory }

// CanHandle reports whether the input asks to remember or recall.
func (a *MemoryAgent) CanHandle(input string) bool {
	return containsAny(strings.ToLower(input), "помнишь", "вспомни", "запомни", "обсуждали", "remember", "recall")
}

// Execute saves a fact when asked to remember one, otherwise searches.
func (a *MemoryAgent) Execute(ctx context.Context, input string, rc RoutingContext) (string, error) {
	if content, ok := stripSaveTrigger(input); ok {
		return a.save(ctx, content, rc)
	}
	return a.recall(ctx, input)
}

// stripSaveTrigger reports whether input starts a save request and returns
// the fact to store.
func stripSaveTrigger(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	lower := strings.ToLower(trimmed)
	for _, trigger := range saveTriggers {
		// Only a leading imperative counts; "ты помнишь, что..." is a recall.
		if !strings.HasPrefix(lower, trigger) || len(trimmed) < len(trigger) {
			continue
		}
		rest := strings.TrimLeftFunc(trimmed[len(trigger):], func(r rune) bool {
			return unicode.IsSpace(r) || r == ':' || r == ',' || r == '-'
		})
		return strings.TrimSpace(rest), true
	}
	return "", false
}

func (a *MemoryAgent) save(ctx context.Context, content string, rc RoutingContext) (string, error) {
	if content == "" {
		return "Что именно запомнить? Попробуйте: 'запомни [факт]'", nil
	}
	if a.scrubber != nil {
		content = a.scrubber.Scrub(content)
	}

	vec, err := a.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embedding memory: %w", err)
	}

	meta := map[string]string{"source": "chat"}
	if sid := rc.SessionID(); sid != "" {
		meta["session_id"] = sid
	}
	rec, err := a.index.Store(ctx, content, vec, meta)
	if err != nil {
		return "", fmt.Errorf("storing memory: %w", err)
	}
	a.logger.Info("memory stored", zap.String("memory_id", rec.ID))

	return fmt.Sprintf("🧠 Запомнил: '%s'", content), nil
}

func (a *MemoryAgent) recall(ctx context.Context, input string) (string, error) {
	vec, err := a.embedder.Embed(ctx, input)
	if err != nil {
		return "", fmt.Errorf("embedding query: %w", err)
	}

	results, err := a.index.SearchScored(ctx, vec, recallLimit)
	if err != nil {
		return "", fmt.Errorf("searching memories: %w", err)
	}
	a.logger.Debug("memory recall", zap.Int("results", len(results)))

	if len(results) == 0 {
		return "Я не нашёл ничего похожего в памяти.", nil
	}

	var b strings.Builder
	b.WriteString("🧠 **Вот что я помню:**")
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, r.Record.Content, r.Record.CreatedAt.Format(dateLayout))
	}
	return b.String(), nil
}
