// Package router decides which capability answers a request.
package router

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/agent"
	"github.com/fyrsmithlabs/assistantd/internal/llm"
	"go.uber.org/zap"
)

const classifierPrompt = `Определи, какой агент должен обработать запрос пользователя. Ответь одним словом.

Агенты:
- task: управление задачами ("добавь задачу купить молоко")
- reminder: напоминания ("напомни позвонить маме в 18:00")
- memory: сохранение и поиск фактов из прошлого ("ты помнишь, что я говорил про отпуск?")
- query: общие вопросы и объяснения ("что такое REST API?")

Ответь только одним словом: task, reminder, memory или query.`

// Classifier maps free text to a capability label with one model call.
type Classifier struct {
	llm    llm.Completion
	cache  Cache
	logger *zap.Logger
}

// NewClassifier creates a classifier. cache may be nil.
func NewClassifier(completion llm.Completion, cache Cache, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{llm: completion, cache: cache, logger: logger.Named("classifier")}
}

// Classify returns the label for input. Model failures and unrecognized
// replies yield agent.Unknown.
func (c *Classifier) Classify(ctx context.Context, input string) agent.Label {
	var key string
	if c.cache != nil {
		key = CacheKey(input)
		if label, ok := c.cache.Get(ctx, key); ok {
			classificationsTotal.WithLabelValues(label.String(), "cache").Inc()
			return label
		}
	}

	start := time.Now()
	reply, err := c.llm.Complete(ctx, input, classifierPrompt)
	classifyDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn("classification failed", zap.Error(err))
		classificationsTotal.WithLabelValues(agent.Unknown.String(), "error").Inc()
		return agent.Unknown
	}

	label := agent.ParseLabel(reply)
	classificationsTotal.WithLabelValues(label.String(), "model").Inc()
	if label == agent.Unknown {
		c.logger.Debug("unrecognized classifier reply", zap.Int("reply_len", len(reply)))
		return label
	}
	if c.cache != nil {
		c.cache.Set(ctx, key, label)
	}
	return label
}
