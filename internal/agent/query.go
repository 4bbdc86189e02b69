package agent

import (
	"context"

	"github.com/fyrsmithlabs/assistantd/internal/llm"
	"go.uber.org/zap"
)

const queryPersona = `Ты - персональный AI-ассистент. Помогай пользователю отвечать на вопросы, объяснять концепции и давать полезные советы.

Правила:
- Отвечай кратко и по делу
- Используй простой язык
- Если не знаешь ответ - скажи честно
- Будь дружелюбным`

// QueryApology is returned when the model cannot be reached.
const QueryApology = "Извините, сейчас я не могу ответить на этот вопрос. Попробуйте позже."

// QueryAgent answers general questions. It accepts every input.
type QueryAgent struct {
	base
	llm llm.Completion
}

var _ Agent = (*QueryAgent)(nil)

// NewQueryAgent creates the fallback agent.
func NewQueryAgent(completion llm.Completion, opts ...Option) *QueryAgent {
	return &QueryAgent{base: newBase("query", opts), llm: completion}
}

// Label returns Query.
func (a *QueryAgent) Label() Label { return Query }

// CanHandle always returns true.
func (a *QueryAgent) CanHandle(string) bool { return true }

// Execute forwards the input to the model and returns its reply verbatim.
func (a *QueryAgent) Execute(ctx context.Context, input string, _ RoutingContext) (string, error) {
	reply, err := a.llm.Complete(ctx, input, queryPersona)
	if err != nil {
		a.logger.Warn("query completion failed", zap.Error(err))
		return QueryApology, nil
	}
	return reply, nil
}
