package agent_test

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/assistantd/internal/agent"
	"github.com/fyrsmithlabs/assistantd/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryAgent_CanHandleEverything(t *testing.T) {
	a := agent.NewQueryAgent(replying(""))

	assert.True(t, a.CanHandle(""))
	assert.True(t, a.CanHandle("что такое REST API?"))
	assert.Equal(t, agent.Query, a.Label())
}

func TestQueryAgent_ReturnsModelReply(t *testing.T) {
	var gotSystem string
	a := agent.NewQueryAgent(llm.CompletionFunc(func(_ context.Context, prompt, system string) (string, error) {
		gotSystem = system
		return "REST это архитектурный стиль.", nil
	}))

	reply, err := a.Execute(context.Background(), "что такое REST?", nil)
	require.NoError(t, err)
	assert.Equal(t, "REST это архитектурный стиль.", reply)
	assert.Contains(t, gotSystem, "персональный AI-ассистент")
}

func TestQueryAgent_ApologizesOnFailure(t *testing.T) {
	a := agent.NewQueryAgent(failing(llm.ErrCompletion))

	reply, err := a.Execute(context.Background(), "что такое REST?", nil)
	require.NoError(t, err)
	assert.Equal(t, agent.QueryApology, reply)
}
