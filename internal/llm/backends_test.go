package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIBackend(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "task"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 1, "total_tokens": 11}
		}`))
	}))
	defer srv.Close()

	c, err := llm.New(context.Background(), llm.Config{
		Provider:  llm.ProviderOpenAI,
		APIKey:    "test-key",
		BaseURL:   srv.URL,
		RateLimit: 100,
		Timeout:   5 * time.Second,
	}, nil)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "добавь задачу купить молоко", "classify intent")
	require.NoError(t, err)
	assert.Equal(t, "task", out)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestAnthropicBackend(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "memory"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 1}
		}`))
	}))
	defer srv.Close()

	c, err := llm.New(context.Background(), llm.Config{
		Provider:  llm.ProviderAnthropic,
		APIKey:    "test-key",
		BaseURL:   srv.URL,
		RateLimit: 100,
	}, nil)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "что мы обсуждали вчера?", "classify intent")
	require.NoError(t, err)
	assert.Equal(t, "memory", out)

	system, ok := body["system"].([]any)
	require.True(t, ok)
	assert.Equal(t, "classify intent", system[0].(map[string]any)["text"])
}

func TestAnthropicBackend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	c, err := llm.New(context.Background(), llm.Config{
		Provider:   llm.ProviderAnthropic,
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		RateLimit:  100,
		MaxRetries: 0,
	}, nil)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "hi", "")
	assert.ErrorIs(t, err, llm.ErrCompletion)
}
