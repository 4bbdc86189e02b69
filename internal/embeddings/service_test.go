package embeddings_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fyrsmithlabs/assistantd/internal/embedding"
	"github.com/fyrsmithlabs/assistantd/internal/embeddings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) { return s.vec, s.err }

func TestService_Embed(t *testing.T) {
	svc := embeddings.Wrap(stubEmbedder{vec: []float32{0.1, 0.2, 0.3}}, 3, nil)

	vec, err := svc.Embed(context.Background(), "объясни что такое REST API")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
}

func TestService_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := embeddings.Wrap(stubEmbedder{vec: []float32{1}}, 1, nil).Embed(ctx, "   ")
	assert.ErrorIs(t, err, embeddings.ErrEmbedding)
	assert.ErrorIs(t, err, embeddings.ErrEmptyInput)

	boom := errors.New("429 too many requests")
	_, err = embeddings.Wrap(stubEmbedder{err: boom}, 3, nil).Embed(ctx, "text")
	assert.ErrorIs(t, err, embeddings.ErrEmbedding)
	assert.ErrorIs(t, err, boom)

	_, err = embeddings.Wrap(stubEmbedder{vec: []float32{1, 2}}, 3, nil).Embed(ctx, "text")
	assert.ErrorIs(t, err, embeddings.ErrEmbedding)
	assert.ErrorIs(t, err, embedding.ErrInvalidEmbedding)
}

func TestNewService_OpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-ada-002", req["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.5, -0.25, 0.125, 1.0]}],
			"model": "text-embedding-ada-002",
			"usage": {"prompt_tokens": 3, "total_tokens": 3}
		}`))
	}))
	defer srv.Close()

	svc, err := embeddings.NewService(context.Background(), embeddings.Config{
		APIKey:    "test-key",
		BaseURL:   srv.URL,
		Dimension: 4,
	}, nil)
	require.NoError(t, err)

	vec, err := svc.Embed(context.Background(), "что мы обсуждали вчера?")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25, 0.125, 1.0}, vec)
}

func TestConfig_Validate(t *testing.T) {
	cfg := embeddings.Config{APIKey: "k"}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, embedding.DefaultDimension, cfg.Dimension)

	bad := embeddings.Config{Provider: "cohere", APIKey: "k"}
	bad.ApplyDefaults()
	assert.ErrorIs(t, bad.Validate(), embeddings.ErrInvalidConfig)

	_, err := embeddings.NewService(context.Background(), embeddings.Config{}, nil)
	assert.ErrorIs(t, err, embeddings.ErrInvalidConfig)
}
