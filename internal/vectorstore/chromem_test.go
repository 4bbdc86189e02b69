package vectorstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/memory"
	"github.com/fyrsmithlabs/assistantd/internal/vectorstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)

func record(content string, vec ...float32) memory.Record {
	return memory.Record{
		ID:        uuid.NewString(),
		Content:   content,
		Embedding: vec,
		Metadata:  map[string]string{"source": "test", "_internal": "dropped"},
		CreatedAt: created,
	}
}

func TestChromemStore_AddAndAll(t *testing.T) {
	s, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Dimension: 3}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	rec := record("кофе", 3, 0, 0)
	require.NoError(t, s.Add(ctx, rec))

	all, err = s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	got := all[0]
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "кофе", got.Content)
	assert.Equal(t, map[string]string{"source": "test"}, got.Metadata)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.InDeltaSlice(t, []float32{1, 0, 0}, got.Embedding, 1e-6, "vectors come back normalized")
}

func TestChromemStore_Rejects(t *testing.T) {
	s, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Dimension: 3}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, s.Add(ctx, record("no vector")), vectorstore.ErrMissingEmbedding)
	assert.ErrorIs(t, s.Add(ctx, record("short", 1, 0)), vectorstore.ErrInvalidConfig)

	_, err = vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)

	_, err = vectorstore.NewChromemStore(vectorstore.ChromemConfig{Dimension: 3, Collection: "Bad-Name"}, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)
}

func TestChromemStore_IndexDelegatesSearch(t *testing.T) {
	s, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Dimension: 3}, nil)
	require.NoError(t, err)
	ix, err := memory.NewIndex(s, memory.Config{Dimension: 3}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	near, err := ix.Store(ctx, "близко", []float32{1, 0.1, 0}, nil)
	require.NoError(t, err)
	mid, err := ix.Store(ctx, "средне", []float32{1, 1, 0}, nil)
	require.NoError(t, err)
	_, err = ix.Store(ctx, "ортогонально", []float32{0, 0, 1}, nil)
	require.NoError(t, err)
	_, err = ix.Store(ctx, "напротив", []float32{-1, 0, 0}, nil)
	require.NoError(t, err)

	results, err := ix.SearchScored(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2, "non-positive scores are dropped")
	assert.Equal(t, near.ID, results[0].Record.ID)
	assert.Equal(t, mid.ID, results[1].Record.ID)
	assert.Greater(t, results[0].Score, results[1].Score)

	limited, err := ix.SearchSimilar(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, near.ID, limited[0].ID)
}

func TestChromemStore_TiesAtLimitMatchScan(t *testing.T) {
	ctx := context.Background()
	query := []float32{1, 0, 0}

	for run := 0; run < 5; run++ {
		s, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Dimension: 3}, nil)
		require.NoError(t, err)
		scan := memory.NewMemStore()
		for i := 0; i < 8; i++ {
			rec := record(fmt.Sprintf("одинаково %d", i), 1, 1, 0)
			rec.ID = fmt.Sprintf("id-%02d", i)
			require.NoError(t, s.Add(ctx, rec))
			require.NoError(t, scan.Add(ctx, rec))
		}
		weaker := record("слабее", 1, 2, 0)
		weaker.ID = "id-weak"
		require.NoError(t, s.Add(ctx, weaker))
		require.NoError(t, scan.Add(ctx, weaker))

		viaChromem, err := memory.NewIndex(s, memory.Config{Dimension: 3}, nil)
		require.NoError(t, err)
		viaScan, err := memory.NewIndex(scan, memory.Config{Dimension: 3}, nil)
		require.NoError(t, err)

		got, err := viaChromem.SearchSimilar(ctx, query, 2)
		require.NoError(t, err)
		want, err := viaScan.SearchSimilar(ctx, query, 2)
		require.NoError(t, err)

		assert.Equal(t, []string{"id-00", "id-01"}, ids(want))
		assert.Equal(t, ids(want), ids(got), "run %d", run)
	}
}

func ids(recs []memory.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestChromemStore_NearestCapsK(t *testing.T) {
	s, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Dimension: 2}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	res, err := s.Nearest(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)

	require.NoError(t, s.Add(ctx, record("a", 1, 0)))
	res, err = s.Nearest(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
}

func TestChromemStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: dir, Dimension: 2}, nil)
	require.NoError(t, err)
	rec := record("сохранено", 0, 1)
	require.NoError(t, s.Add(ctx, rec))
	require.NoError(t, s.Close())

	reopened, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: dir, Dimension: 2}, nil)
	require.NoError(t, err)
	all, err := reopened.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rec.ID, all[0].ID)
	assert.Equal(t, "сохранено", all[0].Content)
}

func TestOpen(t *testing.T) {
	s, err := vectorstore.Open(context.Background(), vectorstore.Config{Backend: vectorstore.BackendChromem}, 4, nil)
	require.NoError(t, err)
	assert.IsType(t, &vectorstore.ChromemStore{}, s)

	_, err = vectorstore.Open(context.Background(), vectorstore.Config{Backend: vectorstore.BackendSQLite}, 4, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}
