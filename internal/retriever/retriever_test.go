package retriever

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/index"
)

type hashEmbedder struct{}

func (hashEmbedder) vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 8)
	for i := range vec {
		vec[i] = float32(sum[i]) + 1
	}
	return vec
}

func (h hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.vector(text), nil
}

func newTestRetriever(t *testing.T, topK int) (*Retriever, *index.Index) {
	t.Helper()
	idx, err := index.New(context.Background(), index.Config{Path: t.TempDir()}, hashEmbedder{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	r, err := New(Config{TopK: topK}, idx, zap.NewNop())
	require.NoError(t, err)
	return r, idx
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{}, nil, zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{TopK: -1}, &index.Index{}, zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, DefaultTopK, cfg.TopK)
	require.NoError(t, cfg.Validate())
}

func TestRetrieveEmptyIndex(t *testing.T) {
	r, _ := newTestRetriever(t, 5)

	results, err := r.Retrieve(context.Background(), []float32{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveRanked(t *testing.T) {
	r, idx := newTestRetriever(t, 2)
	ctx := context.Background()

	chunks := []chunker.Chunk{
		{ID: "d:0", DocumentID: "d", Seq: 0, Text: "refund policy details"},
		{ID: "d:1", DocumentID: "d", Seq: 1, Text: "shipping information"},
		{ID: "d:2", DocumentID: "d", Seq: 2, Text: "warranty coverage"},
	}
	_, err := idx.Upsert(ctx, chunks)
	require.NoError(t, err)

	vec, err := hashEmbedder{}.EmbedQuery(ctx, "refund policy details")
	require.NoError(t, err)

	results, err := r.Retrieve(ctx, vec)
	require.NoError(t, err)
	require.Len(t, results, 2, "top_k bounds the result count")
	assert.Equal(t, "d:0", results[0].ChunkID)
	assert.Equal(t, "d", results[0].DocumentID)
	assert.Equal(t, "refund policy details", results[0].Text)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}
