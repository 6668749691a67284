package index

import (
	"context"
	"crypto/sha256"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
)

// hashEmbedder derives a deterministic vector from the text itself, so
// identical texts always embed identically and tests need no network.
type hashEmbedder struct {
	mu       sync.Mutex
	docCalls int
	embedded []string
}

func (h *hashEmbedder) vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 8)
	for i := range vec {
		vec[i] = float32(sum[i]) + 1
	}
	return vec
}

func (h *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.docCalls++
	h.embedded = append(h.embedded, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.vector(text), nil
}

func newTestIndex(t *testing.T, dir string) (*Index, *hashEmbedder) {
	t.Helper()
	emb := &hashEmbedder{}
	idx, err := New(context.Background(), Config{Path: dir}, emb, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx, emb
}

func chunksOf(texts ...string) []chunker.Chunk {
	chunks := make([]chunker.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = chunker.Chunk{
			ID:         "doc1:" + string(rune('0'+i)),
			DocumentID: "doc1",
			Seq:        i,
			Text:       text,
		}
	}
	return chunks
}

func TestNewRequiresEmbedder(t *testing.T) {
	_, err := New(context.Background(), Config{Path: t.TempDir()}, nil, zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), Config{Backend: "weaviate", Path: t.TempDir()}, &hashEmbedder{}, zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestUpsertEmbedsNewChunks(t *testing.T) {
	idx, emb := newTestIndex(t, t.TempDir())

	stats, err := idx.Upsert(context.Background(), chunksOf("refund policy", "shipping times"))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Embedded)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 2, idx.Size())
	assert.Equal(t, 1, emb.docCalls)
}

func TestUpsertSkipsUnchangedChunks(t *testing.T) {
	idx, emb := newTestIndex(t, t.TempDir())
	ctx := context.Background()

	_, err := idx.Upsert(ctx, chunksOf("refund policy", "shipping times"))
	require.NoError(t, err)

	stats, err := idx.Upsert(ctx, chunksOf("refund policy", "shipping times"))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Embedded)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, emb.docCalls, "unchanged chunks must not reach the embedder")
}

func TestUpsertReembedsChangedText(t *testing.T) {
	idx, emb := newTestIndex(t, t.TempDir())
	ctx := context.Background()

	_, err := idx.Upsert(ctx, chunksOf("refund policy", "shipping times"))
	require.NoError(t, err)

	stats, err := idx.Upsert(ctx, chunksOf("refund policy updated", "shipping times"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Embedded)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, []string{"refund policy", "shipping times", "refund policy updated"}, emb.embedded)
	assert.Equal(t, 2, idx.Size())
}

func TestSearchRanksBySimilarity(t *testing.T) {
	idx, emb := newTestIndex(t, t.TempDir())
	ctx := context.Background()

	_, err := idx.Upsert(ctx, chunksOf("refund policy", "shipping times", "warranty terms"))
	require.NoError(t, err)

	vec, err := emb.EmbedQuery(ctx, "shipping times")
	require.NoError(t, err)

	matches, err := idx.Search(ctx, vec, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "shipping times", matches[0].Text)
	assert.Equal(t, "doc1", matches[0].DocumentID)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestSearchBreaksTiesByCreationOrder(t *testing.T) {
	idx, emb := newTestIndex(t, t.TempDir())
	ctx := context.Background()

	// Identical texts embed identically, so both score the same
	// against any query.
	chunks := []chunker.Chunk{
		{ID: "doc1:0", DocumentID: "doc1", Seq: 0, Text: "identical passage"},
		{ID: "doc2:0", DocumentID: "doc2", Seq: 0, Text: "identical passage"},
	}
	_, err := idx.Upsert(ctx, chunks)
	require.NoError(t, err)

	vec, err := emb.EmbedQuery(ctx, "identical passage")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		matches, err := idx.Search(ctx, vec, 2)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "doc1:0", matches[0].ChunkID, "earlier chunk wins the tie")
		assert.Equal(t, "doc2:0", matches[1].ChunkID)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx, _ := newTestIndex(t, t.TempDir())

	matches, err := idx.Search(context.Background(), []float32{1, 2, 3, 4, 5, 6, 7, 8}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchInvalidK(t *testing.T) {
	idx, _ := newTestIndex(t, t.TempDir())

	_, err := idx.Search(context.Background(), []float32{1}, 0)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSearchCapsKAtIndexSize(t *testing.T) {
	idx, emb := newTestIndex(t, t.TempDir())
	ctx := context.Background()

	_, err := idx.Upsert(ctx, chunksOf("only one chunk"))
	require.NoError(t, err)

	vec, err := emb.EmbedQuery(ctx, "only one chunk")
	require.NoError(t, err)

	matches, err := idx.Search(ctx, vec, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestReconcileRemovesStale(t *testing.T) {
	idx, _ := newTestIndex(t, t.TempDir())
	ctx := context.Background()

	_, err := idx.Upsert(ctx, chunksOf("first", "second", "third"))
	require.NoError(t, err)

	removed, err := idx.Reconcile(ctx, []string{"doc1:0", "doc1:2"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, idx.Size())
	assert.Equal(t, []string{"doc1:0", "doc1:2"}, idx.ChunkIDs())
}

func TestReconcileNoop(t *testing.T) {
	idx, _ := newTestIndex(t, t.TempDir())
	ctx := context.Background()

	_, err := idx.Upsert(ctx, chunksOf("first"))
	require.NoError(t, err)

	removed, err := idx.Reconcile(ctx, []string{"doc1:0"})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, emb := newTestIndex(t, dir)
	_, err := idx.Upsert(ctx, chunksOf("refund policy", "shipping times"))
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened, err := New(ctx, Config{Path: dir}, emb, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Size())

	// Unchanged content stays skipped after a restart.
	stats, err := reopened.Upsert(ctx, chunksOf("refund policy", "shipping times"))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Embedded)
	assert.Equal(t, 2, stats.Skipped)

	vec, err := emb.EmbedQuery(ctx, "refund policy")
	require.NoError(t, err)
	matches, err := reopened.Search(ctx, vec, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "refund policy", matches[0].Text)
}

func TestClosedIndexRejectsOperations(t *testing.T) {
	idx, _ := newTestIndex(t, t.TempDir())
	require.NoError(t, idx.Close())

	_, err := idx.Upsert(context.Background(), chunksOf("text"))
	require.ErrorIs(t, err, ErrClosed)

	_, err = idx.Search(context.Background(), []float32{1}, 1)
	require.ErrorIs(t, err, ErrClosed)

	_, err = idx.Reconcile(context.Background(), nil)
	require.ErrorIs(t, err, ErrClosed)

	require.NoError(t, idx.Close(), "double close is a no-op")
}
