package ingest

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/corpus"
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

func newTestService(t *testing.T, corpusDir string) (*Service, *index.Index) {
	t.Helper()
	idx, err := index.New(context.Background(), index.Config{Path: t.TempDir()}, hashEmbedder{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	ch, err := chunker.New(100, 20)
	require.NoError(t, err)

	loader := corpus.NewLoader(corpusDir, zap.NewNop())
	return NewService(loader, ch, idx, zap.NewNop()), idx
}

func writeCorpusFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestRunIndexesCorpus(t *testing.T) {
	dir := t.TempDir()
	writeCorpusFile(t, dir, "refunds.txt", "Refunds are accepted within 30 days of purchase.")
	writeCorpusFile(t, dir, "shipping.md", "Standard shipping takes 5 business days.")

	svc, idx := newTestService(t, dir)
	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Documents)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 2, report.Chunks)
	assert.Equal(t, 2, report.Embedded)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 0, report.Removed)
	assert.Equal(t, 2, idx.Size())
}

func TestRunSecondPassSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeCorpusFile(t, dir, "refunds.txt", "Refunds are accepted within 30 days of purchase.")

	svc, _ := newTestService(t, dir)
	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Embedded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Removed)
}

func TestRunReembedsModifiedFile(t *testing.T) {
	dir := t.TempDir()
	writeCorpusFile(t, dir, "refunds.txt", "Refunds are accepted within 30 days.")

	svc, _ := newTestService(t, dir)
	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	writeCorpusFile(t, dir, "refunds.txt", "Refunds are accepted within 60 days.")
	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Embedded)
	assert.Equal(t, 0, report.Skipped)
}

func TestRunRemovesDeletedFile(t *testing.T) {
	dir := t.TempDir()
	writeCorpusFile(t, dir, "refunds.txt", "Refunds are accepted within 30 days.")
	writeCorpusFile(t, dir, "shipping.txt", "Shipping takes 5 days.")

	svc, idx := newTestService(t, dir)
	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, idx.Size())

	require.NoError(t, os.Remove(filepath.Join(dir, "shipping.txt")))
	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 1, idx.Size())
}

func TestRunKeepsChunksOfFailedDocuments(t *testing.T) {
	dir := t.TempDir()
	writeCorpusFile(t, dir, "refunds.txt", "Refunds are accepted within 30 days.")

	svc, idx := newTestService(t, dir)
	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, idx.Size())

	// The file turns binary, so loading fails; its indexed chunks must
	// survive until it loads again.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "refunds.txt"), []byte{0x00, 0x01}, 0o644))
	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 0, report.Removed)
	assert.Equal(t, 1, idx.Size())
}

func TestRunMissingCorpusRoot(t *testing.T) {
	svc, _ := newTestService(t, filepath.Join(t.TempDir(), "missing"))
	_, err := svc.Run(context.Background())
	require.ErrorIs(t, err, corpus.ErrCorpusNotFound)
}
