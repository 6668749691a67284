package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadMissingRoot(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "nope"), zap.NewNop())
	_, _, err := l.Load(context.Background())
	require.ErrorIs(t, err, ErrCorpusNotFound)
}

func TestLoadRootIsFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file.txt", "content")
	l := NewLoader(filepath.Join(root, "file.txt"), zap.NewNop())
	_, _, err := l.Load(context.Background())
	require.ErrorIs(t, err, ErrCorpusNotFound)
}

func TestLoadCollectsSupportedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "faq.md", "# FAQ\n\nRefunds take 5 days.")
	writeFile(t, root, "policies/returns.txt", "Returns accepted within 30 days.")
	writeFile(t, root, "ignore.exe", "binary-ish")
	writeFile(t, root, ".hidden/secret.txt", "should not load")

	l := NewLoader(root, zap.NewNop())
	docs, failures, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, docs, 2)

	// Sorted by source path.
	assert.Equal(t, "faq.md", docs[0].SourcePath)
	assert.Equal(t, "policies/returns.txt", docs[1].SourcePath)
	assert.Equal(t, "faq", docs[0].Title)
	assert.Equal(t, "returns", docs[1].Title)
	assert.Contains(t, docs[0].Text, "Refunds")
}

func TestLoadReportsPerFileFailures(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.txt", "fine")
	// NUL bytes make the file binary, which is a load failure.
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.txt"), []byte{0x00, 0x01, 0x02}, 0o644))

	l := NewLoader(root, zap.NewNop())
	docs, failures, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Len(t, failures, 1)
	assert.Equal(t, "bad.txt", failures[0].Path)
	assert.Error(t, failures[0].Err)
}

func TestDocumentIDStable(t *testing.T) {
	id1 := DocumentID("policies/returns.txt")
	id2 := DocumentID("policies/returns.txt")
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 16)
	assert.NotEqual(t, id1, DocumentID("policies/other.txt"))

	// Path separators normalize, so IDs match across platforms.
	assert.Equal(t, id1, DocumentID(filepath.FromSlash("policies/returns.txt")))
}

func TestLoadCanceledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "content")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewLoader(root, zap.NewNop())
	_, _, err := l.Load(ctx)
	require.Error(t, err)
}
