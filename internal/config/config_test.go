package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CORPUSD_PROVIDER__API_KEY", "test-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Provider.ChatModel)
	assert.Equal(t, "text-embedding-3-small", cfg.Provider.EmbeddingModel)
	assert.Equal(t, 60, cfg.Provider.TimeoutSeconds)
	assert.Equal(t, 3, cfg.Provider.MaxRetries)
	assert.Equal(t, "./data", cfg.Corpus.Path)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 6000, cfg.Retrieval.ContextBudget)
	assert.Equal(t, "chromem", cfg.Index.Backend)
	assert.Equal(t, "corpusd_chunks", cfg.Index.Collection)
	assert.Equal(t, uint64(1536), cfg.Index.VectorSize)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeConfig(t, `
provider:
  api_key: yaml-key
  chat_model: gpt-4o
corpus:
  path: /srv/docs
chunking:
  size: 800
  overlap: 100
retrieval:
  top_k: 10
index:
  backend: qdrant
  path: /var/lib/corpusd
  qdrant:
    host: qdrant.internal
    port: 6334
server:
  port: 8080
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "yaml-key", cfg.Provider.APIKey)
	assert.Equal(t, "gpt-4o", cfg.Provider.ChatModel)
	assert.Equal(t, "/srv/docs", cfg.Corpus.Path)
	assert.Equal(t, 800, cfg.Chunking.Size)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.Equal(t, "qdrant", cfg.Index.Backend)
	assert.Equal(t, "qdrant.internal", cfg.Index.Qdrant.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
provider:
  api_key: yaml-key
retrieval:
  top_k: 3
`)
	t.Setenv("CORPUSD_PROVIDER__API_KEY", "env-key")
	t.Setenv("CORPUSD_RETRIEVAL__TOP_K", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Provider.APIKey)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no provider credentials", `corpus: {path: ./data}`},
		{"bad chunking", "provider: {api_key: k}\nchunking: {size: 100, overlap: 100}"},
		{"bad top_k", "provider: {api_key: k}\nretrieval: {top_k: -1}"},
		{"bad backend", "provider: {api_key: k}\nindex: {backend: weaviate}"},
		{"bad port", "provider: {api_key: k}\nserver: {port: 99999}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
		})
	}
}
