// Package retriever maps question embeddings to the most relevant
// corpus chunks.
package retriever

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/index"
)

// ErrInvalidConfig indicates invalid retriever configuration.
var ErrInvalidConfig = errors.New("invalid retriever configuration")

// DefaultTopK is the number of chunks retrieved per question when the
// configuration does not say otherwise.
const DefaultTopK = 5

// Config holds configuration for the retriever.
type Config struct {
	// TopK is the maximum number of chunks returned per query.
	TopK int `koanf:"top_k"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK == 0 {
		c.TopK = DefaultTopK
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, c.TopK)
	}
	return nil
}

// Result is one retrieved chunk, ranked by similarity to the query.
type Result struct {
	ChunkID    string
	DocumentID string
	Text       string
	Score      float32
}

// Retriever runs similarity search over the index.
type Retriever struct {
	index  *index.Index
	topK   int
	logger *zap.Logger
}

// New creates a Retriever over the given index.
func New(cfg Config, idx *index.Index, logger *zap.Logger) (*Retriever, error) {
	if idx == nil {
		return nil, fmt.Errorf("%w: index is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Retriever{index: idx, topK: cfg.TopK, logger: logger}, nil
}

// Retrieve returns up to TopK chunks nearest the query vector, ordered
// by descending score. An empty index yields an empty slice, never an
// error.
func (r *Retriever) Retrieve(ctx context.Context, vector []float32) ([]Result, error) {
	matches, err := r.index.Search(ctx, vector, r.topK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			ChunkID:    m.ChunkID,
			DocumentID: m.DocumentID,
			Text:       m.Text,
			Score:      m.Score,
		}
	}

	r.logger.Debug("retrieval complete",
		zap.Int("requested", r.topK),
		zap.Int("returned", len(results)),
	)
	return results, nil
}
