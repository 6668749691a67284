package index

import (
	"context"
	"errors"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// Collection is the collection name.
	Collection string `koanf:"collection"`
}

// chromemStore implements Store on chromem-go, an embedded vector
// database persisting to gob files. No external service is needed and
// data survives process restarts, which is what makes it the default
// backend: embeddings are never recomputed just because the process
// bounced.
type chromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger
}

// newChromemStore opens (or creates) the persistent database and
// collection at cfg.Path.
func newChromemStore(cfg ChromemConfig, logger *zap.Logger) (*chromemStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: storage path required", ErrInvalidConfig)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: collection required", ErrInvalidConfig)
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory %s: %w", cfg.Path, err)
	}

	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem DB: %w", err)
	}

	// All vectors are precomputed by the indexer; chromem must never
	// fall back to its own default embedder.
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", cfg.Collection, err)
	}

	logger.Info("chromem index opened",
		zap.String("path", cfg.Path),
		zap.String("collection", cfg.Collection),
		zap.Int("entries", collection.Count()),
	)

	return &chromemStore{db: db, collection: collection, logger: logger}, nil
}

// rejectEmbedding is the chromem embedding function for collections
// whose vectors are always supplied by the caller.
func rejectEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("index stores precomputed embeddings only")
}

func (s *chromemStore) Add(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(items))
	for i, item := range items {
		docs[i] = chromem.Document{
			ID:        item.ID,
			Content:   item.Text,
			Metadata:  item.Metadata,
			Embedding: item.Vector,
		}
	}

	// Concurrency of 1: embeddings already exist, the add is pure I/O.
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	return nil
}

func (s *chromemStore) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	count := s.collection.Count()
	if count == 0 {
		return []Hit{}, nil
	}
	// chromem requires nResults <= stored document count.
	if k > count {
		k = count
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			ID:       r.ID,
			Text:     r.Content,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		}
	}
	return hits, nil
}

func (s *chromemStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
}

func (s *chromemStore) Count(ctx context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Close is a no-op: chromem persists on every write.
func (s *chromemStore) Close() error {
	return nil
}

var _ Store = (*chromemStore)(nil)
