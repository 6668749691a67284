// Package index maintains the durable vector index: one embedding per
// live corpus chunk, persisted across process restarts, with
// nearest-neighbor search over the stored vectors.
package index

import (
	"context"
	"errors"
)

// Sentinel errors for index operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid index configuration")

	// ErrBackendUnavailable indicates the backing store cannot be reached.
	ErrBackendUnavailable = errors.New("index backend unavailable")

	// ErrClosed is returned after the index has been closed.
	ErrClosed = errors.New("index is closed")
)

// Item is an embedded chunk queued for storage.
type Item struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata map[string]string
}

// Hit is a raw nearest-neighbor match from a backend store.
type Hit struct {
	ID       string
	Text     string
	Score    float32
	Metadata map[string]string
}

// Store is the backend persistence interface. Implementations hold
// vectors keyed by chunk ID and search them by cosine similarity.
// Backends do not order equal-score hits; the Index layer applies the
// chunk-creation tie-break on top.
type Store interface {
	// Add writes items, replacing any existing entry with the same ID.
	Add(ctx context.Context, items []Item) error

	// Query returns up to k nearest neighbors ordered by descending
	// similarity. An empty store yields an empty slice, not an error.
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)

	// Delete removes entries by ID. Missing IDs are not an error.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
