package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
)

var tracer = otel.Tracer("corpusd.index")

// Config holds configuration for the vector index.
type Config struct {
	// Backend selects the store: "chromem" (embedded, default) or
	// "qdrant" (external gRPC service).
	Backend string `koanf:"backend"`

	// Path is the local state directory. The manifest always lives
	// here; the chromem backend also keeps its vector data here.
	Path string `koanf:"path"`

	// Collection names the vector collection.
	Collection string `koanf:"collection"`

	// Compress enables gzip compression for the chromem backend.
	Compress bool `koanf:"compress"`

	// VectorSize is the embedding dimensionality, required by the
	// qdrant backend at collection creation.
	VectorSize uint64 `koanf:"vector_size"`

	// Qdrant configures the qdrant backend.
	Qdrant QdrantBackendConfig `koanf:"qdrant"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = "chromem"
	}
	if c.Collection == "" {
		c.Collection = "corpusd_chunks"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 1536
	}
	c.Qdrant.ApplyDefaults()
}

// Validate validates the configuration.
func (c Config) Validate() error {
	switch c.Backend {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("%w: state path required", ErrInvalidConfig)
	}
	return nil
}

// Match is a search result mapped back to corpus identity.
type Match struct {
	ChunkID    string
	DocumentID string
	Text       string
	Score      float32
}

// UpsertStats reports what an Upsert call actually did.
type UpsertStats struct {
	Embedded int
	Skipped  int
}

// Index owns the embeddings for the live corpus. Readers (search) run
// concurrently; Upsert and Reconcile take the exclusive write phase.
// Embedding-model calls happen outside any lock so retrieval keeps
// serving the last consistent snapshot while a batch embeds.
type Index struct {
	mu       sync.RWMutex
	store    Store
	embedder embeddings.Embedder
	manifest *manifest
	logger   *zap.Logger
	closed   bool
}

// New creates an Index with the configured backend.
func New(ctx context.Context, cfg Config, embedder embeddings.Embedder, logger *zap.Logger) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var store Store
	var err error
	switch cfg.Backend {
	case "chromem":
		store, err = newChromemStore(ChromemConfig{
			Path:       cfg.Path,
			Compress:   cfg.Compress,
			Collection: cfg.Collection,
		}, logger)
	case "qdrant":
		qcfg := cfg.Qdrant
		if qcfg.Collection == "" {
			qcfg.Collection = cfg.Collection
		}
		if qcfg.VectorSize == 0 {
			qcfg.VectorSize = cfg.VectorSize
		}
		store, err = newQdrantStore(ctx, qcfg, logger)
	}
	if err != nil {
		return nil, err
	}

	m, err := loadManifest(cfg.Path)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Index{
		store:    store,
		embedder: embedder,
		manifest: m,
		logger:   logger,
	}, nil
}

// Embed computes the embedding for a single query text.
func (ix *Index) Embed(ctx context.Context, text string) ([]float32, error) {
	return ix.embedder.EmbedQuery(ctx, text)
}

// Upsert embeds and stores every chunk whose text the index has not
// seen; chunks with an unchanged text hash are skipped without an
// embedding call.
func (ix *Index) Upsert(ctx context.Context, chunks []chunker.Chunk) (*UpsertStats, error) {
	ctx, span := tracer.Start(ctx, "Index.Upsert")
	defer span.End()
	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	stats := &UpsertStats{}

	// Diff against the manifest under the read lock.
	ix.mu.RLock()
	if ix.closed {
		ix.mu.RUnlock()
		return nil, ErrClosed
	}
	var pending []chunker.Chunk
	var hashes []string
	for _, c := range chunks {
		h := textHash(c.Text)
		if entry, ok := ix.manifest.Entries[c.ID]; ok && entry.TextHash == h {
			stats.Skipped++
			continue
		}
		pending = append(pending, c)
		hashes = append(hashes, h)
	}
	ix.mu.RUnlock()

	if len(pending) == 0 {
		span.SetStatus(codes.Ok, "nothing to embed")
		return stats, nil
	}

	// Embed outside any lock; this is the slow, remote part.
	texts := make([]string, len(pending))
	for i, c := range pending {
		texts[i] = c.Text
	}
	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	items := make([]Item, len(pending))
	for i, c := range pending {
		metadata := map[string]string{
			"document_id": c.DocumentID,
			"seq":         strconv.Itoa(c.Seq),
		}
		if c.Title != "" {
			metadata["title"] = c.Title
		}
		items[i] = Item{
			ID:       c.ID,
			Text:     c.Text,
			Vector:   vectors[i],
			Metadata: metadata,
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil, ErrClosed
	}

	if err := ix.store.Add(ctx, items); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	for i, c := range pending {
		ix.manifest.record(c.ID, c.DocumentID, c.Seq, hashes[i])
	}
	if err := ix.manifest.save(); err != nil {
		return nil, err
	}

	stats.Embedded = len(pending)
	span.SetAttributes(
		attribute.Int("embedded", stats.Embedded),
		attribute.Int("skipped", stats.Skipped),
	)
	span.SetStatus(codes.Ok, "success")

	ix.logger.Info("index upsert complete",
		zap.Int("embedded", stats.Embedded),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

// Reconcile deletes index entries whose chunk ID is not in the live
// set, restoring the one-embedding-per-live-chunk invariant. Returns
// the number of entries removed.
func (ix *Index) Reconcile(ctx context.Context, liveIDs []string) (int, error) {
	ctx, span := tracer.Start(ctx, "Index.Reconcile")
	defer span.End()

	live := make(map[string]bool, len(liveIDs))
	for _, id := range liveIDs {
		live[id] = true
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return 0, ErrClosed
	}

	stale := ix.manifest.stale(live)
	if len(stale) == 0 {
		span.SetStatus(codes.Ok, "nothing stale")
		return 0, nil
	}

	if err := ix.store.Delete(ctx, stale); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	for _, id := range stale {
		delete(ix.manifest.Entries, id)
	}
	if err := ix.manifest.save(); err != nil {
		return 0, err
	}

	span.SetAttributes(attribute.Int("removed", len(stale)))
	span.SetStatus(codes.Ok, "success")

	ix.logger.Info("index reconciled", zap.Int("removed", len(stale)))
	return len(stale), nil
}

// Search returns up to k nearest matches for the query vector, ordered
// by descending similarity. Equal scores break by chunk creation order
// (earlier chunk first) so identical inputs always produce identical
// output. An empty index yields an empty slice.
func (ix *Index) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	ctx, span := tracer.Start(ctx, "Index.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidConfig, k)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, ErrClosed
	}

	if len(ix.manifest.Entries) == 0 {
		return []Match{}, nil
	}

	hits, err := ix.store.Query(ctx, vector, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	type ranked struct {
		match   Match
		ordinal int64
	}
	results := make([]ranked, 0, len(hits))
	for _, hit := range hits {
		entry, ok := ix.manifest.Entries[hit.ID]
		if !ok {
			// The backend returned a row the manifest no longer tracks;
			// it is stale by definition and excluded from results.
			continue
		}
		results = append(results, ranked{
			match: Match{
				ChunkID:    hit.ID,
				DocumentID: entry.DocumentID,
				Text:       hit.Text,
				Score:      hit.Score,
			},
			ordinal: entry.Ordinal,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].match.Score != results[j].match.Score {
			return results[i].match.Score > results[j].match.Score
		}
		return results[i].ordinal < results[j].ordinal
	})

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = r.match
	}

	span.SetAttributes(attribute.Int("results", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Size returns the number of live chunks in the index.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.manifest.Entries)
}

// ChunkIDs returns the live chunk IDs tracked by the manifest.
func (ix *Index) ChunkIDs() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ids := make([]string, 0, len(ix.manifest.Entries))
	for id := range ix.manifest.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close releases the backing store. Further operations return ErrClosed.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	return ix.store.Close()
}

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
