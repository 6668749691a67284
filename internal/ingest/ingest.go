// Package ingest walks the corpus, chunks it, and brings the vector
// index in line with what is on disk.
package ingest

import (
	"context"
	"errors"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/corpus"
	"github.com/fyrsmithlabs/corpusd/internal/index"
)

var tracer = otel.Tracer("corpusd.ingest")

// ErrIngestInProgress indicates an ingestion run is already active for
// this service.
var ErrIngestInProgress = errors.New("ingestion already in progress")

// Report summarizes a completed ingestion run.
type Report struct {
	Documents int
	Failures  []corpus.LoadFailure
	Chunks    int
	Embedded  int
	Skipped   int
	Removed   int
}

// Service runs end-to-end ingestion: load, chunk, upsert, reconcile.
// At most one run executes at a time.
type Service struct {
	loader  *corpus.Loader
	chunker *chunker.Chunker
	index   *index.Index
	logger  *zap.Logger

	running atomic.Bool
}

// NewService creates an ingestion Service.
func NewService(loader *corpus.Loader, ch *chunker.Chunker, idx *index.Index, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{loader: loader, chunker: ch, index: idx, logger: logger}
}

// Run performs one full ingestion pass. A second call while a pass is
// active returns ErrIngestInProgress. Per-document load failures are
// reported, not fatal; they leave the failed document's previous index
// state untouched.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrIngestInProgress
	}
	defer s.running.Store(false)

	ctx, span := tracer.Start(ctx, "Ingest.Run")
	defer span.End()

	docs, failures, err := s.loader.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report := &Report{Documents: len(docs), Failures: failures}

	var all []chunker.Chunk
	for _, doc := range docs {
		all = append(all, s.chunker.Chunk(doc)...)
	}
	report.Chunks = len(all)

	stats, err := s.index.Upsert(ctx, all)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	report.Embedded = stats.Embedded
	report.Skipped = stats.Skipped

	// A document that failed to load contributes no live chunks this
	// pass; reconciling on the full live set would drop its previous
	// chunks. Keep chunk IDs for failed documents alive instead.
	liveIDs := make([]string, 0, len(all))
	for _, c := range all {
		liveIDs = append(liveIDs, c.ID)
	}
	if len(failures) > 0 {
		failed := make(map[string]bool, len(failures))
		for _, f := range failures {
			failed[corpus.DocumentID(f.Path)] = true
		}
		for _, id := range s.index.ChunkIDs() {
			docID, ok := chunker.ParseDocumentID(id)
			if ok && failed[docID] {
				liveIDs = append(liveIDs, id)
			}
		}
	}

	removed, err := s.index.Reconcile(ctx, liveIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	report.Removed = removed

	span.SetAttributes(
		attribute.Int("documents", report.Documents),
		attribute.Int("chunks", report.Chunks),
		attribute.Int("embedded", report.Embedded),
		attribute.Int("skipped", report.Skipped),
		attribute.Int("removed", report.Removed),
		attribute.Int("failures", len(report.Failures)),
	)
	span.SetStatus(codes.Ok, "success")

	s.logger.Info("ingestion complete",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("embedded", report.Embedded),
		zap.Int("skipped", report.Skipped),
		zap.Int("removed", report.Removed),
		zap.Int("failures", len(report.Failures)),
	)
	return report, nil
}
