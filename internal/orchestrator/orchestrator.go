// Package orchestrator runs the ask pipeline: rewrite, embed,
// retrieve, synthesize, record.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/normalize"
	"github.com/fyrsmithlabs/corpusd/internal/retriever"
	"github.com/fyrsmithlabs/corpusd/internal/session"
	"github.com/fyrsmithlabs/corpusd/internal/synthesizer"
)

var tracer = otel.Tracer("corpusd.orchestrator")

// ErrEmptyQuestion indicates a blank question after normalization.
var ErrEmptyQuestion = errors.New("question is empty")

// NoMatchAnswer is returned verbatim when retrieval finds nothing; no
// model call is made in that case.
const NoMatchAnswer = "No matching documents were found in the corpus."

// Embedder is the query-embedding dependency of the pipeline.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever is the similarity-search dependency of the pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, vector []float32) ([]retriever.Result, error)
}

// Rewriter turns a follow-up question into a standalone query.
type Rewriter interface {
	Rewrite(ctx context.Context, sess *session.Session, question string) (string, error)
}

// Synthesizer produces the final grounded answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, results []retriever.Result) (*synthesizer.Answer, error)
}

// Orchestrator coordinates one conversation turn end to end. Turns on
// the same session run one at a time; turns on different sessions run
// concurrently.
type Orchestrator struct {
	embedder    Embedder
	retriever   Retriever
	rewriter    Rewriter
	synthesizer Synthesizer
	logger      *zap.Logger
}

// New creates an Orchestrator from its pipeline stages.
func New(embedder Embedder, ret Retriever, rew Rewriter, syn Synthesizer, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		embedder:    embedder,
		retriever:   ret,
		rewriter:    rew,
		synthesizer: syn,
		logger:      logger,
	}
}

// HandleTurn answers one question within a session. On success the
// completed turn is appended to the session; on any failure the
// session is left exactly as it was.
func (o *Orchestrator) HandleTurn(ctx context.Context, sess *session.Session, question string) (session.Turn, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.HandleTurn")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sess.ID()))

	sess.BeginTurn()
	defer sess.EndTurn()

	question = strings.TrimSpace(normalize.NormalizeText(question))
	if question == "" {
		return session.Turn{}, ErrEmptyQuestion
	}

	query, err := o.rewriter.Rewrite(ctx, sess, question)
	if err != nil {
		return session.Turn{}, o.fail(span, "rewrite question", err)
	}

	vector, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return session.Turn{}, o.fail(span, "embed query", err)
	}

	results, err := o.retriever.Retrieve(ctx, vector)
	if err != nil {
		return session.Turn{}, o.fail(span, "retrieve chunks", err)
	}

	turn := session.Turn{
		Question:       question,
		RewrittenQuery: query,
	}

	if len(results) == 0 {
		turn.Answer = NoMatchAnswer
		turn = sess.Append(turn)
		span.SetStatus(codes.Ok, "no matches")
		o.logger.Info("turn answered without matches",
			zap.String("session_id", sess.ID()),
			zap.Int("turn", turn.Index),
		)
		return turn, nil
	}

	answer, err := o.synthesizer.Synthesize(ctx, query, results)
	if err != nil {
		return session.Turn{}, o.fail(span, "synthesize answer", err)
	}

	turn.RetrievedChunkIDs = make([]string, len(results))
	for i, r := range results {
		turn.RetrievedChunkIDs[i] = r.ChunkID
	}
	turn.Answer = answer.Text
	turn = sess.Append(turn)

	span.SetAttributes(attribute.Int("retrieved", len(results)))
	span.SetStatus(codes.Ok, "success")
	o.logger.Info("turn answered",
		zap.String("session_id", sess.ID()),
		zap.Int("turn", turn.Index),
		zap.Int("retrieved", len(results)),
	)
	return turn, nil
}

func (o *Orchestrator) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("%s: %w", op, err)
}
