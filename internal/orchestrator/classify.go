package orchestrator

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/corpus"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/index"
	"github.com/fyrsmithlabs/corpusd/internal/llm"
	"github.com/fyrsmithlabs/corpusd/internal/retriever"
	"github.com/fyrsmithlabs/corpusd/internal/synthesizer"
)

// Class sorts failures by how the caller should react.
type Class int

const (
	// ClassInternal covers unexpected failures; retrying may or may
	// not help.
	ClassInternal Class = iota

	// ClassTransient covers failures that a later retry can clear,
	// such as rate limits, timeouts, or an unreachable backend.
	ClassTransient

	// ClassConfig covers operator mistakes that retrying cannot fix.
	ClassConfig
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassConfig:
		return "config"
	default:
		return "internal"
	}
}

// Classify maps a pipeline error to its failure class by walking the
// wrap chain.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, embeddings.ErrRateLimited),
		errors.Is(err, llm.ErrRateLimited),
		errors.Is(err, embeddings.ErrEmbeddingFailed),
		errors.Is(err, llm.ErrGenerationFailed),
		errors.Is(err, index.ErrBackendUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return ClassTransient
	case errors.Is(err, embeddings.ErrInvalidConfig),
		errors.Is(err, llm.ErrInvalidConfig),
		errors.Is(err, index.ErrInvalidConfig),
		errors.Is(err, chunker.ErrInvalidConfig),
		errors.Is(err, retriever.ErrInvalidConfig),
		errors.Is(err, synthesizer.ErrInvalidConfig),
		errors.Is(err, corpus.ErrCorpusNotFound),
		errors.Is(err, ErrEmptyQuestion):
		return ClassConfig
	default:
		return ClassInternal
	}
}
