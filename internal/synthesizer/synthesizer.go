// Package synthesizer turns retrieved chunks into a grounded answer.
package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/llm"
	"github.com/fyrsmithlabs/corpusd/internal/retriever"
)

// ErrInvalidConfig indicates invalid synthesizer configuration.
var ErrInvalidConfig = errors.New("invalid synthesizer configuration")

// DefaultContextBudget caps the total characters (runes, the same
// unit the chunker sizes chunks in) of chunk text placed in the
// prompt.
const DefaultContextBudget = 6000

const answerSystemPrompt = `You answer questions using only the provided context passages. Each passage is labeled with its source identifier. If the context does not contain the answer, say so plainly instead of guessing. Be concise.`

// Config holds configuration for the synthesizer.
type Config struct {
	// ContextBudget is the maximum characters of retrieved text placed
	// in a single prompt.
	ContextBudget int `koanf:"context_budget"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ContextBudget == 0 {
		c.ContextBudget = DefaultContextBudget
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.ContextBudget <= 0 {
		return fmt.Errorf("%w: context_budget must be positive, got %d", ErrInvalidConfig, c.ContextBudget)
	}
	return nil
}

// Answer is a synthesized response and the chunks that grounded it.
type Answer struct {
	Text          string
	CitedChunkIDs []string
}

// Synthesizer builds prompts from ranked chunks and calls the chat
// model.
type Synthesizer struct {
	client llm.Client
	budget int
	logger *zap.Logger
}

// New creates a Synthesizer backed by the given chat client.
func New(cfg Config, client llm.Client, logger *zap.Logger) (*Synthesizer, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: chat client is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Synthesizer{client: client, budget: cfg.ContextBudget, logger: logger}, nil
}

// Synthesize answers the query from the ranked results. Chunks are
// included in rank order until the context budget is spent; the
// top-ranked chunk always fits, truncated to the budget if it alone
// exceeds it. CitedChunkIDs lists the chunks that made it into the
// prompt, in rank order. The answer is all-or-nothing: any model
// failure returns an error and no partial text.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, results []retriever.Result) (*Answer, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no results to synthesize from", ErrInvalidConfig)
	}

	var blocks []string
	var cited []string
	remaining := s.budget
	for i, r := range results {
		text := r.Text
		// Budget counts runes, matching the chunker's size unit.
		size := utf8.RuneCountInString(text)
		if size > remaining {
			if i > 0 {
				break
			}
			// The best chunk always participates, cut to fit.
			text = truncateRunes(text, remaining)
			size = remaining
		}
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", r.ChunkID, text))
		cited = append(cited, r.ChunkID)
		remaining -= size
		if remaining <= 0 {
			break
		}
	}

	user := fmt.Sprintf("Context passages:\n\n%s\n\nQuestion: %s", strings.Join(blocks, "\n\n"), query)

	text, err := s.client.Complete(ctx, answerSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("answer synthesized",
		zap.Int("chunks_cited", len(cited)),
		zap.Int("prompt_chars", len(user)),
	)
	return &Answer{Text: text, CitedChunkIDs: cited}, nil
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
