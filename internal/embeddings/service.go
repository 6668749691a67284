// Package embeddings provides embedding generation via langchaingo.
//
// The service wraps the OpenAI-compatible embeddings API (OpenAI itself
// or any TEI-style server speaking the same protocol). Calls are rate
// limited and retried with bounded exponential backoff; rate-limit
// responses surface as ErrRateLimited so callers can distinguish them
// from other upstream failures.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")

	// ErrEmbeddingFailed indicates a transient upstream failure after
	// retries were exhausted.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrRateLimited indicates the provider rejected the call for quota
	// or rate reasons after backoff was exhausted.
	ErrRateLimited = errors.New("embedding provider rate limited")
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 1 * time.Second

	// Provider-side quotas are generous for embeddings; the local
	// limiter only smooths bursts during batch ingestion.
	defaultRateLimit = 5.0
	defaultBurst     = 10
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, one per
	// input in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config holds configuration for the embedding service.
type Config struct {
	// BaseURL overrides the API endpoint. Empty uses the OpenAI default.
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model, e.g. text-embedding-3-small.
	Model string `koanf:"model"`

	// APIKey authenticates against the provider.
	APIKey string `koanf:"api_key"`

	// Timeout is the per-call deadline.
	Timeout time.Duration `koanf:"timeout"`

	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int `koanf:"max_retries"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.APIKey == "" && c.BaseURL == "" {
		return fmt.Errorf("%w: api key required", ErrInvalidConfig)
	}
	return nil
}

// Service provides embedding generation with retry and rate limiting.
type Service struct {
	embedder   *lcembeddings.EmbedderImpl
	config     Config
	limiter    *rate.Limiter
	logger     *zap.Logger
	baseDelay  time.Duration
	maxRetries int
}

// NewService creates an embedding service with the given configuration.
func NewService(cfg Config, logger *zap.Logger) (*Service, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []openai.Option{
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Service{
		embedder:   embedder,
		config:     cfg,
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		logger:     logger,
		baseDelay:  defaultBaseBackoff,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	var vectors [][]float32
	err := s.withRetry(ctx, "embed_documents", func(callCtx context.Context) error {
		var callErr error
		vectors, callErr = s.embedder.EmbedDocuments(callCtx, texts)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	var vector []float32
	err := s.withRetry(ctx, "embed_query", func(callCtx context.Context) error {
		var callErr error
		vector, callErr = s.embedder.EmbedQuery(callCtx, text)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// withRetry runs fn under the rate limiter with a per-call timeout,
// retrying transient failures with exponential backoff up to the
// bounded attempt count.
func (s *Service) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.baseDelay * time.Duration(1<<(attempt-1))
			s.logger.Debug("retrying embedding call",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if isRateLimitError(lastErr) {
		return fmt.Errorf("%w: %v", ErrRateLimited, lastErr)
	}
	return fmt.Errorf("%w: %v", ErrEmbeddingFailed, lastErr)
}
