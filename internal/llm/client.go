// Package llm provides generation-model access via langchaingo.
//
// The client speaks to an OpenAI-compatible chat completion API. All
// calls carry a per-call timeout, go through a rate limiter, and are
// retried with bounded exponential backoff before a terminal error is
// surfaced.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid llm configuration")

	// ErrEmptyPrompt indicates an empty prompt.
	ErrEmptyPrompt = errors.New("empty prompt")

	// ErrGenerationFailed indicates an upstream failure after retries
	// were exhausted.
	ErrGenerationFailed = errors.New("answer generation failed")

	// ErrRateLimited indicates the provider rejected the call for quota
	// or rate reasons after backoff was exhausted.
	ErrRateLimited = errors.New("generation provider rate limited")
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 1 * time.Second

	// Low temperature keeps answers grounded in the provided context.
	defaultTemperature = 0.1

	defaultRateLimit = 1.0
	defaultBurst     = 5
)

// Client generates text from a system and a user prompt.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config holds configuration for the generation client.
type Config struct {
	// BaseURL overrides the API endpoint. Empty uses the OpenAI default.
	BaseURL string `koanf:"base_url"`

	// Model is the chat model, e.g. gpt-4o-mini.
	Model string `koanf:"model"`

	// APIKey authenticates against the provider.
	APIKey string `koanf:"api_key"`

	// Timeout is the per-call deadline.
	Timeout time.Duration `koanf:"timeout"`

	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int `koanf:"max_retries"`

	// Temperature controls sampling; zero value uses the default.
	Temperature float64 `koanf:"temperature"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.Temperature <= 0 {
		c.Temperature = defaultTemperature
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

// OpenAIClient implements Client against an OpenAI-compatible API.
type OpenAIClient struct {
	model      llms.Model
	config     Config
	limiter    *rate.Limiter
	logger     *zap.Logger
	baseDelay  time.Duration
	maxRetries int
}

// NewOpenAIClient creates a generation client with the given configuration.
func NewOpenAIClient(cfg Config, logger *zap.Logger) (*OpenAIClient, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	return &OpenAIClient{
		model:      model,
		config:     cfg,
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		logger:     logger,
		baseDelay:  defaultBaseBackoff,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Complete generates a completion for the system and user prompts.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	if strings.TrimSpace(user) == "" {
		return "", ErrEmptyPrompt
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, user),
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * time.Duration(1<<(attempt-1))
			c.logger.Debug("retrying generation call",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		resp, err := c.model.GenerateContent(callCtx, messages,
			llms.WithTemperature(c.config.Temperature),
		)
		cancel()
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("%w: empty response", ErrGenerationFailed)
			}
			return resp.Choices[0].Content, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	if isRateLimitError(lastErr) {
		return "", fmt.Errorf("%w: %v", ErrRateLimited, lastErr)
	}
	return "", fmt.Errorf("%w: %v", ErrGenerationFailed, lastErr)
}

// rateLimitMarkers are substrings the OpenAI-compatible providers put in
// quota and rate-limit error bodies.
var rateLimitMarkers = []string{
	"429",
	"rate limit",
	"rate_limit",
	"insufficient_quota",
	"exceeded your current quota",
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
