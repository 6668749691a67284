// Package config loads and validates corpusd configuration from YAML
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/index"
	"github.com/fyrsmithlabs/corpusd/internal/llm"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/retriever"
	"github.com/fyrsmithlabs/corpusd/internal/synthesizer"
)

// envPrefix namespaces environment overrides. A double underscore
// separates nesting levels so keys like retrieval.top_k stay
// addressable: CORPUSD_PROVIDER__API_KEY, CORPUSD_RETRIEVAL__TOP_K.
const envPrefix = "CORPUSD_"

// ErrInvalidConfig indicates the assembled configuration is unusable.
var ErrInvalidConfig = errors.New("invalid configuration")

// ProviderConfig holds the shared model-provider settings. The chat
// and embedding clients both derive from it.
type ProviderConfig struct {
	APIKey         string `koanf:"api_key"`
	BaseURL        string `koanf:"base_url"`
	ChatModel      string `koanf:"chat_model"`
	EmbeddingModel string `koanf:"embedding_model"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
	MaxRetries     int    `koanf:"max_retries"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ProviderConfig) ApplyDefaults() {
	if c.ChatModel == "" {
		c.ChatModel = "gpt-4o-mini"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-small"
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate validates the provider settings.
func (c ProviderConfig) Validate() error {
	if c.APIKey == "" && c.BaseURL == "" {
		return fmt.Errorf("%w: provider.api_key or provider.base_url is required", ErrInvalidConfig)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: provider.timeout_seconds must be positive", ErrInvalidConfig)
	}
	return nil
}

// CorpusConfig locates the document corpus.
type CorpusConfig struct {
	Path string `koanf:"path"`
}

// ChunkingConfig holds chunker parameters.
type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// RetrievalConfig holds retrieval and synthesis parameters.
type RetrievalConfig struct {
	TopK          int `koanf:"top_k"`
	ContextBudget int `koanf:"context_budget"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Config is the full corpusd configuration tree.
type Config struct {
	Provider  ProviderConfig  `koanf:"provider"`
	Corpus    CorpusConfig    `koanf:"corpus"`
	Chunking  ChunkingConfig  `koanf:"chunking"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Index     index.Config    `koanf:"index"`
	Server    ServerConfig    `koanf:"server"`
	Logging   logging.Config  `koanf:"logging"`
}

// ApplyDefaults sets default values throughout the tree.
func (c *Config) ApplyDefaults() {
	c.Provider.ApplyDefaults()
	if c.Corpus.Path == "" {
		c.Corpus.Path = "./data"
	}
	if c.Chunking.Size == 0 {
		c.Chunking.Size = 500
	}
	if c.Chunking.Overlap == 0 {
		c.Chunking.Overlap = 50
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = retriever.DefaultTopK
	}
	if c.Retrieval.ContextBudget == 0 {
		c.Retrieval.ContextBudget = synthesizer.DefaultContextBudget
	}
	if c.Index.Path == "" {
		c.Index.Path = "./index"
	}
	c.Index.ApplyDefaults()
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9090
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	c.Logging.ApplyDefaults()
}

// Validate validates the tree.
func (c Config) Validate() error {
	if err := c.Provider.Validate(); err != nil {
		return err
	}
	if c.Corpus.Path == "" {
		return fmt.Errorf("%w: corpus.path is required", ErrInvalidConfig)
	}
	if c.Chunking.Size <= 0 || c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: chunking requires 0 <= overlap < size", ErrInvalidConfig)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval.top_k must be positive", ErrInvalidConfig)
	}
	if c.Retrieval.ContextBudget <= 0 {
		return fmt.Errorf("%w: retrieval.context_budget must be positive", ErrInvalidConfig)
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port out of range", ErrInvalidConfig)
	}
	return c.Logging.Validate()
}

// Load reads configuration from an optional YAML file, applies
// environment overrides, then defaults, then validates. An empty path
// means env and defaults only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidConfig, path, err)
		}
		if err := k.Load(rawbytes.Provider(raw), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("%w: reading environment: %v", ErrInvalidConfig, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EmbeddingsConfig derives the embedding-client configuration.
func (c Config) EmbeddingsConfig() embeddings.Config {
	return embeddings.Config{
		APIKey:     c.Provider.APIKey,
		BaseURL:    c.Provider.BaseURL,
		Model:      c.Provider.EmbeddingModel,
		Timeout:    time.Duration(c.Provider.TimeoutSeconds) * time.Second,
		MaxRetries: c.Provider.MaxRetries,
	}
}

// LLMConfig derives the chat-client configuration.
func (c Config) LLMConfig() llm.Config {
	return llm.Config{
		APIKey:     c.Provider.APIKey,
		BaseURL:    c.Provider.BaseURL,
		Model:      c.Provider.ChatModel,
		Timeout:    time.Duration(c.Provider.TimeoutSeconds) * time.Second,
		MaxRetries: c.Provider.MaxRetries,
	}
}

// RetrieverConfig derives the retriever configuration.
func (c Config) RetrieverConfig() retriever.Config {
	return retriever.Config{TopK: c.Retrieval.TopK}
}

// SynthesizerConfig derives the synthesizer configuration.
func (c Config) SynthesizerConfig() synthesizer.Config {
	return synthesizer.Config{ContextBudget: c.Retrieval.ContextBudget}
}
