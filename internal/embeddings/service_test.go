package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{APIKey: "k"}
	cfg.ApplyDefaults()
	assert.Equal(t, "text-embedding-3-small", cfg.Model)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.APIKey = "k"
	require.NoError(t, cfg.Validate())
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	_, err := NewService(Config{}, zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewService(t *testing.T) {
	svc, err := NewService(Config{APIKey: "test-key"}, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestEmbedDocumentsEmptyInput(t *testing.T) {
	svc, err := NewService(Config{APIKey: "test-key"}, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = svc.EmbedQuery(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status code", errors.New("API returned unexpected status code: 429"), true},
		{"quota string", errors.New("You exceeded your current quota, please check your plan"), true},
		{"insufficient quota", errors.New("error code: insufficient_quota"), true},
		{"rate limit words", errors.New("Rate limit reached for requests"), true},
		{"unrelated", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRateLimitError(tt.err))
		})
	}
}
