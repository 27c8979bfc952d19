package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_TEI(t *testing.T) {
	tests := []struct {
		name          string
		model         string
		wantDimension int
	}{
		{name: "bge small", model: "BAAI/bge-small-en-v1.5", wantDimension: 384},
		{name: "bge base", model: "BAAI/bge-base-en-v1.5", wantDimension: 768},
		{name: "minilm", model: "sentence-transformers/all-MiniLM-L6-v2", wantDimension: 384},
		{name: "unknown large", model: "custom-large-model", wantDimension: 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(ProviderConfig{
				Provider: "tei",
				Model:    tt.model,
				BaseURL:  "http://localhost:8080",
			})
			require.NoError(t, err)
			defer provider.Close()

			assert.Equal(t, tt.wantDimension, provider.Dimension())
		})
	}
}

func TestNewProvider_DefaultsToTEI(t *testing.T) {
	provider, err := NewProvider(ProviderConfig{
		Model:   "BAAI/bge-small-en-v1.5",
		BaseURL: "http://localhost:8080",
	})
	require.NoError(t, err)
	defer provider.Close()

	_, ok := provider.(*teiProvider)
	assert.True(t, ok)
}

func TestNewProvider_TEIRequiresBaseURL(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Provider: "tei", Model: "BAAI/bge-small-en-v1.5"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Provider: "openai"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "openai")
}

func TestDetectDimensionFromModel(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"BAAI/bge-small-en-v1.5", 384},
		{"BAAI/bge-base-en-v1.5", 768},
		{"BAAI/bge-small-zh-v1.5", 512},
		{"fast-all-MiniLM-L6-v2", 384},
		{"custom-base-model", 768},
		{"custom-large-model", 1024},
		{"custom-mini-model", 384},
		{"something-else", 384},
		{"", 384},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, detectDimensionFromModel(tt.model))
		})
	}
}

func TestTEIProvider_CloseIsNoop(t *testing.T) {
	provider, err := NewProvider(ProviderConfig{
		Provider: "tei",
		BaseURL:  "http://localhost:8080",
	})
	require.NoError(t, err)
	assert.NoError(t, provider.Close())
}
