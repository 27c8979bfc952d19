package embeddings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/vectorstore"
)

// ErrFastEmbedNotAvailable is returned when FastEmbed is not available
// (requires a CGO build).
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without CGO support, use TEI provider instead)")

// Provider is the interface for embedding providers.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "tei" or "fastembed"
	Provider string
	// Model is the embedding model name
	Model string
	// BaseURL is the TEI URL (only used for TEI provider)
	BaseURL string
	// APIKey authenticates TEI requests (optional)
	APIKey string
	// RPS limits TEI request rate; 0 disables limiting
	RPS float64
	// Burst is the TEI rate limiter burst size
	Burst int
	// CacheDir is the model cache directory (only used for FastEmbed)
	CacheDir string
}

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	// Model is the embedding model to use.
	// Supported: BAAI/bge-small-en-v1.5 (default), BAAI/bge-base-en-v1.5,
	// sentence-transformers/all-MiniLM-L6-v2, etc.
	Model string

	// CacheDir is the directory to cache model files.
	CacheDir string

	// MaxLength is the maximum input sequence length. Defaults to 512.
	MaxLength int
}

// knownModelDimensions maps model names to their embedding dimensions.
var knownModelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                  384,
	"BAAI/bge-small-en":                       384,
	"BAAI/bge-base-en-v1.5":                   768,
	"BAAI/bge-base-en":                        768,
	"BAAI/bge-small-zh-v1.5":                  512,
	"sentence-transformers/all-MiniLM-L6-v2":  384,
	"fast-bge-small-en-v1.5":                  384,
	"fast-bge-small-en":                       384,
	"fast-bge-base-en-v1.5":                   768,
	"fast-bge-base-en":                        768,
	"fast-bge-small-zh-v1.5":                  512,
	"fast-all-MiniLM-L6-v2":                   384,
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if model is unknown.
func detectDimensionFromModel(model string) int {
	if dim, ok := knownModelDimensions[model]; ok {
		return dim
	}
	// Common model dimension patterns
	switch {
	case strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "small"), strings.Contains(model, "mini"):
		return 384
	default:
		return 384 // Safe default for bge-small
	}
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "tei", "":
		svc, err := NewService(Config{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			RPS:     cfg.RPS,
			Burst:   cfg.Burst,
		})
		if err != nil {
			return nil, err
		}
		dim := detectDimensionFromModel(cfg.Model)
		return &teiProvider{Service: svc, dimension: dim}, nil
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// teiProvider wraps Service to implement Provider interface.
type teiProvider struct {
	*Service
	dimension int
}

// Dimension returns the embedding dimension based on the configured model.
func (t *teiProvider) Dimension() int {
	return t.dimension
}

// Close is a no-op for TEI since it uses HTTP.
func (t *teiProvider) Close() error {
	return nil
}
