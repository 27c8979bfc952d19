package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/config"
)

// NewStore creates a new Store based on the configuration.
//
// This factory function examines the VectorStoreConfig.Provider field and
// creates the appropriate store implementation:
//   - "chromem" (default): Creates an embedded ChromemStore (no external deps)
//   - "qdrant": Creates a QdrantStore (requires external Qdrant server)
//
// vectorSize is the embedding dimension reported by the embeddings provider.
// Both backends reject mismatched vectors, so the dimension flows from the
// model rather than from a separate config knob. The embedder is optional
// and only consulted by chromem for documents added without a precomputed
// vector.
//
// Example usage:
//
//	cfg, _ := config.Load("")
//	store, err := vectorstore.NewStore(cfg, provider.Dimension(), embedder, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
func NewStore(cfg *config.Config, vectorSize int, embedder Embedder, logger *zap.Logger) (Store, error) {
	if vectorSize <= 0 {
		return nil, fmt.Errorf("%w: vector size must be positive, got %d", ErrInvalidConfig, vectorSize)
	}

	switch cfg.VectorStore.Provider {
	case "chromem", "":
		// Default: chromem (embedded, zero external dependencies)
		return NewChromemStore(ChromemConfig{
			Path:       cfg.VectorStore.Chromem.Path,
			Compress:   cfg.VectorStore.Chromem.Compress,
			VectorSize: vectorSize,
		}, embedder, logger)

	case "qdrant":
		// Qdrant: requires external Qdrant server
		return NewQdrantStore(QdrantConfig{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			APIKey:     cfg.VectorStore.Qdrant.APIKey.Value(),
			UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
			VectorSize: uint64(vectorSize),
		})

	default:
		return nil, fmt.Errorf("unsupported vectorstore provider: %s (supported: chromem, qdrant)", cfg.VectorStore.Provider)
	}
}
