// Package vectorstore provides vector storage abstraction with per-workspace namespaces.
//
// The package offers a unified interface for vector storage operations with multiple
// provider implementations (chromem embedded, Qdrant external). It powers the semantic
// half of hybrid code search: chunks of source files are stored with their embeddings
// and retrieved by k-NN similarity.
//
// # Workspace Isolation
//
// Isolation is structural rather than filter-based. Every operation names a
// namespace, each workspace owns exactly one vector namespace
// (ws_<slug>_<hash8>_vec), and no operation reads or writes across namespaces.
// Unregistering a workspace drops its namespace wholesale.
//
//   - Namespace names validated against ^[a-z0-9_]{1,64}$ (prevents path traversal)
//   - Querying an unprovisioned namespace returns ErrNamespaceNotFound
//   - Result limits capped at 10,000
//
// # Usage
//
// Basic usage with the embedded chromem backend (default):
//
//	import "github.com/ChrisCalzaretta/memoryagent-sub010/internal/vectorstore"
//
//	config := vectorstore.ChromemConfig{
//	    Path:       "~/.config/memoryagent/vectorstore",
//	    VectorSize: 384,
//	}
//
//	store, err := vectorstore.NewChromemStore(config, embedder, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	// Provision the workspace namespace, then write chunks with
//	// precomputed embeddings.
//	ns := "ws_myrepo_1a2b3c4d_vec"
//	if err := store.CreateNamespace(ctx, ns); err != nil {
//	    return err
//	}
//	err = store.Upsert(ctx, ns, []vectorstore.Document{{
//	    ID:     chunkID,
//	    Text:   chunkText,
//	    Vector: embedding,
//	    Metadata: map[string]interface{}{
//	        vectorstore.MetaFilePath: "internal/auth/login.go",
//	    },
//	}})
//
//	// Search with an embedded query vector.
//	results, err := store.Query(ctx, ns, queryVector, 8)
//
// # Backends
//
//   - ChromemStore: embedded chromem-go with gob persistence. Zero external
//     services, so a fresh install works out of the box.
//   - QdrantStore: external Qdrant over gRPC, with retries, a circuit
//     breaker, and transient-error classification for production loads.
//
// Use NewStore to construct the backend selected by configuration, and
// NewInstrumentedStore to record per-operation latency and error metrics.
package vectorstore
