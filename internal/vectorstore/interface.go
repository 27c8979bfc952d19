// Package vectorstore defines the interface for vector storage operations.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrNamespaceNotFound is returned when a namespace does not exist.
	ErrNamespaceNotFound = errors.New("namespace not found")

	// ErrInvalidNamespace indicates namespace name validation failure.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrMissingVector indicates a document without a precomputed embedding
	// was given to a backend that cannot embed it.
	ErrMissingVector = errors.New("document missing embedding vector")

	// ErrConnectionFailed indicates the backend is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector store")
)

// Embedder generates vector embeddings from text.
//
// Embeddings are dense numerical representations that capture semantic
// meaning, enabling similarity search. The production implementation talks
// to a TEI endpoint; tests use deterministic fakes.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns a slice of embeddings (one per input text) or an error.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the interface for vector storage operations.
//
// Every operation is scoped to a namespace. A namespace maps to one
// workspace's vector collection (ws_<slug>_<hash8>_vec); nothing in this
// package ever reads or writes across namespaces, which is what keeps
// workspaces isolated from each other.
//
// Namespace names must match ^[a-z0-9_]{1,64}$ (see ValidateNamespace).
//
// Implementations:
//   - ChromemStore: embedded chromem-go (default, zero external services)
//   - QdrantStore: external Qdrant over gRPC
type Store interface {
	// CreateNamespace provisions a namespace. Creating a namespace that
	// already exists is a no-op, so workspace provisioning can retry freely.
	CreateNamespace(ctx context.Context, namespace string) error

	// NamespaceExists reports whether a namespace has been provisioned.
	NamespaceExists(ctx context.Context, namespace string) (bool, error)

	// DeleteNamespace removes a namespace and every document in it.
	// Deleting a namespace that does not exist is a no-op.
	DeleteNamespace(ctx context.Context, namespace string) error

	// Upsert writes documents into a namespace, replacing any existing
	// documents with the same IDs. Documents must carry precomputed
	// vectors unless the backend was constructed with an Embedder.
	Upsert(ctx context.Context, namespace string, docs []Document) error

	// Delete removes documents by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, namespace string, ids []string) error

	// DeleteByFile removes every document whose MetaFilePath metadata
	// equals filePath. This is the tombstone path: reindexing a file
	// deletes its old documents wholesale before writing new ones.
	// A namespace or file with no documents is a no-op.
	DeleteByFile(ctx context.Context, namespace string, filePath string) error

	// Query performs k-NN similarity search with a precomputed query
	// vector. Results are ordered by similarity, highest first.
	Query(ctx context.Context, namespace string, vector []float32, k int) ([]SearchResult, error)

	// Close releases backend resources.
	Close() error
}
