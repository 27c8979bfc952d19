// Package vectorstore provides vector storage implementations.
package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("memoryagent.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/memoryagent/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension.
	// Default: 384 (bge-small-en-v1.5)
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/memoryagent/vectorstore"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements the Store interface using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies: in-memory search with gob persistence, no external service.
// It is the default backend, so a fresh install indexes and searches
// without standing up Qdrant.
//
// Each namespace maps to one chromem collection. Documents normally arrive
// with precomputed vectors; the optional Embedder only covers documents
// without one.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
}

// NewChromemStore creates a new ChromemStore with the given configuration.
// The embedder may be nil when every document carries a precomputed vector.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := newResilientChromemDB(expandedPath, config.Compress, logger)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	store := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	logger.Info("chromem store initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
	)

	return store, nil
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc adapts the Embedder to chromem's per-text callback. chromem
// invokes it only for documents added without an embedding; passing nil to
// chromem would silently select its OpenAI default, so a failing func stands
// in when no embedder is configured.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	if s.embedder == nil {
		return func(ctx context.Context, text string) ([]float32, error) {
			return nil, fmt.Errorf("%w: no embedder configured", ErrMissingVector)
		}
	}
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// getCollection returns the collection for a namespace, or nil if it has
// not been provisioned.
func (s *ChromemStore) getCollection(namespace string) *chromem.Collection {
	return s.db.GetCollection(namespace, s.embeddingFunc())
}

// CreateNamespace provisions a namespace (chromem collection).
// Already-exists is success.
func (s *ChromemStore) CreateNamespace(ctx context.Context, namespace string) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.CreateNamespace")
	defer span.End()

	span.SetAttributes(attribute.String("namespace", namespace))

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}

	if _, err := s.db.GetOrCreateCollection(namespace, nil, s.embeddingFunc()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating namespace %s: %w", namespace, err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("created chromem namespace", zap.String("namespace", namespace))
	return nil
}

// NamespaceExists checks if a namespace exists.
func (s *ChromemStore) NamespaceExists(ctx context.Context, namespace string) (bool, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.NamespaceExists")
	defer span.End()

	span.SetAttributes(attribute.String("namespace", namespace))

	if err := ValidateNamespace(namespace); err != nil {
		return false, err
	}

	exists := s.getCollection(namespace) != nil

	span.SetStatus(codes.Ok, "success")
	return exists, nil
}

// DeleteNamespace deletes a namespace and all its documents. Deleting a
// namespace that does not exist is a no-op.
func (s *ChromemStore) DeleteNamespace(ctx context.Context, namespace string) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.DeleteNamespace")
	defer span.End()

	span.SetAttributes(attribute.String("namespace", namespace))

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}

	if err := s.db.DeleteCollection(namespace); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting namespace %s: %w", namespace, err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Info("deleted chromem namespace", zap.String("namespace", namespace))
	return nil
}

// Upsert writes documents into a namespace. The namespace is created on
// first write, matching the registry's lazy provisioning.
func (s *ChromemStore) Upsert(ctx context.Context, namespace string, docs []Document) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("document_count", len(docs)),
	)

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if len(docs) == 0 {
		return ErrEmptyDocuments
	}

	collection, err := s.db.GetOrCreateCollection(namespace, nil, s.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("getting namespace %s: %w", namespace, err)
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("%w: document at index %d has no ID", ErrEmptyDocuments, i)
		}
		if len(doc.Vector) == 0 && s.embedder == nil {
			return fmt.Errorf("%w: document %q", ErrMissingVector, doc.ID)
		}
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Text,
			Metadata:  convertMetadataToString(doc.Metadata),
			Embedding: doc.Vector,
		}
	}

	// Concurrency of 1: embeddings are already computed, so chromem has no
	// parallel work to do.
	if err := collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to namespace %s: %w", namespace, err)
	}

	span.SetAttributes(attribute.Int("documents_written", len(chromemDocs)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("upserted documents to chromem",
		zap.String("namespace", namespace),
		zap.Int("count", len(docs)),
	)

	return nil
}

// Delete removes documents by ID. Unknown namespaces and IDs are no-ops.
func (s *ChromemStore) Delete(ctx context.Context, namespace string, ids []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
	defer span.End()

	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("id_count", len(ids)),
	)

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	collection := s.getCollection(namespace)
	if collection == nil {
		span.SetStatus(codes.Ok, "namespace absent")
		return nil
	}

	if err := collection.Delete(ctx, nil, nil, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting from namespace %s: %w", namespace, err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("deleted documents from chromem",
		zap.String("namespace", namespace),
		zap.Int("count", len(ids)),
	)

	return nil
}

// DeleteByFile removes every document tagged with filePath. Unknown
// namespaces and untagged files are no-ops, so the tombstone path can run
// before the first index of a file.
func (s *ChromemStore) DeleteByFile(ctx context.Context, namespace string, filePath string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteByFile")
	defer span.End()

	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.String("file_path", filePath),
	)

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if filePath == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	collection := s.getCollection(namespace)
	if collection == nil {
		span.SetStatus(codes.Ok, "namespace absent")
		return nil
	}

	where := map[string]string{MetaFilePath: filePath}
	if err := collection.Delete(ctx, where, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting file documents from namespace %s: %w", namespace, err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("deleted file documents from chromem",
		zap.String("namespace", namespace),
		zap.String("file_path", filePath),
	)

	return nil
}

// Query performs k-NN similarity search with a precomputed query vector.
func (s *ChromemStore) Query(ctx context.Context, namespace string, vector []float32, k int) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()

	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("k", k),
	)

	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	collection := s.getCollection(namespace)
	if collection == nil {
		span.SetStatus(codes.Error, "namespace not found")
		return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, namespace)
	}

	// chromem requires nResults <= document count.
	docCount := collection.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying namespace %s: %w", namespace, err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:       r.ID,
			Text:     r.Content,
			Score:    r.Similarity,
			Metadata: convertMetadataFromString(r.Metadata),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(searchResults)))
	span.SetStatus(codes.Ok, "success")

	return searchResults, nil
}

// Close closes the ChromemStore.
// chromem-go persists on every write, so there is nothing to flush.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

// convertMetadataToString converts map[string]interface{} to map[string]string.
func convertMetadataToString(metadata map[string]interface{}) map[string]string {
	if metadata == nil {
		return nil
	}

	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = fmt.Sprintf("%d", val)
		case int64:
			result[k] = fmt.Sprintf("%d", val)
		case float64:
			result[k] = fmt.Sprintf("%f", val)
		case bool:
			result[k] = fmt.Sprintf("%t", val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

// convertMetadataFromString converts map[string]string back to map[string]interface{}.
func convertMetadataFromString(metadata map[string]string) map[string]interface{} {
	if metadata == nil {
		return nil
	}

	result := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}

// Ensure ChromemStore implements Store interface.
var _ Store = (*ChromemStore)(nil)
