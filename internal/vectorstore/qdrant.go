// Package vectorstore provides vector storage implementations.
package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("memoryagent.vectorstore.qdrant")

// namespacePattern validates namespace names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var namespacePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334 (gRPC), not 6333 (HTTP)
	Port int

	// APIKey authenticates against Qdrant Cloud (optional).
	APIKey string

	// UseTLS enables TLS encryption for the gRPC connection.
	UseTLS bool

	// VectorSize is the dimensionality of embeddings. MUST match the
	// embedding model's output dimension (e.g. 384 for bge-small-en-v1.5).
	VectorSize uint64

	// Distance is the similarity metric for vector search.
	// Options: Cosine (default), Euclid, Dot
	Distance qdrant.Distance

	// MaxRetries is the maximum number of retry attempts for transient failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries.
	// Doubles on each retry.
	// Default: 1 second
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB (large files produce large upsert batches)
	MaxMessageSize int

	// CircuitBreakerThreshold is the number of failures before opening circuit.
	// Default: 5
	CircuitBreakerThreshold int
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024 // 50MB
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.Distance == 0 {
		c.Distance = qdrant.Distance_Cosine
	}
}

// ValidateNamespace validates a namespace name against naming rules.
// Pattern: ^[a-z0-9_]{1,64}$
// Rejects: uppercase, special chars, path traversal, spaces.
func ValidateNamespace(name string) error {
	if name == "" {
		return fmt.Errorf("%w: namespace cannot be empty", ErrInvalidNamespace)
	}
	if !namespacePattern.MatchString(name) {
		return fmt.Errorf("%w: namespace must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidNamespace, name)
	}
	return nil
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts, temporary unavailability.
// Returns false for invalid config, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	case grpccodes.InvalidArgument, grpccodes.NotFound, grpccodes.PermissionDenied, grpccodes.Unauthenticated:
		return false
	default:
		return false
	}
}

// QdrantStore is a Store implementation using Qdrant's native gRPC client.
//
// gRPC (port 6334) avoids the HTTP layer's 256kB payload limit, which large
// upsert batches would hit during indexing.
//
// Each namespace maps to one Qdrant collection. Documents arrive with
// precomputed vectors; this store never calls an embedder.
type QdrantStore struct {
	// client is the official Qdrant Go gRPC client
	client *qdrant.Client

	// config holds the store configuration
	config QdrantConfig

	// namespaces caches namespace existence to avoid repeated checks.
	// Key: namespace name, Value: true if exists
	namespaces sync.Map

	// circuitBreaker tracks failures for circuit breaker pattern
	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

// NewQdrantStore creates a new QdrantStore with the given configuration.
//
// The constructor validates the configuration, creates the gRPC client and
// performs a health check, so a returned store is known reachable.
func NewQdrantStore(config QdrantConfig) (*QdrantStore, error) {
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	qdrantConfig := &qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client: client,
		config: config,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.healthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// healthCheck performs a health check on the Qdrant connection.
func (s *QdrantStore) healthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.HealthCheck")
	defer span.End()

	_, err := s.client.HealthCheck(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("health check failed: %w", err)
	}

	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// retryOperation retries an operation with exponential backoff.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}

		// Check circuit breaker
		if s.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open", operationName)
		}

		// Check if error is transient
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		// Record failure for circuit breaker
		s.recordFailure()

		// Last attempt, return error
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		// Wait before retry (exponential backoff)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *QdrantStore) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *QdrantStore) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

func (s *QdrantStore) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()

	// Circuit is open if too many failures recently
	if s.circuitBreaker.failures >= s.config.CircuitBreakerThreshold {
		// Allow retry after 30 seconds
		if time.Since(s.circuitBreaker.lastFail) > 30*time.Second {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// CreateNamespace provisions a namespace (Qdrant collection). Already-exists
// is success so workspace provisioning can retry freely.
func (s *QdrantStore) CreateNamespace(ctx context.Context, namespace string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.CreateNamespace")
	defer span.End()

	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("vector_size", int(s.config.VectorSize)),
	)

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}

	exists, err := s.NamespaceExists(ctx, namespace)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("checking namespace %s: %w", namespace, err)
	}
	if exists {
		span.SetStatus(codes.Ok, "already exists")
		return nil
	}

	err = s.retryOperation(ctx, "create_namespace", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: namespace,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.config.VectorSize,
				Distance: s.config.Distance,
			}),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating namespace %s: %w", namespace, err)
	}

	s.namespaces.Store(namespace, true)

	span.SetStatus(codes.Ok, "success")
	return nil
}

// NamespaceExists checks if a namespace exists.
func (s *QdrantStore) NamespaceExists(ctx context.Context, namespace string) (bool, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.NamespaceExists")
	defer span.End()

	span.SetAttributes(attribute.String("namespace", namespace))

	if err := ValidateNamespace(namespace); err != nil {
		return false, err
	}

	// Check cache first
	if _, ok := s.namespaces.Load(namespace); ok {
		return true, nil
	}

	var exists bool
	err := s.retryOperation(ctx, "namespace_exists", func() error {
		info, err := s.client.GetCollectionInfo(ctx, namespace)
		if err != nil {
			st, ok := status.FromError(err)
			if ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("checking namespace %s: %w", namespace, err)
	}

	if exists {
		s.namespaces.Store(namespace, true)
	}

	span.SetStatus(codes.Ok, "success")
	return exists, nil
}

// DeleteNamespace deletes a namespace and all its documents.
func (s *QdrantStore) DeleteNamespace(ctx context.Context, namespace string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteNamespace")
	defer span.End()

	span.SetAttributes(attribute.String("namespace", namespace))

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}

	err := s.retryOperation(ctx, "delete_namespace", func() error {
		err := s.client.DeleteCollection(ctx, namespace)
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return nil
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting namespace %s: %w", namespace, err)
	}

	s.namespaces.Delete(namespace)

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Upsert writes documents into a namespace. Documents must carry
// precomputed vectors; the Qdrant store never embeds.
func (s *QdrantStore) Upsert(ctx context.Context, namespace string, docs []Document) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert")
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

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		if len(doc.Vector) == 0 {
			return fmt.Errorf("%w: document %q", ErrMissingVector, doc.ID)
		}
		if doc.ID == "" {
			return fmt.Errorf("%w: document at index %d has no ID", ErrEmptyDocuments, i)
		}

		// Payload carries the text plus metadata. The original document ID
		// is duplicated into the payload so Delete can filter on it.
		payload := make(map[string]*qdrant.Value, len(doc.Metadata)+2)
		payload["text"] = qdrant.NewValueString(doc.Text)
		payload["id"] = qdrant.NewValueString(doc.ID)

		for k, v := range doc.Metadata {
			switch val := v.(type) {
			case string:
				payload[k] = qdrant.NewValueString(val)
			case int:
				payload[k] = qdrant.NewValueInt(int64(val))
			case int64:
				payload[k] = qdrant.NewValueInt(val)
			case float64:
				payload[k] = qdrant.NewValueDouble(val)
			case bool:
				payload[k] = qdrant.NewValueBool(val)
			}
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(qdrantPointID(doc.ID)),
			Vectors: qdrant.NewVectors(doc.Vector...),
			Payload: payload,
		}
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: namespace,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to namespace %s: %w", namespace, err)
	}

	span.SetAttributes(attribute.Int("points_written", len(points)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// qdrantPointID maps a document ID onto a Qdrant UUID point ID. Document IDs
// are already UUIDs in the indexing pipeline; anything else is hashed into a
// deterministic UUID so the same document always lands on the same point.
func qdrantPointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

// Delete removes documents by ID.
func (s *QdrantStore) Delete(ctx context.Context, namespace string, ids []string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Delete")
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

	// Delete by filter matching the duplicated payload IDs so callers can
	// use their own document IDs without knowing the point ID mapping.
	err := s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: namespace,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{
						Must: []*qdrant.Condition{
							{
								ConditionOneOf: &qdrant.Condition_Field{
									Field: &qdrant.FieldCondition{
										Key: "id",
										Match: &qdrant.Match{
											MatchValue: &qdrant.Match_Keywords{
												Keywords: &qdrant.RepeatedStrings{Strings: ids},
											},
										},
									},
								},
							},
						},
					},
				},
			},
		})
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return nil
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting from namespace %s: %w", namespace, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteByFile removes every document tagged with filePath.
func (s *QdrantStore) DeleteByFile(ctx context.Context, namespace string, filePath string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteByFile")
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

	err := s.retryOperation(ctx, "delete_by_file", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: namespace,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{
						Must: []*qdrant.Condition{
							{
								ConditionOneOf: &qdrant.Condition_Field{
									Field: &qdrant.FieldCondition{
										Key: MetaFilePath,
										Match: &qdrant.Match{
											MatchValue: &qdrant.Match_Keyword{Keyword: filePath},
										},
									},
								},
							},
						},
					},
				},
			},
		})
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return nil
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting file documents from namespace %s: %w", namespace, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query performs k-NN similarity search with a precomputed query vector.
func (s *QdrantStore) Query(ctx context.Context, namespace string, vector []float32, k int) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Query")
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
	const maxK = 10000
	if k > maxK {
		k = maxK
	}

	var scored []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: namespace,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		scored = res
		return nil
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			span.SetStatus(codes.Error, "namespace not found")
			return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, namespace)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying namespace %s: %w", namespace, err)
	}

	results := make([]SearchResult, len(scored))
	for i, point := range scored {
		result := SearchResult{Score: point.Score}

		if point.Payload != nil {
			result.Metadata = make(map[string]interface{}, len(point.Payload))
			for key, v := range point.Payload {
				switch val := v.Kind.(type) {
				case *qdrant.Value_StringValue:
					switch key {
					case "text":
						result.Text = val.StringValue
					case "id":
						result.ID = val.StringValue
					default:
						result.Metadata[key] = val.StringValue
					}
				case *qdrant.Value_IntegerValue:
					result.Metadata[key] = val.IntegerValue
				case *qdrant.Value_DoubleValue:
					result.Metadata[key] = val.DoubleValue
				case *qdrant.Value_BoolValue:
					result.Metadata[key] = val.BoolValue
				}
			}
		}

		results[i] = result
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Ensure QdrantStore implements Store interface.
var _ Store = (*QdrantStore)(nil)
