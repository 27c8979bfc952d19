package vectorstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const vectorstoreInstrumentationName = "github.com/ChrisCalzaretta/memoryagent-sub010/internal/vectorstore"

// Metrics holds vector store operation metrics.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewMetrics creates a new Metrics instance for vector store operations.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(vectorstoreInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	// Operation latency by backend and operation
	m.duration, err = m.meter.Float64Histogram(
		"memoryagent.vectorstore.operation_duration_seconds",
		metric.WithDescription("Duration of vector store operations in seconds, labeled by backend (chromem, qdrant) and operation (upsert, query, ...)"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	// Error count by backend and operation
	m.errors, err = m.meter.Int64Counter(
		"memoryagent.vectorstore.errors_total",
		metric.WithDescription("Total vector store operation errors by backend and operation. Transient gRPC failures count once after retries are exhausted."),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordOperation records one store operation.
func (m *Metrics) RecordOperation(ctx context.Context, backend, operation string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("backend", backend),
		attribute.String("operation", operation),
	}

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}

	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// instrumentedStore decorates a Store so every operation records duration
// and error counts. The wrapped store stays oblivious to instrumentation.
type instrumentedStore struct {
	next    Store
	backend string
	metrics *Metrics
}

// NewInstrumentedStore wraps a Store with operation metrics. backend labels
// the recorded data points, typically "chromem" or "qdrant".
func NewInstrumentedStore(next Store, backend string, m *Metrics) Store {
	return &instrumentedStore{
		next:    next,
		backend: backend,
		metrics: m,
	}
}

func (s *instrumentedStore) CreateNamespace(ctx context.Context, namespace string) error {
	start := time.Now()
	err := s.next.CreateNamespace(ctx, namespace)
	s.metrics.RecordOperation(ctx, s.backend, "create_namespace", time.Since(start), err)
	return err
}

func (s *instrumentedStore) NamespaceExists(ctx context.Context, namespace string) (bool, error) {
	start := time.Now()
	exists, err := s.next.NamespaceExists(ctx, namespace)
	s.metrics.RecordOperation(ctx, s.backend, "namespace_exists", time.Since(start), err)
	return exists, err
}

func (s *instrumentedStore) DeleteNamespace(ctx context.Context, namespace string) error {
	start := time.Now()
	err := s.next.DeleteNamespace(ctx, namespace)
	s.metrics.RecordOperation(ctx, s.backend, "delete_namespace", time.Since(start), err)
	return err
}

func (s *instrumentedStore) Upsert(ctx context.Context, namespace string, docs []Document) error {
	start := time.Now()
	err := s.next.Upsert(ctx, namespace, docs)
	s.metrics.RecordOperation(ctx, s.backend, "upsert", time.Since(start), err)
	return err
}

func (s *instrumentedStore) Delete(ctx context.Context, namespace string, ids []string) error {
	start := time.Now()
	err := s.next.Delete(ctx, namespace, ids)
	s.metrics.RecordOperation(ctx, s.backend, "delete", time.Since(start), err)
	return err
}

func (s *instrumentedStore) DeleteByFile(ctx context.Context, namespace string, filePath string) error {
	start := time.Now()
	err := s.next.DeleteByFile(ctx, namespace, filePath)
	s.metrics.RecordOperation(ctx, s.backend, "delete_by_file", time.Since(start), err)
	return err
}

func (s *instrumentedStore) Query(ctx context.Context, namespace string, vector []float32, k int) ([]SearchResult, error) {
	start := time.Now()
	results, err := s.next.Query(ctx, namespace, vector, k)
	s.metrics.RecordOperation(ctx, s.backend, "query", time.Since(start), err)
	return results, err
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}

// Ensure instrumentedStore implements Store interface.
var _ Store = (*instrumentedStore)(nil)
