package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/chunker"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/graphstore"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/logging"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/parser"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/secrets"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/vectorstore"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/workspace"
)

// tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("memoryagent.pipeline")

// Sentinel errors for pipeline operations.
var (
	// ErrMissingDependency indicates Deps lacked a required component.
	ErrMissingDependency = errors.New("missing pipeline dependency")

	// ErrEmbeddingFailed wraps embedding-service failures.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrStoreWrite wraps vector or graph store write failures.
	ErrStoreWrite = errors.New("store write failed")
)

// defaultEmbedBatch bounds how many chunk texts go to the embedding
// service per request.
const defaultEmbedBatch = 32

// IndexResult reports what one IndexFile run wrote.
type IndexResult struct {
	// ChunksWritten is the number of vector documents upserted.
	ChunksWritten int

	// RelationsWritten is the number of graph edges upserted.
	RelationsWritten int

	// Skipped is true when the file's content hash matched the tracked
	// hash and nothing was written.
	Skipped bool
}

// Deps are the collaborators an indexing Service needs. Chunker, Embedder,
// Vector, Graph and Tracker are required; Redactor, Classifier and Logger
// are optional.
type Deps struct {
	Chunker    *chunker.Chunker
	Embedder   vectorstore.Embedder
	Vector     vectorstore.Store
	Graph      graphstore.Store
	Tracker    *Tracker
	Redactor   *secrets.Redactor
	Classifier *Classifier
	Logger     *logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithEmbedBatchSize sets how many chunk texts are embedded per request.
// Non-positive values are ignored.
func WithEmbedBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.embedBatch = n
		}
	}
}

// Service is the single write path into both stores. One Service is shared
// across workspaces; per-file serialization is the scheduler's job, not
// the Service's.
type Service struct {
	chunker    *chunker.Chunker
	embedder   vectorstore.Embedder
	vector     vectorstore.Store
	graph      graphstore.Store
	tracker    *Tracker
	redactor   *secrets.Redactor
	classifier *Classifier
	logger     *logging.Logger
	embedBatch int
}

// New creates an indexing Service.
func New(deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Chunker == nil:
		return nil, fmt.Errorf("%w: chunker", ErrMissingDependency)
	case deps.Embedder == nil:
		return nil, fmt.Errorf("%w: embedder", ErrMissingDependency)
	case deps.Vector == nil:
		return nil, fmt.Errorf("%w: vector store", ErrMissingDependency)
	case deps.Graph == nil:
		return nil, fmt.Errorf("%w: graph store", ErrMissingDependency)
	case deps.Tracker == nil:
		return nil, fmt.Errorf("%w: tracker", ErrMissingDependency)
	}

	s := &Service{
		chunker:    deps.Chunker,
		embedder:   deps.Embedder,
		vector:     deps.Vector,
		graph:      deps.Graph,
		tracker:    deps.Tracker,
		redactor:   deps.Redactor,
		classifier: deps.Classifier,
		logger:     deps.Logger,
		embedBatch: defaultEmbedBatch,
	}
	if s.logger == nil {
		s.logger = logging.FromContext(context.Background())
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ContentHash returns the sha256 hex digest used for the no-op check.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// IndexFile writes one file's parsed entities into both stores.
//
// The write order is fixed: tombstone the file's previous documents and
// graph rows, upsert the new vector documents, upsert the new nodes and
// edges, then commit the tracked hash. The hash commits only after both
// stores acknowledged; any earlier failure marks the file dirty so the
// next run redoes it from scratch. Because the tombstone removes whatever
// the failed run left behind, retries are idempotent.
//
// Identical content is a no-op: when the sha256 of content matches the
// tracked hash, IndexFile returns Skipped without touching either store.
func (s *Service) IndexFile(ctx context.Context, ws *workspace.Workspace, filePath string, content []byte, entities []parser.Entity) (IndexResult, error) {
	if ws == nil {
		return IndexResult{}, errors.New("workspace is required")
	}

	ctx = logging.WithWorkspaceID(ctx, ws.ID)
	ctx = logging.WithFilePath(ctx, filePath)

	ctx, span := tracer.Start(ctx, "pipeline.IndexFile")
	defer span.End()
	span.SetAttributes(
		attribute.String("workspace.id", ws.ID),
		attribute.String("file.path", filePath),
		attribute.Int("entity.count", len(entities)),
	)

	hash := ContentHash(content)
	if tracked, ok := s.tracker.Hash(ws.ID, filePath); ok && tracked == hash {
		span.SetAttributes(attribute.Bool("skipped", true))
		s.logger.Debug(ctx, "index skipped, content unchanged")
		return IndexResult{Skipped: true}, nil
	}

	start := time.Now()

	docs, nodes, edges, err := s.prepare(ctx, ws, filePath, hash, entities)
	if err != nil {
		s.tracker.MarkDirty(ws.ID, filePath)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return IndexResult{}, err
	}

	if err := s.commit(ctx, ws, filePath, docs, nodes, edges); err != nil {
		s.tracker.MarkDirty(ws.ID, filePath)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return IndexResult{}, err
	}

	s.tracker.Commit(ws.ID, filePath, hash)

	result := IndexResult{ChunksWritten: len(docs), RelationsWritten: len(edges)}
	span.SetAttributes(
		attribute.Int("chunks.written", result.ChunksWritten),
		attribute.Int("relations.written", result.RelationsWritten),
	)
	s.logger.Info(ctx, "file indexed",
		zap.Int("entities", len(entities)),
		zap.Int("chunks", result.ChunksWritten),
		zap.Int("relations", result.RelationsWritten),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// DeleteFile is the tombstone path for files removed from disk: it deletes
// the file's vector documents and graph rows and forgets its tracked hash.
func (s *Service) DeleteFile(ctx context.Context, ws *workspace.Workspace, filePath string) error {
	if ws == nil {
		return errors.New("workspace is required")
	}

	ctx = logging.WithWorkspaceID(ctx, ws.ID)
	ctx = logging.WithFilePath(ctx, filePath)

	ctx, span := tracer.Start(ctx, "pipeline.DeleteFile")
	defer span.End()
	span.SetAttributes(
		attribute.String("workspace.id", ws.ID),
		attribute.String("file.path", filePath),
	)

	var errs []error
	if err := s.vector.DeleteByFile(ctx, ws.VectorNamespace, filePath); err != nil {
		errs = append(errs, fmt.Errorf("%w: vector delete: %v", ErrStoreWrite, err))
	}
	if err := s.graph.DeleteByFile(ctx, ws.GraphNamespace, filePath); err != nil {
		errs = append(errs, fmt.Errorf("%w: graph delete: %v", ErrStoreWrite, err))
	}

	if err := errors.Join(errs...); err != nil {
		// Leave the tracker entry dirty so a recreated file reindexes and
		// a retried delete can finish the tombstone.
		s.tracker.MarkDirty(ws.ID, filePath)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.tracker.Forget(ws.ID, filePath)
	s.logger.Info(ctx, "file tombstoned")
	return nil
}

// prepare chunks, classifies, redacts and embeds the entities, producing
// everything commit will write. It touches neither store.
func (s *Service) prepare(ctx context.Context, ws *workspace.Workspace, filePath, hash string, entities []parser.Entity) ([]vectorstore.Document, []graphstore.Node, []graphstore.Edge, error) {
	var (
		chunks []chunker.Chunk
		tags   = make(map[string][]string, len(entities))
		nodes  = make([]graphstore.Node, 0, len(entities))
		edges  []graphstore.Edge
	)

	for _, e := range entities {
		entityTags := s.classifier.Tags(e)
		if len(entityTags) > 0 {
			tags[e.Key()] = entityTags
		}

		chunks = append(chunks, s.chunker.Split(ws.ID, e)...)

		nodes = append(nodes, graphstore.Node{
			Key:         graphstore.NodeKey(e.FilePath, e.Name, string(e.Kind)),
			Name:        e.Name,
			Kind:        string(e.Kind),
			FilePath:    e.FilePath,
			StartLine:   e.StartLine,
			EndLine:     e.EndLine,
			ContentHash: hash,
			Tags:        entityTags,
		})

		for _, rel := range e.Relations {
			edges = append(edges, graphstore.Edge{
				FromKey:  graphstore.NodeKey(e.FilePath, e.Name, string(e.Kind)),
				ToName:   rel.TargetName,
				Kind:     string(rel.Kind),
				FilePath: e.FilePath,
			})
		}
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		text := ch.Text
		if s.redactor != nil {
			redacted, n := s.redactor.Redact(text)
			if n > 0 {
				s.logger.Warn(ctx, "secrets redacted from chunk", zap.Int("count", n))
			}
			text = redacted
		}
		texts[i] = text
	}

	vectors, err := s.embedBatched(ctx, texts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	docs := make([]vectorstore.Document, len(chunks))
	for i, ch := range chunks {
		meta := map[string]interface{}{
			vectorstore.MetaFilePath:   ch.FilePath,
			vectorstore.MetaEntityKey:  ch.EntityKey,
			vectorstore.MetaEntityName: ch.EntityName,
			vectorstore.MetaEntityKind: string(ch.EntityKind),
			vectorstore.MetaStartLine:  strconv.Itoa(ch.StartLine),
			vectorstore.MetaEndLine:    strconv.Itoa(ch.EndLine),
		}
		if entityTags, ok := tags[ch.EntityKey]; ok {
			meta[vectorstore.MetaTags] = strings.Join(entityTags, ",")
		}
		docs[i] = vectorstore.Document{
			ID:       ch.ID,
			Text:     texts[i],
			Vector:   vectors[i],
			Metadata: meta,
		}
	}

	return docs, nodes, edges, nil
}

// embedBatched embeds texts in bounded batches. An empty input yields an
// empty output without a service call.
func (s *Service) embedBatched(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.embedBatch {
		end := min(start+s.embedBatch, len(texts))
		batch, err := s.embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// commit performs the fixed-order dual-store write: tombstone, vector
// upsert, graph upsert.
func (s *Service) commit(ctx context.Context, ws *workspace.Workspace, filePath string, docs []vectorstore.Document, nodes []graphstore.Node, edges []graphstore.Edge) error {
	if err := s.vector.DeleteByFile(ctx, ws.VectorNamespace, filePath); err != nil {
		return fmt.Errorf("%w: vector tombstone: %v", ErrStoreWrite, err)
	}
	if err := s.graph.DeleteByFile(ctx, ws.GraphNamespace, filePath); err != nil {
		return fmt.Errorf("%w: graph tombstone: %v", ErrStoreWrite, err)
	}

	if len(docs) > 0 {
		if err := s.vector.Upsert(ctx, ws.VectorNamespace, docs); err != nil {
			return fmt.Errorf("%w: vector upsert: %v", ErrStoreWrite, err)
		}
	}
	if err := s.graph.UpsertNodes(ctx, ws.GraphNamespace, nodes); err != nil {
		return fmt.Errorf("%w: graph node upsert: %v", ErrStoreWrite, err)
	}
	if err := s.graph.UpsertEdges(ctx, ws.GraphNamespace, edges); err != nil {
		return fmt.Errorf("%w: graph edge upsert: %v", ErrStoreWrite, err)
	}
	return nil
}
