// Package planner answers search queries by routing between the vector
// store and the graph store, or running both and fusing the scores.
//
// Routing is deterministic and rule-based: queries naming relations or
// code symbols go to the graph, free-form natural language goes to
// vectors, and ambiguous queries run both sides in parallel. One backend
// failing degrades the response to the other backend's results, flagged
// partial, rather than failing the query.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/graphstore"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/logging"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/vectorstore"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/workspace"
)

// tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("memoryagent.planner")

// Sentinel errors for planner operations.
var (
	// ErrEmptyQuery is returned for a blank query string.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrUnknownMode is returned for an unrecognized search mode.
	ErrUnknownMode = errors.New("unknown search mode")

	// ErrSearchFailed wraps the case where every consulted backend
	// failed.
	ErrSearchFailed = errors.New("search failed")
)

// Status reports whether a response carries real results.
type Status string

const (
	// StatusOK means the workspace was searched.
	StatusOK Status = "ok"

	// StatusNotIndexed means the workspace has no indexed files yet.
	// It is a valid outcome, not an error.
	StatusNotIndexed Status = "not_indexed"
)

// Source names which backend produced a result.
type Source string

const (
	SourceVector Source = "vector"
	SourceGraph  Source = "graph"
	SourceBoth   Source = "both"
)

// RankedResult is one scored search hit.
type RankedResult struct {
	// EntityKey joins the hit back to its graph node.
	EntityKey string

	FilePath  string
	Name      string
	Kind      string
	StartLine int

	// Score is in [0,1] within one response; fused scores combine both
	// backends' normalized scores.
	Score float64

	Source Source

	// Snippet is a bounded slice of the matched chunk text; graph-only
	// hits have none.
	Snippet string
}

// Response is a full search answer.
type Response struct {
	Results []RankedResult

	// Strategy is the routing decision that produced the results.
	Strategy Strategy

	Status Status

	// Partial marks a response produced with one backend down.
	Partial bool
}

// FileCounter reports how many files a workspace has indexed. The
// pipeline tracker implements it; zero files short-circuits to the
// not-indexed status.
type FileCounter interface {
	FileCount(workspaceID string) int
}

// Config holds planner configuration.
type Config struct {
	// VectorWeight is the vector share of a fused score; the graph gets
	// the remainder. Default 0.6.
	VectorWeight float64

	// MaxDepth bounds graph traversal hops. Default 2, capped at 3.
	MaxDepth int

	// CacheSize bounds the query cache entries. Default 128.
	CacheSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.VectorWeight <= 0 || c.VectorWeight >= 1 {
		c.VectorWeight = 0.6
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 2
	}
	if c.MaxDepth > 3 {
		c.MaxDepth = 3
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 128
	}
}

// defaultLimit is used when the caller passes a non-positive limit.
const defaultLimit = 10

// snippetLen bounds result snippets.
const snippetLen = 240

// Planner routes queries between the two stores.
type Planner struct {
	cfg      Config
	vector   vectorstore.Store
	graph    graphstore.Store
	embedder vectorstore.Embedder
	files    FileCounter
	cache    *queryCache
	logger   *logging.Logger
}

// New creates a Planner.
func New(cfg Config, vector vectorstore.Store, graph graphstore.Store, embedder vectorstore.Embedder, files FileCounter, logger *logging.Logger) (*Planner, error) {
	switch {
	case vector == nil:
		return nil, errors.New("vector store is required")
	case graph == nil:
		return nil, errors.New("graph store is required")
	case embedder == nil:
		return nil, errors.New("embedder is required")
	case files == nil:
		return nil, errors.New("file counter is required")
	}

	cfg.ApplyDefaults()
	if logger == nil {
		logger = logging.FromContext(context.Background())
	}

	cache, err := newQueryCache(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating query cache: %w", err)
	}

	return &Planner{
		cfg:      cfg,
		vector:   vector,
		graph:    graph,
		embedder: embedder,
		files:    files,
		cache:    cache,
		logger:   logger,
	}, nil
}

// Invalidate drops cached responses for a workspace. The engine calls it
// after every successful index or delete so stale answers never outlive
// the data they came from.
func (p *Planner) Invalidate(workspaceID string) {
	p.cache.invalidate(workspaceID)
}

// Search answers one query against one workspace.
func (p *Planner) Search(ctx context.Context, ws *workspace.Workspace, query string, limit int, mode Mode) (Response, error) {
	if ws == nil {
		return Response{}, errors.New("workspace is required")
	}
	if query == "" {
		return Response{}, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	ctx = logging.WithWorkspaceID(ctx, ws.ID)
	ctx, span := tracer.Start(ctx, "planner.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("workspace.id", ws.ID),
		attribute.String("mode", string(mode)),
		attribute.Int("limit", limit),
	)

	if p.files.FileCount(ws.ID) == 0 {
		span.SetAttributes(attribute.String("status", string(StatusNotIndexed)))
		return Response{Status: StatusNotIndexed}, nil
	}

	key := cacheKey{workspaceID: ws.ID, mode: mode, limit: limit, query: query}
	if resp, ok := p.cache.get(key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return resp, nil
	}

	rt := p.resolve(query, mode)
	span.SetAttributes(attribute.String("strategy", string(rt.strategy)))

	var (
		resp Response
		err  error
	)
	switch rt.strategy {
	case StrategyGraph:
		resp, err = p.graphFirst(ctx, ws, query, rt, limit)
	case StrategyVector:
		resp, err = p.vectorFirst(ctx, ws, query, rt, limit)
	default:
		resp, err = p.hybrid(ctx, ws, query, rt, limit)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}

	resp.Strategy = rt.strategy
	resp.Status = StatusOK

	// Partial responses are not cached: the failed backend may recover
	// before the data changes.
	if !resp.Partial {
		p.cache.add(key, resp)
	}

	p.logger.Debug(ctx, "search completed",
		zap.String("strategy", string(rt.strategy)),
		zap.Int("results", len(resp.Results)),
		zap.Bool("partial", resp.Partial))
	return resp, nil
}

// resolve combines the caller's mode with query classification.
func (p *Planner) resolve(query string, mode Mode) route {
	rt := classify(query)
	switch mode {
	case ModeVector:
		rt.strategy = StrategyVector
	case ModeGraph:
		rt.strategy = StrategyGraph
	case ModeHybrid:
		rt.strategy = StrategyHybrid
	}
	return rt
}

// graphFirst traverses from the named symbol, falling back to vector
// search when the graph has nothing, and degrading to vector-only when
// the graph backend is down.
func (p *Planner) graphFirst(ctx context.Context, ws *workspace.Workspace, query string, rt route, limit int) (Response, error) {
	results, err := p.graphSearch(ctx, ws, rt, limit)
	if err != nil {
		p.logger.Warn(ctx, "graph backend failed, degrading to vector", zap.Error(err))
		vres, verr := p.vectorSearch(ctx, ws, query, limit)
		if verr != nil {
			return Response{}, fmt.Errorf("%w: graph: %v; vector: %v", ErrSearchFailed, err, verr)
		}
		return Response{Results: vres, Partial: true}, nil
	}
	if len(results) == 0 {
		vres, verr := p.vectorSearch(ctx, ws, query, limit)
		if verr != nil {
			// The graph answered (with nothing); an empty result is
			// still a complete answer.
			p.logger.Warn(ctx, "vector fallback failed", zap.Error(verr))
			return Response{Partial: true}, nil
		}
		return Response{Results: vres}, nil
	}
	return Response{Results: results}, nil
}

// vectorFirst embeds the query and searches, degrading to the graph when
// the vector backend is down and a symbol was detected.
func (p *Planner) vectorFirst(ctx context.Context, ws *workspace.Workspace, query string, rt route, limit int) (Response, error) {
	results, err := p.vectorSearch(ctx, ws, query, limit)
	if err != nil {
		p.logger.Warn(ctx, "vector backend failed, degrading to graph", zap.Error(err))
		gres, gerr := p.graphSearch(ctx, ws, rt, limit)
		if gerr != nil {
			return Response{}, fmt.Errorf("%w: vector: %v; graph: %v", ErrSearchFailed, err, gerr)
		}
		return Response{Results: gres, Partial: true}, nil
	}
	return Response{Results: results}, nil
}

// hybrid runs both backends in parallel and fuses the scores. One side
// failing yields the other's results flagged partial.
func (p *Planner) hybrid(ctx context.Context, ws *workspace.Workspace, query string, rt route, limit int) (Response, error) {
	var (
		vres, gres []RankedResult
		verr, gerr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vres, verr = p.vectorSearch(gctx, ws, query, limit)
		return nil
	})
	g.Go(func() error {
		gres, gerr = p.graphSearch(gctx, ws, rt, limit)
		return nil
	})
	_ = g.Wait()

	switch {
	case verr != nil && gerr != nil:
		return Response{}, fmt.Errorf("%w: vector: %v; graph: %v", ErrSearchFailed, verr, gerr)
	case verr != nil:
		p.logger.Warn(ctx, "vector side failed during hybrid search", zap.Error(verr))
		return Response{Results: gres, Partial: true}, nil
	case gerr != nil:
		p.logger.Warn(ctx, "graph side failed during hybrid search", zap.Error(gerr))
		return Response{Results: vres, Partial: true}, nil
	}

	return Response{Results: p.fuse(vres, gres, limit)}, nil
}

// vectorSearch embeds the query and maps k-NN hits to results.
func (p *Planner) vectorSearch(ctx context.Context, ws *workspace.Workspace, query string, limit int) ([]RankedResult, error) {
	vec, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := p.vector.Query(ctx, ws.VectorNamespace, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	results := make([]RankedResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, RankedResult{
			EntityKey: metaString(h.Metadata, vectorstore.MetaEntityKey),
			FilePath:  metaString(h.Metadata, vectorstore.MetaFilePath),
			Name:      metaString(h.Metadata, vectorstore.MetaEntityName),
			Kind:      metaString(h.Metadata, vectorstore.MetaEntityKind),
			StartLine: metaInt(h.Metadata, vectorstore.MetaStartLine),
			Score:     float64(h.Score),
			Source:    SourceVector,
			Snippet:   truncate(h.Text, snippetLen),
		})
	}
	return results, nil
}

// graphSearch locates nodes matching the routed symbol and traverses
// outward, ranking matches by inverse path depth.
func (p *Planner) graphSearch(ctx context.Context, ws *workspace.Workspace, rt route, limit int) ([]RankedResult, error) {
	if rt.symbol == "" {
		return nil, nil
	}

	starts, err := p.graph.FindNodes(ctx, ws.GraphNamespace, rt.symbol)
	if err != nil {
		return nil, fmt.Errorf("finding nodes for %q: %w", rt.symbol, err)
	}

	best := make(map[string]RankedResult)
	keep := func(r RankedResult) {
		if prev, ok := best[r.EntityKey]; !ok || r.Score > prev.Score {
			best[r.EntityKey] = r
		}
	}

	for _, n := range starts {
		keep(nodeResult(n, 1.0))

		hits, err := p.graph.Traverse(ctx, ws.GraphNamespace, n.Key, rt.kinds, p.cfg.MaxDepth)
		if err != nil {
			return nil, fmt.Errorf("traversing from %q: %w", n.Key, err)
		}
		for _, h := range hits {
			keep(nodeResult(h.Node, 1.0/float64(1+h.Depth)))
		}
	}

	results := make([]RankedResult, 0, len(best))
	for _, r := range best {
		results = append(results, r)
	}
	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func nodeResult(n graphstore.Node, score float64) RankedResult {
	return RankedResult{
		EntityKey: n.Key,
		FilePath:  n.FilePath,
		Name:      n.Name,
		Kind:      n.Kind,
		StartLine: n.StartLine,
		Score:     score,
		Source:    SourceGraph,
	}
}

// fuse normalizes each side's scores to [0,1], weights them, and
// deduplicates by entity key.
func (p *Planner) fuse(vres, gres []RankedResult, limit int) []RankedResult {
	normalize(vres)
	normalize(gres)

	w := p.cfg.VectorWeight
	fused := make(map[string]RankedResult, len(vres)+len(gres))

	for _, r := range vres {
		r.Score *= w
		fused[r.EntityKey] = r
	}
	for _, r := range gres {
		gScore := r.Score * (1 - w)
		if prev, ok := fused[r.EntityKey]; ok {
			prev.Score += gScore
			prev.Source = SourceBoth
			fused[r.EntityKey] = prev
			continue
		}
		r.Score = gScore
		fused[r.EntityKey] = r
	}

	results := make([]RankedResult, 0, len(fused))
	for _, r := range fused {
		results = append(results, r)
	}
	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// normalize rescales scores to [0,1] in place by dividing by the maximum.
// Min-max would zero out the lowest result, which erases a short list's
// depth ranking; dividing by the max keeps every result contributing in
// proportion to its score. Negative scores shift up first.
func normalize(results []RankedResult) {
	if len(results) == 0 {
		return
	}
	lo, hi := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < lo {
			lo = r.Score
		}
		if r.Score > hi {
			hi = r.Score
		}
	}
	if lo < 0 {
		for i := range results {
			results[i].Score -= lo
		}
		hi -= lo
	}
	if hi <= 0 {
		for i := range results {
			results[i].Score = 1
		}
		return
	}
	for i := range results {
		results[i].Score /= hi
	}
}

// sortResults orders by score descending, tie-broken by entity key so
// responses are deterministic.
func sortResults(results []RankedResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].EntityKey < results[j].EntityKey
	})
}

func metaString(meta map[string]interface{}, key string) string {
	if meta == nil {
		return ""
	}
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}

func metaInt(meta map[string]interface{}, key string) int {
	n, _ := strconv.Atoi(metaString(meta, key))
	return n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}
