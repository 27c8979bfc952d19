package planner_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/graphstore"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/planner"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/vectorstore"
	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/workspace"
)

type stubEmbedder struct {
	fail error
}

func (s *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	return []float32{1, 0, 0}, nil
}

// stubVector serves canned query results and counts queries.
type stubVector struct {
	mu      sync.Mutex
	results []vectorstore.SearchResult
	fail    error
	queries int
}

func (s *stubVector) CreateNamespace(context.Context, string) error { return nil }
func (s *stubVector) NamespaceExists(context.Context, string) (bool, error) {
	return true, nil
}
func (s *stubVector) DeleteNamespace(context.Context, string) error { return nil }
func (s *stubVector) Upsert(context.Context, string, []vectorstore.Document) error {
	return nil
}
func (s *stubVector) Delete(context.Context, string, []string) error     { return nil }
func (s *stubVector) DeleteByFile(context.Context, string, string) error { return nil }
func (s *stubVector) Close() error                                       { return nil }

func (s *stubVector) Query(context.Context, string, []float32, int) ([]vectorstore.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.fail != nil {
		return nil, s.fail
	}
	return s.results, nil
}

func (s *stubVector) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

// stubGraph serves canned nodes and traversal hits.
type stubGraph struct {
	nodes map[string][]graphstore.Node
	hits  map[string][]graphstore.TraversalHit
	fail  error
}

func (s *stubGraph) CreateNamespace(context.Context, string) error         { return nil }
func (s *stubGraph) NamespaceExists(context.Context, string) (bool, error) { return true, nil }
func (s *stubGraph) DeleteNamespace(context.Context, string) error         { return nil }
func (s *stubGraph) UpsertNodes(context.Context, string, []graphstore.Node) error {
	return nil
}
func (s *stubGraph) UpsertEdges(context.Context, string, []graphstore.Edge) error {
	return nil
}
func (s *stubGraph) DeleteByFile(context.Context, string, string) error { return nil }
func (s *stubGraph) NodesByFile(context.Context, string, string) ([]graphstore.Node, error) {
	return nil, nil
}
func (s *stubGraph) FileHashes(context.Context, string) (map[string]string, error) {
	return nil, nil
}
func (s *stubGraph) Close() error { return nil }

func (s *stubGraph) FindNodes(_ context.Context, _ string, name string) ([]graphstore.Node, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	return s.nodes[name], nil
}

func (s *stubGraph) Traverse(_ context.Context, _ string, startKey string, _ []string, _ int) ([]graphstore.TraversalHit, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	return s.hits[startKey], nil
}

type stubFiles struct{ count int }

func (s *stubFiles) FileCount(string) int { return s.count }

func testWS() *workspace.Workspace {
	return &workspace.Workspace{
		ID:              "ws_alpha_1a2b3c4d",
		RootPath:        "/tmp/alpha",
		VectorNamespace: "ws_alpha_1a2b3c4d_vec",
		GraphNamespace:  "ws_alpha_1a2b3c4d_graph",
	}
}

func vecHit(entityKey, file, name string, score float32) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		ID:    entityKey + "-chunk",
		Text:  "some chunk text",
		Score: score,
		Metadata: map[string]interface{}{
			vectorstore.MetaEntityKey:  entityKey,
			vectorstore.MetaFilePath:   file,
			vectorstore.MetaEntityName: name,
			vectorstore.MetaEntityKind: "member",
			vectorstore.MetaStartLine:  "1",
		},
	}
}

func newPlanner(t *testing.T, vec *stubVector, graph *stubGraph, files *stubFiles) *planner.Planner {
	t.Helper()

	p, err := planner.New(planner.Config{}, vec, graph, &stubEmbedder{}, files, nil)
	require.NoError(t, err)
	return p
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	p := newPlanner(t, &stubVector{}, &stubGraph{}, &stubFiles{count: 1})

	_, err := p.Search(context.Background(), testWS(), "", 10, planner.ModeAuto)
	assert.ErrorIs(t, err, planner.ErrEmptyQuery)
}

func TestSearch_EmptyWorkspaceReturnsNotIndexed(t *testing.T) {
	vec := &stubVector{}
	p := newPlanner(t, vec, &stubGraph{}, &stubFiles{count: 0})

	resp, err := p.Search(context.Background(), testWS(), "anything", 10, planner.ModeAuto)
	require.NoError(t, err)

	assert.Equal(t, planner.StatusNotIndexed, resp.Status)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, vec.queryCount(), "no backend consulted for an empty workspace")
}

func TestSearch_RelationQueryRoutesToGraph(t *testing.T) {
	// a.txt defines foo which calls bar; b.txt defines bar.
	fooKey := graphstore.NodeKey("a.txt", "foo", "member")
	barKey := graphstore.NodeKey("b.txt", "bar", "member")

	graph := &stubGraph{
		nodes: map[string][]graphstore.Node{
			"bar": {{Key: barKey, Name: "bar", Kind: "member", FilePath: "b.txt"}},
		},
		hits: map[string][]graphstore.TraversalHit{
			barKey: {{
				Node:  graphstore.Node{Key: fooKey, Name: "foo", Kind: "member", FilePath: "a.txt"},
				Depth: 1,
				Path:  []string{barKey, fooKey},
			}},
		},
	}
	vec := &stubVector{results: []vectorstore.SearchResult{vecHit(barKey, "b.txt", "bar", 0.9)}}
	p := newPlanner(t, vec, graph, &stubFiles{count: 2})

	resp, err := p.Search(context.Background(), testWS(), "what calls bar", 10, planner.ModeAuto)
	require.NoError(t, err)

	assert.Equal(t, planner.StrategyGraph, resp.Strategy)
	assert.Equal(t, 0, vec.queryCount(), "graph answered, vector never consulted")
	require.Len(t, resp.Results, 2)

	// The named symbol ranks first, its caller right behind it.
	assert.Equal(t, barKey, resp.Results[0].EntityKey)
	assert.Equal(t, fooKey, resp.Results[1].EntityKey)
	assert.Equal(t, "a.txt", resp.Results[1].FilePath)
	assert.Equal(t, planner.SourceGraph, resp.Results[1].Source)
}

func TestSearch_GraphMissFallsBackToVector(t *testing.T) {
	vec := &stubVector{results: []vectorstore.SearchResult{vecHit("k1", "a.txt", "foo", 0.8)}}
	p := newPlanner(t, vec, &stubGraph{}, &stubFiles{count: 1})

	resp, err := p.Search(context.Background(), testWS(), "what calls nonexistent", 10, planner.ModeAuto)
	require.NoError(t, err)

	assert.Equal(t, planner.StrategyGraph, resp.Strategy)
	assert.False(t, resp.Partial)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, planner.SourceVector, resp.Results[0].Source)
}

func TestSearch_NaturalLanguageRoutesToVector(t *testing.T) {
	vec := &stubVector{results: []vectorstore.SearchResult{vecHit("k1", "auth.go", "login", 0.7)}}
	p := newPlanner(t, vec, &stubGraph{}, &stubFiles{count: 1})

	resp, err := p.Search(context.Background(), testWS(), "how does authentication work", 10, planner.ModeAuto)
	require.NoError(t, err)

	assert.Equal(t, planner.StrategyVector, resp.Strategy)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "auth.go", resp.Results[0].FilePath)
}

func TestSearch_HybridFusesAndDedups(t *testing.T) {
	shared := graphstore.NodeKey("a.txt", "foo", "member")
	graph := &stubGraph{
		nodes: map[string][]graphstore.Node{
			"foo_handler": {{Key: shared, Name: "foo", Kind: "member", FilePath: "a.txt"}},
		},
	}
	vec := &stubVector{results: []vectorstore.SearchResult{
		vecHit(shared, "a.txt", "foo", 0.9),
		vecHit("other", "b.txt", "bar", 0.4),
	}}
	p := newPlanner(t, vec, graph, &stubFiles{count: 2})

	resp, err := p.Search(context.Background(), testWS(), "foo_handler", 10, planner.ModeHybrid)
	require.NoError(t, err)

	assert.Equal(t, planner.StrategyHybrid, resp.Strategy)
	require.Len(t, resp.Results, 2, "shared entity deduplicated")

	assert.Equal(t, shared, resp.Results[0].EntityKey)
	assert.Equal(t, planner.SourceBoth, resp.Results[0].Source)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 0.001, "0.6 vector + 0.4 graph")
	assert.Greater(t, resp.Results[0].Score, resp.Results[1].Score)
}

func TestSearch_HybridDeepGraphHitStillContributes(t *testing.T) {
	startKey := graphstore.NodeKey("a.txt", "foo", "member")
	deepKey := graphstore.NodeKey("b.txt", "bar", "member")

	graph := &stubGraph{
		nodes: map[string][]graphstore.Node{
			"foo_handler": {{Key: startKey, Name: "foo", Kind: "member", FilePath: "a.txt"}},
		},
		hits: map[string][]graphstore.TraversalHit{
			startKey: {{
				Node:  graphstore.Node{Key: deepKey, Name: "bar", Kind: "member", FilePath: "b.txt"},
				Depth: 1,
				Path:  []string{startKey, deepKey},
			}},
		},
	}
	vec := &stubVector{results: []vectorstore.SearchResult{vecHit(startKey, "a.txt", "foo", 0.9)}}
	p := newPlanner(t, vec, graph, &stubFiles{count: 2})

	resp, err := p.Search(context.Background(), testWS(), "foo_handler", 10, planner.ModeHybrid)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	// The traversal hit scores 0.5 against the start node's 1.0; after
	// dividing by the max it keeps half the graph weight instead of
	// collapsing to zero.
	assert.Equal(t, deepKey, resp.Results[1].EntityKey)
	assert.InDelta(t, 0.2, resp.Results[1].Score, 0.001)
	assert.Greater(t, resp.Results[1].Score, 0.0)
}

func TestSearch_HybridDegradesWhenOneBackendDown(t *testing.T) {
	shared := graphstore.NodeKey("a.txt", "foo", "member")
	graph := &stubGraph{
		nodes: map[string][]graphstore.Node{
			"foo_handler": {{Key: shared, Name: "foo", Kind: "member", FilePath: "a.txt"}},
		},
	}
	vec := &stubVector{fail: errors.New("backend down")}
	p := newPlanner(t, vec, graph, &stubFiles{count: 1})

	resp, err := p.Search(context.Background(), testWS(), "foo_handler", 10, planner.ModeHybrid)
	require.NoError(t, err)

	assert.True(t, resp.Partial)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, planner.SourceGraph, resp.Results[0].Source)
}

func TestSearch_BothBackendsDownFails(t *testing.T) {
	vec := &stubVector{fail: errors.New("vector down")}
	graph := &stubGraph{fail: errors.New("graph down")}
	p := newPlanner(t, vec, graph, &stubFiles{count: 1})

	_, err := p.Search(context.Background(), testWS(), "foo_handler", 10, planner.ModeHybrid)
	assert.ErrorIs(t, err, planner.ErrSearchFailed)
}

func TestSearch_CachesAndInvalidates(t *testing.T) {
	ws := testWS()
	vec := &stubVector{results: []vectorstore.SearchResult{vecHit("k1", "a.txt", "foo", 0.8)}}
	p := newPlanner(t, vec, &stubGraph{}, &stubFiles{count: 1})

	_, err := p.Search(context.Background(), ws, "how does indexing work", 10, planner.ModeAuto)
	require.NoError(t, err)
	_, err = p.Search(context.Background(), ws, "how does indexing work", 10, planner.ModeAuto)
	require.NoError(t, err)

	assert.Equal(t, 1, vec.queryCount(), "second search served from cache")

	p.Invalidate(ws.ID)
	_, err = p.Search(context.Background(), ws, "how does indexing work", 10, planner.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, 2, vec.queryCount(), "invalidation forces a fresh query")
}

func TestSearch_ExplicitModeOverridesClassification(t *testing.T) {
	vec := &stubVector{results: []vectorstore.SearchResult{vecHit("k1", "a.txt", "bar", 0.8)}}
	p := newPlanner(t, vec, &stubGraph{}, &stubFiles{count: 1})

	// "what calls bar" would normally route to the graph.
	resp, err := p.Search(context.Background(), testWS(), "what calls bar", 10, planner.ModeVector)
	require.NoError(t, err)

	assert.Equal(t, planner.StrategyVector, resp.Strategy)
	assert.Equal(t, 1, vec.queryCount())
}
