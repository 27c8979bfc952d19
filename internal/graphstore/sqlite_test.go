package graphstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/graphstore"
)

const testNamespace = "ws_alpha_1a2b3c4d_graph"

func newTestStore(t *testing.T) *graphstore.SQLiteStore {
	t.Helper()

	store, err := graphstore.NewSQLiteStore(graphstore.SQLiteConfig{
		Path: t.TempDir(),
	}, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func fileNode(filePath, name, kind, hash string, startLine int) graphstore.Node {
	return graphstore.Node{
		Key:         graphstore.NodeKey(filePath, name, kind),
		Name:        name,
		Kind:        kind,
		FilePath:    filePath,
		StartLine:   startLine,
		EndLine:     startLine + 10,
		ContentHash: hash,
	}
}

func TestSQLiteConfig_ApplyDefaults(t *testing.T) {
	config := graphstore.SQLiteConfig{}
	config.ApplyDefaults()

	assert.Equal(t, "~/.config/memoryagent/graphstore", config.Path)
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "graphstore")

	store, err := graphstore.NewSQLiteStore(graphstore.SQLiteConfig{Path: dir}, nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	assert.DirExists(t, dir)
}

func TestSQLiteStore_CreateNamespace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.CreateNamespace(ctx, testNamespace)
	require.NoError(t, err)

	exists, err := store.NamespaceExists(ctx, testNamespace)
	require.NoError(t, err)
	assert.True(t, exists)

	// Idempotent
	err = store.CreateNamespace(ctx, testNamespace)
	assert.NoError(t, err)
}

func TestSQLiteStore_CreateNamespace_InvalidName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"", "Uppercase_Name", "../memories", "has space", "dash-ed"} {
		err := store.CreateNamespace(ctx, name)
		assert.ErrorIs(t, err, graphstore.ErrInvalidNamespace, "name %q", name)
	}
}

func TestSQLiteStore_NamespaceExists_Unknown(t *testing.T) {
	store := newTestStore(t)

	exists, err := store.NamespaceExists(context.Background(), "ws_unknown_00000000_graph")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLiteStore_UpsertAndFindNodes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	nodes := []graphstore.Node{
		{
			Key:         graphstore.NodeKey("internal/server/handler.go", "HandleRequest", "Member"),
			Name:        "HandleRequest",
			Kind:        "Member",
			FilePath:    "internal/server/handler.go",
			StartLine:   42,
			EndLine:     80,
			ContentHash: "abc123",
			Tags:        []string{"handler", "http"},
		},
		fileNode("internal/server/handler.go", "handler.go", "File", "abc123", 1),
	}
	require.NoError(t, store.UpsertNodes(ctx, testNamespace, nodes))

	found, err := store.FindNodes(ctx, testNamespace, "HandleRequest")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "HandleRequest", found[0].Name)
	assert.Equal(t, "Member", found[0].Kind)
	assert.Equal(t, "internal/server/handler.go", found[0].FilePath)
	assert.Equal(t, 42, found[0].StartLine)
	assert.Equal(t, 80, found[0].EndLine)
	assert.Equal(t, "abc123", found[0].ContentHash)
	assert.Equal(t, []string{"handler", "http"}, found[0].Tags)
}

func TestSQLiteStore_FindNodes_CaseInsensitive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	node := fileNode("a.go", "HandleRequest", "Member", "h1", 10)
	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{node}))

	found, err := store.FindNodes(ctx, testNamespace, "handlerequest")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "HandleRequest", found[0].Name)
}

func TestSQLiteStore_FindNodes_NoMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateNamespace(ctx, testNamespace))

	found, err := store.FindNodes(ctx, testNamespace, "nothing")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSQLiteStore_FindNodes_MissingNamespace(t *testing.T) {
	store := newTestStore(t)

	_, err := store.FindNodes(context.Background(), "ws_missing_00000000_graph", "foo")
	assert.ErrorIs(t, err, graphstore.ErrNamespaceNotFound)
}

func TestSQLiteStore_UpsertNodes_EmptyIsNoOp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertNodes(ctx, testNamespace, nil))
	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{}))

	// An empty write must not provision the namespace as a side effect
	exists, err := store.NamespaceExists(ctx, testNamespace)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLiteStore_UpsertNodes_MissingKey(t *testing.T) {
	store := newTestStore(t)

	err := store.UpsertNodes(context.Background(), testNamespace, []graphstore.Node{
		{Name: "foo", Kind: "Member", FilePath: "a.go"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func TestSQLiteStore_UpsertNodes_ReplacesByKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	node := fileNode("a.go", "foo", "Member", "hash_v1", 5)
	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{node}))

	node.ContentHash = "hash_v2"
	node.StartLine = 7
	node.EndLine = 20
	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{node}))

	found, err := store.FindNodes(ctx, testNamespace, "foo")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "hash_v2", found[0].ContentHash)
	assert.Equal(t, 7, found[0].StartLine)
	assert.Equal(t, 20, found[0].EndLine)
}

func TestSQLiteStore_NodesByFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{
		fileNode("a.go", "second", "Member", "h", 30),
		fileNode("a.go", "first", "Type", "h", 10),
		fileNode("b.go", "other", "Type", "h2", 1),
	}))

	nodes, err := store.NodesByFile(ctx, testNamespace, "a.go")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "first", nodes[0].Name)
	assert.Equal(t, "second", nodes[1].Name)
}

func TestSQLiteStore_UpsertEdges_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fooKey := graphstore.NodeKey("a.go", "foo", "Member")
	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{
		fileNode("a.go", "foo", "Member", "h1", 1),
		fileNode("b.go", "bar", "Member", "h2", 1),
	}))

	edge := graphstore.Edge{FromKey: fooKey, ToName: "bar", Kind: "Calls", FilePath: "a.go"}
	require.NoError(t, store.UpsertEdges(ctx, testNamespace, []graphstore.Edge{edge}))
	require.NoError(t, store.UpsertEdges(ctx, testNamespace, []graphstore.Edge{edge}))

	hits, err := store.Traverse(ctx, testNamespace, fooKey, nil, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSQLiteStore_UpsertEdges_MissingFields(t *testing.T) {
	store := newTestStore(t)

	err := store.UpsertEdges(context.Background(), testNamespace, []graphstore.Edge{
		{FromKey: "a.go#foo#Member", Kind: "Calls"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func TestSQLiteStore_Traverse_Outgoing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fooKey := graphstore.NodeKey("a.go", "foo", "Member")
	barKey := graphstore.NodeKey("b.go", "bar", "Member")
	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{
		fileNode("a.go", "foo", "Member", "h1", 1),
		fileNode("b.go", "bar", "Member", "h2", 1),
	}))
	require.NoError(t, store.UpsertEdges(ctx, testNamespace, []graphstore.Edge{
		{FromKey: fooKey, ToName: "bar", Kind: "Calls", FilePath: "a.go"},
	}))

	hits, err := store.Traverse(ctx, testNamespace, fooKey, nil, 2)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, barKey, hits[0].Node.Key)
	assert.Equal(t, 1, hits[0].Depth)
	assert.Equal(t, []string{fooKey, barKey}, hits[0].Path)
}

func TestSQLiteStore_Traverse_Incoming(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// "who calls bar": start at bar, follow the edge backwards
	fooKey := graphstore.NodeKey("a.go", "foo", "Member")
	barKey := graphstore.NodeKey("b.go", "bar", "Member")
	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{
		fileNode("a.go", "foo", "Member", "h1", 1),
		fileNode("b.go", "bar", "Member", "h2", 1),
	}))
	require.NoError(t, store.UpsertEdges(ctx, testNamespace, []graphstore.Edge{
		{FromKey: fooKey, ToName: "bar", Kind: "Calls", FilePath: "a.go"},
	}))

	hits, err := store.Traverse(ctx, testNamespace, barKey, []string{"Calls"}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, fooKey, hits[0].Node.Key)
	assert.Equal(t, 1, hits[0].Depth)
}

func TestSQLiteStore_Traverse_KindFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fooKey := graphstore.NodeKey("a.go", "foo", "Member")
	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{
		fileNode("a.go", "foo", "Member", "h1", 1),
		fileNode("b.go", "bar", "Member", "h2", 1),
	}))
	require.NoError(t, store.UpsertEdges(ctx, testNamespace, []graphstore.Edge{
		{FromKey: fooKey, ToName: "bar", Kind: "Calls", FilePath: "a.go"},
	}))

	hits, err := store.Traverse(ctx, testNamespace, fooKey, []string{"Uses", "Inherits"}, 2)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = store.Traverse(ctx, testNamespace, fooKey, []string{"Calls"}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSQLiteStore_Traverse_DepthBound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fooKey := graphstore.NodeKey("a.go", "foo", "Member")
	barKey := graphstore.NodeKey("b.go", "bar", "Member")
	bazKey := graphstore.NodeKey("c.go", "baz", "Member")
	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{
		fileNode("a.go", "foo", "Member", "h1", 1),
		fileNode("b.go", "bar", "Member", "h2", 1),
		fileNode("c.go", "baz", "Member", "h3", 1),
	}))
	require.NoError(t, store.UpsertEdges(ctx, testNamespace, []graphstore.Edge{
		{FromKey: fooKey, ToName: "bar", Kind: "Calls", FilePath: "a.go"},
		{FromKey: barKey, ToName: "baz", Kind: "Calls", FilePath: "b.go"},
	}))

	hits, err := store.Traverse(ctx, testNamespace, fooKey, nil, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, barKey, hits[0].Node.Key)

	hits, err = store.Traverse(ctx, testNamespace, fooKey, nil, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, barKey, hits[0].Node.Key)
	assert.Equal(t, 1, hits[0].Depth)
	assert.Equal(t, bazKey, hits[1].Node.Key)
	assert.Equal(t, 2, hits[1].Depth)
	assert.Equal(t, []string{fooKey, barKey, bazKey}, hits[1].Path)
}

func TestSQLiteStore_Traverse_CycleTerminates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fooKey := graphstore.NodeKey("a.go", "foo", "Member")
	barKey := graphstore.NodeKey("b.go", "bar", "Member")
	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{
		fileNode("a.go", "foo", "Member", "h1", 1),
		fileNode("b.go", "bar", "Member", "h2", 1),
	}))
	require.NoError(t, store.UpsertEdges(ctx, testNamespace, []graphstore.Edge{
		{FromKey: fooKey, ToName: "bar", Kind: "Calls", FilePath: "a.go"},
		{FromKey: barKey, ToName: "foo", Kind: "Calls", FilePath: "b.go"},
	}))

	hits, err := store.Traverse(ctx, testNamespace, fooKey, nil, 3)
	require.NoError(t, err)
	// bar is the only node reachable; the cycle back to foo is not revisited
	require.Len(t, hits, 1)
	assert.Equal(t, barKey, hits[0].Node.Key)
}

func TestSQLiteStore_Traverse_SymbolicTargetResolvesAllNodes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Two distinct entities named bar; a symbolic Calls edge reaches both
	fooKey := graphstore.NodeKey("a.go", "foo", "Member")
	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{
		fileNode("a.go", "foo", "Member", "h1", 1),
		fileNode("b.go", "bar", "Member", "h2", 1),
		fileNode("c.go", "bar", "Member", "h3", 1),
	}))
	require.NoError(t, store.UpsertEdges(ctx, testNamespace, []graphstore.Edge{
		{FromKey: fooKey, ToName: "bar", Kind: "Calls", FilePath: "a.go"},
	}))

	hits, err := store.Traverse(ctx, testNamespace, fooKey, nil, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSQLiteStore_Traverse_StartNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateNamespace(ctx, testNamespace))

	_, err := store.Traverse(ctx, testNamespace, "a.go#ghost#Member", nil, 2)
	assert.ErrorIs(t, err, graphstore.ErrNodeNotFound)
}

func TestSQLiteStore_Traverse_InvalidArgs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{
		fileNode("a.go", "foo", "Member", "h1", 1),
	}))

	_, err := store.Traverse(ctx, testNamespace, "", nil, 2)
	require.Error(t, err)

	_, err = store.Traverse(ctx, testNamespace, graphstore.NodeKey("a.go", "foo", "Member"), nil, 0)
	require.Error(t, err)
}

func TestSQLiteStore_DeleteByFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fooKey := graphstore.NodeKey("a.go", "foo", "Member")
	barKey := graphstore.NodeKey("b.go", "bar", "Member")
	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{
		fileNode("a.go", "foo", "Member", "h1", 1),
		fileNode("b.go", "bar", "Member", "h2", 1),
	}))
	require.NoError(t, store.UpsertEdges(ctx, testNamespace, []graphstore.Edge{
		{FromKey: fooKey, ToName: "bar", Kind: "Calls", FilePath: "a.go"},
	}))

	require.NoError(t, store.DeleteByFile(ctx, testNamespace, "a.go"))

	nodes, err := store.NodesByFile(ctx, testNamespace, "a.go")
	require.NoError(t, err)
	assert.Empty(t, nodes)

	// b.go's node survives, and the edge owned by a.go is gone
	nodes, err = store.NodesByFile(ctx, testNamespace, "b.go")
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	hits, err := store.Traverse(ctx, testNamespace, barKey, []string{"Calls"}, 1)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSQLiteStore_DeleteByFile_NoOps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Missing namespace
	assert.NoError(t, store.DeleteByFile(ctx, "ws_missing_00000000_graph", "a.go"))

	// Untracked file
	require.NoError(t, store.CreateNamespace(ctx, testNamespace))
	assert.NoError(t, store.DeleteByFile(ctx, testNamespace, "never_indexed.go"))

	// Empty path is a caller bug
	err := store.DeleteByFile(ctx, testNamespace, "")
	assert.Error(t, err)
}

func TestSQLiteStore_FileHashes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{
		fileNode("a.go", "a.go", "File", "hash_a", 1),
		fileNode("a.go", "foo", "Member", "hash_a", 5),
		fileNode("b.go", "b.go", "File", "hash_b", 1),
	}))

	hashes, err := store.FileHashes(ctx, testNamespace)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.go": "hash_a", "b.go": "hash_b"}, hashes)

	// Reindexing a file replaces its recorded hash
	require.NoError(t, store.DeleteByFile(ctx, testNamespace, "a.go"))
	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{
		fileNode("a.go", "a.go", "File", "hash_a2", 1),
		fileNode("a.go", "foo", "Member", "hash_a2", 5),
	}))

	hashes, err = store.FileHashes(ctx, testNamespace)
	require.NoError(t, err)
	assert.Equal(t, "hash_a2", hashes["a.go"])
}

func TestSQLiteStore_FileHashes_MissingNamespace(t *testing.T) {
	store := newTestStore(t)

	_, err := store.FileHashes(context.Background(), "ws_missing_00000000_graph")
	assert.ErrorIs(t, err, graphstore.ErrNamespaceNotFound)
}

func TestSQLiteStore_NamespaceIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	nsA := "ws_alpha_1a2b3c4d_graph"
	nsB := "ws_beta_5e6f7a8b_graph"

	fooKey := graphstore.NodeKey("a.go", "foo", "Member")
	require.NoError(t, store.UpsertNodes(ctx, nsA, []graphstore.Node{
		fileNode("a.go", "foo", "Member", "h1", 1),
		fileNode("b.go", "bar", "Member", "h2", 1),
	}))
	require.NoError(t, store.UpsertEdges(ctx, nsA, []graphstore.Edge{
		{FromKey: fooKey, ToName: "bar", Kind: "Calls", FilePath: "a.go"},
	}))
	require.NoError(t, store.UpsertNodes(ctx, nsB, []graphstore.Node{
		fileNode("a.go", "foo", "Member", "other", 1),
	}))

	// Identical start key, but B has no edges: nothing leaks from A
	hits, err := store.Traverse(ctx, nsB, fooKey, nil, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Deleting B leaves A intact
	require.NoError(t, store.DeleteNamespace(ctx, nsB))
	found, err := store.FindNodes(ctx, nsA, "foo")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestSQLiteStore_DeleteNamespace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{
		fileNode("a.go", "foo", "Member", "h1", 1),
	}))

	require.NoError(t, store.DeleteNamespace(ctx, testNamespace))

	exists, err := store.NamespaceExists(ctx, testNamespace)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.FindNodes(ctx, testNamespace, "foo")
	assert.ErrorIs(t, err, graphstore.ErrNamespaceNotFound)

	// Idempotent
	assert.NoError(t, store.DeleteNamespace(ctx, testNamespace))

	// Re-provisioning starts empty
	require.NoError(t, store.CreateNamespace(ctx, testNamespace))
	found, err := store.FindNodes(ctx, testNamespace, "foo")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSQLiteStore_PersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := graphstore.NewSQLiteStore(graphstore.SQLiteConfig{Path: dir}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, store.UpsertNodes(ctx, testNamespace, []graphstore.Node{
		fileNode("a.go", "foo", "Member", "hash_a", 1),
	}))
	require.NoError(t, store.Close())

	reopened, err := graphstore.NewSQLiteStore(graphstore.SQLiteConfig{Path: dir}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	exists, err := reopened.NamespaceExists(ctx, testNamespace)
	require.NoError(t, err)
	assert.True(t, exists)

	found, err := reopened.FindNodes(ctx, testNamespace, "foo")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "hash_a", found[0].ContentHash)

	hashes, err := reopened.FileHashes(ctx, testNamespace)
	require.NoError(t, err)
	assert.Equal(t, "hash_a", hashes["a.go"])
}

func TestSQLiteStore_Close(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateNamespace(ctx, testNamespace))
	require.NoError(t, store.Close())

	// Close is idempotent
	assert.NoError(t, store.Close())

	_, err := store.FindNodes(ctx, testNamespace, "foo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestSQLiteStore_NamespaceFileOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := graphstore.NewSQLiteStore(graphstore.SQLiteConfig{Path: dir}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.CreateNamespace(ctx, testNamespace))

	_, err = os.Stat(filepath.Join(dir, testNamespace+".db"))
	assert.NoError(t, err)
}
