package vectorstore_test

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/vectorstore"
)

const testDim = 4

func newTestChromemStore(t *testing.T, embedder vectorstore.Embedder) (*vectorstore.ChromemStore, string) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "chromem_test_*")
	require.NoError(t, err)

	config := vectorstore.ChromemConfig{
		Path:       tmpDir,
		Compress:   false, // Faster for tests
		VectorSize: testDim,
	}

	store, err := vectorstore.NewChromemStore(config, embedder, zap.NewNop())
	require.NoError(t, err)

	return store, tmpDir
}

func TestChromemConfig_ApplyDefaults(t *testing.T) {
	config := vectorstore.ChromemConfig{}
	config.ApplyDefaults()

	assert.Equal(t, "~/.config/memoryagent/vectorstore", config.Path)
	assert.Equal(t, 384, config.VectorSize)
}

func TestChromemConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		config    vectorstore.ChromemConfig
		wantError bool
	}{
		{
			name: "valid config",
			config: vectorstore.ChromemConfig{
				Path:       "/tmp/test",
				VectorSize: 384,
			},
			wantError: false,
		},
		{
			name: "zero vector size",
			config: vectorstore.ChromemConfig{
				Path:       "/tmp/test",
				VectorSize: 0,
			},
			wantError: true,
		},
		{
			name: "negative vector size",
			config: vectorstore.ChromemConfig{
				Path:       "/tmp/test",
				VectorSize: -1,
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewChromemStore(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, &TestEmbedder{VectorSize: testDim})
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	assert.NotNil(t, store)
}

func TestNewChromemStore_ExpandsHomePath(t *testing.T) {
	config := vectorstore.ChromemConfig{
		Path:       "~/.config/memoryagent/test_vectorstore",
		VectorSize: testDim,
	}

	store, err := vectorstore.NewChromemStore(config, nil, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	home, _ := os.UserHomeDir()
	os.RemoveAll(filepath.Join(home, ".config/memoryagent/test_vectorstore"))
}

func TestNewChromemStore_NilEmbedder(t *testing.T) {
	// The indexing pipeline precomputes vectors, so the store works
	// without an embedder of its own.
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateNamespace(ctx, "ws_test_vec"))

	err := store.Upsert(ctx, "ws_test_vec", []vectorstore.Document{
		{ID: "doc1", Text: "has a vector", Vector: unitVector(testDim, 0)},
	})
	assert.NoError(t, err)
}

func TestChromemStore_CreateNamespace(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	ctx := context.Background()

	err := store.CreateNamespace(ctx, "ws_myrepo_1a2b3c4d_vec")
	require.NoError(t, err)

	exists, err := store.NamespaceExists(ctx, "ws_myrepo_1a2b3c4d_vec")
	require.NoError(t, err)
	assert.True(t, exists)

	// Creating again is a no-op
	err = store.CreateNamespace(ctx, "ws_myrepo_1a2b3c4d_vec")
	assert.NoError(t, err)
}

func TestChromemStore_CreateNamespace_InvalidName(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	ctx := context.Background()

	for _, name := range []string{"", "Uppercase_Name", "../memories", "has space", "dash-ed"} {
		err := store.CreateNamespace(ctx, name)
		assert.ErrorIs(t, err, vectorstore.ErrInvalidNamespace, "namespace %q", name)
	}
}

func TestChromemStore_NamespaceExists_Unknown(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	exists, err := store.NamespaceExists(context.Background(), "ws_never_created")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestChromemStore_UpsertAndQuery(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	ctx := context.Background()
	ns := "ws_test_vec"

	docs := []vectorstore.Document{
		{
			ID:     "doc_a",
			Text:   "func Login(user string) error",
			Vector: unitVector(testDim, 0),
			Metadata: map[string]interface{}{
				vectorstore.MetaFilePath: "internal/auth/login.go",
				"start_line":             "10",
			},
		},
		{
			ID:     "doc_b",
			Text:   "func ParseConfig(path string) (*Config, error)",
			Vector: unitVector(testDim, 1),
			Metadata: map[string]interface{}{
				vectorstore.MetaFilePath: "internal/config/config.go",
			},
		},
		{
			ID:     "doc_c",
			Text:   "type Store interface",
			Vector: unitVector(testDim, 2),
			Metadata: map[string]interface{}{
				vectorstore.MetaFilePath: "internal/store/store.go",
			},
		},
	}

	require.NoError(t, store.Upsert(ctx, ns, docs))

	results, err := store.Query(ctx, ns, unitVector(testDim, 0), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The query vector equals doc_a's vector, so doc_a wins with
	// similarity 1. The others are orthogonal.
	assert.Equal(t, "doc_a", results[0].ID)
	assert.Equal(t, "func Login(user string) error", results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 0.01)
	assert.Greater(t, results[0].Score, results[1].Score)

	// Metadata round trip
	assert.Equal(t, "internal/auth/login.go", results[0].Metadata[vectorstore.MetaFilePath])
	assert.Equal(t, "10", results[0].Metadata["start_line"])
}

func TestChromemStore_Upsert_EmptyReturnsError(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	err := store.Upsert(context.Background(), "ws_test_vec", nil)
	assert.ErrorIs(t, err, vectorstore.ErrEmptyDocuments)

	err = store.Upsert(context.Background(), "ws_test_vec", []vectorstore.Document{})
	assert.ErrorIs(t, err, vectorstore.ErrEmptyDocuments)
}

func TestChromemStore_Upsert_MissingVector(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	err := store.Upsert(context.Background(), "ws_test_vec", []vectorstore.Document{
		{ID: "doc1", Text: "no vector and no embedder"},
	})
	assert.ErrorIs(t, err, vectorstore.ErrMissingVector)
}

func TestChromemStore_Upsert_MissingID(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	err := store.Upsert(context.Background(), "ws_test_vec", []vectorstore.Document{
		{Text: "anonymous", Vector: unitVector(testDim, 0)},
	})
	assert.Error(t, err)
}

func TestChromemStore_Upsert_AutoEmbeds(t *testing.T) {
	embedder := &TestEmbedder{VectorSize: testDim}
	store, tmpDir := newTestChromemStore(t, embedder)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	ctx := context.Background()
	ns := "ws_test_vec"

	// No Vector set: chromem embeds through the store's embedder.
	err := store.Upsert(ctx, ns, []vectorstore.Document{
		{ID: "doc1", Text: "worker pool drains the queue"},
	})
	require.NoError(t, err)

	queryVec, err := embedder.EmbedQuery(ctx, "worker pool drains the queue")
	require.NoError(t, err)

	results, err := store.Query(ctx, ns, queryVec, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 0.01)
}

func TestChromemStore_Upsert_ReplacesByID(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	ctx := context.Background()
	ns := "ws_test_vec"

	require.NoError(t, store.Upsert(ctx, ns, []vectorstore.Document{
		{ID: "doc1", Text: "old text", Vector: unitVector(testDim, 0)},
	}))
	require.NoError(t, store.Upsert(ctx, ns, []vectorstore.Document{
		{ID: "doc1", Text: "new text", Vector: unitVector(testDim, 1)},
	}))

	// Asking for more results than documents proves only one version
	// survives the second write.
	results, err := store.Query(ctx, ns, unitVector(testDim, 1), 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new text", results[0].Text)
}

func TestChromemStore_Delete(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	ctx := context.Background()
	ns := "ws_test_vec"

	require.NoError(t, store.Upsert(ctx, ns, []vectorstore.Document{
		{ID: "doc1", Text: "to delete", Vector: unitVector(testDim, 0)},
		{ID: "doc2", Text: "to keep", Vector: unitVector(testDim, 1)},
	}))

	require.NoError(t, store.Delete(ctx, ns, []string{"doc1"}))

	results, err := store.Query(ctx, ns, unitVector(testDim, 1), 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc2", results[0].ID)
}

func TestChromemStore_Delete_NoOps(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	ctx := context.Background()

	// Missing namespace
	assert.NoError(t, store.Delete(ctx, "ws_never_created", []string{"doc1"}))

	// Empty ID list
	assert.NoError(t, store.Delete(ctx, "ws_never_created", nil))
}

func TestChromemStore_DeleteByFile(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	ctx := context.Background()
	ns := "ws_test_vec"

	require.NoError(t, store.Upsert(ctx, ns, []vectorstore.Document{
		{
			ID: "a1", Text: "chunk one of a.go", Vector: unitVector(testDim, 0),
			Metadata: map[string]interface{}{vectorstore.MetaFilePath: "a.go"},
		},
		{
			ID: "a2", Text: "chunk two of a.go", Vector: unitVector(testDim, 1),
			Metadata: map[string]interface{}{vectorstore.MetaFilePath: "a.go"},
		},
		{
			ID: "b1", Text: "chunk one of b.go", Vector: unitVector(testDim, 2),
			Metadata: map[string]interface{}{vectorstore.MetaFilePath: "b.go"},
		},
	}))

	require.NoError(t, store.DeleteByFile(ctx, ns, "a.go"))

	// Only b.go's chunk survives
	results, err := store.Query(ctx, ns, unitVector(testDim, 2), 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b1", results[0].ID)
}

func TestChromemStore_DeleteByFile_NoOps(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	ctx := context.Background()

	// Missing namespace is fine: the tombstone path runs before the
	// first index of a file.
	assert.NoError(t, store.DeleteByFile(ctx, "ws_never_created", "a.go"))

	// Untracked file in an existing namespace is fine too
	require.NoError(t, store.CreateNamespace(ctx, "ws_test_vec"))
	assert.NoError(t, store.DeleteByFile(ctx, "ws_test_vec", "never_indexed.go"))

	// Empty path is not
	assert.Error(t, store.DeleteByFile(ctx, "ws_test_vec", ""))
}

func TestChromemStore_Query_NamespaceNotFound(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	_, err := store.Query(context.Background(), "ws_never_created", unitVector(testDim, 0), 5)
	assert.ErrorIs(t, err, vectorstore.ErrNamespaceNotFound)
}

func TestChromemStore_Query_EmptyNamespace(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateNamespace(ctx, "ws_test_vec"))

	results, err := store.Query(ctx, "ws_test_vec", unitVector(testDim, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStore_Query_CapsKAtDocumentCount(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	ctx := context.Background()
	ns := "ws_test_vec"

	require.NoError(t, store.Upsert(ctx, ns, []vectorstore.Document{
		{ID: "doc1", Text: "one", Vector: unitVector(testDim, 0)},
		{ID: "doc2", Text: "two", Vector: unitVector(testDim, 1)},
	}))

	results, err := store.Query(ctx, ns, unitVector(testDim, 0), 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestChromemStore_Query_InvalidArgs(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateNamespace(ctx, "ws_test_vec"))

	_, err := store.Query(ctx, "ws_test_vec", nil, 5)
	assert.Error(t, err)

	_, err = store.Query(ctx, "ws_test_vec", unitVector(testDim, 0), 0)
	assert.Error(t, err)
}

func TestChromemStore_NamespaceIsolation(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	ctx := context.Background()

	// Same document ID in two namespaces with different content
	require.NoError(t, store.Upsert(ctx, "ws_alpha_vec", []vectorstore.Document{
		{ID: "doc1", Text: "alpha content", Vector: unitVector(testDim, 0)},
	}))
	require.NoError(t, store.Upsert(ctx, "ws_beta_vec", []vectorstore.Document{
		{ID: "doc1", Text: "beta content", Vector: unitVector(testDim, 0)},
	}))

	results, err := store.Query(ctx, "ws_alpha_vec", unitVector(testDim, 0), 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha content", results[0].Text)

	// Dropping one namespace leaves the other untouched
	require.NoError(t, store.DeleteNamespace(ctx, "ws_beta_vec"))

	results, err = store.Query(ctx, "ws_alpha_vec", unitVector(testDim, 0), 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChromemStore_DeleteNamespace(t *testing.T) {
	store, tmpDir := newTestChromemStore(t, nil)
	defer os.RemoveAll(tmpDir)
	defer store.Close()

	ctx := context.Background()
	ns := "ws_test_vec"

	require.NoError(t, store.Upsert(ctx, ns, []vectorstore.Document{
		{ID: "doc1", Text: "ephemeral", Vector: unitVector(testDim, 0)},
	}))

	require.NoError(t, store.DeleteNamespace(ctx, ns))

	exists, err := store.NamespaceExists(ctx, ns)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Query(ctx, ns, unitVector(testDim, 0), 1)
	assert.ErrorIs(t, err, vectorstore.ErrNamespaceNotFound)

	// Deleting again is a no-op
	assert.NoError(t, store.DeleteNamespace(ctx, ns))
}

func TestChromemStore_PersistenceAcrossReopen(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "chromem_persist_*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	config := vectorstore.ChromemConfig{Path: tmpDir, VectorSize: testDim}
	ctx := context.Background()
	ns := "ws_test_vec"

	store1, err := vectorstore.NewChromemStore(config, nil, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, store1.Upsert(ctx, ns, []vectorstore.Document{
		{
			ID: "doc1", Text: "persisted chunk", Vector: unitVector(testDim, 0),
			Metadata: map[string]interface{}{vectorstore.MetaFilePath: "a.go"},
		},
	}))
	require.NoError(t, store1.Close())

	store2, err := vectorstore.NewChromemStore(config, nil, zap.NewNop())
	require.NoError(t, err)
	defer store2.Close()

	exists, err := store2.NamespaceExists(ctx, ns)
	require.NoError(t, err)
	assert.True(t, exists)

	results, err := store2.Query(ctx, ns, unitVector(testDim, 0), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1", results[0].ID)
	assert.Equal(t, "persisted chunk", results[0].Text)
	assert.Equal(t, "a.go", results[0].Metadata[vectorstore.MetaFilePath])
}

func TestChromemStore_QuarantinesCorruptCollection(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "chromem_corrupt_*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	config := vectorstore.ChromemConfig{Path: tmpDir, VectorSize: testDim}
	ctx := context.Background()
	ns := "ws_test_vec"

	store1, err := vectorstore.NewChromemStore(config, nil, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, store1.Upsert(ctx, ns, []vectorstore.Document{
		{ID: "doc1", Text: "doomed chunk", Vector: unitVector(testDim, 0)},
	}))
	require.NoError(t, store1.Close())

	// Corrupt the persisted collection by removing its metadata gob while
	// leaving the document gobs in place.
	hashDir := regexp.MustCompile(`^[a-f0-9]{8}$`)
	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)

	corrupted := 0
	for _, entry := range entries {
		if entry.IsDir() && hashDir.MatchString(entry.Name()) {
			require.NoError(t, os.Remove(filepath.Join(tmpDir, entry.Name(), "00000000.gob")))
			corrupted++
		}
	}
	require.Equal(t, 1, corrupted, "expected exactly one collection directory")

	// Reopening quarantines the corrupt collection instead of failing
	store2, err := vectorstore.NewChromemStore(config, nil, zap.NewNop())
	require.NoError(t, err)
	defer store2.Close()

	exists, err := store2.NamespaceExists(ctx, ns)
	require.NoError(t, err)
	assert.False(t, exists, "quarantined namespace should read as unprovisioned")

	assert.DirExists(t, filepath.Join(tmpDir, ".quarantine"))

	// The namespace can be provisioned and filled again
	require.NoError(t, store2.CreateNamespace(ctx, ns))
	require.NoError(t, store2.Upsert(ctx, ns, []vectorstore.Document{
		{ID: "doc1", Text: "rebuilt chunk", Vector: unitVector(testDim, 0)},
	}))
}
