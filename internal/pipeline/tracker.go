package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/workspace"
)

// dirtySentinel replaces the tracked hash when an index run fails partway.
// It can never equal a real sha256 hex digest, so the next run always
// reindexes the file.
const dirtySentinel = "dirty"

// HashSource yields the stored content hash per file for a namespace.
// The graph store implements it: nodes carry their file's content hash as
// a property, which is what makes the tracker rebuildable after restart.
type HashSource interface {
	FileHashes(ctx context.Context, namespace string) (map[string]string, error)
}

type fileState struct {
	hash      string
	indexedAt time.Time
}

// Tracker is the in-memory content-hash map behind the no-op reindex
// check. One entry per (workspace, file path); entries survive restarts
// only via Rebuild. Safe for concurrent use.
type Tracker struct {
	source HashSource

	mu    sync.RWMutex
	files map[string]map[string]fileState
}

// NewTracker creates an empty tracker. source may be nil when restart
// rebuilds are not needed (tests); Rebuild then returns an error.
func NewTracker(source HashSource) *Tracker {
	return &Tracker{
		source: source,
		files:  make(map[string]map[string]fileState),
	}
}

// Hash returns the tracked content hash for a file. A file marked dirty
// still reports ok=true; its sentinel hash never matches real content, so
// comparison against a fresh hash forces a reindex.
func (t *Tracker) Hash(workspaceID, filePath string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.files[workspaceID][filePath]
	if !ok {
		return "", false
	}
	return state.hash, true
}

// LastIndexedAt returns when a file was last committed. Files restored by
// Rebuild report a zero time.
func (t *Tracker) LastIndexedAt(workspaceID, filePath string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.files[workspaceID][filePath]
	if !ok {
		return time.Time{}, false
	}
	return state.indexedAt, true
}

// Commit records a file's content hash after both stores acknowledged the
// write.
func (t *Tracker) Commit(workspaceID, filePath, hash string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.workspaceFiles(workspaceID)[filePath] = fileState{
		hash:      hash,
		indexedAt: time.Now(),
	}
}

// MarkDirty poisons a file's tracked hash so the next run reindexes it
// regardless of content.
func (t *Tracker) MarkDirty(workspaceID, filePath string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.workspaceFiles(workspaceID)[filePath] = fileState{hash: dirtySentinel}
}

// Forget drops a file's entry. Used by the delete tombstone path.
func (t *Tracker) Forget(workspaceID, filePath string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if files, ok := t.files[workspaceID]; ok {
		delete(files, filePath)
		if len(files) == 0 {
			delete(t.files, workspaceID)
		}
	}
}

// ForgetWorkspace drops every entry for a workspace. Used on eviction.
func (t *Tracker) ForgetWorkspace(workspaceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.files, workspaceID)
}

// FileCount reports how many files a workspace has tracked, including
// dirty ones. Zero means nothing has been indexed yet.
func (t *Tracker) FileCount(workspaceID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.files[workspaceID])
}

// Rebuild restores a workspace's hash map from content hashes stored on
// graph nodes, replacing any entries already tracked for it. It returns
// the number of files restored.
func (t *Tracker) Rebuild(ctx context.Context, ws *workspace.Workspace) (int, error) {
	if t.source == nil {
		return 0, errors.New("tracker has no hash source")
	}
	if ws == nil {
		return 0, errors.New("workspace is required")
	}

	hashes, err := t.source.FileHashes(ctx, ws.GraphNamespace)
	if err != nil {
		return 0, fmt.Errorf("rebuild tracker for %s: %w", ws.ID, err)
	}

	files := make(map[string]fileState, len(hashes))
	for path, hash := range hashes {
		files[path] = fileState{hash: hash}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[ws.ID] = files

	return len(files), nil
}

// workspaceFiles returns the mutable per-workspace map, creating it on
// first use. Callers must hold t.mu.
func (t *Tracker) workspaceFiles(workspaceID string) map[string]fileState {
	files, ok := t.files[workspaceID]
	if !ok {
		files = make(map[string]fileState)
		t.files[workspaceID] = files
	}
	return files
}
