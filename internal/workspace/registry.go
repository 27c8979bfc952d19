package workspace

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NamespaceStore is the slice of a storage adapter the registry needs.
// Both the vector store and the graph store satisfy it.
type NamespaceStore interface {
	// CreateNamespace provisions a namespace; already-exists is success.
	CreateNamespace(ctx context.Context, namespace string) error

	// DeleteNamespace removes a namespace; already-gone is success.
	DeleteNamespace(ctx context.Context, namespace string) error
}

// Registry tracks live workspaces and provisions their namespaces in both
// stores. Workspaces are created lazily on first use and destroyed only by
// explicit eviction.
//
// The workspace map is the only process-wide mutable structure; it sits
// behind a narrow RWMutex. Provisioning and eviction serialize per root
// path, so concurrent GetOrCreate calls for the same root provision exactly
// once.
type Registry struct {
	vector NamespaceStore
	graph  NamespaceStore
	logger *zap.Logger

	mu     sync.RWMutex
	byID   map[string]*Workspace
	byRoot map[string]*Workspace

	locksMu   sync.Mutex
	rootLocks map[string]*sync.Mutex
}

// NewRegistry creates a registry provisioning against the given stores.
func NewRegistry(vector, graph NamespaceStore, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		vector:    vector,
		graph:     graph,
		logger:    logger,
		byID:      make(map[string]*Workspace),
		byRoot:    make(map[string]*Workspace),
		rootLocks: make(map[string]*sync.Mutex),
	}
}

// rootLock returns the mutex serializing provisioning for one root.
func (r *Registry) rootLock(root string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	l, ok := r.rootLocks[root]
	if !ok {
		l = &sync.Mutex{}
		r.rootLocks[root] = l
	}
	return l
}

// lookupRoot returns a copy of the workspace registered for root.
func (r *Registry) lookupRoot(root string) (*Workspace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ws, ok := r.byRoot[root]
	if !ok {
		return nil, false
	}
	cp := *ws
	return &cp, true
}

// GetOrCreate returns the workspace for rootPath, provisioning its vector
// and graph namespaces on first use. Provisioning is idempotent: a create
// against an existing namespace succeeds, so retries after partial failure
// are safe.
func (r *Registry) GetOrCreate(ctx context.Context, rootPath string) (*Workspace, error) {
	root, err := NormalizeRoot(rootPath)
	if err != nil {
		return nil, err
	}

	if ws, ok := r.lookupRoot(root); ok {
		r.Touch(ws.ID)
		return ws, nil
	}

	lock := r.rootLock(root)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have provisioned while we waited for the lock.
	if ws, ok := r.lookupRoot(root); ok {
		r.Touch(ws.ID)
		return ws, nil
	}

	ws := newWorkspace(root)

	if err := r.vector.CreateNamespace(ctx, ws.VectorNamespace); err != nil {
		return nil, fmt.Errorf("%w: vector namespace %s: %v", ErrProvisionFailed, ws.VectorNamespace, err)
	}
	if err := r.graph.CreateNamespace(ctx, ws.GraphNamespace); err != nil {
		return nil, fmt.Errorf("%w: graph namespace %s: %v", ErrProvisionFailed, ws.GraphNamespace, err)
	}

	r.mu.Lock()
	r.byID[ws.ID] = ws
	r.byRoot[ws.RootPath] = ws
	r.mu.Unlock()

	r.logger.Info("workspace provisioned",
		zap.String("workspace_id", ws.ID),
		zap.String("root_path", ws.RootPath),
	)

	cp := *ws
	return &cp, nil
}

// Get returns a copy of the workspace with the given ID.
func (r *Registry) Get(workspaceID string) (*Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ws, ok := r.byID[workspaceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, workspaceID)
	}
	cp := *ws
	return &cp, nil
}

// Touch records activity for a workspace. Unknown IDs are ignored; an
// event may race an eviction and lose.
func (r *Registry) Touch(workspaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ws, ok := r.byID[workspaceID]; ok {
		ws.LastActivityAt = time.Now()
	}
}

// List returns copies of all registered workspaces, ordered by ID.
func (r *Registry) List() []*Workspace {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Workspace, 0, len(r.byID))
	for _, ws := range r.byID {
		cp := *ws
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Evict deletes a workspace's namespaces from both stores and forgets it.
// Namespaces go first: a delete failure keeps the workspace registered so
// the caller can retry, and both deletes are idempotent.
func (r *Registry) Evict(ctx context.Context, workspaceID string) error {
	r.mu.RLock()
	registered, ok := r.byID[workspaceID]
	var root string
	if ok {
		root = registered.RootPath
	}
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkspaceNotFound, workspaceID)
	}

	lock := r.rootLock(root)
	lock.Lock()
	defer lock.Unlock()

	// A concurrent eviction may have finished while we waited.
	r.mu.RLock()
	ws, ok := r.byID[workspaceID]
	var vectorNS, graphNS string
	if ok {
		vectorNS, graphNS = ws.VectorNamespace, ws.GraphNamespace
	}
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkspaceNotFound, workspaceID)
	}

	if err := r.vector.DeleteNamespace(ctx, vectorNS); err != nil {
		return fmt.Errorf("deleting vector namespace %s: %w", vectorNS, err)
	}
	if err := r.graph.DeleteNamespace(ctx, graphNS); err != nil {
		return fmt.Errorf("deleting graph namespace %s: %w", graphNS, err)
	}

	r.mu.Lock()
	delete(r.byID, workspaceID)
	delete(r.byRoot, root)
	r.mu.Unlock()

	r.logger.Info("workspace evicted",
		zap.String("workspace_id", workspaceID),
		zap.String("root_path", root),
	)
	return nil
}
