// Package graphstore defines the interface for code graph storage.
package graphstore

import (
	"context"
	"errors"
)

// Sentinel errors for graph store operations.
var (
	// ErrNamespaceNotFound is returned when a namespace does not exist.
	ErrNamespaceNotFound = errors.New("namespace not found")

	// ErrInvalidNamespace indicates namespace name validation failure.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNodeNotFound is returned when a traversal start node does not exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrWriteFailed indicates the backend rejected a write.
	ErrWriteFailed = errors.New("graph store write failed")
)

// Store is the interface for graph storage operations.
//
// Every operation is scoped to a namespace. A namespace maps to one
// workspace's graph database (ws_<slug>_<hash8>_graph); nothing in this
// package ever reads or writes across namespaces, and no edge can reference
// a node outside its own namespace, which is what keeps workspaces isolated
// from each other.
//
// Namespace names must match ^[a-z0-9_]{1,64}$ (see ValidateNamespace).
type Store interface {
	// CreateNamespace provisions a namespace. Creating a namespace that
	// already exists is a no-op, so workspace provisioning can retry freely.
	CreateNamespace(ctx context.Context, namespace string) error

	// NamespaceExists reports whether a namespace has been provisioned.
	NamespaceExists(ctx context.Context, namespace string) (bool, error)

	// DeleteNamespace removes a namespace and every node and edge in it.
	// Deleting a namespace that does not exist is a no-op.
	DeleteNamespace(ctx context.Context, namespace string) error

	// UpsertNodes writes nodes in a single transaction, replacing any
	// existing nodes with the same keys. An empty slice is a no-op.
	UpsertNodes(ctx context.Context, namespace string, nodes []Node) error

	// UpsertEdges writes edges in a single transaction. An edge is
	// identified by (FromKey, ToName, Kind); rewriting one updates its
	// owning file path. An empty slice is a no-op.
	UpsertEdges(ctx context.Context, namespace string, edges []Edge) error

	// DeleteByFile removes every node and edge owned by filePath. This is
	// the tombstone path: reindexing a file deletes its old graph rows
	// wholesale before writing new ones. A namespace or file with no rows
	// is a no-op.
	DeleteByFile(ctx context.Context, namespace string, filePath string) error

	// FindNodes returns nodes whose name matches, case-insensitively.
	FindNodes(ctx context.Context, namespace string, name string) ([]Node, error)

	// NodesByFile returns every node owned by filePath, ordered by
	// start line.
	NodesByFile(ctx context.Context, namespace string, filePath string) ([]Node, error)

	// Traverse walks edges outward from the node at startKey, both
	// directions, up to maxDepth hops. Edge targets are symbolic names;
	// a hop resolves to every node carrying that name. kinds restricts
	// which edge kinds are followed; empty means all. The start node is
	// not included in the hits.
	Traverse(ctx context.Context, namespace string, startKey string, kinds []string, maxDepth int) ([]TraversalHit, error)

	// FileHashes returns the content hash recorded on each file's nodes,
	// keyed by file path. The indexing pipeline rebuilds its no-op check
	// from this map on restart.
	FileHashes(ctx context.Context, namespace string) (map[string]string, error)

	// Close releases backend resources.
	Close() error
}
