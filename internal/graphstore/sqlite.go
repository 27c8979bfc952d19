// Package graphstore defines the interface for code graph storage.
package graphstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// sqliteTracer for OpenTelemetry instrumentation.
var sqliteTracer = otel.Tracer("memoryagent.graphstore.sqlite")

// driverName selects the pure-Go SQLite driver.
const driverName = "sqlite"

// SQLiteConfig holds configuration for the embedded graph database.
type SQLiteConfig struct {
	// Path is the directory holding one database file per namespace.
	// Default: "~/.config/memoryagent/graphstore"
	Path string
}

// ApplyDefaults sets default values for unset fields.
func (c *SQLiteConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/memoryagent/graphstore"
	}
}

// Validate validates the configuration.
func (c *SQLiteConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	return nil
}

// SQLiteStore implements the Store interface on embedded SQLite
// (modernc.org/sqlite, pure Go, no cgo).
//
// Each namespace maps to one database file under the configured directory,
// so workspace isolation is a property of the filesystem layout rather than
// of query filters. Handles are opened lazily and cached until Close or
// DeleteNamespace.
type SQLiteStore struct {
	root   string
	logger *zap.Logger

	mu     sync.Mutex
	dbs    map[string]*sql.DB
	closed bool
}

// NewSQLiteStore creates a new SQLiteStore with the given configuration.
func NewSQLiteStore(config SQLiteConfig, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	root, err := expandGraphPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", root, err)
	}

	logger.Info("graph store initialized", zap.String("path", root))

	return &SQLiteStore{
		root:   root,
		logger: logger,
		dbs:    make(map[string]*sql.DB),
	}, nil
}

// expandGraphPath expands ~ to home directory.
func expandGraphPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// namespacePath returns the database file for a namespace. The namespace is
// validated before this is called, so the name can never escape root.
func (s *SQLiteStore) namespacePath(namespace string) string {
	return filepath.Join(s.root, namespace+".db")
}

// openDatabase opens one namespace database and applies the schema.
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, err
	}

	// WAL keeps readers unblocked during pipeline writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

// getDB returns the cached handle for a namespace, opening it if needed.
// With create false, a namespace whose database file does not exist yet
// maps to ErrNamespaceNotFound instead of being silently created.
func (s *SQLiteStore) getDB(namespace string, create bool) (*sql.DB, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("graph store is closed")
	}

	if db, ok := s.dbs[namespace]; ok {
		return db, nil
	}

	path := s.namespacePath(namespace)
	if !create {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, namespace)
			}
			return nil, fmt.Errorf("checking namespace %s: %w", namespace, err)
		}
	}

	db, err := openDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("opening namespace %s: %w", namespace, err)
	}

	s.dbs[namespace] = db
	return db, nil
}

// CreateNamespace provisions a namespace database. Idempotent.
func (s *SQLiteStore) CreateNamespace(ctx context.Context, namespace string) error {
	_, span := sqliteTracer.Start(ctx, "SQLiteStore.CreateNamespace")
	defer span.End()

	span.SetAttributes(attribute.String("namespace", namespace))

	if _, err := s.getDB(namespace, true); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create namespace")
		return err
	}

	s.logger.Debug("namespace created", zap.String("namespace", namespace))
	return nil
}

// NamespaceExists reports whether a namespace database exists.
func (s *SQLiteStore) NamespaceExists(ctx context.Context, namespace string) (bool, error) {
	_, span := sqliteTracer.Start(ctx, "SQLiteStore.NamespaceExists")
	defer span.End()

	span.SetAttributes(attribute.String("namespace", namespace))

	if err := ValidateNamespace(namespace); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid namespace")
		return false, err
	}

	s.mu.Lock()
	_, open := s.dbs[namespace]
	s.mu.Unlock()
	if open {
		return true, nil
	}

	if _, err := os.Stat(s.namespacePath(namespace)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check namespace")
		return false, fmt.Errorf("checking namespace %s: %w", namespace, err)
	}
	return true, nil
}

// DeleteNamespace closes and removes a namespace database. Idempotent.
func (s *SQLiteStore) DeleteNamespace(ctx context.Context, namespace string) error {
	_, span := sqliteTracer.Start(ctx, "SQLiteStore.DeleteNamespace")
	defer span.End()

	span.SetAttributes(attribute.String("namespace", namespace))

	if err := ValidateNamespace(namespace); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid namespace")
		return err
	}

	s.mu.Lock()
	if db, ok := s.dbs[namespace]; ok {
		if err := db.Close(); err != nil {
			s.logger.Warn("closing namespace handle",
				zap.String("namespace", namespace),
				zap.Error(err),
			)
		}
		delete(s.dbs, namespace)
	}
	s.mu.Unlock()

	path := s.namespacePath(namespace)
	for _, f := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to delete namespace")
			return fmt.Errorf("deleting namespace %s: %w", namespace, err)
		}
	}

	s.logger.Debug("namespace deleted", zap.String("namespace", namespace))
	return nil
}

const upsertNodeSQL = `
INSERT INTO nodes (key, name, kind, file_path, start_line, end_line, content_hash, tags, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    name = excluded.name,
    kind = excluded.kind,
    file_path = excluded.file_path,
    start_line = excluded.start_line,
    end_line = excluded.end_line,
    content_hash = excluded.content_hash,
    tags = excluded.tags,
    updated_at = excluded.updated_at
`

// UpsertNodes writes nodes in one transaction, creating the namespace
// database on first write.
func (s *SQLiteStore) UpsertNodes(ctx context.Context, namespace string, nodes []Node) error {
	ctx, span := sqliteTracer.Start(ctx, "SQLiteStore.UpsertNodes")
	defer span.End()

	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("node_count", len(nodes)),
	)

	if len(nodes) == 0 {
		return nil
	}

	db, err := s.getDB(namespace, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open namespace")
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to begin transaction")
		return fmt.Errorf("%w: begin: %v", ErrWriteFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for i, node := range nodes {
		if node.Key == "" || node.Name == "" || node.Kind == "" || node.FilePath == "" {
			return fmt.Errorf("node %d: key, name, kind and file path are required", i)
		}
		_, err := tx.ExecContext(ctx, upsertNodeSQL,
			node.Key, node.Name, node.Kind, node.FilePath,
			node.StartLine, node.EndLine, node.ContentHash,
			encodeTags(node.Tags), now,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to upsert node")
			return fmt.Errorf("%w: node %s: %v", ErrWriteFailed, node.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to commit")
		return fmt.Errorf("%w: commit: %v", ErrWriteFailed, err)
	}
	return nil
}

const upsertEdgeSQL = `
INSERT INTO edges (from_key, to_name, kind, file_path)
VALUES (?, ?, ?, ?)
ON CONFLICT(from_key, to_name, kind) DO UPDATE SET
    file_path = excluded.file_path
`

// UpsertEdges writes edges in one transaction, creating the namespace
// database on first write.
func (s *SQLiteStore) UpsertEdges(ctx context.Context, namespace string, edges []Edge) error {
	ctx, span := sqliteTracer.Start(ctx, "SQLiteStore.UpsertEdges")
	defer span.End()

	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("edge_count", len(edges)),
	)

	if len(edges) == 0 {
		return nil
	}

	db, err := s.getDB(namespace, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open namespace")
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to begin transaction")
		return fmt.Errorf("%w: begin: %v", ErrWriteFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, edge := range edges {
		if edge.FromKey == "" || edge.ToName == "" || edge.Kind == "" || edge.FilePath == "" {
			return fmt.Errorf("edge %d: from key, to name, kind and file path are required", i)
		}
		_, err := tx.ExecContext(ctx, upsertEdgeSQL,
			edge.FromKey, edge.ToName, edge.Kind, edge.FilePath,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to upsert edge")
			return fmt.Errorf("%w: edge %s->%s: %v", ErrWriteFailed, edge.FromKey, edge.ToName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to commit")
		return fmt.Errorf("%w: commit: %v", ErrWriteFailed, err)
	}
	return nil
}

// DeleteByFile removes every node and edge owned by filePath in one
// transaction. A missing namespace is a no-op.
func (s *SQLiteStore) DeleteByFile(ctx context.Context, namespace string, filePath string) error {
	ctx, span := sqliteTracer.Start(ctx, "SQLiteStore.DeleteByFile")
	defer span.End()

	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.String("file_path", filePath),
	)

	if filePath == "" {
		err := fmt.Errorf("file path cannot be empty")
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty file path")
		return err
	}

	db, err := s.getDB(namespace, false)
	if err != nil {
		if errors.Is(err, ErrNamespaceNotFound) {
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open namespace")
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to begin transaction")
		return fmt.Errorf("%w: begin: %v", ErrWriteFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE file_path = ?`, filePath); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete nodes")
		return fmt.Errorf("%w: delete nodes: %v", ErrWriteFailed, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE file_path = ?`, filePath); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete edges")
		return fmt.Errorf("%w: delete edges: %v", ErrWriteFailed, err)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to commit")
		return fmt.Errorf("%w: commit: %v", ErrWriteFailed, err)
	}
	return nil
}

const selectNodeColumns = `key, name, kind, file_path, start_line, end_line, content_hash, tags`

// FindNodes returns nodes matching name, case-insensitively.
func (s *SQLiteStore) FindNodes(ctx context.Context, namespace string, name string) ([]Node, error) {
	ctx, span := sqliteTracer.Start(ctx, "SQLiteStore.FindNodes")
	defer span.End()

	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.String("name", name),
	)

	if name == "" {
		err := fmt.Errorf("name cannot be empty")
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty name")
		return nil, err
	}

	db, err := s.getDB(namespace, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open namespace")
		return nil, err
	}

	query := `SELECT ` + selectNodeColumns + ` FROM nodes WHERE name = ? COLLATE NOCASE ORDER BY key`
	rows, err := db.QueryContext(ctx, query, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("finding nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	nodes, err := scanNodes(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("node_count", len(nodes)))
	return nodes, nil
}

// NodesByFile returns every node owned by filePath, ordered by start line.
func (s *SQLiteStore) NodesByFile(ctx context.Context, namespace string, filePath string) ([]Node, error) {
	ctx, span := sqliteTracer.Start(ctx, "SQLiteStore.NodesByFile")
	defer span.End()

	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.String("file_path", filePath),
	)

	db, err := s.getDB(namespace, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open namespace")
		return nil, err
	}

	query := `SELECT ` + selectNodeColumns + ` FROM nodes WHERE file_path = ? ORDER BY start_line, key`
	rows, err := db.QueryContext(ctx, query, filePath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	nodes, err := scanNodes(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("node_count", len(nodes)))
	return nodes, nil
}

// frontierNode tracks one BFS position. Incoming edges are matched by name,
// so the frontier carries names alongside keys.
type frontierNode struct {
	key  string
	name string
	path []string
}

// Traverse walks edges from startKey up to maxDepth hops, both directions,
// breadth-first. Each reached node appears once at its shallowest depth.
func (s *SQLiteStore) Traverse(ctx context.Context, namespace string, startKey string, kinds []string, maxDepth int) ([]TraversalHit, error) {
	ctx, span := sqliteTracer.Start(ctx, "SQLiteStore.Traverse")
	defer span.End()

	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.String("start_key", startKey),
		attribute.Int("max_depth", maxDepth),
	)

	if startKey == "" {
		err := fmt.Errorf("start key cannot be empty")
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty start key")
		return nil, err
	}
	if maxDepth < 1 {
		err := fmt.Errorf("max depth must be at least 1, got %d", maxDepth)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid max depth")
		return nil, err
	}

	db, err := s.getDB(namespace, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open namespace")
		return nil, err
	}

	var startName string
	err = db.QueryRowContext(ctx, `SELECT name FROM nodes WHERE key = ?`, startKey).Scan(&startName)
	if err == sql.ErrNoRows {
		span.RecordError(ErrNodeNotFound)
		span.SetStatus(codes.Error, "start node not found")
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, startKey)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start node lookup failed")
		return nil, fmt.Errorf("looking up start node: %w", err)
	}

	visited := map[string]bool{startKey: true}
	frontier := []frontierNode{{key: startKey, name: startName, path: []string{startKey}}}
	var hits []TraversalHit

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []frontierNode
		for _, fn := range frontier {
			neighbors, err := s.neighbors(ctx, db, fn, kinds)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "neighbor query failed")
				return nil, err
			}
			for _, n := range neighbors {
				if visited[n.Key] {
					continue
				}
				visited[n.Key] = true

				path := make([]string, len(fn.path), len(fn.path)+1)
				copy(path, fn.path)
				path = append(path, n.Key)

				hits = append(hits, TraversalHit{Node: n, Depth: depth, Path: path})
				next = append(next, frontierNode{key: n.Key, name: n.Name, path: path})
			}
		}
		frontier = next
	}

	span.SetAttributes(attribute.Int("hit_count", len(hits)))
	return hits, nil
}

// neighbors returns nodes one hop from fn: targets of its outgoing edges
// plus sources of edges naming it. ORDER BY keeps traversal deterministic.
func (s *SQLiteStore) neighbors(ctx context.Context, db *sql.DB, fn frontierNode, kinds []string) ([]Node, error) {
	kindFilter, kindArgs := buildKindFilter(kinds)

	outgoing := `
		SELECT ` + prefixNodeColumns("n") + `
		FROM edges e JOIN nodes n ON n.name = e.to_name
		WHERE e.from_key = ?` + kindFilter + `
		ORDER BY n.key`
	incoming := `
		SELECT ` + prefixNodeColumns("n") + `
		FROM edges e JOIN nodes n ON n.key = e.from_key
		WHERE e.to_name = ?` + kindFilter + `
		ORDER BY n.key`

	var result []Node
	for _, q := range []struct {
		query string
		arg   string
	}{
		{outgoing, fn.key},
		{incoming, fn.name},
	} {
		args := append([]interface{}{q.arg}, kindArgs...)
		rows, err := db.QueryContext(ctx, q.query, args...)
		if err != nil {
			return nil, fmt.Errorf("traversing edges: %w", err)
		}
		nodes, err := scanNodes(rows)
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
		result = append(result, nodes...)
	}
	return result, nil
}

// buildKindFilter returns an AND clause restricting edge kinds, or an empty
// string when kinds is empty.
func buildKindFilter(kinds []string) (string, []interface{}) {
	if len(kinds) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(kinds))
	args := make([]interface{}, len(kinds))
	for i, k := range kinds {
		placeholders[i] = "?"
		args[i] = k
	}
	return " AND e.kind IN (" + strings.Join(placeholders, ",") + ")", args
}

// prefixNodeColumns qualifies the node column list with a table alias.
func prefixNodeColumns(alias string) string {
	cols := strings.Split(selectNodeColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// FileHashes returns the recorded content hash per file path. A consistent
// index has exactly one hash per file; after an interrupted write the
// surviving value differs from the file's current hash either way, which is
// what forces the reindex.
func (s *SQLiteStore) FileHashes(ctx context.Context, namespace string) (map[string]string, error) {
	ctx, span := sqliteTracer.Start(ctx, "SQLiteStore.FileHashes")
	defer span.End()

	span.SetAttributes(attribute.String("namespace", namespace))

	db, err := s.getDB(namespace, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open namespace")
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT DISTINCT file_path, content_hash FROM nodes WHERE content_hash != ''`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("reading file hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[string]string)
	for rows.Next() {
		var filePath, hash string
		if err := rows.Scan(&filePath, &hash); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scan failed")
			return nil, fmt.Errorf("scanning file hash: %w", err)
		}
		hashes[filePath] = hash
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rows failed")
		return nil, fmt.Errorf("reading file hashes: %w", err)
	}

	span.SetAttributes(attribute.Int("file_count", len(hashes)))
	return hashes, nil
}

// Close closes every open namespace handle.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for namespace, db := range s.dbs {
		if err := db.Close(); err != nil {
			s.logger.Warn("closing namespace handle",
				zap.String("namespace", namespace),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.dbs = make(map[string]*sql.DB)

	s.logger.Debug("graph store closed")
	return firstErr
}

// scanNodes reads node rows into models.
func scanNodes(rows *sql.Rows) ([]Node, error) {
	nodes := make([]Node, 0)
	for rows.Next() {
		var n Node
		var tags string
		err := rows.Scan(
			&n.Key, &n.Name, &n.Kind, &n.FilePath,
			&n.StartLine, &n.EndLine, &n.ContentHash, &tags,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		n.Tags = decodeTags(tags)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// encodeTags flattens classifier tags for storage. Tags are single
// identifiers, never containing commas.
func encodeTags(tags []string) string {
	return strings.Join(tags, ",")
}

// decodeTags restores classifier tags from storage.
func decodeTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
