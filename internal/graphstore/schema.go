package graphstore

// schemaSQL is applied on every namespace open. All statements are
// IF NOT EXISTS so reopening an existing namespace is a no-op.
//
// Edge targets are symbolic names, not node keys, so edges carry no foreign
// key: a Calls edge may point at a name defined in a file that is not
// indexed yet (or ever). Traversal joins resolve names at read time.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS nodes (
    key TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    file_path TEXT NOT NULL,
    start_line INTEGER NOT NULL DEFAULT 0,
    end_line INTEGER NOT NULL DEFAULT 0,
    content_hash TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(file_path);
CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name);
CREATE INDEX IF NOT EXISTS idx_nodes_name_nocase ON nodes(name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS edges (
    from_key TEXT NOT NULL,
    to_name TEXT NOT NULL,
    kind TEXT NOT NULL,
    file_path TEXT NOT NULL,
    PRIMARY KEY (from_key, to_name, kind)
);

CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_name);
CREATE INDEX IF NOT EXISTS idx_edges_file ON edges(file_path);
`
