package vectorstore

// Metadata keys with cross-package meaning. The indexing pipeline sets
// MetaFilePath on every document it writes; DeleteByFile filters on it.
// All values are written as strings so the chromem and qdrant backends
// round-trip payloads identically.
const (
	// MetaFilePath is the workspace-relative path of the source file a
	// document was chunked from.
	MetaFilePath = "file_path"

	// MetaEntityKey is the graph node key of the entity the chunk came
	// from. Query results join back to the graph store through it.
	MetaEntityKey = "entity_key"

	// MetaEntityName is the declared name of the source entity.
	MetaEntityName = "entity_name"

	// MetaEntityKind is the entity kind (file, type, member, idiom).
	MetaEntityKind = "entity_kind"

	// MetaStartLine and MetaEndLine are the 1-based line span of the
	// chunk, formatted with strconv.Itoa.
	MetaStartLine = "start_line"
	MetaEndLine   = "end_line"

	// MetaTags is a comma-separated list of classifier tags.
	MetaTags = "tags"
)

// Document is a chunk of text to be stored in the vector store.
type Document struct {
	// ID is the unique identifier for the document. The indexing pipeline
	// uses deterministic UUIDs so reindexing identical content rewrites
	// the same IDs.
	ID string

	// Text is the chunk text.
	Text string

	// Vector is the precomputed embedding for Text. If empty, backends
	// constructed with an Embedder embed Text themselves; backends
	// without one reject the document.
	Vector []float32

	// Metadata contains additional key-value pairs for filtering.
	// Common fields: file_path, entity_key, name, kind, start_line.
	Metadata map[string]interface{}
}

// SearchResult is a scored document returned from Query.
type SearchResult struct {
	// ID is the document identifier.
	ID string

	// Text is the stored chunk text.
	Text string

	// Score is the similarity score (higher = more similar).
	Score float32

	// Metadata contains the document metadata.
	Metadata map[string]interface{}
}
