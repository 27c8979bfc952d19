package graphstore

import (
	"fmt"
	"regexp"
	"strings"
)

// namespacePattern constrains namespace names to what both stores accept.
var namespacePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateNamespace checks that a namespace name is well formed. Validation
// happens before any backend call so a malformed name can never reach SQL or
// the filesystem.
func ValidateNamespace(namespace string) error {
	if !namespacePattern.MatchString(namespace) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidNamespace, namespace, namespacePattern.String())
	}
	return nil
}

// Node is one parsed entity in the code graph. Nodes are keyed by
// (FilePath, Name, Kind) serialized through NodeKey; reindexing identical
// content regenerates identical keys.
type Node struct {
	// Key is the serialized identity, filePath#name#kind.
	Key string

	// Name is the entity name, e.g. a type or function identifier.
	Name string

	// Kind is the entity kind: File, Type, Member or Idiom.
	Kind string

	// FilePath is the workspace-relative path of the owning file.
	FilePath string

	StartLine int
	EndLine   int

	// ContentHash is the sha256 hex of the owning file's content at index
	// time. Every node of a file carries the same hash.
	ContentHash string

	// Tags are classifier labels attached at index time.
	Tags []string
}

// Edge is one relation between entities. FromKey identifies the source node
// exactly; ToName is symbolic, it names the target without resolving which
// file defines it. Resolution to nodes happens at traversal time.
type Edge struct {
	FromKey string

	ToName string

	// Kind is the relation kind: Defines, Calls, Uses or Inherits.
	Kind string

	// FilePath is the file whose parse produced this edge, used for
	// tombstone deletes.
	FilePath string
}

// TraversalHit is one node reached by Traverse.
type TraversalHit struct {
	Node Node

	// Depth is the hop count from the start node, 1-based.
	Depth int

	// Path holds the node keys walked from the start node to this hit,
	// both ends included.
	Path []string
}

// keySeparator joins the node key parts. Names and kinds never contain it;
// file paths could in principle, which is why ParseNodeKey splits from the
// right.
const keySeparator = "#"

// NodeKey serializes a node identity.
func NodeKey(filePath, name, kind string) string {
	return filePath + keySeparator + name + keySeparator + kind
}

// ParseNodeKey splits a serialized node key back into its parts.
func ParseNodeKey(key string) (filePath, name, kind string, err error) {
	last := strings.LastIndex(key, keySeparator)
	if last <= 0 {
		return "", "", "", fmt.Errorf("malformed node key: %q", key)
	}
	mid := strings.LastIndex(key[:last], keySeparator)
	if mid <= 0 {
		return "", "", "", fmt.Errorf("malformed node key: %q", key)
	}
	return key[:mid], key[mid+1 : last], key[last+1:], nil
}
