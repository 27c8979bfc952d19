package parser

import "fmt"

// EntityKind classifies what a parsed entity represents.
type EntityKind string

const (
	KindFile   EntityKind = "file"
	KindType   EntityKind = "type"
	KindMember EntityKind = "member"
	KindIdiom  EntityKind = "idiom"
)

// RelationKind classifies a directed relation between two entities.
type RelationKind string

const (
	RelationDefines  RelationKind = "defines"
	RelationCalls    RelationKind = "calls"
	RelationUses     RelationKind = "uses"
	RelationInherits RelationKind = "inherits"
)

// Relation is a directed edge from the owning entity to a named target.
// Targets are symbolic: the target entity may live in another file or may
// not be indexed at all.
type Relation struct {
	Kind       RelationKind
	TargetName string
}

// Entity is one parsed unit of a source file: the file itself, a type, a
// member (function, method, field), or a detected idiom. Entities are value
// objects; parsers produce them and the indexing pipeline consumes them.
type Entity struct {
	Kind       EntityKind
	Name       string
	FilePath   string
	StartLine  int
	EndLine    int
	SourceText string
	Relations  []Relation
}

// Key returns the identity of the entity within one workspace. Two entities
// with the same key in the same workspace refer to the same node.
func (e Entity) Key() string {
	return fmt.Sprintf("%s#%s#%s", e.FilePath, e.Name, e.Kind)
}
