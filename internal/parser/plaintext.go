package parser

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
)

// PlainText parses free-form text using a small declarative grammar:
//
//	function <name> [calls <target>] [uses <target>]
//	class <name> [extends <target>]
//	import <name>
//
// Every file yields one file entity carrying a defines relation per
// declaration and a uses relation per import. Each declaration yields a
// member or type entity whose relations are scanned from its whole block.
// Lines matching nothing contribute only to the enclosing block's text.
type PlainText struct{}

// NewPlainText returns the fallback plain-text parser.
func NewPlainText() *PlainText { return &PlainText{} }

var (
	declPattern    = regexp.MustCompile(`^\s*(function|func|class|type)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	importPattern  = regexp.MustCompile(`^\s*import\s+([A-Za-z_][A-Za-z0-9_.]*)`)
	callsPattern   = regexp.MustCompile(`\bcalls\s+([A-Za-z_][A-Za-z0-9_]*)`)
	usesPattern    = regexp.MustCompile(`\buses\s+([A-Za-z_][A-Za-z0-9_]*)`)
	inheritPattern = regexp.MustCompile(`\b(?:extends|inherits(?:\s+from)?|implements)\s+([A-Za-z_][A-Za-z0-9_]*)`)
)

type block struct {
	kind      EntityKind
	name      string
	startLine int
	endLine   int
	lines     []string
}

// Parse extracts entities from plain text. It is deterministic and never
// reads from disk.
func (p *PlainText) Parse(ctx context.Context, filePath string, content []byte) ([]Entity, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}

	lines := strings.Split(text, "\n")

	var (
		blocks  []block
		imports []string
		current *block
	)
	for i, line := range lines {
		if m := importPattern.FindStringSubmatch(line); m != nil {
			imports = append(imports, m[1])
		}
		if m := declPattern.FindStringSubmatch(line); m != nil {
			if current != nil {
				current.endLine = i
				blocks = append(blocks, *current)
			}
			kind := KindMember
			if m[1] == "class" || m[1] == "type" {
				kind = KindType
			}
			current = &block{kind: kind, name: m[2], startLine: i + 1}
		}
		if current != nil {
			current.lines = append(current.lines, line)
		}
	}
	if current != nil {
		current.endLine = len(lines)
		blocks = append(blocks, *current)
	}

	entities := make([]Entity, 0, len(blocks)+1)

	file := Entity{
		Kind:       KindFile,
		Name:       filepath.Base(filePath),
		FilePath:   filePath,
		StartLine:  1,
		EndLine:    len(lines),
		SourceText: text,
	}
	for _, imp := range imports {
		file.Relations = append(file.Relations, Relation{Kind: RelationUses, TargetName: imp})
	}
	for _, b := range blocks {
		file.Relations = append(file.Relations, Relation{Kind: RelationDefines, TargetName: b.name})
	}
	entities = append(entities, file)

	for _, b := range blocks {
		src := strings.Join(b.lines, "\n")
		entities = append(entities, Entity{
			Kind:       b.kind,
			Name:       b.name,
			FilePath:   filePath,
			StartLine:  b.startLine,
			EndLine:    b.endLine,
			SourceText: src,
			Relations:  extractRelations(src),
		})
	}

	return entities, nil
}

// extractRelations scans a declaration block for relation clauses. Self
// references are kept; recursion is a real relation.
func extractRelations(text string) []Relation {
	var rels []Relation
	for _, m := range callsPattern.FindAllStringSubmatch(text, -1) {
		rels = append(rels, Relation{Kind: RelationCalls, TargetName: m[1]})
	}
	for _, m := range usesPattern.FindAllStringSubmatch(text, -1) {
		rels = append(rels, Relation{Kind: RelationUses, TargetName: m[1]})
	}
	for _, m := range inheritPattern.FindAllStringSubmatch(text, -1) {
		rels = append(rels, Relation{Kind: RelationInherits, TargetName: m[1]})
	}
	return rels
}
