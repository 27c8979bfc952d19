package pipeline

import (
	"strings"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/parser"
)

// Rule tags entities matching a predicate. Rules are evaluated in order;
// every matching rule contributes its tag.
type Rule struct {
	Tag       string
	Predicate func(parser.Entity) bool
}

// Classifier attaches tags to entities at index time. Tags land in chunk
// payloads and graph node properties, where queries can filter on them.
// A nil *Classifier is valid and tags nothing.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier from an ordered rule list.
func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Tags returns the tags of every rule matching e, in rule order.
func (c *Classifier) Tags(e parser.Entity) []string {
	if c == nil {
		return nil
	}
	var tags []string
	for _, r := range c.rules {
		if r.Predicate != nil && r.Predicate(e) {
			tags = append(tags, r.Tag)
		}
	}
	return tags
}

// DefaultRules are the built-in classification rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			Tag: "test",
			Predicate: func(e parser.Entity) bool {
				return strings.HasPrefix(e.Name, "Test") ||
					strings.HasSuffix(e.FilePath, "_test.go") ||
					strings.Contains(strings.ToLower(e.Name), "_test")
			},
		},
		{
			Tag: "entrypoint",
			Predicate: func(e parser.Entity) bool {
				return e.Kind == parser.KindMember && e.Name == "main"
			},
		},
		{
			Tag: "idiom",
			Predicate: func(e parser.Entity) bool {
				return e.Kind == parser.KindIdiom
			},
		},
	}
}
