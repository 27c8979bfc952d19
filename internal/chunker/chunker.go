// Package chunker splits parsed entities into bounded-size chunks, the unit
// of text actually embedded and stored.
package chunker

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/parser"
)

const (
	// CharsPerToken is the divisor for the cheap token estimate. Exact
	// tokenizer counts are not worth a model call here.
	CharsPerToken = 4

	// DefaultTokenBudget bounds a single chunk's token estimate.
	DefaultTokenBudget = 450

	// DefaultHeadFraction is the share of the budget given to the leading
	// slice when an entity is split.
	DefaultHeadFraction = 0.6
)

// chunkIDSpace seeds deterministic chunk IDs. Never change this value:
// reindexing unchanged content must regenerate identical IDs.
var chunkIDSpace = uuid.MustParse("7d9f6a42-3c1e-4b8a-9f25-b10c9a4be7d3")

// Chunk is one bounded slice of an entity's source text.
type Chunk struct {
	ID            string
	WorkspaceID   string
	EntityKey     string
	EntityName    string
	EntityKind    parser.EntityKind
	FilePath      string
	StartLine     int
	EndLine       int
	Text          string
	TokenEstimate int
}

// Chunker turns entities into chunks. The zero value is not usable; use New.
type Chunker struct {
	tokenBudget  int
	headFraction float64
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithTokenBudget sets the per-chunk token budget. Non-positive values are
// ignored.
func WithTokenBudget(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.tokenBudget = n
		}
	}
}

// WithHeadFraction sets the head share of the budget for split entities.
// Values outside (0,1) are ignored.
func WithHeadFraction(f float64) Option {
	return func(c *Chunker) {
		if f > 0 && f < 1 {
			c.headFraction = f
		}
	}
}

// New returns a Chunker with the given options applied over defaults.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		tokenBudget:  DefaultTokenBudget,
		headFraction: DefaultHeadFraction,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EstimateTokens returns the cheap token estimate for text.
func EstimateTokens(text string) int {
	return len(text) / CharsPerToken
}

// Split turns one entity into one or more chunks. Text within the token
// budget yields a single chunk. Oversized text yields a head+tail pair:
// the leading headFraction of the budget and the trailing remainder, middle
// dropped. Declarations up front and closing logic at the end carry more
// search signal than arbitrary middle spans.
//
// Split is deterministic: identical input yields identical boundaries and
// identical chunk IDs.
func (c *Chunker) Split(workspaceID string, e parser.Entity) []Chunk {
	text := e.SourceText
	if EstimateTokens(text) <= c.tokenBudget {
		return []Chunk{c.chunk(workspaceID, e, 0, text)}
	}

	budgetChars := c.tokenBudget * CharsPerToken
	headChars := int(float64(budgetChars) * c.headFraction)
	tailChars := budgetChars - headChars

	head := cutHead(text, headChars)
	tail := cutTail(text, tailChars)

	return []Chunk{
		c.chunk(workspaceID, e, 0, head),
		c.chunk(workspaceID, e, 1, tail),
	}
}

func (c *Chunker) chunk(workspaceID string, e parser.Entity, ordinal int, text string) Chunk {
	id := uuid.NewSHA1(chunkIDSpace, fmt.Appendf(nil, "%s|%s|%d", workspaceID, e.Key(), ordinal))
	return Chunk{
		ID:            id.String(),
		WorkspaceID:   workspaceID,
		EntityKey:     e.Key(),
		EntityName:    e.Name,
		EntityKind:    e.Kind,
		FilePath:      e.FilePath,
		StartLine:     e.StartLine,
		EndLine:       e.EndLine,
		Text:          text,
		TokenEstimate: EstimateTokens(text),
	}
}

// cutHead returns at most n leading bytes of s, backed off to a rune
// boundary so chunks stay valid UTF-8.
func cutHead(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// cutTail returns at most n trailing bytes of s, advanced to a rune
// boundary.
func cutTail(s string, n int) string {
	if n >= len(s) {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
