// Package parser turns source files into language-neutral entities suitable
// for indexing. Language parsers are registered per file extension; files
// with no registered parser fall back to the plain-text parser, which
// understands a small declarative grammar good enough for docs and notes.
package parser

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrEmptyContent is returned when a file has no parseable content.
	ErrEmptyContent = errors.New("empty content")

	// ErrMalformed is returned when content cannot be parsed at all.
	// Callers should skip the file and continue.
	ErrMalformed = errors.New("malformed source")
)

// Parser extracts entities from a single source file. Implementations must
// be deterministic: the same content always yields the same entities in the
// same order. Parsers never read from disk; content is supplied by the
// caller.
type Parser interface {
	Parse(ctx context.Context, filePath string, content []byte) ([]Entity, error)
}

// Registry dispatches files to parsers by extension.
type Registry struct {
	mu       sync.RWMutex
	byExt    map[string]Parser
	fallback Parser
}

// NewRegistry returns a registry whose fallback is the plain-text parser.
func NewRegistry() *Registry {
	return &Registry{
		byExt:    make(map[string]Parser),
		fallback: NewPlainText(),
	}
}

// Register routes files with the given extensions (".go", ".py") to p.
// Later registrations for the same extension win.
func (r *Registry) Register(p Parser, exts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = p
	}
}

// ForFile returns the parser responsible for filePath, falling back to the
// plain-text parser for unknown extensions.
func (r *Registry) ForFile(filePath string) Parser {
	ext := strings.ToLower(filepath.Ext(filePath))

	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.byExt[ext]; ok {
		return p
	}
	return r.fallback
}
