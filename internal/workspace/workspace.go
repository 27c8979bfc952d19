// Package workspace tracks registered workspaces and provisions their
// per-workspace storage namespaces.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Common errors.
var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrEmptyRootPath     = errors.New("root path cannot be empty")
	ErrProvisionFailed   = errors.New("namespace provisioning failed")
)

const (
	// slugMaxLen bounds the readable part of derived namespaces. The hash
	// suffix keeps similarly named roots apart, so truncation is safe.
	slugMaxLen = 24

	vectorSuffix = "_vec"
	graphSuffix  = "_graph"
)

// Workspace is one registered source root with its storage namespaces.
// The ID and namespaces derive deterministically from the normalized root
// path, so the same root maps to the same data across restarts.
type Workspace struct {
	// ID is ws_<slug>_<hash8>.
	ID string

	// RootPath is the normalized absolute root directory.
	RootPath string

	// VectorNamespace is the workspace's vector collection, ID + "_vec".
	VectorNamespace string

	// GraphNamespace is the workspace's graph database, ID + "_graph".
	GraphNamespace string

	CreatedAt      time.Time
	LastActivityAt time.Time
}

// NormalizeRoot resolves a root path to its canonical absolute form.
// Derivation and registry lookups always use the normalized form, so
// "/a/b", "/a/b/" and "/a/c/../b" name the same workspace.
func NormalizeRoot(rootPath string) (string, error) {
	if rootPath == "" {
		return "", ErrEmptyRootPath
	}
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return "", fmt.Errorf("resolving root path: %w", err)
	}
	return filepath.Clean(abs), nil
}

// DeriveID returns the deterministic workspace ID for a normalized root:
// ws_<slug>_<hash8>, where slug is the sanitized base name and hash8 the
// first 8 hex chars of sha256 over the full path. Both derived namespaces
// stay within ^[a-z0-9_]{1,64}$, which both stores require.
func DeriveID(normalizedRoot string) string {
	sum := sha256.Sum256([]byte(normalizedRoot))
	return fmt.Sprintf("ws_%s_%s", deriveSlug(normalizedRoot), hex.EncodeToString(sum[:])[:8])
}

// deriveSlug reduces the root's base name to namespace-safe characters.
func deriveSlug(normalizedRoot string) string {
	base := strings.ToLower(filepath.Base(normalizedRoot))

	var b strings.Builder
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}

	slug := b.String()
	if len(slug) > slugMaxLen {
		slug = slug[:slugMaxLen]
	}
	if slug == "" {
		slug = "workspace"
	}
	return slug
}

// newWorkspace builds the workspace record for a normalized root.
func newWorkspace(normalizedRoot string) *Workspace {
	id := DeriveID(normalizedRoot)
	now := time.Now()
	return &Workspace{
		ID:              id,
		RootPath:        normalizedRoot,
		VectorNamespace: id + vectorSuffix,
		GraphNamespace:  id + graphSuffix,
		CreatedAt:       now,
		LastActivityAt:  now,
	}
}
