// Package ignore decides which files and directories the indexer walks
// past: a default skip set for build and VCS artifacts, the workspace's
// .gitignore, and any extra per-workspace patterns.
package ignore

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// gitignoreFile is the ignore file read from the workspace root.
const gitignoreFile = ".gitignore"

// DefaultSkipDirs are directory names never worth indexing, matched by
// base name at any depth regardless of ignore patterns.
var DefaultSkipDirs = []string{
	".git",
	".hg",
	".svn",
	".idea",
	".vscode",
	"node_modules",
	"vendor",
	"dist",
	"build",
	"target",
	"bin",
	"obj",
	"__pycache__",
	".venv",
}

// Matcher answers skip questions for paths relative to one workspace root.
// Construct one per walk; it snapshots the root's .gitignore at build time.
type Matcher struct {
	skipDirs map[string]struct{}
	patterns gitignore.Matcher
}

// NewMatcher builds a matcher for root. Patterns come from the root's
// .gitignore (absent is fine) followed by extra, both in gitignore syntax.
func NewMatcher(root string, extra []string) (*Matcher, error) {
	lines, err := readGitignore(filepath.Join(root, gitignoreFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", gitignoreFile, err)
	}
	lines = append(lines, extra...)

	patterns := make([]gitignore.Pattern, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}

	skip := make(map[string]struct{}, len(DefaultSkipDirs))
	for _, d := range DefaultSkipDirs {
		skip[d] = struct{}{}
	}

	return &Matcher{
		skipDirs: skip,
		patterns: gitignore.NewMatcher(patterns),
	}, nil
}

// SkipDir reports whether the walk should not descend into relPath.
func (m *Matcher) SkipDir(relPath string) bool {
	if _, ok := m.skipDirs[filepath.Base(relPath)]; ok {
		return true
	}
	return m.patterns.Match(splitPath(relPath), true)
}

// SkipFile reports whether relPath should not be indexed.
func (m *Matcher) SkipFile(relPath string) bool {
	return m.patterns.Match(splitPath(relPath), false)
}

// splitPath breaks a relative path into the components go-git's matcher
// expects.
func splitPath(relPath string) []string {
	return strings.Split(filepath.ToSlash(relPath), "/")
}

// readGitignore returns the non-empty lines of an ignore file, or nil when
// the file does not exist.
func readGitignore(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// binarySniffLen bounds how much content IsBinary inspects.
const binarySniffLen = 8000

// IsBinary reports whether content looks like a binary file: a NUL byte or
// invalid UTF-8 in the leading bytes. Binary files are skipped rather than
// chunked into garbage embeddings.
func IsBinary(content []byte) bool {
	sniff := content
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
		// The boundary may have cut a multibyte rune; drop the partial
		// trailing bytes before judging validity.
		for i := 0; i < utf8.UTFMax && len(sniff) > 0 && !utf8.Valid(sniff); i++ {
			sniff = sniff[:len(sniff)-1]
		}
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return true
	}
	return !utf8.Valid(sniff)
}
