package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/config"
)

// OverridesFile is the optional per-workspace settings file at a
// workspace root.
const OverridesFile = ".memoryagent.toml"

// Overrides are the per-workspace knobs a repo may tune without touching
// daemon configuration. Zero values mean "use the daemon default".
type Overrides struct {
	// Workers overrides the reindex worker count for this workspace.
	Workers int `toml:"workers"`

	// Debounce overrides the scheduler's quiet window.
	Debounce config.Duration `toml:"debounce"`

	// Ignore adds gitignore-syntax patterns to the walk's skip rules.
	Ignore []string `toml:"ignore"`

	// ChunkTokenBudget overrides the chunker's per-chunk budget.
	ChunkTokenBudget int `toml:"chunk_token_budget"`
}

// Validate bounds the override values; an out-of-range file is rejected
// wholesale rather than silently clamped.
func (o *Overrides) Validate() error {
	if o.Workers < 0 || o.Workers > 16 {
		return fmt.Errorf("workers must be between 0 and 16, got %d", o.Workers)
	}
	if d := o.Debounce.Duration(); d < 0 {
		return fmt.Errorf("debounce cannot be negative, got %s", d)
	}
	if o.ChunkTokenBudget != 0 && (o.ChunkTokenBudget < 100 || o.ChunkTokenBudget > 2000) {
		return fmt.Errorf("chunk_token_budget must be between 100 and 2000, got %d", o.ChunkTokenBudget)
	}
	return nil
}

// loadOverrides reads a workspace's override file. A missing file yields
// empty overrides, not an error.
func loadOverrides(root string) (Overrides, error) {
	var o Overrides

	path := filepath.Join(root, OverridesFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return o, nil
		}
		return o, fmt.Errorf("checking %s: %w", OverridesFile, err)
	}

	if _, err := toml.DecodeFile(path, &o); err != nil {
		return Overrides{}, fmt.Errorf("parsing %s: %w", OverridesFile, err)
	}
	if err := o.Validate(); err != nil {
		return Overrides{}, fmt.Errorf("invalid %s: %w", OverridesFile, err)
	}
	return o, nil
}
