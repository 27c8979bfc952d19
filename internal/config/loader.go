package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix namespaces environment overrides:
	// MEMORYAGENT_LOGGING_LEVEL -> logging.level
	// MEMORYAGENT_SCHEDULER_WATCHER_TTL -> scheduler.watcher_ttl
	envPrefix = "MEMORYAGENT_"
)

// Load reads configuration from the YAML file at configPath (default
// ~/.config/memoryagent/config.yaml), applies environment overrides, fills
// defaults, and validates.
//
// Config files must live in ~/.config/memoryagent/ or /etc/memoryagent/,
// have 0600 or 0400 permissions, and stay under 1MB. A missing file is not
// an error; defaults and environment variables still apply.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "memoryagent", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate through the descriptor to avoid a
		// check-then-open race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// MEMORYAGENT_SECTION_FIELD_NAME -> section.field_name: split on
		// the first underscore after the prefix; field names keep theirs.
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// EnsureConfigDir creates ~/.config/memoryagent with owner-only permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "memoryagent")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath checks that path is inside an allowed directory. Runs
// even when the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	// Follow symlinks so a link cannot escape the allowed directories. A
	// failed resolution means the file does not exist yet; validate the
	// literal path instead.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "memoryagent"),
		"/etc/memoryagent",
	}
	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir+string(os.PathSeparator)) || resolvedPath == dir {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/memoryagent/ or /etc/memoryagent/")
}

// validateConfigFileProperties checks permissions and size of an existing
// file, using FileInfo from an already-open descriptor.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults fills values that depend on the runtime environment and
// anything zeroed out by explicit empty config entries.
func applyDefaults(cfg *Config) {
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = defaultStatePath("vectorstore")
	}
	if cfg.GraphStore.Path == "" {
		cfg.GraphStore.Path = defaultStatePath("graph.db")
	}
	if cfg.Embeddings.CacheDir == "" {
		cfg.Embeddings.CacheDir = defaultStatePath("models")
	}
	if cfg.Telemetry.MetricInterval == 0 {
		cfg.Telemetry.MetricInterval = NewDefaultConfig().Telemetry.MetricInterval
	}
}

// defaultStatePath places store files under ~/.config/memoryagent, falling
// back to the working directory when home cannot be resolved.
func defaultStatePath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".config", "memoryagent", name)
}
