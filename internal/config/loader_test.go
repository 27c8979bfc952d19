package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir so the loader's allowed-directory
// rules resolve inside the test sandbox.
func setupTestHome(t *testing.T) string {
	t.Helper()

	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", tmpHome)
	}

	configDir := filepath.Join(tmpHome, ".config", "memoryagent")
	require.NoError(t, os.MkdirAll(configDir, 0700))
	return configDir
}

func writeConfigFile(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
}

func TestLoad_FromYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfigFile(t, dir, `
logging:
  level: debug
  format: console
scheduler:
  debounce: 2s
  workers: 4
workspaces:
  - /srv/repo-a
  - /srv/repo-b
`, 0600)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.Debounce.Duration())
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, []string{"/srv/repo-a", "/srv/repo-b"}, cfg.Workspaces)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfigFile(t, dir, "logging:\n  level: debug\n", 0600)

	t.Setenv("MEMORYAGENT_LOGGING_LEVEL", "warn")
	t.Setenv("MEMORYAGENT_SCHEDULER_WORKERS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Scheduler.Workers)
}

func TestLoad_RejectsWeakPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not enforced on windows")
	}
	dir := setupTestHome(t)
	path := writeConfigFile(t, dir, "logging:\n  level: debug\n", 0644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_RejectsPathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)
	outside := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(outside, []byte("logging:\n  level: info\n"), 0600))

	_, err := Load(outside)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file must be in")
}

func TestLoad_RejectsOversizedFile(t *testing.T) {
	dir := setupTestHome(t)
	big := "# " + strings.Repeat("x", maxConfigFileSize) + "\n"
	path := writeConfigFile(t, dir, big, 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file too large")
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfigFile(t, dir, "scheduler:\n  workers: 40\n", 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}
