package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withTempHome redirects the home directory so tests can plant config
// files under ~/.config/rewind.
func withTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home) // windows

	configDir := filepath.Join(home, ".config", "rewind")
	require.NoError(t, os.MkdirAll(configDir, 0o700))
	return configDir
}

func writeConfigFile(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	withTempHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 1024, cfg.Workspace.MaxFileSizeKB)
	assert.False(t, cfg.RemoteEnabled())
}

func TestLoadWithFile_ReadsYAML(t *testing.T) {
	dir := withTempHome(t)
	path := writeConfigFile(t, dir, `
workspace:
  root: /projects/demo
  extensions: [".go", ".md"]
  max_file_size_kb: 256
session:
  auto_watch: true
logging:
  level: debug
  format: json
`, 0o600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/projects/demo", cfg.Workspace.Root)
	assert.Equal(t, []string{".go", ".md"}, cfg.Workspace.Extensions)
	assert.Equal(t, 256, cfg.Workspace.MaxFileSizeKB)
	assert.True(t, cfg.Session.AutoWatch)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	dir := withTempHome(t)
	path := writeConfigFile(t, dir, `
logging:
  level: info
`, 0o600)

	t.Setenv("LOGGING_LEVEL", "error")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadWithFile_RemoteTokenFromEnv(t *testing.T) {
	dir := withTempHome(t)
	path := writeConfigFile(t, dir, `
remote:
  owner: octocat
  repo: demo
`, 0o600)

	t.Setenv("REMOTE_TOKEN", "ghp_token")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.RemoteEnabled())
	assert.Equal(t, "ghp_token", cfg.Remote.Token.Value())
}

func TestLoadWithFile_RejectsWorldReadableFile(t *testing.T) {
	dir := withTempHome(t)
	path := writeConfigFile(t, dir, "logging:\n  level: info\n", 0o644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permissions")
}

func TestLoadWithFile_RejectsPathOutsideAllowedDirs(t *testing.T) {
	withTempHome(t)
	outside := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(outside, []byte("{}"), 0o600))

	_, err := LoadWithFile(outside)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file must be in")
}

func TestLoadWithFile_InvalidConfigFails(t *testing.T) {
	dir := withTempHome(t)
	path := writeConfigFile(t, dir, `
logging:
  level: verbose
`, 0o600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	require.NoError(t, EnsureConfigDir())

	info, err := os.Stat(filepath.Join(home, ".config", "rewind"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
