package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Publish:
// - Publish writes a file that loads back to the defaults
// - Published file carries the explanatory header
// - Publish refuses to overwrite an existing file without force
// - Publish overwrites with force
// - Publish creates missing parent directories

func TestPublish_RoundTripsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "watchdog.yaml")
	require.NoError(t, Publish(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Watchdog configuration.")
	assert.Contains(t, string(data), "reload_signal: SIGWINCH")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestPublish_RefusesToOverwrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "watchdog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: 5\n"), 0644))

	err := Publish(path, false)
	require.ErrorIs(t, err, ErrConfigExists)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "timeout: 5\n", string(data))
}

func TestPublish_ForceOverwrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "watchdog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: 5\n"), 0644))

	require.NoError(t, Publish(path, true))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Timeout)
}

func TestPublish_CreatesParentDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config", "nested", "watchdog.yaml")
	require.NoError(t, Publish(path, false))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
