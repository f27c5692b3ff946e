package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Config System:
// - Default() returns valid configuration with all expected defaults
// - LoadConfig() uses defaults when no config file exists
// - LoadConfig() loads watchdog.yaml from the search path
// - LoadConfig() merges config file with defaults
// - Environment variables override config file values
// - Legacy port environment variable names are honored
// - WATCHDOG_SERVER_PID_FILE sets server_pid_file, not the watchdog pid file
// - Explicit config file that does not exist is an error
// - LoadConfig() returns error for malformed YAML
// - LoadConfig() returns error for invalid configuration values
// - ServerEnv() honors env_overload
// - Validate() rejects each class of invalid value
// - Validate() returns multiple errors for multiple invalid fields

func TestDefault_ReturnsValidConfiguration(t *testing.T) {
	t.Parallel()

	// Test: Default() returns valid configuration
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, "runtime/watchdog.pid", cfg.WatchdogPidFile)
	assert.Equal(t, "runtime/server.pid", cfg.ServerPidFile)
	assert.Equal(t, 9501, cfg.Ports.Main)
	assert.Equal(t, 9502, cfg.Ports.Backup)
	assert.Equal(t, "HTTP_SERVER_PORT", cfg.PortEnv)
	assert.Equal(t, []string{"FORCE_COLOR=true", "TERM=xterm-256color"}, cfg.Env)
	assert.True(t, cfg.EnvOverload)
	assert.Equal(t, 30, cfg.Timeout)
	assert.Equal(t, 20, cfg.PortWaitTimeout)
	assert.True(t, cfg.VerifyListening)
	assert.False(t, cfg.RestartOnExit)
	assert.True(t, cfg.StopServerOnExit)
	assert.Equal(t, "SIGWINCH", cfg.ReloadSignal)
	assert.Empty(t, cfg.Metrics.Address)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.NoError(t, Validate(cfg))
}

func TestConfig_Durations(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Timeout = 7
	cfg.PortWaitTimeout = 3

	assert.Equal(t, "7s", cfg.StartTimeout().String())
	assert.Equal(t, "7s", cfg.StopTimeout().String())
	assert.Equal(t, "3s", cfg.PortWait().String())
}

func TestLoadConfig_UsesDefaultsWhenNoConfigFile(t *testing.T) {
	t.Parallel()

	// Test: Load from directory with no config file returns defaults
	cfg, err := NewLoader("", t.TempDir()).Load()
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoadConfig_LoadsFromSearchPath(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	content := `
server_pid_file: /var/run/app/server.pid
ports:
  main: 8080
  backup: 8081
command: ./bin/server --http
env:
  - APP_ENV=production
restart_on_exit: true
reload_signal: SIGUSR2
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "watchdog.yaml"), []byte(content), 0644))

	cfg, err := NewLoader("", tempDir).Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/run/app/server.pid", cfg.ServerPidFile)
	assert.Equal(t, 8080, cfg.Ports.Main)
	assert.Equal(t, 8081, cfg.Ports.Backup)
	assert.Equal(t, "./bin/server --http", cfg.Command)
	assert.Equal(t, []string{"APP_ENV=production"}, cfg.Env)
	assert.True(t, cfg.RestartOnExit)
	assert.Equal(t, "SIGUSR2", cfg.ReloadSignal)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Test: keys absent from the file keep their defaults
	assert.Equal(t, "runtime/watchdog.pid", cfg.WatchdogPidFile)
	assert.Equal(t, 30, cfg.Timeout)
	assert.True(t, cfg.StopServerOnExit)
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: 45\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.Timeout)
}

func TestLoadConfig_ExplicitFileMissing(t *testing.T) {
	t.Parallel()

	// Test: a named file must exist, unlike the search path
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "watchdog.yaml"), []byte("ports: [main: 1\n"), 0644))

	_, err := NewLoader("", tempDir).Load()
	require.Error(t, err)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	content := `
ports:
  main: 9501
  backup: 9501
`
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "watchdog.yaml"), []byte(content), 0644))

	_, err := NewLoader("", tempDir).Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPort)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	tempDir := t.TempDir()
	content := `
timeout: 10
ports:
  main: 8080
  backup: 8081
`
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "watchdog.yaml"), []byte(content), 0644))

	t.Setenv("WATCHDOG_TIMEOUT", "60")
	t.Setenv("WATCHDOG_PORTS_MAIN", "7070")
	t.Setenv("WATCHDOG_RESTART_ON_EXIT", "true")
	t.Setenv("WATCHDOG_LOG_LEVEL", "warn")

	cfg, err := NewLoader("", tempDir).Load()
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Timeout)
	assert.Equal(t, 7070, cfg.Ports.Main)
	assert.Equal(t, 8081, cfg.Ports.Backup)
	assert.True(t, cfg.RestartOnExit)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_LegacyEnvNames(t *testing.T) {
	t.Setenv("WATCHDOG_MAIN_SERVER_PORT", "6001")
	t.Setenv("WATCHDOG_BACKUP_SERVER_PORT", "6002")

	cfg, err := NewLoader("", t.TempDir()).Load()
	require.NoError(t, err)

	assert.Equal(t, 6001, cfg.Ports.Main)
	assert.Equal(t, 6002, cfg.Ports.Backup)
}

func TestLoadConfig_ServerPidFileEnv(t *testing.T) {
	t.Setenv("WATCHDOG_SERVER_PID_FILE", "/tmp/app/server.pid")

	cfg, err := NewLoader("", t.TempDir()).Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/app/server.pid", cfg.ServerPidFile)
	assert.Equal(t, "runtime/watchdog.pid", cfg.WatchdogPidFile)
}

func TestLoadConfig_NewEnvNameWinsOverLegacy(t *testing.T) {
	t.Setenv("WATCHDOG_PORTS_MAIN", "6101")
	t.Setenv("WATCHDOG_MAIN_SERVER_PORT", "6001")

	cfg, err := NewLoader("", t.TempDir()).Load()
	require.NoError(t, err)

	assert.Equal(t, 6101, cfg.Ports.Main)
}

func TestServerEnv(t *testing.T) {
	t.Setenv("WATCHDOG_TEST_INHERITED", "yes")

	cfg := Default()
	cfg.Env = []string{"APP_ENV=test"}

	// Test: overload passes the watchdog's environment through, extras last
	env := cfg.ServerEnv()
	assert.Contains(t, env, "WATCHDOG_TEST_INHERITED=yes")
	assert.Equal(t, "APP_ENV=test", env[len(env)-1])

	// Test: without overload only the configured entries are passed
	cfg.EnvOverload = false
	assert.Equal(t, []string{"APP_ENV=test"}, cfg.ServerEnv())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"main port zero", func(c *Config) { c.Ports.Main = 0 }, ErrInvalidPort},
		{"backup port too large", func(c *Config) { c.Ports.Backup = 70000 }, ErrInvalidPort},
		{"ports equal", func(c *Config) { c.Ports.Backup = c.Ports.Main }, ErrInvalidPort},
		{"empty command", func(c *Config) { c.Command = "   " }, ErrEmptyCommand},
		{"empty port env", func(c *Config) { c.PortEnv = "" }, ErrInvalidEnv},
		{"env without equals", func(c *Config) { c.Env = []string{"NOVALUE"} }, ErrInvalidEnv},
		{"env without key", func(c *Config) { c.Env = []string{"=value"} }, ErrInvalidEnv},
		{"empty watchdog pid file", func(c *Config) { c.WatchdogPidFile = "" }, ErrEmptyPidFile},
		{"empty server pid file", func(c *Config) { c.ServerPidFile = "" }, ErrEmptyPidFile},
		{"same pid files", func(c *Config) { c.ServerPidFile = c.WatchdogPidFile }, ErrEmptyPidFile},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"negative port wait", func(c *Config) { c.PortWaitTimeout = -1 }, ErrInvalidTimeout},
		{"unknown signal", func(c *Config) { c.ReloadSignal = "SIGNOPE" }, ErrInvalidSignal},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, ErrInvalidLogLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.modify(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidate_AcceptsSignalSpellings(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"SIGWINCH", "winch", "SIGUSR2", "hup"} {
		cfg := Default()
		cfg.ReloadSignal = name
		assert.NoError(t, Validate(cfg), name)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Ports.Main = 0
	cfg.Command = ""
	cfg.Timeout = 0

	err := Validate(cfg)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrInvalidPort)
	assert.ErrorIs(t, err, ErrEmptyCommand)
	assert.ErrorIs(t, err, ErrInvalidTimeout)
	assert.Contains(t, err.Error(), "validation failed")
}
