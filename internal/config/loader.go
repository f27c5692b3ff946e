package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	configFile  string
	searchPaths []string
}

// NewLoader creates a configuration loader. When configFile is empty,
// watchdog.yaml (or .yml) is searched for in searchPaths, defaulting to
// the working directory and ./config. A missing file is not an error; an
// explicitly named one must exist.
func NewLoader(configFile string, searchPaths ...string) Loader {
	if len(searchPaths) == 0 {
		searchPaths = []string{".", "config"}
	}
	return &loader{
		configFile:  configFile,
		searchPaths: searchPaths,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (WATCHDOG_*)
// 2. Config file
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		v.SetConfigName("watchdog")
		v.SetConfigType("yaml")
		for _, p := range l.searchPaths {
			v.AddConfigPath(p)
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("WATCHDOG")
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., WATCHDOG_PORTS_MAIN)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || l.configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// bindEnvVars binds every key to its WATCHDOG_* variable. Keys that existed
// under another name in earlier releases also accept the old variable; the
// first name listed wins when both are set.
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("watchdog_pid_file")
	v.BindEnv("server_pid_file")

	v.BindEnv("ports.main", "WATCHDOG_PORTS_MAIN", "WATCHDOG_MAIN_SERVER_PORT")
	v.BindEnv("ports.backup", "WATCHDOG_PORTS_BACKUP", "WATCHDOG_BACKUP_SERVER_PORT")

	v.BindEnv("command")
	v.BindEnv("shell")
	v.BindEnv("port_env")
	v.BindEnv("env")
	v.BindEnv("env_overload")

	v.BindEnv("timeout")
	v.BindEnv("port_wait_timeout")
	v.BindEnv("verify_listening")
	v.BindEnv("restart_on_exit")
	v.BindEnv("stop_server_on_exit")
	v.BindEnv("reload_signal")

	v.BindEnv("metrics.address")
	v.BindEnv("log.level")
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("watchdog_pid_file", defaults.WatchdogPidFile)
	v.SetDefault("server_pid_file", defaults.ServerPidFile)

	v.SetDefault("ports.main", defaults.Ports.Main)
	v.SetDefault("ports.backup", defaults.Ports.Backup)

	v.SetDefault("command", defaults.Command)
	v.SetDefault("shell", defaults.Shell)
	v.SetDefault("port_env", defaults.PortEnv)
	v.SetDefault("env", defaults.Env)
	v.SetDefault("env_overload", defaults.EnvOverload)

	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("port_wait_timeout", defaults.PortWaitTimeout)
	v.SetDefault("verify_listening", defaults.VerifyListening)
	v.SetDefault("restart_on_exit", defaults.RestartOnExit)
	v.SetDefault("stop_server_on_exit", defaults.StopServerOnExit)
	v.SetDefault("reload_signal", defaults.ReloadSignal)

	v.SetDefault("metrics.address", defaults.Metrics.Address)
	v.SetDefault("log.level", defaults.Log.Level)
}

// LoadConfig is a convenience function that loads configuration from
// configFile (or the default search paths when empty).
func LoadConfig(configFile string) (*Config, error) {
	return NewLoader(configFile).Load()
}
