// Package config loads the watchdog configuration.
//
// Configuration Hierarchy (highest to lowest priority):
//  1. Environment variables (WATCHDOG_*)
//  2. Config file (watchdog.yaml in ./ or ./config, or --config)
//  3. Built-in defaults
//
// Environment Variable Convention:
//   - Prefix: WATCHDOG_
//   - Nested fields: Use underscores (WATCHDOG_PORTS_MAIN)
//   - Legacy port names are also honored: WATCHDOG_MAIN_SERVER_PORT,
//     WATCHDOG_BACKUP_SERVER_PORT
//
// A commented default file can be written with Publish.
package config

import (
	"os"
	"time"
)

// Config represents the complete watchdog configuration.
type Config struct {
	WatchdogPidFile string `yaml:"watchdog_pid_file" mapstructure:"watchdog_pid_file"` // pid of the watchdog itself
	ServerPidFile   string `yaml:"server_pid_file" mapstructure:"server_pid_file"`     // pid published by the managed server

	Ports PortsConfig `yaml:"ports" mapstructure:"ports"`

	Command     string   `yaml:"command" mapstructure:"command"`           // managed server start command
	Shell       string   `yaml:"shell" mapstructure:"shell"`               // shell used to run Command
	PortEnv     string   `yaml:"port_env" mapstructure:"port_env"`         // variable carrying the port to listen on
	Env         []string `yaml:"env" mapstructure:"env"`                   // extra KEY=VALUE entries for the server
	EnvOverload bool     `yaml:"env_overload" mapstructure:"env_overload"` // pass the watchdog's environment to the server

	Timeout         int  `yaml:"timeout" mapstructure:"timeout"`                     // seconds, bounds start and stop
	PortWaitTimeout int  `yaml:"port_wait_timeout" mapstructure:"port_wait_timeout"` // seconds to wait for a busy port
	VerifyListening bool `yaml:"verify_listening" mapstructure:"verify_listening"`   // require the port to accept connections

	RestartOnExit    bool `yaml:"restart_on_exit" mapstructure:"restart_on_exit"`         // restart instead of exiting when the server dies
	StopServerOnExit bool `yaml:"stop_server_on_exit" mapstructure:"stop_server_on_exit"` // terminate the server when the watchdog stops

	ReloadSignal string `yaml:"reload_signal" mapstructure:"reload_signal"`

	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// PortsConfig holds the two ports instances alternate between.
type PortsConfig struct {
	Main   int `yaml:"main" mapstructure:"main"`
	Backup int `yaml:"backup" mapstructure:"backup"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Address string `yaml:"address" mapstructure:"address"` // e.g. "127.0.0.1:9090"; empty disables
}

// LogConfig configures the watchdog's own log output.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"` // debug, info, warn, error
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		WatchdogPidFile: "runtime/watchdog.pid",
		ServerPidFile:   "runtime/server.pid",
		Ports: PortsConfig{
			Main:   9501,
			Backup: 9502,
		},
		Command: "php artisan start",
		Shell:   "/bin/sh",
		PortEnv: "HTTP_SERVER_PORT",
		Env: []string{
			"FORCE_COLOR=true",
			"TERM=xterm-256color",
		},
		EnvOverload:      true,
		Timeout:          30,
		PortWaitTimeout:  20,
		VerifyListening:  true,
		RestartOnExit:    false,
		StopServerOnExit: true,
		ReloadSignal:     "SIGWINCH",
		Log: LogConfig{
			Level: "info",
		},
	}
}

// StartTimeout bounds a single server launch.
func (c *Config) StartTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// StopTimeout bounds a single server termination.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// PortWait bounds the wait for a port still held by an outgoing instance.
func (c *Config) PortWait() time.Duration {
	return time.Duration(c.PortWaitTimeout) * time.Second
}

// ServerEnv returns the managed server's base environment: the watchdog's
// own environment when EnvOverload is set, followed by Env. Later entries
// win over earlier ones with the same key.
func (c *Config) ServerEnv() []string {
	var env []string
	if c.EnvOverload {
		env = append(env, os.Environ()...)
	}
	return append(env, c.Env...)
}
