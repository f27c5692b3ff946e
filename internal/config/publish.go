package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by Publish when the destination exists and
// overwriting was not requested.
var ErrConfigExists = errors.New("config file already exists")

const publishHeader = `# Watchdog configuration.
#
# Every key can be overridden with a WATCHDOG_* environment variable,
# e.g. WATCHDOG_PORTS_MAIN=8080 or WATCHDOG_TIMEOUT=60.
#
# The managed server receives its port in $port_env and must write its own
# pid to server_pid_file once it accepts connections.
`

// Marshal renders cfg as YAML with a short explanatory header.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(publishHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Publish writes the default configuration to path. An existing file is
// only replaced when force is set.
func Publish(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	data, err := Marshal(Default())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
