package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mvp-joe/watchdog/internal/daemon"
	"go.uber.org/zap/zapcore"
)

var (
	// ErrInvalidPort indicates a port outside 1..65535 or a main/backup clash
	ErrInvalidPort = errors.New("invalid port")

	// ErrEmptyCommand indicates a missing server start command
	ErrEmptyCommand = errors.New("empty server command")

	// ErrEmptyPidFile indicates a missing pid file path
	ErrEmptyPidFile = errors.New("empty pid file path")

	// ErrInvalidTimeout indicates a non-positive timeout
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidSignal indicates an unknown reload signal name
	ErrInvalidSignal = errors.New("invalid reload signal")

	// ErrInvalidEnv indicates an env entry not in KEY=VALUE form
	ErrInvalidEnv = errors.New("invalid env entry")

	// ErrInvalidLogLevel indicates an unknown log level
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validatePorts(&cfg.Ports); err != nil {
		errs = append(errs, err)
	}

	if strings.TrimSpace(cfg.Command) == "" {
		errs = append(errs, ErrEmptyCommand)
	}
	if cfg.PortEnv == "" {
		errs = append(errs, fmt.Errorf("%w: port_env cannot be empty", ErrInvalidEnv))
	}
	for _, kv := range cfg.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			errs = append(errs, fmt.Errorf("%w: %q, expected KEY=VALUE", ErrInvalidEnv, kv))
		}
	}

	if cfg.WatchdogPidFile == "" {
		errs = append(errs, fmt.Errorf("%w: watchdog_pid_file", ErrEmptyPidFile))
	}
	if cfg.ServerPidFile == "" {
		errs = append(errs, fmt.Errorf("%w: server_pid_file", ErrEmptyPidFile))
	}
	if cfg.WatchdogPidFile != "" && cfg.WatchdogPidFile == cfg.ServerPidFile {
		errs = append(errs, fmt.Errorf("%w: watchdog_pid_file and server_pid_file must differ", ErrEmptyPidFile))
	}

	if cfg.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: timeout must be positive, got %d", ErrInvalidTimeout, cfg.Timeout))
	}
	if cfg.PortWaitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: port_wait_timeout must be positive, got %d", ErrInvalidTimeout, cfg.PortWaitTimeout))
	}

	if _, ok := daemon.ParseSignal(cfg.ReloadSignal); !ok {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidSignal, cfg.ReloadSignal))
	}

	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.Log.Level))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validatePorts(cfg *PortsConfig) error {
	var errs []error

	if cfg.Main < 1 || cfg.Main > 65535 {
		errs = append(errs, fmt.Errorf("%w: ports.main must be in 1..65535, got %d", ErrInvalidPort, cfg.Main))
	}
	if cfg.Backup < 1 || cfg.Backup > 65535 {
		errs = append(errs, fmt.Errorf("%w: ports.backup must be in 1..65535, got %d", ErrInvalidPort, cfg.Backup))
	}
	if cfg.Main == cfg.Backup {
		errs = append(errs, fmt.Errorf("%w: ports.main and ports.backup must differ, both are %d", ErrInvalidPort, cfg.Main))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

// joinErrors combines multiple errors into a single error with clear
// formatting. The result still matches every sentinel with errors.Is.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}

	return &validationError{
		msg:  fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - ")),
		errs: errs,
	}
}

type validationError struct {
	msg  string
	errs []error
}

func (e *validationError) Error() string   { return e.msg }
func (e *validationError) Unwrap() []error { return e.errs }
