package cli

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// buildLogger returns a console logger writing to stderr. The level has
// already been validated with the config; verbose forces debug.
func buildLogger(level string, verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return zap.Must(cfg.Build())
}
