package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/mvp-joe/watchdog/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Watchdog - zero-downtime supervisor for a long-running server",
	Long: `Watchdog keeps one managed server process alive and replaces it with a
fresh instance without dropping traffic.

On reload the watchdog starts a new instance on the backup port, retires the
old one, brings a replacement up on the main port and finally retires the
backup. At every step at least one instance is accepting connections.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./watchdog.yaml or ./config/watchdog.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// reportedError is a failure that has already been logged; Execute only
// turns it into the exit status.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// loadRuntime loads the configuration and builds the logger for it.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, buildLogger(cfg.Log.Level, verbose), nil
}
