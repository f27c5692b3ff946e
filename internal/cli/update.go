package cli

import (
	"errors"
	"fmt"

	"github.com/mvp-joe/watchdog/internal/config"
	"github.com/mvp-joe/watchdog/internal/daemon"
	"github.com/mvp-joe/watchdog/internal/watchdog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Ask the running watchdog to restart the server",
	Long: `Send the reload signal to the running watchdog, which then performs a
blue/green restart of the managed server.

The watchdog is found through watchdog_pid_file. This command only delivers
the signal; it returns as soon as the signal is sent and does not wait for
the restart to finish.`,
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := notifyWatchdog(cfg, log, daemon.System{}); err != nil {
		return &reportedError{err: err}
	}
	return nil
}

// notifyWatchdog signals the watchdog named by the config and logs the
// outcome.
func notifyWatchdog(cfg *config.Config, log *zap.Logger, processes daemon.ProcessTable) error {
	log = log.With(zap.String("pid_file", cfg.WatchdogPidFile))

	sig, ok := daemon.ParseSignal(cfg.ReloadSignal)
	if !ok {
		log.Error("unknown reload signal", zap.String("signal", cfg.ReloadSignal))
		return fmt.Errorf("unknown reload signal %q", cfg.ReloadSignal)
	}

	pid, err := watchdog.Notify(daemon.NewPidFile(cfg.WatchdogPidFile), processes, sig)
	switch {
	case err == nil:
		log.Info("broadcast update signal to watchdog process successfully",
			zap.Int("pid", pid), zap.String("signal", sig.String()))
	case errors.Is(err, watchdog.ErrNotRunning):
		log.Error("watchdog process is not running")
	case errors.Is(err, daemon.ErrInvalidPid):
		log.Error("pid file is invalid", zap.Error(err))
	case errors.Is(err, watchdog.ErrWatchdogGone):
		log.Error("watchdog process doesn't exist", zap.Int("pid", pid))
	default:
		log.Error("broadcast update signal to watchdog process failed", zap.Int("pid", pid), zap.Error(err))
	}
	return err
}
