package cli

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/mvp-joe/watchdog/internal/config"
	"github.com/mvp-joe/watchdog/internal/daemon"
	"github.com/mvp-joe/watchdog/internal/watchdog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the watchdog and the managed server",
	Long: `Start the watchdog in the foreground.

The managed server command is run through the configured shell with the port
to listen on in $HTTP_SERVER_PORT (see port_env). The server signals
readiness by writing its own pid to server_pid_file.

The watchdog writes its pid to watchdog_pid_file and performs a blue/green
restart whenever it receives the reload signal, which is what
"watchdog update" sends. SIGINT or SIGTERM stop the watchdog.

Singleton enforcement ensures only one watchdog runs per pid file.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	defer log.Sync()

	app, err := newWatchdogApp(cfg, log, daemon.NewShellSpawner(log.Named("server"), cfg.Shell, cfg.Command))
	if errors.Is(err, errAlreadyRunning) {
		// Another watchdog already running - exit gracefully
		fmt.Println("Watchdog already running")
		return nil
	}
	if err != nil {
		return err
	}

	if err := app.run(); err != nil {
		return &reportedError{err: err}
	}
	return nil
}

var errAlreadyRunning = errors.New("watchdog already running")

// watchdogApp is a started watchdog: the singleton lock is held and the
// watchdog pid file written until run returns.
type watchdogApp struct {
	log         *zap.Logger
	reload      syscall.Signal
	singleton   *daemon.Singleton
	pidFile     *daemon.PidFile
	coordinator *watchdog.Coordinator
	metrics     *watchdog.Metrics
	metricsAddr string
}

func newWatchdogApp(cfg *config.Config, log *zap.Logger, spawner daemon.Spawner) (*watchdogApp, error) {
	reload, ok := daemon.ParseSignal(cfg.ReloadSignal)
	if !ok {
		return nil, fmt.Errorf("unknown reload signal %q", cfg.ReloadSignal)
	}

	singleton := daemon.NewSingleton(cfg.WatchdogPidFile)
	won, err := singleton.Acquire()
	if err != nil {
		return nil, fmt.Errorf("singleton check failed: %w", err)
	}
	if !won {
		return nil, errAlreadyRunning
	}

	pidFile := daemon.NewPidFile(cfg.WatchdogPidFile)
	if err := pidFile.Write(os.Getpid()); err != nil {
		singleton.Release()
		return nil, fmt.Errorf("failed to write watchdog pid file: %w", err)
	}

	metrics := watchdog.NewMetrics()

	launcher := watchdog.NewLauncher(log, spawner, daemon.NewPidFile(cfg.ServerPidFile), watchdog.LauncherOptions{
		PortEnv:         cfg.PortEnv,
		Env:             cfg.ServerEnv(),
		PortWaitTimeout: cfg.PortWait(),
		VerifyListening: cfg.VerifyListening,
	}, metrics)

	terminator := watchdog.NewTerminator(log, daemon.System{}, metrics)

	coordinator := watchdog.NewCoordinator(log, watchdog.Options{
		MainPort:         cfg.Ports.Main,
		BackupPort:       cfg.Ports.Backup,
		StartTimeout:     cfg.StartTimeout(),
		StopTimeout:      cfg.StopTimeout(),
		RestartOnExit:    cfg.RestartOnExit,
		StopServerOnExit: cfg.StopServerOnExit,
	}, launcher, terminator, metrics)

	return &watchdogApp{
		log:         log,
		reload:      reload,
		singleton:   singleton,
		pidFile:     pidFile,
		coordinator: coordinator,
		metrics:     metrics,
		metricsAddr: cfg.Metrics.Address,
	}, nil
}

// run serves until the coordinator stops, then removes the pid file and
// releases the lock.
func (a *watchdogApp) run() error {
	defer a.singleton.Release()
	defer func() {
		if err := a.pidFile.Clear(); err != nil {
			a.log.Warn("failed to remove watchdog pid file", zap.Error(err))
		}
	}()

	if a.metricsAddr != "" {
		srv := a.serveMetrics()
		defer srv.Close()
	}

	stop := watchdog.ListenSignals(a.log, a.coordinator, a.reload)
	defer stop()

	a.log.Info("watchdog started",
		zap.Int("pid", os.Getpid()),
		zap.String("pid_file", a.pidFile.Path()),
		zap.String("reload_signal", a.reload.String()))

	err := a.coordinator.Run()
	if err != nil {
		a.log.Error("watchdog stopped", zap.Error(err))
		return err
	}

	a.log.Info("watchdog stopped")
	return nil
}

func (a *watchdogApp) serveMetrics() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())

	srv := &http.Server{
		Addr:              a.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.log.Info("serving metrics", zap.String("address", a.metricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server error", zap.Error(err))
		}
	}()

	return srv
}
