// Package watchdog keeps one managed server alive and swaps it for a fresh
// instance without downtime when asked to.
//
// # Control loop
//
// A Coordinator owns a single-slot Mailbox and consumes restart requests
// one at a time:
//
//	Idle --request, mode normal-------> Launching ----------------> Idle
//	Idle --request, mode transferring-> PromotingAndRetiring -----> Idle
//	Idle --mailbox closed-------------> Stopped
//
// Launching starts an instance on the main port; a normal-mode wake-up while
// the current instance is still running does nothing. PromotingAndRetiring
// is the blue/green restart:
//
//  1. launch a new instance on the backup port
//  2. terminate the old current instance
//  3. launch a new instance on the main port
//  4. terminate the backup instance
//
// The backup is confirmed ready before the old instance is touched, so at
// every point at least one instance is serving. Failures in the middle are
// logged and leave things as they are; there is no rollback.
//
// # Triggers
//
// The reload signal (SIGWINCH by default) is turned into RequestReload by
// ListenSignals. `watchdog update` delivers it using Notify, which reads the
// watchdog's pid file.
package watchdog

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// PidPair identifies the instance serving production traffic and, during a
// restart, the promoted or about-to-be-retired one. Zero means none.
type PidPair struct {
	Current int
	Backup  int
}

// Options configures a Coordinator.
type Options struct {
	MainPort   int
	BackupPort int

	// StartTimeout bounds each launch, StopTimeout each termination.
	StartTimeout time.Duration
	StopTimeout  time.Duration

	// RestartOnExit makes an unexpected exit of the current instance
	// trigger a plain restart instead of stopping the watchdog.
	RestartOnExit bool

	// StopServerOnExit terminates the current instance when the loop stops.
	StopServerOnExit bool
}

// Coordinator is the watchdog control loop.
type Coordinator struct {
	log        *zap.Logger
	opts       Options
	launcher   *Launcher
	terminator *Terminator
	metrics    *Metrics

	mailbox *Mailbox
	mode    modeFlag

	// Written only by the loop goroutine; mu guards snapshot reads.
	mu      sync.Mutex
	current *Server
	backup  *Server
	started bool

	stopping atomic.Bool
}

// NewCoordinator wires a control loop around launcher and terminator.
func NewCoordinator(log *zap.Logger, opts Options, launcher *Launcher, terminator *Terminator, metrics *Metrics) *Coordinator {
	c := &Coordinator{
		log:        log.Named("coordinator"),
		opts:       opts,
		launcher:   launcher,
		terminator: terminator,
		metrics:    metrics,
		mailbox:    NewMailbox(),
	}
	launcher.OnExit(c.serverExited)
	return c
}

// RequestReload asks for a blue/green restart. Safe to call from any
// goroutine and never blocks; requests arriving while one is pending are
// coalesced.
func (c *Coordinator) RequestReload() {
	c.mode.request()
	c.metrics.setMode(ModeTransferring)
	if !c.mailbox.Offer() {
		c.log.Debug("restart already pending, request coalesced")
	}
}

// Shutdown stops the loop. cause is returned by Run; nil means a clean
// shutdown.
func (c *Coordinator) Shutdown(cause error) {
	c.stopping.Store(true)
	c.mailbox.Close(cause)
}

// Mode returns the current watchdog mode.
func (c *Coordinator) Mode() Mode {
	return c.mode.load()
}

// Pids returns a snapshot of the current and backup pids.
func (c *Coordinator) Pids() PidPair {
	c.mu.Lock()
	defer c.mu.Unlock()

	var p PidPair
	if c.current != nil {
		p.Current = c.current.PID
	}
	if c.backup != nil {
		p.Backup = c.backup.PID
	}
	return p
}

// Run performs the first start and then serves restart requests until the
// mailbox is closed. It returns the error that stopped the loop: a failed
// first start, an unexpected server exit, or the Shutdown cause.
func (c *Coordinator) Run() error {
	c.mailbox.Offer()

	for c.mailbox.Pop() {
		if c.mode.load() == ModeTransferring {
			if err := c.restart(); err != nil {
				c.log.Error("restart failed", zap.Error(err))
				// A reload that arrived before the first start took its
				// place in the mailbox.
				if errors.Is(err, ErrPrerequisiteMissing) && !c.hasStarted() {
					c.log.Error("no server running, starting it")
					c.mailbox.Offer()
				}
			}
			continue
		}

		// A wake-up left over from a burst of reloads that the previous
		// restart already covered.
		if c.currentRunning() {
			c.log.Debug("server already running, nothing to start")
			continue
		}

		if err := c.launch(); err != nil {
			if !c.hasStarted() {
				c.log.Error("server failed to start", zap.Error(err))
				c.stopping.Store(true)
				c.mailbox.Close(err)
				break
			}
			c.log.Error("server restart failed", zap.Error(err))
		}
	}

	c.stop()
	return c.mailbox.Err()
}

// hasStarted reports whether any instance has ever come up. Until one has,
// a failed launch stops the watchdog.
func (c *Coordinator) hasStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *Coordinator) currentRunning() bool {
	c.mu.Lock()
	srv := c.current
	c.mu.Unlock()

	if srv == nil {
		return false
	}
	select {
	case <-srv.Done():
		return false
	default:
		return true
	}
}

// launch is the Launching state.
func (c *Coordinator) launch() error {
	srv, err := c.launcher.Start(c.opts.MainPort, c.opts.StartTimeout)
	if err != nil {
		return err
	}
	c.setCurrent(srv)
	return nil
}

// restart is the PromotingAndRetiring state.
func (c *Coordinator) restart() (err error) {
	seq := c.mode.snapshot()
	start := time.Now()
	defer func() {
		c.mode.complete(seq)
		c.metrics.setMode(c.mode.load())
		c.metrics.observeRestart(err)
	}()

	c.log.Info("restarting server...")

	c.mu.Lock()
	old := c.current
	c.mu.Unlock()
	if old == nil {
		return fmt.Errorf("%w: current server pid is not known", ErrPrerequisiteMissing)
	}

	c.log.Info("starting new server...", zap.Int("port", c.opts.BackupPort))
	backup, err := c.launcher.Start(c.opts.BackupPort, c.opts.StartTimeout)
	if err != nil {
		return fmt.Errorf("starting backup server: %w", err)
	}
	c.setBackup(backup)

	c.log.Info("stopping original server...", zap.Int("pid", old.PID))
	old.Retire()
	if err := c.terminator.Terminate(old.PID, c.opts.StopTimeout); err != nil {
		return fmt.Errorf("stopping original server: %w", err)
	}

	c.log.Info("transferring server port...", zap.Int("port", c.opts.MainPort))
	current, err := c.launcher.Start(c.opts.MainPort, c.opts.StartTimeout)
	if err != nil {
		return fmt.Errorf("starting server on main port: %w", err)
	}
	c.setCurrent(current)

	c.log.Info("stopping backup server...", zap.Int("pid", backup.PID))
	backup.Retire()
	if err := c.terminator.Terminate(backup.PID, c.opts.StopTimeout); err != nil {
		return fmt.Errorf("stopping backup server: %w", err)
	}
	c.setBackup(nil)

	c.log.Info("server restarted successfully",
		zap.Int("pid", current.PID),
		zap.Duration("took", time.Since(start)))
	return nil
}

// stop is the Stopped state.
func (c *Coordinator) stop() {
	if !c.opts.StopServerOnExit {
		return
	}

	c.mu.Lock()
	servers := []*Server{c.backup, c.current}
	c.mu.Unlock()

	for _, srv := range servers {
		if srv == nil {
			continue
		}
		srv.Retire()
		c.log.Info("stopping server...", zap.Int("pid", srv.PID), zap.Int("port", srv.Port))
		if err := c.terminator.Terminate(srv.PID, c.opts.StopTimeout); err != nil {
			c.log.Error("failed to stop server", zap.Error(err))
		}
	}
}

// serverExited runs on the launcher's monitor goroutine whenever a ready
// instance's wrapper exits.
func (c *Coordinator) serverExited(srv *Server) {
	log := c.log.With(zap.Int("pid", srv.PID), zap.Int("port", srv.Port))

	if srv.Retired() || c.stopping.Load() {
		log.Debug("server exited")
		return
	}

	c.mu.Lock()
	isCurrent := c.current == srv
	c.mu.Unlock()

	if !isCurrent {
		log.Warn("backup server exited")
		return
	}
	if c.mode.load() == ModeTransferring {
		log.Warn("server exited during transfer")
		return
	}

	if c.opts.RestartOnExit {
		log.Error("server stopped, restarting")
		c.mailbox.Offer()
		return
	}

	log.Error("server stopped")
	c.Shutdown(fmt.Errorf("%w: [%d]", ErrServerExited, srv.Port))
}

func (c *Coordinator) setCurrent(srv *Server) {
	c.mu.Lock()
	c.current = srv
	c.started = true
	c.mu.Unlock()
	c.metrics.setCurrentPID(srv.PID)
}

func (c *Coordinator) setBackup(srv *Server) {
	c.mu.Lock()
	c.backup = srv
	c.mu.Unlock()
}
