package watchdog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mvp-joe/watchdog/internal/daemon"
	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is the readiness polling period.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultPortWaitTimeout bounds the wait for a port still held by an
	// outgoing instance.
	DefaultPortWaitTimeout = 20 * time.Second

	portPollInterval = 250 * time.Millisecond
	portWarnInterval = 5 * time.Second
)

// Server is a launched and ready managed-server instance.
type Server struct {
	// PID is the pid the server published, the authoritative identifier
	// of the instance.
	PID int
	// Port the instance was told to listen on.
	Port int
	// LaunchID correlates log lines of one launch attempt.
	LaunchID string

	process daemon.Instance
	retired atomic.Bool
}

// Retire marks the instance as being shut down on purpose, so its exit is
// not reported as unexpected.
func (s *Server) Retire() { s.retired.Store(true) }

// Retired reports whether Retire was called.
func (s *Server) Retired() bool { return s.retired.Load() }

// Done is closed when the instance's wrapper process has exited.
func (s *Server) Done() <-chan struct{} { return s.process.Done() }

// LauncherOptions configures a Launcher.
type LauncherOptions struct {
	// PortEnv is the environment variable carrying the port to listen on.
	PortEnv string
	// Env is the base environment for the child, in os.Environ form.
	Env []string
	// PortWaitTimeout bounds the wait for the target port to become free.
	PortWaitTimeout time.Duration
	// PollInterval is the readiness polling period.
	PollInterval time.Duration
	// VerifyListening additionally requires the port to accept connections
	// before an instance counts as ready.
	VerifyListening bool
	// ConnectTimeout bounds each port probe.
	ConnectTimeout time.Duration
}

// Launcher starts managed-server instances and waits for them to become
// ready.
type Launcher struct {
	log       *zap.Logger
	spawner   daemon.Spawner
	serverPid *daemon.PidFile
	opts      LauncherOptions
	metrics   *Metrics

	isPortFree func(port int) bool
	onExit     func(*Server)
}

// NewLauncher creates a Launcher spawning through spawner and reading
// readiness from serverPid.
func NewLauncher(log *zap.Logger, spawner daemon.Spawner, serverPid *daemon.PidFile, opts LauncherOptions, metrics *Metrics) *Launcher {
	if opts.PortEnv == "" {
		opts.PortEnv = "HTTP_SERVER_PORT"
	}
	if opts.PortWaitTimeout <= 0 {
		opts.PortWaitTimeout = DefaultPortWaitTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = daemon.DefaultConnectTimeout
	}

	l := &Launcher{
		log:       log.Named("launcher"),
		spawner:   spawner,
		serverPid: serverPid,
		opts:      opts,
		metrics:   metrics,
	}
	l.isPortFree = func(port int) bool {
		return daemon.IsPortFree(port, l.opts.ConnectTimeout)
	}
	return l
}

// OnExit registers fn to be called, from its own goroutine, when a ready
// instance's wrapper process exits.
func (l *Launcher) OnExit(fn func(*Server)) {
	l.onExit = fn
}

// Start launches an instance on port and blocks until it is ready or
// timeout passes. The wait for a free port counts against timeout. All
// failures wrap ErrLaunchFailed.
//
// Ready means, at the same poll: the wrapper process is still running, the
// server has published a valid pid, and (with VerifyListening) the port
// accepts connections.
func (l *Launcher) Start(port int, timeout time.Duration) (*Server, error) {
	launchID := uuid.NewString()
	log := l.log.With(zap.Int("port", port), zap.String("launch_id", launchID))

	srv, err := l.start(log, port, timeout)
	l.metrics.observeLaunch(port, err)
	if err != nil {
		return nil, err
	}
	srv.LaunchID = launchID

	if l.onExit != nil {
		go func() {
			<-srv.process.Done()
			l.onExit(srv)
		}()
	}
	return srv, nil
}

func (l *Launcher) start(log *zap.Logger, port int, timeout time.Duration) (*Server, error) {
	log.Info("starting server...")
	deadline := time.Now().Add(timeout)

	if err := l.serverPid.Clear(); err != nil {
		return nil, fmt.Errorf("%w: [%d]: %w", ErrLaunchFailed, port, err)
	}
	if err := os.MkdirAll(filepath.Dir(l.serverPid.Path()), 0755); err != nil {
		return nil, fmt.Errorf("%w: [%d]: failed to create pid directory: %w", ErrLaunchFailed, port, err)
	}

	portDeadline := time.Now().Add(l.opts.PortWaitTimeout)
	if deadline.Before(portDeadline) {
		portDeadline = deadline
	}
	waitStart := time.Now()
	if !l.waitPortFree(log, port, portDeadline) {
		log.Error("port is not available", zap.Duration("waited", time.Since(waitStart)))
		return nil, fmt.Errorf("%w: [%d]: port is not available", ErrLaunchFailed, port)
	}

	inst, err := l.spawner.Spawn(l.environ(port))
	if err != nil {
		return nil, fmt.Errorf("%w: [%d]: %w", ErrLaunchFailed, port, err)
	}

	pid, err := l.awaitReady(log, inst, port, timeout, deadline)
	if err != nil {
		return nil, err
	}

	log.Info("server started successfully", zap.Int("pid", pid), zap.Int("cmd_pid", inst.Pid()))
	return &Server{PID: pid, Port: port, process: inst}, nil
}

// waitPortFree polls until port is free or deadline passes. Warns on the
// first occupied probe and then every few seconds.
func (l *Launcher) waitPortFree(log *zap.Logger, port int, deadline time.Time) bool {
	var lastWarn time.Time

	for {
		if l.isPortFree(port) {
			log.Debug("port is available")
			return true
		}

		now := time.Now()
		if !now.Before(deadline) {
			return false
		}
		if lastWarn.IsZero() || now.Sub(lastWarn) >= portWarnInterval {
			lastWarn = now
			log.Warn("port is still in use, waiting...")
		}

		time.Sleep(min(portPollInterval, time.Until(deadline)))
	}
}

// awaitReady polls until inst is ready or deadline passes; timeout is the
// whole launch budget and only used for reporting.
func (l *Launcher) awaitReady(log *zap.Logger, inst daemon.Instance, port int, timeout time.Duration, deadline time.Time) (int, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	ticker := time.NewTicker(l.opts.PollInterval)
	defer ticker.Stop()

	// Published pids normally appear well before the next tick; the watch
	// only shortens the wait, polling stays authoritative.
	var changed <-chan struct{}
	if w, err := l.serverPid.Watch(); err != nil {
		log.Debug("pid file watch unavailable, polling only", zap.Error(err))
	} else {
		defer w.Close()
		changed = w.C
	}

	for {
		select {
		case <-inst.Done():
			log.Error("server exited before becoming ready", zap.Error(inst.Err()))
			return 0, fmt.Errorf("%w: [%d]: server exited before becoming ready", ErrLaunchFailed, port)

		case <-timer.C:
			log.Error("server did not become ready in time", zap.Duration("timeout", timeout))
			if err := inst.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
				log.Warn("failed to stop unready server", zap.Error(err))
			}
			return 0, fmt.Errorf("%w: [%d]: not ready after %v", ErrLaunchFailed, port, timeout)

		case <-ticker.C:
		case <-changed:
		}

		if pid, ok := l.ready(log, inst, port); ok {
			return pid, nil
		}
	}
}

func (l *Launcher) ready(log *zap.Logger, inst daemon.Instance, port int) (int, bool) {
	select {
	case <-inst.Done():
		return 0, false
	default:
	}

	pid, ok, err := l.serverPid.Read()
	if err != nil {
		log.Debug("server pid not readable yet", zap.Error(err))
		return 0, false
	}
	if !ok {
		return 0, false
	}

	if l.opts.VerifyListening && l.isPortFree(port) {
		return 0, false
	}
	return pid, true
}

func (l *Launcher) environ(port int) []string {
	env := make([]string, 0, len(l.opts.Env)+1)
	env = append(env, l.opts.Env...)
	return append(env, l.opts.PortEnv+"="+strconv.Itoa(port))
}
