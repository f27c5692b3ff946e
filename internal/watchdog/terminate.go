package watchdog

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/mvp-joe/watchdog/internal/daemon"
	"go.uber.org/zap"
)

const (
	// DefaultRetryInterval is how often SIGTERM is re-sent to a process
	// that has not exited yet.
	DefaultRetryInterval = time.Second

	livenessPollInterval = 100 * time.Millisecond
)

// Terminator stops processes by pid: SIGTERM, wait, repeat, give up at the
// deadline. It never escalates to SIGKILL; a process that refuses to die is
// reported to the caller.
type Terminator struct {
	log           *zap.Logger
	processes     daemon.ProcessTable
	retryInterval time.Duration
	metrics       *Metrics
}

// NewTerminator creates a Terminator using processes for liveness checks
// and signal delivery.
func NewTerminator(log *zap.Logger, processes daemon.ProcessTable, metrics *Metrics) *Terminator {
	return &Terminator{
		log:           log.Named("terminator"),
		processes:     processes,
		retryInterval: DefaultRetryInterval,
		metrics:       metrics,
	}
}

// Terminate asks pid to exit and waits until it is gone or timeout passes.
//
// A pid that does not exist is a successful no-op. Returns an error
// wrapping ErrTerminationFailed if the process is still alive after
// timeout.
func (t *Terminator) Terminate(pid int, timeout time.Duration) error {
	log := t.log.With(zap.Int("pid", pid))

	if !t.processes.Alive(pid) {
		log.Warn("process doesn't exist")
		return nil
	}

	deadline := time.Now().Add(timeout)
	warned := false

	for time.Now().Before(deadline) {
		if err := t.processes.Signal(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
			log.Debug("SIGTERM failed", zap.Error(err))
		}

		if t.waitGone(pid, deadline) {
			log.Info("process terminated")
			t.metrics.observeTermination(nil)
			return nil
		}

		if !warned {
			warned = true
			log.Warn("process is still alive, waiting...", zap.Duration("timeout", timeout))
		}
	}

	err := fmt.Errorf("%w: process [%d] still alive after %v", ErrTerminationFailed, pid, timeout)
	t.metrics.observeTermination(err)
	return err
}

// waitGone polls liveness for up to one retry interval, never past
// deadline. Returns true as soon as the process is gone.
func (t *Terminator) waitGone(pid int, deadline time.Time) bool {
	until := time.Now().Add(t.retryInterval)
	if until.After(deadline) {
		until = deadline
	}

	for {
		if !t.processes.Alive(pid) {
			return true
		}
		remaining := time.Until(until)
		if remaining <= 0 {
			return false
		}
		time.Sleep(min(livenessPollInterval, remaining))
	}
}
