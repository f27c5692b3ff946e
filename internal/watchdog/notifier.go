package watchdog

import (
	"fmt"
	"syscall"

	"github.com/mvp-joe/watchdog/internal/daemon"
)

// Notify reads the watchdog pid from pidFile and sends it sig.
//
// Returns ErrNotRunning when there is no pid file, an error wrapping
// daemon.ErrInvalidPid when its content is unusable, ErrWatchdogGone when
// the process no longer exists, and ErrSignalDeliveryFailed when the
// signal could not be sent. On success the signalled pid is returned.
//
// Notify never writes anything.
func Notify(pidFile *daemon.PidFile, processes daemon.ProcessTable, sig syscall.Signal) (int, error) {
	pid, ok, err := pidFile.Read()
	if err != nil {
		return 0, fmt.Errorf("pid file is invalid: %w", err)
	}
	if !ok {
		return 0, ErrNotRunning
	}

	if !processes.Alive(pid) {
		return pid, fmt.Errorf("%w: [%d]", ErrWatchdogGone, pid)
	}

	if err := processes.Signal(pid, sig); err != nil {
		return pid, fmt.Errorf("%w: [%d]: %w", ErrSignalDeliveryFailed, pid, err)
	}

	return pid, nil
}
