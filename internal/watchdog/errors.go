package watchdog

import "errors"

var (
	// ErrLaunchFailed means a server instance did not become ready: the
	// wrapper exited early, the port never freed up or never got bound, or
	// the readiness deadline passed.
	ErrLaunchFailed = errors.New("launch failed")

	// ErrTerminationFailed means a process outlived its termination deadline.
	ErrTerminationFailed = errors.New("termination failed")

	// ErrPrerequisiteMissing means a blue/green restart was requested before
	// any current server pid was known.
	ErrPrerequisiteMissing = errors.New("prerequisite missing")

	// ErrSignalDeliveryFailed means the reload signal could not be sent to
	// the watchdog process.
	ErrSignalDeliveryFailed = errors.New("signal delivery failed")

	// ErrNotRunning means no watchdog pid file exists.
	ErrNotRunning = errors.New("watchdog process is not running")

	// ErrWatchdogGone means the watchdog pid file names a process that no
	// longer exists.
	ErrWatchdogGone = errors.New("watchdog process doesn't exist")

	// ErrServerExited means the current server instance stopped on its own.
	ErrServerExited = errors.New("server stopped unexpectedly")
)
