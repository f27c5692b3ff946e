package daemon

import (
	"errors"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// ProcessTable answers liveness questions about arbitrary pids and delivers
// signals to them. The watchdog only knows the managed server by the pid it
// published, so everything it does to that server goes through here.
type ProcessTable interface {
	// Alive reports whether pid refers to a running process.
	Alive(pid int) bool

	// Signal sends sig to pid.
	Signal(pid int, sig syscall.Signal) error
}

// System is the ProcessTable backed by the operating system.
type System struct{}

// Alive probes pid with signal 0 and then rejects zombies, which still
// answer signal 0 until their parent reaps them.
//
// EPERM from the probe means the process exists but belongs to another
// user; it is reported alive.
func (System) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}

	if err := unix.Kill(pid, 0); err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}

	statuses, err := p.Status()
	if err != nil {
		// Status unavailable (e.g. /proc hidden); trust the signal probe.
		return true
	}
	for _, s := range statuses {
		if s == process.Zombie {
			return false
		}
	}
	return true
}

// Signal delivers sig to pid.
func (System) Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return unix.ESRCH
	}
	return unix.Kill(pid, sig)
}

// ParseSignal resolves a signal name such as "SIGWINCH" or "winch".
func ParseSignal(name string) (syscall.Signal, bool) {
	sig := unix.SignalNum(normalizeSignalName(name))
	if sig == 0 {
		return 0, false
	}
	return sig, true
}

func normalizeSignalName(name string) string {
	s := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(s, "SIG") {
		s = "SIG" + s
	}
	return s
}
