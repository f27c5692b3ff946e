//go:build unix

package daemon

import "syscall"

// getSysProcAttr returns platform-specific process attributes for spawning
// the managed server. On Unix systems, we use Setpgid so the server and
// anything it forks can be signalled as a group.
func getSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}
