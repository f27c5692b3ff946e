package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Singleton enforces that only one watchdog runs for a given pid file.
//
// The pid file alone cannot do this: a crashed watchdog leaves a stale file
// behind, and two watchdogs starting together would both see it missing.
// The advisory lock on a sibling ".lock" file is released by the kernel when
// the holder dies.
type Singleton struct {
	lockPath string
	lock     *flock.Flock
}

// NewSingleton creates a singleton guard for the watchdog pid file at
// pidPath. The lock lives at pidPath + ".lock".
func NewSingleton(pidPath string) *Singleton {
	return &Singleton{lockPath: pidPath + ".lock"}
}

// LockPath returns the lock file location.
func (s *Singleton) LockPath() string {
	return s.lockPath
}

// Acquire attempts to become the only instance.
// Returns (true, nil) if this process won and should continue.
// Returns (false, nil) if another instance holds the lock.
// Returns (false, err) on actual errors.
func (s *Singleton) Acquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	s.lock = flock.New(s.lockPath)

	locked, err := s.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return locked, nil
}

// Release releases the file lock (called on shutdown).
func (s *Singleton) Release() error {
	if s.lock != nil {
		return s.lock.Unlock()
	}
	return nil
}
