package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrInvalidPid is returned by PidFile.Read when the file exists but does
// not hold a positive decimal process id. A pid of zero is never valid.
var ErrInvalidPid = errors.New("invalid pid")

// PidFile is a small file holding a single decimal process id.
//
// Two of these are used for coordination: the watchdog writes its own pid so
// that `watchdog update` can signal it, and the managed server publishes its
// pid once it is ready to accept connections.
type PidFile struct {
	path string
}

// NewPidFile returns a PidFile for path. The file is not touched.
func NewPidFile(path string) *PidFile {
	return &PidFile{path: path}
}

// Path returns the file location.
func (f *PidFile) Path() string {
	return f.path
}

// Write atomically replaces the file with pid. The value is written to a
// temporary file in the same directory, fsynced and renamed into place, so
// a concurrent reader sees either the old content or the new one.
//
// The parent directory is created when missing.
func (f *PidFile) Write(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPid, pid)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary pid file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(strconv.Itoa(pid)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary pid file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temporary pid file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary pid file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set pid file permissions: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename pid file into place: %w", err)
	}

	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}

	return nil
}

// Read returns the stored pid.
//
// Returns (0, false, nil) when the file does not exist, meaning the pid has
// not been published yet. Returns an error wrapping ErrInvalidPid when the
// file exists but its content is empty, zero, negative or not a number.
func (f *PidFile) Read() (int, bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read pid file: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		return 0, true, fmt.Errorf("%w in %s: %q", ErrInvalidPid, f.path, raw)
	}

	return pid, true, nil
}

// Clear removes the file. Idempotent: returns nil when it does not exist.
func (f *PidFile) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove pid file: %w", err)
	}
	return nil
}

// PidWatch delivers a notification on C each time the watched pid file is
// created or written. Notifications coalesce: C has capacity one.
type PidWatch struct {
	C <-chan struct{}

	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// Watch starts watching the pid file for changes. The parent directory is
// watched rather than the file itself so that a file created after the
// watch starts (or replaced by rename) is still seen.
//
// The parent directory must exist.
func (f *PidFile) Watch() (*PidWatch, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch pid directory: %w", err)
	}

	ch := make(chan struct{}, 1)
	w := &PidWatch{
		C:       ch,
		watcher: watcher,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	target := filepath.Clean(f.path)
	go w.loop(target, ch)

	return w, nil
}

func (w *PidWatch) loop(target string, ch chan<- struct{}) {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case ch <- struct{}{}:
			default:
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watch and releases the underlying inotify handle.
func (w *PidWatch) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		err = w.watcher.Close()
	})
	return err
}
