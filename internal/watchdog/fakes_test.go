package watchdog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/mvp-joe/watchdog/internal/daemon"
	"go.uber.org/zap"
)

// fakeWorld is an in-memory process table and spawner. Spawned instances
// publish the next pid from pids as their server pid, and the server pid is
// also their wrapper pid, so terminating one ends the other.
type fakeWorld struct {
	t         *testing.T
	serverPid *daemon.PidFile

	mu        sync.Mutex
	pids      []int
	alive     map[int]*fakeInstance
	stubborn  map[int]bool
	exitEarly map[int]bool          // by port
	noPublish map[int]bool          // by port
	gate      map[int]chan struct{} // by port, Spawn blocks until closed
	events    []string
}

func newFakeWorld(t *testing.T, pids ...int) *fakeWorld {
	t.Helper()
	return &fakeWorld{
		t:         t,
		serverPid: daemon.NewPidFile(filepath.Join(t.TempDir(), "runtime", "server.pid")),
		pids:      pids,
		alive:     map[int]*fakeInstance{},
		stubborn:  map[int]bool{},
		exitEarly: map[int]bool{},
		noPublish: map[int]bool{},
		gate:      map[int]chan struct{}{},
	}
}

func (w *fakeWorld) record(format string, args ...any) {
	w.events = append(w.events, fmt.Sprintf(format, args...))
}

// Events returns a copy of the spawn/signal log.
func (w *fakeWorld) Events() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.events...)
}

func (w *fakeWorld) Spawn(env []string) (daemon.Instance, error) {
	port := 0
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, "HTTP_SERVER_PORT="); ok {
			port, _ = strconv.Atoi(v)
		}
	}

	w.mu.Lock()
	gate := w.gate[port]
	w.mu.Unlock()
	if gate != nil {
		<-gate
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pids) == 0 {
		return nil, fmt.Errorf("no more pids")
	}
	pid := w.pids[0]
	w.pids = w.pids[1:]

	inst := &fakeInstance{world: w, pid: pid, done: make(chan struct{})}
	w.record("spawn %d on %d", pid, port)

	if w.exitEarly[port] {
		close(inst.done)
		return inst, nil
	}

	w.alive[pid] = inst
	if !w.noPublish[port] {
		if err := w.serverPid.Write(pid); err != nil {
			w.t.Errorf("publishing pid: %v", err)
		}
	}
	return inst, nil
}

func (w *fakeWorld) Alive(pid int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.alive[pid]
	return ok
}

func (w *fakeWorld) Signal(pid int, sig syscall.Signal) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	inst, ok := w.alive[pid]
	if !ok {
		return syscall.ESRCH
	}
	w.record("signal %d %s", pid, sig)
	if sig == syscall.SIGTERM && !w.stubborn[pid] {
		w.killLocked(inst)
	}
	return nil
}

// crash makes pid exit on its own.
func (w *fakeWorld) crash(pid int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if inst, ok := w.alive[pid]; ok {
		w.record("crash %d", pid)
		w.killLocked(inst)
	}
}

func (w *fakeWorld) killLocked(inst *fakeInstance) {
	delete(w.alive, inst.pid)
	inst.once.Do(func() { close(inst.done) })
}

type fakeInstance struct {
	world *fakeWorld
	pid   int
	done  chan struct{}
	once  sync.Once
}

func (i *fakeInstance) Pid() int              { return i.pid }
func (i *fakeInstance) Done() <-chan struct{} { return i.done }
func (i *fakeInstance) Err() error            { return nil }

func (i *fakeInstance) Signal(sig syscall.Signal) error {
	select {
	case <-i.done:
		return os.ErrProcessDone
	default:
	}
	return i.world.Signal(i.pid, sig)
}

// newTestLauncher returns a launcher over w with short intervals and every
// port reported free.
func newTestLauncher(log *zap.Logger, w *fakeWorld, metrics *Metrics) *Launcher {
	l := NewLauncher(log, w, w.serverPid, LauncherOptions{
		PollInterval:    10 * time.Millisecond,
		PortWaitTimeout: 200 * time.Millisecond,
	}, metrics)
	l.isPortFree = func(int) bool { return true }
	return l
}

func newTestTerminator(log *zap.Logger, table daemon.ProcessTable, metrics *Metrics) *Terminator {
	t := NewTerminator(log, table, metrics)
	t.retryInterval = 50 * time.Millisecond
	return t
}
