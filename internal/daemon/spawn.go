package daemon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Instance is a spawned managed-server wrapper process.
type Instance interface {
	// Pid returns the OS pid of the wrapper. This is not necessarily the
	// pid of the server itself: the server may fork or re-exec and
	// publishes its own pid separately.
	Pid() int

	// Done is closed once the wrapper has exited and been reaped.
	Done() <-chan struct{}

	// Err returns the wait error. Only meaningful after Done is closed.
	Err() error

	// Signal sends sig to the wrapper's whole process group.
	Signal(sig syscall.Signal) error
}

// Spawner starts the managed server with the given environment.
type Spawner interface {
	Spawn(env []string) (Instance, error)
}

// ShellSpawner runs Command through Shell ("-c"), streaming the child's
// stdout and stderr line by line to Stdout and Stderr.
//
// Lines from concurrently running instances never interleave mid-line,
// unless a line is longer than 64KiB.
type ShellSpawner struct {
	Shell   string
	Command string
	Stdout  io.Writer
	Stderr  io.Writer
	Log     *zap.Logger

	mu sync.Mutex // serializes writes to Stdout/Stderr
}

// NewShellSpawner creates a spawner for command. Output goes to the
// watchdog's own stdout and stderr.
func NewShellSpawner(log *zap.Logger, shell, command string) *ShellSpawner {
	if shell == "" {
		shell = "/bin/sh"
	}
	return &ShellSpawner{
		Shell:   shell,
		Command: command,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Log:     log,
	}
}

// Spawn starts the command. It returns as soon as the process exists; it
// does not wait for readiness.
//
// The child runs in its own process group. Terminal signals aimed at the
// watchdog do not reach it.
func (s *ShellSpawner) Spawn(env []string) (Instance, error) {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}

	if s.Command == "" {
		return nil, errors.New("command is required")
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe creation failure: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("stderr pipe creation failure: %w", err)
	}

	cmd := exec.Command(s.Shell, "-c", s.Command)
	cmd.Env = env
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.SysProcAttr = getSysProcAttr()

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return nil, fmt.Errorf("failed to start %q: %w", s.Command, err)
	}

	// The child holds its own copies of the write ends. Closing ours makes
	// the readers see EOF once every process writing to them is gone.
	outW.Close()
	errW.Close()

	inst := &shellInstance{
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}
	log.Debug("process spawned", zap.Int("cmd_pid", inst.pid), zap.String("command", s.Command))

	var g errgroup.Group
	g.Go(func() error { return s.copyLines(outR, s.Stdout) })
	g.Go(func() error { return s.copyLines(errR, s.Stderr) })
	go func() {
		if err := g.Wait(); err != nil {
			log.Debug("output stream ended with error", zap.Int("cmd_pid", inst.pid), zap.Error(err))
		}
		outR.Close()
		errR.Close()
	}()

	// Reaping does not wait for the output streams; a forked grandchild may
	// keep the pipes open long after the wrapper is gone.
	go func() {
		err := cmd.Wait()
		inst.mu.Lock()
		inst.err = err
		inst.mu.Unlock()
		close(inst.done)

		var exitErr *exec.ExitError
		switch {
		case err == nil:
			log.Debug("process exited cleanly", zap.Int("cmd_pid", inst.pid))
		case errors.As(err, &exitErr):
			log.Debug("process exited with error status",
				zap.Int("cmd_pid", inst.pid),
				zap.Int("exit_code", exitErr.ExitCode()))
		default:
			log.Warn("failed to wait for process", zap.Int("cmd_pid", inst.pid), zap.Error(err))
		}
	}()

	return inst, nil
}

// copyLines reads r until EOF. Lines longer than the read buffer are passed
// through in pieces. Reading continues after a write error so the child
// never blocks on a full pipe.
func (s *ShellSpawner) copyLines(r io.Reader, w io.Writer) error {
	br := bufio.NewReaderSize(r, 64*1024)

	var writeErr error
	for {
		line, isPrefix, err := br.ReadLine()
		if err != nil {
			if writeErr != nil {
				return writeErr
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if w == nil || writeErr != nil {
			continue
		}

		s.mu.Lock()
		_, writeErr = w.Write(line)
		if writeErr == nil && !isPrefix {
			_, writeErr = io.WriteString(w, "\n")
		}
		s.mu.Unlock()
	}
}

type shellInstance struct {
	pid  int
	done chan struct{}

	mu  sync.Mutex
	err error
}

func (p *shellInstance) Pid() int              { return p.pid }
func (p *shellInstance) Done() <-chan struct{} { return p.done }

func (p *shellInstance) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *shellInstance) Signal(sig syscall.Signal) error {
	select {
	case <-p.done:
		return os.ErrProcessDone
	default:
	}
	return unix.Kill(-p.pid, sig)
}
