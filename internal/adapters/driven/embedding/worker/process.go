package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Process is a running worker.
type Process interface {
	// Stdin carries requests to the worker. Closing it asks the worker to exit.
	Stdin() io.WriteCloser

	// Stdout carries responses from the worker.
	Stdout() io.Reader

	// Pid is the OS process id, or 0 for an in-process worker.
	Pid() int

	// Wait blocks until the worker has exited.
	Wait() error

	// Kill terminates the worker immediately.
	Kill() error
}

// Spawner starts workers.
type Spawner interface {
	Spawn() (Process, error)
}

// ExecSpawner runs the worker as a child process.
type ExecSpawner struct {
	// Path is the executable. Empty means the running binary.
	Path string

	// Args are passed to the executable, e.g. ["embed-worker"].
	Args []string

	// Env is appended to the parent environment.
	Env []string

	// Stderr receives the worker's logs. Nil means os.Stderr.
	Stderr io.Writer
}

// Spawn starts the child process.
func (s *ExecSpawner) Spawn() (Process, error) {
	path := s.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating executable: %w", err)
		}
		path = exe
	}

	// The worker outlives the request that spawned it, so no CommandContext.
	cmd := exec.Command(path, s.Args...) //nolint:gosec // path is our own binary or operator config
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Wait() error           { return p.cmd.Wait() }
func (p *execProcess) Kill() error           { return p.cmd.Process.Kill() }

// ServeFunc is a worker body reading requests from r and writing responses to w.
type ServeFunc func(ctx context.Context, r io.Reader, w io.Writer) error

// FuncSpawner runs the worker body in a goroutine connected by pipes.
// It backs in-process mode and tests.
type FuncSpawner struct {
	Serve ServeFunc
}

// Spawn starts the goroutine.
func (s *FuncSpawner) Spawn() (Process, error) {
	if s.Serve == nil {
		return nil, fmt.Errorf("no serve function")
	}

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	p := &funcProcess{
		stdin:  reqW,
		stdout: respR,
		cancel: cancel,
		done:   make(chan struct{}),
		closeAll: func() {
			reqR.Close()
			respW.Close()
		},
	}

	go func() {
		defer close(p.done)
		p.err = s.Serve(ctx, reqR, respW)
		p.closeAll()
	}()

	return p, nil
}

type funcProcess struct {
	stdin    *io.PipeWriter
	stdout   *io.PipeReader
	cancel   context.CancelFunc
	closeAll func()
	done     chan struct{}
	err      error
	killOnce sync.Once
}

func (p *funcProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *funcProcess) Stdout() io.Reader     { return p.stdout }
func (p *funcProcess) Pid() int              { return 0 }

func (p *funcProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *funcProcess) Kill() error {
	p.killOnce.Do(func() {
		p.cancel()
		p.closeAll()
		p.stdin.Close()
	})
	return nil
}
