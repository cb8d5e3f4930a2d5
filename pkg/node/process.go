package node

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/retry"
)

// Process is a started server process. The pid may only become known after
// the start returned, so callers ask Pid rather than assume it.
type Process struct {
	cmd     *exec.Cmd
	cfg     LaunchConfig
	output  *os.File
	pidFile string

	mu  sync.RWMutex
	pid int

	done    chan struct{}
	exitErr error
}

// spawn starts cmd with stdout and stderr combined on one pipe.
func spawn(cmd *exec.Cmd, cfg LaunchConfig) (*Process, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	// The child holds its own copy of the write end
	pw.Close()

	p := &Process{
		cmd:     cmd,
		cfg:     cfg,
		output:  pr,
		pidFile: cfg.pidFile(),
		done:    make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	close(p.done)
}

// Pid returns the server pid and whether it is known.
func (p *Process) Pid() (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pid, p.pid > 0
}

func (p *Process) setPid(pid int) {
	p.mu.Lock()
	p.pid = pid
	p.mu.Unlock()
}

// Alive reports whether the process has not exited yet.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the result of waiting for the process. It is only
// meaningful after Done is closed.
func (p *Process) ExitErr() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// ExitCode returns the exit code, or -1 while running or when killed by a signal.
func (p *Process) ExitCode() int {
	if p.Alive() || p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Output is the combined stdout and stderr of the process.
func (p *Process) Output() io.Reader {
	return p.output
}

// CloseOutput closes the read end of the output pipe, which ends any reader
// still waiting on it.
func (p *Process) CloseOutput() error {
	return p.output.Close()
}

// PidFile returns the path the server writes its pid to.
func (p *Process) PidFile() string {
	return p.pidFile
}

// WaitExit waits until the process exits or timeout passes and reports
// whether it exited.
func (p *Process) WaitExit(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

func (p *Process) String() string {
	if pid, ok := p.Pid(); ok {
		return fmt.Sprintf("cassandra (pid %d)", pid)
	}
	return "cassandra (pid unknown)"
}

// ReadPidFile reads a pid written by the server.
func ReadPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s: %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// awaitPidFile polls the pid file every 50ms until it holds a pid or timeout
// passes. A missing pid is not an error; the process is then controlled
// through its handle only.
func awaitPidFile(ctx context.Context, p *Process, timeout time.Duration) (int, bool) {
	pid, err := retry.Until(ctx, 50*time.Millisecond, timeout, func(context.Context) (int, error) {
		if !p.Alive() {
			return 0, fmt.Errorf("process exited")
		}
		pid, err := ReadPidFile(p.pidFile)
		if err != nil {
			return 0, retry.Pending("pid file %s not written yet", p.pidFile)
		}
		return pid, nil
	})
	if err != nil {
		return 0, false
	}
	return pid, true
}
