//go:build !windows

package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
)

type unixNode struct {
	opts options
}

func newPlatformNode(o options) Node {
	return &unixNode{opts: o}
}

// Start runs bin/cassandra in the foreground in its own process group.
func (n *unixNode) Start(ctx context.Context, cfg LaunchConfig) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	executable := filepath.Join(cfg.InstallDir, "bin", "cassandra")
	args := []string{"-f", "-p", cfg.pidFile()}
	if cfg.RootAllowed {
		args = append(args, "-R")
	}

	cmd := exec.Command(executable, args...)
	cmd.Dir = cfg.InstallDir
	cmd.Env = Environment(os.Environ(), cfg)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	p, err := spawn(cmd, cfg)
	if err != nil {
		return nil, err
	}
	// bin/cassandra -f execs the JVM, so the handle pid is the server pid
	p.setPid(cmd.Process.Pid)

	n.opts.logger.Info().
		Int("pid", cmd.Process.Pid).
		Str("dir", cfg.InstallDir).
		Msg("Started Cassandra process")
	return p, nil
}

// Stop sends SIGINT, then SIGKILL, then kills the whole process group.
func (n *unixNode) Stop(ctx context.Context, p *Process) error {
	if !p.Alive() {
		return nil
	}
	pid, _ := p.Pid()

	esc := &Escalator{
		Polite: func(context.Context) error {
			return signal(pid, unix.SIGINT)
		},
		Forceful: func(context.Context) error {
			return signal(pid, unix.SIGKILL)
		},
		Destroy: func(context.Context) error {
			var result error
			if err := signal(-pid, unix.SIGKILL); err != nil {
				result = multierror.Append(result, err)
			}
			if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				result = multierror.Append(result, err)
			}
			return result
		},
		Exited: p.Done(),
		Wait:   n.opts.stepTimeout,
		Logger: n.opts.logger.With().Int("pid", pid).Logger(),
	}
	return esc.Run(ctx)
}

// signal sends sig to pid, or to the process group -pid. A process that is
// already gone is not an error.
func signal(pid int, sig unix.Signal) error {
	if err := unix.Kill(pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("failed to send %v to %d: %w", sig, pid, err)
	}
	return nil
}
