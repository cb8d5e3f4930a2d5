//go:build windows

package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

type windowsNode struct {
	opts options
}

func newPlatformNode(o options) Node {
	return &windowsNode{opts: o}
}

// Start runs bin\cassandra.ps1 through powershell. The handle belongs to
// powershell, so the server pid is read from the pid file.
func (n *windowsNode) Start(ctx context.Context, cfg LaunchConfig) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	script := filepath.Join(cfg.InstallDir, "bin", "cassandra.ps1")
	cmd := exec.Command("powershell",
		"-ExecutionPolicy", "Unrestricted",
		"-File", script,
		"-f",
		"-p", cfg.pidFile(),
	)
	cmd.Dir = cfg.InstallDir
	cmd.Env = Environment(os.Environ(), cfg)
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}

	p, err := spawn(cmd, cfg)
	if err != nil {
		return nil, err
	}

	if pid, ok := awaitPidFile(ctx, p, n.opts.pidTimeout); ok {
		p.setPid(pid)
		n.opts.logger.Info().Int("pid", pid).Str("dir", cfg.InstallDir).Msg("Started Cassandra process")
	} else {
		n.opts.logger.Warn().Str("pid_file", p.PidFile()).Msg("Cassandra pid unknown, falling back to process handle")
	}
	return p, nil
}

// Stop runs stop-server.ps1, then taskkill on the process tree, then
// terminates the process handle.
func (n *windowsNode) Stop(ctx context.Context, p *Process) error {
	if !p.Alive() {
		return nil
	}
	pid, known := p.Pid()

	esc := &Escalator{
		Polite: func(ctx context.Context) error {
			script := filepath.Join(p.cfg.InstallDir, "bin", "stop-server.ps1")
			cmd := exec.CommandContext(ctx, "powershell",
				"-ExecutionPolicy", "Unrestricted",
				"-File", script,
				"-p", p.PidFile(),
				"-f",
			)
			cmd.Dir = p.cfg.InstallDir
			if out, err := cmd.CombinedOutput(); err != nil {
				return fmt.Errorf("stop-server.ps1 failed: %w: %s", err, out)
			}
			return nil
		},
		Forceful: func(ctx context.Context) error {
			if !known {
				pid = p.cmd.Process.Pid
			}
			cmd := exec.CommandContext(ctx, "taskkill", "/T", "/F", "/PID", strconv.Itoa(pid))
			if out, err := cmd.CombinedOutput(); err != nil {
				return fmt.Errorf("taskkill failed: %w: %s", err, out)
			}
			return nil
		},
		Destroy: func(context.Context) error {
			if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return err
			}
			return nil
		},
		Exited: p.Done(),
		Wait:   n.opts.stepTimeout,
		Logger: n.opts.logger.With().Int("pid", pid).Logger(),
	}
	return esc.Run(ctx)
}
