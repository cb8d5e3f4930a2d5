package node

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/shirou/gopsutil/v3/process"
)

// StopPid stops a server known only by its pid, for instance one left behind
// by a crashed caller. It runs the same escalation as Node.Stop: SIGINT,
// then kill, then kill of the whole process tree.
func StopPid(ctx context.Context, pid int, opts ...Option) error {
	o := newOptions(opts)

	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil
		}
		return fmt.Errorf("failed to look up process %d: %w", pid, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	exited := watchExit(watchCtx, proc)

	esc := &Escalator{
		Polite: func(ctx context.Context) error {
			return proc.SendSignalWithContext(ctx, syscall.SIGINT)
		},
		Forceful: func(ctx context.Context) error {
			return proc.KillWithContext(ctx)
		},
		Destroy: func(ctx context.Context) error {
			var result error
			children, _ := proc.ChildrenWithContext(ctx)
			for _, child := range children {
				if err := child.KillWithContext(ctx); err != nil {
					result = multierror.Append(result, err)
				}
			}
			if err := proc.KillWithContext(ctx); err != nil {
				result = multierror.Append(result, err)
			}
			return result
		},
		Exited: exited,
		Wait:   o.stepTimeout,
		Logger: o.logger.With().Int("pid", pid).Logger(),
	}
	return esc.Run(ctx)
}

// Running reports whether a process with pid exists.
func Running(ctx context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExistsWithContext(ctx, int32(pid))
	return err == nil && ok
}

// watchExit closes the returned channel once proc is gone.
func watchExit(ctx context.Context, proc *process.Process) <-chan struct{} {
	exited := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			running, err := proc.IsRunningWithContext(ctx)
			if err == nil && !running {
				close(exited)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return exited
}
