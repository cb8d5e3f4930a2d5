package cassandra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/readiness"
	"github.com/cuemby/embedded-cassandra/pkg/retry"
	"github.com/cuemby/embedded-cassandra/pkg/types"
)

// outputGrace bounds the wait for the last output lines of a dead process.
const outputGrace = time.Second

// awaitReady polls until both transports are ready or disabled and every
// reported port accepts connections. A process that exits first fails the
// start at once.
func (c *Cassandra) awaitReady(ctx context.Context, r *run, native, rpc *readiness.Detector) (types.Settings, error) {
	settings, err := retry.Until(ctx, readyInterval, c.cfg.StartupTimeout, func(ctx context.Context) (types.Settings, error) {
		if !r.process.Alive() {
			return types.Settings{}, c.exited(r)
		}
		if !native.Ready() {
			return types.Settings{}, retry.Pending("native transport not started")
		}
		if !rpc.Ready() {
			return types.Settings{}, retry.Pending("rpc transport not started")
		}

		n, t := native.Status(), rpc.Status()
		if n.State == readiness.Ready {
			if err := readiness.ProbeAll(ctx, n.Host, n.Port, n.SSLPort); err != nil {
				return types.Settings{}, retry.Pending("native transport: %v", err)
			}
		}
		if t.State == readiness.Ready {
			if err := readiness.ProbeAll(ctx, t.Host, t.Port); err != nil {
				return types.Settings{}, retry.Pending("rpc transport: %v", err)
			}
		}
		return c.buildSettings(r, n, t), nil
	})
	if err == nil {
		return settings, nil
	}
	if errors.Is(err, retry.ErrTimeout) {
		return types.Settings{}, fmt.Errorf("%w: %w%s", ErrStartTimeout, err, formatTail(r.tail))
	}
	return types.Settings{}, err
}

// exited describes a process that died during startup, with its last output.
func (c *Cassandra) exited(r *run) error {
	select {
	case <-r.pumpDone:
	case <-time.After(outputGrace):
	}
	err := fmt.Errorf("process exited with code %d", r.process.ExitCode())
	if exitErr := r.process.ExitErr(); exitErr != nil {
		err = fmt.Errorf("process exited: %w", exitErr)
	}
	return fmt.Errorf("%w%s", err, formatTail(r.tail))
}

func (c *Cassandra) buildSettings(r *run, native, rpc readiness.Status) types.Settings {
	s := types.Settings{
		Name:             c.cfg.Name,
		Version:          r.dist.Version,
		Address:          c.cfg.Address,
		ConfigFile:       r.config.File,
		InstallDirectory: r.dist.Dir,
		WorkingDirectory: r.workDir,
	}
	switch {
	case native.State == readiness.Ready && native.Host != "":
		s.Address = native.Host
	case rpc.State == readiness.Ready && rpc.Host != "":
		s.Address = rpc.Host
	}
	if s.Address == "" {
		s.Address = "127.0.0.1"
	}
	if native.State == readiness.Ready {
		s.Port = native.Port
		s.SSLPort = native.SSLPort
	}
	if rpc.State == readiness.Ready {
		s.RPCPort = rpc.Port
	}
	if pid, ok := r.process.Pid(); ok {
		s.Pid = pid
	}
	return s
}

func formatTail(t *readiness.Tail) string {
	lines := t.Lines()
	if len(lines) == 0 {
		return ""
	}
	return "\nlast output:\n  " + strings.Join(lines, "\n  ")
}
