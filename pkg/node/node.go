package node

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/log"
	"github.com/cuemby/embedded-cassandra/pkg/version"
	"github.com/rs/zerolog"
)

const (
	// DefaultStepTimeout is how long each shutdown step waits for the exit.
	DefaultStepTimeout = 5 * time.Second

	// DefaultPidTimeout bounds the wait for the pid file on platforms that
	// cannot take the pid from the process handle.
	DefaultPidTimeout = time.Second

	pidFileName = "cassandra.pid"
	jvmOptsVar  = "JVM_EXTRA_OPTS"
)

// LaunchConfig describes one server process.
type LaunchConfig struct {
	Version version.Version

	// InstallDir is the distribution root and the working directory of the
	// process.
	InstallDir string

	// WorkDir receives the pid file. Defaults to InstallDir.
	WorkDir string

	JavaHome         string
	Environment      map[string]string
	JVMOptions       []string
	SystemProperties map[string]string

	// RootAllowed passes -R so the server agrees to run as root.
	RootAllowed bool
}

func (c LaunchConfig) pidFile() string {
	dir := c.WorkDir
	if dir == "" {
		dir = c.InstallDir
	}
	return filepath.Join(dir, pidFileName)
}

// Node starts and stops server processes for the current platform.
type Node interface {
	Start(ctx context.Context, cfg LaunchConfig) (*Process, error)
	Stop(ctx context.Context, p *Process) error
}

type options struct {
	stepTimeout time.Duration
	pidTimeout  time.Duration
	logger      zerolog.Logger
}

// Option configures a Node.
type Option func(*options)

// WithStepTimeout sets how long every shutdown step waits.
func WithStepTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.stepTimeout = d
		}
	}
}

// WithPidTimeout sets how long to wait for the pid file.
func WithPidTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pidTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) options {
	o := options{
		stepTimeout: DefaultStepTimeout,
		pidTimeout:  DefaultPidTimeout,
		logger:      log.WithComponent("node"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New returns the Node for the running platform.
func New(opts ...Option) Node {
	return newPlatformNode(newOptions(opts))
}

// Environment returns the process environment: base, then JAVA_HOME, then
// the caller's variables, then JVM_EXTRA_OPTS carrying the JVM options and
// every system property as -Dkey=value.
func Environment(base []string, cfg LaunchConfig) []string {
	vars := make(map[string]string, len(base)+len(cfg.Environment)+2)
	var order []string
	set := func(k, v string) {
		if _, ok := vars[k]; !ok {
			order = append(order, k)
		}
		vars[k] = v
	}

	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		set(k, v)
	}
	if cfg.JavaHome != "" {
		set("JAVA_HOME", cfg.JavaHome)
	}

	keys := make([]string, 0, len(cfg.Environment))
	for k := range cfg.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		set(k, cfg.Environment[k])
	}

	if opts := JVMOptions(vars[jvmOptsVar], cfg.JVMOptions, cfg.SystemProperties); opts != "" {
		set(jvmOptsVar, opts)
	}

	env := make([]string, 0, len(order))
	for _, k := range order {
		env = append(env, k+"="+vars[k])
	}
	return env
}

// JVMOptions joins existing options, extra flags and system properties into
// one space separated string. Properties are sorted by key.
func JVMOptions(existing string, flags []string, props map[string]string) string {
	parts := make([]string, 0, len(flags)+len(props)+1)
	if s := strings.TrimSpace(existing); s != "" {
		parts = append(parts, s)
	}
	for _, f := range flags {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if props[k] == "" {
			parts = append(parts, "-D"+k)
			continue
		}
		parts = append(parts, "-D"+k+"="+props[k])
	}
	return strings.Join(parts, " ")
}
