package cassandra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/cache"
	"github.com/cuemby/embedded-cassandra/pkg/config"
	"github.com/cuemby/embedded-cassandra/pkg/events"
	"github.com/cuemby/embedded-cassandra/pkg/log"
	"github.com/cuemby/embedded-cassandra/pkg/metrics"
	"github.com/cuemby/embedded-cassandra/pkg/node"
	"github.com/cuemby/embedded-cassandra/pkg/readiness"
	"github.com/cuemby/embedded-cassandra/pkg/types"
	"github.com/cuemby/embedded-cassandra/pkg/version"
	"github.com/hashicorp/go-multierror"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

const (
	// workerJoinTimeout bounds the wait for a cancelled worker.
	workerJoinTimeout = 10 * time.Second

	// drainTimeout bounds the wait for the output reader after a stop.
	drainTimeout = 5 * time.Second

	readyInterval = 100 * time.Millisecond
)

// Cassandra is one embedded Cassandra server. Start and Stop are safe to call
// from several goroutines; they never run at the same time.
type Cassandra struct {
	cfg     Config
	logger  zerolog.Logger
	output  zerolog.Logger
	cache   *cache.Cache
	overlay *config.Overlay

	// mu is held for the whole of Start and Stop
	mu      sync.Mutex
	machine *fsm.FSM

	dataMu     sync.RWMutex
	version    version.Version
	settings   *types.Settings
	current    *run
	unregister func()
}

// run is everything one start created.
type run struct {
	dist     Distribution
	workDir  string
	config   *config.Result
	process  *node.Process
	pumpDone <-chan struct{}
	tail     *readiness.Tail
}

// New validates cfg and creates an instance in state NEW.
func New(cfg Config) (*Cassandra, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	logger := log.WithInstance("cassandra", cfg.Name)
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("instance", cfg.Name).Logger()
	}

	c := &Cassandra{
		cfg:     cfg,
		logger:  logger,
		output:  logger.With().Str("source", "output").Logger(),
		cache:   cache.New(cfg.CacheDirectory, cache.WithLogger(logger)),
		overlay: config.New(config.WithAllocator(cfg.Allocator), config.WithLogger(logger)),
		version: artifactVersion(cfg.Artifact),
	}
	c.machine = newMachine(c.onEnter)
	return c, nil
}

// Name returns the instance name.
func (c *Cassandra) Name() string {
	return c.cfg.Name
}

// Version returns the Cassandra version, which may be zero for custom
// artifacts until the first start resolved it.
func (c *Cassandra) Version() version.Version {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()
	return c.version
}

// State returns the current lifecycle state.
func (c *Cassandra) State() State {
	return State(c.machine.Current())
}

// IsRunning reports whether the instance is started and its process alive.
func (c *Cassandra) IsRunning() bool {
	if c.State() != StateStarted {
		return false
	}
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()
	return c.current != nil && c.current.process != nil && c.current.process.Alive()
}

// Settings returns the endpoints of the started server, or ErrNotRunning.
func (c *Cassandra) Settings() (types.Settings, error) {
	state := c.State()
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()
	if state != StateStarted || c.settings == nil {
		return types.Settings{}, fmt.Errorf("%w: %s is %s", ErrNotRunning, c.cfg.Name, state)
	}
	return *c.settings, nil
}

// Start launches the server and waits until it accepts connections. It
// returns immediately if the instance is already started. Cancelling ctx
// interrupts the start; the server is then stopped before Start returns an
// error matching both ErrInterrupted and ctx.Err().
func (c *Cassandra) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateStarted {
		return nil
	}

	// Leftovers of a failed stop must not run next to the new server
	if r := c.getRun(); r != nil {
		if err := c.stopRun(context.Background(), r); err != nil {
			return fmt.Errorf("%w: %s: previous process still running: %w", ErrStartFailed, c.describe(), err)
		}
		if state := c.State(); state == StateStopFailed || state == StateStopInterrupted {
			metrics.RunningInstances.Dec()
			c.afterStopped()
		}
	}

	if err := c.transition(eventStart); err != nil {
		return err
	}

	c.logger.Info().Str("version", c.Version().String()).Msg("Starting Cassandra")
	timer := metrics.NewTimer()

	err := c.runWorker(ctx, c.start)
	switch {
	case err == nil:
		timer.ObserveDuration(metrics.StartDuration)
		metrics.StartsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
		metrics.RunningInstances.Inc()
		c.afterStarted()
		c.transition(eventStarted)
		return nil

	case ctx.Err() != nil:
		metrics.StartsTotal.WithLabelValues(metrics.OutcomeInterrupted).Inc()
		c.logger.Warn().Err(ctx.Err()).Msg("Start interrupted, stopping Cassandra")
		c.bestEffortStop()
		c.transition(eventStartInterrupted)
		return fmt.Errorf("%w: start of %s: %w", ErrInterrupted, c.describe(), ctx.Err())

	default:
		metrics.StartsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		c.logger.Error().Err(err).Msg("Start failed, stopping Cassandra")
		c.bestEffortStop()
		c.transition(eventStartFailed)
		return fmt.Errorf("%w: %s: %w", ErrStartFailed, c.describe(), err)
	}
}

// Stop stops the server. It returns immediately if the instance was never
// started or is already stopped. Cancelling ctx abandons the stop without
// undoing signals already sent; a later Stop continues where it left off.
func (c *Cassandra) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateNew, StateStopped:
		return nil
	case StateStartFailed, StateStartInterrupted:
		// The failed start already cleaned up unless that failed too
		if r := c.getRun(); r != nil {
			if err := c.stopRun(ctx, r); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrStopFailed, c.describe(), err)
			}
		}
		return nil
	}

	if err := c.transition(eventStop); err != nil {
		return err
	}
	c.logger.Info().Msg("Stopping Cassandra")

	err := c.runWorker(ctx, c.stop)
	switch {
	case err == nil:
		metrics.StopsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
		metrics.RunningInstances.Dec()
		c.afterStopped()
		c.transition(eventStopped)
		return nil

	case ctx.Err() != nil:
		metrics.StopsTotal.WithLabelValues(metrics.OutcomeInterrupted).Inc()
		c.transition(eventStopInterrupted)
		return fmt.Errorf("%w: stop of %s: %w", ErrInterrupted, c.describe(), ctx.Err())

	default:
		metrics.StopsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		c.transition(eventStopFailed)
		return fmt.Errorf("%w: %s: %w", ErrStopFailed, c.describe(), err)
	}
}

// runWorker runs work on its own goroutine with its own context. If ctx ends
// first, the worker is cancelled and joined for a bounded time.
func (c *Cassandra) runWorker(ctx context.Context, work func(context.Context) error) error {
	workCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- work(workCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		select {
		case <-done:
		case <-time.After(workerJoinTimeout):
			c.logger.Warn().Dur("waited", workerJoinTimeout).Msg("Worker did not finish after cancellation")
		}
		return ctx.Err()
	}
}

func (c *Cassandra) start(ctx context.Context) error {
	dist, err := c.cfg.Artifact.Distribution(ctx, c.cache)
	if err != nil {
		return err
	}
	c.dataMu.Lock()
	c.version = dist.Version
	c.dataMu.Unlock()

	v := dist.Version
	workDir := c.cfg.WorkingDirectory
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("failed to create working directory %s: %w", workDir, err)
	}

	res, err := c.overlay.Apply(ctx, config.Input{
		Version:          v,
		InstallDir:       dist.Dir,
		WorkDir:          workDir,
		Properties:       c.cfg.configProperties(),
		SystemProperties: c.cfg.systemProperties(),
	})
	if err != nil {
		return err
	}

	r := &run{
		dist:    dist,
		workDir: workDir,
		config:  res,
		tail:    readiness.NewTail(readiness.DefaultTailSize),
	}
	c.setRun(r)

	nativeEnabled := res.NativeTransportEnabled(v)
	rpcEnabled := res.RPCTransportEnabled(v)
	native := readiness.NativeTransport(v, nativeEnabled)
	rpc := readiness.RPCTransport(v, rpcEnabled)

	p, err := c.cfg.Node.Start(ctx, node.LaunchConfig{
		Version:          v,
		InstallDir:       dist.Dir,
		WorkDir:          workDir,
		JavaHome:         c.cfg.JavaHome,
		Environment:      c.cfg.Environment,
		JVMOptions:       c.cfg.JVMOptions,
		SystemProperties: res.SystemProperties,
		RootAllowed:      c.cfg.RootAllowed,
	})
	if err != nil {
		return err
	}

	c.dataMu.Lock()
	r.process = p
	r.pumpDone = readiness.Pump(p.Output(), native, rpc, r.tail, readiness.ConsumerFunc(func(line string) {
		c.output.Debug().Msg(line)
	}))
	c.dataMu.Unlock()

	settings, err := c.awaitReady(ctx, r, native, rpc)
	if err != nil {
		return err
	}
	settings.NativeTransportEnabled = nativeEnabled
	settings.RPCTransportEnabled = rpcEnabled

	c.dataMu.Lock()
	c.settings = &settings
	c.dataMu.Unlock()

	c.logger.Info().
		Str("address", settings.Address).
		Int("port", settings.Port).
		Int("pid", settings.Pid).
		Msg("Cassandra started")
	return nil
}

func (c *Cassandra) stop(ctx context.Context) error {
	return c.stopRun(ctx, c.getRun())
}

// stopRun stops the process of r and releases what the start created. The
// run is kept when the process could not be stopped, so a retry finds it.
func (c *Cassandra) stopRun(ctx context.Context, r *run) error {
	if r == nil {
		return nil
	}

	c.dataMu.RLock()
	process, pumpDone := r.process, r.pumpDone
	c.dataMu.RUnlock()

	if process != nil {
		if err := c.cfg.Node.Stop(ctx, process); err != nil {
			return err
		}
		switch {
		case !c.cfg.Daemon:
			if pumpDone != nil {
				select {
				case <-pumpDone:
				case <-time.After(drainTimeout):
					c.logger.Warn().Msg("Output still open after the process exited")
				}
			}
			process.CloseOutput()
		case pumpDone != nil:
			// The reader ends on EOF; only its pipe is left to release
			go func() {
				<-pumpDone
				process.CloseOutput()
			}()
		default:
			process.CloseOutput()
		}
	}

	var result error
	if r.config != nil {
		if err := r.config.Remove(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	c.dataMu.Lock()
	if c.current == r {
		c.current = nil
	}
	c.settings = nil
	c.dataMu.Unlock()

	return result
}

// bestEffortStop cleans up after a failed or interrupted start. Errors are
// only logged.
func (c *Cassandra) bestEffortStop() {
	r := c.getRun()
	if r == nil {
		return
	}
	if err := c.stopRun(context.Background(), r); err != nil {
		c.logger.Error().Err(err).Msg("Failed to stop Cassandra after unsuccessful start")
	}
}

func (c *Cassandra) afterStarted() {
	settings, _ := c.currentSettings()

	if c.cfg.Registry != nil && settings != nil {
		hostname, _ := os.Hostname()
		err := c.cfg.Registry.PutInstance(&types.Instance{
			Name:      c.cfg.Name,
			Pid:       settings.Pid,
			Hostname:  hostname,
			Owner:     os.Getpid(),
			Settings:  *settings,
			StartedAt: time.Now().UTC(),
		})
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to register instance")
		}
	}

	if c.cfg.RegisterShutdownHook {
		hooks := c.cfg.Hooks
		if hooks == nil {
			hooks = DefaultHooks()
		}
		unregister := hooks.Register(c.cfg.Name, func() {
			c.logger.Info().Msg("Stopping Cassandra on program exit")
			if err := c.Stop(context.Background()); err != nil {
				c.logger.Error().Err(err).Msg("Failed to stop Cassandra on program exit")
			}
		})
		c.dataMu.Lock()
		c.unregister = unregister
		c.dataMu.Unlock()
	}
}

func (c *Cassandra) afterStopped() {
	if c.cfg.Registry != nil {
		if err := c.cfg.Registry.DeleteInstance(c.cfg.Name); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to unregister instance")
		}
	}

	c.dataMu.Lock()
	unregister := c.unregister
	c.unregister = nil
	c.dataMu.Unlock()
	if unregister != nil {
		unregister()
	}
}

func (c *Cassandra) transition(event string) error {
	err := c.machine.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return fmt.Errorf("%s: invalid transition %s from %s: %w", c.cfg.Name, event, c.State(), err)
	}
	return nil
}

func (c *Cassandra) onEnter(from, to State) {
	c.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("State changed")
	c.cfg.Events.Publish(&events.Event{
		Type:     eventTypes[to],
		Instance: c.cfg.Name,
		Message:  fmt.Sprintf("%s: %s -> %s", c.cfg.Name, from, to),
		Metadata: map[string]string{
			"from":    string(from),
			"to":      string(to),
			"version": c.Version().String(),
		},
	})
}

func (c *Cassandra) getRun() *run {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()
	return c.current
}

func (c *Cassandra) setRun(r *run) {
	c.dataMu.Lock()
	c.current = r
	c.dataMu.Unlock()
}

func (c *Cassandra) currentSettings() (*types.Settings, bool) {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()
	return c.settings, c.settings != nil
}

func (c *Cassandra) describe() string {
	return fmt.Sprintf("%s (%s)", c.cfg.Name, c.Version())
}
