package cassandra

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ExitHooks runs registered functions when the program is about to exit.
type ExitHooks interface {
	// Register adds fn under name and returns a function that removes it.
	Register(name string, fn func()) (unregister func())
}

// SignalHooks runs all hooks concurrently when one of its signals arrives
// and then lets the signal take its default effect.
type SignalHooks struct {
	signals []os.Signal

	mu      sync.Mutex
	hooks   map[uint64]func()
	next    uint64
	sigCh   chan os.Signal
	stopCh  chan struct{}
	running bool

	// reraise delivers sig again once the hooks ran.
	reraise func(sig os.Signal)
}

// NewSignalHooks creates hooks for signals, SIGINT and SIGTERM by default.
func NewSignalHooks(signals ...os.Signal) *SignalHooks {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	return &SignalHooks{
		signals: signals,
		hooks:   make(map[uint64]func()),
		reraise: reraise,
	}
}

var (
	defaultHooks     *SignalHooks
	defaultHooksOnce sync.Once
)

// DefaultHooks returns the process-wide SignalHooks.
func DefaultHooks() *SignalHooks {
	defaultHooksOnce.Do(func() {
		defaultHooks = NewSignalHooks()
	})
	return defaultHooks
}

// Register implements ExitHooks. Signal handling starts with the first hook
// and stops when the last one is removed.
func (h *SignalHooks) Register(name string, fn func()) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	h.hooks[id] = fn

	if !h.running {
		h.sigCh = make(chan os.Signal, 1)
		h.stopCh = make(chan struct{})
		signal.Notify(h.sigCh, h.signals...)
		h.running = true
		go h.loop(h.sigCh, h.stopCh)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.hooks, id)
			if len(h.hooks) == 0 {
				h.stopLocked()
			}
		})
	}
}

// Len returns the number of registered hooks.
func (h *SignalHooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hooks)
}

// Run runs every registered hook concurrently, waits for them and removes
// them.
func (h *SignalHooks) Run() {
	h.mu.Lock()
	fns := make([]func(), 0, len(h.hooks))
	for _, fn := range h.hooks {
		fns = append(fns, fn)
	}
	h.hooks = make(map[uint64]func())
	h.stopLocked()
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	wg.Wait()
}

func (h *SignalHooks) stopLocked() {
	if !h.running {
		return
	}
	signal.Stop(h.sigCh)
	close(h.stopCh)
	h.running = false
}

func (h *SignalHooks) loop(sigCh <-chan os.Signal, stopCh <-chan struct{}) {
	select {
	case sig := <-sigCh:
		h.Run()
		h.reraise(sig)
	case <-stopCh:
	}
}

func reraise(sig os.Signal) {
	signal.Reset(sig)
	p, err := os.FindProcess(os.Getpid())
	if err == nil {
		err = p.Signal(sig)
	}
	if err != nil {
		os.Exit(1)
	}
}
