// Package ports hands out ephemeral TCP ports for Cassandra instances.
package ports

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/cuemby/embedded-cassandra/pkg/metrics"
)

const (
	// DefaultHistorySize is how many recently issued ports are remembered.
	DefaultHistorySize = 100

	// maxAttempts bounds how many OS-assigned ports may be rejected in one call.
	maxAttempts = 64
)

// ErrExhausted is returned when the OS keeps handing out recently issued ports.
var ErrExhausted = errors.New("no fresh ephemeral port available")

// Allocator hands out OS-assigned ephemeral ports and refuses to return a port
// that it issued recently. A port whose probe socket was closed a moment ago may
// already be claimed by a concurrently starting instance that has not bound it
// yet; the history ring stops us from giving it out twice.
//
// Allocator is safe for concurrent use. It cannot guarantee exclusivity against
// other OS processes beyond what the kernel's ephemeral allocator provides.
type Allocator struct {
	host string

	mu      sync.Mutex
	history []int
	next    int
	filled  bool
	issued  map[int]int // port -> occurrences in history
	lc      net.ListenConfig
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithHost sets the interface the probe sockets bind to (default 127.0.0.1).
func WithHost(host string) Option {
	return func(a *Allocator) {
		a.host = host
	}
}

// WithHistorySize sets the size of the recent-history ring.
func WithHistorySize(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.history = make([]int, n)
		}
	}
}

// NewAllocator creates a new port allocator.
func NewAllocator(opts ...Option) *Allocator {
	a := &Allocator{
		host:    "127.0.0.1",
		history: make([]int, DefaultHistorySize),
		issued:  make(map[int]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var (
	defaultAllocator     *Allocator
	defaultAllocatorOnce sync.Once
)

// Default returns the process-wide allocator shared by all instances.
func Default() *Allocator {
	defaultAllocatorOnce.Do(func() {
		defaultAllocator = NewAllocator()
	})
	return defaultAllocator
}

// Allocate returns a free ephemeral port that is not in the recent history.
func (a *Allocator) Allocate(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Rejected listeners stay open until we return so the kernel cannot hand
	// the same port straight back to us.
	var held []net.Listener
	defer func() {
		for _, l := range held {
			_ = l.Close()
		}
	}()

	addr := net.JoinHostPort(a.host, "0")

	for range maxAttempts {
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("port allocation cancelled: %w", ctx.Err())
		default:
		}

		listener, err := a.lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return 0, fmt.Errorf("failed to bind ephemeral port on %s: %w", a.host, err)
		}
		held = append(held, listener)

		tcpAddr, ok := listener.Addr().(*net.TCPAddr)
		if !ok {
			return 0, fmt.Errorf("unexpected listener address type %T", listener.Addr())
		}

		port := tcpAddr.Port
		if a.issued[port] > 0 {
			continue
		}

		a.record(port)
		metrics.PortsAllocated.Inc()
		return port, nil
	}

	return 0, fmt.Errorf("%w after %d attempts on %s", ErrExhausted, maxAttempts, a.host)
}

// Recent reports whether port is in the recent-history ring.
func (a *Allocator) Recent(port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.issued[port] > 0
}

// record pushes port into the ring, evicting the oldest entry. Caller holds mu.
func (a *Allocator) record(port int) {
	if a.filled {
		old := a.history[a.next]
		if a.issued[old]--; a.issued[old] <= 0 {
			delete(a.issued, old)
		}
	}

	a.history[a.next] = port
	a.issued[port]++

	a.next++
	if a.next == len(a.history) {
		a.next = 0
		a.filled = true
	}
}
