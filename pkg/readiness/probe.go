package readiness

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultProbeTimeout bounds a single connection attempt.
const DefaultProbeTimeout = time.Second

// Probe checks that host:port accepts TCP connections. Wildcard addresses
// are probed through loopback.
func Probe(ctx context.Context, host string, port int) error {
	address := net.JoinHostPort(dialHost(host), strconv.Itoa(port))

	dialer := &net.Dialer{
		Timeout: DefaultProbeTimeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("connection to %s failed: %w", address, err)
	}
	return conn.Close()
}

// ProbeAll probes every non-zero port on host concurrently.
func ProbeAll(ctx context.Context, host string, ports ...int) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, port := range ports {
		if port == 0 {
			continue
		}
		g.Go(func() error {
			return Probe(ctx, host, port)
		})
	}
	return g.Wait()
}

func dialHost(host string) string {
	ip := net.ParseIP(host)
	switch {
	case host == "":
		return "127.0.0.1"
	case ip == nil:
		return host
	case ip.IsUnspecified() && ip.To4() != nil:
		return "127.0.0.1"
	case ip.IsUnspecified():
		return "::1"
	default:
		return host
	}
}
