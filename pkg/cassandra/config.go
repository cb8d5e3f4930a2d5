package cassandra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/cache"
	"github.com/cuemby/embedded-cassandra/pkg/events"
	"github.com/cuemby/embedded-cassandra/pkg/node"
	"github.com/cuemby/embedded-cassandra/pkg/ports"
	"github.com/cuemby/embedded-cassandra/pkg/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultStartupTimeout bounds how long Start waits for readiness.
const DefaultStartupTimeout = 90 * time.Second

// Config describes one embedded instance. Only Artifact is required.
type Config struct {
	// Name identifies the instance in logs, events and the registry.
	// Defaults to "cassandra-" and a random suffix.
	Name string

	// WorkingDirectory holds data, commit log, hints and the pid file.
	// Defaults to <tmp>/embedded-cassandra/<name>.
	WorkingDirectory string

	// Artifact provides the distribution to run.
	Artifact Artifact

	// CacheDirectory is where archives are extracted. Defaults to the per-user
	// cache directory.
	CacheDirectory string

	// Address sets listen_address and rpc_address.
	Address string

	// Ports. nil keeps the shipped value, 0 picks a free port.
	Port           *int
	SSLPort        *int
	RPCPort        *int
	StoragePort    *int
	SSLStoragePort *int
	JMXLocalPort   *int

	JavaHome string

	// StartupTimeout defaults to DefaultStartupTimeout.
	StartupTimeout time.Duration

	// ConfigProperties override top-level cassandra.yaml keys.
	ConfigProperties map[string]any

	// SystemProperties are passed to the JVM as -Dkey=value.
	SystemProperties map[string]string

	// Environment is added to the server environment.
	Environment map[string]string

	// JVMOptions are extra JVM flags such as -Xmx512m.
	JVMOptions []string

	// RootAllowed lets the server run as root.
	RootAllowed bool

	// RegisterShutdownHook stops the instance when the program receives
	// SIGINT or SIGTERM. See Hooks.
	RegisterShutdownHook bool

	// Daemon leaves the output reader running after Stop instead of waiting
	// for it to drain. The pipe is closed once the reader reaches EOF.
	Daemon bool

	Logger    *zerolog.Logger
	Registry  storage.Store
	Events    *events.Broker
	Hooks     ExitHooks
	Node      node.Node
	Allocator *ports.Allocator
}

// Int returns a pointer to v, for the port fields.
func Int(v int) *int {
	return &v
}

// withDefaults fills unset fields and validates the result.
func (c Config) withDefaults() (Config, error) {
	if c.Artifact == nil {
		return c, fmt.Errorf("%w: artifact is required", ErrInvalidConfig)
	}
	if err := validateArtifact(c.Artifact); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Name == "" {
		c.Name = "cassandra-" + uuid.NewString()[:8]
	}
	if c.WorkingDirectory == "" {
		c.WorkingDirectory = filepath.Join(os.TempDir(), "embedded-cassandra", c.Name)
	}
	if info, err := os.Stat(c.WorkingDirectory); err == nil && !info.IsDir() {
		return c, fmt.Errorf("%w: working directory %s is not a directory", ErrInvalidConfig, c.WorkingDirectory)
	}
	if c.CacheDirectory == "" {
		c.CacheDirectory = cache.DefaultRoot()
	}

	if c.StartupTimeout < 0 {
		return c, fmt.Errorf("%w: negative startup timeout %v", ErrInvalidConfig, c.StartupTimeout)
	}
	if c.StartupTimeout == 0 {
		c.StartupTimeout = DefaultStartupTimeout
	}

	for name, p := range map[string]*int{
		"port":             c.Port,
		"ssl port":         c.SSLPort,
		"rpc port":         c.RPCPort,
		"storage port":     c.StoragePort,
		"ssl storage port": c.SSLStoragePort,
		"jmx local port":   c.JMXLocalPort,
	} {
		if p != nil && (*p < 0 || *p > 65535) {
			return c, fmt.Errorf("%w: %s %d out of range", ErrInvalidConfig, name, *p)
		}
	}

	if c.Node == nil {
		c.Node = node.New()
	}
	if c.Allocator == nil {
		c.Allocator = ports.Default()
	}
	return c, nil
}

// configProperties merges the typed settings into the caller's properties.
// Explicit caller properties win.
func (c Config) configProperties() map[string]any {
	props := make(map[string]any, len(c.ConfigProperties)+3)
	if c.Address != "" {
		props["listen_address"] = c.Address
		props["rpc_address"] = c.Address
	}
	if c.SSLPort != nil {
		props["native_transport_port_ssl"] = *c.SSLPort
	}
	for k, v := range c.ConfigProperties {
		props[k] = v
	}
	return props
}

// systemProperties merges the typed ports into the caller's properties.
// Explicit caller properties win.
func (c Config) systemProperties() map[string]string {
	props := make(map[string]string, len(c.SystemProperties)+5)
	set := func(key string, p *int) {
		if p != nil {
			props[key] = strconv.Itoa(*p)
		}
	}
	set("cassandra.native_transport_port", c.Port)
	set("cassandra.rpc_port", c.RPCPort)
	set("cassandra.storage_port", c.StoragePort)
	set("cassandra.ssl_storage_port", c.SSLStoragePort)
	set("cassandra.jmx.local.port", c.JMXLocalPort)

	for k, v := range c.SystemProperties {
		props[k] = v
	}
	return props
}
