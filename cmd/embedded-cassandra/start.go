package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/cassandra"
	"github.com/cuemby/embedded-cassandra/pkg/events"
	"github.com/cuemby/embedded-cassandra/pkg/log"
	"github.com/cuemby/embedded-cassandra/pkg/metrics"
	"github.com/cuemby/embedded-cassandra/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a Cassandra server and run it until interrupted",
	Long: `Start a Cassandra server from a distribution archive or directory and
keep it running until Ctrl+C.

Settings come from an optional instance file (-f) and from flags; flags win.
A port of 0 picks a free port.

Examples:
  # Start 4.1.3 from an archive on a free native port
  embedded-cassandra start --cassandra-version 4.1.3 \
    --archive apache-cassandra-4.1.3-bin.tar.gz --port 0

  # Start from an instance file
  embedded-cassandra start -f dev.yaml`,
	RunE: runStart,
}

func init() {
	addStartFlags(startCmd.Flags())
	rootCmd.AddCommand(startCmd)
}

func addStartFlags(f *pflag.FlagSet) {
	f.StringP("file", "f", "", "YAML instance file")
	f.String("name", "", "Instance name (default random)")
	f.String("cassandra-version", "", "Cassandra version of the distribution")
	f.String("archive", "", "Distribution archive (.tar.gz, .tgz, .tar, .zip)")
	f.String("directory", "", "Extracted distribution directory")
	f.String("work-dir", "", "Working directory for data and logs")
	f.String("address", "", "listen_address and rpc_address")
	f.Int("port", 0, "Native transport port")
	f.Int("ssl-port", 0, "Encrypted native transport port")
	f.Int("rpc-port", 0, "Thrift rpc port")
	f.Int("storage-port", 0, "Storage port")
	f.Int("ssl-storage-port", 0, "Encrypted storage port")
	f.Int("jmx-port", 0, "Local JMX port")
	f.Duration("timeout", cassandra.DefaultStartupTimeout, "Startup timeout")
	f.String("java-home", "", "JAVA_HOME for the server")
	f.StringToString("property", nil, "cassandra.yaml property key=value")
	f.StringToString("system-property", nil, "JVM system property key=value")
	f.StringToString("env", nil, "Environment variable key=value")
	f.StringSlice("jvm-opt", nil, "Extra JVM option")
	f.Bool("root", false, "Allow running as root")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address")
}

// InstanceFile is the YAML form of a start request.
type InstanceFile struct {
	Name             string            `yaml:"name"`
	Version          string            `yaml:"version"`
	Archive          string            `yaml:"archive,omitempty"`
	Directory        string            `yaml:"directory,omitempty"`
	WorkingDirectory string            `yaml:"workingDirectory,omitempty"`
	Address          string            `yaml:"address,omitempty"`
	Port             *int              `yaml:"port,omitempty"`
	SSLPort          *int              `yaml:"sslPort,omitempty"`
	RPCPort          *int              `yaml:"rpcPort,omitempty"`
	StoragePort      *int              `yaml:"storagePort,omitempty"`
	SSLStoragePort   *int              `yaml:"sslStoragePort,omitempty"`
	JMXLocalPort     *int              `yaml:"jmxLocalPort,omitempty"`
	StartupTimeout   time.Duration     `yaml:"startupTimeout,omitempty"`
	JavaHome         string            `yaml:"javaHome,omitempty"`
	ConfigProperties map[string]any    `yaml:"configProperties,omitempty"`
	SystemProperties map[string]string `yaml:"systemProperties,omitempty"`
	Environment      map[string]string `yaml:"environment,omitempty"`
	JVMOptions       []string          `yaml:"jvmOptions,omitempty"`
	RootAllowed      bool              `yaml:"rootAllowed,omitempty"`
}

// loadInstanceFile reads an instance file.
func loadInstanceFile(path string) (*InstanceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	var file InstanceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML %s: %w", path, err)
	}
	return &file, nil
}

// applyFlags overrides file values with every flag set on the command line.
func (in *InstanceFile) applyFlags(f *pflag.FlagSet) {
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	port := func(name string, dst **int) {
		if f.Changed(name) {
			v, _ := f.GetInt(name)
			*dst = cassandra.Int(v)
		}
	}
	strMap := func(name string, dst *map[string]string) {
		if !f.Changed(name) {
			return
		}
		v, _ := f.GetStringToString(name)
		if *dst == nil {
			*dst = make(map[string]string, len(v))
		}
		for k, val := range v {
			(*dst)[k] = val
		}
	}

	str("name", &in.Name)
	str("cassandra-version", &in.Version)
	str("archive", &in.Archive)
	str("directory", &in.Directory)
	str("work-dir", &in.WorkingDirectory)
	str("address", &in.Address)
	str("java-home", &in.JavaHome)
	port("port", &in.Port)
	port("ssl-port", &in.SSLPort)
	port("rpc-port", &in.RPCPort)
	port("storage-port", &in.StoragePort)
	port("ssl-storage-port", &in.SSLStoragePort)
	port("jmx-port", &in.JMXLocalPort)
	strMap("system-property", &in.SystemProperties)
	strMap("env", &in.Environment)

	if f.Changed("timeout") {
		in.StartupTimeout, _ = f.GetDuration("timeout")
	}
	if f.Changed("property") {
		v, _ := f.GetStringToString("property")
		if in.ConfigProperties == nil {
			in.ConfigProperties = make(map[string]any, len(v))
		}
		for k, val := range v {
			in.ConfigProperties[k] = val
		}
	}
	if f.Changed("jvm-opt") {
		v, _ := f.GetStringSlice("jvm-opt")
		in.JVMOptions = append(in.JVMOptions, v...)
	}
	if f.Changed("root") {
		in.RootAllowed, _ = f.GetBool("root")
	}
}

// config converts the request into a cassandra.Config.
func (in *InstanceFile) config() (cassandra.Config, error) {
	if in.Version == "" {
		return cassandra.Config{}, errors.New("cassandra version is required")
	}
	v, err := version.Parse(in.Version)
	if err != nil {
		return cassandra.Config{}, err
	}

	var artifact cassandra.Artifact
	switch {
	case in.Archive != "" && in.Directory != "":
		return cassandra.Config{}, errors.New("archive and directory are mutually exclusive")
	case in.Archive != "":
		artifact = cassandra.ArchiveArtifact{Version: v, Path: in.Archive}
	case in.Directory != "":
		artifact = cassandra.DirectoryArtifact{Version: v, Dir: in.Directory}
	default:
		return cassandra.Config{}, errors.New("either archive or directory is required")
	}

	return cassandra.Config{
		Name:             in.Name,
		WorkingDirectory: in.WorkingDirectory,
		Artifact:         artifact,
		Address:          in.Address,
		Port:             in.Port,
		SSLPort:          in.SSLPort,
		RPCPort:          in.RPCPort,
		StoragePort:      in.StoragePort,
		SSLStoragePort:   in.SSLStoragePort,
		JMXLocalPort:     in.JMXLocalPort,
		JavaHome:         in.JavaHome,
		StartupTimeout:   in.StartupTimeout,
		ConfigProperties: in.ConfigProperties,
		SystemProperties: in.SystemProperties,
		Environment:      in.Environment,
		JVMOptions:       in.JVMOptions,
		RootAllowed:      in.RootAllowed,
	}, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	in := &InstanceFile{}
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		file, err := loadInstanceFile(path)
		if err != nil {
			return err
		}
		in = file
	}
	in.applyFlags(cmd.Flags())

	cfg, err := in.config()
	if err != nil {
		return err
	}
	cfg.CacheDirectory, _ = cmd.Flags().GetString("cache-dir")
	cfg.Registry = registry(cmd)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	cfg.Events = broker

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go printEvents(sub)

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		serveMetrics(addr)
	}

	c, err := cassandra.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting Cassandra %s (%s)...\n", c.Version(), c.Name())
	if err := c.Start(ctx); err != nil {
		return err
	}

	settings, err := c.Settings()
	if err != nil {
		return err
	}
	fmt.Println("✓ Cassandra started")
	fmt.Printf("  Address: %s\n", settings.Address)
	if addr := settings.NativeAddress(); addr != "" {
		fmt.Printf("  CQL: %s\n", addr)
	}
	if addr := settings.NativeSSLAddress(); addr != "" {
		fmt.Printf("  CQL (SSL): %s\n", addr)
	}
	if addr := settings.RPCAddress(); addr != "" {
		fmt.Printf("  Thrift: %s\n", addr)
	}
	fmt.Printf("  Pid: %d\n", settings.Pid)
	fmt.Printf("  Working Directory: %s\n", settings.WorkingDirectory)
	fmt.Println()
	fmt.Println("Cassandra is running. Press Ctrl+C to stop.")

	<-ctx.Done()
	stop()
	fmt.Println("\nShutting down...")

	if err := c.Stop(context.Background()); err != nil {
		return err
	}
	fmt.Println("✓ Shutdown complete")
	return nil
}

func printEvents(sub events.Subscriber) {
	logger := log.WithComponent("cli")
	for e := range sub {
		logger.Debug().
			Str("event", string(e.Type)).
			Str("instance", e.Instance).
			Msg(e.Message)
	}
}

func serveMetrics(addr string) {
	logger := log.WithComponent("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("Serving metrics")
}
