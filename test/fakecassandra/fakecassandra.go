// Package fakecassandra lets a test binary stand in for a Cassandra server.
//
// Install writes a distribution whose bin/cassandra re-executes the current
// test binary. The test's TestMain hands control to Main when IsChild reports
// true. The fake reads its configuration the way the real server does, from
// JVM_EXTRA_OPTS and the file named by -Dcassandra.config, listens on the
// native port and prints the usual startup and shutdown lines.
package fakecassandra

import (
	"archive/tar"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/config"
	"github.com/klauspost/compress/gzip"
)

const (
	EnvChild = "ECASS_FAKE_CASSANDRA"
	EnvMode  = "ECASS_FAKE_MODE"
	EnvDelay = "ECASS_FAKE_DELAY"
)

// Modes of the fake server.
const (
	// ModeNormal listens, announces readiness and exits on SIGINT or SIGTERM.
	ModeNormal = "normal"
	// ModeIgnoreInterrupt behaves normally but ignores SIGINT.
	ModeIgnoreInterrupt = "ignore-interrupt"
	// ModeCrash fails during startup.
	ModeCrash = "crash"
	// ModeSilent never announces readiness.
	ModeSilent = "silent"
	// ModeNativeDisabled announces that the native transport will not start.
	ModeNativeDisabled = "native-disabled"
)

// DefaultYAML is the shipped conf/cassandra.yaml of a fake installation.
const DefaultYAML = `# Fake Cassandra configuration
cluster_name: 'Fake Cluster'
num_tokens: 16
native_transport_port: 9042
storage_port: 7000
ssl_storage_port: 7001
start_native_transport: true
seed_provider:
  - class_name: org.apache.cassandra.locator.SimpleSeedProvider
    parameters:
      - seeds: "127.0.0.1:7000"
`

// Options shape a fake installation.
type Options struct {
	Mode  string
	Delay time.Duration
	YAML  string
}

// IsChild reports whether this process was started as the fake server.
func IsChild() bool {
	return os.Getenv(EnvChild) == "1"
}

// Install writes a fake distribution named apache-cassandra-fake under dir
// and returns its path.
func Install(dir string, opts Options) (string, error) {
	install := filepath.Join(dir, "apache-cassandra-fake")
	if err := layout(install, opts); err != nil {
		return "", err
	}
	return install, nil
}

// Archive writes a fake distribution as a .tar.gz in dir and returns its path.
// The archive also carries a doc directory, which extraction should skip.
func Archive(dir string, opts Options) (string, error) {
	staging, err := os.MkdirTemp(dir, "staging-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	install := filepath.Join(staging, "apache-cassandra-fake")
	if err := layout(install, opts); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(install, "doc"), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(install, "doc", "README.txt"), []byte("docs"), 0644); err != nil {
		return "", err
	}

	path := filepath.Join(dir, "apache-cassandra-fake-bin.tar.gz")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(staging, func(p string, d fs.DirEntry, err error) error {
		if err != nil || p == staging {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(staging, p)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		_, err = tw.Write(data)
		return err
	})
	if err != nil {
		return "", err
	}
	if err := tw.Close(); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func layout(install string, opts Options) error {
	for _, sub := range []string{"bin", "lib", "conf"} {
		if err := os.MkdirAll(filepath.Join(install, sub), 0755); err != nil {
			return err
		}
	}

	yaml := opts.YAML
	if yaml == "" {
		yaml = DefaultYAML
	}
	if err := os.WriteFile(filepath.Join(install, "conf", "cassandra.yaml"), []byte(yaml), 0644); err != nil {
		return err
	}

	self, err := os.Executable()
	if err != nil {
		return err
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeNormal
	}

	script := fmt.Sprintf("#!/bin/sh\n%s=1 %s=%s %s=%s exec %q \"$@\"\n",
		EnvChild, EnvMode, mode, EnvDelay, opts.Delay, self)
	return os.WriteFile(filepath.Join(install, "bin", "cassandra"), []byte(script), 0755)
}

// Main runs the fake server and returns its exit code.
func Main() int {
	mode := os.Getenv(EnvMode)
	delay, _ := time.ParseDuration(os.Getenv(EnvDelay))

	sigs := make(chan os.Signal, 1)
	if mode == ModeIgnoreInterrupt {
		signal.Ignore(os.Interrupt)
		signal.Notify(sigs, syscall.SIGTERM)
	} else {
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	}

	fmt.Println("INFO  [main] CassandraDaemon.java:620 - Fake Cassandra starting")

	if pidFile := argAfter(os.Args[1:], "-p"); pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR [main] failed to write pid file: %v\n", err)
			return 1
		}
	}

	if mode == ModeCrash {
		fmt.Fprintln(os.Stderr, "ERROR [main] CassandraDaemon.java:803 - Exception encountered during startup: fake failure")
		return 3
	}

	if delay > 0 {
		select {
		case <-sigs:
			return 0
		case <-time.After(delay):
		}
	}

	host, port, err := nativeEndpoint()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR [main] %v\n", err)
		return 1
	}

	switch mode {
	case ModeSilent:
	case ModeNativeDisabled:
		fmt.Println("INFO  [main] CassandraDaemon.java:650 - Not starting native transport as requested. Use JMX (StorageService->startNativeTransport()) or nodetool (enablebinary) to start it")
	default:
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR [main] failed to bind native transport: %v\n", err)
			return 1
		}
		defer l.Close()
		go accept(l)
		fmt.Printf("INFO  [main] Server.java:159 - Starting listening for CQL clients on localhost/%s:%d (unencrypted)...\n", host, port)
	}

	<-sigs
	fmt.Println("INFO  [StorageServiceShutdownHook] StorageService.java:1500 - Announcing shutdown")
	return 0
}

func accept(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}
}

// nativeEndpoint resolves the native address the way the server would.
func nativeEndpoint() (string, int, error) {
	props := systemProperties(os.Getenv("JVM_EXTRA_OPTS"))

	location, ok := props[config.ConfigProperty]
	if !ok {
		return "", 0, fmt.Errorf("-D%s is not set", config.ConfigProperty)
	}
	doc, err := config.Load(strings.TrimPrefix(location, "file://"))
	if err != nil {
		return "", 0, err
	}

	host := "127.0.0.1"
	if h, ok := doc.Scalar("rpc_address"); ok {
		host = h
	}

	value, ok := props["cassandra.native_transport_port"]
	if !ok {
		value, _ = doc.Scalar("native_transport_port")
	}
	port, err := strconv.Atoi(value)
	if err != nil {
		return "", 0, fmt.Errorf("invalid native_transport_port %q", value)
	}
	return host, port, nil
}

func systemProperties(opts string) map[string]string {
	props := make(map[string]string)
	for _, f := range strings.Fields(opts) {
		if !strings.HasPrefix(f, "-D") {
			continue
		}
		k, v, _ := strings.Cut(strings.TrimPrefix(f, "-D"), "=")
		props[k] = v
	}
	return props
}

func argAfter(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
