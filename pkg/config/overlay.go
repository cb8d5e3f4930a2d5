package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/embedded-cassandra/pkg/log"
	"github.com/cuemby/embedded-cassandra/pkg/ports"
	"github.com/cuemby/embedded-cassandra/pkg/version"
	"github.com/rs/zerolog"
)

// ConfigProperty is the system property that points Cassandra at its config file.
const ConfigProperty = "cassandra.config"

// Input is everything needed to produce the effective configuration of one start.
type Input struct {
	Version version.Version

	// InstallDir holds the distribution; its conf/cassandra.yaml is the base.
	InstallDir string

	// WorkDir is the per-instance directory for data and, if conf is not
	// writable, the generated config file.
	WorkDir string

	// Properties are top-level cassandra.yaml overrides.
	Properties map[string]any

	// SystemProperties are -D properties passed to the JVM.
	SystemProperties map[string]string
}

// Result is the effective configuration of one start.
type Result struct {
	Document         *Document
	File             string
	SystemProperties map[string]string

	ports     map[string]int
	allocated map[string]bool
}

// Port returns the effective value of k, or 0 if it is unset.
func (r *Result) Port(k PortKey) int {
	return r.ports[k.Name]
}

// Allocated reports whether k was set to 0 and replaced with a fresh port.
func (r *Result) Allocated(k PortKey) bool {
	return r.allocated[k.Name]
}

// Remove deletes the generated config file.
func (r *Result) Remove() error {
	if r.File == "" {
		return nil
	}
	if err := os.Remove(r.File); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", r.File, err)
	}
	return nil
}

// NativeTransportEnabled reports whether the CQL transport will start.
func (r *Result) NativeTransportEnabled(v version.Version) bool {
	if !v.AtLeast(1, 2, 0) {
		return false
	}
	return r.flag("start_native_transport", "cassandra.start_native_transport", v.AtLeast(2, 0, 0))
}

// RPCTransportEnabled reports whether the Thrift transport will start.
func (r *Result) RPCTransportEnabled(v version.Version) bool {
	if v.AtLeast(4, 0, 0) {
		return false
	}
	return r.flag("start_rpc", "cassandra.start_rpc", !v.AtLeast(3, 0, 0))
}

func (r *Result) flag(key, property string, def bool) bool {
	if s, ok := r.SystemProperties[property]; ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
	}
	if v, ok := r.Document.Get(key); ok {
		switch b := v.(type) {
		case bool:
			return b
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return parsed
			}
		}
	}
	return def
}

// Overlay turns the shipped cassandra.yaml plus caller settings into the
// effective configuration file of one start.
type Overlay struct {
	ports  *ports.Allocator
	logger zerolog.Logger
}

// Option configures an Overlay.
type Option func(*Overlay)

// WithAllocator sets the allocator used for ports set to 0.
func WithAllocator(a *ports.Allocator) Option {
	return func(o *Overlay) {
		o.ports = a
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Overlay) {
		o.logger = logger
	}
}

// New creates an Overlay.
func New(opts ...Option) *Overlay {
	o := &Overlay{
		ports:  ports.Default(),
		logger: log.WithComponent("config"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Apply builds the effective configuration and writes it to a new file.
func (o *Overlay) Apply(ctx context.Context, in Input) (*Result, error) {
	base := filepath.Join(in.InstallDir, "conf", "cassandra.yaml")
	doc, err := Load(base)
	if err != nil {
		return nil, err
	}

	if err := doc.Merge(in.Properties); err != nil {
		return nil, err
	}

	if err := applyDirectories(doc, in); err != nil {
		return nil, err
	}

	props := make(map[string]string, len(in.SystemProperties)+1)
	for k, v := range in.SystemProperties {
		props[k] = v
	}

	res := &Result{
		Document:         doc,
		SystemProperties: props,
		ports:            make(map[string]int),
		allocated:        make(map[string]bool),
	}

	oldStorage, _ := doc.Scalar(StoragePort.ConfigKey)
	oldSSLStorage, _ := doc.Scalar(SSLStoragePort.ConfigKey)

	for _, key := range PortKeys {
		if err := o.resolvePort(ctx, res, key); err != nil {
			return nil, err
		}
	}

	if in.Version.AtLeast(4, 0, 0) {
		if res.allocated[StoragePort.Name] {
			replaceSeedPort(doc, oldStorage, res.Port(StoragePort))
		}
		if res.allocated[SSLStoragePort.Name] {
			replaceSeedPort(doc, oldSSLStorage, res.Port(SSLStoragePort))
		}
	}

	file, err := writeTemp(doc, filepath.Join(in.InstallDir, "conf"), in.WorkDir)
	if err != nil {
		return nil, err
	}
	res.File = file
	props[ConfigProperty] = FileURL(file)

	o.logger.Debug().
		Str("file", file).
		Int("native_port", res.Port(NativePort)).
		Int("storage_port", res.Port(StoragePort)).
		Msg("Wrote effective configuration")

	return res, nil
}

// resolvePort finds the effective value of key and replaces a literal 0 with
// a freshly allocated port, wherever that value came from.
func (o *Overlay) resolvePort(ctx context.Context, res *Result, key PortKey) error {
	value, fromProperty, ok := effective(res, key)
	if !ok {
		return nil
	}

	if value != "0" {
		if n, err := strconv.Atoi(value); err == nil {
			res.ports[key.Name] = n
		}
		return nil
	}

	port, err := o.ports.Allocate(ctx)
	if err != nil {
		return fmt.Errorf("failed to allocate %s port: %w", key.Name, err)
	}
	res.ports[key.Name] = port
	res.allocated[key.Name] = true

	if fromProperty {
		for _, p := range key.Properties {
			if _, ok := res.SystemProperties[p]; ok {
				res.SystemProperties[p] = strconv.Itoa(port)
			}
		}
		return nil
	}
	return res.Document.Set(key.ConfigKey, port)
}

func effective(res *Result, key PortKey) (value string, fromProperty, ok bool) {
	for _, p := range key.Properties {
		if v, ok := res.SystemProperties[p]; ok {
			return strings.TrimSpace(v), true, true
		}
	}
	if key.ConfigKey == "" {
		return "", false, false
	}
	v, ok := res.Document.Scalar(key.ConfigKey)
	return strings.TrimSpace(v), false, ok
}

func replaceSeedPort(doc *Document, old string, port int) {
	if old == "" || port == 0 || old == strconv.Itoa(port) {
		return
	}
	doc.ReplaceStrings("seed_provider", ":"+old, ":"+strconv.Itoa(port))
}

// applyDirectories points every data directory at the working directory
// unless the caller chose one.
func applyDirectories(doc *Document, in Input) error {
	if in.WorkDir == "" {
		return nil
	}

	dirs := map[string]any{
		"data_file_directories":  []string{filepath.Join(in.WorkDir, "data")},
		"commitlog_directory":    filepath.Join(in.WorkDir, "commitlog"),
		"saved_caches_directory": filepath.Join(in.WorkDir, "saved_caches"),
	}
	if in.Version.AtLeast(3, 0, 0) {
		dirs["hints_directory"] = filepath.Join(in.WorkDir, "hints")
	}
	if in.Version.AtLeast(3, 8, 0) {
		dirs["cdc_raw_directory"] = filepath.Join(in.WorkDir, "cdc_raw")
	}

	keys := make([]string, 0, len(dirs))
	for k := range dirs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, ok := in.Properties[k]; ok {
			continue
		}
		if err := doc.Set(k, dirs[k]); err != nil {
			return err
		}
	}
	return nil
}

func writeTemp(doc *Document, dirs ...string) (string, error) {
	data, err := doc.Marshal()
	if err != nil {
		return "", err
	}

	var lastErr error
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		f, err := os.CreateTemp(dir, "cassandra-*.yaml")
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", fmt.Errorf("failed to write %s: %w", f.Name(), err)
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return "", fmt.Errorf("failed to write %s: %w", f.Name(), err)
		}
		return f.Name(), nil
	}
	return "", fmt.Errorf("failed to create config file: %w", lastErr)
}

// FileURL turns a path into the file:/// URL form Cassandra expects.
func FileURL(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p
}
