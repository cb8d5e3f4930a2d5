// Package cache keeps extracted Cassandra distributions under a shared root so
// that concurrent starts, including starts from other processes, unpack each
// version only once.
//
// Layout of one entry:
//
//	<root>/<version>/
//	    .lock          held while an extraction is in progress
//	    .extracted     written last, marks the entry complete
//	    apache-cassandra-<version>/
//	        bin/ lib/ conf/cassandra.yaml ...
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/archive"
	"github.com/cuemby/embedded-cassandra/pkg/log"
	"github.com/cuemby/embedded-cassandra/pkg/metrics"
	"github.com/cuemby/embedded-cassandra/pkg/version"
	"github.com/rs/zerolog"
)

const (
	lockFile   = ".lock"
	markerFile = ".extracted"

	// DefaultLockInterval is the pause between lock attempts.
	DefaultLockInterval = 100 * time.Millisecond

	// DefaultLockTimeout bounds how long Ensure waits for another extraction.
	DefaultLockTimeout = 5 * time.Minute
)

var (
	// ErrAmbiguousInstallation is returned when an entry contains more than
	// one directory that looks like a Cassandra installation.
	ErrAmbiguousInstallation = errors.New("more than one cassandra installation found")

	// ErrNoInstallation is returned when an entry contains no installation.
	ErrNoInstallation = errors.New("no cassandra installation found")
)

// Source materializes the distribution archive and returns its path. It is
// called only when the entry has to be extracted.
type Source func(ctx context.Context) (string, error)

// Extractor unpacks an archive into dest.
type Extractor func(ctx context.Context, src, dest string, skip archive.SkipFunc) error

// Cache is an on-disk cache of extracted distributions.
type Cache struct {
	root         string
	extract      Extractor
	lockInterval time.Duration
	lockTimeout  time.Duration
	logger       zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithExtractor replaces archive.Extract.
func WithExtractor(e Extractor) Option {
	return func(c *Cache) {
		c.extract = e
	}
}

// WithLockTimeout sets the lock polling interval and the overall wait.
func WithLockTimeout(interval, timeout time.Duration) Option {
	return func(c *Cache) {
		if interval > 0 {
			c.lockInterval = interval
		}
		if timeout > 0 {
			c.lockTimeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a cache rooted at root.
func New(root string, opts ...Option) *Cache {
	c := &Cache{
		root:         root,
		extract:      archive.Extract,
		lockInterval: DefaultLockInterval,
		lockTimeout:  DefaultLockTimeout,
		logger:       log.WithComponent("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultRoot returns the per-user cache root.
func DefaultRoot() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "embedded-cassandra")
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// Ensure returns the installation directory for v, extracting the archive
// produced by source first if the entry is missing or incomplete.
func (c *Cache) Ensure(ctx context.Context, v version.Version, source Source) (string, error) {
	entry := filepath.Join(c.root, v.String())
	marker := filepath.Join(entry, markerFile)

	if exists(marker) {
		return FindInstallation(entry)
	}

	if err := os.MkdirAll(entry, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache entry %s: %w", entry, err)
	}

	lockPath := filepath.Join(entry, lockFile)
	c.logger.Debug().Str("lock", lockPath).Msg("Acquiring cache lock")

	lock, err := AcquireLock(ctx, lockPath, c.lockInterval, c.lockTimeout)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to release cache lock")
		}
	}()

	// Another holder may have finished while we waited
	if exists(marker) {
		return FindInstallation(entry)
	}

	if err := clearEntry(entry); err != nil {
		return "", err
	}

	src, err := source(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to obtain archive for %s: %w", v, err)
	}

	c.logger.Info().
		Str("version", v.String()).
		Str("archive", src).
		Str("dest", entry).
		Msg("Extracting Cassandra distribution")

	if err := c.extract(ctx, src, entry, archive.SkipDirs("doc", "javadoc")); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", src, err)
	}

	dir, err := FindInstallation(entry)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(marker, []byte(time.Now().UTC().Format(time.RFC3339)), 0644); err != nil {
		return "", fmt.Errorf("failed to write marker %s: %w", marker, err)
	}
	metrics.ExtractionsTotal.Inc()

	return dir, nil
}

// FindInstallation returns the single direct child of dir that looks like a
// Cassandra installation.
func FindInstallation(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var found []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		candidate := filepath.Join(dir, e.Name())
		if IsInstallation(candidate) {
			found = append(found, candidate)
		}
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w in %s", ErrNoInstallation, dir)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w in %s: %s", ErrAmbiguousInstallation, dir, strings.Join(found, ", "))
	}
}

// IsInstallation reports whether dir has bin/, lib/ and conf/cassandra.yaml.
func IsInstallation(dir string) bool {
	return isDir(filepath.Join(dir, "bin")) &&
		isDir(filepath.Join(dir, "lib")) &&
		exists(filepath.Join(dir, "conf", "cassandra.yaml"))
}

// clearEntry removes whatever a crashed extraction left behind.
func clearEntry(entry string) error {
	entries, err := os.ReadDir(entry)
	if err != nil {
		return fmt.Errorf("failed to read cache entry %s: %w", entry, err)
	}
	for _, e := range entries {
		if e.Name() == lockFile {
			continue
		}
		if err := os.RemoveAll(filepath.Join(entry, e.Name())); err != nil {
			return fmt.Errorf("failed to clear %s: %w", e.Name(), err)
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
