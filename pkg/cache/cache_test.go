package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/archive"
	"github.com/cuemby/embedded-cassandra/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// fakeExtractor lays out a minimal installation instead of reading an archive.
type fakeExtractor struct {
	calls atomic.Int32
	delay time.Duration
	err   error
	dirs  []string
}

func (f *fakeExtractor) extract(ctx context.Context, src, dest string, skip archive.SkipFunc) error {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return f.err
	}
	dirs := f.dirs
	if len(dirs) == 0 {
		dirs = []string{"apache-cassandra-4.1.3"}
	}
	for _, d := range dirs {
		if err := makeInstallation(filepath.Join(dest, d)); err != nil {
			return err
		}
	}
	return nil
}

func makeInstallation(dir string) error {
	for _, sub := range []string{"bin", "lib", "conf"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(dir, "conf", "cassandra.yaml"), []byte("cluster_name: Test\n"), 0644)
}

func staticSource(path string) Source {
	return func(context.Context) (string, error) {
		return path, nil
	}
}

func TestEnsure_ExtractsOnce(t *testing.T) {
	root := t.TempDir()
	spy := &fakeExtractor{}
	c := New(root, WithExtractor(spy.extract))
	v := version.MustParse("4.1.3")

	dir, err := c.Ensure(context.Background(), v, staticSource("cassandra.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "4.1.3", "apache-cassandra-4.1.3"), dir)
	assert.FileExists(t, filepath.Join(root, "4.1.3", markerFile))

	again, err := c.Ensure(context.Background(), v, func(context.Context) (string, error) {
		t.Fatal("source must not be called once the entry is complete")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, dir, again)
	assert.Equal(t, int32(1), spy.calls.Load())
}

func TestEnsure_ConcurrentCallersExtractOnce(t *testing.T) {
	root := t.TempDir()
	spy := &fakeExtractor{delay: 300 * time.Millisecond}
	v := version.MustParse("4.1.3")

	var g errgroup.Group
	dirs := make([]string, 4)
	for i := range dirs {
		// Separate caches share only the directory, like separate processes
		c := New(root, WithExtractor(spy.extract), WithLockTimeout(10*time.Millisecond, 10*time.Second))
		g.Go(func() error {
			dir, err := c.Ensure(context.Background(), v, staticSource("cassandra.tar.gz"))
			dirs[i] = dir
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), spy.calls.Load())
	for _, d := range dirs {
		assert.Equal(t, dirs[0], d)
	}
}

func TestEnsure_ExtractionFailureLeavesNoMarker(t *testing.T) {
	root := t.TempDir()
	v := version.MustParse("4.1.3")

	failing := &fakeExtractor{err: errors.New("disk full")}
	c := New(root, WithExtractor(failing.extract))
	_, err := c.Ensure(context.Background(), v, staticSource("cassandra.tar.gz"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoFileExists(t, filepath.Join(root, "4.1.3", markerFile))

	// The lock was released, so a second attempt can proceed
	ok := &fakeExtractor{}
	c = New(root, WithExtractor(ok.extract), WithLockTimeout(10*time.Millisecond, time.Second))
	_, err = c.Ensure(context.Background(), v, staticSource("cassandra.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), ok.calls.Load())
}

func TestEnsure_ClearsPartialExtraction(t *testing.T) {
	root := t.TempDir()
	v := version.MustParse("3.11.16")
	entry := filepath.Join(root, "3.11.16")

	// Leftovers of a crashed run: half an installation, no marker
	require.NoError(t, os.MkdirAll(filepath.Join(entry, "apache-cassandra-3.11.16", "bin"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(entry, "stale"), 0755))

	spy := &fakeExtractor{dirs: []string{"apache-cassandra-3.11.16"}}
	c := New(root, WithExtractor(spy.extract))
	dir, err := c.Ensure(context.Background(), v, staticSource("cassandra.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(entry, "apache-cassandra-3.11.16"), dir)
	assert.NoDirExists(t, filepath.Join(entry, "stale"))
}

func TestEnsure_SourceError(t *testing.T) {
	spy := &fakeExtractor{}
	c := New(t.TempDir(), WithExtractor(spy.extract))

	_, err := c.Ensure(context.Background(), version.MustParse("4.0.0"), func(context.Context) (string, error) {
		return "", errors.New("archive not found")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive not found")
	assert.Equal(t, int32(0), spy.calls.Load())
}

func TestEnsure_LockTimeout(t *testing.T) {
	root := t.TempDir()
	entry := filepath.Join(root, "4.1.3")
	require.NoError(t, os.MkdirAll(entry, 0755))

	held, err := AcquireLock(context.Background(), filepath.Join(entry, lockFile), 10*time.Millisecond, time.Second)
	require.NoError(t, err)
	defer held.Release()

	spy := &fakeExtractor{}
	c := New(root, WithExtractor(spy.extract), WithLockTimeout(20*time.Millisecond, 200*time.Millisecond))
	_, err = c.Ensure(context.Background(), version.MustParse("4.1.3"), staticSource("cassandra.tar.gz"))
	require.ErrorIs(t, err, ErrLockTimeout)
	assert.Contains(t, err.Error(), filepath.Join(entry, lockFile))
	assert.Equal(t, int32(0), spy.calls.Load())
}

func TestEnsure_AmbiguousInstallation(t *testing.T) {
	spy := &fakeExtractor{dirs: []string{"apache-cassandra-4.1.3", "apache-cassandra-4.1.3-copy"}}
	c := New(t.TempDir(), WithExtractor(spy.extract))

	_, err := c.Ensure(context.Background(), version.MustParse("4.1.3"), staticSource("cassandra.tar.gz"))
	require.ErrorIs(t, err, ErrAmbiguousInstallation)
}

func TestFindInstallation(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, dir string)
		want    string
		wantErr error
	}{
		{
			name:    "empty",
			setup:   func(t *testing.T, dir string) {},
			wantErr: ErrNoInstallation,
		},
		{
			name: "missing cassandra.yaml",
			setup: func(t *testing.T, dir string) {
				require.NoError(t, os.MkdirAll(filepath.Join(dir, "cassandra", "bin"), 0755))
				require.NoError(t, os.MkdirAll(filepath.Join(dir, "cassandra", "lib"), 0755))
				require.NoError(t, os.MkdirAll(filepath.Join(dir, "cassandra", "conf"), 0755))
			},
			wantErr: ErrNoInstallation,
		},
		{
			name: "single installation among other files",
			setup: func(t *testing.T, dir string) {
				require.NoError(t, makeInstallation(filepath.Join(dir, "cassandra")))
				require.NoError(t, os.MkdirAll(filepath.Join(dir, "other"), 0755))
				require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), nil, 0644))
			},
			want: "cassandra",
		},
		{
			name: "hidden directories are ignored",
			setup: func(t *testing.T, dir string) {
				require.NoError(t, makeInstallation(filepath.Join(dir, "cassandra")))
				require.NoError(t, makeInstallation(filepath.Join(dir, ".backup")))
			},
			want: "cassandra",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)

			got, err := FindInstallation(dir)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.want), got)
		})
	}
}
