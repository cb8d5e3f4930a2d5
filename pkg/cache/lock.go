package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/retry"
)

// ErrLockTimeout is returned when the cache lock could not be acquired in time.
var ErrLockTimeout = errors.New("cache lock not acquired")

// FileLock is an exclusive, cross-process advisory lock on a file.
type FileLock struct {
	path string
	file *os.File
}

// AcquireLock takes an exclusive lock on path, polling every interval until
// timeout. A lock held through another handle, including one opened by this
// same process, counts as contention and is retried.
func AcquireLock(ctx context.Context, path string, interval, timeout time.Duration) (*FileLock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	_, err = retry.Until(ctx, interval, timeout, func(context.Context) (struct{}, error) {
		locked, err := tryLock(file)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if !locked {
			return struct{}{}, retry.Pending("%s is held by another extraction", path)
		}
		return struct{}{}, nil
	})
	if err != nil {
		file.Close()
		if errors.Is(err, retry.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s still held after %v", ErrLockTimeout, path, timeout)
		}
		return nil, err
	}

	return &FileLock{path: path, file: file}, nil
}

// Release releases the lock. The lock file itself is left in place.
func (l *FileLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := unlock(l.file); err != nil {
		l.file.Close()
		l.file = nil
		return fmt.Errorf("failed to release lock %s: %w", l.path, err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}
