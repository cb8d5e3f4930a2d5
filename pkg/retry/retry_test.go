package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntil_SucceedsAfterRetries(t *testing.T) {
	var calls atomic.Int32

	v, err := Until(context.Background(), 5*time.Millisecond, time.Second, func(context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", Pending("attempt %d", calls.Load())
		}
		return "ready", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ready", v)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUntil_Timeout(t *testing.T) {
	_, err := Until(context.Background(), 10*time.Millisecond, 50*time.Millisecond, func(context.Context) (int, error) {
		return 0, Pending("port 9042 not accepting connections")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "port 9042 not accepting connections")
}

func TestUntil_PermanentErrorStopsImmediately(t *testing.T) {
	boom := errors.New("process exited")
	var calls atomic.Int32

	_, err := Until(context.Background(), 5*time.Millisecond, time.Second, func(context.Context) (int, error) {
		calls.Add(1)
		return 0, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUntil_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := Until(ctx, 5*time.Millisecond, 5*time.Second, func(context.Context) (int, error) {
		return 0, Pending("waiting")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}
