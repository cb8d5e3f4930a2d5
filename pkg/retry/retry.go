// Package retry polls an operation at a fixed interval until it succeeds or a
// deadline passes. It backs both the cache file lock and the readiness loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrTimeout is returned when the deadline passes before the operation is done.
var ErrTimeout = errors.New("timed out")

// NotYet is returned by an attempt that should be retried. The message is kept
// as the reason reported on timeout.
type NotYet struct {
	Reason string
}

func (e *NotYet) Error() string {
	if e.Reason == "" {
		return "not ready yet"
	}
	return e.Reason
}

// Pending builds a retryable NotYet error.
func Pending(format string, args ...any) error {
	return &NotYet{Reason: fmt.Sprintf(format, args...)}
}

// Until calls attempt every interval until it returns a value with a nil error,
// returns an error that is not a *NotYet (which stops immediately), or timeout
// elapses. A timeout yields an error matching ErrTimeout and carrying the last
// NotYet reason. Cancellation of ctx is returned as ctx.Err().
func Until[T any](ctx context.Context, interval, timeout time.Duration, attempt func(ctx context.Context) (T, error)) (T, error) {
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastPending error
	op := func() (T, error) {
		v, err := attempt(deadlineCtx)
		if err == nil {
			return v, nil
		}

		var notYet *NotYet
		if errors.As(err, &notYet) {
			lastPending = err
			return v, err
		}
		return v, backoff.Permanent(err)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(interval), deadlineCtx)

	v, err := backoff.RetryWithData(op, b)
	if err == nil {
		return v, nil
	}

	// Parent cancellation wins over our own deadline
	if ctxErr := ctx.Err(); ctxErr != nil {
		return v, ctxErr
	}

	if errors.Is(err, context.DeadlineExceeded) || isNotYet(err) {
		if lastPending != nil {
			return v, fmt.Errorf("%w after %v: %v", ErrTimeout, timeout, lastPending)
		}
		return v, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}

	return v, err
}

func isNotYet(err error) bool {
	var notYet *NotYet
	return errors.As(err, &notYet)
}
