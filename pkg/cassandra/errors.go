package cassandra

import "errors"

var (
	// ErrNotRunning is returned by Settings unless the instance is started.
	ErrNotRunning = errors.New("cassandra is not running")

	// ErrInterrupted is returned when the caller's context ended a start or stop.
	ErrInterrupted = errors.New("interrupted")

	// ErrStartFailed wraps every start failure other than interruption.
	ErrStartFailed = errors.New("failed to start cassandra")

	// ErrStartTimeout is returned when the server was not ready within the
	// startup timeout.
	ErrStartTimeout = errors.New("cassandra did not become ready")

	// ErrStopFailed wraps every stop failure other than interruption.
	ErrStopFailed = errors.New("failed to stop cassandra")

	// ErrInvalidConfig is returned by New for unusable configurations.
	ErrInvalidConfig = errors.New("invalid configuration")
)
