package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/metrics"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// ErrNotStopped is returned when the process survived every shutdown step.
var ErrNotStopped = errors.New("process did not stop")

// Escalation step names, also used as metric labels.
const (
	StepPolite   = "polite"
	StepForceful = "forceful"
	StepDestroy  = "destroy"
)

// Escalator stops a process with increasingly forceful steps. After each
// step it waits up to Wait for Exited to close. A step that fails is logged
// and the next step runs anyway.
type Escalator struct {
	Polite   func(ctx context.Context) error
	Forceful func(ctx context.Context) error
	Destroy  func(ctx context.Context) error

	// Exited is closed when the process is gone.
	Exited <-chan struct{}

	Wait   time.Duration
	Logger zerolog.Logger
}

type step struct {
	name string
	run  func(ctx context.Context) error
}

// Run executes the steps until the process exits. Cancelling ctx stops the
// escalation but does not undo signals already sent.
func (e *Escalator) Run(ctx context.Context) error {
	wait := e.Wait
	if wait <= 0 {
		wait = DefaultStepTimeout
	}

	steps := []step{
		{name: StepPolite, run: e.Polite},
		{name: StepForceful, run: e.Forceful},
		{name: StepDestroy, run: e.Destroy},
	}

	var stepErrs *multierror.Error
	for _, s := range steps {
		if e.exited() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if s.run != nil {
			metrics.EscalationSteps.WithLabelValues(s.name).Inc()
			e.Logger.Debug().Str("step", s.name).Msg("Stopping process")

			if err := s.run(ctx); err != nil {
				e.Logger.Warn().Err(err).Str("step", s.name).Msg("Shutdown step failed")
				stepErrs = multierror.Append(stepErrs, fmt.Errorf("%s: %w", s.name, err))
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-e.Exited:
			timer.Stop()
			e.Logger.Debug().Str("step", s.name).Msg("Process exited")
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			e.Logger.Warn().
				Str("step", s.name).
				Dur("waited", wait).
				Msg("Process still running after shutdown step")
		}
	}

	if stepErrs != nil {
		return fmt.Errorf("%w after %d steps: %w", ErrNotStopped, len(steps), stepErrs)
	}
	return fmt.Errorf("%w after %d steps", ErrNotStopped, len(steps))
}

func (e *Escalator) exited() bool {
	select {
	case <-e.Exited:
		return true
	default:
		return false
	}
}
