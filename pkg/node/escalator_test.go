package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTarget records which steps ran and exits after a chosen one.
type fakeTarget struct {
	mu     sync.Mutex
	steps  []string
	exitOn string
	exited chan struct{}
	once   sync.Once
}

func newFakeTarget(exitOn string) *fakeTarget {
	return &fakeTarget{exitOn: exitOn, exited: make(chan struct{})}
}

func (f *fakeTarget) step(name string, err error) func(context.Context) error {
	return func(context.Context) error {
		f.mu.Lock()
		f.steps = append(f.steps, name)
		f.mu.Unlock()
		if name == f.exitOn {
			f.once.Do(func() { close(f.exited) })
		}
		return err
	}
}

func (f *fakeTarget) ran() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.steps...)
}

func (f *fakeTarget) escalator(wait time.Duration) *Escalator {
	return &Escalator{
		Polite:   f.step(StepPolite, nil),
		Forceful: f.step(StepForceful, nil),
		Destroy:  f.step(StepDestroy, nil),
		Exited:   f.exited,
		Wait:     wait,
		Logger:   zerolog.Nop(),
	}
}

func TestEscalator_PoliteSuffices(t *testing.T) {
	target := newFakeTarget(StepPolite)

	err := target.escalator(time.Second).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{StepPolite}, target.ran())
}

func TestEscalator_SkipsDestroyAfterForcefulExit(t *testing.T) {
	target := newFakeTarget(StepForceful)

	start := time.Now()
	err := target.escalator(50 * time.Millisecond).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{StepPolite, StepForceful}, target.ran())
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestEscalator_StepFailureDoesNotAbort(t *testing.T) {
	target := newFakeTarget(StepDestroy)
	esc := target.escalator(10 * time.Millisecond)
	esc.Polite = target.step(StepPolite, errors.New("no such script"))
	esc.Forceful = target.step(StepForceful, errors.New("access denied"))

	err := esc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{StepPolite, StepForceful, StepDestroy}, target.ran())
}

func TestEscalator_NotStopped(t *testing.T) {
	target := newFakeTarget("")
	esc := target.escalator(10 * time.Millisecond)
	esc.Forceful = target.step(StepForceful, errors.New("access denied"))

	err := esc.Run(context.Background())
	require.ErrorIs(t, err, ErrNotStopped)
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, []string{StepPolite, StepForceful, StepDestroy}, target.ran())
}

func TestEscalator_AlreadyExited(t *testing.T) {
	target := newFakeTarget("")
	close(target.exited)

	require.NoError(t, target.escalator(time.Second).Run(context.Background()))
	assert.Empty(t, target.ran())
}

func TestEscalator_ContextCancelled(t *testing.T) {
	target := newFakeTarget("")
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := target.escalator(10 * time.Second).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	// The polite step was sent and is not undone
	assert.Equal(t, []string{StepPolite}, target.ran())
}
