package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecolisting_ingest/internal/domain"
)

type fakeRunner struct {
	calls   atomic.Int32
	running atomic.Int32
	overlap atomic.Bool
	err     error
	delay   time.Duration
	onRun   func(n int32)
}

func (f *fakeRunner) Run(ctx context.Context) (*domain.RunStats, error) {
	if f.running.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.running.Add(-1)

	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.onRun != nil {
		f.onRun(n)
	}
	return &domain.RunStats{}, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStart_OneShotReturnsRunError(t *testing.T) {
	runErr := errors.New("sink unavailable")
	runner := &fakeRunner{err: runErr}

	err := NewScheduler(runner, 0, testLogger()).Start(context.Background())

	assert.ErrorIs(t, err, runErr)
	assert.EqualValues(t, 1, runner.calls.Load())
}

func TestStart_OneShotSuccess(t *testing.T) {
	runner := &fakeRunner{}

	err := NewScheduler(runner, 0, testLogger()).Start(context.Background())

	assert.NoError(t, err)
	assert.EqualValues(t, 1, runner.calls.Load())
}

func TestStart_IntervalRunsSequentiallyUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{
		err:   errors.New("transient"),
		delay: 5 * time.Millisecond,
	}
	runner.onRun = func(n int32) {
		if n == 3 {
			cancel()
		}
	}

	err := NewScheduler(runner, time.Millisecond, testLogger()).Start(ctx)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, runner.calls.Load(), int32(3))
	assert.False(t, runner.overlap.Load())
}

func TestStart_OneShotInterruptedReportsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{}
	runner.onRun = func(int32) { cancel() }
	runner.err = context.Canceled

	err := NewScheduler(runner, 0, testLogger()).Start(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}
