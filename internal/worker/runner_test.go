package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/S-Corkum/agent-router/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRunner() *Runner {
	return NewRunner(observability.NoopLogger{}, observability.NoopMetricsClient{})
}

func TestJobRunsOnInterval(t *testing.T) {
	runner := newTestRunner()
	var runs atomic.Int32
	runner.Add(Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	runner.Start(context.Background())
	defer runner.Stop()

	assert.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestJobFirstRunIsDeferred(t *testing.T) {
	runner := newTestRunner()
	var runs atomic.Int32
	runner.Add(Job{
		Name:     "slow",
		Interval: 200 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	runner.Start(context.Background())
	defer runner.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
}

func TestJobErrorReschedulesAtRetryInterval(t *testing.T) {
	runner := newTestRunner()
	var runs atomic.Int32
	runner.Add(Job{
		Name:          "flaky",
		Interval:      300 * time.Millisecond,
		RetryInterval: time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return assert.AnError
		},
	})

	runner.Start(context.Background())
	defer runner.Stop()

	// At the normal cadence ten runs would take three seconds; the retry
	// cadence delivers them within milliseconds of the first failure.
	assert.Eventually(t, func() bool {
		return runs.Load() >= 10
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRetryIntervalDefaultsToInterval(t *testing.T) {
	runner := newTestRunner()
	runner.Add(Job{Name: "j", Interval: time.Minute, Run: func(ctx context.Context) error { return nil }})

	assert.Equal(t, time.Minute, runner.jobs[0].RetryInterval)
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	runner := newTestRunner()
	var finished atomic.Bool
	runner.Add(Job{
		Name:     "long",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			time.Sleep(30 * time.Millisecond)
			finished.Store(true)
			return nil
		},
	})

	runner.Start(context.Background())
	time.Sleep(15 * time.Millisecond) // let the first run begin
	runner.Stop()

	assert.True(t, finished.Load())
}

func TestStartIsIdempotent(t *testing.T) {
	runner := newTestRunner()
	var runs atomic.Int32
	runner.Add(Job{
		Name:     "once",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx := context.Background()
	runner.Start(ctx)
	runner.Start(ctx)
	defer runner.Stop()

	time.Sleep(25 * time.Millisecond)
	// A double Start must not double the cadence.
	assert.LessOrEqual(t, runs.Load(), int32(3))
}
