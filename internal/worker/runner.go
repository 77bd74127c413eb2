// Package worker runs the background maintenance loops: score refresh,
// breaker transitions, performance snapshots, and the learning scans.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/S-Corkum/agent-router/internal/observability"
)

// Job is one periodic maintenance task. A run that returns an error is
// rescheduled after RetryInterval instead of Interval, so transient
// store failures recover faster than the normal cadence.
type Job struct {
	Name          string
	Interval      time.Duration
	RetryInterval time.Duration
	Run           func(ctx context.Context) error
}

// Runner schedules jobs on independent goroutines. Each job runs
// strictly serially with itself; jobs never overlap their own runs.
type Runner struct {
	logger  observability.Logger
	metrics observability.MetricsClient

	mu      sync.Mutex
	jobs    []Job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewRunner creates an empty runner
func NewRunner(logger observability.Logger, metrics observability.MetricsClient) *Runner {
	if logger == nil {
		logger = observability.NewLogger("worker")
	}
	if metrics == nil {
		metrics = observability.NoopMetricsClient{}
	}
	return &Runner{logger: logger, metrics: metrics}
}

// Add registers a job. Must be called before Start.
func (r *Runner) Add(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.RetryInterval <= 0 {
		job.RetryInterval = job.Interval
	}
	r.jobs = append(r.jobs, job)
}

// Start launches one goroutine per job. The first run of each job
// happens after its interval, not immediately, so startup is not
// dominated by maintenance work.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	for _, job := range r.jobs {
		r.wg.Add(1)
		go r.runLoop(ctx, job)
	}
	r.logger.Info("Background loops started", map[string]interface{}{
		"jobs": len(r.jobs),
	})
}

// Stop cancels all loops and waits for in-flight runs to finish
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

func (r *Runner) runLoop(ctx context.Context, job Job) {
	defer r.wg.Done()

	timer := time.NewTimer(job.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := job.Interval
		started := time.Now()
		if err := job.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			next = job.RetryInterval
			r.logger.Warn("Background job failed", map[string]interface{}{
				"job":      job.Name,
				"error":    err.Error(),
				"retry_in": next.String(),
			})
			r.metrics.IncrementCounterWithLabels("worker.job_failures", 1, map[string]string{
				"job": job.Name,
			})
		} else {
			r.metrics.RecordOperation("worker", job.Name, true, time.Since(started).Seconds(), nil)
		}
		timer.Reset(next)
	}
}
