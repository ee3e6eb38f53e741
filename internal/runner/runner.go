// Package runner implements the periodic runner (C9): it schedules a set
// of named jobs, each on its own goroutine, guaranteeing no two
// invocations of the same job ever overlap. Grounded on
// original_source/service/ports/common/periodic_runner.py's PeriodicRunner
// — per spec.md §9's design note, Go's lack of a single-threaded event
// loop means each job gets its own goroutine rather than sharing one,
// but the per-job sequencing (await-then-sleep, no overlap) is preserved.
package runner

import (
	"context"
	"time"

	"github.com/MatweyL/Potok/internal/logging"
)

// Job is one periodic unit of work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error

	// Period between the end of one invocation and the start of the next.
	Period time.Duration

	// BeforeFirstRun delays the job's first invocation; zero means run
	// immediately.
	BeforeFirstRun time.Duration
}

// Runner supervises a fixed set of Jobs, each on its own goroutine.
type Runner struct {
	jobs []Job
	log  *logging.Logger
}

func New(log *logging.Logger, jobs ...Job) *Runner {
	return &Runner{jobs: jobs, log: log.WithComponent("runner")}
}

// Start launches every job's goroutine and blocks until ctx is cancelled
// and all jobs have finished their current iteration.
func (r *Runner) Start(ctx context.Context) {
	done := make(chan struct{}, len(r.jobs))
	for _, job := range r.jobs {
		job := job
		go func() {
			r.runPeriodically(ctx, job)
			done <- struct{}{}
		}()
	}
	for range r.jobs {
		<-done
	}
}

// runPeriodically is the per-job loop: sleep (first-run delay, if any),
// then run-then-sleep forever. A panic or error from job.Run is caught,
// logged, and never aborts the loop — the Python source's
// `except BaseException` catch-log-continue behavior.
func (r *Runner) runPeriodically(ctx context.Context, job Job) {
	if job.BeforeFirstRun > 0 {
		if !sleep(ctx, job.BeforeFirstRun) {
			return
		}
	}

	for {
		r.runOnce(ctx, job)
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !sleep(ctx, job.Period) {
			return
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("job panicked", logging.Fields{"job": job.Name, "panic": rec})
		}
	}()

	if err := job.Run(ctx); err != nil {
		r.log.Error("job returned error", logging.Fields{"job": job.Name, "error": err.Error()})
	}
}

// sleep waits for d or ctx cancellation, returning false if ctx was
// cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
