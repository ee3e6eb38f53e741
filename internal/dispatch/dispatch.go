// Package dispatch implements the dispatcher (C6): each tick, pull a batch
// of waiting run ids from the batch provider, transition them to QUEUED,
// and emit one outbound command per run — rate-limited and fanned out
// across a bounded worker pool so a slow broker publish never stalls the
// whole tick. Grounded on spec.md §4.6; concurrency shape grounded on
// pkg/common/workers's Pool usage pattern.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/MatweyL/Potok/internal/batch"
	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/logging"
	"github.com/MatweyL/Potok/internal/resilience"
	"github.com/MatweyL/Potok/internal/store"
	"github.com/MatweyL/Potok/internal/workers"
)

// Producer is the subset of broker.CommandProducer the dispatcher needs;
// declared locally to avoid an import cycle with internal/broker's
// subpackages picking their own transport.
type Producer interface {
	Produce(ctx context.Context, routingKey string, cmd domain.Command) error
}

// Dispatcher pulls a batch, transitions each run to QUEUED, and emits a
// command for it. Per spec.md §4.6 step 3, the log writes and the
// emission are treated as one unit: the AppendStatus call only happens
// once Produce has returned success, so a crash between them leaves the
// run WAITING (retried next tick) rather than QUEUED-but-never-sent.
type Dispatcher struct {
	batch    batch.Provider
	runs     store.RunStore
	payloads store.PayloadStore
	producer Producer
	pool     *workers.Pool
	limiter  *rate.Limiter
	log      *logging.Logger

	now func() time.Time
}

// Config bounds emission concurrency and rate.
type Config struct {
	Workers       int
	RatePerSecond float64
	Burst         int
}

func New(provider batch.Provider, runs store.RunStore, payloads store.PayloadStore, producer Producer, cfg Config, log *logging.Logger) *Dispatcher {
	pool := workers.NewPool(workers.Config{WorkerCount: cfg.Workers})
	_ = pool.Start()

	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)

	return &Dispatcher{
		batch:    provider,
		runs:     runs,
		payloads: payloads,
		producer: producer,
		pool:     pool,
		limiter:  limiter,
		log:      log.WithComponent("dispatch"),
		now:      time.Now,
	}
}

// Tick runs one dispatch cycle and returns the number of runs dispatched.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	runIDs, err := d.batch.NextBatch(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatch: next batch: %w", err)
	}
	if len(runIDs) == 0 {
		return 0, nil
	}

	tasks := make([]workers.Task, 0, len(runIDs))
	for _, id := range runIDs {
		tasks = append(tasks, &dispatchTask{d: d, runID: id})
	}

	results, err := d.pool.ExecuteAll(ctx, tasks)
	if err != nil {
		return 0, fmt.Errorf("dispatch: execute batch: %w", err)
	}

	dispatched := 0
	for _, r := range results {
		if r.Error != nil {
			d.log.Warn("dispatch failed for run", logging.Fields{"run_id": r.TaskID, "error": r.Error.Error()})
			continue
		}
		dispatched++
	}

	d.log.Info("dispatch tick complete", logging.Fields{"requested": len(runIDs), "dispatched": dispatched})
	return dispatched, nil
}

// Close shuts down the dispatcher's worker pool.
func (d *Dispatcher) Close() error { return d.pool.Shutdown() }

type dispatchTask struct {
	d     *Dispatcher
	runID string
}

func (t *dispatchTask) ID() string { return t.runID }

func (t *dispatchTask) Execute(ctx context.Context) (interface{}, error) {
	d := t.d
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	run, err := d.runs.Get(ctx, t.runID)
	if err != nil {
		return nil, resilience.Classify(err, "dispatch")
	}

	cmd := domain.Command{
		Type:            domain.CommandExecute,
		TaskRunID:       run.ID,
		TaskID:          run.TaskID,
		ExecutionBounds: run.ExecutionBounds,
	}
	if run.PayloadID != "" {
		payload, err := d.payloads.Get(ctx, run.PayloadID)
		if err != nil {
			return nil, resilience.Classify(err, "dispatch")
		}
		cmd.Payload = payload
	}

	if err := d.producer.Produce(ctx, run.TaskID, cmd); err != nil {
		return nil, fmt.Errorf("produce run %s: %w", run.ID, err)
	}

	if err := d.runs.AppendStatus(ctx, domain.TaskRunStatusLogEntry{
		TaskRunID: run.ID,
		Status:    domain.RunQueued,
		CreatedAt: d.now(),
	}); err != nil {
		return nil, fmt.Errorf("mark run %s QUEUED: %w", run.ID, err)
	}

	return nil, nil
}
