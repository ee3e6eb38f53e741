// Package materialize implements the run materializer (C4): the single
// transaction that turns a batch of due tasks into freshly created
// WAITING task runs, with their payloads and execution bounds resolved.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MatweyL/Potok/internal/bounds"
	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/logging"
	"github.com/MatweyL/Potok/internal/resilience"
	"github.com/MatweyL/Potok/internal/schedule"
	"github.com/MatweyL/Potok/internal/store"
)

// Materializer ties the due-task registry, the execution-bounds provider,
// and the payload/run stores into one atomic unit of work. Grounded on
// service/domain/use_cases/internal/create_task_runs.py's CreateTaskRunsUC.
type Materializer struct {
	tx       store.TxStore
	tasks    store.TaskStore
	registry *schedule.Registry
	bounds   bounds.Provider
	log      *logging.Logger

	now func() time.Time
}

// New builds a Materializer. tasks is kept on the Materializer but
// Materialize does not read it; tx is where the run/status/payload writes
// land.
func New(tx store.TxStore, tasks store.TaskStore, registry *schedule.Registry, boundsProvider bounds.Provider, log *logging.Logger) *Materializer {
	return &Materializer{
		tx:       tx,
		tasks:    tasks,
		registry: registry,
		bounds:   boundsProvider,
		log:      log.WithComponent("materialize"),
		now:      time.Now,
	}
}

// StoreLookup adapts store.TaskStore to schedule.TaskStatusLookup by
// reading a task's own current status log entry.
type StoreLookup struct {
	Tasks store.TaskStore
}

func (l StoreLookup) Status(ctx context.Context, taskID string) (schedule.TaskStatusSnapshot, error) {
	entry, err := l.Tasks.CurrentStatusEntry(ctx, taskID)
	if err != nil {
		var classified *resilience.ClassifiedError
		if errors.As(err, &classified) && classified.Kind == resilience.UnknownReference {
			return schedule.TaskStatusSnapshot{}, nil
		}
		return schedule.TaskStatusSnapshot{}, err
	}
	return schedule.TaskStatusSnapshot{Status: entry.Status, UpdatedAt: entry.CreatedAt, Found: true}, nil
}

// Materialize finds due tasks among candidates, resolves each one's
// payload and execution bounds, flips each due task to EXECUTION (spec.md
// §4.4 step 4), and writes the resulting runs (one per resolved bounds
// entry) plus their initial WAITING status log entries — all inside a
// single transaction.
func (m *Materializer) Materialize(ctx context.Context, candidates []domain.Task, lookup schedule.TaskStatusLookup) (int, error) {
	due, err := m.registry.Due(ctx, candidates, lookup, m.now())
	if err != nil {
		return 0, fmt.Errorf("materialize: resolve due tasks: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	boundsByTask, err := m.bounds.ProvideBatch(ctx, due)
	if err != nil {
		return 0, fmt.Errorf("materialize: resolve execution bounds: %w", err)
	}

	created := 0
	err = m.tx.RunTx(ctx, func(ctx context.Context, tx store.TxHandle) error {
		now := m.now()
		for _, t := range due {
			if err := tx.Tasks().AppendStatus(ctx, domain.TaskStatusLogEntry{
				TaskID:    t.ID,
				Status:    domain.TaskExecution,
				CreatedAt: now,
			}); err != nil {
				return fmt.Errorf("materialize: flip task %s to EXECUTION: %w", t.ID, err)
			}

			payload, err := m.resolvePayload(ctx, tx, t)
			if err != nil {
				return fmt.Errorf("materialize: resolve payload for task %s: %w", t.ID, err)
			}

			for _, eb := range boundsByTask[t.ID] {
				run := domain.TaskRun{
					ID:              uuid.NewString(),
					TaskID:          t.ID,
					ExecutionBounds: eb,
					PayloadID:       payload,
					Priority:        t.Priority,
					CreatedAt:       now,
				}
				initial := domain.TaskRunStatusLogEntry{
					TaskRunID: run.ID,
					Status:    domain.RunWaiting,
					CreatedAt: now,
				}
				if err := tx.Runs().Create(ctx, run, initial); err != nil {
					return fmt.Errorf("materialize: create run for task %s: %w", t.ID, err)
				}
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	m.log.Info("materialized due task runs", logging.Fields{"due_tasks": len(due), "runs_created": created})
	return created, nil
}

func (m *Materializer) resolvePayload(ctx context.Context, tx store.TxHandle, t domain.Task) (string, error) {
	if t.PayloadID == "" {
		return "", nil
	}
	p, err := tx.Payloads().Get(ctx, t.PayloadID)
	if err != nil {
		return "", err
	}
	return p.Checksum, nil
}
