// Package store defines the append-only status log abstraction (C1) that
// every other component in the scheduler reads and writes through, plus the
// task/run/payload/progress repositories it's built on.
package store

import (
	"context"
	"time"

	"github.com/MatweyL/Potok/internal/domain"
)

// TaskStore manages Task definitions and their status logs.
type TaskStore interface {
	Create(ctx context.Context, task domain.Task) error
	Get(ctx context.Context, taskID string) (domain.Task, error)
	List(ctx context.Context, filter domain.Filter, page domain.PaginationQuery) ([]domain.Task, error)

	AppendStatus(ctx context.Context, entry domain.TaskStatusLogEntry) error
	CurrentStatus(ctx context.Context, taskID string) (domain.TaskStatus, error)

	// CurrentStatusEntry returns the most recent status log entry in full,
	// including when that status was set — the status_updated_at the
	// due-task formulas in internal/schedule compare against (spec.md
	// §4.2).
	CurrentStatusEntry(ctx context.Context, taskID string) (domain.TaskStatusLogEntry, error)
}

// RunStore manages TaskRun rows and their append-only status log: the core
// of C1 Status Store.
type RunStore interface {
	Create(ctx context.Context, run domain.TaskRun, initial domain.TaskRunStatusLogEntry) error
	Get(ctx context.Context, runID string) (domain.TaskRun, error)
	List(ctx context.Context, filter domain.Filter, page domain.PaginationQuery) ([]domain.TaskRun, error)

	// AppendStatus adds a new entry to runID's status log. The run's
	// current status after this call is entry.Status.
	AppendStatus(ctx context.Context, entry domain.TaskRunStatusLogEntry) error

	// CurrentStatus returns the status of the most recent log entry.
	CurrentStatus(ctx context.Context, runID string) (domain.TaskRunStatus, error)

	// CountWithStatus counts runs whose current status is status.
	CountWithStatus(ctx context.Context, status domain.TaskRunStatus) (int64, error)

	// WindowCount counts status-log entries for status created within
	// [since, now).
	WindowCount(ctx context.Context, status domain.TaskRunStatus, since time.Time) (int64, error)

	// WindowTotal counts all status-log entries created strictly after
	// since, across every status.
	WindowTotal(ctx context.Context, since time.Time) (int64, error)

	// AverageDurationInStatus computes the mean wall-clock time runs spent
	// continuously in status, over closed (non-open) streaks that started
	// within [since, now). See internal/store/postgres for the streak-scan
	// algorithm this implements.
	AverageDurationInStatus(ctx context.Context, status domain.TaskRunStatus, since time.Time) (time.Duration, error)

	// PruneOlderThan deletes status-log entries older than before, except
	// each run's single newest entry (so CurrentStatus remains correct).
	PruneOlderThan(ctx context.Context, before time.Time) (int64, error)

	// DueForTransition returns runs whose current status is fromStatus and
	// whose current status entry was created strictly before cutoff — the
	// query the timeout transitioner runs against a TTL boundary.
	DueForTransition(ctx context.Context, fromStatus domain.TaskRunStatus, cutoff time.Time) ([]domain.TaskRun, error)
}

// PayloadStore manages content-addressed payloads, deduping on checksum.
type PayloadStore interface {
	// Upsert inserts p if no row with its checksum exists, or returns the
	// existing row unchanged otherwise — payloads are immutable once
	// stored, so later writers always get the original content back.
	Upsert(ctx context.Context, p domain.Payload) (domain.Payload, error)
	Get(ctx context.Context, checksum string) (domain.Payload, error)
}

// ProgressStore tracks TIME_INTERVAL execution-bounds continuation points.
type ProgressStore interface {
	Get(ctx context.Context, taskID string) (domain.TimeIntervalProgress, bool, error)
	Upsert(ctx context.Context, p domain.TimeIntervalProgress) error
}

// TxStore materializes an atomic unit of work across Task/Run/Payload/
// Progress stores, used by internal/materialize's C4 run materializer.
type TxStore interface {
	RunTx(ctx context.Context, fn func(ctx context.Context, tx TxHandle) error) error
}

// TxHandle exposes the same store interfaces scoped to a single
// transaction.
type TxHandle interface {
	Tasks() TaskStore
	Runs() RunStore
	Payloads() PayloadStore
	Progress() ProgressStore
}
