// Package schedule implements the due-task provider registry (C3): given a
// task's MonitoringAlgorithm and its own current status/status_updated_at
// (spec.md §4.2), decide whether a new run is due now.
package schedule

import (
	"context"
	"time"

	"github.com/MatweyL/Potok/internal/domain"
)

// TaskStatusSnapshot is the subset of a task's own status log a Provider
// needs: its current status and when that status was set. Found is false
// for a task with no status log entries yet.
type TaskStatusSnapshot struct {
	Status    domain.TaskStatus
	UpdatedAt time.Time
	Found     bool
}

// TaskStatusLookup resolves a task's current TaskStatusSnapshot, backed by
// internal/store's TaskStore in production and an in-memory fake in tests.
type TaskStatusLookup interface {
	Status(ctx context.Context, taskID string) (TaskStatusSnapshot, error)
}

// Provider decides which of a set of same-kind tasks are due for a new run
// at now.
type Provider interface {
	Kind() domain.MonitoringAlgorithmKind
	Due(ctx context.Context, tasks []domain.Task, lookup TaskStatusLookup, now time.Time) ([]domain.Task, error)
}

// Registry fans a mixed-kind task list out across one Provider per
// MonitoringAlgorithmKind and merges the due results, mirroring
// TaskToExecuteProviderRegistry's asyncio.gather fan-out in
// service/ports/outbound/repo/abstract.py.
type Registry struct {
	providers map[domain.MonitoringAlgorithmKind]Provider
}

// NewRegistry builds a Registry from providers, keyed by their own Kind().
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[domain.MonitoringAlgorithmKind]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Kind()] = p
	}
	return r
}
