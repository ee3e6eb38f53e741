package schedule

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MatweyL/Potok/internal/domain"
)

// Due partitions tasks by MonitoringAlgorithm.Kind and runs each kind's
// Provider concurrently, matching the registry's fan-out semantics: a slow
// or failing provider for one kind never blocks another kind's results,
// except that — like the Python asyncio.gather it's grounded on — a single
// provider error fails the whole call.
func (r *Registry) Due(ctx context.Context, tasks []domain.Task, lookup TaskStatusLookup, now time.Time) ([]domain.Task, error) {
	byKind := make(map[domain.MonitoringAlgorithmKind][]domain.Task)
	for _, t := range tasks {
		k := t.MonitoringAlgorithm.Kind
		byKind[k] = append(byKind[k], t)
	}

	results := make([][]domain.Task, 0, len(byKind))
	g, gctx := errgroup.WithContext(ctx)
	for kind, kindTasks := range byKind {
		provider, ok := r.providers[kind]
		if !ok {
			continue
		}
		idx := len(results)
		results = append(results, nil)
		kindTasks := kindTasks
		g.Go(func() error {
			due, err := provider.Due(gctx, kindTasks, lookup, now)
			if err != nil {
				return err
			}
			results[idx] = due
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.Task
	for _, due := range results {
		out = append(out, due...)
	}
	return out, nil
}
