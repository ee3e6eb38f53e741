// Package bounds implements the execution-bounds provider (C2): for each
// due task, decide what slice of time its next run(s) should cover.
package bounds

import (
	"context"
	"time"

	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/store"
)

// Provider resolves ExecutionBounds for a batch of tasks in one call,
// grouping store lookups per call rather than per task.
type Provider interface {
	ProvideBatch(ctx context.Context, tasks []domain.Task) (map[string][]domain.ExecutionBounds, error)
}

// DefaultProvider implements Provider for BoundsTimeInterval tasks.
// Grounded on service/domain/services/execution_bounds_provider.py's
// DefaultExecutionBoundsProvider; other ExecutionBoundsKind values pass
// through with an empty bounds list, the same behavior the Python
// original gives unsupported task types.
//
// Live-monitoring and backfill slices are given identical treatment here:
// both are plain TimeIntervalBounds continuations from a progress
// cursor, with no special-casing for whether the resulting interval lies
// in the past or touches the live window (see DESIGN.md's Open Question
// decision).
type DefaultProvider struct {
	progress store.ProgressStore

	// DefaultLeftDate anchors the backfill bound for a task with no
	// recorded progress — the original defaults to 2010-01-01.
	DefaultLeftDate time.Time

	// DefaultFirstIntervalDays splits a fresh task's history into a
	// recent "live monitoring" slice and an older "backfill" slice.
	DefaultFirstIntervalDays int

	Now func() time.Time
}

// NewDefaultProvider builds a DefaultProvider with the original's default
// anchors (2010-01-01, 31 days).
func NewDefaultProvider(progress store.ProgressStore) *DefaultProvider {
	return &DefaultProvider{
		progress:                 progress,
		DefaultLeftDate:          time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC),
		DefaultFirstIntervalDays: 31,
		Now:                      time.Now,
	}
}

func (p *DefaultProvider) ProvideBatch(ctx context.Context, tasks []domain.Task) (map[string][]domain.ExecutionBounds, error) {
	result := make(map[string][]domain.ExecutionBounds, len(tasks))
	now := p.Now()

	for _, t := range tasks {
		if t.ExecutionBounds != domain.BoundsTimeInterval {
			result[t.ID] = nil
			continue
		}

		progress, found, err := p.progress.Get(ctx, t.ID)
		if err != nil {
			return nil, err
		}

		if !found {
			separation := now.AddDate(0, 0, -p.DefaultFirstIntervalDays)
			result[t.ID] = []domain.ExecutionBounds{
				{Kind: domain.BoundsTimeInterval, IntervalStart: separation, IntervalEnd: now},
				{Kind: domain.BoundsTimeInterval, IntervalStart: p.DefaultLeftDate, IntervalEnd: separation},
			}
			continue
		}

		result[t.ID] = []domain.ExecutionBounds{
			{Kind: domain.BoundsTimeInterval, IntervalStart: progress.IntervalEnd, IntervalEnd: now},
		}
	}

	return result, nil
}
