package schedule

import (
	"context"
	"math/rand"
	"time"

	"github.com/MatweyL/Potok/internal/domain"
)

// SingleProvider implements MONITORING_SINGLE: a task's Timeouts list
// carves the time since the task was created into an ordered sequence of
// half-open [left, right) intervals (the final interval runs to
// infinity), each jittered independently by +/-Noise. A task is due when
// now falls in its current interval and either its status is NEW, or its
// status is SUCCEED and status_updated_at precedes that interval's left
// bound (spec.md §4.2).
//
// Grounded on SASingleMonitoringAlgorithmRepo._calculate_execution_intervals
// and _find_current_interval. As in that source, intervals (and their
// noise) are recomputed on every call rather than cached, so the interval
// boundaries drift slightly between successive due-checks — a property of
// the original algorithm this port preserves rather than "fixes".
type SingleProvider struct {
	rng *rand.Rand
}

func NewSingleProvider(seed int64) *SingleProvider {
	return &SingleProvider{rng: rand.New(rand.NewSource(seed))}
}

func (p *SingleProvider) Kind() domain.MonitoringAlgorithmKind { return domain.MonitoringSingle }

func (p *SingleProvider) Due(ctx context.Context, tasks []domain.Task, lookup TaskStatusLookup, now time.Time) ([]domain.Task, error) {
	var due []domain.Task
	for _, t := range tasks {
		left, right, ok := p.currentInterval(t, now)
		if !ok {
			continue
		}

		snap, err := lookup.Status(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if !snap.Found || snap.Status == domain.TaskNew {
			due = append(due, t)
			continue
		}
		if snap.Status == domain.TaskSucceed && snap.UpdatedAt.Before(left) {
			due = append(due, t)
		}
		_ = right
	}
	return due, nil
}

// currentInterval returns the half-open [left, right) interval containing
// now, if any.
func (p *SingleProvider) currentInterval(t domain.Task, now time.Time) (left, right time.Time, ok bool) {
	timeouts := t.MonitoringAlgorithm.Timeouts
	if len(timeouts) == 0 {
		return t.CreatedAt, time.Time{}, !now.Before(t.CreatedAt)
	}

	cursor := t.CreatedAt
	for _, timeout := range timeouts {
		intervalLeft := cursor
		noise := p.jitter(t.MonitoringAlgorithm.Noise)
		intervalRight := cursor.Add(timeout + noise)
		if (now.Equal(intervalLeft) || now.After(intervalLeft)) && now.Before(intervalRight) {
			return intervalLeft, intervalRight, true
		}
		cursor = intervalRight
	}

	// Final interval: cursor to infinity.
	if !now.Before(cursor) {
		return cursor, time.Time{}, true
	}
	return time.Time{}, time.Time{}, false
}

func (p *SingleProvider) jitter(noise time.Duration) time.Duration {
	if noise <= 0 {
		return 0
	}
	return time.Duration((p.rng.Float64()*2 - 1) * float64(noise))
}
