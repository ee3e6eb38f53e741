package schedule

import (
	"context"
	"math/rand"
	"time"

	"github.com/MatweyL/Potok/internal/domain"
)

// PeriodicProvider implements MONITORING_PERIODIC: a task is due iff its
// own status is NEW, or its status is EXECUTION/SUCCEED and
// status_updated_at + timeout (jittered by +/-Noise) has elapsed (spec.md
// §4.2). Grounded on
// service/adapters/outbound/repo/sa/impls/monitoring_algorithm.py's
// SAPeriodicMonitoringAlgorithmRepo's "ready_to_execute_by_timeout"
// condition, restated against the task's own status log rather than its
// most recent run.
type PeriodicProvider struct {
	rng *rand.Rand
}

// NewPeriodicProvider builds a PeriodicProvider. seed selects the noise
// source; pass time.Now().UnixNano() in production.
func NewPeriodicProvider(seed int64) *PeriodicProvider {
	return &PeriodicProvider{rng: rand.New(rand.NewSource(seed))}
}

func (p *PeriodicProvider) Kind() domain.MonitoringAlgorithmKind { return domain.MonitoringPeriodic }

func (p *PeriodicProvider) Due(ctx context.Context, tasks []domain.Task, lookup TaskStatusLookup, now time.Time) ([]domain.Task, error) {
	var due []domain.Task
	for _, t := range tasks {
		snap, err := lookup.Status(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if !snap.Found || snap.Status == domain.TaskNew {
			due = append(due, t)
			continue
		}
		if snap.Status != domain.TaskExecution && snap.Status != domain.TaskSucceed {
			continue
		}
		noise := p.jitter(t.MonitoringAlgorithm.Noise)
		threshold := t.MonitoringAlgorithm.PeriodTimeout + noise
		if now.Sub(snap.UpdatedAt) >= threshold {
			due = append(due, t)
		}
	}
	return due, nil
}

func (p *PeriodicProvider) jitter(noise time.Duration) time.Duration {
	if noise <= 0 {
		return 0
	}
	return time.Duration((p.rng.Float64()*2 - 1) * float64(noise))
}
