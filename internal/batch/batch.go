// Package batch implements the batch-size provider (C5): on each dispatch
// tick, decide how many WAITING runs to pull and hand back the run IDs to
// send. Three variants share one Provider interface — Constant, AIMD, and a
// two-tier PID controller — all grounded on
// original_source/imitation_modelling/task_batch_provider*.py and, for the
// PID variant, the root-level task_batch_provider_adaptive_pid.py.
package batch

import (
	"context"
	"time"
)

// Provider decides how many WAITING runs to dispatch next and selects them.
type Provider interface {
	NextBatch(ctx context.Context) ([]string, error)
}

// Metrics mirrors imitation_modelling.schemas.SystemMetrics: the system
// state a batch provider conditions its size decision on.
type Metrics struct {
	QueueDepth    int64
	QueueCapacity int64
	Throughput    float64
	ErrorRate     float64
	AvgLatency    time.Duration
	SuccessCount  int64
	ErrorCount    int64
}

// Utilization returns QueueDepth/QueueCapacity, or 0 if capacity is unset.
func (m Metrics) Utilization() float64 {
	if m.QueueCapacity <= 0 {
		return 0
	}
	return float64(m.QueueDepth) / float64(m.QueueCapacity)
}

// MetricsSource supplies the current Metrics snapshot, grounded on
// imitation_modelling/repo.py's TaskRunMetricProvider.
type MetricsSource interface {
	Snapshot(ctx context.Context) (Metrics, error)
}

// Selector picks up to n WAITING run IDs, oldest/highest-priority first.
// Both AIMD and PID providers share this selection step; only the batch
// size they pass to it differs.
type Selector interface {
	SelectWaiting(ctx context.Context, n int) ([]string, error)
}
