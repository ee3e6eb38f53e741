package batch

import (
	"context"
	"time"

	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/store"
)

// StoreMetricsSource computes Metrics from the run store over a trailing
// window, grounded on TaskRunMetricProvider's get_succeed_by_period /
// get_error_by_period / get_execution_average_duration.
type StoreMetricsSource struct {
	Runs store.RunStore

	// Period is the trailing window used for throughput/error-rate and
	// duration averages (the Python original's self._period).
	Period time.Duration

	// QueueCapacity bounds queue depth for the utilization calculation;
	// the Python source has no direct equivalent (it reasons in absolute
	// counts). cmd/potok-scheduler sets it to the AIMD max batch size.
	QueueCapacity int64

	Now func() time.Time
}

func NewStoreMetricsSource(runs store.RunStore, period time.Duration, queueCapacity int64) *StoreMetricsSource {
	return &StoreMetricsSource{Runs: runs, Period: period, QueueCapacity: queueCapacity, Now: time.Now}
}

func (s *StoreMetricsSource) Snapshot(ctx context.Context) (Metrics, error) {
	now := s.Now()
	since := now.Add(-s.Period)

	queueDepth, err := s.Runs.CountWithStatus(ctx, domain.RunWaiting)
	if err != nil {
		return Metrics{}, err
	}

	// succ and errBucket follow spec.md §4.5.2's AIMD success-ratio buckets
	// exactly: succ = window_total({SUCCEED, ERROR, CANCELLED}, W),
	// errBucket = window_total({TEMP_ERROR, INTERRUPTED}, W). ERROR and
	// CANCELLED count toward succ here — they reached a terminal outcome
	// without overloading the worker pool; only TEMP_ERROR/INTERRUPTED
	// signal retry pressure.
	succ, err := s.windowCountAny(ctx, since, domain.RunSucceed, domain.RunError, domain.RunCancelled)
	if err != nil {
		return Metrics{}, err
	}
	errBucket, err := s.windowCountAny(ctx, since, domain.RunTempError, domain.RunInterrupted)
	if err != nil {
		return Metrics{}, err
	}

	total := succ + errBucket
	errorRate := 0.0
	if total > 0 {
		errorRate = float64(errBucket) / float64(total)
	}

	avgLatency, err := s.Runs.AverageDurationInStatus(ctx, domain.RunExecution, since)
	if err != nil {
		return Metrics{}, err
	}

	succeeded, err := s.Runs.WindowCount(ctx, domain.RunSucceed, since)
	if err != nil {
		return Metrics{}, err
	}
	throughput := 0.0
	if s.Period > 0 {
		throughput = float64(succeeded) / s.Period.Seconds()
	}

	return Metrics{
		QueueDepth:    queueDepth,
		QueueCapacity: s.QueueCapacity,
		Throughput:    throughput,
		ErrorRate:     errorRate,
		AvgLatency:    avgLatency,
		SuccessCount:  succ,
		ErrorCount:    errBucket,
	}, nil
}

// windowCountAny sums WindowCount across multiple statuses, implementing
// the set-based window_total({...}, W) spec.md §4.5.2 calls for — RunStore
// itself only exposes a single-status WindowCount.
func (s *StoreMetricsSource) windowCountAny(ctx context.Context, since time.Time, statuses ...domain.TaskRunStatus) (int64, error) {
	var total int64
	for _, status := range statuses {
		n, err := s.Runs.WindowCount(ctx, status, since)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
