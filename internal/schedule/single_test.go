package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatweyL/Potok/internal/domain"
)

func singleTask(id string, created time.Time, timeouts ...time.Duration) domain.Task {
	return domain.Task{
		ID:        id,
		CreatedAt: created,
		MonitoringAlgorithm: domain.MonitoringAlgorithm{
			Kind:     domain.MonitoringSingle,
			Timeouts: timeouts,
		},
	}
}

func TestSingleProvider_NoTimeoutsIsDueImmediately(t *testing.T) {
	p := NewSingleProvider(1)
	created := time.Now().Add(-time.Hour)
	task := singleTask("t1", created)

	due, err := p.Due(context.Background(), []domain.Task{task}, fakeLookup{}, time.Now())
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestSingleProvider_FirstIntervalNeverRunIsDue(t *testing.T) {
	p := NewSingleProvider(1)
	now := time.Now()
	created := now.Add(-time.Minute)
	task := singleTask("t1", created, 10*time.Minute, 20*time.Minute)

	due, err := p.Due(context.Background(), []domain.Task{task}, fakeLookup{}, now)
	require.NoError(t, err)
	assert.Len(t, due, 1, "now falls in the first [created, created+10m) interval")
}

func TestSingleProvider_FreshTaskInOpenEndedFinalIntervalIsDue(t *testing.T) {
	p := NewSingleProvider(1)
	now := time.Now()
	created := now.Add(-5 * time.Minute)
	task := singleTask("t1", created, time.Minute)

	// Final interval starts at created+1m and runs to infinity; now (created+5m)
	// falls inside it, so a fresh task is due.
	due, err := p.Due(context.Background(), []domain.Task{task}, fakeLookup{}, now)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestSingleProvider_DueOnlyIfLastSucceedBeforeIntervalLeft(t *testing.T) {
	p := NewSingleProvider(1)
	now := time.Now()
	created := now.Add(-15 * time.Minute)
	// Two intervals: [created, created+10m), [created+10m, inf). now is in the second.
	task := singleTask("t1", created, 10*time.Minute)
	intervalLeft := created.Add(10 * time.Minute)

	succeededBefore := fakeLookup{"t1": {Status: domain.TaskSucceed, UpdatedAt: intervalLeft.Add(-time.Second), Found: true}}
	due, err := p.Due(context.Background(), []domain.Task{task}, succeededBefore, now)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	succeededAfter := fakeLookup{"t1": {Status: domain.TaskSucceed, UpdatedAt: intervalLeft.Add(time.Second), Found: true}}
	due, err = p.Due(context.Background(), []domain.Task{task}, succeededAfter, now)
	require.NoError(t, err)
	assert.Empty(t, due, "a task that already succeeded within the current interval is not due again")

	failedBefore := fakeLookup{"t1": {Status: domain.TaskError, UpdatedAt: intervalLeft.Add(-time.Second), Found: true}}
	due, err = p.Due(context.Background(), []domain.Task{task}, failedBefore, now)
	require.NoError(t, err)
	assert.Empty(t, due, "only a SUCCEED status makes the task eligible again")
}
