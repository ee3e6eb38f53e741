package materialize

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatweyL/Potok/internal/bounds"
	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/logging"
	"github.com/MatweyL/Potok/internal/schedule"
	"github.com/MatweyL/Potok/internal/store/memstore"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Output: io.Discard})
}

func periodicTask(id string, payloadID string) domain.Task {
	return domain.Task{
		ID:                  id,
		MonitoringAlgorithm: domain.MonitoringAlgorithm{Kind: domain.MonitoringPeriodic, PeriodTimeout: time.Hour},
		ExecutionBounds:     domain.BoundsTimeInterval,
		PayloadID:           payloadID,
		Priority:            domain.PriorityNormal,
	}
}

func newRegistry() *schedule.Registry {
	return schedule.NewRegistry(
		schedule.NewPeriodicProvider(1),
		schedule.NewSingleProvider(1),
	)
}

func TestMaterialize_CreatesWaitingRunsForDueTasks(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	p := bounds.NewDefaultProvider(st.Progress())
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p.Now = func() time.Time { return now }

	m := New(st, st.Tasks(), newRegistry(), p, testLogger())
	m.now = func() time.Time { return now }

	task := periodicTask("t1", "")
	created, err := m.Materialize(ctx, []domain.Task{task}, materializeLookup{})
	require.NoError(t, err)
	assert.Equal(t, 2, created, "a never-run periodic task gets a live slice and a backfill slice")

	runs, err := st.Runs().List(ctx, domain.Filter{}, domain.PaginationQuery{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		status, err := st.Runs().CurrentStatus(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RunWaiting, status)
		assert.Equal(t, "t1", r.TaskID)
	}

	taskStatus, err := st.Tasks().CurrentStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskExecution, taskStatus, "a due task is flipped to EXECUTION per spec.md §4.4 step 4")
}

func TestMaterialize_NoDueTasksCreatesNothing(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	p := bounds.NewDefaultProvider(st.Progress())
	m := New(st, st.Tasks(), newRegistry(), p, testLogger())

	// A lookup reporting the task's status as already SUCCEED and recent
	// keeps the periodic provider from considering it due.
	recent := schedule.TaskStatusSnapshot{Status: domain.TaskSucceed, UpdatedAt: time.Now(), Found: true}
	created, err := m.Materialize(ctx, []domain.Task{periodicTask("t1", "")}, materializeLookup{status: recent})
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestMaterialize_ResolvesFixedPayload(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	payload, err := st.Payloads().Upsert(ctx, domain.Payload{Checksum: "fixed-1", Data: map[string]interface{}{"x": 1}})
	require.NoError(t, err)

	p := bounds.NewDefaultProvider(st.Progress())
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p.Now = func() time.Time { return now }

	m := New(st, st.Tasks(), newRegistry(), p, testLogger())
	m.now = func() time.Time { return now }

	task := periodicTask("t1", payload.Checksum)
	created, err := m.Materialize(ctx, []domain.Task{task}, materializeLookup{})
	require.NoError(t, err)
	require.Positive(t, created)

	runs, err := st.Runs().List(ctx, domain.Filter{}, domain.PaginationQuery{})
	require.NoError(t, err)
	for _, r := range runs {
		assert.Equal(t, payload.Checksum, r.PayloadID)
	}
}

func TestMaterialize_UnresolvablePayloadRollsBackTheWholeTransaction(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	p := bounds.NewDefaultProvider(st.Progress())
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p.Now = func() time.Time { return now }

	m := New(st, st.Tasks(), newRegistry(), p, testLogger())
	m.now = func() time.Time { return now }

	task := periodicTask("t1", "missing-checksum")
	_, err := m.Materialize(ctx, []domain.Task{task}, materializeLookup{})
	require.Error(t, err)

	runs, err2 := st.Runs().List(ctx, domain.Filter{}, domain.PaginationQuery{})
	require.NoError(t, err2)
	assert.Empty(t, runs, "a failure mid-transaction leaves no partial runs behind")
}

func TestStoreLookup_ReturnsNotFoundWhenTaskHasNoStatusLog(t *testing.T) {
	st := memstore.New()
	lookup := StoreLookup{Tasks: st.Tasks()}

	snap, err := lookup.Status(context.Background(), "unknown-task")
	require.NoError(t, err)
	assert.False(t, snap.Found)
}

func TestStoreLookup_ReturnsMostRecentTaskStatus(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.Tasks().AppendStatus(ctx, domain.TaskStatusLogEntry{TaskID: "t1", Status: domain.TaskNew, CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, st.Tasks().AppendStatus(ctx, domain.TaskStatusLogEntry{TaskID: "t1", Status: domain.TaskExecution, CreatedAt: now}))

	lookup := StoreLookup{Tasks: st.Tasks()}
	snap, err := lookup.Status(ctx, "t1")
	require.NoError(t, err)
	require.True(t, snap.Found)
	assert.Equal(t, domain.TaskExecution, snap.Status)
}

// materializeLookup is a schedule.TaskStatusLookup stub used to drive the
// registry's due/not-due decision directly, without needing real task
// status log rows.
type materializeLookup struct {
	status schedule.TaskStatusSnapshot
	err    error
}

func (l materializeLookup) Status(ctx context.Context, taskID string) (schedule.TaskStatusSnapshot, error) {
	return l.status, l.err
}

func TestMaterialize_LookupErrorFailsTheCall(t *testing.T) {
	st := memstore.New()
	p := bounds.NewDefaultProvider(st.Progress())
	m := New(st, st.Tasks(), newRegistry(), p, testLogger())

	boom := errors.New("boom")
	_, err := m.Materialize(context.Background(), []domain.Task{periodicTask("t1", "")}, materializeLookup{err: boom})
	require.ErrorIs(t, err, boom)
}
