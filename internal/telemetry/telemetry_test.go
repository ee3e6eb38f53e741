package telemetry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/store/memstore"
)

func createRun(t *testing.T, st *memstore.Store, id string, status domain.TaskRunStatus, at time.Time) {
	t.Helper()
	require.NoError(t, st.Runs().Create(context.Background(), domain.TaskRun{ID: id, CreatedAt: at}, domain.TaskRunStatusLogEntry{
		TaskRunID: id, Status: status, CreatedAt: at,
	}))
}

func TestCollector_CollectComputesSnapshot(t *testing.T) {
	st := memstore.New()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	createRun(t, st, "exec-1", domain.RunExecution, now.Add(-time.Minute))
	createRun(t, st, "queued-1", domain.RunQueued, now.Add(-time.Minute))
	createRun(t, st, "waiting-1", domain.RunWaiting, now.Add(-time.Minute))
	createRun(t, st, "succeed-1", domain.RunSucceed, now.Add(-30*time.Second))
	createRun(t, st, "error-1", domain.RunError, now.Add(-10*time.Second))

	c := New(st.Runs(), time.Minute, nil, "test-run", t.TempDir())
	c.now = func() time.Time { return now }
	c.start = now.Add(-2 * time.Minute)

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, snap.ExecutionCount)
	assert.EqualValues(t, 1, snap.QueuedCount)
	assert.EqualValues(t, 1, snap.WaitingCount)
	assert.EqualValues(t, 2, snap.Completed)
	assert.EqualValues(t, 120, snap.SecondsSinceStart)
	assert.Equal(t, now, snap.Time)
}

func TestCollector_ZeroPeriodNeverDividesFrequencies(t *testing.T) {
	st := memstore.New()
	c := New(st.Runs(), 0, nil, "test-run", t.TempDir())

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.ReturnFrequency)
	assert.Zero(t, snap.SucceedFrequency)
}

func TestCollector_HistoryAccumulatesAcrossCollects(t *testing.T) {
	st := memstore.New()
	c := New(st.Runs(), time.Minute, nil, "test-run", t.TempDir())

	_, err := c.Collect(context.Background())
	require.NoError(t, err)
	_, err = c.Collect(context.Background())
	require.NoError(t, err)

	assert.Len(t, c.History(), 2)
}

func TestCollector_HistoryReturnsACopy(t *testing.T) {
	st := memstore.New()
	c := New(st.Runs(), time.Minute, nil, "test-run", t.TempDir())
	_, err := c.Collect(context.Background())
	require.NoError(t, err)

	h := c.History()
	h[0].ExecutionCount = 999

	h2 := c.History()
	assert.NotEqual(t, int64(999), h2[0].ExecutionCount)
}

func TestCollector_FlushWritesJSONReport(t *testing.T) {
	st := memstore.New()
	dir := t.TempDir()
	c := New(st.Runs(), time.Minute, nil, "flush-test", dir)

	_, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Flush())

	data, err := os.ReadFile(filepath.Join(dir, "flush-test.json"))
	require.NoError(t, err)

	var report struct {
		History []Snapshot `json:"history"`
		RunName string     `json:"run_name"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "flush-test", report.RunName)
	assert.Len(t, report.History, 1)
}

func TestCollector_RegistryExposesGauges(t *testing.T) {
	st := memstore.New()
	c := New(st.Runs(), time.Minute, nil, "test-run", t.TempDir())

	metrics, err := c.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, metrics)
}
