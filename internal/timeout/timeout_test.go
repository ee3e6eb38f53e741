package timeout

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/logging"
	"github.com/MatweyL/Potok/internal/store/memstore"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Output: io.Discard})
}

func TestStandard_FourRulesInOrder(t *testing.T) {
	rules := Standard()
	require.Len(t, rules, 4)
	assert.Equal(t, domain.RunQueued, rules[0].From)
	assert.Equal(t, domain.RunInterrupted, rules[0].To)
	assert.Equal(t, domain.RunExecution, rules[1].From)
	assert.Equal(t, domain.RunInterrupted, rules[2].From)
	assert.Equal(t, domain.RunWaiting, rules[2].To)
	assert.Zero(t, rules[2].TTL)
	assert.Equal(t, domain.RunTempError, rules[3].From)
	assert.Equal(t, 30*time.Second, rules[3].TTL)
}

func TestTransitioner_ExactBoundaryIsNotYetExpired(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	rule := Transition{From: domain.RunQueued, To: domain.RunInterrupted, TTL: 300 * time.Second, Name: "test"}
	setAt := now.Add(-rule.TTL) // exactly at the boundary
	require.NoError(t, st.Runs().Create(ctx, domain.TaskRun{ID: "r1", CreatedAt: setAt}, domain.TaskRunStatusLogEntry{
		TaskRunID: "r1", Status: domain.RunQueued, CreatedAt: setAt,
	}))

	tr := New(st.Runs(), rule, testLogger())
	tr.now = func() time.Time { return now }

	n, err := tr.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a run exactly at the TTL boundary has not strictly elapsed")

	status, err := st.Runs().CurrentStatus(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunQueued, status)
}

func TestTransitioner_PastBoundaryTransitions(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	rule := Transition{From: domain.RunQueued, To: domain.RunInterrupted, TTL: 300 * time.Second, Name: "test"}
	setAt := now.Add(-rule.TTL - time.Second) // one second past the boundary
	require.NoError(t, st.Runs().Create(ctx, domain.TaskRun{ID: "r1", CreatedAt: setAt}, domain.TaskRunStatusLogEntry{
		TaskRunID: "r1", Status: domain.RunQueued, CreatedAt: setAt,
	}))

	tr := New(st.Runs(), rule, testLogger())
	tr.now = func() time.Time { return now }

	n, err := tr.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	status, err := st.Runs().CurrentStatus(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunInterrupted, status)
}

func TestTransitioner_IgnoresRunsInOtherStatuses(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	old := now.Add(-time.Hour)
	require.NoError(t, st.Runs().Create(ctx, domain.TaskRun{ID: "r1", CreatedAt: old}, domain.TaskRunStatusLogEntry{
		TaskRunID: "r1", Status: domain.RunSucceed, CreatedAt: old,
	}))

	rule := Transition{From: domain.RunQueued, To: domain.RunInterrupted, TTL: 300 * time.Second, Name: "test"}
	tr := New(st.Runs(), rule, testLogger())
	tr.now = func() time.Time { return now }

	n, err := tr.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTransitioner_ZeroTTLTransitionsImmediately(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	setAt := now.Add(-time.Millisecond)
	require.NoError(t, st.Runs().Create(ctx, domain.TaskRun{ID: "r1", CreatedAt: setAt}, domain.TaskRunStatusLogEntry{
		TaskRunID: "r1", Status: domain.RunInterrupted, CreatedAt: setAt,
	}))

	rule := Transition{From: domain.RunInterrupted, To: domain.RunWaiting, TTL: 0, Name: "interrupted_retry_immediately"}
	tr := New(st.Runs(), rule, testLogger())
	tr.now = func() time.Time { return now }

	n, err := tr.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
