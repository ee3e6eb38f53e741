package bounds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/store/memstore"
)

func TestDefaultProvider_FreshTaskSplitsLiveAndBackfill(t *testing.T) {
	st := memstore.New()
	p := NewDefaultProvider(st.Progress())
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	p.Now = func() time.Time { return now }
	p.DefaultFirstIntervalDays = 31

	task := domain.Task{ID: "t1", ExecutionBounds: domain.BoundsTimeInterval}
	result, err := p.ProvideBatch(context.Background(), []domain.Task{task})
	require.NoError(t, err)

	bounds := result["t1"]
	require.Len(t, bounds, 2, "a task with no recorded progress gets a live slice and a backfill slice")

	separation := now.AddDate(0, 0, -31)
	assert.Equal(t, domain.ExecutionBounds{Kind: domain.BoundsTimeInterval, IntervalStart: separation, IntervalEnd: now}, bounds[0])
	assert.Equal(t, domain.ExecutionBounds{Kind: domain.BoundsTimeInterval, IntervalStart: p.DefaultLeftDate, IntervalEnd: separation}, bounds[1])
}

func TestDefaultProvider_ContinuesFromRecordedProgress(t *testing.T) {
	st := memstore.New()
	p := NewDefaultProvider(st.Progress())
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	p.Now = func() time.Time { return now }

	progressEnd := now.Add(-2 * time.Hour)
	require.NoError(t, st.Progress().Upsert(context.Background(), domain.TimeIntervalProgress{
		TaskID: "t1", IntervalEnd: progressEnd, UpdatedAt: progressEnd,
	}))

	task := domain.Task{ID: "t1", ExecutionBounds: domain.BoundsTimeInterval}
	result, err := p.ProvideBatch(context.Background(), []domain.Task{task})
	require.NoError(t, err)

	bounds := result["t1"]
	require.Len(t, bounds, 1, "a task with recorded progress gets exactly one continuation slice")
	assert.Equal(t, progressEnd, bounds[0].IntervalStart)
	assert.Equal(t, now, bounds[0].IntervalEnd)
}

func TestDefaultProvider_NonTimeIntervalKindPassesThroughEmpty(t *testing.T) {
	st := memstore.New()
	p := NewDefaultProvider(st.Progress())

	task := domain.Task{ID: "t1", ExecutionBounds: "UNSUPPORTED"}
	result, err := p.ProvideBatch(context.Background(), []domain.Task{task})
	require.NoError(t, err)
	assert.Empty(t, result["t1"])
}

func TestDefaultProvider_LiveAndBackfillGivenIdenticalTreatment(t *testing.T) {
	// Per DESIGN.md's Open Question decision: a continuation bound isn't
	// special-cased depending on whether its end lands in the past or the
	// live window — both come from the same code path.
	st := memstore.New()
	p := NewDefaultProvider(st.Progress())
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	p.Now = func() time.Time { return now }

	farInPast := now.AddDate(-1, 0, 0)
	require.NoError(t, st.Progress().Upsert(context.Background(), domain.TimeIntervalProgress{
		TaskID: "backfill-heavy", IntervalEnd: farInPast, UpdatedAt: farInPast,
	}))

	result, err := p.ProvideBatch(context.Background(), []domain.Task{{ID: "backfill-heavy", ExecutionBounds: domain.BoundsTimeInterval}})
	require.NoError(t, err)
	assert.Equal(t, farInPast, result["backfill-heavy"][0].IntervalStart)
	assert.Equal(t, now, result["backfill-heavy"][0].IntervalEnd)
}
