package batch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/store/memstore"
)

func TestStoreSelector_OrdersByPriorityThenAge(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	now := time.Now()

	runs := []domain.TaskRun{
		{ID: "old-normal", Priority: domain.PriorityNormal, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "new-critical", Priority: domain.PriorityCritical, CreatedAt: now.Add(-time.Minute)},
		{ID: "old-high", Priority: domain.PriorityHigh, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "new-normal", Priority: domain.PriorityNormal, CreatedAt: now.Add(-time.Hour)},
	}
	for _, r := range runs {
		require.NoError(t, st.Runs().Create(ctx, r, domain.TaskRunStatusLogEntry{TaskRunID: r.ID, Status: domain.RunWaiting, CreatedAt: r.CreatedAt}))
	}

	selector := NewStoreSelector(st.Runs())
	ids, err := selector.SelectWaiting(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"new-critical", "old-high", "old-normal", "new-normal"}, ids)
}

func TestStoreSelector_TruncatesToN(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		r := domain.TaskRun{ID: id, CreatedAt: now.Add(time.Duration(i) * time.Second)}
		require.NoError(t, st.Runs().Create(ctx, r, domain.TaskRunStatusLogEntry{TaskRunID: id, Status: domain.RunWaiting, CreatedAt: r.CreatedAt}))
	}

	selector := NewStoreSelector(st.Runs())
	ids, err := selector.SelectWaiting(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}
