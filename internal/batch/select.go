package batch

import (
	"context"
	"sort"
	"time"

	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/store"
)

// StoreSelector implements Selector against the run store, pulling runs
// whose current status is WAITING. Priority enriches the Python original's
// plain FIFO (iter_actual_statuses has no ordering beyond log order):
// higher PriorityType sorts first, ties broken by CreatedAt ascending.
type StoreSelector struct {
	Runs store.RunStore
	Now  func() time.Time
}

func NewStoreSelector(runs store.RunStore) *StoreSelector {
	return &StoreSelector{Runs: runs, Now: time.Now}
}

func (s *StoreSelector) SelectWaiting(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	candidates, err := s.Runs.DueForTransition(ctx, domain.RunWaiting, s.Now())
	if err != nil {
		return nil, err
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	ids := make([]string, len(candidates))
	for i, r := range candidates {
		ids[i] = r.ID
	}
	return ids, nil
}
