package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/resilience"
)

type progressStore struct{ q querier }

func (s *progressStore) Get(ctx context.Context, taskID string) (domain.TimeIntervalProgress, bool, error) {
	var p domain.TimeIntervalProgress
	p.TaskID = taskID
	err := s.q.QueryRow(ctx, `
		SELECT interval_end, updated_at FROM task_progress WHERE task_id = $1`, taskID).Scan(&p.IntervalEnd, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TimeIntervalProgress{}, false, nil
	}
	if err != nil {
		return domain.TimeIntervalProgress{}, false, resilience.Classify(err, "store.progress")
	}
	return p, true, nil
}

func (s *progressStore) Upsert(ctx context.Context, p domain.TimeIntervalProgress) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO task_progress (task_id, interval_end, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (task_id) DO UPDATE SET interval_end = $2, updated_at = $3`,
		p.TaskID, p.IntervalEnd, p.UpdatedAt)
	if err != nil {
		return resilience.Classify(err, "store.progress")
	}
	return nil
}
