package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/resilience"
)

// taskStore implements store.TaskStore against a querier (pool or tx).
type taskStore struct{ q querier }

func (s *taskStore) Create(ctx context.Context, t domain.Task) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO tasks (id, name, type, priority, monitoring_kind, monitoring_period_timeout,
			monitoring_timeouts, monitoring_noise, execution_bounds_kind, target, payload_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.Name, t.Type, t.Priority, t.MonitoringAlgorithm.Kind,
		durationSeconds(t.MonitoringAlgorithm.PeriodTimeout), durationsToSeconds(t.MonitoringAlgorithm.Timeouts),
		durationSeconds(t.MonitoringAlgorithm.Noise), t.ExecutionBounds, t.Target, nullableString(t.PayloadID), t.CreatedAt)
	if err != nil {
		return resilience.Classify(err, "store.tasks")
	}
	return nil
}

func (s *taskStore) Get(ctx context.Context, taskID string) (domain.Task, error) {
	row := s.q.QueryRow(ctx, `
		SELECT id, name, type, priority, monitoring_kind, monitoring_period_timeout,
			monitoring_timeouts, monitoring_noise, execution_bounds_kind, target, payload_id, created_at
		FROM tasks WHERE id = $1`, taskID)
	return scanTask(row)
}

func (s *taskStore) List(ctx context.Context, filter domain.Filter, page domain.PaginationQuery) ([]domain.Task, error) {
	where, args := buildWhere(filter, 0)
	query := fmt.Sprintf(`
		SELECT id, name, type, priority, monitoring_kind, monitoring_period_timeout,
			monitoring_timeouts, monitoring_noise, execution_bounds_kind, target, payload_id, created_at
		FROM tasks WHERE %s%s`, where, buildOrderLimit(page))
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, resilience.Classify(err, "store.tasks")
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *taskStore) AppendStatus(ctx context.Context, e domain.TaskStatusLogEntry) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO task_status_log (task_id, status, reason, created_at) VALUES ($1,$2,$3,$4)`,
		e.TaskID, e.Status, e.Reason, e.CreatedAt)
	if err != nil {
		return resilience.Classify(err, "store.tasks")
	}
	return nil
}

func (s *taskStore) CurrentStatus(ctx context.Context, taskID string) (domain.TaskStatus, error) {
	var status domain.TaskStatus
	err := s.q.QueryRow(ctx, `
		SELECT status FROM task_status_log WHERE task_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, taskID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", resilience.New(resilience.UnknownReference, "store.tasks", fmt.Errorf("no status log for task %s", taskID))
	}
	if err != nil {
		return "", resilience.Classify(err, "store.tasks")
	}
	return status, nil
}

func (s *taskStore) CurrentStatusEntry(ctx context.Context, taskID string) (domain.TaskStatusLogEntry, error) {
	e := domain.TaskStatusLogEntry{TaskID: taskID}
	err := s.q.QueryRow(ctx, `
		SELECT status, reason, created_at FROM task_status_log
		WHERE task_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, taskID).Scan(&e.Status, &e.Reason, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TaskStatusLogEntry{}, resilience.New(resilience.UnknownReference, "store.tasks", fmt.Errorf("no status log for task %s", taskID))
	}
	if err != nil {
		return domain.TaskStatusLogEntry{}, resilience.Classify(err, "store.tasks")
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	var periodTimeout, noise float64
	var timeouts []float64
	var payloadID *string
	err := row.Scan(&t.ID, &t.Name, &t.Type, &t.Priority, &t.MonitoringAlgorithm.Kind,
		&periodTimeout, &timeouts, &noise, &t.ExecutionBounds, &t.Target, &payloadID, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, resilience.New(resilience.UnknownReference, "store.tasks", fmt.Errorf("task not found"))
	}
	if err != nil {
		return domain.Task{}, resilience.Classify(err, "store.tasks")
	}
	t.MonitoringAlgorithm.PeriodTimeout = secondsToDuration(periodTimeout)
	t.MonitoringAlgorithm.Noise = secondsToDuration(noise)
	t.MonitoringAlgorithm.Timeouts = secondsToDurations(timeouts)
	if payloadID != nil {
		t.PayloadID = *payloadID
	}
	return t, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
