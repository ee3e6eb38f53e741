package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/resilience"
)

type runStore struct{ q querier }

func (s *runStore) Create(ctx context.Context, r domain.TaskRun, initial domain.TaskRunStatusLogEntry) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO task_runs (id, task_id, bounds_kind, interval_start, interval_end, payload_id, priority, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.TaskID, r.ExecutionBounds.Kind, r.ExecutionBounds.IntervalStart, r.ExecutionBounds.IntervalEnd,
		nullableString(r.PayloadID), r.Priority, r.CreatedAt)
	if err != nil {
		return resilience.Classify(err, "store.runs")
	}
	if err := s.AppendStatus(ctx, initial); err != nil {
		return err
	}
	return nil
}

func (s *runStore) Get(ctx context.Context, runID string) (domain.TaskRun, error) {
	row := s.q.QueryRow(ctx, `
		SELECT id, task_id, bounds_kind, interval_start, interval_end, payload_id, priority, created_at
		FROM task_runs WHERE id = $1`, runID)
	return scanRun(row)
}

func (s *runStore) List(ctx context.Context, filter domain.Filter, page domain.PaginationQuery) ([]domain.TaskRun, error) {
	where, args := buildWhere(filter, 0)
	query := fmt.Sprintf(`
		SELECT id, task_id, bounds_kind, interval_start, interval_end, payload_id, priority, created_at
		FROM task_runs WHERE %s%s`, where, buildOrderLimit(page))
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, resilience.Classify(err, "store.runs")
	}
	defer rows.Close()

	var out []domain.TaskRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *runStore) AppendStatus(ctx context.Context, e domain.TaskRunStatusLogEntry) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO task_run_status_log (task_run_id, status, reason, created_at) VALUES ($1,$2,$3,$4)`,
		e.TaskRunID, e.Status, e.Reason, e.CreatedAt)
	if err != nil {
		return resilience.Classify(err, "store.runs")
	}
	return nil
}

func (s *runStore) CurrentStatus(ctx context.Context, runID string) (domain.TaskRunStatus, error) {
	var status domain.TaskRunStatus
	err := s.q.QueryRow(ctx, `
		SELECT status FROM task_run_status_log
		WHERE task_run_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, runID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", resilience.New(resilience.UnknownReference, "store.runs", fmt.Errorf("no status log for run %s", runID))
	}
	if err != nil {
		return "", resilience.Classify(err, "store.runs")
	}
	return status, nil
}

func (s *runStore) CountWithStatus(ctx context.Context, status domain.TaskRunStatus) (int64, error) {
	var n int64
	err := s.q.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT DISTINCT ON (task_run_id) status
			FROM task_run_status_log
			ORDER BY task_run_id, created_at DESC, id DESC
		) latest WHERE latest.status = $1`, status).Scan(&n)
	if err != nil {
		return 0, resilience.Classify(err, "store.runs")
	}
	return n, nil
}

func (s *runStore) WindowCount(ctx context.Context, status domain.TaskRunStatus, since time.Time) (int64, error) {
	var n int64
	err := s.q.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT DISTINCT ON (task_run_id) status, created_at
			FROM task_run_status_log
			ORDER BY task_run_id, created_at DESC, id DESC
		) latest WHERE latest.status = $1 AND latest.created_at > $2`, status, since).Scan(&n)
	if err != nil {
		return 0, resilience.Classify(err, "store.runs")
	}
	return n, nil
}

func (s *runStore) WindowTotal(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.q.QueryRow(ctx, `
		SELECT count(*) FROM task_run_status_log WHERE created_at > $1`, since).Scan(&n)
	if err != nil {
		return 0, resilience.Classify(err, "store.runs")
	}
	return n, nil
}

func (s *runStore) DueForTransition(ctx context.Context, fromStatus domain.TaskRunStatus, cutoff time.Time) ([]domain.TaskRun, error) {
	rows, err := s.q.Query(ctx, `
		WITH latest AS (
			SELECT DISTINCT ON (task_run_id) task_run_id, status, created_at
			FROM task_run_status_log
			ORDER BY task_run_id, created_at DESC, id DESC
		)
		SELECT r.id, r.task_id, r.bounds_kind, r.interval_start, r.interval_end, r.payload_id, r.priority, r.created_at
		FROM task_runs r
		JOIN latest l ON l.task_run_id = r.id
		WHERE l.status = $1 AND l.created_at < $2`, fromStatus, cutoff)
	if err != nil {
		return nil, resilience.Classify(err, "store.runs")
	}
	defer rows.Close()

	var out []domain.TaskRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *runStore) PruneOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM task_run_status_log t
		USING (
			SELECT id, created_at,
			       ROW_NUMBER() OVER (PARTITION BY task_run_id ORDER BY created_at DESC, id DESC) AS rn
			FROM task_run_status_log
		) ranked
		WHERE t.id = ranked.id AND ranked.created_at < $1 AND ranked.rn <> 1`, before)
	if err != nil {
		return 0, resilience.Classify(err, "store.runs")
	}
	return tag.RowsAffected(), nil
}

// AverageDurationInStatus ports imitation_modelling/repo.py's
// get_average_by_period: for each run, scan its status log newest-first,
// accumulating contiguous "status" streaks, and average the (closed)
// streak durations. A streak still open at the newest entry is excluded —
// it hasn't ended yet, so it has no duration to contribute.
func (s *runStore) AverageDurationInStatus(ctx context.Context, status domain.TaskRunStatus, since time.Time) (time.Duration, error) {
	candidateRows, err := s.q.Query(ctx, `
		SELECT DISTINCT task_run_id FROM task_run_status_log WHERE status = $1 AND created_at > $2`, status, since)
	if err != nil {
		return 0, resilience.Classify(err, "store.runs")
	}
	var runIDs []string
	for candidateRows.Next() {
		var id string
		if err := candidateRows.Scan(&id); err != nil {
			candidateRows.Close()
			return 0, resilience.Classify(err, "store.runs")
		}
		runIDs = append(runIDs, id)
	}
	candidateRows.Close()
	if err := candidateRows.Err(); err != nil {
		return 0, resilience.Classify(err, "store.runs")
	}
	if len(runIDs) == 0 {
		return 0, nil
	}

	rows, err := s.q.Query(ctx, `
		SELECT task_run_id, status, created_at FROM task_run_status_log
		WHERE task_run_id = ANY($1) ORDER BY task_run_id, created_at ASC, id ASC`, runIDs)
	if err != nil {
		return 0, resilience.Classify(err, "store.runs")
	}
	defer rows.Close()

	type logRow struct {
		status    domain.TaskRunStatus
		createdAt time.Time
	}
	byRun := make(map[string][]logRow)
	for rows.Next() {
		var runID string
		var lr logRow
		if err := rows.Scan(&runID, &lr.status, &lr.createdAt); err != nil {
			return 0, resilience.Classify(err, "store.runs")
		}
		byRun[runID] = append(byRun[runID], lr)
	}
	if err := rows.Err(); err != nil {
		return 0, resilience.Classify(err, "store.runs")
	}

	now := time.Now()
	var totalCount int
	var totalDuration time.Duration
	for _, logs := range byRun {
		sort.Slice(logs, func(i, j int) bool { return logs[i].createdAt.Before(logs[j].createdAt) })

		hasSuitable := false
		// beforeNewestIdx/oldestIdx are indices into logs, -1 meaning unset;
		// comparing indices reproduces the Python algorithm's object-identity
		// check on the two log entries bounding a streak.
		beforeNewestIdx, oldestIdx := -1, -1
		streakEnded := false

		for i := len(logs) - 1; i >= 0; i-- {
			entry := logs[i]
			inPeriod := entry.createdAt.After(since)
			if !inPeriod && !hasSuitable {
				break
			}

			if entry.status == status {
				hasSuitable = true
				if beforeNewestIdx == -1 {
					if i == len(logs)-1 {
						beforeNewestIdx = i
					} else {
						beforeNewestIdx = i + 1
					}
				}
				oldestIdx = i
			} else if oldestIdx != -1 {
				streakEnded = true
			}

			if hasSuitable && oldestIdx != -1 && streakEnded && oldestIdx != beforeNewestIdx {
				var endTime time.Time
				if beforeNewestIdx == -1 {
					endTime = now
				} else {
					endTime = logs[beforeNewestIdx].createdAt
				}
				totalDuration += endTime.Sub(logs[oldestIdx].createdAt)
				totalCount++

				beforeNewestIdx, oldestIdx = -1, -1
				hasSuitable, streakEnded = false, false
			}
		}
	}

	if totalCount == 0 {
		return 0, nil
	}
	return totalDuration / time.Duration(totalCount), nil
}

func scanRun(row scanner) (domain.TaskRun, error) {
	var r domain.TaskRun
	var payloadID *string
	err := row.Scan(&r.ID, &r.TaskID, &r.ExecutionBounds.Kind, &r.ExecutionBounds.IntervalStart,
		&r.ExecutionBounds.IntervalEnd, &payloadID, &r.Priority, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TaskRun{}, resilience.New(resilience.UnknownReference, "store.runs", fmt.Errorf("run not found"))
	}
	if err != nil {
		return domain.TaskRun{}, resilience.Classify(err, "store.runs")
	}
	if payloadID != nil {
		r.PayloadID = *payloadID
	}
	return r, nil
}
