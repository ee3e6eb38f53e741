// Package memstore is an in-memory implementation of internal/store's
// interfaces, used as a test double by every package that would otherwise
// need a live Postgres instance. It mirrors internal/store/postgres's
// semantics closely enough (including the strict-before-cutoff
// DueForTransition boundary and the AverageDurationInStatus streak scan)
// that tests exercising it catch the same bugs a Postgres-backed test
// would.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/resilience"
	"github.com/MatweyL/Potok/internal/store"
)

// Store holds every table memstore backs, guarded by a single mutex — this
// is a test double, not a concurrency-optimized store.
type Store struct {
	mu sync.Mutex

	tasks      map[string]domain.Task
	taskStatus map[string][]domain.TaskStatusLogEntry

	runs      map[string]domain.TaskRun
	runStatus map[string][]domain.TaskRunStatusLogEntry

	payloads map[string]domain.Payload
	progress map[string]domain.TimeIntervalProgress
}

func New() *Store {
	return &Store{
		tasks:      make(map[string]domain.Task),
		taskStatus: make(map[string][]domain.TaskStatusLogEntry),
		runs:       make(map[string]domain.TaskRun),
		runStatus:  make(map[string][]domain.TaskRunStatusLogEntry),
		payloads:   make(map[string]domain.Payload),
		progress:   make(map[string]domain.TimeIntervalProgress),
	}
}

func (s *Store) Tasks() store.TaskStore       { return taskView{s} }
func (s *Store) Runs() store.RunStore         { return runView{s} }
func (s *Store) Payloads() store.PayloadStore { return payloadView{s} }
func (s *Store) Progress() store.ProgressStore { return progressView{s} }

// RunTx gives fn a view of the same store — memstore has no isolation
// between concurrent transactions, but it does roll back every map to a
// pre-call snapshot if fn returns an error, matching the commit/rollback
// contract callers depend on.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx store.TxHandle) error) error {
	s.mu.Lock()
	snapshot := s.clone()
	s.mu.Unlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.tasks, s.taskStatus = snapshot.tasks, snapshot.taskStatus
		s.runs, s.runStatus = snapshot.runs, snapshot.runStatus
		s.payloads, s.progress = snapshot.payloads, snapshot.progress
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) clone() *Store {
	c := New()
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for k, v := range s.taskStatus {
		c.taskStatus[k] = append([]domain.TaskStatusLogEntry(nil), v...)
	}
	for k, v := range s.runs {
		c.runs[k] = v
	}
	for k, v := range s.runStatus {
		c.runStatus[k] = append([]domain.TaskRunStatusLogEntry(nil), v...)
	}
	for k, v := range s.payloads {
		c.payloads[k] = v
	}
	for k, v := range s.progress {
		c.progress[k] = v
	}
	return c
}

type taskView struct{ s *Store }

func (v taskView) Create(ctx context.Context, t domain.Task) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

func (v taskView) Get(ctx context.Context, taskID string) (domain.Task, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, resilience.New(resilience.UnknownReference, "memstore.tasks", fmt.Errorf("task %s not found", taskID))
	}
	return t, nil
}

func (v taskView) List(ctx context.Context, filter domain.Filter, page domain.PaginationQuery) ([]domain.Task, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v taskView) AppendStatus(ctx context.Context, e domain.TaskStatusLogEntry) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskStatus[e.TaskID] = append(s.taskStatus[e.TaskID], e)
	return nil
}

func (v taskView) CurrentStatus(ctx context.Context, taskID string) (domain.TaskStatus, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.taskStatus[taskID]
	if len(log) == 0 {
		return "", resilience.New(resilience.UnknownReference, "memstore.tasks", fmt.Errorf("no status log for task %s", taskID))
	}
	return latestTaskStatus(log), nil
}

func latestTaskStatus(log []domain.TaskStatusLogEntry) domain.TaskStatus {
	return latestTaskStatusEntry(log).Status
}

func latestTaskStatusEntry(log []domain.TaskStatusLogEntry) domain.TaskStatusLogEntry {
	latest := log[0]
	for _, e := range log[1:] {
		if e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	return latest
}

func (v taskView) CurrentStatusEntry(ctx context.Context, taskID string) (domain.TaskStatusLogEntry, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.taskStatus[taskID]
	if len(log) == 0 {
		return domain.TaskStatusLogEntry{}, resilience.New(resilience.UnknownReference, "memstore.tasks", fmt.Errorf("no status log for task %s", taskID))
	}
	return latestTaskStatusEntry(log), nil
}

type runView struct{ s *Store }

func (v runView) Create(ctx context.Context, r domain.TaskRun, initial domain.TaskRunStatusLogEntry) error {
	s := v.s
	s.mu.Lock()
	s.runs[r.ID] = r
	s.mu.Unlock()
	return v.AppendStatus(ctx, initial)
}

func (v runView) Get(ctx context.Context, runID string) (domain.TaskRun, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return domain.TaskRun{}, resilience.New(resilience.UnknownReference, "memstore.runs", fmt.Errorf("run %s not found", runID))
	}
	return r, nil
}

func (v runView) List(ctx context.Context, filter domain.Filter, page domain.PaginationQuery) ([]domain.TaskRun, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TaskRun, 0, len(s.runs))
	for _, r := range s.runs {
		if matchesFilter(filter, r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if page.Direction == domain.SortDescending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, nil
}

// matchesFilter implements just enough of domain.Filter's DNF semantics
// for memstore's callers: an OpEQ condition on "task_id".
func matchesFilter(filter domain.Filter, r domain.TaskRun) bool {
	if len(filter.Groups) == 0 {
		return true
	}
	for _, group := range filter.Groups {
		allMatch := true
		for _, cond := range group.Conditions {
			if cond.Field == "task_id" && cond.Operation == domain.OpEQ && r.TaskID != cond.Value {
				allMatch = false
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}

func (v runView) AppendStatus(ctx context.Context, e domain.TaskRunStatusLogEntry) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runStatus[e.TaskRunID] = append(s.runStatus[e.TaskRunID], e)
	return nil
}

func (v runView) CurrentStatus(ctx context.Context, runID string) (domain.TaskRunStatus, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.runStatus[runID]
	if len(log) == 0 {
		return "", resilience.New(resilience.UnknownReference, "memstore.runs", fmt.Errorf("no status log for run %s", runID))
	}
	return latestRunEntry(log).Status, nil
}

func latestRunEntry(log []domain.TaskRunStatusLogEntry) domain.TaskRunStatusLogEntry {
	latest := log[0]
	for _, e := range log[1:] {
		if e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	return latest
}

func (v runView) CountWithStatus(ctx context.Context, status domain.TaskRunStatus) (int64, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, log := range s.runStatus {
		if len(log) == 0 {
			continue
		}
		if latestRunEntry(log).Status == status {
			n++
		}
	}
	return n, nil
}

func (v runView) WindowCount(ctx context.Context, status domain.TaskRunStatus, since time.Time) (int64, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, log := range s.runStatus {
		for _, e := range log {
			if e.Status == status && e.CreatedAt.After(since) {
				n++
			}
		}
	}
	return n, nil
}

func (v runView) WindowTotal(ctx context.Context, since time.Time) (int64, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, log := range s.runStatus {
		for _, e := range log {
			if e.CreatedAt.After(since) {
				n++
			}
		}
	}
	return n, nil
}

func (v runView) DueForTransition(ctx context.Context, fromStatus domain.TaskRunStatus, cutoff time.Time) ([]domain.TaskRun, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TaskRun
	for runID, log := range s.runStatus {
		if len(log) == 0 {
			continue
		}
		latest := latestRunEntry(log)
		if latest.Status == fromStatus && latest.CreatedAt.Before(cutoff) {
			out = append(out, s.runs[runID])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v runView) PruneOlderThan(ctx context.Context, before time.Time) (int64, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned int64
	for runID, log := range s.runStatus {
		if len(log) <= 1 {
			continue
		}
		sort.Slice(log, func(i, j int) bool { return log[i].CreatedAt.Before(log[j].CreatedAt) })
		newest := log[len(log)-1]
		kept := []domain.TaskRunStatusLogEntry{newest}
		for _, e := range log[:len(log)-1] {
			if !e.CreatedAt.Before(before) {
				kept = append(kept, e)
			} else {
				pruned++
			}
		}
		s.runStatus[runID] = kept
	}
	return pruned, nil
}

// AverageDurationInStatus ports internal/store/postgres's streak-scan
// algorithm verbatim over in-memory logs instead of SQL rows.
func (v runView) AverageDurationInStatus(ctx context.Context, status domain.TaskRunStatus, since time.Time) (time.Duration, error) {
	s := v.s
	s.mu.Lock()
	byRun := make(map[string][]domain.TaskRunStatusLogEntry, len(s.runStatus))
	for runID, log := range s.runStatus {
		hasCandidate := false
		for _, e := range log {
			if e.Status == status && e.CreatedAt.After(since) {
				hasCandidate = true
				break
			}
		}
		if !hasCandidate {
			continue
		}
		cp := append([]domain.TaskRunStatusLogEntry(nil), log...)
		sort.Slice(cp, func(i, j int) bool { return cp[i].CreatedAt.Before(cp[j].CreatedAt) })
		byRun[runID] = cp
	}
	s.mu.Unlock()

	now := time.Now()
	var totalCount int
	var totalDuration time.Duration
	for _, logs := range byRun {
		hasSuitable := false
		beforeNewestIdx, oldestIdx := -1, -1
		streakEnded := false

		for i := len(logs) - 1; i >= 0; i-- {
			entry := logs[i]
			inPeriod := entry.CreatedAt.After(since)
			if !inPeriod && !hasSuitable {
				break
			}

			if entry.Status == status {
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
					endTime = logs[beforeNewestIdx].CreatedAt
				}
				totalDuration += endTime.Sub(logs[oldestIdx].CreatedAt)
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

type payloadView struct{ s *Store }

func (v payloadView) Upsert(ctx context.Context, p domain.Payload) (domain.Payload, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.payloads[p.Checksum]; ok {
		return existing, nil
	}
	s.payloads[p.Checksum] = p
	return p, nil
}

func (v payloadView) Get(ctx context.Context, checksum string) (domain.Payload, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payloads[checksum]
	if !ok {
		return domain.Payload{}, resilience.New(resilience.UnknownReference, "memstore.payloads", fmt.Errorf("payload %s not found", checksum))
	}
	return p, nil
}

type progressView struct{ s *Store }

func (v progressView) Get(ctx context.Context, taskID string) (domain.TimeIntervalProgress, bool, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[taskID]
	return p, ok, nil
}

func (v progressView) Upsert(ctx context.Context, p domain.TimeIntervalProgress) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[p.TaskID] = p
	return nil
}
