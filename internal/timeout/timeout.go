// Package timeout implements the timeout transitioner (C8): four periodic
// jobs, each moving runs stuck in one status to another once a TTL has
// strictly elapsed. Grounded on
// original_source/service/domain/use_cases/transit_task_run_status/{abstract.py,impls.py}.
package timeout

import (
	"context"
	"fmt"
	"time"

	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/logging"
	"github.com/MatweyL/Potok/internal/store"
)

// Transition is one (from, to, ttl) rule — spec.md §4.8's table.
type Transition struct {
	From domain.TaskRunStatus
	To   domain.TaskRunStatus
	TTL  time.Duration
	Name string
}

// Standard returns the four transitions spec.md §4.8 names.
func Standard() []Transition {
	return []Transition{
		{From: domain.RunQueued, To: domain.RunInterrupted, TTL: 300 * time.Second, Name: "queued_worker_never_picked_up"},
		{From: domain.RunExecution, To: domain.RunInterrupted, TTL: 300 * time.Second, Name: "execution_worker_went_silent"},
		{From: domain.RunInterrupted, To: domain.RunWaiting, TTL: 0, Name: "interrupted_retry_immediately"},
		{From: domain.RunTempError, To: domain.RunWaiting, TTL: 30 * time.Second, Name: "temp_error_retry_after_cooldown"},
	}
}

// Transitioner applies one Transition rule per invocation.
type Transitioner struct {
	runs store.RunStore
	rule Transition
	log  *logging.Logger
	now  func() time.Time
}

func New(runs store.RunStore, rule Transition, log *logging.Logger) *Transitioner {
	return &Transitioner{
		runs: runs,
		rule: rule,
		log:  log.WithComponent("timeout." + rule.Name),
		now:  time.Now,
	}
}

// Tick selects every run currently in rule.From whose status was set
// strictly before now()-TTL — a run exactly at the boundary is not yet
// expired, per spec.md §4.8's invariant — and transitions each to rule.To.
func (t *Transitioner) Tick(ctx context.Context) (int, error) {
	cutoff := t.now().Add(-t.rule.TTL)

	due, err := t.runs.DueForTransition(ctx, t.rule.From, cutoff)
	if err != nil {
		return 0, fmt.Errorf("timeout[%s]: select due runs: %w", t.rule.Name, err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	now := t.now()
	transitioned := 0
	for _, run := range due {
		if err := t.runs.AppendStatus(ctx, domain.TaskRunStatusLogEntry{
			TaskRunID: run.ID,
			Status:    t.rule.To,
			CreatedAt: now,
		}); err != nil {
			return transitioned, fmt.Errorf("timeout[%s]: transition run %s: %w", t.rule.Name, run.ID, err)
		}
		transitioned++
	}

	t.log.Info("timeout transition tick complete", logging.Fields{
		"from": string(t.rule.From), "to": string(t.rule.To), "transitioned": transitioned,
	})
	return transitioned, nil
}
