// Package ingest implements the response ingestor (C7): apply a worker's
// CommandResponse to the referenced run's status log, and — for
// TIME_INTERVAL runs — advance that task's progress cursor. Grounded on
// original_source/service/domain/use_cases/receive_command_response.py
// and receive_task_run_execution_status.py.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/logging"
	"github.com/MatweyL/Potok/internal/resilience"
	"github.com/MatweyL/Potok/internal/store"
)

// Ingestor applies inbound CommandResponses to the run store.
type Ingestor struct {
	runs     store.RunStore
	progress store.ProgressStore
	log      *logging.Logger
}

func New(runs store.RunStore, progress store.ProgressStore, log *logging.Logger) *Ingestor {
	return &Ingestor{runs: runs, progress: progress, log: log.WithComponent("ingest")}
}

// statusByResponse maps the wire-level ResponseStatus onto the run
// lifecycle's terminal/retry statuses (spec.md §4.7 step 1).
var statusByResponse = map[domain.ResponseStatus]domain.TaskRunStatus{
	domain.ResponseSucceed:   domain.RunSucceed,
	domain.ResponseError:     domain.RunError,
	domain.ResponseTempError: domain.RunTempError,
	domain.ResponseCancelled: domain.RunCancelled,
	domain.ResponseExecution: domain.RunExecution,
}

// Apply handles one CommandResponse. Responses referencing an unknown run
// are logged and dropped (spec.md §4.7, ResponseMalformed/UnknownReference
// policy); late responses for runs C8 has already reclaimed are still
// applied — the newest log entry always wins regardless of arrival order.
func (i *Ingestor) Apply(ctx context.Context, resp domain.CommandResponse) error {
	status, ok := statusByResponse[resp.Status]
	if !ok {
		i.log.Warn("dropping response with unrecognized status", logging.Fields{
			"run_id": resp.TaskRunID, "status": string(resp.Status),
		})
		return nil
	}

	run, err := i.runs.Get(ctx, resp.TaskRunID)
	if err != nil {
		var classified *resilience.ClassifiedError
		if errors.As(err, &classified) && classified.Kind == resilience.UnknownReference {
			i.log.Warn("dropping response for unknown run", logging.Fields{"run_id": resp.TaskRunID})
			return nil
		}
		return fmt.Errorf("ingest: lookup run %s: %w", resp.TaskRunID, err)
	}

	if err := i.runs.AppendStatus(ctx, domain.TaskRunStatusLogEntry{
		TaskRunID: run.ID,
		Status:    status,
		Reason:    resp.Reason,
		CreatedAt: resp.ReceivedAt,
	}); err != nil {
		return fmt.Errorf("ingest: append status for run %s: %w", run.ID, err)
	}

	if resp.Results != nil && run.ExecutionBounds.Kind == domain.BoundsTimeInterval {
		if err := i.progress.Upsert(ctx, domain.TimeIntervalProgress{
			TaskID:      run.TaskID,
			IntervalEnd: resp.Results.ProcessedUntil,
			UpdatedAt:   resp.ReceivedAt,
		}); err != nil {
			return fmt.Errorf("ingest: upsert progress for task %s: %w", run.TaskID, err)
		}
	}

	return nil
}

// Run drains consumer's response stream until ctx is cancelled, applying
// each response in turn. Errors are logged, never fatal — a single
// malformed or store-transient failure must not stop the ingestion loop.
func (i *Ingestor) Run(ctx context.Context, responses <-chan domain.CommandResponse) {
	for {
		select {
		case resp, ok := <-responses:
			if !ok {
				return
			}
			if err := i.Apply(ctx, resp); err != nil {
				i.log.Error("failed to apply response", logging.Fields{"run_id": resp.TaskRunID, "error": err.Error()})
			}
		case <-ctx.Done():
			return
		}
	}
}
