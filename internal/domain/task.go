// Package domain holds the scheduler's core types: tasks, task runs, their
// status logs, monitoring algorithms, execution bounds, progress, payloads
// and the command/response wire shapes exchanged with executors.
package domain

import "time"

// PriorityType orders due tasks and their runs for dispatch.
type PriorityType int

const (
	PriorityLow PriorityType = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// TaskStatus is the lifecycle state of a Task (as opposed to one of its
// runs). Mutated only by C4 (internal/materialize), which moves a due task
// from NEW (or a stale EXECUTION/SUCCEED) to EXECUTION; the remaining
// terminal states are reachable only through the out-of-scope intake/admin
// surface (spec.md §6) and are carried here so the due-task formulas in
// internal/schedule can check against them.
type TaskStatus string

const (
	TaskNew       TaskStatus = "NEW"
	TaskExecution TaskStatus = "EXECUTION"
	TaskSucceed   TaskStatus = "SUCCEED"
	TaskError     TaskStatus = "ERROR"
	TaskCancelled TaskStatus = "CANCELLED"
	TaskFinished  TaskStatus = "FINISHED"
)

// MonitoringAlgorithmKind tags which variant of MonitoringAlgorithm a Task
// carries. Go has no sum types, so the provider registry switches on this
// tag rather than on a type assertion against a closed interface set.
type MonitoringAlgorithmKind string

const (
	MonitoringPeriodic MonitoringAlgorithmKind = "PERIODIC"
	MonitoringSingle   MonitoringAlgorithmKind = "SINGLE"
)

// MonitoringAlgorithm configures how due runs are discovered for a task.
//
// Exactly one of the kind-specific field groups is meaningful, selected by
// Kind. PeriodTimeout/Noise apply to MonitoringPeriodic; Timeouts/Noise
// apply to MonitoringSingle.
type MonitoringAlgorithm struct {
	Kind MonitoringAlgorithmKind

	// PERIODIC: a run becomes due every PeriodTimeout, jittered by +/-Noise.
	PeriodTimeout time.Duration

	// SINGLE: an ordered list of timeouts whose cumulative sums (each
	// independently jittered by +/-Noise) become the run's due instants.
	Timeouts []time.Duration

	Noise time.Duration
}

// ExecutionBoundsKind tags which variant of ExecutionBounds a run carries.
type ExecutionBoundsKind string

const (
	BoundsTimeInterval ExecutionBoundsKind = "TIME_INTERVAL"
)

// ExecutionBounds describes the slice of the world a run is responsible for
// processing. TIME_INTERVAL is the only kind implemented today; Kind is
// still carried on the wire so additional bound shapes can be added without
// breaking existing rows.
type ExecutionBounds struct {
	Kind ExecutionBoundsKind

	IntervalStart time.Time
	IntervalEnd   time.Time
}

// TaskType distinguishes how a task's command is addressed and routed.
type TaskType string

const (
	TaskTypeHTTP  TaskType = "HTTP"
	TaskTypeQueue TaskType = "QUEUE"
)

// Task is a standing definition of recurring work: what to run, how often
// due runs are discovered, and what slice of time each run should cover.
type Task struct {
	ID       string
	Name     string
	Type     TaskType
	Priority PriorityType

	MonitoringAlgorithm MonitoringAlgorithm
	ExecutionBounds     ExecutionBoundsKind

	// Target identifies the executor, e.g. a URL for TaskTypeHTTP or a
	// queue/routing-key pair for TaskTypeQueue.
	Target string

	// PayloadID is the content-addressed payload shared by every run this
	// task creates, or "" when the task has no fixed payload.
	PayloadID string

	CreatedAt time.Time
}

// TaskStatusLogEntry is one append-only record in a task's status log.
// Current status is always the most recently appended entry.
type TaskStatusLogEntry struct {
	TaskID    string
	Status    TaskStatus
	Reason    string
	CreatedAt time.Time
}
