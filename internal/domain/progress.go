package domain

import "time"

// TimeIntervalProgress records the last TIME_INTERVAL bounds a task
// successfully covered, so the execution-bounds provider can continue from
// IntervalEnd rather than re-deriving it from run history on every call.
type TimeIntervalProgress struct {
	TaskID      string
	IntervalEnd time.Time
	UpdatedAt   time.Time
}
