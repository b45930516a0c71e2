package scheduler

import (
	"errors"
	"fmt"

	"smartsched/internal/model"
)

var (
	ErrNotSchedulable  = errors.New("task cannot be scheduled")
	ErrNoSlotAvailable = errors.New("no available time slot found within the search period")
	ErrInvalidRange    = errors.New("requested end must be after start")
	// ErrNotFound matches repository lookups that miss, including model.NotFoundError.
	ErrNotFound = model.ErrNotFound
)

// ScheduleError records which operation failed for which task.
//
// It unwraps to one of the package sentinels (or a repository error), so
// callers branch with errors.Is:
//
//	if errors.Is(res.Err, scheduler.ErrNoSlotAvailable) { ... }
type ScheduleError struct {
	Op     string
	TaskID string
	Err    error
}

func (e *ScheduleError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *ScheduleError) Unwrap() error { return e.Err }

func opError(op, taskID string, err error) error {
	if err == nil {
		return nil
	}
	var se *ScheduleError
	if errors.As(err, &se) {
		return err
	}
	return &ScheduleError{Op: op, TaskID: taskID, Err: err}
}
