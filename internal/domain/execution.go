package domain

import (
	"fmt"
	"time"
)

// ExecutionError is the structured failure detail stored on a terminal,
// non-completed Execution (spec §3: error bag with message and stack).
type ExecutionError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Execution is a single attempt record (spec §3).
type Execution struct {
	ID    string
	JobID string

	Status  ExecutionStatus
	Attempt int

	StartedAt   time.Time
	CompletedAt *time.Time
	DurationMS  *int64

	Result Bag
	Error  *ExecutionError

	IsRetry             bool
	PreviousExecutionID *string

	WorkerID string

	Input  Bag
	Output Bag
}

// NewExecution opens a new attempt per spec §4.4 step 1: status=running,
// attempt=attemptsMade+1, started_at=now, is_retry=(attempt>1).
func NewExecution(id, jobID, workerID string, attemptsMade int, input Bag, now time.Time, previous *string) *Execution {
	attempt := attemptsMade + 1
	return &Execution{
		ID:                  id,
		JobID:               jobID,
		Status:              ExecutionRunning,
		Attempt:             attempt,
		StartedAt:           now,
		IsRetry:             attempt > 1,
		PreviousExecutionID: previous,
		WorkerID:            workerID,
		Input:               input,
	}
}

// Finish transitions the execution to a terminal status, stamping
// completed_at and duration_ms (spec §3: duration_ms = completed_at -
// started_at when both are set). It is a no-op if the execution is already
// terminal, matching the idempotent-finalize requirement of §5.
func (e *Execution) Finish(status ExecutionStatus, completedAt time.Time) {
	if e.Status.IsTerminal() {
		return
	}
	e.Status = status
	e.CompletedAt = &completedAt
	d := completedAt.Sub(e.StartedAt).Milliseconds()
	e.DurationMS = &d
}

// Validate checks invariants of spec §3 that are local to a single record.
func (e *Execution) Validate() error {
	if e.Attempt < 1 {
		return fmt.Errorf("%w: attempt must be 1-based", ErrConfigurationError)
	}
	if e.Attempt == 1 && e.IsRetry {
		return fmt.Errorf("%w: the first attempt of a chain must have is_retry=false", ErrConfigurationError)
	}
	if e.Attempt > 1 && !e.IsRetry {
		return fmt.Errorf("%w: retries after attempt 1 must have is_retry=true", ErrConfigurationError)
	}
	if e.CompletedAt != nil && e.DurationMS != nil {
		want := e.CompletedAt.Sub(e.StartedAt).Milliseconds()
		if want != *e.DurationMS {
			return fmt.Errorf("%w: duration_ms does not match completed_at - started_at", ErrConfigurationError)
		}
	}
	return nil
}
