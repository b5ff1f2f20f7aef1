// Package store defines the durable Store port (spec §2 item 3, §3, §6):
// transactional persistence for jobs, executions, and job logs, with
// indexed queries on scheduling and status fields.
package store

import (
	"context"
	"time"

	"github.com/rezkam/jobcore/internal/domain"
)

// FinalizeOutcome describes the atomic write produced by a worker's
// finalize step (spec §4.4): it updates the triggering Execution record and
// the owning Job's counters/status/next_execution_at together.
type FinalizeOutcome struct {
	// IdempotencyKey is (job_id, execution_id, "finalize") per spec §4.4's
	// at-least-once reconciliation rule: a re-delivered finalize for an
	// execution that is already terminal must be a no-op, not a double count.
	IdempotencyKey string

	ExecutionID string
	JobID       string

	ExecutionStatus domain.ExecutionStatus
	CompletedAt     time.Time
	DurationMS      int64
	Result          domain.Bag
	ExecError       *domain.ExecutionError

	// JobStatus, when non-empty, transitions the job row as part of the
	// same atomic write (e.g. → completed, → failed).
	JobStatus domain.JobStatus
	// NextExecutionAt, when non-nil, replaces the job's next fire instant.
	// ClearNextExec clears it instead (job reached a terminal state).
	NextExecutionAt *time.Time
	ClearNextExec   bool

	IncrementSuccessful bool
	IncrementFailed     bool
	LastExecutedAt      time.Time
}

// Store is the durable persistence port for jobs, executions, and logs.
// Implementations must apply FinalizeAttempt atomically with respect to a
// single job row (spec §4.4's "atomically w.r.t. counters and status").
type Store interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobsByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]*domain.Job, error)
	ListJobsByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.Job, error)
	// ListDueRecurringJobs returns active recurring jobs whose
	// next_execution_at is null or not after "before" — the reconciliation
	// sweep's input set (SPEC_FULL EXPANDED MODULES, Scheduling Planner).
	ListDueRecurringJobs(ctx context.Context, before time.Time, limit int) ([]*domain.Job, error)

	// UpdateJobStatus performs a conditional (from → to) status transition,
	// returning domain.ErrIllegalStateTransition if the row's current status
	// is not "from". This is the single-writer guard for the planner's
	// state machine (spec §4.2) under concurrent callers.
	UpdateJobStatus(ctx context.Context, id string, from, to domain.JobStatus) error
	UpdateJobSchedule(ctx context.Context, id string, nextExecutionAt *time.Time) error
	DeleteJob(ctx context.Context, id string) error

	CreateExecution(ctx context.Context, exec *domain.Execution) error
	GetExecution(ctx context.Context, id string) (*domain.Execution, error)
	ListExecutions(ctx context.Context, jobID string, limit int) ([]*domain.Execution, error)

	// FinalizeAttempt applies the atomic write described by outcome,
	// returning without error (and without double-applying) if
	// outcome.IdempotencyKey was already applied.
	FinalizeAttempt(ctx context.Context, outcome FinalizeOutcome) error

	AppendLog(ctx context.Context, line domain.JobLog) error
	ListLogs(ctx context.Context, jobID string, limit int) ([]domain.JobLog, error)

	// AcquireLease grants holderID exclusive ownership of name for ttl,
	// stealing any expired lease it finds (crash recovery). Used by the
	// reconciliation sweep to guarantee single-instance execution across a
	// worker fleet (SPEC_FULL EXPANDED MODULES, Scheduling Planner).
	AcquireLease(ctx context.Context, name, holderID string, ttl time.Duration) (acquired bool, err error)
	// ReleaseLease gives up a lease this holder currently owns. A no-op if
	// the lease already expired or is held by someone else.
	ReleaseLease(ctx context.Context, name, holderID string) error

	Close() error
}
