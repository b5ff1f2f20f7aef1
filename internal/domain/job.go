package domain

import (
	"fmt"
	"time"
)

const (
	MinPriority = 0
	MaxPriority = 10

	MinRetries = 0
	MaxRetries = 10

	MinTimeout = time.Second
	MaxTimeout = time.Hour

	// TriggerPriority is the elevated priority tier used by manual triggers
	// (spec §4.2 Trigger): always above any user-assigned priority.
	TriggerPriority = MaxPriority + 1
)

// Job is a persistent specification of work with a schedule (spec §3).
type Job struct {
	ID      string
	OwnerID string

	Name        string
	Description string
	Tags        []string
	Metadata    Bag

	Type    JobType
	Payload Bag

	ScheduleType   ScheduleType
	ScheduledAt    *time.Time
	CronExpression *string
	Timezone       string

	Status JobStatus

	Priority     int
	MaxRetries   int
	RetryDelayMS int
	RetryBackoff RetryBackoff
	TimeoutMS    int

	LastExecutedAt  *time.Time
	NextExecutionAt *time.Time

	TotalExecutions      int
	SuccessfulExecutions int
	FailedExecutions     int

	EndAt         *time.Time
	MaxExecutions *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the invariants of spec §3 that do not depend on wall-clock
// "now" (the scheduled-in-the-past check belongs to the planner, which knows
// the current instant it is creating against).
func (j *Job) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSchedule)
	}
	if j.Priority < MinPriority || j.Priority > MaxPriority {
		return fmt.Errorf("%w: priority must be in [%d, %d]", ErrConfigurationError, MinPriority, MaxPriority)
	}
	if j.MaxRetries < MinRetries || j.MaxRetries > MaxRetries {
		return fmt.Errorf("%w: max_retries must be in [%d, %d]", ErrConfigurationError, MinRetries, MaxRetries)
	}
	if j.RetryDelayMS <= 0 {
		return fmt.Errorf("%w: retry_delay_ms must be positive", ErrConfigurationError)
	}
	timeout := time.Duration(j.TimeoutMS) * time.Millisecond
	if timeout < MinTimeout || timeout > MaxTimeout {
		return fmt.Errorf("%w: timeout_ms must be between %s and %s", ErrConfigurationError, MinTimeout, MaxTimeout)
	}

	switch j.ScheduleType {
	case ScheduleScheduled:
		if j.ScheduledAt == nil {
			return fmt.Errorf("%w: scheduled_at is required for schedule_type=scheduled", ErrInvalidSchedule)
		}
		if !j.ScheduledAt.After(j.CreatedAt) {
			return fmt.Errorf("%w: scheduled_at must be after created_at", ErrInvalidSchedule)
		}
	case ScheduleRecurring:
		if j.CronExpression == nil || *j.CronExpression == "" {
			return fmt.Errorf("%w: cron_expression is required for schedule_type=recurring", ErrInvalidSchedule)
		}
	case ScheduleImmediate:
		// no additional fields required
	default:
		return fmt.Errorf("%w: unknown schedule_type %q", ErrInvalidSchedule, j.ScheduleType)
	}

	if j.SuccessfulExecutions+j.FailedExecutions > j.TotalExecutions {
		return fmt.Errorf("%w: successful_executions + failed_executions exceeds total_executions", ErrConfigurationError)
	}
	if j.Status.IsTerminal() && j.NextExecutionAt != nil {
		return fmt.Errorf("%w: terminal job must not carry a next_execution_at", ErrConfigurationError)
	}
	return nil
}

// RetryDelay returns the delay before the given failed attempt's retry,
// following spec §4.4 step 4's exact (non-jittered) formula:
// retry_delay_ms × (2^(attempt-1) if backoff is exponential, else 1).
func (j *Job) RetryDelay(attempt int) time.Duration {
	base := time.Duration(j.RetryDelayMS) * time.Millisecond
	if j.RetryBackoff != BackoffExponential {
		return base
	}
	multiplier := 1 << uint(attempt-1)
	return base * time.Duration(multiplier)
}

// IsLastAttempt reports whether attempt is the final one the job's
// max_retries budget allows: the initial try counts as attempt 1, so up to
// max_retries additional attempts follow.
func (j *Job) IsLastAttempt(attempt int) bool {
	return attempt >= j.MaxRetries+1
}

// ReachedEndCondition reports whether a recurring job should terminate
// given the current instant, per spec §4.2's post-attempt advance step.
func (j *Job) ReachedEndCondition(now time.Time) bool {
	if j.EndAt != nil && !j.EndAt.After(now) {
		return true
	}
	if j.MaxExecutions != nil && j.TotalExecutions >= *j.MaxExecutions {
		return true
	}
	return false
}
