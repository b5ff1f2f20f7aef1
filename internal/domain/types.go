package domain

import (
	"fmt"
	"strings"
)

// JobType selects the executor adapter a Job dispatches to. Immutable
// after creation.
type JobType string

const (
	JobTypeHTTP    JobType = "http"
	JobTypeWebhook JobType = "webhook"
	JobTypeScript  JobType = "script"
	JobTypeEmail   JobType = "email"
	JobTypeCustom  JobType = "custom"
)

// NewJobType validates and creates a JobType.
func NewJobType(s string) (JobType, error) {
	t := JobType(strings.ToLower(s))
	switch t {
	case JobTypeHTTP, JobTypeWebhook, JobTypeScript, JobTypeEmail, JobTypeCustom:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown job type %q", ErrConfigurationError, s)
	}
}

// ScheduleType selects how a Job's next_execution_at is produced.
type ScheduleType string

const (
	ScheduleImmediate ScheduleType = "immediate"
	ScheduleScheduled ScheduleType = "scheduled"
	ScheduleRecurring ScheduleType = "recurring"
)

// NewScheduleType validates and creates a ScheduleType.
func NewScheduleType(s string) (ScheduleType, error) {
	t := ScheduleType(strings.ToLower(s))
	switch t {
	case ScheduleImmediate, ScheduleScheduled, ScheduleRecurring:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, s)
	}
}

// JobStatus is the lifecycle state driven by the Scheduling Planner's state
// machine (spec §4.2).
type JobStatus string

const (
	JobStatusActive    JobStatus = "active"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether status is one the planner no longer schedules
// from (completed, failed, cancelled).
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// RetryBackoff selects the delay growth function between retry attempts.
type RetryBackoff string

const (
	BackoffFixed       RetryBackoff = "fixed"
	BackoffExponential RetryBackoff = "exponential"
)

// NewRetryBackoff validates and creates a RetryBackoff.
func NewRetryBackoff(s string) (RetryBackoff, error) {
	b := RetryBackoff(strings.ToLower(s))
	switch b {
	case BackoffFixed, BackoffExponential:
		return b, nil
	default:
		return "", fmt.Errorf("%w: unknown retry backoff %q", ErrConfigurationError, s)
	}
}

// ExecutionStatus is the lifecycle state of a single attempt (spec §3).
// Once it leaves Pending/Running it is terminal.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
	ExecutionTimeout   ExecutionStatus = "timeout"
)

// IsTerminal reports whether status is one that no longer transitions.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionPending, ExecutionRunning:
		return false
	default:
		return true
	}
}

// LogLevel classifies a JobLog entry.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)
