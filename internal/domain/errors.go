package domain

import "errors"

// Error kinds surfaced by the core (spec §7). Callers match with
// errors.Is/errors.As; wrapped detail is added with fmt.Errorf("%w: ...").
var (
	// ErrNotFound is returned when a job or execution does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSchedule covers bad cron expressions, scheduled times in the
	// past, and missing required fields for the chosen schedule type.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrIllegalStateTransition covers planner actions rejected by the job
	// status state machine (e.g. trigger on a paused job, resume on active).
	ErrIllegalStateTransition = errors.New("illegal state transition")

	// ErrQueueUnavailable indicates the ready queue backend is unreachable.
	ErrQueueUnavailable = errors.New("queue unavailable")

	// ErrStoreUnavailable indicates the durable store backend is unreachable.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTimeoutElapsed indicates an attempt exceeded its job's timeout_ms.
	ErrTimeoutElapsed = errors.New("timeout elapsed")

	// ErrAdapterFailure indicates an executor returned a non-success outcome.
	ErrAdapterFailure = errors.New("adapter failure")

	// ErrConfigurationError indicates an unknown job type or unknown custom
	// handler name.
	ErrConfigurationError = errors.New("configuration error")
)
