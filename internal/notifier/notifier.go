// Package notifier fans out completion/failure/retry/permanent-failure
// events (spec §2 item 7, §4.5). The concrete transport (email or
// equivalent) is an external collaborator per spec §1 Non-goals; this
// package only defines the trigger points and a best-effort dispatch.
package notifier

import (
	"context"
	"log/slog"

	"github.com/rezkam/jobcore/internal/domain"
)

// JobCompleted is emitted when an attempt finishes successfully.
type JobCompleted struct {
	Job        *domain.Job
	Execution  *domain.Execution
	DurationMS int64
}

// JobRetry is emitted when a failed attempt is scheduled for retry.
type JobRetry struct {
	Job          *domain.Job
	Attempt      int
	MaxRetries   int
	ErrorMessage string
}

// MaxRetriesExceeded is emitted when a job exhausts its retry budget.
type MaxRetriesExceeded struct {
	Job        *domain.Job
	MaxRetries int
	LastError  string
}

// JobFailed is emitted when a job attempt fails permanently (not retried).
type JobFailed struct {
	Job       *domain.Job
	Execution *domain.Execution
	Error     string
	Attempts  int
}

// Sink fans out scheduler events to the owner's preferred channel. Event
// emission is best-effort: a Sink failure must never alter job/execution
// state (spec §4.5), so callers log and continue rather than propagate Sink
// errors into the dispatch pipeline.
type Sink interface {
	NotifyJobCompleted(ctx context.Context, e JobCompleted)
	NotifyJobRetry(ctx context.Context, e JobRetry)
	NotifyMaxRetriesExceeded(ctx context.Context, e MaxRetriesExceeded)
	NotifyJobFailed(ctx context.Context, e JobFailed)
}

// LogSink is the default Sink: structured logging only, no external
// transport. Production deployments wire a real transport (e-mail/SMTP or
// equivalent) behind the same interface; that transport is out of scope
// here per spec §1.
type LogSink struct{}

func (LogSink) NotifyJobCompleted(ctx context.Context, e JobCompleted) {
	slog.InfoContext(ctx, "job_completed", "job_id", e.Job.ID, "execution_id", e.Execution.ID, "duration_ms", e.DurationMS)
}

func (LogSink) NotifyJobRetry(ctx context.Context, e JobRetry) {
	slog.InfoContext(ctx, "job_retry", "job_id", e.Job.ID, "attempt", e.Attempt, "max_retries", e.MaxRetries, "error", e.ErrorMessage)
}

func (LogSink) NotifyMaxRetriesExceeded(ctx context.Context, e MaxRetriesExceeded) {
	slog.WarnContext(ctx, "max_retries_exceeded", "job_id", e.Job.ID, "max_retries", e.MaxRetries, "last_error", e.LastError)
}

func (LogSink) NotifyJobFailed(ctx context.Context, e JobFailed) {
	slog.ErrorContext(ctx, "job_failed", "job_id", e.Job.ID, "execution_id", e.Execution.ID, "error", e.Error, "attempts", e.Attempts)
}
