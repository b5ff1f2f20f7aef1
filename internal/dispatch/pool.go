// Package dispatch implements the Worker Pool & Execution Lifecycle (spec
// §4.4): claiming envelopes from the Ready Queue, running one bounded
// attempt per envelope against an executor, and finalizing the outcome
// atomically against the Store.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/rezkam/jobcore/internal/clock"
	"github.com/rezkam/jobcore/internal/domain"
	"github.com/rezkam/jobcore/internal/executor"
	"github.com/rezkam/jobcore/internal/notifier"
	"github.com/rezkam/jobcore/internal/planner"
	"github.com/rezkam/jobcore/internal/queue"
	"github.com/rezkam/jobcore/internal/store"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Pool runs envelopes claimed from a Queue, one goroutine per in-flight
// attempt, bounded by Config.Concurrency (spec §4.4's "at most one in-flight
// attempt per claimed envelope, bounded worker pool of size C").
type Pool struct {
	store     store.Store
	queue     queue.Queue
	planner   *planner.Planner
	executors *executor.Registry
	sink      notifier.Sink
	clock     clock.Clock
	cfg       Config

	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

func New(s store.Store, q queue.Queue, p *planner.Planner, executors *executor.Registry, sink notifier.Sink, c clock.Clock, cfg Config) *Pool {
	if c == nil {
		c = clock.System{}
	}
	if sink == nil {
		sink = notifier.LogSink{}
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return &Pool{
		store:     s,
		queue:     q,
		planner:   p,
		executors: executors,
		sink:      sink,
		clock:     c,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		limiter:   limiter,
	}
}

// Run polls the Ready Queue until ctx is cancelled, dispatching each claimed
// envelope to its own goroutine. It returns once every in-flight attempt has
// finished draining.
func (p *Pool) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.drain()
		default:
		}

		env, err := p.queue.Claim(ctx, p.cfg.VisibilityTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return p.drain()
			}
			slog.ErrorContext(ctx, "claim failed", "error", err)
			env = nil
		}

		if env == nil {
			select {
			case <-ctx.Done():
				return p.drain()
			case <-ticker.C:
			}
			continue
		}

		if err := p.sem.Acquire(ctx, 1); err != nil {
			return p.drain()
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				p.sem.Release(1)
				return p.drain()
			}
		}

		go func(e *queue.Envelope) {
			defer p.sem.Release(1)
			p.handle(context.WithoutCancel(ctx), e)
		}(env)
	}
}

// drain waits for every acquired semaphore slot to be released, i.e. for
// every in-flight attempt to finish, by re-acquiring the full weight.
func (p *Pool) drain() error {
	_ = p.sem.Acquire(context.Background(), int64(p.cfg.Concurrency))
	p.sem.Release(int64(p.cfg.Concurrency))
	return nil
}

func (p *Pool) handle(ctx context.Context, env *queue.Envelope) {
	job, err := p.store.GetJob(ctx, env.JobID)
	if err != nil {
		slog.WarnContext(ctx, "dropping envelope for missing job", "job_id", env.JobID, "error", err)
		_ = p.queue.Ack(ctx, env.ReceiptHandle)
		return
	}
	if job.Status != domain.JobStatusActive {
		// The job was paused/cancelled after this envelope was enqueued.
		_ = p.queue.Ack(ctx, env.ReceiptHandle)
		return
	}

	// A scheduled fire of a recurring job must never run concurrently with a
	// still-running previous instance of the same job (spec §5: drop
	// overlapping recurring fires). Manual triggers are exempt and always
	// carry domain.TriggerPriority.
	if job.ScheduleType == domain.ScheduleRecurring && env.Priority != domain.TriggerPriority {
		running, err := hasRunningExecution(ctx, p.store, job.ID)
		if err != nil {
			slog.ErrorContext(ctx, "overlap check failed", "job_id", job.ID, "error", err)
		} else if running {
			slog.WarnContext(ctx, "skipped_overlap", "job_id", job.ID)
			_ = p.queue.Ack(ctx, env.ReceiptHandle)
			return
		}
	}

	attempt := env.AttemptsMade + 1
	previousID := p.lastExecutionID(ctx, job.ID)

	start := p.clock.Now()
	execID := mustID()
	exec := domain.NewExecution(execID, job.ID, p.cfg.WorkerID, env.AttemptsMade, job.Payload, start, previousID)
	if err := p.store.CreateExecution(ctx, exec); err != nil {
		slog.ErrorContext(ctx, "create execution failed", "job_id", job.ID, "error", err)
		return
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	go p.heartbeat(heartbeatCtx, env.ReceiptHandle)

	deadline := start.Add(time.Duration(job.TimeoutMS) * time.Millisecond)
	output, runErr := p.runAttempt(ctx, job, deadline)
	stopHeartbeat()

	completedAt := p.clock.Now()
	durationMS := completedAt.Sub(start).Milliseconds()

	outcome, kind, retryAt := p.classify(ctx, job, exec, attempt, output, runErr, completedAt, durationMS)

	// The three bookkeeping steps below are independent: a failure in one
	// must not suppress reporting of the others, so their errors are
	// combined rather than each shadowing the last logged one.
	var bookkeepingErr error
	if err := p.store.FinalizeAttempt(ctx, outcome); err != nil {
		bookkeepingErr = multierr.Append(bookkeepingErr, fmt.Errorf("finalize attempt: %w", err))
	}

	if retryAt != nil {
		if err := p.queue.EnqueueDelayed(ctx, job.ID, job.Priority, attempt, *retryAt); err != nil {
			bookkeepingErr = multierr.Append(bookkeepingErr, fmt.Errorf("enqueue retry: %w", err))
		}
	}

	if err := p.queue.Ack(ctx, env.ReceiptHandle); err != nil {
		bookkeepingErr = multierr.Append(bookkeepingErr, fmt.Errorf("ack: %w", err))
	}

	if bookkeepingErr != nil {
		slog.ErrorContext(ctx, "post-attempt bookkeeping failed", "job_id", job.ID, "execution_id", exec.ID, "error", bookkeepingErr)
	}

	p.notify(ctx, job, exec, outcome, runErr, attempt, kind)
}

// outcomeKind names the observable branch classify took, so notify can pick
// the matching event without re-deriving it from FinalizeOutcome fields.
type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetryScheduled
	outcomeMaxRetriesExceeded
	outcomeFailed
)

// hasRunningExecution reports whether jobID has a non-terminal Execution in
// flight. Shared by Pool.handle and Reconciler.SweepOnce, both of which must
// drop an overlapping recurring fire rather than run it concurrently with
// the instance already in progress.
func hasRunningExecution(ctx context.Context, s store.Store, jobID string) (bool, error) {
	execs, err := s.ListExecutions(ctx, jobID, 0)
	if err != nil {
		return false, err
	}
	for _, e := range execs {
		if !e.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (p *Pool) lastExecutionID(ctx context.Context, jobID string) *string {
	execs, err := p.store.ListExecutions(ctx, jobID, 0)
	if err != nil || len(execs) == 0 {
		return nil
	}
	id := execs[len(execs)-1].ID
	return &id
}

// runAttempt invokes the executor with panic recovery (spec §4.4: a
// panicking attempt is classified, never crashes the pool).
func (p *Pool) runAttempt(ctx context.Context, job *domain.Job, deadline time.Time) (output domain.Bag, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return p.executors.Execute(ctx, job.Type, job.Payload, deadline)
}

// classify turns the attempt's outcome into a FinalizeOutcome, the branch
// taken (for notify), and, for a scheduled retry, the instant it becomes
// visible again.
func (p *Pool) classify(ctx context.Context, job *domain.Job, exec *domain.Execution, attempt int, output domain.Bag, runErr error, completedAt time.Time, durationMS int64) (store.FinalizeOutcome, outcomeKind, *time.Time) {
	outcome := store.FinalizeOutcome{
		IdempotencyKey: fmt.Sprintf("%s:%s:finalize", job.ID, exec.ID),
		ExecutionID:    exec.ID,
		JobID:          job.ID,
		CompletedAt:    completedAt,
		DurationMS:     durationMS,
		Result:         output,
		LastExecutedAt: completedAt,
	}

	if runErr == nil {
		outcome.ExecutionStatus = domain.ExecutionCompleted
		outcome.IncrementSuccessful = true
		p.advanceSchedule(ctx, job, completedAt, &outcome)
		return outcome, outcomeSuccess, nil
	}

	outcome.ExecError = &domain.ExecutionError{Message: runErr.Error()}
	var pe domain.PanicError
	if errors.As(runErr, &pe) {
		outcome.ExecError.Stack = pe.Stack
	}
	outcome.IncrementFailed = true

	switch {
	case errors.Is(runErr, context.DeadlineExceeded):
		outcome.ExecutionStatus = domain.ExecutionTimeout
	case domain.IsJobCancelled(runErr):
		outcome.ExecutionStatus = domain.ExecutionCancelled
	default:
		outcome.ExecutionStatus = domain.ExecutionFailed
	}

	permanent := domain.IsPanic(runErr) || domain.IsJobCancelled(runErr)
	if !permanent && !job.IsLastAttempt(attempt) {
		retryAt := completedAt.Add(job.RetryDelay(attempt))
		outcome.NextExecutionAt = &retryAt
		return outcome, outcomeRetryScheduled, &retryAt
	}

	if domain.IsJobCancelled(runErr) {
		outcome.JobStatus = domain.JobStatusCancelled
		outcome.ClearNextExec = true
		return outcome, outcomeFailed, nil
	}

	kind := outcomeFailed
	if !permanent {
		// Retryable, but this was the last attempt the job's budget allows.
		kind = outcomeMaxRetriesExceeded
	}

	if job.ScheduleType == domain.ScheduleRecurring {
		// The calendar keeps firing independent of this chain's outcome;
		// only the chain itself is terminal.
		p.advanceSchedule(ctx, job, completedAt, &outcome)
	} else {
		outcome.JobStatus = domain.JobStatusFailed
		outcome.ClearNextExec = true
	}
	return outcome, kind, nil
}

// advanceSchedule computes the job's next fire instant (or terminal state)
// and, for a still-live recurring job, enqueues that next occurrence
// directly (spec §4.3: the chain re-enqueues its own successor).
func (p *Pool) advanceSchedule(ctx context.Context, job *domain.Job, now time.Time, outcome *store.FinalizeOutcome) {
	if job.ScheduleType != domain.ScheduleRecurring {
		outcome.JobStatus = domain.JobStatusCompleted
		outcome.ClearNextExec = true
		return
	}
	next, reachedEnd, err := p.planner.Advance(job, now)
	if err != nil {
		slog.Error("schedule advance failed", "job_id", job.ID, "error", err)
		return
	}
	if reachedEnd {
		outcome.JobStatus = domain.JobStatusCompleted
		outcome.ClearNextExec = true
		return
	}
	outcome.NextExecutionAt = next
	if err := p.queue.EnqueueDelayed(ctx, job.ID, job.Priority, 0, *next); err != nil {
		slog.ErrorContext(ctx, "enqueue next occurrence failed", "job_id", job.ID, "error", err)
	}
}

func (p *Pool) heartbeat(ctx context.Context, receiptHandle string) {
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.queue.ExtendVisibility(ctx, receiptHandle, p.cfg.VisibilityTimeout); err != nil {
				slog.Warn("extend visibility failed", "error", err)
			}
		}
	}
}

func (p *Pool) notify(ctx context.Context, job *domain.Job, exec *domain.Execution, outcome store.FinalizeOutcome, runErr error, attempt int, kind outcomeKind) {
	exec.Finish(outcome.ExecutionStatus, outcome.CompletedAt)
	switch kind {
	case outcomeSuccess:
		p.sink.NotifyJobCompleted(ctx, notifier.JobCompleted{Job: job, Execution: exec, DurationMS: outcome.DurationMS})
	case outcomeRetryScheduled:
		p.sink.NotifyJobRetry(ctx, notifier.JobRetry{Job: job, Attempt: attempt, MaxRetries: job.MaxRetries, ErrorMessage: runErr.Error()})
	case outcomeMaxRetriesExceeded:
		p.sink.NotifyMaxRetriesExceeded(ctx, notifier.MaxRetriesExceeded{Job: job, MaxRetries: job.MaxRetries, LastError: runErr.Error()})
	default:
		p.sink.NotifyJobFailed(ctx, notifier.JobFailed{Job: job, Execution: exec, Error: runErr.Error(), Attempts: attempt})
	}
}

func mustID() string {
	id, err := domain.NewID()
	if err != nil {
		return "unknown"
	}
	return id
}
