// Package planner implements the Scheduling Planner (spec §4.2): the
// only component allowed to translate user intents into Job state
// transitions and Ready Queue registrations.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/rezkam/jobcore/internal/calendar"
	"github.com/rezkam/jobcore/internal/clock"
	"github.com/rezkam/jobcore/internal/domain"
	"github.com/rezkam/jobcore/internal/queue"
	"github.com/rezkam/jobcore/internal/store"
)

// Planner is synchronous w.r.t. each request (spec §5): every method
// returns only after the store row is updated and the queue has
// acknowledged the registration change.
type Planner struct {
	store store.Store
	queue queue.Queue
	clock clock.Clock
}

// New constructs a Planner over the given Store and Queue.
func New(s store.Store, q queue.Queue, c clock.Clock) *Planner {
	if c == nil {
		c = clock.System{}
	}
	return &Planner{store: s, queue: q, clock: c}
}

// CreateParams carries the user-supplied fields of spec §3's Job.
type CreateParams struct {
	OwnerID string

	Name        string
	Description string
	Tags        []string
	Metadata    domain.Bag

	Type    domain.JobType
	Payload domain.Bag

	ScheduleType   domain.ScheduleType
	ScheduledAt    *time.Time
	CronExpression *string
	Timezone       string

	Priority     int
	MaxRetries   int
	RetryDelayMS int
	RetryBackoff domain.RetryBackoff
	TimeoutMS    int

	EndAt         *time.Time
	MaxExecutions *int
}

// Create validates inputs, computes the initial next_execution_at,
// persists the job, and registers it with the Ready Queue (spec §4.2
// Create).
func (p *Planner) Create(ctx context.Context, params CreateParams) (*domain.Job, error) {
	now := p.clock.Now()

	id, err := domain.NewID()
	if err != nil {
		return nil, err
	}

	tz := params.Timezone
	if tz == "" {
		tz = "UTC"
	}

	job := &domain.Job{
		ID:             id,
		OwnerID:        params.OwnerID,
		Name:           params.Name,
		Description:    params.Description,
		Tags:           params.Tags,
		Metadata:       params.Metadata,
		Type:           params.Type,
		Payload:        params.Payload,
		ScheduleType:   params.ScheduleType,
		ScheduledAt:    params.ScheduledAt,
		CronExpression: params.CronExpression,
		Timezone:       tz,
		Status:         domain.JobStatusActive,
		Priority:       params.Priority,
		MaxRetries:     params.MaxRetries,
		RetryDelayMS:   params.RetryDelayMS,
		RetryBackoff:   params.RetryBackoff,
		TimeoutMS:      params.TimeoutMS,
		EndAt:          params.EndAt,
		MaxExecutions:  params.MaxExecutions,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	next, err := p.computeInitialNextExecution(job, now)
	if err != nil {
		return nil, err
	}
	job.NextExecutionAt = next

	if err := p.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if err := p.register(ctx, job, now); err != nil {
		return nil, err
	}

	return job, nil
}

func (p *Planner) computeInitialNextExecution(job *domain.Job, now time.Time) (*time.Time, error) {
	switch job.ScheduleType {
	case domain.ScheduleImmediate:
		return &now, nil
	case domain.ScheduleScheduled:
		return job.ScheduledAt, nil
	case domain.ScheduleRecurring:
		next, err := calendar.Next(*job.CronExpression, job.Timezone, now)
		if err != nil {
			return nil, err
		}
		return &next, nil
	default:
		return nil, fmt.Errorf("%w: unknown schedule_type %q", domain.ErrInvalidSchedule, job.ScheduleType)
	}
}

// register performs the Ready Queue registration step shared by Create,
// Resume, and Reschedule (spec §4.2). For a recurring job it both records
// the repeatable registration (used by Pause/Cancel bookkeeping) and
// enqueues the next occurrence directly: the Ready Queue backends do not
// run their own calendar, so each recurring chain re-enqueues its own
// successor once it fires (spec §4.3, GLOSSARY "Repeatable registration").
func (p *Planner) register(ctx context.Context, job *domain.Job, now time.Time) error {
	switch job.ScheduleType {
	case domain.ScheduleImmediate:
		return p.queue.EnqueueImmediate(ctx, job.ID, job.Priority, 0)
	case domain.ScheduleScheduled:
		if job.ScheduledAt == nil || !job.ScheduledAt.After(now) {
			return fmt.Errorf("%w: scheduled_at must be in the future", domain.ErrInvalidSchedule)
		}
		return p.queue.EnqueueDelayed(ctx, job.ID, job.Priority, 0, *job.ScheduledAt)
	case domain.ScheduleRecurring:
		if err := p.queue.RegisterRepeatable(ctx, job.ID, *job.CronExpression, job.Timezone, job.Priority); err != nil {
			return err
		}
		if job.NextExecutionAt == nil {
			return fmt.Errorf("%w: recurring job has no next_execution_at to enqueue", domain.ErrInvalidSchedule)
		}
		return p.queue.EnqueueDelayed(ctx, job.ID, job.Priority, 0, *job.NextExecutionAt)
	default:
		return fmt.Errorf("%w: unknown schedule_type %q", domain.ErrInvalidSchedule, job.ScheduleType)
	}
}

// Trigger enqueues a one-shot attempt at the highest priority tier.
// Allowed only on active jobs (spec §4.2 Trigger). It does not advance
// next_execution_at.
func (p *Planner) Trigger(ctx context.Context, jobID string) error {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusActive {
		return fmt.Errorf("%w: trigger is only allowed on active jobs", domain.ErrIllegalStateTransition)
	}

	if err := p.queue.EnqueueImmediate(ctx, job.ID, domain.TriggerPriority, 0); err != nil {
		return err
	}

	return p.store.AppendLog(ctx, domain.NewJobLog(mustID(), job.ID, nil, domain.LogLevelInfo, "manually triggered", nil, p.clock.Now()))
}

// Pause removes pending/delayed queue entries (and any repeatable
// registration) and transitions the job to paused (spec §4.2 Pause).
// In-flight attempts complete naturally.
func (p *Planner) Pause(ctx context.Context, jobID string) error {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusActive {
		return fmt.Errorf("%w: pause is only allowed on active jobs", domain.ErrIllegalStateTransition)
	}

	if err := p.removeRegistration(ctx, job); err != nil {
		return err
	}
	return p.store.UpdateJobStatus(ctx, job.ID, domain.JobStatusActive, domain.JobStatusPaused)
}

// Resume recomputes next_execution_at (for recurring jobs) and
// re-registers with the Ready Queue using Create's rules, then activates
// the job (spec §4.2 Resume).
func (p *Planner) Resume(ctx context.Context, jobID string) error {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusPaused {
		return fmt.Errorf("%w: resume is only allowed on paused jobs", domain.ErrIllegalStateTransition)
	}

	now := p.clock.Now()
	next, err := p.computeInitialNextExecution(job, now)
	if err != nil {
		return err
	}
	job.NextExecutionAt = next

	if err := p.register(ctx, job, now); err != nil {
		return err
	}
	if err := p.store.UpdateJobSchedule(ctx, job.ID, next); err != nil {
		return err
	}
	return p.store.UpdateJobStatus(ctx, job.ID, domain.JobStatusPaused, domain.JobStatusActive)
}

// RescheduleParams selects the job's new schedule; exactly one of the two
// forms is supplied (spec §4.2 Reschedule).
type RescheduleParams struct {
	ScheduledAt    *time.Time
	CronExpression *string
	Timezone       string
}

// Reschedule switches the job to a new scheduled or recurring schedule,
// removing prior registrations and re-registering (spec §4.2 Reschedule).
func (p *Planner) Reschedule(ctx context.Context, jobID string, params RescheduleParams) error {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusActive && job.Status != domain.JobStatusPaused {
		return fmt.Errorf("%w: reschedule is not allowed on a terminal job", domain.ErrIllegalStateTransition)
	}

	if err := p.removeRegistration(ctx, job); err != nil {
		return err
	}

	now := p.clock.Now()
	switch {
	case params.ScheduledAt != nil:
		if !params.ScheduledAt.After(now) {
			return fmt.Errorf("%w: scheduled_at must be in the future", domain.ErrInvalidSchedule)
		}
		job.ScheduleType = domain.ScheduleScheduled
		job.ScheduledAt = params.ScheduledAt
		job.CronExpression = nil
	case params.CronExpression != nil:
		if err := calendar.Validate(*params.CronExpression); err != nil {
			return err
		}
		job.ScheduleType = domain.ScheduleRecurring
		job.CronExpression = params.CronExpression
		if params.Timezone != "" {
			job.Timezone = params.Timezone
		}
	default:
		return fmt.Errorf("%w: reschedule requires scheduled_at or cron_expression", domain.ErrInvalidSchedule)
	}

	next, err := p.computeInitialNextExecution(job, now)
	if err != nil {
		return err
	}
	job.NextExecutionAt = next

	if job.Status == domain.JobStatusActive {
		if err := p.register(ctx, job, now); err != nil {
			return err
		}
	}
	return p.store.UpdateJobSchedule(ctx, job.ID, next)
}

// Cancel removes queue entries and transitions the job to cancelled. It is
// idempotent on an already-terminal job (spec §4.2 state table).
func (p *Planner) Cancel(ctx context.Context, jobID string) error {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil // idempotent
	}

	if err := p.removeRegistration(ctx, job); err != nil {
		return err
	}
	return p.store.UpdateJobStatus(ctx, job.ID, job.Status, domain.JobStatusCancelled)
}

// Delete performs Cancel then removes all persistent state (spec §4.2
// Cancel / Delete).
func (p *Planner) Delete(ctx context.Context, jobID string) error {
	if err := p.Cancel(ctx, jobID); err != nil {
		return err
	}
	return p.store.DeleteJob(ctx, jobID)
}

func (p *Planner) removeRegistration(ctx context.Context, job *domain.Job) error {
	if err := p.queue.RemovePending(ctx, job.ID); err != nil {
		return err
	}
	if job.ScheduleType == domain.ScheduleRecurring {
		return p.queue.UnregisterRepeatable(ctx, job.ID)
	}
	return nil
}

// Advance computes the post-attempt recurring advance (spec §4.2): the
// next fire instant and whether the job has reached an end condition. It
// is a pure function over job state so the dispatch pipeline can fold the
// result into its atomic finalize write rather than issuing a second
// store round-trip (spec §5: "the planner never writes counters").
func (p *Planner) Advance(job *domain.Job, now time.Time) (nextExecutionAt *time.Time, reachedEnd bool, err error) {
	if job.ReachedEndCondition(now) {
		return nil, true, nil
	}
	next, err := calendar.Next(*job.CronExpression, job.Timezone, now)
	if err != nil {
		return nil, false, err
	}
	return &next, false, nil
}

func mustID() string {
	id, err := domain.NewID()
	if err != nil {
		// uuid.NewV7 only fails if the OS entropy source is broken; a log
		// line is created best-effort, so fall back to a constant rather
		// than propagating.
		return "unknown"
	}
	return id
}
