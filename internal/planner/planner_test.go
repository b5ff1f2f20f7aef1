package planner

import (
	"context"
	"testing"
	"time"

	"github.com/rezkam/jobcore/internal/clock"
	"github.com/rezkam/jobcore/internal/domain"
	"github.com/rezkam/jobcore/internal/queue/memqueue"
	"github.com/rezkam/jobcore/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlanner(now time.Time) (*Planner, *clock.Fake) {
	fc := clock.NewFake(now)
	p := New(memstore.New(), memqueue.New(), fc)
	return p, fc
}

func baseParams() CreateParams {
	return CreateParams{
		OwnerID:      "owner-1",
		Name:         "nightly-sync",
		Type:         domain.JobTypeHTTP,
		Payload:      domain.Bag{"url": "http://svc/ok"},
		ScheduleType: domain.ScheduleImmediate,
		Priority:     5,
		MaxRetries:   3,
		RetryDelayMS: 5000,
		RetryBackoff: domain.BackoffExponential,
		TimeoutMS:    30000,
	}
}

func TestPlanner_Create_Immediate(t *testing.T) {
	p, _ := newTestPlanner(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	job, err := p.Create(ctx, baseParams())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusActive, job.Status)
	require.NotNil(t, job.NextExecutionAt)
}

func TestPlanner_Create_Recurring_ComputesNextExecution(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := newTestPlanner(now)
	ctx := context.Background()

	params := baseParams()
	params.ScheduleType = domain.ScheduleRecurring
	expr := "*/5 * * * *"
	params.CronExpression = &expr
	params.Timezone = "UTC"

	job, err := p.Create(ctx, params)
	require.NoError(t, err)
	require.NotNil(t, job.NextExecutionAt)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC), *job.NextExecutionAt)
}

func TestPlanner_Create_ScheduledInThePast_Rejected(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)
	p, _ := newTestPlanner(now)
	ctx := context.Background()

	params := baseParams()
	params.ScheduleType = domain.ScheduleScheduled
	past := now.Add(-10 * time.Second)
	params.ScheduledAt = &past

	_, err := p.Create(ctx, params)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidSchedule)
}

func TestPlanner_Trigger_OnlyActive(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := newTestPlanner(now)
	ctx := context.Background()

	job, err := p.Create(ctx, baseParams())
	require.NoError(t, err)

	require.NoError(t, p.Trigger(ctx, job.ID))

	require.NoError(t, p.Pause(ctx, job.ID))
	err = p.Trigger(ctx, job.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIllegalStateTransition)
}

func TestPlanner_PauseResume_Recurring(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, fc := newTestPlanner(now)
	ctx := context.Background()

	params := baseParams()
	params.ScheduleType = domain.ScheduleRecurring
	expr := "*/5 * * * *"
	params.CronExpression = &expr
	params.Timezone = "UTC"

	job, err := p.Create(ctx, params)
	require.NoError(t, err)

	require.NoError(t, p.Pause(ctx, job.ID))
	got, err := p.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPaused, got.Status)

	fc.Set(time.Date(2024, 1, 1, 0, 7, 0, 0, time.UTC))
	require.NoError(t, p.Resume(ctx, job.ID))

	got, err = p.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusActive, got.Status)
	require.NotNil(t, got.NextExecutionAt)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC), *got.NextExecutionAt)
}

func TestPlanner_Reschedule_ToScheduled(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := newTestPlanner(now)
	ctx := context.Background()

	job, err := p.Create(ctx, baseParams())
	require.NoError(t, err)

	future := now.Add(time.Hour)
	err = p.Reschedule(ctx, job.ID, RescheduleParams{ScheduledAt: &future})
	require.NoError(t, err)

	got, err := p.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleScheduled, got.ScheduleType)
	require.NotNil(t, got.NextExecutionAt)
	assert.Equal(t, future, *got.NextExecutionAt)
}

func TestPlanner_Cancel_IsIdempotent(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := newTestPlanner(now)
	ctx := context.Background()

	job, err := p.Create(ctx, baseParams())
	require.NoError(t, err)

	require.NoError(t, p.Cancel(ctx, job.ID))
	require.NoError(t, p.Cancel(ctx, job.ID)) // idempotent, no error

	got, err := p.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, got.Status)
}

func TestPlanner_Delete_RemovesJob(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := newTestPlanner(now)
	ctx := context.Background()

	job, err := p.Create(ctx, baseParams())
	require.NoError(t, err)

	require.NoError(t, p.Delete(ctx, job.ID))

	_, err = p.store.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPlanner_Advance_EndAtReached(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := newTestPlanner(now)

	expr := "*/5 * * * *"
	job := &domain.Job{
		CronExpression: &expr,
		Timezone:       "UTC",
		EndAt:          ptrTime(now.Add(-time.Minute)),
	}

	_, reachedEnd, err := p.Advance(job, now)
	require.NoError(t, err)
	assert.True(t, reachedEnd)
}

func TestPlanner_Advance_ComputesNext(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := newTestPlanner(now)

	expr := "*/5 * * * *"
	job := &domain.Job{CronExpression: &expr, Timezone: "UTC"}

	next, reachedEnd, err := p.Advance(job, now)
	require.NoError(t, err)
	assert.False(t, reachedEnd)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC), *next)
}

func ptrTime(t time.Time) *time.Time { return &t }
