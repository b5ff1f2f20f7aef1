package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseJob() Job {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return Job{
		ID:           "job-1",
		Name:         "nightly-sync",
		Type:         JobTypeHTTP,
		ScheduleType: ScheduleImmediate,
		Status:       JobStatusActive,
		Priority:     5,
		MaxRetries:   3,
		RetryDelayMS: 5000,
		RetryBackoff: BackoffExponential,
		TimeoutMS:    30000,
		CreatedAt:    now,
	}
}

func TestJob_Validate_Immediate(t *testing.T) {
	j := baseJob()
	require.NoError(t, j.Validate())
}

func TestJob_Validate_ScheduledRequiresFutureTime(t *testing.T) {
	j := baseJob()
	j.ScheduleType = ScheduleScheduled
	past := j.CreatedAt.Add(-10 * time.Second)
	j.ScheduledAt = &past

	err := j.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestJob_Validate_ScheduledMissingScheduledAt(t *testing.T) {
	j := baseJob()
	j.ScheduleType = ScheduleScheduled

	err := j.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestJob_Validate_RecurringRequiresCronExpression(t *testing.T) {
	j := baseJob()
	j.ScheduleType = ScheduleRecurring

	err := j.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestJob_Validate_RecurringOK(t *testing.T) {
	j := baseJob()
	j.ScheduleType = ScheduleRecurring
	expr := "*/5 * * * *"
	j.CronExpression = &expr

	require.NoError(t, j.Validate())
}

func TestJob_Validate_CounterInvariant(t *testing.T) {
	j := baseJob()
	j.TotalExecutions = 1
	j.SuccessfulExecutions = 1
	j.FailedExecutions = 1

	err := j.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigurationError)
}

func TestJob_Validate_TerminalMustNotHaveNextExecution(t *testing.T) {
	j := baseJob()
	j.Status = JobStatusCompleted
	next := j.CreatedAt.Add(time.Hour)
	j.NextExecutionAt = &next

	err := j.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigurationError)
}

func TestJob_Validate_PriorityBounds(t *testing.T) {
	j := baseJob()
	j.Priority = 11

	err := j.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigurationError)
}

func TestJob_Validate_TimeoutBounds(t *testing.T) {
	j := baseJob()
	j.TimeoutMS = 500 // below 1s minimum

	err := j.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigurationError)
}

func TestJob_RetryDelay_Fixed(t *testing.T) {
	j := baseJob()
	j.RetryBackoff = BackoffFixed

	assert.Equal(t, 5*time.Second, j.RetryDelay(1))
	assert.Equal(t, 5*time.Second, j.RetryDelay(2))
	assert.Equal(t, 5*time.Second, j.RetryDelay(3))
}

func TestJob_RetryDelay_Exponential(t *testing.T) {
	j := baseJob()
	j.RetryBackoff = BackoffExponential

	assert.Equal(t, 5*time.Second, j.RetryDelay(1))
	assert.Equal(t, 10*time.Second, j.RetryDelay(2))
	assert.Equal(t, 20*time.Second, j.RetryDelay(3))
}

func TestJob_IsLastAttempt(t *testing.T) {
	j := baseJob()
	j.MaxRetries = 2

	assert.False(t, j.IsLastAttempt(1))
	assert.False(t, j.IsLastAttempt(2))
	assert.True(t, j.IsLastAttempt(3))
}

func TestJob_ReachedEndCondition_EndAt(t *testing.T) {
	j := baseJob()
	now := j.CreatedAt.Add(2 * time.Hour)
	endAt := j.CreatedAt.Add(time.Hour)
	j.EndAt = &endAt

	assert.True(t, j.ReachedEndCondition(now))
}

func TestJob_ReachedEndCondition_MaxExecutions(t *testing.T) {
	j := baseJob()
	max := 3
	j.MaxExecutions = &max
	j.TotalExecutions = 3

	assert.True(t, j.ReachedEndCondition(j.CreatedAt))
}

func TestJob_ReachedEndCondition_NotReached(t *testing.T) {
	j := baseJob()
	max := 3
	j.MaxExecutions = &max
	j.TotalExecutions = 1

	assert.False(t, j.ReachedEndCondition(j.CreatedAt))
}
