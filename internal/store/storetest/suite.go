// Package storetest runs a standard behavioral battery against any
// store.Store implementation, grounded on the teacher's
// internal/storage/compliance.RunStorageComplianceTest pattern.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/rezkam/jobcore/internal/domain"
	"github.com/rezkam/jobcore/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a fresh store.Store instance returned by setup. cleanup is
// invoked after each subtest for teardown.
func Run(t *testing.T, setup func() (store.Store, func())) {
	t.Run("CreateAndGetJob", func(t *testing.T) {
		s, teardown := setup()
		defer teardown()
		ctx := context.Background()

		job := newTestJob("job-1")
		require.NoError(t, s.CreateJob(ctx, job))

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.Name, got.Name)
		assert.Equal(t, job.Status, got.Status)
	})

	t.Run("GetMissingJob", func(t *testing.T) {
		s, teardown := setup()
		defer teardown()
		ctx := context.Background()

		_, err := s.GetJob(ctx, "does-not-exist")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ListJobsByStatus", func(t *testing.T) {
		s, teardown := setup()
		defer teardown()
		ctx := context.Background()

		active := newTestJob("job-active")
		paused := newTestJob("job-paused")
		paused.Status = domain.JobStatusPaused
		require.NoError(t, s.CreateJob(ctx, active))
		require.NoError(t, s.CreateJob(ctx, paused))

		got, err := s.ListJobsByStatus(ctx, domain.JobStatusActive, 0)
		require.NoError(t, err)
		ids := make(map[string]bool)
		for _, j := range got {
			ids[j.ID] = true
		}
		assert.True(t, ids["job-active"])
		assert.False(t, ids["job-paused"])
	})

	t.Run("UpdateJobStatus_RejectsWrongFrom", func(t *testing.T) {
		s, teardown := setup()
		defer teardown()
		ctx := context.Background()

		job := newTestJob("job-2")
		require.NoError(t, s.CreateJob(ctx, job))

		err := s.UpdateJobStatus(ctx, job.ID, domain.JobStatusPaused, domain.JobStatusActive)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrIllegalStateTransition)
	})

	t.Run("UpdateJobStatus_Succeeds", func(t *testing.T) {
		s, teardown := setup()
		defer teardown()
		ctx := context.Background()

		job := newTestJob("job-3")
		require.NoError(t, s.CreateJob(ctx, job))

		require.NoError(t, s.UpdateJobStatus(ctx, job.ID, domain.JobStatusActive, domain.JobStatusPaused))

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusPaused, got.Status)
	})

	t.Run("DeleteJobCascadesExecutionsAndLogs", func(t *testing.T) {
		s, teardown := setup()
		defer teardown()
		ctx := context.Background()

		job := newTestJob("job-4")
		require.NoError(t, s.CreateJob(ctx, job))

		exec := domain.NewExecution("exec-1", job.ID, "worker-1", 0, nil, time.Now().UTC(), nil)
		require.NoError(t, s.CreateExecution(ctx, exec))
		require.NoError(t, s.AppendLog(ctx, domain.NewJobLog("log-1", job.ID, nil, domain.LogLevelInfo, "started", nil, time.Now().UTC())))

		require.NoError(t, s.DeleteJob(ctx, job.ID))

		_, err := s.GetJob(ctx, job.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = s.GetExecution(ctx, exec.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		logs, err := s.ListLogs(ctx, job.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, logs)
	})

	t.Run("FinalizeAttempt_UpdatesJobCountersAndExecution", func(t *testing.T) {
		s, teardown := setup()
		defer teardown()
		ctx := context.Background()

		job := newTestJob("job-5")
		require.NoError(t, s.CreateJob(ctx, job))

		exec := domain.NewExecution("exec-5", job.ID, "worker-1", 0, nil, time.Now().UTC(), nil)
		require.NoError(t, s.CreateExecution(ctx, exec))

		completedAt := time.Now().UTC()
		err := s.FinalizeAttempt(ctx, store.FinalizeOutcome{
			IdempotencyKey:      "job-5:exec-5:finalize",
			ExecutionID:         exec.ID,
			JobID:               job.ID,
			ExecutionStatus:     domain.ExecutionCompleted,
			CompletedAt:         completedAt,
			DurationMS:          42,
			IncrementSuccessful: true,
			JobStatus:           domain.JobStatusCompleted,
			ClearNextExec:       true,
			LastExecutedAt:      completedAt,
		})
		require.NoError(t, err)

		gotExec, err := s.GetExecution(ctx, exec.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionCompleted, gotExec.Status)
		require.NotNil(t, gotExec.DurationMS)
		assert.Equal(t, int64(42), *gotExec.DurationMS)

		gotJob, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, gotJob.TotalExecutions)
		assert.Equal(t, 1, gotJob.SuccessfulExecutions)
		assert.Equal(t, domain.JobStatusCompleted, gotJob.Status)
		assert.Nil(t, gotJob.NextExecutionAt)
	})

	t.Run("FinalizeAttempt_IdempotentOnReplay", func(t *testing.T) {
		s, teardown := setup()
		defer teardown()
		ctx := context.Background()

		job := newTestJob("job-6")
		require.NoError(t, s.CreateJob(ctx, job))

		exec := domain.NewExecution("exec-6", job.ID, "worker-1", 0, nil, time.Now().UTC(), nil)
		require.NoError(t, s.CreateExecution(ctx, exec))

		outcome := store.FinalizeOutcome{
			IdempotencyKey:      "job-6:exec-6:finalize",
			ExecutionID:         exec.ID,
			JobID:               job.ID,
			ExecutionStatus:     domain.ExecutionCompleted,
			CompletedAt:         time.Now().UTC(),
			IncrementSuccessful: true,
		}
		require.NoError(t, s.FinalizeAttempt(ctx, outcome))
		// A crashed-worker redelivery must not double-count (spec §5).
		require.NoError(t, s.FinalizeAttempt(ctx, outcome))

		gotJob, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, gotJob.SuccessfulExecutions)
	})

	t.Run("ListDueRecurringJobs", func(t *testing.T) {
		s, teardown := setup()
		defer teardown()
		ctx := context.Background()

		expr := "*/5 * * * *"
		due := newTestJob("job-due")
		due.ScheduleType = domain.ScheduleRecurring
		due.CronExpression = &expr
		past := time.Now().UTC().Add(-time.Hour)
		due.NextExecutionAt = &past
		require.NoError(t, s.CreateJob(ctx, due))

		notDue := newTestJob("job-not-due")
		notDue.ScheduleType = domain.ScheduleRecurring
		notDue.CronExpression = &expr
		future := time.Now().UTC().Add(time.Hour)
		notDue.NextExecutionAt = &future
		require.NoError(t, s.CreateJob(ctx, notDue))

		got, err := s.ListDueRecurringJobs(ctx, time.Now().UTC(), 0)
		require.NoError(t, err)
		ids := make(map[string]bool)
		for _, j := range got {
			ids[j.ID] = true
		}
		assert.True(t, ids["job-due"])
		assert.False(t, ids["job-not-due"])
	})

	t.Run("AcquireLease_ExclusiveUntilReleased", func(t *testing.T) {
		s, teardown := setup()
		defer teardown()
		ctx := context.Background()

		ok, err := s.AcquireLease(ctx, "reconciliation", "worker-a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.AcquireLease(ctx, "reconciliation", "worker-b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "a live lease must not be stealable by a different holder")

		require.NoError(t, s.ReleaseLease(ctx, "reconciliation", "worker-a"))

		ok, err = s.AcquireLease(ctx, "reconciliation", "worker-b", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "a released lease must become acquirable")
	})

	t.Run("AcquireLease_RenewedByCurrentHolder", func(t *testing.T) {
		s, teardown := setup()
		defer teardown()
		ctx := context.Background()

		ok, err := s.AcquireLease(ctx, "reconciliation", "worker-a", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.AcquireLease(ctx, "reconciliation", "worker-a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "the current holder may renew its own lease")
	})
}

func newTestJob(id string) *domain.Job {
	now := time.Now().UTC()
	return &domain.Job{
		ID:           id,
		OwnerID:      "owner-1",
		Name:         "test-job",
		Type:         domain.JobTypeHTTP,
		Payload:      domain.Bag{"url": "http://svc/ok"},
		ScheduleType: domain.ScheduleImmediate,
		Timezone:     "UTC",
		Status:       domain.JobStatusActive,
		Priority:     5,
		MaxRetries:   3,
		RetryDelayMS: 5000,
		RetryBackoff: domain.BackoffExponential,
		TimeoutMS:    30000,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
