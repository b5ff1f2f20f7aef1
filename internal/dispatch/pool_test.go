package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rezkam/jobcore/internal/clock"
	"github.com/rezkam/jobcore/internal/domain"
	"github.com/rezkam/jobcore/internal/executor"
	"github.com/rezkam/jobcore/internal/notifier"
	"github.com/rezkam/jobcore/internal/planner"
	"github.com/rezkam/jobcore/internal/queue"
	"github.com/rezkam/jobcore/internal/queue/memqueue"
	"github.com/rezkam/jobcore/internal/store"
	"github.com/rezkam/jobcore/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	output domain.Bag
	err    error
	panic  any
}

func (s stubExecutor) Execute(ctx context.Context, payload domain.Bag) (domain.Bag, error) {
	if s.panic != nil {
		panic(s.panic)
	}
	return s.output, s.err
}

func newHarness(now time.Time, exec executor.Executor) (*Pool, store.Store, queue.Queue, *notifier.MemSink, *clock.Fake) {
	s := memstore.New()
	q := memqueue.New()
	fc := clock.NewFake(now)
	pl := planner.New(s, q, fc)
	reg := executor.NewRegistry()
	reg.Register(domain.JobTypeHTTP, exec)
	sink := notifier.NewMemSink()
	cfg := DefaultConfig("worker-1")
	p := New(s, q, pl, reg, sink, fc, cfg)
	return p, s, q, sink, fc
}

func createAndClaim(t *testing.T, p *Pool, s store.Store, q queue.Queue, now time.Time) (*domain.Job, *queue.Envelope) {
	t.Helper()
	ctx := context.Background()
	pl := planner.New(s, q, clock.NewFake(now))
	job, err := pl.Create(ctx, planner.CreateParams{
		OwnerID:      "owner-1",
		Name:         "job",
		Type:         domain.JobTypeHTTP,
		Payload:      domain.Bag{"url": "http://svc"},
		ScheduleType: domain.ScheduleImmediate,
		Priority:     5,
		MaxRetries:   2,
		RetryDelayMS: 1000,
		RetryBackoff: domain.BackoffFixed,
		TimeoutMS:    30000,
	})
	require.NoError(t, err)

	env, err := q.Claim(ctx, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, env)
	return job, env
}

func TestPool_Success_MarksJobCompleted(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, s, q, sink, _ := newHarness(now, stubExecutor{output: domain.Bag{"ok": true}})
	job, env := createAndClaim(t, p, s, q, now)

	p.handle(context.Background(), env)

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, 1, got.SuccessfulExecutions)
	assert.Len(t, sink.Completed, 1)
}

func TestPool_RetryableFailure_SchedulesRetryAndStaysActive(t *testing.T) {
	// memqueue checks visibility against wall time, so the fake clock starts
	// at wall time here: the retry envelope's availableAt (fake now + 1s)
	// then lies in the future when it is claimed below.
	now := time.Now().UTC()
	p, s, q, sink, _ := newHarness(now, stubExecutor{err: errors.New("upstream down")})
	job, env := createAndClaim(t, p, s, q, now)

	p.handle(context.Background(), env)

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusActive, got.Status)
	assert.Equal(t, 1, got.FailedExecutions)
	assert.Len(t, sink.Retried, 1)

	// A delayed retry envelope should now exist (not yet visible).
	next, err := q.Claim(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestPool_RetriesExhausted_MarksJobFailed(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, s, q, sink, _ := newHarness(now, stubExecutor{err: errors.New("still down")})
	job, env := createAndClaim(t, p, s, q, now)
	env.AttemptsMade = 2 // max_retries is 2, so this is the last allowed attempt

	p.handle(context.Background(), env)

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Len(t, sink.MaxRetriesExceededs, 1)
}

// TestPool_RealHTTPAdapter_500ThenSuccessOnRetry exercises the real HTTP
// executor (not a stub) through the retry path, matching the "500 then
// success on retry" scenario: an adapter's failure is an ordinary error, not
// one wrapped to mark it specially retryable, and must still be retried.
func TestPool_RealHTTPAdapter_500ThenSuccessOnRetry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := memstore.New()
	q := memqueue.New()
	fc := clock.NewFake(now)
	pl := planner.New(s, q, fc)
	reg := executor.NewRegistry()
	reg.Register(domain.JobTypeHTTP, executor.NewHTTP(srv.Client()))
	sink := notifier.NewMemSink()
	p := New(s, q, pl, reg, sink, fc, DefaultConfig("worker-1"))

	job, err := pl.Create(context.Background(), planner.CreateParams{
		OwnerID:      "owner-1",
		Name:         "job",
		Type:         domain.JobTypeHTTP,
		Payload:      domain.Bag{"url": srv.URL},
		ScheduleType: domain.ScheduleImmediate,
		Priority:     5,
		MaxRetries:   2,
		RetryDelayMS: 1000,
		RetryBackoff: domain.BackoffFixed,
		TimeoutMS:    30000,
	})
	require.NoError(t, err)

	env, err := q.Claim(context.Background(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, env)

	p.handle(context.Background(), env)

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusActive, got.Status, "a real adapter's 500 must be retried, not treated as permanent")
	assert.Equal(t, 1, got.FailedExecutions)
	assert.Len(t, sink.Retried, 1)

	retryEnv, err := q.Claim(context.Background(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, retryEnv, "retry envelope should already be visible (its delay is computed against the fake clock, in the past relative to wall time)")

	p.handle(context.Background(), retryEnv)

	got, err = s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, 1, got.SuccessfulExecutions)
	assert.Equal(t, 1, got.FailedExecutions)
	assert.Len(t, sink.Completed, 1)
}

func TestPool_PanicInExecutor_FailsWithoutRetry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, s, q, sink, _ := newHarness(now, stubExecutor{panic: "boom"})
	job, env := createAndClaim(t, p, s, q, now)

	p.handle(context.Background(), env)

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Len(t, sink.Failed, 1)

	next, err := q.Claim(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, next, "a panicking attempt must not be retried")
}

func TestPool_OverlappingRecurringFire_SkippedWhilePreviousStillRunning(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := memstore.New()
	q := memqueue.New()
	fc := clock.NewFake(now)
	pl := planner.New(s, q, fc)
	reg := executor.NewRegistry()
	reg.Register(domain.JobTypeHTTP, stubExecutor{output: domain.Bag{}})
	sink := notifier.NewMemSink()
	p := New(s, q, pl, reg, sink, fc, DefaultConfig("worker-1"))

	expr := "*/5 * * * *"
	job, err := pl.Create(context.Background(), planner.CreateParams{
		OwnerID:        "owner-1",
		Name:           "recurring-job",
		Type:           domain.JobTypeHTTP,
		Payload:        domain.Bag{"url": "http://svc"},
		ScheduleType:   domain.ScheduleRecurring,
		CronExpression: &expr,
		Timezone:       "UTC",
		Priority:       5,
		MaxRetries:     2,
		RetryDelayMS:   1000,
		RetryBackoff:   domain.BackoffFixed,
		TimeoutMS:      30000,
	})
	require.NoError(t, err)

	env, err := q.Claim(context.Background(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, env)

	// A previous instance of this same recurring job is still mid-attempt.
	inflight := domain.NewExecution("exec-inflight", job.ID, "worker-1", 0, job.Payload, now, nil)
	require.NoError(t, s.CreateExecution(context.Background(), inflight))

	p.handle(context.Background(), env)

	execs, err := s.ListExecutions(context.Background(), job.ID, 0)
	require.NoError(t, err)
	assert.Len(t, execs, 1, "the overlapping fire must be dropped, not recorded as a second Execution")
	assert.Len(t, sink.Completed, 0)
}

func TestPool_RecurringJobSuccess_AdvancesNextExecution(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := memstore.New()
	q := memqueue.New()
	fc := clock.NewFake(now)
	pl := planner.New(s, q, fc)
	reg := executor.NewRegistry()
	reg.Register(domain.JobTypeHTTP, stubExecutor{output: domain.Bag{}})
	sink := notifier.NewMemSink()
	p := New(s, q, pl, reg, sink, fc, DefaultConfig("worker-1"))

	expr := "*/5 * * * *"
	job, err := pl.Create(context.Background(), planner.CreateParams{
		OwnerID:      "owner-1",
		Name:         "recurring-job",
		Type:         domain.JobTypeHTTP,
		Payload:      domain.Bag{"url": "http://svc"},
		ScheduleType: domain.ScheduleRecurring,
		CronExpression: &expr,
		Timezone:     "UTC",
		Priority:     5,
		MaxRetries:   2,
		RetryDelayMS: 1000,
		RetryBackoff: domain.BackoffFixed,
		TimeoutMS:    30000,
	})
	require.NoError(t, err)

	env, err := q.Claim(context.Background(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, env)

	fc.Set(time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC))
	p.handle(context.Background(), env)

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusActive, got.Status)
	require.NotNil(t, got.NextExecutionAt)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC), *got.NextExecutionAt)
}
