package memqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_EnqueueImmediateAndClaim(t *testing.T) {
	q := New()
	ctx := context.Background()

	require.NoError(t, q.EnqueueImmediate(ctx, "job-1", 5, 0))

	env, err := q.Claim(ctx, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, "job-1", env.JobID)
	assert.Equal(t, 0, env.AttemptsMade)
}

func TestQueue_Claim_EmptyReturnsNil(t *testing.T) {
	q := New()
	env, err := q.Claim(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, env)
}

func TestQueue_EnqueueDelayed_NotVisibleUntilAvailable(t *testing.T) {
	q := New()
	ctx := context.Background()

	require.NoError(t, q.EnqueueDelayed(ctx, "job-1", 5, 0, time.Now().UTC().Add(time.Hour)))

	env, err := q.Claim(ctx, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, env)
}

func TestQueue_PriorityOrdering(t *testing.T) {
	q := New()
	ctx := context.Background()

	require.NoError(t, q.EnqueueImmediate(ctx, "low", 1, 0))
	require.NoError(t, q.EnqueueImmediate(ctx, "high", 9, 0))

	env, err := q.Claim(ctx, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, "high", env.JobID)
}

func TestQueue_StalledEnvelopeBecomesVisibleAgain(t *testing.T) {
	q := New()
	ctx := context.Background()

	require.NoError(t, q.EnqueueImmediate(ctx, "job-1", 5, 0))

	first, err := q.Claim(ctx, -time.Second) // already "expired" visibility
	require.NoError(t, err)
	require.NotNil(t, first)

	// A crashed worker never acked; the envelope must become visible again.
	second, err := q.Claim(ctx, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ReceiptHandle, second.ReceiptHandle)
}

func TestQueue_AckRemovesEnvelope(t *testing.T) {
	q := New()
	ctx := context.Background()

	require.NoError(t, q.EnqueueImmediate(ctx, "job-1", 5, 0))
	env, err := q.Claim(ctx, time.Minute)
	require.NoError(t, err)

	require.NoError(t, q.Ack(ctx, env.ReceiptHandle))

	q.mu.Lock()
	_, exists := q.items[env.ReceiptHandle]
	q.mu.Unlock()
	assert.False(t, exists)
}

func TestQueue_ExtendVisibilityKeepsEnvelopeInvisible(t *testing.T) {
	q := New()
	ctx := context.Background()

	require.NoError(t, q.EnqueueImmediate(ctx, "job-1", 5, 0))
	env, err := q.Claim(ctx, time.Minute)
	require.NoError(t, err)

	require.NoError(t, q.ExtendVisibility(ctx, env.ReceiptHandle, time.Hour))

	again, err := q.Claim(ctx, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestQueue_RemovePending_SkipsClaimed(t *testing.T) {
	q := New()
	ctx := context.Background()

	require.NoError(t, q.EnqueueImmediate(ctx, "job-1", 5, 0))
	env, err := q.Claim(ctx, time.Hour)
	require.NoError(t, err)

	require.NoError(t, q.RemovePending(ctx, "job-1"))

	q.mu.Lock()
	_, exists := q.items[env.ReceiptHandle]
	q.mu.Unlock()
	assert.True(t, exists, "claimed envelope must not be removed by RemovePending")
}

func TestQueue_RepeatableRegistration(t *testing.T) {
	q := New()
	ctx := context.Background()

	require.NoError(t, q.RegisterRepeatable(ctx, "job-1", "*/5 * * * *", "UTC", 5))
	q.mu.Lock()
	_, ok := q.repeatables["job-1"]
	q.mu.Unlock()
	assert.True(t, ok)

	require.NoError(t, q.UnregisterRepeatable(ctx, "job-1"))
	q.mu.Lock()
	_, ok = q.repeatables["job-1"]
	q.mu.Unlock()
	assert.False(t, ok)
}
