// Package memqueue is an in-process Queue implementation used by tests and
// the single-process dev/sqlite configuration.
package memqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rezkam/jobcore/internal/domain"
	"github.com/rezkam/jobcore/internal/queue"
)

type item struct {
	env         queue.Envelope
	availableAt time.Time
	claimedBy   string // non-empty while claimed
	invisibleAt time.Time
}

type repeatable struct {
	jobID          string
	cronExpression string
	timezone       string
	priority       int
}

// Queue is an in-memory, mutex-guarded queue.Queue.
type Queue struct {
	mu          sync.Mutex
	items       map[string]*item // keyed by envelope ID
	repeatables map[string]repeatable
	seq         int
}

// New constructs an empty in-memory queue.
func New() *Queue {
	return &Queue{
		items:       make(map[string]*item),
		repeatables: make(map[string]repeatable),
	}
}

func (q *Queue) nextID() string {
	q.seq++
	return "env-" + itoa(q.seq)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func (q *Queue) enqueue(jobID string, priority, attemptsMade int, availableAt time.Time) {
	id := q.nextID()
	q.items[id] = &item{
		env: queue.Envelope{
			ID:            id,
			JobID:         jobID,
			Priority:      priority,
			AttemptsMade:  attemptsMade,
			EnqueuedAt:    time.Now().UTC(),
			ReceiptHandle: id,
		},
		availableAt: availableAt,
	}
}

func (q *Queue) EnqueueImmediate(_ context.Context, jobID string, priority, attemptsMade int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueue(jobID, priority, attemptsMade, time.Now().UTC())
	return nil
}

func (q *Queue) EnqueueDelayed(_ context.Context, jobID string, priority, attemptsMade int, availableAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueue(jobID, priority, attemptsMade, availableAt)
	return nil
}

func (q *Queue) RegisterRepeatable(_ context.Context, jobID, cronExpression, timezone string, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.repeatables[jobID] = repeatable{jobID: jobID, cronExpression: cronExpression, timezone: timezone, priority: priority}
	return nil
}

func (q *Queue) UnregisterRepeatable(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.repeatables, jobID)
	return nil
}

func (q *Queue) RemovePending(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, it := range q.items {
		if it.env.JobID == jobID && it.claimedBy == "" {
			delete(q.items, id)
		}
	}
	return nil
}

func (q *Queue) Claim(_ context.Context, visibilityTimeout time.Duration) (*queue.Envelope, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	var candidates []*item
	for _, it := range q.items {
		visible := it.claimedBy == "" && !it.availableAt.After(now)
		stalled := it.claimedBy != "" && !it.invisibleAt.After(now)
		if visible || stalled {
			candidates = append(candidates, it)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].env.Priority != candidates[k].env.Priority {
			return candidates[i].env.Priority > candidates[k].env.Priority
		}
		return candidates[i].env.EnqueuedAt.Before(candidates[k].env.EnqueuedAt)
	})

	chosen := candidates[0]
	chosen.claimedBy = chosen.env.ReceiptHandle
	chosen.invisibleAt = now.Add(visibilityTimeout)

	env := chosen.env
	return &env, nil
}

func (q *Queue) ExtendVisibility(_ context.Context, receiptHandle string, visibilityTimeout time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[receiptHandle]
	if !ok || it.claimedBy == "" {
		return domain.ErrNotFound
	}
	it.invisibleAt = time.Now().UTC().Add(visibilityTimeout)
	return nil
}

func (q *Queue) Ack(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.items, receiptHandle)
	return nil
}

func (q *Queue) Close() error { return nil }
