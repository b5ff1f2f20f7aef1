// Package queue defines the Ready Queue port (spec §2 item 4, §4.3):
// durable attempt-envelope delivery with delayed visibility and
// repeatable-schedule registrations.
package queue

import (
	"context"
	"time"
)

// Envelope references one attempt (spec GLOSSARY). AttemptsMade is the
// number of previous attempts already recorded for the chain; the worker
// computes this delivery's attempt index as AttemptsMade+1.
type Envelope struct {
	ID           string
	JobID        string
	Priority     int
	AttemptsMade int
	EnqueuedAt   time.Time

	// ReceiptHandle is an opaque backend-specific token the queue uses to
	// ack/extend this envelope. Both backends use the envelope ID, so a
	// re-delivery of the same envelope after a stall carries the same handle
	// as the original delivery.
	ReceiptHandle string
}

// Queue is the durable, priority-ordered, delayed-visibility attempt queue.
// FIFO within a priority band; visible items in priority order.
type Queue interface {
	// EnqueueImmediate makes the envelope visible now, at the given
	// priority band (spec §4.2 Create/Trigger).
	EnqueueImmediate(ctx context.Context, jobID string, priority, attemptsMade int) error

	// EnqueueDelayed makes the envelope visible only at availableAt (spec
	// §4.2 Create scheduled, §4.4 retry re-enqueue).
	EnqueueDelayed(ctx context.Context, jobID string, priority, attemptsMade int, availableAt time.Time) error

	// RegisterRepeatable records a repeatable registration for jobID (cron
	// expression, timezone, priority), replacing any earlier registration
	// for the same job; registrations are keyed by jobID alone. It is
	// bookkeeping only: neither backend produces envelopes from it. Each
	// occurrence of a recurring job is enqueued explicitly, the first by the
	// planner and each later one by the dispatch pool.
	RegisterRepeatable(ctx context.Context, jobID, cronExpression, timezone string, priority int) error
	UnregisterRepeatable(ctx context.Context, jobID string) error

	// RemovePending removes any pending/delayed envelopes for jobID (spec
	// §4.2 Pause/Cancel). It does not affect an envelope already claimed by
	// a worker.
	RemovePending(ctx context.Context, jobID string) error

	// Claim pops the highest-priority visible envelope, making it invisible
	// until visibilityTimeout elapses (spec §4.3's "bounded stall
	// interval"). Returns nil, nil if none is available.
	Claim(ctx context.Context, visibilityTimeout time.Duration) (*Envelope, error)

	// ExtendVisibility is the worker heartbeat call that keeps a claimed
	// envelope from becoming visible again while its attempt is still
	// running.
	ExtendVisibility(ctx context.Context, receiptHandle string, visibilityTimeout time.Duration) error

	// Ack removes a claimed envelope for good on terminal attempt outcome
	// (spec §4.3 "Removal is explicit on terminal outcome").
	Ack(ctx context.Context, receiptHandle string) error

	Close() error
}
