package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rezkam/jobcore/internal/clock"
	"github.com/rezkam/jobcore/internal/queue"
	"github.com/rezkam/jobcore/internal/store"
)

// ReconcilerConfig tunes the reconciliation sweep (spec §9 Testable
// Property #4: a planner crash between computing next_execution_at and
// registering with the Ready Queue must not silently drop a fire).
type ReconcilerConfig struct {
	HolderID string
	Interval time.Duration
	// LeaseDuration is how long the exclusive run lease is valid; must
	// exceed the time a single sweep can realistically take.
	LeaseDuration time.Duration
	// StaleAfter is how far behind next_execution_at must be before a job
	// is considered orphaned rather than merely about to fire.
	StaleAfter time.Duration
	BatchSize  int
}

func DefaultReconcilerConfig(holderID string) ReconcilerConfig {
	return ReconcilerConfig{
		HolderID:      holderID,
		Interval:      15 * time.Minute,
		LeaseDuration: 5 * time.Minute,
		StaleAfter:    time.Minute,
		BatchSize:     100,
	}
}

// ReconciliationLeaseName is the shared lease key, analogous to the
// teacher's ReconciliationRunType.
const ReconciliationLeaseName = "job-reconciliation"

// Reconciler re-enqueues due recurring jobs whose next_execution_at is at
// least StaleAfter in the past — the recovery path for a crash between
// Store.FinalizeAttempt (or Create) and the queue enqueue that should have
// followed it. Staleness is the only orphan signal: the Ready Queue is not
// consulted, so a stale job whose envelope is still waiting in the queue is
// enqueued again.
type Reconciler struct {
	store store.Store
	queue queue.Queue
	clock clock.Clock
	cfg   ReconcilerConfig
}

func NewReconciler(s store.Store, q queue.Queue, c clock.Clock, cfg ReconcilerConfig) *Reconciler {
	if c == nil {
		c = clock.System{}
	}
	return &Reconciler{store: s, queue: q, clock: c, cfg: cfg}
}

// Run sweeps on Interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	if err := r.SweepOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "initial reconciliation failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.SweepOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "reconciliation failed", "error", err)
			}
		}
	}
}

// SweepOnce runs a single reconciliation cycle under the exclusive lease,
// so that a multi-instance deployment only ever has one sweeper running at
// a time (mirrors the teacher's TryAcquireExclusiveRun pattern).
func (r *Reconciler) SweepOnce(ctx context.Context) error {
	acquired, err := r.store.AcquireLease(ctx, ReconciliationLeaseName, r.cfg.HolderID, r.cfg.LeaseDuration)
	if err != nil {
		return fmt.Errorf("acquire reconciliation lease: %w", err)
	}
	if !acquired {
		slog.DebugContext(ctx, "reconciliation skipped: another instance holds the lease")
		return nil
	}
	defer func() {
		if err := r.store.ReleaseLease(ctx, ReconciliationLeaseName, r.cfg.HolderID); err != nil {
			slog.WarnContext(ctx, "release reconciliation lease failed", "error", err)
		}
	}()

	cutoff := r.clock.Now().Add(-r.cfg.StaleAfter)
	due, err := r.store.ListDueRecurringJobs(ctx, cutoff, r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list due recurring jobs: %w", err)
	}

	var reEnqueued, skipped int
	for _, job := range due {
		if job.NextExecutionAt == nil {
			continue
		}

		// A job can look orphaned (next_execution_at stale) while actually
		// still running a long-lived attempt that simply hasn't finished yet
		// (next_execution_at is only advanced once the attempt completes).
		// Sweeping that job anyway would produce exactly the overlapping
		// recurring fire spec §5 forbids, so it is skipped here instead.
		running, err := hasRunningExecution(ctx, r.store, job.ID)
		if err != nil {
			slog.ErrorContext(ctx, "reconciliation: overlap check failed", "job_id", job.ID, "error", err)
			continue
		}
		if running {
			slog.WarnContext(ctx, "skipped_overlap", "job_id", job.ID, "source", "reconciler")
			skipped++
			continue
		}

		if err := r.queue.EnqueueDelayed(ctx, job.ID, job.Priority, 0, *job.NextExecutionAt); err != nil {
			slog.ErrorContext(ctx, "reconciliation: re-enqueue failed", "job_id", job.ID, "error", err)
			continue
		}
		reEnqueued++
	}

	if reEnqueued > 0 || skipped > 0 {
		slog.InfoContext(ctx, "reconciliation swept orphaned recurring jobs", "count", reEnqueued, "skipped_overlap", skipped)
	}
	return nil
}
