// Package pgqueue is the production queue.Queue backend: a durable,
// visibility-timeout-based ready queue on PostgreSQL, grounded on the
// teacher's SKIP LOCKED claim + available_at lease pattern
// (internal/infrastructure/persistence/postgres/coordinator.go's
// ClaimNextJob/ExtendAvailability).
package pgqueue

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"

	"github.com/rezkam/jobcore/internal/domain"
	"github.com/rezkam/jobcore/internal/queue"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Queue implements queue.Queue against PostgreSQL using a pgxpool.Pool.
type Queue struct {
	pool *pgxpool.Pool
	seq  uint64
}

// New connects to Postgres and runs pending migrations.
func New(ctx context.Context, dsn string) (*Queue, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrQueueUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %s", domain.ErrQueueUnavailable, err)
	}
	if err := runMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Queue{pool: pool}, nil
}

func runMigrations(dsn string) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.Up(db, "migrations")
}

func (q *Queue) Close() error {
	q.pool.Close()
	return nil
}

func (q *Queue) envelopeID(jobID string) string {
	q.seq++
	return fmt.Sprintf("%s-%d-%d", jobID, time.Now().UTC().UnixNano(), q.seq)
}

func (q *Queue) enqueue(ctx context.Context, jobID string, priority, attemptsMade int, availableAt time.Time) error {
	id := q.envelopeID(jobID)
	_, err := q.pool.Exec(ctx, `
		INSERT INTO ready_queue (id, job_id, priority, attempts_made, enqueued_at, available_at)
		VALUES ($1, $2, $3, $4, now(), $5)`,
		id, jobID, priority, attemptsMade, availableAt)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrQueueUnavailable, err)
	}
	return nil
}

func (q *Queue) EnqueueImmediate(ctx context.Context, jobID string, priority, attemptsMade int) error {
	return q.enqueue(ctx, jobID, priority, attemptsMade, time.Now().UTC())
}

func (q *Queue) EnqueueDelayed(ctx context.Context, jobID string, priority, attemptsMade int, availableAt time.Time) error {
	return q.enqueue(ctx, jobID, priority, attemptsMade, availableAt)
}

func (q *Queue) RegisterRepeatable(ctx context.Context, jobID, cronExpression, timezone string, priority int) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO repeatable_registrations (job_id, cron_expression, timezone, priority)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO UPDATE SET cron_expression = $2, timezone = $3, priority = $4`,
		jobID, cronExpression, timezone, priority)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrQueueUnavailable, err)
	}
	return nil
}

func (q *Queue) UnregisterRepeatable(ctx context.Context, jobID string) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM repeatable_registrations WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrQueueUnavailable, err)
	}
	return nil
}

func (q *Queue) RemovePending(ctx context.Context, jobID string) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM ready_queue WHERE job_id = $1 AND claimed_by IS NULL`, jobID)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrQueueUnavailable, err)
	}
	return nil
}

// Claim atomically selects the highest-priority visible (or stalled)
// envelope with SKIP LOCKED, matching the teacher's claim-then-mark
// transaction shape but without sqlc-generated query bindings.
func (q *Queue) Claim(ctx context.Context, visibilityTimeout time.Duration) (*queue.Envelope, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrQueueUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT id, job_id, priority, attempts_made, enqueued_at
		FROM ready_queue
		WHERE (claimed_by IS NULL AND available_at <= now())
		   OR (claimed_by IS NOT NULL AND invisible_at <= now())
		ORDER BY priority DESC, enqueued_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`)

	var env queue.Envelope
	err = row.Scan(&env.ID, &env.JobID, &env.Priority, &env.AttemptsMade, &env.EnqueuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrQueueUnavailable, err)
	}

	invisibleAt := time.Now().UTC().Add(visibilityTimeout)
	_, err = tx.Exec(ctx, `UPDATE ready_queue SET claimed_by = $2, invisible_at = $3 WHERE id = $1`,
		env.ID, "claimed", invisibleAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrQueueUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrQueueUnavailable, err)
	}

	env.ReceiptHandle = env.ID
	return &env, nil
}

func (q *Queue) ExtendVisibility(ctx context.Context, receiptHandle string, visibilityTimeout time.Duration) error {
	tag, err := q.pool.Exec(ctx, `UPDATE ready_queue SET invisible_at = $1 WHERE id = $2 AND claimed_by IS NOT NULL`,
		time.Now().UTC().Add(visibilityTimeout), receiptHandle)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrQueueUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (q *Queue) Ack(ctx context.Context, receiptHandle string) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM ready_queue WHERE id = $1`, receiptHandle)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrQueueUnavailable, err)
	}
	return nil
}
