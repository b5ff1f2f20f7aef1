// Package postgres is the production store.Store backend, built on
// database/sql with a driver-selectable DSN (spec §6's store connection
// block). The teacher's equivalent layer
// (internal/infrastructure/persistence/postgres) generates its query layer
// with sqlc; that generated package was not part of the retrieval pack, so
// queries here are authored directly against database/sql (see DESIGN.md).
// The dual-driver shape (Driver field choosing "postgres" or "sqlite")
// follows the teacher's internal/storage/sql/connection.go DBConfig pattern.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/rezkam/jobcore/internal/domain"
	"github.com/rezkam/jobcore/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config selects and configures the SQL backend.
type Config struct {
	// Driver is "postgres" (default) or "sqlite".
	Driver string
	DSN    string
}

func (c Config) driverName() string {
	if c.Driver == "sqlite" {
		return "sqlite"
	}
	return "pgx"
}

func (c Config) gooseDialect() string {
	if c.Driver == "sqlite" {
		return "sqlite3"
	}
	return "postgres"
}

// Store implements store.Store against either PostgreSQL or SQLite through
// database/sql, selected by Config.Driver.
type Store struct {
	db *sql.DB
}

// New connects to the configured backend and runs pending migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open(cfg.driverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	if err := runMigrations(db, cfg.gooseDialect()); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateJob(ctx context.Context, j *domain.Job) error {
	tagsRaw, err := json.Marshal(j.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	tags := string(tagsRaw)
	metadata, err := marshalBag(j.Metadata)
	if err != nil {
		return err
	}
	payload, err := marshalBag(j.Payload)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (
			id, owner_id, name, description, tags, metadata, type, payload,
			schedule_type, scheduled_at, cron_expression, timezone, status,
			priority, max_retries, retry_delay_ms, retry_backoff, timeout_ms,
			last_executed_at, next_execution_at,
			total_executions, successful_executions, failed_executions,
			end_at, max_executions, created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
			$19,$20,$21,$22,$23,$24,$25,$26,$27
		)`,
		j.ID, j.OwnerID, j.Name, j.Description, tags, metadata, string(j.Type), payload,
		string(j.ScheduleType), j.ScheduledAt, j.CronExpression, j.Timezone, string(j.Status),
		j.Priority, j.MaxRetries, j.RetryDelayMS, string(j.RetryBackoff), j.TimeoutMS,
		j.LastExecutedAt, j.NextExecutionAt,
		j.TotalExecutions, j.SuccessfulExecutions, j.FailedExecutions,
		j.EndAt, j.MaxExecutions, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, jobSelectColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	return j, nil
}

func (s *Store) ListJobsByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]*domain.Job, error) {
	q := jobSelectColumns + ` FROM jobs WHERE status = $1 ORDER BY id`
	args := []any{string(status)}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryJobs(ctx, q, args...)
}

func (s *Store) ListJobsByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.Job, error) {
	q := jobSelectColumns + ` FROM jobs WHERE owner_id = $1 ORDER BY id`
	args := []any{ownerID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryJobs(ctx, q, args...)
}

func (s *Store) ListDueRecurringJobs(ctx context.Context, before time.Time, limit int) ([]*domain.Job, error) {
	q := jobSelectColumns + ` FROM jobs
		WHERE status = 'active' AND schedule_type = 'recurring'
		  AND (next_execution_at IS NULL OR next_execution_at <= $1)
		ORDER BY id`
	args := []any{before}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryJobs(ctx, q, args...)
}

func (s *Store) UpdateJobStatus(ctx context.Context, id string, from, to domain.JobStatus) error {
	var clearNext string
	if to.IsTerminal() {
		clearNext = `, next_execution_at = NULL`
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, updated_at = $2`+clearNext+`
		WHERE id = $3 AND status = $4`,
		string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	if n == 0 {
		if _, err := s.GetJob(ctx, id); err != nil {
			return err
		}
		return domain.ErrIllegalStateTransition
	}
	return nil
}

func (s *Store) UpdateJobSchedule(ctx context.Context, id string, nextExecutionAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET next_execution_at = $1, updated_at = $2 WHERE id = $3`,
		nextExecutionAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return nil
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return nil
}

func (s *Store) CreateExecution(ctx context.Context, e *domain.Execution) error {
	input, err := marshalBag(e.Input)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_executions (
			id, job_id, status, attempt, started_at, is_retry,
			previous_execution_id, worker_id, input, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.JobID, string(e.Status), e.Attempt, e.StartedAt, e.IsRetry,
		e.PreviousExecutionID, e.WorkerID, input, e.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*domain.Execution, error) {
	row := s.db.QueryRowContext(ctx, executionSelectColumns+` FROM job_executions WHERE id = $1`, id)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: execution %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	return e, nil
}

func (s *Store) ListExecutions(ctx context.Context, jobID string, limit int) ([]*domain.Execution, error) {
	q := executionSelectColumns + ` FROM job_executions WHERE job_id = $1 ORDER BY attempt`
	args := []any{jobID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FinalizeAttempt applies the Execution and Job writes in a single
// transaction, guarded by finalize_idempotency so a re-delivered finalize
// after a worker crash does not double-count (spec §4.4, §5).
func (s *Store) FinalizeAttempt(ctx context.Context, o store.FinalizeOutcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	appliedAt := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `INSERT INTO finalize_idempotency (key, applied_at) VALUES ($1, $2) ON CONFLICT DO NOTHING`, o.IdempotencyKey, appliedAt)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil // already applied
	}

	result, err := marshalBag(o.Result)
	if err != nil {
		return err
	}
	var errMsg, errStack *string
	if o.ExecError != nil {
		errMsg = &o.ExecError.Message
		errStack = &o.ExecError.Stack
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE job_executions SET status=$1, completed_at=$2, duration_ms=$3, result=$4,
			error_message=$5, error_stack=$6
		WHERE id=$7 AND status IN ('pending','running')`,
		string(o.ExecutionStatus), o.CompletedAt, o.DurationMS, result, errMsg, errStack, o.ExecutionID)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}

	setClauses := `total_executions = total_executions + 1, last_executed_at = $1, updated_at = $2`
	args := []any{o.LastExecutedAt, appliedAt}
	argN := 3
	if o.IncrementSuccessful {
		setClauses += `, successful_executions = successful_executions + 1`
	}
	if o.IncrementFailed {
		setClauses += `, failed_executions = failed_executions + 1`
	}
	if o.JobStatus != "" {
		setClauses += fmt.Sprintf(`, status = $%d`, argN)
		args = append(args, string(o.JobStatus))
		argN++
	}
	if o.ClearNextExec {
		setClauses += `, next_execution_at = NULL`
	} else if o.NextExecutionAt != nil {
		setClauses += fmt.Sprintf(`, next_execution_at = $%d`, argN)
		args = append(args, *o.NextExecutionAt)
		argN++
	}
	args = append(args, o.JobID)

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`UPDATE jobs SET %s WHERE id = $%d`, setClauses, argN), args...)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) AppendLog(ctx context.Context, l domain.JobLog) error {
	data, err := marshalBag(l.Data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_logs (id, job_id, execution_id, level, message, data, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		l.ID, l.JobID, l.ExecutionID, string(l.Level), l.Message, data, l.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) ListLogs(ctx context.Context, jobID string, limit int) ([]domain.JobLog, error) {
	q := `SELECT id, job_id, execution_id, level, message, data, timestamp FROM job_logs WHERE job_id = $1 ORDER BY timestamp`
	args := []any{jobID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []domain.JobLog
	for rows.Next() {
		var l domain.JobLog
		var data *string
		var level string
		if err := rows.Scan(&l.ID, &l.JobID, &l.ExecutionID, &level, &l.Message, &data, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
		}
		l.Level = domain.LogLevel(level)
		if data != nil {
			_ = json.Unmarshal([]byte(*data), &l.Data)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// AcquireLease upserts a scheduler_leases row: it grants the lease to
// holderID if no row exists, or steals it if the existing row has expired
// (mirrors the teacher's TryAcquireExclusiveRun crash-recovery semantics).
func (s *Store) AcquireLease(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduler_leases (name, holder_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET holder_id = EXCLUDED.holder_id, expires_at = EXCLUDED.expires_at
		WHERE scheduler_leases.holder_id = EXCLUDED.holder_id
		   OR scheduler_leases.expires_at <= $4
	`, name, holderID, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

func (s *Store) ReleaseLease(ctx context.Context, name, holderID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduler_leases WHERE name = $1 AND holder_id = $2`, name, holderID)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) queryJobs(ctx context.Context, q string, args ...any) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
