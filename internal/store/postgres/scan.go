package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/rezkam/jobcore/internal/domain"
)

func marshalBag(b domain.Bag) (*string, error) {
	if b == nil {
		return nil, nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	s := string(raw)
	return &s, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const jobSelectColumns = `SELECT
	id, owner_id, name, description, tags, metadata, type, payload,
	schedule_type, scheduled_at, cron_expression, timezone, status,
	priority, max_retries, retry_delay_ms, retry_backoff, timeout_ms,
	last_executed_at, next_execution_at,
	total_executions, successful_executions, failed_executions,
	end_at, max_executions, created_at, updated_at`

func scanJob(r rowScanner) (*domain.Job, error) {
	var j domain.Job
	var jobType, scheduleType, status, retryBackoff string
	var tags, metadata, payload *string

	err := r.Scan(
		&j.ID, &j.OwnerID, &j.Name, &j.Description, &tags, &metadata, &jobType, &payload,
		&scheduleType, &j.ScheduledAt, &j.CronExpression, &j.Timezone, &status,
		&j.Priority, &j.MaxRetries, &j.RetryDelayMS, &retryBackoff, &j.TimeoutMS,
		&j.LastExecutedAt, &j.NextExecutionAt,
		&j.TotalExecutions, &j.SuccessfulExecutions, &j.FailedExecutions,
		&j.EndAt, &j.MaxExecutions, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Type = domain.JobType(jobType)
	j.ScheduleType = domain.ScheduleType(scheduleType)
	j.Status = domain.JobStatus(status)
	j.RetryBackoff = domain.RetryBackoff(retryBackoff)

	if tags != nil {
		_ = json.Unmarshal([]byte(*tags), &j.Tags)
	}
	if metadata != nil {
		_ = json.Unmarshal([]byte(*metadata), &j.Metadata)
	}
	if payload != nil {
		_ = json.Unmarshal([]byte(*payload), &j.Payload)
	}

	return &j, nil
}

const executionSelectColumns = `SELECT
	id, job_id, status, attempt, started_at, completed_at, duration_ms,
	result, error_message, error_stack, is_retry, previous_execution_id,
	worker_id, input, output`

func scanExecution(r rowScanner) (*domain.Execution, error) {
	var e domain.Execution
	var status string
	var result, input, output *string
	var errMsg, errStack *string

	err := r.Scan(
		&e.ID, &e.JobID, &status, &e.Attempt, &e.StartedAt, &e.CompletedAt, &e.DurationMS,
		&result, &errMsg, &errStack, &e.IsRetry, &e.PreviousExecutionID,
		&e.WorkerID, &input, &output,
	)
	if err != nil {
		return nil, err
	}

	e.Status = domain.ExecutionStatus(status)
	if result != nil {
		_ = json.Unmarshal([]byte(*result), &e.Result)
	}
	if input != nil {
		_ = json.Unmarshal([]byte(*input), &e.Input)
	}
	if output != nil {
		_ = json.Unmarshal([]byte(*output), &e.Output)
	}
	if errMsg != nil {
		e.Error = &domain.ExecutionError{Message: *errMsg}
		if errStack != nil {
			e.Error.Stack = *errStack
		}
	}

	return &e, nil
}
