// Package memstore is an in-process Store implementation used by tests and
// by the dev/single-process configuration. It applies the same semantics
// as the Postgres-backed store — including FinalizeAttempt idempotency —
// behind a single mutex instead of row locks.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rezkam/jobcore/internal/domain"
	"github.com/rezkam/jobcore/internal/store"
)

// Store is an in-memory, mutex-guarded store.Store.
type Store struct {
	mu sync.Mutex

	jobs       map[string]*domain.Job
	executions map[string]*domain.Execution
	logs       []domain.JobLog
	applied    map[string]bool // idempotency keys already finalized
	leases     map[string]lease
}

type lease struct {
	holder    string
	expiresAt time.Time
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		jobs:       make(map[string]*domain.Job),
		executions: make(map[string]*domain.Execution),
		applied:    make(map[string]bool),
		leases:     make(map[string]lease),
	}
}

func (s *Store) CreateJob(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *Store) ListJobsByStatus(_ context.Context, status domain.JobStatus, limit int) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Job
	for _, j := range s.jobs {
		if j.Status == status {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListJobsByOwner(_ context.Context, ownerID string, limit int) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Job
	for _, j := range s.jobs {
		if j.OwnerID == ownerID {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListDueRecurringJobs(_ context.Context, before time.Time, limit int) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Job
	for _, j := range s.jobs {
		if j.Status != domain.JobStatusActive || j.ScheduleType != domain.ScheduleRecurring {
			continue
		}
		if j.NextExecutionAt == nil || !j.NextExecutionAt.After(before) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateJobStatus(_ context.Context, id string, from, to domain.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status != from {
		return domain.ErrIllegalStateTransition
	}
	j.Status = to
	j.UpdatedAt = time.Now().UTC()
	if to.IsTerminal() {
		j.NextExecutionAt = nil
	}
	return nil
}

func (s *Store) UpdateJobSchedule(_ context.Context, id string, nextExecutionAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.NextExecutionAt = nextExecutionAt
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.jobs, id)
	for execID, e := range s.executions {
		if e.JobID == id {
			delete(s.executions, execID)
		}
	}
	kept := s.logs[:0]
	for _, l := range s.logs {
		if l.JobID != id {
			kept = append(kept, l)
		}
	}
	s.logs = kept
	return nil
}

func (s *Store) CreateExecution(_ context.Context, exec *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *exec
	s.executions[exec.ID] = &cp
	return nil
}

func (s *Store) GetExecution(_ context.Context, id string) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) ListExecutions(_ context.Context, jobID string, limit int) ([]*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Execution
	for _, e := range s.executions {
		if e.JobID == jobID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Attempt < out[k].Attempt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) FinalizeAttempt(_ context.Context, o store.FinalizeOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.applied[o.IdempotencyKey] {
		return nil // already applied, idempotent no-op (spec §5)
	}

	exec, ok := s.executions[o.ExecutionID]
	if !ok {
		return domain.ErrNotFound
	}
	if exec.Status.IsTerminal() {
		s.applied[o.IdempotencyKey] = true
		return nil
	}

	exec.Status = o.ExecutionStatus
	exec.CompletedAt = &o.CompletedAt
	d := o.DurationMS
	exec.DurationMS = &d
	exec.Result = o.Result
	exec.Error = o.ExecError

	job, ok := s.jobs[o.JobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.TotalExecutions++
	if o.IncrementSuccessful {
		job.SuccessfulExecutions++
	}
	if o.IncrementFailed {
		job.FailedExecutions++
	}
	job.LastExecutedAt = &o.LastExecutedAt
	if o.JobStatus != "" {
		job.Status = o.JobStatus
	}
	if o.ClearNextExec {
		job.NextExecutionAt = nil
	} else if o.NextExecutionAt != nil {
		job.NextExecutionAt = o.NextExecutionAt
	}
	job.UpdatedAt = time.Now().UTC()

	s.applied[o.IdempotencyKey] = true
	return nil
}

func (s *Store) AppendLog(_ context.Context, line domain.JobLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, line)
	return nil
}

func (s *Store) ListLogs(_ context.Context, jobID string, limit int) ([]domain.JobLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.JobLog
	for _, l := range s.logs {
		if l.JobID == jobID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Timestamp.Before(out[k].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AcquireLease(_ context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if l, ok := s.leases[name]; ok && l.holder != holderID && l.expiresAt.After(now) {
		return false, nil
	}
	s.leases[name] = lease{holder: holderID, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *Store) ReleaseLease(_ context.Context, name, holderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leases[name]; ok && l.holder == holderID {
		delete(s.leases, name)
	}
	return nil
}

func (s *Store) Close() error { return nil }
