package notifier

import (
	"context"
	"sync"
)

// MemSink is an in-memory test double recording every event it receives.
type MemSink struct {
	mu                  sync.Mutex
	Completed           []JobCompleted
	Retried             []JobRetry
	MaxRetriesExceededs []MaxRetriesExceeded
	Failed              []JobFailed
}

func NewMemSink() *MemSink { return &MemSink{} }

func (m *MemSink) NotifyJobCompleted(_ context.Context, e JobCompleted) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completed = append(m.Completed, e)
}

func (m *MemSink) NotifyJobRetry(_ context.Context, e JobRetry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Retried = append(m.Retried, e)
}

func (m *MemSink) NotifyMaxRetriesExceeded(_ context.Context, e MaxRetriesExceeded) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MaxRetriesExceededs = append(m.MaxRetriesExceededs, e)
}

func (m *MemSink) NotifyJobFailed(_ context.Context, e JobFailed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failed = append(m.Failed, e)
}
