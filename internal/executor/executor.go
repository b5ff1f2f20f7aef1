// Package executor defines the pluggable capability contract dispatch uses
// to run a job's actual work (spec §6: http, webhook, script, email,
// custom).
package executor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rezkam/jobcore/internal/domain"
)

// Executor runs one attempt of a job's payload and returns its output. The
// context carries the per-attempt deadline (spec §4.4 step 2); an Executor
// must honor ctx.Done() rather than run past it.
type Executor interface {
	Execute(ctx context.Context, payload domain.Bag) (output domain.Bag, err error)
}

// Registry resolves a domain.JobType to its Executor. An unregistered type
// is reported as a configuration error; the dispatch pool retries it like
// any other attempt failure.
type Registry struct {
	mu        sync.RWMutex
	executors map[domain.JobType]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[domain.JobType]Executor)}
}

func (r *Registry) Register(t domain.JobType, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[t] = e
}

func (r *Registry) Resolve(t domain.JobType) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[t]
	if !ok {
		return nil, fmt.Errorf("%w: no executor registered for job type %q", domain.ErrConfigurationError, t)
	}
	return e, nil
}

// Execute resolves t's Executor and runs it with the given absolute
// deadline applied to ctx.
func (r *Registry) Execute(ctx context.Context, t domain.JobType, payload domain.Bag, deadline time.Time) (domain.Bag, error) {
	e, err := r.Resolve(t)
	if err != nil {
		return nil, err
	}
	dctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return e.Execute(dctx, payload)
}

// DefaultRegistry wires the five reference job-type adapters (spec §6)
// behind a shared *http.Client. custom handlers must still be registered
// by the caller via the returned *Custom before it can serve any job.
func DefaultRegistry(client *http.Client) (*Registry, *Custom) {
	if client == nil {
		client = http.DefaultClient
	}
	custom := NewCustom()
	r := NewRegistry()
	r.Register(domain.JobTypeHTTP, NewHTTP(client))
	r.Register(domain.JobTypeWebhook, NewWebhook(client))
	r.Register(domain.JobTypeScript, NewScript())
	r.Register(domain.JobTypeEmail, NewMail(nil))
	r.Register(domain.JobTypeCustom, custom)
	return r, custom
}
