package executor

import (
	"context"
	"fmt"

	"github.com/rezkam/jobcore/internal/domain"
)

// CustomHandler is a named, in-process handler for domain.JobTypeCustom
// jobs (spec §3's "custom" job type). Deployments register their own
// handlers against payload["handler"] before starting dispatch.
type CustomHandler func(ctx context.Context, payload domain.Bag) (domain.Bag, error)

// Custom dispatches to a registered CustomHandler by name.
type Custom struct {
	handlers map[string]CustomHandler
}

func NewCustom() *Custom {
	return &Custom{handlers: make(map[string]CustomHandler)}
}

func (c *Custom) Register(name string, h CustomHandler) {
	c.handlers[name] = h
}

func (c *Custom) Execute(ctx context.Context, payload domain.Bag) (domain.Bag, error) {
	name, _ := payload["handler"].(string)
	if name == "" {
		return nil, fmt.Errorf("%w: custom executor requires payload.handler", domain.ErrConfigurationError)
	}
	h, ok := c.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: no custom handler registered for %q", domain.ErrConfigurationError, name)
	}
	return h(ctx, payload)
}
