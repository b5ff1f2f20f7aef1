package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rezkam/jobcore/internal/domain"
)

// Script runs payload.command (with payload.args) as a subprocess. Exit
// code 0 is success; stdout/stderr are captured (trimmed) into the output
// bag regardless of outcome.
type Script struct{}

func NewScript() *Script { return &Script{} }

func (Script) Execute(ctx context.Context, payload domain.Bag) (domain.Bag, error) {
	command, _ := payload["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("%w: script executor requires payload.command", domain.ErrConfigurationError)
	}
	var args []string
	if raw, ok := payload["args"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				args = append(args, s)
			}
		}
	}

	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	out := domain.Bag{
		"stdout": strings.TrimSpace(stdout.String()),
		"stderr": strings.TrimSpace(stderr.String()),
	}
	if runErr != nil {
		return out, fmt.Errorf("script executor: %w", runErr)
	}
	return out, nil
}
