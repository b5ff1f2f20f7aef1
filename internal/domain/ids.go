package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID produces a time-ordered opaque identifier suitable for jobs,
// executions, and log lines. Using UUIDv7 keeps primary-key and index
// locality good under high insert rates (monotonic-ish within a millisecond).
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}
