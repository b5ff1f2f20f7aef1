package config

import (
	"fmt"

	"github.com/rezkam/jobcore/internal/env"
)

// TestConfig holds configuration for integration tests that need a real
// Postgres DSN rather than the in-memory backends.
type TestConfig struct {
	Store StoreConfig
	Queue QueueConfig
}

// LoadTestConfig loads test configuration from the environment.
func LoadTestConfig() (*TestConfig, error) {
	cfg := &TestConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load test config: %w", err)
	}

	return cfg, nil
}
