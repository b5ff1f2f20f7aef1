package config

import (
	"fmt"

	"github.com/rezkam/jobcore/internal/env"
)

// WorkerPoolConfig holds spec §6's worker concurrency/limiter block.
type WorkerPoolConfig struct {
	Concurrency     int `env:"JOBCORE_WORKER_CONCURRENCY"`
	LimiterMax      int `env:"JOBCORE_WORKER_LIMITER_MAX"`
	LimiterWindowMS int `env:"JOBCORE_WORKER_LIMITER_WINDOW_MS"`
}

// DefaultWorkerPoolConfig returns spec §6's documented defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Concurrency:     5,
		LimiterMax:      100,
		LimiterWindowMS: 60000,
	}
}

// WorkerConfig holds all configuration for the worker binary.
type WorkerConfig struct {
	Store            StoreConfig
	Queue            QueueConfig
	Job              JobDefaultsConfig
	Pool             WorkerPoolConfig
	Logging          LoggingConfig
	WorkerID         string `env:"JOBCORE_WORKER_ID"`
	ShutdownGraceSec int    `env:"JOBCORE_SHUTDOWN_GRACE_SEC"`
}

// LoadWorkerConfig loads worker configuration from the environment, having
// pre-filled spec §6's documented defaults for any field the environment
// leaves unset.
func LoadWorkerConfig() (*WorkerConfig, error) {
	cfg := &WorkerConfig{
		Job:              DefaultJobDefaultsConfig(),
		Pool:             DefaultWorkerPoolConfig(),
		ShutdownGraceSec: 30,
	}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load worker config: %w", err)
	}

	return cfg, nil
}
