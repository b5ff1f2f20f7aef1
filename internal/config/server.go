package config

import (
	"fmt"

	"github.com/rezkam/jobcore/internal/env"
)

// ServerConfig holds all configuration for the server binary, which runs
// the reconciliation sweep and serves the health endpoints over HTTP
// (spec §6).
type ServerConfig struct {
	Store            StoreConfig
	Queue            QueueConfig
	Job              JobDefaultsConfig
	HTTP             HTTPConfig
	Observability    ObservabilityConfig
	Logging          LoggingConfig
	ShutdownGraceSec int `env:"JOBCORE_SHUTDOWN_GRACE_SEC"`
}

// HTTPConfig holds server.port / server.api_prefix and the surrounding
// net/http.Server tuning knobs.
type HTTPConfig struct {
	Host              string `env:"JOBCORE_HTTP_HOST"`
	Port              string `env:"JOBCORE_HTTP_PORT"`
	APIPrefix         string `env:"JOBCORE_HTTP_API_PREFIX"`
	ReadTimeoutMS     int    `env:"JOBCORE_HTTP_READ_TIMEOUT_MS"`
	WriteTimeoutMS    int    `env:"JOBCORE_HTTP_WRITE_TIMEOUT_MS"`
	IdleTimeoutMS     int    `env:"JOBCORE_HTTP_IDLE_TIMEOUT_MS"`
	ReadHeaderTimeoutMS int  `env:"JOBCORE_HTTP_READ_HEADER_TIMEOUT_MS"`
}

// ObservabilityConfig toggles OTLP export, named and shaped after the
// teacher's own ObservabilityConfig.
type ObservabilityConfig struct {
	OTelEnabled bool   `env:"JOBCORE_OTEL_ENABLED"`
	ServiceName string `env:"OTEL_SERVICE_NAME"`
}

// DefaultHTTPConfig returns sensible defaults for HTTPConfig.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Host:                "0.0.0.0",
		Port:                "8080",
		APIPrefix:           "/api/v1",
		ReadTimeoutMS:       5000,
		WriteTimeoutMS:      10000,
		IdleTimeoutMS:       120000,
		ReadHeaderTimeoutMS: 5000,
	}
}

// LoadServerConfig loads server configuration from the environment, having
// pre-filled spec §6's documented defaults for any field the environment
// leaves unset.
func LoadServerConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{
		Job:              DefaultJobDefaultsConfig(),
		HTTP:             DefaultHTTPConfig(),
		Observability:    ObservabilityConfig{ServiceName: "jobcore"},
		ShutdownGraceSec: 30,
	}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}

	return cfg, nil
}
