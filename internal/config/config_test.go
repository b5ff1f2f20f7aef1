package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWorkerConfig_DefaultsSurviveUnsetEnv(t *testing.T) {
	os.Clearenv()

	cfg, err := LoadWorkerConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultJobDefaultsConfig(), cfg.Job)
	assert.Equal(t, DefaultWorkerPoolConfig(), cfg.Pool)
	assert.Equal(t, 30, cfg.ShutdownGraceSec)
	assert.Empty(t, cfg.Store.DSN, "empty DSN selects the in-memory backend")
}

func TestLoadWorkerConfig_EnvOverridesDefaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("JOBCORE_STORE_DSN", "postgres://localhost/jobcore")
	os.Setenv("JOBCORE_WORKER_CONCURRENCY", "20")
	os.Setenv("JOBCORE_JOB_MAX_RETRY_ATTEMPTS", "5")
	t.Cleanup(os.Clearenv)

	cfg, err := LoadWorkerConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/jobcore", cfg.Store.DSN)
	assert.Equal(t, 20, cfg.Pool.Concurrency)
	assert.Equal(t, 5, cfg.Job.MaxRetryAttempts)
	// Fields left unset keep their pre-filled defaults.
	assert.Equal(t, 5000, cfg.Job.RetryDelayMS)
}

func TestLoadServerConfig_DefaultsSurviveUnsetEnv(t *testing.T) {
	os.Clearenv()

	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPConfig(), cfg.HTTP)
	assert.Equal(t, "jobcore", cfg.Observability.ServiceName)
	assert.Equal(t, 30, cfg.ShutdownGraceSec)
}

func TestLoadServerConfig_EnvOverridesHTTP(t *testing.T) {
	os.Clearenv()
	os.Setenv("JOBCORE_HTTP_PORT", "9090")
	os.Setenv("JOBCORE_HTTP_API_PREFIX", "/v2")
	t.Cleanup(os.Clearenv)

	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, "/v2", cfg.HTTP.APIPrefix)
	assert.Equal(t, DefaultHTTPConfig().ReadTimeoutMS, cfg.HTTP.ReadTimeoutMS)
}
