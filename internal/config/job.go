package config

// JobDefaultsConfig holds the defaults applied to a Job when the creation
// request omits the corresponding field (spec §6: job.max_retry_attempts,
// job.retry_delay_ms, job.timeout_ms).
type JobDefaultsConfig struct {
	MaxRetryAttempts int `env:"JOBCORE_JOB_MAX_RETRY_ATTEMPTS"`
	RetryDelayMS     int `env:"JOBCORE_JOB_RETRY_DELAY_MS"`
	TimeoutMS        int `env:"JOBCORE_JOB_TIMEOUT_MS"`
}

// DefaultJobDefaultsConfig returns spec §6's documented defaults.
func DefaultJobDefaultsConfig() JobDefaultsConfig {
	return JobDefaultsConfig{
		MaxRetryAttempts: 3,
		RetryDelayMS:     5000,
		TimeoutMS:        300000,
	}
}
