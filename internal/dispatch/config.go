package dispatch

import "time"

// Config holds worker process tuning knobs (spec §6's worker
// concurrency/limiter/timeout configuration), mirroring the teacher's
// WorkerConfig shape.
type Config struct {
	// WorkerID identifies this process in worker_id columns and lease
	// ownership checks (e.g. hostname-pid).
	WorkerID string

	// Concurrency bounds the number of attempts this pool runs at once
	// (spec §4.4's "bounded worker pool of size C").
	Concurrency int

	// RateLimit caps attempt starts per second across the whole pool; 0
	// disables the cap.
	RateLimit float64
	// RateBurst is the limiter's burst allowance.
	RateBurst int

	// PollInterval is how often Run asks the Ready Queue for work when the
	// last Claim came back empty.
	PollInterval time.Duration

	// VisibilityTimeout is the lease window Claim grants per attempt;
	// Heartbeat extends it while the attempt is still running.
	VisibilityTimeout time.Duration
	// HeartbeatInterval is how often a running attempt's visibility is
	// extended; must be well under VisibilityTimeout.
	HeartbeatInterval time.Duration
}

// DefaultConfig returns spec §6's documented worker defaults: concurrency
// 5, rate cap 100 dispatches per 60s.
func DefaultConfig(workerID string) Config {
	return Config{
		WorkerID:          workerID,
		Concurrency:       5,
		RateLimit:         100.0 / 60.0,
		RateBurst:         100,
		PollInterval:      time.Second,
		VisibilityTimeout: 5 * time.Minute,
		HeartbeatInterval: time.Minute,
	}
}

// FromPoolConfig builds a Config from the environment-loaded
// config.WorkerPoolConfig (spec §6's concurrency/limiter block), applied
// on top of DefaultConfig's remaining knobs.
func FromPoolConfig(workerID string, concurrency, limiterMax, limiterWindowMS int) Config {
	cfg := DefaultConfig(workerID)
	if concurrency > 0 {
		cfg.Concurrency = concurrency
	}
	if limiterMax > 0 && limiterWindowMS > 0 {
		cfg.RateLimit = float64(limiterMax) / (float64(limiterWindowMS) / 1000.0)
		cfg.RateBurst = limiterMax
	}
	return cfg
}
