package config

// StoreConfig holds Durable Store connection configuration (spec §6's
// store connection block, store{host, port, name, user, password,
// pool{max, min, acquire, idle}}). An empty DSN selects the in-memory
// backend, used for local development and tests.
type StoreConfig struct {
	// DSN is the store database's connection string: a libpq URL for
	// Driver "postgres", or a file path (or ":memory:") for Driver "sqlite".
	DSN string `env:"JOBCORE_STORE_DSN"`

	// Driver selects the SQL backend: "postgres" (default, when empty) or
	// "sqlite". The sqlite driver is a local/dev/test convenience that needs
	// no running database server; it is not a recommended production backend.
	Driver string `env:"JOBCORE_STORE_DRIVER"`

	PoolMax       int `env:"JOBCORE_STORE_POOL_MAX"`
	PoolMin       int `env:"JOBCORE_STORE_POOL_MIN"`
	PoolAcquireMS int `env:"JOBCORE_STORE_POOL_ACQUIRE_MS"`
	PoolIdleMS    int `env:"JOBCORE_STORE_POOL_IDLE_MS"`
}

// QueueConfig holds Ready Queue connection configuration (spec §6's queue
// connection block). An empty DSN selects the in-memory backend.
type QueueConfig struct {
	// DSN is the PostgreSQL connection string for the queue database. May
	// point at the same database as StoreConfig.DSN or a dedicated one.
	DSN              string `env:"JOBCORE_QUEUE_DSN"`
	MaxRetriesPerReq int    `env:"JOBCORE_QUEUE_MAX_RETRIES_PER_REQUEST"`
}
