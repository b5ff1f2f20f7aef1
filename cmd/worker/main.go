package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/multierr"

	"github.com/rezkam/jobcore/internal/clock"
	"github.com/rezkam/jobcore/internal/config"
	"github.com/rezkam/jobcore/internal/dispatch"
	"github.com/rezkam/jobcore/internal/executor"
	"github.com/rezkam/jobcore/internal/healthserver"
	"github.com/rezkam/jobcore/internal/notifier"
	"github.com/rezkam/jobcore/internal/observability"
	"github.com/rezkam/jobcore/internal/planner"
	"github.com/rezkam/jobcore/internal/queue"
	"github.com/rezkam/jobcore/internal/queue/memqueue"
	"github.com/rezkam/jobcore/internal/queue/pgqueue"
	"github.com/rezkam/jobcore/internal/store"
	"github.com/rezkam/jobcore/internal/store/memstore"
	"github.com/rezkam/jobcore/internal/store/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// shutdownErrs collects every independent teardown error (telemetry
	// providers, store, queue) so the process reports one combined error
	// instead of only the last one logged.
	var shutdownErrs error
	defer func() {
		if shutdownErrs != nil {
			slog.Error("shutdown completed with errors", "error", shutdownErrs)
		}
	}()

	serviceName := "jobcore-worker"
	lp, logger, err := observability.InitLogger(ctx, serviceName, false)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lp.Shutdown(shutdownCtx); err != nil {
			shutdownErrs = multierr.Append(shutdownErrs, fmt.Errorf("logger provider: %w", err))
		}
	}()
	slog.SetDefault(logger)

	tp, err := observability.InitTracerProvider(ctx, serviceName, false)
	if err != nil {
		return fmt.Errorf("failed to init tracer provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			shutdownErrs = multierr.Append(shutdownErrs, fmt.Errorf("tracer provider: %w", err))
		}
	}()

	workerID := cfg.WorkerID
	if workerID == "" {
		if host, err := os.Hostname(); err == nil {
			workerID = fmt.Sprintf("%s-%d", host, os.Getpid())
		} else {
			workerID = fmt.Sprintf("worker-%d", os.Getpid())
		}
	}

	slog.InfoContext(ctx, "starting jobcore worker", "worker_id", workerID)

	st, err := connectStoreWithRetry(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			shutdownErrs = multierr.Append(shutdownErrs, fmt.Errorf("store close: %w", err))
		}
	}()

	q, err := connectQueueWithRetry(ctx, cfg.Queue)
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}
	defer func() {
		if err := q.Close(); err != nil {
			shutdownErrs = multierr.Append(shutdownErrs, fmt.Errorf("queue close: %w", err))
		}
	}()

	pl := planner.New(st, q, clock.System{})
	registry, _ := executor.DefaultRegistry(nil)
	sink := notifier.LogSink{}
	dispatchCfg := dispatch.FromPoolConfig(workerID, cfg.Pool.Concurrency, cfg.Pool.LimiterMax, cfg.Pool.LimiterWindowMS)

	pool := dispatch.New(st, q, pl, registry, sink, clock.System{}, dispatchCfg)

	poolDone := make(chan error, 1)
	go func() {
		poolDone <- pool.Run(ctx)
	}()

	hs := healthserver.New(
		":8081",
		func(ctx context.Context) error { _, err := st.ListJobsByStatus(ctx, "", 1); return err },
	)
	hsErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "health server listening", "addr", ":8081")
		if err := hs.ListenAndServe(); err != nil {
			hsErr <- fmt.Errorf("health server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutting down", "grace_seconds", cfg.ShutdownGraceSec)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownGraceSec)*time.Second)
		defer cancel()

		if err := hs.Shutdown(shutdownCtx); err != nil {
			shutdownErrs = multierr.Append(shutdownErrs, fmt.Errorf("health server shutdown: %w", err))
		}

		select {
		case err := <-poolDone:
			if err != nil {
				slog.WarnContext(shutdownCtx, "worker pool exited with error", "error", err)
			}
		case <-shutdownCtx.Done():
			slog.WarnContext(shutdownCtx, "worker pool drain timed out")
		}
		return nil
	case err := <-poolDone:
		return err
	case err := <-hsErr:
		return err
	}
}

func newStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	if cfg.DSN == "" {
		return memstore.New(), nil
	}
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	return postgres.New(ctx, postgres.Config{Driver: driver, DSN: cfg.DSN})
}

func newQueue(ctx context.Context, cfg config.QueueConfig) (queue.Queue, error) {
	if cfg.DSN == "" {
		return memqueue.New(), nil
	}
	return pgqueue.New(ctx, cfg.DSN)
}

// connectStoreWithRetry and connectQueueWithRetry retry the initial
// connection with exponential backoff: a worker started a few seconds
// before its database is ready (a common container-orchestration race)
// should not crash-loop, since the connection itself is almost always
// transient rather than a configuration error. This is distinct from the
// spec-mandated per-attempt job retry formula in internal/dispatch, which
// is computed directly against exact millisecond values.
func connectStoreWithRetry(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	return backoff.Retry(ctx, func() (store.Store, error) {
		st, err := newStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return st, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
}

func connectQueueWithRetry(ctx context.Context, cfg config.QueueConfig) (queue.Queue, error) {
	return backoff.Retry(ctx, func() (queue.Queue, error) {
		q, err := newQueue(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return q, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
}
