package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/multierr"

	"github.com/rezkam/jobcore/internal/clock"
	"github.com/rezkam/jobcore/internal/config"
	"github.com/rezkam/jobcore/internal/dispatch"
	"github.com/rezkam/jobcore/internal/healthserver"
	"github.com/rezkam/jobcore/internal/observability"
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
	cfg, err := config.LoadServerConfig()
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

	lp, logger, err := observability.InitLogger(ctx, cfg.Observability.ServiceName, cfg.Observability.OTelEnabled)
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

	tp, err := observability.InitTracerProvider(ctx, cfg.Observability.ServiceName, cfg.Observability.OTelEnabled)
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

	mp, err := observability.InitMeterProvider(ctx, cfg.Observability.ServiceName, cfg.Observability.OTelEnabled)
	if err != nil {
		return fmt.Errorf("failed to init meter provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			shutdownErrs = multierr.Append(shutdownErrs, fmt.Errorf("meter provider: %w", err))
		}
	}()

	slog.InfoContext(ctx, "starting jobcore server")

	st, err := connectStoreWithRetry(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			shutdownErrs = multierr.Append(shutdownErrs, fmt.Errorf("store close: %w", err))
		}
	}()
	slog.InfoContext(ctx, "store initialized", "dsn", maskPassword(cfg.Store.DSN))

	q, err := connectQueueWithRetry(ctx, cfg.Queue)
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}
	defer func() {
		if err := q.Close(); err != nil {
			shutdownErrs = multierr.Append(shutdownErrs, fmt.Errorf("queue close: %w", err))
		}
	}()
	slog.InfoContext(ctx, "queue initialized", "dsn", maskPassword(cfg.Queue.DSN))

	holderID, err := os.Hostname()
	if err != nil || holderID == "" {
		holderID = "jobcore-server"
	}

	reconciler := dispatch.NewReconciler(st, q, clock.System{}, dispatch.DefaultReconcilerConfig(holderID))

	reconcilerCtx, stopReconciler := context.WithCancel(ctx)
	defer stopReconciler()
	reconcilerDone := make(chan error, 1)
	go func() {
		reconcilerDone <- reconciler.Run(reconcilerCtx)
	}()

	hs := healthserver.New(
		cfg.HTTP.Host+":"+cfg.HTTP.Port,
		func(ctx context.Context) error { _, err := st.ListJobsByStatus(ctx, "", 1); return err },
	)

	errResult := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "health server listening", "addr", cfg.HTTP.Host+":"+cfg.HTTP.Port)
		if err := hs.ListenAndServe(); err != nil {
			errResult <- fmt.Errorf("health server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutting down")
		shutdownCtx, cancel := newShutdownContext(cfg.ShutdownGraceSec)
		defer cancel()

		stopReconciler()
		<-reconcilerDone

		if err := hs.Shutdown(shutdownCtx); err != nil {
			shutdownErrs = multierr.Append(shutdownErrs, fmt.Errorf("health server shutdown: %w", err))
		}
		return nil
	case err := <-errResult:
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
// connection with exponential backoff: a worker/server started a few
// seconds before its database is ready (a common container-orchestration
// race) should not crash-loop, since the connection itself is almost
// always transient rather than a configuration error. This is distinct
// from the spec-mandated per-attempt job retry formula in internal/dispatch,
// which is computed directly against exact millisecond values.
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

// newShutdownContext creates a fresh context with timeout for graceful
// shutdown operations. Uses Background() since the main context is already
// cancelled at shutdown time, but a timeout window is still needed to
// complete cleanup operations.
func newShutdownContext(graceSec int) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(graceSec)*time.Second)
}

// maskPassword masks the password in a connection string for logging.
func maskPassword(connStr string) string {
	if connStr == "" {
		return "(in-memory)"
	}
	u, err := url.Parse(connStr)
	if err != nil {
		return "[REDACTED]"
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "xxxxxx")
		}
	}
	return u.String()
}
