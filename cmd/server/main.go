/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (file, .env, LEAVE_* environment) and apply flags
  2. Build the zap logger
  3. Initialize SQLite store (auto-migrates)
  4. Pick the key locker (in-process or Redis)
  5. Wire registry, ledger and request lifecycle
  6. Seed the default leave types
  7. Configure HTTP router and start the scheduler
  8. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Config file path (default: ./leave-ledger.yaml if present)
  -port    HTTP server port, overrides http.port
  -db      SQLite database path, overrides database.path
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight run)
  2. Stop accepting new connections
  3. Wait for active requests to complete (http.shutdown_timeout)
  4. Close Redis and database connections

EXAMPLES:
  ./server -db="./data/leave.db"
  LEAVE_LOCK_BACKEND=redis LEAVE_LOCK_REDIS_ADDR=redis:6379 ./server

SEE ALSO:
  - config/config.go: All settings and their defaults
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/api"
	"github.com/warp/leave-ledger/config"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/logging"
	"github.com/warp/leave-ledger/metrics"
	"github.com/warp/leave-ledger/store/redislock"
	"github.com/warp/leave-ledger/store/sqlite"
	"github.com/warp/leave-ledger/timeoff"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "", "config file path")
	port := flag.String("port", "", "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != "" {
		cfg.HTTP.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	locker, closeLocker, err := newLocker(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	registry := metrics.New()
	clock := generic.SystemClock{}

	types := timeoff.NewRegistry(store, clock, logger.Named("registry"))
	ledger := timeoff.NewLedgerService(store, types)
	ledger.Locker = locker
	ledger.Clock = clock
	ledger.Logger = logger.Named("ledger")
	ledger.Metrics = registry

	leaves := timeoff.NewRequestService(ledger, store)
	leaves.Logger = logger.Named("leaves")
	leaves.Authorizer = timeoff.AllowAll{}
	leaves.ReconcileOnApprove = cfg.Lifecycle.ReconcileOnApprove
	if cfg.Calendar.Holidays {
		leaves.Calendar = &generic.WorkweekCalendar{Holidays: store, CompanyID: cfg.Calendar.CompanyID}
	}

	ctx := context.Background()
	seeded, err := timeoff.SeedDefaults(ctx, types)
	if err != nil {
		return fmt.Errorf("failed to seed leave types: %w", err)
	}
	if seeded > 0 {
		logger.Info("seeded default leave types", zap.Int("count", seeded))
	}

	handler := api.NewHandler(ledger, leaves, types, store, store)
	handler.Ping = store.Ping
	if cfg.Demo.Scenarios {
		logger.Warn("demo scenarios enabled; loading one wipes the database")
		handler.Reset = store.Reset
	}
	router := api.NewRouter(handler, api.RouterOptions{
		Logger:      logger.Named("http"),
		Metrics:     registry,
		CORSOrigins: cfg.HTTP.CORSOrigins,
	})

	scheduler := api.NewScheduler(ledger, leaves, locker, logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.CheckInterval = cfg.Scheduler.Interval

	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db", cfg.Database.Path),
			zap.String("lock_backend", cfg.Lock.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newLocker returns the configured KeyLocker and its close func.
func newLocker(cfg *config.Config, logger *zap.Logger) (generic.KeyLocker, func(), error) {
	if cfg.Lock.Backend != config.LockBackendRedis {
		return generic.NewMutexLocker(), func() {}, nil
	}

	client, err := redislock.Connect(context.Background(), redislock.Config{
		Addr:     cfg.Lock.Redis.Addr,
		Password: cfg.Lock.Redis.Password,
		DB:       cfg.Lock.Redis.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	locker := redislock.New(client, redislock.WithLogger(logger.Named("redislock")))
	return locker, func() {
		if err := locker.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}, nil
}
