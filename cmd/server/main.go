/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (YAML file + LEAVE_* environment)
  2. Build the zap logger
  3. Open the SQLite store
  4. Build the working-day calendar (configured + stored holidays)
  5. Start the event dispatcher (Redis when enabled, log otherwise)
  6. Wire services, handler and router
  7. Start the balance scheduler and the HTTP server

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete
  3. Stop the scheduler and drain queued events
  4. Close Redis and the database

EXAMPLES:
  # Run with a config file
  ./server -config=./configs/leave.yaml

  # Run in memory with env overrides only
  LEAVE_DATABASE_PATH=":memory:" LEAVE_AUTH_JWT_SECRET=... ./server

SEE ALSO:
  - config/config.go: Keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
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

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/logging"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/timeoff"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}
	defer store.Close()
	store.Logger = logger.Named("store")

	// Calendar: configured holidays plus the ones HR manages at runtime
	staticHolidays, err := cfg.Calendar.ParseHolidays()
	if err != nil {
		logger.Fatal("Invalid holiday configuration", zap.Error(err))
	}
	calendar := generic.NewCalendar(generic.MultiCalendar{
		generic.NewHolidaySet(staticHolidays...),
		store,
	})

	defaultMode, err := cfg.Workflow.Mode()
	if err != nil {
		logger.Fatal("Invalid default approval mode", zap.Error(err))
	}

	// Event delivery
	publisher, redisClient := newPublisher(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	dispatcher := notify.NewDispatcher(publisher, logger.Named("notify"), notify.DispatcherConfig{
		QueueSize:   cfg.Notify.QueueSize,
		MaxAttempts: cfg.Notify.MaxAttempts,
		Backoff:     cfg.Notify.Backoff,
	})
	dispatcher.Start()

	// Services
	profiles := timeoff.NewProfileService(store, store)
	profiles.Logger = logger.Named("profiles")

	requests := timeoff.NewRequestService(store, store, calendar, defaultMode)
	requests.Logger = logger.Named("requests")
	requests.Notifier = dispatcher

	// Handler
	handler := api.NewHandler(profiles, requests, store, store)
	handler.Employees = store
	handler.Resetter = store
	handler.Logger = logger.Named("api")

	auth := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	router := api.NewRouter(handler, auth, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.Named("http"),
	})

	// Balance cache refresh
	scheduler := api.NewBalanceScheduler(profiles, logger.Named("scheduler"))
	scheduler.Enabled = cfg.Scheduler.Enabled
	if cfg.Scheduler.Interval > 0 {
		scheduler.CheckInterval = cfg.Scheduler.Interval
	}
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting",
			zap.String("addr", server.Addr),
			zap.String("default_mode", string(defaultMode)),
			zap.Bool("redis", redisClient != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	scheduler.Stop()
	if err := dispatcher.Stop(ctx); err != nil {
		logger.Warn("Event queue not drained", zap.Error(err))
	}
	stats := dispatcher.Stats()
	logger.Info("Server stopped",
		zap.Int64("events_published", stats.Published),
		zap.Int64("events_failed", stats.Failed),
		zap.Int64("events_dropped", stats.Dropped),
	)
}

// newPublisher returns a Redis publisher when Redis is enabled and reachable,
// and a log publisher otherwise.
func newPublisher(cfg *config.Config, logger *zap.Logger) (notify.Publisher, *redis.Client) {
	if !cfg.Redis.Enabled {
		return notify.NewLogPublisher(logger.Named("events")), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("Redis unreachable, logging events instead",
			zap.String("addr", cfg.Redis.Addr()),
			zap.Error(err),
		)
		client.Close()
		return notify.NewLogPublisher(logger.Named("events")), nil
	}

	logger.Info("Publishing events to Redis",
		zap.String("addr", cfg.Redis.Addr()),
		zap.String("channel", cfg.Redis.Channel),
		zap.String("queue", cfg.Redis.Queue),
	)
	return notify.NewRedisPublisher(client, cfg.Redis.Channel, cfg.Redis.Queue), client
}
