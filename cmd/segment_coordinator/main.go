package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/segment_coordinator/internal/config"
	"github.com/italolelis/segment_coordinator/internal/coordination"
	"github.com/italolelis/segment_coordinator/internal/http/rest"
	"github.com/italolelis/segment_coordinator/internal/logctx"
	"github.com/italolelis/segment_coordinator/internal/monitor"
	"github.com/italolelis/segment_coordinator/internal/notifier"
	"github.com/italolelis/segment_coordinator/internal/segment"
	"github.com/italolelis/segment_coordinator/internal/storage"
	redisstore "github.com/italolelis/segment_coordinator/internal/storage/redis"
	"github.com/italolelis/segment_coordinator/internal/storage/sqlite"
	"github.com/italolelis/segment_coordinator/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("segment coordinator starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Shared Store
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
	}

	// =========================================================================
	// Start Coordinator
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = coordination.GenerateWorkerID()
	}

	keys := segment.NewKeys(cfg.KeyPrefix)
	store := redisstore.NewLeaseStore(client)
	pool := redisstore.NewSubscriberPool(client, cfg.SubscriberPoolSize, tel)

	var leaseStore coordination.LeaseStore = coordination.NewInstrumentedLeaseStore(store, tel)

	// =========================================================================
	// Start Event Journal
	var events storage.EventReadRepository

	if cfg.Journal.Enabled {
		db, err := sqlite.InitDB(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open event journal: %w", err)
		}
		defer db.Close()

		repo := sqlite.NewInstrumentedEventRepository(db, tel)
		leaseStore = coordination.NewJournaledLeaseStore(leaseStore, repo)
		events = repo

		logger.Info("event journal enabled", "path", cfg.Journal.Path)
	}

	coord := coordination.NewCoordinator(
		leaseStore,
		pool,
		keys,
		cfg.LeaseDuration,
		cfg.CompletionTTL,
	)

	defer func() {
		if err := coord.Close(context.Background()); err != nil {
			logger.Error("failed to dispose coordinator", "err", err)
		}
	}()

	logger.Info("coordinator ready",
		"worker_id", workerID,
		"key_prefix", cfg.KeyPrefix,
		"lease_duration", cfg.LeaseDuration.String(),
		"completion_ttl", cfg.CompletionTTL.String(),
		"subscriber_pool_size", cfg.SubscriberPoolSize,
	)

	// =========================================================================
	// Start Monitor
	monitor.New(store, pool, keys.LockPattern(), cfg.MonitorInterval, tel).Run(ctx)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	var notif notifier.Notifier
	if cfg.Notifier.WebhookURL != "" {
		notif = &notifier.WebhookNotifier{WebhookURL: cfg.Notifier.WebhookURL}
	}

	server := setupServer(ctx, coord, keys, events, notif, tel, cfg)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// =========================================================================
	// Start Main Loop
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	}
}

// setupServer prepares the handlers and middlewares to create the http rest server.
func setupServer(ctx context.Context, coord *coordination.Coordinator, keys segment.Keys, events storage.EventReadRepository, notif notifier.Notifier, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	handler := rest.NewCoordinatorHandler(cfg.API.Username, cfg.API.Password, coord, keys, events, notif)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Handle("/metrics", tel.Handler())
	r.Mount("/", handler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
