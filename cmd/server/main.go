package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tansinh/switchboard/internal/allocator"
	"github.com/tansinh/switchboard/internal/config"
	"github.com/tansinh/switchboard/internal/database"
	"github.com/tansinh/switchboard/internal/handler"
	"github.com/tansinh/switchboard/internal/ingest"
	"github.com/tansinh/switchboard/internal/notify"
	"github.com/tansinh/switchboard/internal/pipeline"
	"github.com/tansinh/switchboard/internal/scheduler"
	"github.com/tansinh/switchboard/internal/storage"
	"github.com/tansinh/switchboard/pkg/middleware"
)

const version = "1.0.0"

func main() {
	// Load .env if present (local development)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Initialize logger
	config.InitLogger(cfg)

	slog.Info("Starting Switchboard", "version", version)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to MongoDB
	db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTimeout)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Disconnect(context.Background()); err != nil {
			slog.Error("Failed to disconnect from MongoDB", "error", err)
		}
	}()

	// Create indexes
	if err := database.CreateIndexes(ctx, db); err != nil {
		slog.Error("Failed to create indexes", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	slotRepo := database.NewSlotRepository(db)
	priorityRepo := database.NewPriorityRepository(db)
	leaseRepo := database.NewLeaseRepository(db)
	recordingRepo := database.NewRecordingRepository(db)
	tokenRepo := database.NewTokenRepository(db)

	// Provision slot documents for the configured credential pool
	pool := cfg.CredentialPool()
	if pool.Empty() {
		slog.Warn("No telephony credentials configured, slot requests will be rejected")
	}
	if err := slotRepo.EnsureSlots(ctx, pool.SlotNumbers()); err != nil {
		slog.Error("Failed to provision credential slots", "error", err)
		os.Exit(1)
	}

	// Initialize durable storage
	objectStore, err := storage.New(storage.Config{
		Endpoint:      cfg.StorageEndpoint,
		AccessKey:     cfg.StorageAccessKey,
		SecretKey:     cfg.StorageSecretKey,
		Bucket:        cfg.StorageBucket,
		UseSSL:        cfg.StorageUseSSL,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		slog.Error("Failed to initialize durable storage", "error", err)
		os.Exit(1)
	}

	// Initialize push notifier (optional)
	var notifier *notify.Notifier
	if cfg.PushEnabled && cfg.PushCredentialsFile != "" {
		notifier, err = notify.NewNotifier(cfg.PushCredentialsFile, tokenRepo)
		if err != nil {
			slog.Error("Failed to initialize push notifier, continuing without push", "error", err)
			notifier = nil
		}
	}

	// Initialize slot allocator
	alloc := allocator.New(
		slotRepo,
		priorityRepo,
		pool,
		cfg.HeartbeatTimeout,
		cfg.SlotWriteRetries,
		cfg.SlotWriteBackoff,
	)

	// Initialize recording pipeline
	pipelineCfg := pipeline.DefaultConfig()
	pipelineCfg.LockTTL = cfg.PipelineLockTTL
	pipelineCfg.BatchSize = cfg.PipelineBatchSize
	pipelineCfg.MaxRetries = cfg.PipelineMaxRetries
	pipelineCfg.StuckThreshold = cfg.StuckThreshold
	pipelineCfg.Download = pipeline.RetryPolicy{
		MaxAttempts:    cfg.DownloadAttempts,
		Delay:          cfg.DownloadRetryDelay,
		AttemptTimeout: cfg.DownloadTimeout,
	}
	fetcher := pipeline.NewHTTPFetcher(pool.Fallback())
	runner := pipeline.NewRunner(pipelineCfg, leaseRepo, recordingRepo, fetcher, objectStore)

	// Initialize call-event ingestion
	var pusher ingest.Pusher
	if notifier != nil {
		pusher = notifier
	}
	ingestService := ingest.NewService(recordingRepo, pusher, cfg.DedupWindow)

	// Initialize scheduler
	sched, err := scheduler.New(runner, cfg.PipelineCronSpec, cfg.SchedulerEnabled)
	if err != nil {
		slog.Error("Invalid pipeline cron spec", "cron", cfg.PipelineCronSpec, "error", err)
		os.Exit(1)
	}
	sched.Start(ctx)

	// Initialize handlers
	slotHandler := handler.NewSlotHandler(alloc)
	priorityHandler := handler.NewPriorityHandler(priorityRepo)
	pipelineHandler := handler.NewPipelineHandler(runner)
	webhookHandler := handler.NewWebhookHandler(ingestService)
	healthHandler := handler.NewHealthHandler(db, version)

	// Create CORS config
	corsConfig := middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		AllowCredentials: cfg.CORSAllowCredentials,
		MaxAge:           cfg.CORSMaxAge,
	}

	// Create router
	router := handler.NewRouter(
		slotHandler,
		priorityHandler,
		pipelineHandler,
		webhookHandler,
		healthHandler,
		corsConfig,
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Starting HTTP server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Received shutdown signal, initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop scheduler first (wait for an in-flight pipeline run)
	slog.Info("Stopping scheduler...")
	sched.Stop(shutdownCtx)

	// Shutdown HTTP server
	slog.Info("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Switchboard stopped")
}
