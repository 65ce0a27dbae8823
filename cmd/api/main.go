package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dialer_backend/internal/adapters/storage"
	"dialer_backend/internal/auth"
	"dialer_backend/internal/dispatch"
	"dialer_backend/internal/events"
	apphttp "dialer_backend/internal/http"
	"dialer_backend/internal/http/router"
	"dialer_backend/internal/notification"
	"dialer_backend/internal/scheduler"
	"dialer_backend/internal/telephony"
	"dialer_backend/platform/config"
	"dialer_backend/platform/db"
	"dialer_backend/platform/logger"
	"dialer_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting api server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	// Object storage for archived call recordings. Optional: without it,
	// recordings stay on the provider.
	var storageSvc *storage.MinIOService
	if cfg.IsMinIOEnabled() {
		storageSvc, err = storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		if err := withRetry(ctx, log, "ensure recordings bucket", 5, 2*time.Second, func() error {
			return storageSvc.EnsureBucketExists(ctx, cfg.GetMinioBucketCallRecordings())
		}); err != nil {
			log.Error("failed to ensure storage bucket exists", "error", err)
			panic("failed to ensure storage bucket exists: " + err.Error())
		}
		log.Info("storage service initialized", "recordingsBucket", cfg.GetMinioBucketCallRecordings())
	}

	// Workflow execution runs on the scheduler deployment; the API only
	// enqueues trigger tasks.
	workflowTrigger, closeScheduler := initWorkflowTrigger(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	callsClient := telephony.NewClient(cfg, log)

	authModule := auth.NewModule(pool, cfg, val, log)
	dispatchModule := dispatch.NewModule(pool, callsClient, workflowTrigger, eventBus, log, val, cfg.GetEnrollmentLookback())

	var objectStorage telephony.ObjectStorage
	if storageSvc != nil {
		objectStorage = storageSvc
	}
	telephonyModule := telephony.NewModule(cfg, callsClient, dispatchModule.Repository, dispatchModule.Repository,
		dispatchModule.Repository, objectStorage, cfg.GetMinioBucketCallRecordings(), eventBus, log)

	var alertSender notification.Sender
	if smtp := notification.NewSMTPSender(cfg); smtp != nil {
		alertSender = smtp
	}
	notification.NewAlertService(pool, alertSender, eventBus, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:       cfg,
		Logger:       log,
		Health:       db.NewPoolAdapter(pool),
		EventBus:     eventBus,
		InternalAuth: authModule.InternalAuth(),
		Modules: []apphttp.Module{
			authModule,
			dispatchModule,
			telephonyModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initWorkflowTrigger(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; workflow execution triggers disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil, nil
	}
	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
