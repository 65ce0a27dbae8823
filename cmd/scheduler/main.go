package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dialer_backend/internal/dispatch/repository"
	"dialer_backend/internal/dispatch/service"
	"dialer_backend/internal/events"
	"dialer_backend/internal/notification"
	"dialer_backend/internal/scheduler"
	"dialer_backend/internal/telephony"
	"dialer_backend/internal/workflows"
	"dialer_backend/platform/config"
	"dialer_backend/platform/db"
	"dialer_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer client.Close()

	callsClient := telephony.NewClient(cfg, log)

	repo := repository.New(pool)
	engine := service.New(repo, callsClient, client, eventBus, log, cfg.GetEnrollmentLookback())
	executor := workflows.NewExecutor(repo, callsClient, log)

	var alertSender notification.Sender
	if smtp := notification.NewSMTPSender(cfg); smtp != nil {
		alertSender = smtp
	}
	notification.NewAlertService(pool, alertSender, eventBus, log)

	worker, err := scheduler.NewWorker(cfg, engine, executor, repo, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}
	if err := worker.Start(); err != nil {
		log.Error("failed to start worker", "error", err)
		panic("failed to start worker: " + err.Error())
	}
	log.Info("worker started", "queue", cfg.GetAsynqQueueName(), "concurrency", cfg.GetAsynqConcurrency())

	enqueuer := scheduler.NewCycleEnqueuer(repo, client, cfg, log)
	enqueuerDone := make(chan struct{})
	go func() {
		defer close(enqueuerDone)
		if err := enqueuer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("cycle enqueuer stopped", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, gracefully shutting down")

	worker.Shutdown()
	<-enqueuerDone
	log.Info("scheduler stopped")
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
