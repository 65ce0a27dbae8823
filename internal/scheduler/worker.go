package scheduler

import (
	"context"
	"fmt"

	"dialer_backend/internal/dispatch/service"
	"dialer_backend/internal/dispatch/transport"
	"dialer_backend/internal/workflows"
	"dialer_backend/platform/config"
	"dialer_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// CounterResetter zeroes daily phone-number counters.
type CounterResetter interface {
	ResetDailyCallCounts(ctx context.Context) (int, error)
}

// Worker consumes dispatch and workflow tasks from the asynq queue.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	engine   *service.Service
	executor *workflows.Executor
	numbers  CounterResetter
	log      *logger.Logger
}

// NewWorker creates the task consumer.
func NewWorker(cfg config.SchedulerConfig, engine *service.Service, executor *workflows.Executor, numbers CounterResetter, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		engine:   engine,
		executor: executor,
		numbers:  numbers,
		log:      log,
	}

	mux.HandleFunc(TaskDispatchCycle, w.handleDispatchCycle)
	mux.HandleFunc(TaskWorkflowExecute, w.handleWorkflowExecute)
	mux.HandleFunc(TaskResetDailyCounts, w.handleResetDailyCounts)

	return w, nil
}

// Start runs the worker until Shutdown.
func (w *Worker) Start() error {
	return w.server.Start(w.mux)
}

// Shutdown stops the worker, waiting for in-flight tasks.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) handleDispatchCycle(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseTenantPayload(task)
	if err != nil {
		return err
	}
	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return err
	}

	report, err := w.engine.RunCycle(ctx, tenantID)
	if err != nil {
		// A cycle that dispatched part of its batch before a systemic
		// error still made progress; retrying it would double-dial.
		if report.Dispatched > 0 {
			w.log.Warn("cycle finished partially", "tenant_id", tenantID, "error", err)
			return nil
		}
		return err
	}

	if report.Dispatched == 0 && report.Diagnostics != nil &&
		report.Diagnostics.Reason != "no pending queue entries" {
		w.logIdleCycle(tenantID, report)
	}
	return nil
}

func (w *Worker) logIdleCycle(tenantID uuid.UUID, report transport.CycleReport) {
	w.log.Info("cycle dispatched nothing",
		"tenant_id", tenantID,
		"reason", report.Diagnostics.Reason,
		"total_pending", report.Diagnostics.TotalPending,
		"at_capacity", report.AtCapacity)
}

func (w *Worker) handleWorkflowExecute(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseTenantPayload(task)
	if err != nil {
		return err
	}
	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return err
	}

	executed, err := w.executor.ExecutePending(ctx, tenantID)
	if executed > 0 {
		w.log.Info("executed workflow steps", "tenant_id", tenantID, "steps", executed)
	}
	return err
}

func (w *Worker) handleResetDailyCounts(ctx context.Context, _ *asynq.Task) error {
	reset, err := w.numbers.ResetDailyCallCounts(ctx)
	if err != nil {
		return err
	}
	w.log.Info("reset daily call counters", "numbers", reset)
	return nil
}
