package scheduler

import (
	"context"
	"time"

	"dialer_backend/platform/config"
	"dialer_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TenantSource lists tenants that have runnable dispatch work.
type TenantSource interface {
	TenantsWithRunnableWork(ctx context.Context) ([]uuid.UUID, error)
}

// CycleEnqueuer is the heartbeat of the dialer: every interval it finds
// tenants with runnable work and queues one dispatch cycle each. It also
// queues the daily counter reset once per UTC day.
type CycleEnqueuer struct {
	tenants     TenantSource
	client      *Client
	interval    time.Duration
	parallelism int
	log         *logger.Logger

	lastResetDay string
}

// NewCycleEnqueuer creates the enqueuer.
func NewCycleEnqueuer(tenants TenantSource, client *Client, cfg config.CycleConfig, log *logger.Logger) *CycleEnqueuer {
	interval := cfg.GetCycleInterval()
	if interval <= 0 {
		interval = 6 * time.Second
	}
	parallelism := cfg.GetCycleEnqueueParallelism()
	if parallelism < 1 {
		parallelism = 4
	}
	return &CycleEnqueuer{
		tenants:     tenants,
		client:      client,
		interval:    interval,
		parallelism: parallelism,
		log:         log,
	}
}

// Run ticks until the context is cancelled.
func (e *CycleEnqueuer) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.Info("cycle enqueuer started", "interval", e.interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *CycleEnqueuer) tick(ctx context.Context) {
	tenants, err := e.tenants.TenantsWithRunnableWork(ctx)
	if err != nil {
		e.log.Error("failed to list tenants with work", "error", err)
		return
	}
	if len(tenants) > 0 {
		e.enqueueAll(ctx, tenants)
	}
	e.maybeEnqueueDailyReset(ctx)
}

func (e *CycleEnqueuer) enqueueAll(ctx context.Context, tenants []uuid.UUID) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	for _, tenantID := range tenants {
		g.Go(func() error {
			if err := e.client.EnqueueCycle(gctx, tenantID, e.interval); err != nil {
				e.log.Error("failed to enqueue cycle", "tenant_id", tenantID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (e *CycleEnqueuer) maybeEnqueueDailyReset(ctx context.Context) {
	today := time.Now().UTC().Format("2006-01-02")
	if today == e.lastResetDay {
		return
	}
	if err := e.client.EnqueueDailyReset(ctx); err != nil {
		e.log.Error("failed to enqueue daily counter reset", "error", err)
		return
	}
	e.lastResetDay = today
}
