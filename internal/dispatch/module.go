// Package dispatch wires the call dispatch engine: stale-state sweeping,
// callback resolution, lead intake, capacity-gated batch dialing, and the
// cycle report consumed by the external scheduler.
package dispatch

import (
	"time"

	apphttp "dialer_backend/internal/http"

	"dialer_backend/internal/dispatch/handler"
	"dialer_backend/internal/dispatch/repository"
	"dialer_backend/internal/dispatch/service"
	"dialer_backend/internal/events"
	"dialer_backend/platform/logger"
	"dialer_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module bundles the dispatch engine's components.
type Module struct {
	Repository *repository.Repository
	Service    *service.Service
	handler    *handler.Handler
}

// NewModule assembles the dispatch engine. The calls client and workflow
// trigger come from the telephony and scheduler modules.
func NewModule(pool *pgxpool.Pool, calls service.CallCreator, workflows service.WorkflowTrigger, bus events.Bus, log *logger.Logger, validate *validator.Validator, enrollmentLookback time.Duration) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, calls, workflows, bus, log, enrollmentLookback)
	return &Module{
		Repository: repo,
		Service:    svc,
		handler:    handler.New(svc, validate, log),
	}
}

// Name implements apphttp.Module.
func (m *Module) Name() string { return "dispatch" }

// RegisterRoutes mounts the dispatch endpoints. The internal group is the
// scheduler's path in; the protected and admin groups serve the dashboard.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	internal := ctx.Internal.Group("/dispatch")
	internal.POST("/run", m.handler.Run)

	protected := ctx.Protected.Group("/dispatch")
	protected.POST("/run", m.handler.Run)
	protected.POST("/cleanup", m.handler.Cleanup)
	protected.GET("/health", m.handler.Health)

	admin := ctx.Admin.Group("/dispatch")
	admin.POST("/force", m.handler.Force)
}
