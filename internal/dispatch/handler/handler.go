// Package handler exposes the dispatch engine over HTTP.
package handler

import (
	"context"
	"net/http"

	"dialer_backend/internal/dispatch/transport"
	"dialer_backend/platform/apperr"
	"dialer_backend/platform/httpkit"
	"dialer_backend/platform/logger"
	"dialer_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Engine is the service surface the HTTP layer needs.
type Engine interface {
	RunCycle(ctx context.Context, tenantID uuid.UUID) (transport.CycleReport, error)
	ForceDispatch(ctx context.Context, tenantID, leadID, campaignID uuid.UUID) (transport.CycleReport, error)
	CleanupStuckCalls(ctx context.Context, tenantID uuid.UUID) (transport.SweepReport, error)
	HealthCheck(ctx context.Context) error
}

// Handler serves the dispatch endpoints.
type Handler struct {
	engine   Engine
	validate *validator.Validator
	log      *logger.Logger
}

// New creates a dispatch handler.
func New(engine Engine, validate *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{engine: engine, validate: validate, log: log}
}

// Run handles POST /dispatch/run. The action in the body selects the
// command; every command is handled here so the switch stays exhaustive.
func (h *Handler) Run(c *gin.Context) {
	var req transport.CycleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.HandleError(c, apperr.BadRequest("invalid request body"))
			return
		}
	}

	command, err := transport.ParseCommand(req.Action)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	tenantID, ok := tenantFrom(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("no tenant in request context"))
		return
	}
	ctx := c.Request.Context()

	switch command {
	case transport.CommandRunCycle:
		report, err := h.engine.RunCycle(ctx, tenantID)
		if err != nil && report.Dispatched == 0 && len(report.Results) == 0 {
			httpkit.HandleError(c, err)
			return
		}
		httpkit.OK(c, report)

	case transport.CommandHealthCheck:
		if err := h.engine.HealthCheck(ctx); err != nil {
			httpkit.HandleError(c, err)
			return
		}
		httpkit.OK(c, gin.H{"status": "ok"})

	case transport.CommandCleanupStuckCalls:
		report, err := h.engine.CleanupStuckCalls(ctx, tenantID)
		if err != nil {
			httpkit.HandleError(c, err)
			return
		}
		httpkit.OK(c, report)

	case transport.CommandForceDispatch:
		h.forceDispatch(c, tenantID, req.LeadID, req.CampaignID)
	}
}

// Force handles POST /admin/dispatch/force with a dedicated request body.
func (h *Handler) Force(c *gin.Context) {
	var req transport.ForceDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(err.Error()))
		return
	}

	tenantID, ok := tenantFrom(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("no tenant in request context"))
		return
	}
	h.forceDispatch(c, tenantID, req.LeadID, req.CampaignID)
}

// Cleanup handles POST /dispatch/cleanup.
func (h *Handler) Cleanup(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("no tenant in request context"))
		return
	}
	report, err := h.engine.CleanupStuckCalls(c.Request.Context(), tenantID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, report)
}

// Health handles GET /dispatch/health.
func (h *Handler) Health(c *gin.Context) {
	if err := h.engine.HealthCheck(c.Request.Context()); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) forceDispatch(c *gin.Context, tenantID uuid.UUID, leadID, campaignID string) {
	lid, err := uuid.Parse(leadID)
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid lead id"))
		return
	}
	cid, err := uuid.Parse(campaignID)
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid campaign id"))
		return
	}

	report, err := h.engine.ForceDispatch(c.Request.Context(), tenantID, lid, cid)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, report)
}

// tenantFrom resolves the tenant from either a JWT identity or the API-key
// middleware used on the internal scheduler path.
func tenantFrom(c *gin.Context) (uuid.UUID, bool) {
	if id := httpkit.GetIdentity(c); id.IsAuthenticated() && id.TenantID() != nil {
		return *id.TenantID(), true
	}
	if raw, ok := c.Get(httpkit.ContextTenantIDKey); ok {
		if tid, ok := raw.(uuid.UUID); ok {
			return tid, true
		}
	}
	return uuid.Nil, false
}
