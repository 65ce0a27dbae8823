// Package auth provides dashboard authentication and the API-key middleware
// guarding the internal scheduler path.
package auth

import (
	"dialer_backend/internal/auth/handler"
	"dialer_backend/internal/auth/repository"
	"dialer_backend/internal/auth/service"
	apphttp "dialer_backend/internal/http"
	"dialer_backend/platform/config"
	"dialer_backend/platform/logger"
	"dialer_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module bundles the auth components.
type Module struct {
	Service *service.Service
	handler *handler.Handler
	log     *logger.Logger
}

// NewModule assembles auth.
func NewModule(pool *pgxpool.Pool, cfg config.JWTConfig, validate *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, cfg)
	return &Module{
		Service: svc,
		handler: handler.New(svc, validate),
		log:     log,
	}
}

// Name implements apphttp.Module.
func (m *Module) Name() string { return "auth" }

// InternalAuth returns the API-key middleware for the internal route group.
func (m *Module) InternalAuth() gin.HandlerFunc {
	return APIKeyAuth(m.Service, m.log)
}

// RegisterRoutes mounts the public auth endpoints.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/auth")
	group.POST("/login", m.handler.SignIn)
	group.POST("/refresh", m.handler.Refresh)
	group.POST("/logout", m.handler.SignOut)
}
