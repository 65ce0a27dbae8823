// Package handler exposes the auth endpoints.
package handler

import (
	"errors"
	"net/http"

	"dialer_backend/internal/auth/service"
	"dialer_backend/internal/auth/transport"
	"dialer_backend/platform/apperr"
	"dialer_backend/platform/httpkit"
	"dialer_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler serves sign-in, refresh, and sign-out.
type Handler struct {
	svc      *service.Service
	validate *validator.Validator
}

// New creates an auth handler.
func New(svc *service.Service, validate *validator.Validator) *Handler {
	return &Handler{svc: svc, validate: validate}
}

// SignIn handles POST /auth/login.
func (h *Handler) SignIn(c *gin.Context) {
	var req transport.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(err.Error()))
		return
	}

	access, refresh, err := h.svc.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httpkit.HandleError(c, apperr.Unauthorized("invalid credentials"))
		return
	}
	httpkit.OK(c, transport.TokenPairResponse{AccessToken: access, RefreshToken: refresh})
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(c *gin.Context) {
	var req transport.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid request body"))
		return
	}

	access, refresh, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenExpired):
			httpkit.HandleError(c, apperr.Unauthorized("refresh token expired"))
		default:
			httpkit.HandleError(c, apperr.Unauthorized("invalid refresh token"))
		}
		return
	}
	httpkit.OK(c, transport.TokenPairResponse{AccessToken: access, RefreshToken: refresh})
}

// SignOut handles POST /auth/logout.
func (h *Handler) SignOut(c *gin.Context) {
	var req transport.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid request body"))
		return
	}
	if err := h.svc.SignOut(c.Request.Context(), req.RefreshToken); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
