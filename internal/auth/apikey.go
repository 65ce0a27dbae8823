package auth

import (
	"context"
	"strings"

	"dialer_backend/platform/httpkit"
	"dialer_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// APIKeyVerifier checks a tenant-scoped API key.
type APIKeyVerifier interface {
	VerifyAPIKey(ctx context.Context, tenantID uuid.UUID, secret string) error
}

// APIKeyAuth authenticates the internal scheduler path. Keys have the form
// "<tenant-uuid>.<secret>"; the secret is compared against the tenant's
// stored bcrypt hash. On success the tenant id lands in the gin context
// under the same key the JWT middleware uses.
func APIKeyAuth(verifier APIKeyVerifier, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-API-Key")
		tenantID, secret, ok := splitAPIKey(raw)
		if !ok {
			abortUnauthorized(c)
			return
		}

		if err := verifier.VerifyAPIKey(c.Request.Context(), tenantID, secret); err != nil {
			log.Warn("rejected internal api key", "tenant_id", tenantID, "client_ip", c.ClientIP())
			abortUnauthorized(c)
			return
		}

		c.Set(httpkit.ContextTenantIDKey, tenantID)
		c.Next()
	}
}

func splitAPIKey(raw string) (uuid.UUID, string, bool) {
	tenantPart, secret, found := strings.Cut(raw, ".")
	if !found || secret == "" {
		return uuid.Nil, "", false
	}
	tenantID, err := uuid.Parse(tenantPart)
	if err != nil {
		return uuid.Nil, "", false
	}
	return tenantID, secret, true
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(401, gin.H{"error": "invalid api key"})
}
