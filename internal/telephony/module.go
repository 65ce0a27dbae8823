package telephony

import (
	"context"

	apphttp "dialer_backend/internal/http"
	"dialer_backend/internal/events"
	"dialer_backend/platform/apperr"
	"dialer_backend/platform/config"
	"dialer_backend/platform/httpkit"
	"dialer_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RecordingKeyStore looks up the archive key of a call recording.
type RecordingKeyStore interface {
	RecordingKey(ctx context.Context, tenantID, id uuid.UUID) (string, error)
}

// Presigner hands out temporary download links for archived objects.
type Presigner interface {
	PresignedGetURL(ctx context.Context, bucket, key string) (string, error)
}

// ObjectStorage is the full storage surface the module needs: uploads for
// the archiver and presigned links for the dashboard.
type ObjectStorage interface {
	ObjectUploader
	Presigner
}

// Module bundles the telephony integration.
type Module struct {
	Client   *Client
	webhook  *WebhookHandler
	archiver *RecordingArchiver

	keys      RecordingKeyStore
	presigner Presigner
	bucket    string
}

// NewModule assembles the telephony components around an existing client.
// The storage may be nil when object storage is not configured; recordings
// then stay on the provider.
func NewModule(cfg config.TelephonyConfig, client *Client, store WebhookStore, recordings RecordingStore, keys RecordingKeyStore, storage ObjectStorage, bucket string, bus events.Bus, log *logger.Logger) *Module {
	m := &Module{
		Client:  client,
		webhook: NewWebhookHandler(store, bus, cfg.GetTelephonyWebhookSecret(), log),
	}
	if storage != nil && bucket != "" {
		m.archiver = NewRecordingArchiver(recordings, storage, bucket, bus, log)
		m.keys = keys
		m.presigner = storage
		m.bucket = bucket
	}
	return m
}

// Name implements apphttp.Module.
func (m *Module) Name() string { return "telephony" }

// RegisterRoutes mounts the provider webhook on the open v1 group;
// authentication there is the HMAC signature on the body. The recording
// download link lives on the authenticated group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.POST("/webhooks/telephony", m.webhook.Handle)

	if m.presigner != nil {
		ctx.Protected.GET("/calls/:id/recording", m.recordingLink)
	}
}

// recordingLink returns a short-lived download URL for an archived recording.
func (m *Module) recordingLink(c *gin.Context) {
	identity := httpkit.GetIdentity(c)
	if !identity.IsAuthenticated() || identity.TenantID() == nil {
		httpkit.HandleError(c, apperr.Unauthorized("no tenant in request context"))
		return
	}

	callLogID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid call id"))
		return
	}

	ctx := c.Request.Context()
	key, err := m.keys.RecordingKey(ctx, *identity.TenantID(), callLogID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	url, err := m.presigner.PresignedGetURL(ctx, m.bucket, key)
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindInternal, "failed to presign recording", err))
		return
	}
	httpkit.OK(c, gin.H{"url": url})
}
