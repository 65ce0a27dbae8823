package telephony

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"dialer_backend/internal/dispatch/repository"
	"dialer_backend/internal/events"
	"dialer_backend/platform/apperr"
	"dialer_backend/platform/httpkit"
	"dialer_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebhookStore is the persistence surface the webhook needs.
type WebhookStore interface {
	CallLogByProviderID(ctx context.Context, providerCallID string) (*repository.CallLog, error)
	UpdateCallFromWebhook(ctx context.Context, id uuid.UUID, status repository.CallStatus, outcome, recordingURL *string, startedAt, endedAt *time.Time) error
	ScheduleCallback(ctx context.Context, tenantID, leadID uuid.UUID, at time.Time) error
	SetLeadStatus(ctx context.Context, tenantID, leadID uuid.UUID, status string) error
	SetDoNotCall(ctx context.Context, tenantID, leadID uuid.UUID) error
	PauseEnrollmentForCallback(ctx context.Context, tenantID, leadID uuid.UUID) (int, error)
	RemoveEnrollments(ctx context.Context, tenantID, leadID uuid.UUID, reason string) (int, error)
}

// defaultCallbackDelay is used when the provider reports a callback request
// without a concrete time.
const defaultCallbackDelay = 4 * time.Hour

// WebhookHandler ingests call status reports from the calling platform.
type WebhookHandler struct {
	store  WebhookStore
	bus    events.Bus
	secret string
	log    *logger.Logger
}

// NewWebhookHandler creates the webhook ingress.
func NewWebhookHandler(store WebhookStore, bus events.Bus, secret string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{store: store, bus: bus, secret: secret, log: log}
}

type webhookPayload struct {
	CallID       string     `json:"callId"`
	Status       string     `json:"status"`
	Outcome      *string    `json:"outcome"`
	RecordingURL *string    `json:"recordingUrl"`
	StartedAt    *time.Time `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt"`
	CallbackAt   *time.Time `json:"callbackAt"`
}

// Handle processes POST /webhooks/telephony. The body is authenticated with
// an HMAC signature header; a bad signature is a hard 401.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("unreadable body"))
		return
	}
	if !h.verifySignature(c.GetHeader("X-Webhook-Signature"), body) {
		httpkit.HandleError(c, apperr.Unauthorized("invalid webhook signature"))
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid webhook payload"))
		return
	}
	if payload.CallID == "" || payload.Status == "" {
		httpkit.HandleError(c, apperr.BadRequest("callId and status are required"))
		return
	}

	status, ok := mapProviderStatus(payload.Status)
	if !ok {
		httpkit.HandleError(c, apperr.BadRequest("unknown call status: "+payload.Status))
		return
	}

	ctx := c.Request.Context()
	log, err := h.store.CallLogByProviderID(ctx, payload.CallID)
	if err != nil {
		// Unknown call ids are acknowledged, not retried: the provider
		// may report calls placed outside this system.
		h.log.Warn("webhook for unknown call", "provider_call_id", payload.CallID)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	err = h.store.UpdateCallFromWebhook(ctx, log.ID, status, payload.Outcome,
		payload.RecordingURL, payload.StartedAt, payload.EndedAt)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	if isTerminalCallStatus(status) {
		h.applyOutcome(ctx, log, payload)
		h.bus.Publish(ctx, events.CallEnded{
			BaseEvent:    events.NewBaseEvent(),
			TenantID:     log.TenantID,
			CallLogID:    log.ID,
			LeadID:       log.LeadID,
			Status:       string(status),
			Outcome:      payload.Outcome,
			RecordingURL: payload.RecordingURL,
			EndedAt:      payload.EndedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// applyOutcome propagates a terminal outcome to the lead: a callback request
// schedules the callback and parks any live workflow; an opt-out flags the
// lead and removes it from workflows. Failures here are logged, not
// returned, since the call update itself already committed.
func (h *WebhookHandler) applyOutcome(ctx context.Context, log *repository.CallLog, payload webhookPayload) {
	if payload.Outcome == nil {
		return
	}

	switch *payload.Outcome {
	case "callback_requested":
		at := time.Now().Add(defaultCallbackDelay)
		if payload.CallbackAt != nil {
			at = *payload.CallbackAt
		}
		if err := h.store.ScheduleCallback(ctx, log.TenantID, log.LeadID, at); err != nil {
			h.log.Error("failed to schedule callback", "lead_id", log.LeadID, "error", err)
		}
		if _, err := h.store.PauseEnrollmentForCallback(ctx, log.TenantID, log.LeadID); err != nil {
			h.log.Error("failed to pause enrollments", "lead_id", log.LeadID, "error", err)
		}

	case "do_not_call", "opted_out":
		if err := h.store.SetDoNotCall(ctx, log.TenantID, log.LeadID); err != nil {
			h.log.Error("failed to flag do-not-call", "lead_id", log.LeadID, "error", err)
		}
		if _, err := h.store.RemoveEnrollments(ctx, log.TenantID, log.LeadID, "lead opted out"); err != nil {
			h.log.Error("failed to remove enrollments", "lead_id", log.LeadID, "error", err)
		}

	case "connected", "answered", "interested", "appointment_set":
		if err := h.store.SetLeadStatus(ctx, log.TenantID, log.LeadID, "contacted"); err != nil {
			h.log.Error("failed to update lead status", "lead_id", log.LeadID, "error", err)
		}
	}
}

func (h *WebhookHandler) verifySignature(signature string, body []byte) bool {
	if h.secret == "" {
		// No secret configured means the deployment trusts its network.
		return true
	}
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func mapProviderStatus(raw string) (repository.CallStatus, bool) {
	switch raw {
	case "queued":
		return repository.CallStatusQueued, true
	case "initiated":
		return repository.CallStatusInitiated, true
	case "ringing":
		return repository.CallStatusRinging, true
	case "in_progress", "in-progress", "answered":
		return repository.CallStatusInProgress, true
	case "completed", "ended":
		return repository.CallStatusCompleted, true
	case "no_answer", "no-answer":
		return repository.CallStatusNoAnswer, true
	case "busy":
		return repository.CallStatusBusy, true
	case "failed":
		return repository.CallStatusFailed, true
	default:
		return "", false
	}
}

func isTerminalCallStatus(status repository.CallStatus) bool {
	switch status {
	case repository.CallStatusCompleted, repository.CallStatusNoAnswer,
		repository.CallStatusBusy, repository.CallStatusFailed:
		return true
	}
	return false
}
