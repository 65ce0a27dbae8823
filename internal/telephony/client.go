// Package telephony integrates the external calling platform: outbound call
// and SMS creation, status webhooks, and recording archival.
package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dialer_backend/internal/dispatch/service"
	"dialer_backend/platform/apperr"
	"dialer_backend/platform/config"
	"dialer_backend/platform/logger"
	"dialer_backend/platform/phone"
)

// Client talks to the calling platform's REST API. A nil client is valid and
// fails every call, which keeps local setups without a provider bootable.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

// NewClient builds the provider client, or nil when telephony is not
// configured.
func NewClient(cfg config.TelephonyConfig, log *logger.Logger) *Client {
	if !cfg.IsTelephonyEnabled() {
		return nil
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.GetTelephonyBaseURL(), "/"),
		apiKey:  cfg.GetTelephonyAPIKey(),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

type createCallRequest struct {
	AgentID    string `json:"agentId"`
	ToNumber   string `json:"toNumber"`
	FromNumber string `json:"fromNumber"`
	LeadName   string `json:"leadName,omitempty"`
	TenantID   string `json:"tenantId"`
	CampaignID string `json:"campaignId"`
	LeadID     string `json:"leadId"`
}

type createCallResponse struct {
	CallID string `json:"callId"`
}

// CreateCall asks the platform to start an outbound call and returns the
// provider's call id. A 429 or an explicit concurrency complaint comes back
// as a rate-limited error so the dispatch loop can stop the batch.
func (c *Client) CreateCall(ctx context.Context, params service.CreateCallParams) (string, error) {
	if c == nil {
		return "", apperr.Internal("telephony is not configured")
	}

	payload := createCallRequest{
		AgentID:    params.AgentID,
		ToNumber:   phone.NormalizeE164(params.ToNumber),
		FromNumber: phone.NormalizeE164(params.FromNumber),
		LeadName:   params.LeadName,
		TenantID:   params.TenantID.String(),
		CampaignID: params.CampaignID.String(),
		LeadID:     params.LeadID.String(),
	}

	var result createCallResponse
	if err := c.post(ctx, "/v1/calls", payload, &result); err != nil {
		return "", err
	}
	if result.CallID == "" {
		return "", apperr.Internal("provider returned no call id")
	}
	return result.CallID, nil
}

type sendSMSRequest struct {
	ToNumber string `json:"toNumber"`
	Body     string `json:"body"`
	TenantID string `json:"tenantId"`
}

// SendSMS sends one text message through the platform.
func (c *Client) SendSMS(ctx context.Context, tenantID, toNumber, body string) error {
	if c == nil {
		return apperr.Internal("telephony is not configured")
	}
	payload := sendSMSRequest{
		ToNumber: phone.NormalizeE164(toNumber),
		Body:     body,
		TenantID: tenantID,
	}
	return c.post(ctx, "/v1/messages", payload, nil)
}

func (c *Client) post(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telephony payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telephony request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = resp.Status
		}
		if isRateLimit(resp.StatusCode, msg) {
			return apperr.RateLimited("provider rate limit: " + msg)
		}
		return apperr.Internal(fmt.Sprintf("provider error (%d): %s", resp.StatusCode, msg))
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("decode telephony response: %w", err)
		}
	}
	return nil
}

// isRateLimit classifies a provider rejection as a rate limit. Some gateways
// report concurrency exhaustion as a 400 with a telltale message rather than
// a 429.
func isRateLimit(status int, message string) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "concurrency limit") ||
		strings.Contains(lower, "concurrent call limit")
}
