package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"dialer_backend/internal/dispatch/service"
	"dialer_backend/platform/apperr"
	"dialer_backend/platform/logger"

	"github.com/google/uuid"
)

type testTelephonyConfig struct {
	baseURL string
}

func (c testTelephonyConfig) GetTelephonyBaseURL() string       { return c.baseURL }
func (c testTelephonyConfig) GetTelephonyAPIKey() string        { return "test-key" }
func (c testTelephonyConfig) GetTelephonyWebhookSecret() string { return "" }
func (c testTelephonyConfig) IsTelephonyEnabled() bool          { return c.baseURL != "" }

func callParams() service.CreateCallParams {
	return service.CreateCallParams{
		TenantID:   uuid.New(),
		CampaignID: uuid.New(),
		LeadID:     uuid.New(),
		AgentID:    "agent-1",
		ToNumber:   "+14155550100",
		FromNumber: "+14155550900",
		LeadName:   "Ada Lovelace",
	}
}

func TestCreateCall_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/calls" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"callId":"call-123"}`))
	}))
	defer server.Close()

	client := NewClient(testTelephonyConfig{baseURL: server.URL}, logger.New("test"))

	callID, err := client.CreateCall(context.Background(), callParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if callID != "call-123" {
		t.Fatalf("expected call-123, got %q", callID)
	}
}

func TestCreateCall_EmptyCallIDIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(testTelephonyConfig{baseURL: server.URL}, logger.New("test"))

	if _, err := client.CreateCall(context.Background(), callParams()); !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("expected internal error on empty call id, got %v", err)
	}
}

func TestCreateCall_429IsRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(testTelephonyConfig{baseURL: server.URL}, logger.New("test"))

	if _, err := client.CreateCall(context.Background(), callParams()); !apperr.Is(err, apperr.KindRateLimited) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
}

func TestCreateCall_ConcurrencyComplaintIsRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Concurrency limit reached for account"}`))
	}))
	defer server.Close()

	client := NewClient(testTelephonyConfig{baseURL: server.URL}, logger.New("test"))

	if _, err := client.CreateCall(context.Background(), callParams()); !apperr.Is(err, apperr.KindRateLimited) {
		t.Fatalf("expected rate-limited error for concurrency complaint, got %v", err)
	}
}

func TestCreateCall_OtherErrorIsInternal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client := NewClient(testTelephonyConfig{baseURL: server.URL}, logger.New("test"))

	_, err := client.CreateCall(context.Background(), callParams())
	if !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if apperr.Is(err, apperr.KindRateLimited) {
		t.Fatalf("502 must not classify as rate limit")
	}
}

func TestNilClientFailsClosed(t *testing.T) {
	var client *Client
	if _, err := client.CreateCall(context.Background(), callParams()); err == nil {
		t.Fatalf("expected error from nil client")
	}
	if err := client.SendSMS(context.Background(), "t", "+14155550100", "hi"); err == nil {
		t.Fatalf("expected error from nil client")
	}
}

func TestIsRateLimit(t *testing.T) {
	cases := []struct {
		status  int
		message string
		want    bool
	}{
		{http.StatusTooManyRequests, "", true},
		{http.StatusBadRequest, "Rate limit exceeded", true},
		{http.StatusBadRequest, "too many requests", true},
		{http.StatusBadRequest, "concurrent call limit hit", true},
		{http.StatusBadRequest, "invalid number", false},
		{http.StatusInternalServerError, "boom", false},
	}
	for _, tc := range cases {
		if got := isRateLimit(tc.status, tc.message); got != tc.want {
			t.Fatalf("isRateLimit(%d, %q) = %v, want %v", tc.status, tc.message, got, tc.want)
		}
	}
}

func TestNewClient_DisabledReturnsNil(t *testing.T) {
	if client := NewClient(testTelephonyConfig{}, logger.New("test")); client != nil {
		t.Fatalf("expected nil client when telephony is not configured")
	}
}
