// Package notification turns domain events into operator alerts.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dialer_backend/internal/events"
	"dialer_backend/platform/apperr"
	"dialer_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// alertCooldown suppresses repeat alerts for the same tenant. The exhausted
// event fires every cycle while the condition holds; the operator needs one
// email, not one every six seconds.
const alertCooldown = time.Hour

// AlertService emails operators when a tenant runs out of usable caller-ID
// numbers.
type AlertService struct {
	pool   *pgxpool.Pool
	sender Sender
	log    *logger.Logger

	mu        sync.Mutex
	lastAlert map[uuid.UUID]time.Time
}

// NewAlertService creates the alerter and subscribes it to the bus. A nil
// sender disables delivery but keeps the subscription logging.
func NewAlertService(pool *pgxpool.Pool, sender Sender, bus events.Bus, log *logger.Logger) *AlertService {
	s := &AlertService{
		pool:      pool,
		sender:    sender,
		log:       log,
		lastAlert: make(map[uuid.UUID]time.Time),
	}
	bus.Subscribe(events.PhoneNumbersExhausted{}.EventName(), events.HandlerFunc(s.handleNumbersExhausted))
	return s
}

func (s *AlertService) handleNumbersExhausted(ctx context.Context, event events.Event) error {
	exhausted, ok := event.(events.PhoneNumbersExhausted)
	if !ok {
		return nil
	}

	if !s.shouldAlert(exhausted.TenantID) {
		return nil
	}

	email, err := s.alertEmail(ctx, exhausted.TenantID)
	if err != nil {
		s.log.Warn("no alert email for tenant", "tenant_id", exhausted.TenantID, "error", err)
		return nil
	}

	if s.sender == nil {
		s.log.Warn("phone numbers exhausted, email disabled",
			"tenant_id", exhausted.TenantID, "pending_calls", exhausted.PendingCalls)
		return nil
	}

	subject := "Dialing paused: no usable phone numbers"
	body := fmt.Sprintf(
		"<p>Outbound dialing is paused because no phone number passes the eligibility "+
			"checks (active, not spam flagged, out of quarantine, under its daily limit).</p>"+
			"<p>%d queued calls are waiting. Add numbers or raise daily limits to resume.</p>",
		exhausted.PendingCalls)

	if err := s.sender.Send(ctx, email, subject, body); err != nil {
		s.log.Error("failed to send exhausted-numbers alert",
			"tenant_id", exhausted.TenantID, "error", err)
		return err
	}
	s.log.Info("sent exhausted-numbers alert", "tenant_id", exhausted.TenantID, "to", email)
	return nil
}

func (s *AlertService) shouldAlert(tenantID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastAlert[tenantID]; ok && time.Since(last) < alertCooldown {
		return false
	}
	s.lastAlert[tenantID] = time.Now()
	return true
}

func (s *AlertService) alertEmail(ctx context.Context, tenantID uuid.UUID) (string, error) {
	var email *string
	err := s.pool.QueryRow(ctx, `SELECT alert_email FROM tenants WHERE id = $1`, tenantID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("tenant not found")
		}
		return "", apperr.Wrap(apperr.KindInternal, "failed to query alert email", err)
	}
	if email == nil || *email == "" {
		return "", apperr.NotFound("tenant has no alert email")
	}
	return *email, nil
}
