package notification

import (
	"context"
	"testing"
	"time"

	"dialer_backend/internal/events"
	"dialer_backend/platform/logger"

	"github.com/google/uuid"
)

func TestShouldAlert_CooldownPerTenant(t *testing.T) {
	s := &AlertService{lastAlert: make(map[uuid.UUID]time.Time), log: logger.New("test")}
	tenantA := uuid.New()
	tenantB := uuid.New()

	if !s.shouldAlert(tenantA) {
		t.Fatalf("first alert must fire")
	}
	if s.shouldAlert(tenantA) {
		t.Fatalf("repeat alert within the cooldown must be suppressed")
	}
	if !s.shouldAlert(tenantB) {
		t.Fatalf("cooldown is per tenant, other tenants still alert")
	}

	// An expired cooldown fires again.
	s.lastAlert[tenantA] = time.Now().Add(-2 * alertCooldown)
	if !s.shouldAlert(tenantA) {
		t.Fatalf("alert must fire after the cooldown expires")
	}
}

func TestHandleNumbersExhausted_IgnoresOtherEvents(t *testing.T) {
	s := &AlertService{lastAlert: make(map[uuid.UUID]time.Time), log: logger.New("test")}

	// Wrong event type drops out before any lookup or send.
	err := s.handleNumbersExhausted(context.Background(), events.CycleCompleted{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  uuid.New(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
