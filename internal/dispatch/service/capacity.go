package service

import (
	"context"
	"math"
	"time"

	"dialer_backend/internal/dispatch/transport"

	"github.com/google/uuid"
)

const (
	defaultMaxConcurrentCalls    = 10
	defaultCallsPerMinute        = 40
	defaultProviderMaxConcurrent = 10
)

// batchPlan is the capacity gate's sizing decision for one cycle.
type batchPlan struct {
	Settings         transport.UsedSettings
	ActiveCalls      int
	MaxDialsInFlight int
	AvailableSlots   int
	TargetBatchSize  int
	BatchSize        int
	AtCapacity       bool
}

// planCapacity sizes the dial batch. Dials in flight may run at the provider
// concurrency limit divided by the assumed pickup rate, since most dials
// never connect. A read failure on settings falls back to defaults rather
// than stalling the cycle.
func (s *Service) planCapacity(ctx context.Context, tenantID uuid.UUID) (batchPlan, error) {
	settings := s.resolveSettings(ctx, tenantID)

	active, err := s.store.CountActiveCalls(ctx, tenantID, time.Now().Add(-activeCallWindow))
	if err != nil {
		return batchPlan{}, err
	}

	plan := batchPlan{Settings: settings, ActiveCalls: active}
	plan.MaxDialsInFlight = int(float64(settings.ProviderMaxConcurrent) / pickupRate)
	plan.AvailableSlots = plan.MaxDialsInFlight - active
	plan.TargetBatchSize = int(math.Ceil(float64(settings.CallsPerMinute) / 60.0 * batchIntervalSeconds))

	if plan.AvailableSlots <= 0 {
		plan.AtCapacity = true
		return plan, nil
	}

	plan.BatchSize = min(plan.AvailableSlots, plan.TargetBatchSize, hardCapPerInvocation)
	if plan.BatchSize < 1 {
		plan.BatchSize = 1
	}
	return plan, nil
}

func (s *Service) resolveSettings(ctx context.Context, tenantID uuid.UUID) transport.UsedSettings {
	defaults := transport.UsedSettings{
		MaxConcurrentCalls:    defaultMaxConcurrentCalls,
		CallsPerMinute:        defaultCallsPerMinute,
		ProviderMaxConcurrent: defaultProviderMaxConcurrent,
		Source:                transport.SettingsFromDefaults,
	}

	row, err := s.store.TenantPacingSettings(ctx, tenantID)
	if err != nil {
		s.log.Warn("failed to load pacing settings, using defaults",
			"tenant_id", tenantID, "error", err)
		return defaults
	}
	if row == nil {
		return defaults
	}

	used := transport.UsedSettings{
		MaxConcurrentCalls:    row.MaxConcurrentCalls,
		CallsPerMinute:        row.CallsPerMinute,
		ProviderMaxConcurrent: row.ProviderMaxConcurrent,
		AdaptivePacingEnabled: row.AdaptivePacingEnabled,
		Source:                transport.SettingsFromTenant,
	}
	if used.MaxConcurrentCalls <= 0 {
		used.MaxConcurrentCalls = defaults.MaxConcurrentCalls
	}
	if used.CallsPerMinute <= 0 {
		used.CallsPerMinute = defaults.CallsPerMinute
	}
	if used.ProviderMaxConcurrent <= 0 {
		used.ProviderMaxConcurrent = defaults.ProviderMaxConcurrent
	}
	return used
}
