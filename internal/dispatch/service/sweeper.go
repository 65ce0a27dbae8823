package service

import (
	"context"
	"errors"
	"time"

	"dialer_backend/internal/dispatch/transport"

	"github.com/google/uuid"
)

// sweep reclaims stale state left by missed webhooks and crashed dispatch
// steps. Each step runs independently; one failing does not stop the rest.
func (s *Service) sweep(ctx context.Context, tenantID uuid.UUID) (transport.SweepReport, error) {
	now := time.Now()
	var report transport.SweepReport
	var errs []error

	n, err := s.store.ExpireStartingCalls(ctx, tenantID, now.Add(-staleCallWindow))
	if err != nil {
		errs = append(errs, err)
	}
	report.ExpiredStartingCalls = n

	n, err = s.store.ExpireInProgressCalls(ctx, tenantID, now.Add(-staleConversationWindow))
	if err != nil {
		errs = append(errs, err)
	}
	report.ExpiredInProgressCalls = n

	n, err = s.store.FailUnstartedEntries(ctx, tenantID, now.Add(-staleCallWindow))
	if err != nil {
		errs = append(errs, err)
	}
	report.FailedUnstartedEntries = n

	n, err = s.store.ResetStuckCallingEntries(ctx, tenantID, now.Add(-staleCallWindow))
	if err != nil {
		errs = append(errs, err)
	}
	report.ResetCallingEntries = n

	if report.Total() > 0 {
		s.log.Info("swept stale dispatch state",
			"tenant_id", tenantID,
			"expired_starting", report.ExpiredStartingCalls,
			"expired_in_progress", report.ExpiredInProgressCalls,
			"failed_unstarted", report.FailedUnstartedEntries,
			"reset_calling", report.ResetCallingEntries)
	}

	return report, errors.Join(errs...)
}
