package service

import (
	"context"
	"fmt"
	"math"

	"dialer_backend/internal/dispatch/transport"

	"github.com/google/uuid"
)

// buildReport assembles the cycle report the external scheduler and the
// dashboard consume. A zero-dispatch cycle carries diagnostics explaining
// why, so an idle queue is distinguishable from a saturated one.
func (s *Service) buildReport(ctx context.Context, tenantID uuid.UUID, plan batchPlan, callbacks transport.CallbackCounts, enrolled, queued, dispatched int, results []transport.EntryResult) (transport.CycleReport, error) {
	remaining, err := s.store.CountPendingEntries(ctx, tenantID)
	if err != nil {
		return transport.CycleReport{}, err
	}

	report := transport.CycleReport{
		Dispatched:       dispatched,
		WorkflowEnrolled: enrolled + callbacks.Enrolled,
		DialingQueued:    queued + callbacks.Queued,
		Remaining:        remaining,
		BatchSize:        plan.BatchSize,
		ActiveCallCount:  plan.ActiveCalls,
		MaxDialsInFlight: plan.MaxDialsInFlight,
		AtCapacity:       plan.AtCapacity,
		UsedSettings:     plan.Settings,
		Callbacks:        callbacks,
		Results:          results,
	}

	if plan.MaxDialsInFlight > 0 {
		report.UtilizationPercent = math.Round(float64(plan.ActiveCalls+dispatched)/float64(plan.MaxDialsInFlight)*10000) / 100
	}
	report.NextBatchDelaySeconds = nextBatchDelay(plan.BatchSize, plan.Settings.CallsPerMinute)

	if dispatched == 0 {
		diag, err := s.zeroDispatchDiagnostics(ctx, tenantID, plan, remaining)
		if err != nil {
			s.log.Warn("failed to build cycle diagnostics", "tenant_id", tenantID, "error", err)
		} else {
			report.Diagnostics = diag
		}
	}

	return report, nil
}

// nextBatchDelay spaces batches so the configured calls-per-minute rate
// holds when every batch fills.
func nextBatchDelay(batchSize, callsPerMinute int) int {
	if batchSize <= 0 || callsPerMinute <= 0 {
		return batchIntervalSeconds
	}
	delay := int(math.Round(float64(batchSize) * 60.0 / float64(callsPerMinute)))
	if delay < 1 {
		return 1
	}
	return delay
}

func (s *Service) zeroDispatchDiagnostics(ctx context.Context, tenantID uuid.UUID, plan batchPlan, totalPending int) (*transport.Diagnostics, error) {
	diag := &transport.Diagnostics{TotalPending: totalPending}

	switch {
	case plan.AtCapacity:
		diag.Reason = fmt.Sprintf("at capacity: %d active calls of %d max dials in flight",
			plan.ActiveCalls, plan.MaxDialsInFlight)

	case totalPending == 0:
		diag.Reason = "no pending queue entries"

	default:
		next, err := s.store.NextScheduledAt(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		diag.NoneEligibleNow = true
		diag.NextScheduledAt = next
		if next != nil {
			diag.Reason = fmt.Sprintf("%d pending entries scheduled for later; next at %s",
				totalPending, next.UTC().Format("2006-01-02T15:04:05Z"))
		} else {
			diag.Reason = fmt.Sprintf("%d pending entries not eligible this cycle", totalPending)
		}
	}

	return diag, nil
}
