// Package service implements the dispatch engine: one cycle sweeps stale
// state, resolves due callbacks, pulls eligible leads into the queue, sizes a
// batch against live capacity, and dials it out.
package service

import (
	"context"
	"time"

	"dialer_backend/internal/dispatch/repository"
	"dialer_backend/internal/dispatch/transport"
	"dialer_backend/internal/events"
	"dialer_backend/platform/apperr"
	"dialer_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	// batchIntervalSeconds is the cadence the external scheduler invokes
	// cycles at; target batch sizing assumes one batch per interval.
	batchIntervalSeconds = 6
	// hardCapPerInvocation bounds a single batch regardless of capacity.
	hardCapPerInvocation = 15
	// pickupRate is the assumed fraction of dials that connect. Dials in
	// flight may exceed concurrent connected calls by its inverse.
	pickupRate = 0.10

	callbackBatchSize = 20
	intakeBatchSize   = 25

	priorityIntake   = 1
	priorityCallback = 10
	priorityForce    = 100

	defaultMaxAttempts       = 3
	defaultRetryDelayMinutes = 5
	minRetryDelay            = 1 * time.Minute
	maxRetryDelay            = 60 * time.Minute
	rateLimitRequeueDelay    = 10 * time.Second

	// staleCallWindow bounds how long a call may sit in a starting state,
	// and how long a calling queue claim may go without progress.
	staleCallWindow = 2 * time.Minute
	// staleConversationWindow bounds an in_progress call.
	staleConversationWindow = 5 * time.Minute
	// activeCallWindow is the freshness horizon for capacity counting and
	// the recent-attempt intake filter.
	activeCallWindow = 5 * time.Minute
	// callbackDedupeWindow guards callback queueing against an attempt
	// already in flight.
	callbackDedupeWindow = 2 * time.Minute
)

// Service orchestrates dispatch cycles for one deployment, scoped per tenant
// on every call.
type Service struct {
	store              Store
	calls              CallCreator
	workflows          WorkflowTrigger
	bus                events.Bus
	log                *logger.Logger
	enrollmentLookback time.Duration
}

// New creates the dispatch engine. The workflow trigger may be nil when no
// executor is deployed.
func New(store Store, calls CallCreator, workflows WorkflowTrigger, bus events.Bus, log *logger.Logger, enrollmentLookback time.Duration) *Service {
	if enrollmentLookback <= 0 {
		enrollmentLookback = 24 * time.Hour
	}
	return &Service{
		store:              store,
		calls:              calls,
		workflows:          workflows,
		bus:                bus,
		log:                log,
		enrollmentLookback: enrollmentLookback,
	}
}

// HealthCheck verifies store connectivity.
func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return apperr.Wrap(apperr.KindInternal, "dispatch store unreachable", err)
	}
	return nil
}

// CleanupStuckCalls runs the stale-state sweeper in isolation.
func (s *Service) CleanupStuckCalls(ctx context.Context, tenantID uuid.UUID) (transport.SweepReport, error) {
	return s.sweep(ctx, tenantID)
}

// RunCycle executes one full dispatch cycle for the tenant. Stage failures
// before the dial loop are logged and the cycle continues with what it has; a
// rate-limit signal inside the dial loop aborts the remainder of the batch.
func (s *Service) RunCycle(ctx context.Context, tenantID uuid.UUID) (transport.CycleReport, error) {
	ctx = context.WithValue(ctx, logger.TenantIDKey, tenantID.String())
	start := time.Now()

	if _, err := s.sweep(ctx, tenantID); err != nil {
		s.log.Warn("sweep finished with errors", "tenant_id", tenantID, "error", err)
	}

	callbacks, err := s.resolveCallbacks(ctx, tenantID)
	if err != nil {
		s.log.Warn("callback resolution finished with errors", "tenant_id", tenantID, "error", err)
	}

	pairs, err := s.eligiblePairs(ctx, tenantID)
	if err != nil {
		s.log.Warn("lead intake failed", "tenant_id", tenantID, "error", err)
	}
	enrolled, queued, err := s.routePairs(ctx, tenantID, pairs)
	if err != nil {
		s.log.Warn("intake routing finished with errors", "tenant_id", tenantID, "error", err)
	}

	if enrolled+callbacks.Enrolled > 0 && s.workflows != nil {
		if err := s.workflows.TriggerExecution(ctx, tenantID); err != nil {
			s.log.Warn("workflow executor trigger failed", "tenant_id", tenantID, "error", err)
		}
	}

	plan, err := s.planCapacity(ctx, tenantID)
	if err != nil {
		return transport.CycleReport{}, err
	}

	dispatched, results, dialErr := s.dispatchBatch(ctx, tenantID, plan)

	report, err := s.buildReport(ctx, tenantID, plan, callbacks, enrolled, queued, dispatched, results)
	if err != nil {
		return report, err
	}

	s.bus.Publish(ctx, events.CycleCompleted{
		BaseEvent:          events.NewBaseEvent(),
		TenantID:           tenantID,
		Dispatched:         report.Dispatched,
		WorkflowEnrolled:   report.WorkflowEnrolled,
		DialingQueued:      report.DialingQueued,
		Remaining:          report.Remaining,
		AtCapacity:         report.AtCapacity,
		UtilizationPercent: report.UtilizationPercent,
	})

	s.log.Info("dispatch cycle completed",
		"tenant_id", tenantID,
		"dispatched", report.Dispatched,
		"enrolled", report.WorkflowEnrolled,
		"queued", report.DialingQueued,
		"remaining", report.Remaining,
		"at_capacity", report.AtCapacity,
		"duration_ms", time.Since(start).Milliseconds())

	return report, dialErr
}

// ForceDispatch puts one lead at the front of the queue, clearing any stuck
// in-flight call first, then runs a cycle so it dials immediately.
func (s *Service) ForceDispatch(ctx context.Context, tenantID, leadID, campaignID uuid.UUID) (transport.CycleReport, error) {
	lead, err := s.store.LeadByID(ctx, tenantID, leadID)
	if err != nil {
		return transport.CycleReport{}, err
	}
	campaign, err := s.store.CampaignByID(ctx, tenantID, campaignID)
	if err != nil {
		return transport.CycleReport{}, err
	}
	if lead.DoNotCall {
		return transport.CycleReport{}, apperr.BadRequest("lead is flagged do-not-call")
	}
	if lead.PhoneNumber == "" {
		return transport.CycleReport{}, apperr.BadRequest("lead has no phone number")
	}

	cleared, err := s.store.ExpireLeadActiveCalls(ctx, tenantID, leadID)
	if err != nil {
		return transport.CycleReport{}, err
	}
	if cleared > 0 {
		s.log.Info("cleared stuck calls before force dispatch",
			"tenant_id", tenantID, "lead_id", leadID, "cleared", cleared)
	}

	existing, err := s.store.LatestEntry(ctx, tenantID, campaignID, leadID)
	if err != nil {
		return transport.CycleReport{}, err
	}
	if existing != nil {
		if err := s.store.PromoteEntry(ctx, existing.ID, priorityForce); err != nil {
			return transport.CycleReport{}, err
		}
	} else {
		entry := &repository.QueueEntry{
			TenantID:    tenantID,
			CampaignID:  campaignID,
			LeadID:      leadID,
			PhoneNumber: lead.PhoneNumber,
			Status:      repository.EntryStatusPending,
			Priority:    priorityForce,
			MaxAttempts: maxAttemptsFor(campaign),
			ScheduledAt: time.Now(),
		}
		if err := s.store.InsertQueueEntry(ctx, entry); err != nil {
			return transport.CycleReport{}, err
		}
	}

	return s.RunCycle(ctx, tenantID)
}

func maxAttemptsFor(campaign *repository.Campaign) int {
	if campaign.MaxAttempts > 0 {
		return campaign.MaxAttempts
	}
	return defaultMaxAttempts
}

func retryDelayFor(campaign *repository.Campaign) time.Duration {
	minutes := campaign.RetryDelayMinutes
	if minutes <= 0 {
		minutes = defaultRetryDelayMinutes
	}
	delay := time.Duration(minutes) * time.Minute
	if delay < minRetryDelay {
		return minRetryDelay
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}
