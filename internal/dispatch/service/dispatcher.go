package service

import (
	"context"
	"strings"
	"time"

	"dialer_backend/internal/dispatch/repository"
	"dialer_backend/internal/dispatch/transport"
	"dialer_backend/internal/events"
	"dialer_backend/platform/apperr"

	"github.com/google/uuid"
)

// dispatchBatch dials out the planned batch. A rate-limit signal from the
// provider is systemic, so it aborts the remainder of the batch after
// requeueing the entry that hit it. Other per-entry failures requeue or fail
// that entry alone.
func (s *Service) dispatchBatch(ctx context.Context, tenantID uuid.UUID, plan batchPlan) (int, []transport.EntryResult, error) {
	if plan.BatchSize <= 0 {
		return 0, nil, nil
	}

	entries, err := s.store.DuePendingEntries(ctx, tenantID, plan.BatchSize)
	if err != nil {
		return 0, nil, err
	}
	if len(entries) == 0 {
		return 0, nil, nil
	}

	numbers, err := s.store.EligibleNumbers(ctx, tenantID)
	if err != nil {
		return 0, nil, err
	}
	if len(numbers) == 0 {
		pending, _ := s.store.CountPendingEntries(ctx, tenantID)
		s.bus.Publish(ctx, events.PhoneNumbersExhausted{
			BaseEvent:    events.NewBaseEvent(),
			TenantID:     tenantID,
			PendingCalls: pending,
		})
		// No entries are touched: the queue holds until a number frees up.
		return 0, nil, apperr.Unavailable("no valid phone numbers available")
	}

	selector := newCallerIDSelector(numbers)
	campaigns := make(map[uuid.UUID]*repository.Campaign)

	var dispatched int
	var results []transport.EntryResult
	for _, entry := range entries {
		result, rateLimited := s.dispatchEntry(ctx, tenantID, entry, selector, campaigns)
		results = append(results, result)
		if result.Success {
			dispatched++
		}
		if rateLimited {
			s.log.Warn("provider rate limit hit, aborting batch",
				"tenant_id", tenantID, "dispatched", dispatched, "batch_size", len(entries))
			break
		}
	}

	return dispatched, results, nil
}

// dispatchEntry dials one queue entry. The second return value reports a
// provider rate limit, which the caller treats as a batch-wide stop.
func (s *Service) dispatchEntry(ctx context.Context, tenantID uuid.UUID, entry repository.QueueEntry, selector *callerIDSelector, campaigns map[uuid.UUID]*repository.Campaign) (transport.EntryResult, bool) {
	result := transport.EntryResult{LeadID: entry.LeadID.String()}

	campaign, ok := campaigns[entry.CampaignID]
	if !ok {
		var err error
		campaign, err = s.store.CampaignByID(ctx, tenantID, entry.CampaignID)
		if err != nil {
			result.Error = "campaign not found"
			s.failEntry(ctx, entry.ID, result.Error)
			return result, false
		}
		campaigns[entry.CampaignID] = campaign
	}
	if campaign.AgentID == nil || *campaign.AgentID == "" {
		result.Error = "campaign has no agent configured"
		s.failEntry(ctx, entry.ID, result.Error)
		return result, false
	}

	number := selector.pick(entry.PhoneNumber)
	if number == nil {
		result.Error = "no valid phone numbers available"
		s.failEntry(ctx, entry.ID, result.Error)
		return result, false
	}

	attempts, claimed, err := s.store.ClaimEntryForDialing(ctx, entry.ID)
	if err != nil {
		result.Error = err.Error()
		return result, false
	}
	if !claimed {
		// Another invocation got here first.
		result.Error = "entry no longer pending"
		return result, false
	}

	lead, err := s.store.LeadByID(ctx, tenantID, entry.LeadID)
	if err != nil {
		result.Error = "lead not found"
		s.failEntry(ctx, entry.ID, result.Error)
		return result, false
	}

	callID, err := s.calls.CreateCall(ctx, CreateCallParams{
		TenantID:   tenantID,
		CampaignID: entry.CampaignID,
		LeadID:     entry.LeadID,
		AgentID:    *campaign.AgentID,
		ToNumber:   entry.PhoneNumber,
		FromNumber: number.Number,
		LeadName:   strings.TrimSpace(lead.FirstName + " " + lead.LastName),
	})
	if err != nil {
		return s.handleDialError(ctx, tenantID, entry, campaign, attempts, err), apperr.Is(err, apperr.KindRateLimited)
	}

	s.recordDispatch(ctx, tenantID, entry, number, callID)

	result.Success = true
	result.CallID = callID
	selector.markUsed(number.ID)
	return result, false
}

func (s *Service) handleDialError(ctx context.Context, tenantID uuid.UUID, entry repository.QueueEntry, campaign *repository.Campaign, attempts int, dialErr error) transport.EntryResult {
	result := transport.EntryResult{LeadID: entry.LeadID.String(), Error: dialErr.Error()}
	s.log.DispatchError(tenantID.String(), entry.ID.String(), dialErr)

	switch {
	case apperr.Is(dialErr, apperr.KindRateLimited):
		// The throttled dial never reached the lead, so the attempt the
		// claim charged is refunded on requeue.
		if err := s.store.RequeueEntryRateLimited(ctx, entry.ID, time.Now().Add(rateLimitRequeueDelay), dialErr.Error()); err != nil {
			s.log.Error("failed to requeue rate-limited entry", "entry_id", entry.ID, "error", err)
		}

	case attempts < entry.MaxAttempts:
		retryAt := time.Now().Add(retryDelayFor(campaign))
		if err := s.store.RequeueEntry(ctx, entry.ID, retryAt, dialErr.Error()); err != nil {
			s.log.Error("failed to requeue entry for retry", "entry_id", entry.ID, "error", err)
		}

	default:
		s.failEntry(ctx, entry.ID, dialErr.Error())
	}
	return result
}

func (s *Service) recordDispatch(ctx context.Context, tenantID uuid.UUID, entry repository.QueueEntry, number *repository.PhoneNumber, callID string) {
	if err := s.store.SetEntryProviderCall(ctx, entry.ID, callID); err != nil {
		s.log.Error("failed to record provider call id", "entry_id", entry.ID, "error", err)
	}
	if err := s.store.MarkEntryCompleted(ctx, entry.ID); err != nil {
		s.log.Error("failed to complete queue entry", "entry_id", entry.ID, "error", err)
	}

	attempt := &repository.CallLog{
		TenantID:       tenantID,
		CampaignID:     &entry.CampaignID,
		LeadID:         entry.LeadID,
		QueueEntryID:   &entry.ID,
		ProviderCallID: &callID,
		CallerNumber:   &number.Number,
		LeadNumber:     entry.PhoneNumber,
		Status:         repository.CallStatusQueued,
	}
	if err := s.store.InsertCallAttempt(ctx, attempt); err != nil {
		s.log.Error("failed to insert call attempt", "entry_id", entry.ID, "error", err)
	}
	if err := s.store.IncrementDailyCalls(ctx, number.ID); err != nil {
		s.log.Error("failed to increment daily calls", "number_id", number.ID, "error", err)
	}

	s.log.CallEvent("call dispatched", tenantID.String(), entry.LeadID.String(), callID)
	s.bus.Publish(ctx, events.CallDispatched{
		BaseEvent:  events.NewBaseEvent(),
		TenantID:   tenantID,
		CampaignID: entry.CampaignID,
		LeadID:     entry.LeadID,
		EntryID:    entry.ID,
		CallID:     callID,
		CallerID:   number.Number,
	})
}

func (s *Service) failEntry(ctx context.Context, entryID uuid.UUID, reason string) {
	if err := s.store.MarkEntryFailed(ctx, entryID, reason); err != nil {
		s.log.Error("failed to mark entry failed", "entry_id", entryID, "error", err)
	}
}
