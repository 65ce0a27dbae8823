package service

import (
	"context"
	"errors"
	"time"

	"dialer_backend/internal/dispatch/repository"
	"dialer_backend/internal/dispatch/transport"

	"github.com/google/uuid"
)

// resolveCallbacks honors due callback requests before any intake work. For
// each due lead it prefers, in order: resuming a paused enrollment, starting
// a fresh SMS-first workflow, then queueing a voice call at callback
// priority. Per-lead failures are collected; the batch keeps going.
func (s *Service) resolveCallbacks(ctx context.Context, tenantID uuid.UUID) (transport.CallbackCounts, error) {
	var counts transport.CallbackCounts

	leads, err := s.store.DueCallbacks(ctx, tenantID, callbackBatchSize)
	if err != nil {
		return counts, err
	}

	var errs []error
	for _, lead := range leads {
		if err := s.resolveCallback(ctx, tenantID, lead, &counts); err != nil {
			s.log.Warn("callback resolution failed for lead",
				"tenant_id", tenantID, "lead_id", lead.ID, "error", err)
			errs = append(errs, err)
		}
	}

	return counts, errors.Join(errs...)
}

func (s *Service) resolveCallback(ctx context.Context, tenantID uuid.UUID, lead repository.Lead, counts *transport.CallbackCounts) error {
	// A paused enrollment means the lead was mid-workflow when it asked to
	// be called back. Resuming it is the whole resolution.
	paused, err := s.store.PausedForCallback(ctx, tenantID, lead.ID)
	if err != nil {
		return err
	}
	if paused != nil {
		if err := s.store.ResumeEnrollment(ctx, paused.ID); err != nil {
			return err
		}
		if err := s.store.ClearCallback(ctx, tenantID, lead.ID); err != nil {
			return err
		}
		counts.Resumed++
		return nil
	}

	// No active campaign: leave the callback in place for when the
	// campaign comes back.
	campaign, err := s.store.ActiveCampaignForLead(ctx, tenantID, lead.ID)
	if err != nil {
		return err
	}
	if campaign == nil {
		return nil
	}

	if campaign.WorkflowID != nil {
		enrolled, err := s.enrollForCallback(ctx, tenantID, campaign, lead)
		if err != nil {
			return err
		}
		switch enrolled {
		case enrollCreated:
			counts.Enrolled++
			return nil
		case enrollRedundant:
			return s.store.ClearCallback(ctx, tenantID, lead.ID)
		}
		// enrollNotApplicable falls through to the voice path.
	}

	return s.queueCallbackCall(ctx, tenantID, campaign, lead, counts)
}

type enrollOutcome int

const (
	enrollNotApplicable enrollOutcome = iota
	enrollCreated
	enrollRedundant
)

// enrollForCallback starts the campaign's workflow for the lead when the
// workflow opens with an SMS step. A live enrollment already covering the
// lead makes the callback redundant.
func (s *Service) enrollForCallback(ctx context.Context, tenantID uuid.UUID, campaign *repository.Campaign, lead repository.Lead) (enrollOutcome, error) {
	live, err := s.store.LiveEnrollment(ctx, tenantID, *campaign.WorkflowID, lead.ID)
	if err != nil {
		return enrollNotApplicable, err
	}
	if live != nil {
		return enrollRedundant, nil
	}

	step, err := s.store.FirstWorkflowStep(ctx, *campaign.WorkflowID)
	if err != nil {
		return enrollNotApplicable, err
	}
	if step == nil || step.StepType != repository.StepTypeSMS {
		return enrollNotApplicable, nil
	}

	now := time.Now()
	enrollment := &repository.Enrollment{
		TenantID:      tenantID,
		WorkflowID:    *campaign.WorkflowID,
		LeadID:        lead.ID,
		PhoneNumber:   lead.PhoneNumber,
		Status:        repository.EnrollmentActive,
		CurrentStepID: &step.ID,
		NextActionAt:  &now,
	}
	if err := s.store.InsertEnrollment(ctx, enrollment); err != nil {
		return enrollNotApplicable, err
	}
	if err := s.store.ClearCallback(ctx, tenantID, lead.ID); err != nil {
		return enrollNotApplicable, err
	}
	return enrollCreated, nil
}

// queueCallbackCall puts the lead in the dialing queue at callback priority.
// A live entry already covers the callback; a terminal one gets revived.
func (s *Service) queueCallbackCall(ctx context.Context, tenantID uuid.UUID, campaign *repository.Campaign, lead repository.Lead, counts *transport.CallbackCounts) error {
	existing, err := s.store.LatestEntry(ctx, tenantID, campaign.ID, lead.ID)
	if err != nil {
		return err
	}

	switch {
	case existing != nil && !existing.Status.Terminal():
		return s.store.ClearCallback(ctx, tenantID, lead.ID)

	case existing != nil:
		if err := s.store.PromoteEntry(ctx, existing.ID, priorityCallback); err != nil {
			return err
		}

	default:
		inFlight, err := s.store.HasCallInFlight(ctx, tenantID, lead.ID, time.Now().Add(-callbackDedupeWindow))
		if err != nil {
			return err
		}
		if inFlight {
			// Leave the callback set; next cycle retries once the
			// attempt settles.
			return nil
		}
		entry := &repository.QueueEntry{
			TenantID:    tenantID,
			CampaignID:  campaign.ID,
			LeadID:      lead.ID,
			PhoneNumber: lead.PhoneNumber,
			Status:      repository.EntryStatusPending,
			Priority:    priorityCallback,
			MaxAttempts: maxAttemptsFor(campaign),
			ScheduledAt: time.Now(),
		}
		if err := s.store.InsertQueueEntry(ctx, entry); err != nil {
			return err
		}
	}

	if err := s.store.ClearCallback(ctx, tenantID, lead.ID); err != nil {
		return err
	}
	counts.Queued++
	return nil
}
