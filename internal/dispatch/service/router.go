package service

import (
	"context"
	"errors"
	"time"

	"dialer_backend/internal/dispatch/repository"

	"github.com/google/uuid"
)

// routePairs sends each intake pair down one of two paths: a campaign whose
// workflow opens with an SMS step enrolls the lead there; everything else
// goes straight into the dialing queue at intake priority. Returns how many
// leads were enrolled and how many were queued.
func (s *Service) routePairs(ctx context.Context, tenantID uuid.UUID, pairs []campaignLead) (int, int, error) {
	var enrolled, queued int
	var errs []error

	for _, pair := range pairs {
		viaSMS, err := s.routeViaSMS(ctx, tenantID, pair)
		if err != nil {
			s.log.Warn("intake routing failed for lead",
				"tenant_id", tenantID, "lead_id", pair.Lead.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if viaSMS {
			enrolled++
			continue
		}

		entry := &repository.QueueEntry{
			TenantID:    tenantID,
			CampaignID:  pair.Campaign.ID,
			LeadID:      pair.Lead.ID,
			PhoneNumber: pair.Lead.PhoneNumber,
			Status:      repository.EntryStatusPending,
			Priority:    priorityIntake,
			MaxAttempts: maxAttemptsFor(&pair.Campaign),
			ScheduledAt: time.Now(),
		}
		if err := s.store.InsertQueueEntry(ctx, entry); err != nil {
			errs = append(errs, err)
			continue
		}
		queued++
	}

	return enrolled, queued, errors.Join(errs...)
}

// routeViaSMS enrolls the lead when the campaign's workflow starts with an
// SMS step. Returns false when the pair should be dialed instead.
func (s *Service) routeViaSMS(ctx context.Context, tenantID uuid.UUID, pair campaignLead) (bool, error) {
	if pair.Campaign.WorkflowID == nil {
		return false, nil
	}
	step, err := s.store.FirstWorkflowStep(ctx, *pair.Campaign.WorkflowID)
	if err != nil {
		return false, err
	}
	if step == nil || step.StepType != repository.StepTypeSMS {
		return false, nil
	}

	now := time.Now()
	enrollment := &repository.Enrollment{
		TenantID:      tenantID,
		WorkflowID:    *pair.Campaign.WorkflowID,
		LeadID:        pair.Lead.ID,
		PhoneNumber:   pair.Lead.PhoneNumber,
		Status:        repository.EnrollmentActive,
		CurrentStepID: &step.ID,
		NextActionAt:  &now,
	}
	if err := s.store.InsertEnrollment(ctx, enrollment); err != nil {
		return false, err
	}
	return true, nil
}
