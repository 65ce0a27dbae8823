package service

import (
	"context"
	"errors"
	"time"

	"dialer_backend/internal/dispatch/repository"
	"dialer_backend/platform/phone"

	"github.com/google/uuid"
)

// campaignLead is a dialable campaign/lead pair produced by intake.
type campaignLead struct {
	Campaign repository.Campaign
	Lead     repository.Lead
}

// eligiblePairs pulls intake candidates from every active campaign and drops
// the ones history disqualifies: a live queue entry, a recent workflow
// enrollment, a recent call attempt, or a call that already reached the lead.
func (s *Service) eligiblePairs(ctx context.Context, tenantID uuid.UUID) ([]campaignLead, error) {
	campaigns, err := s.store.ActiveCampaigns(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var pairs []campaignLead
	var errs []error
	for _, campaign := range campaigns {
		leads, err := s.store.EligibleLeads(ctx, tenantID, campaign.ID, intakeBatchSize)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, lead := range leads {
			ok, err := s.leadPassesHistory(ctx, tenantID, campaign, lead)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				pairs = append(pairs, campaignLead{Campaign: campaign, Lead: lead})
			}
		}
	}

	return pairs, errors.Join(errs...)
}

func (s *Service) leadPassesHistory(ctx context.Context, tenantID uuid.UUID, campaign repository.Campaign, lead repository.Lead) (bool, error) {
	live, err := s.store.NonTerminalEntry(ctx, tenantID, campaign.ID, lead.ID)
	if err != nil {
		return false, err
	}
	if live != nil {
		return false, nil
	}

	if campaign.WorkflowID != nil {
		recent, err := s.store.HasRecentEnrollment(ctx, tenantID, *campaign.WorkflowID, lead.ID,
			phone.LastDigits(lead.PhoneNumber, 10), time.Now().Add(-s.enrollmentLookback))
		if err != nil {
			return false, err
		}
		if recent {
			return false, nil
		}
	}

	attempted, err := s.store.HasRecentAttempt(ctx, tenantID, campaign.ID, lead.ID, time.Now().Add(-activeCallWindow))
	if err != nil {
		return false, err
	}
	if attempted {
		return false, nil
	}

	contacted, err := s.store.HasContactedOutcome(ctx, tenantID, campaign.ID, lead.ID)
	if err != nil {
		return false, err
	}
	return !contacted, nil
}
