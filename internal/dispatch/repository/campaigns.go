package repository

import (
	"context"
	"errors"

	"dialer_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const campaignColumns = `id, tenant_id, name, status, agent_id, workflow_id,
	max_attempts, retry_delay_minutes`

func scanCampaign(row pgx.Row) (*Campaign, error) {
	var c Campaign
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Status, &c.AgentID, &c.WorkflowID,
		&c.MaxAttempts, &c.RetryDelayMinutes)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CampaignByID fetches one campaign scoped to the tenant.
func (r *Repository) CampaignByID(ctx context.Context, tenantID, campaignID uuid.UUID) (*Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE tenant_id = $1 AND id = $2`

	campaign, err := scanCampaign(r.pool.QueryRow(ctx, query, tenantID, campaignID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("campaign not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query campaign", err)
	}
	return campaign, nil
}

// ActiveCampaigns lists the tenant's campaigns currently taking in leads.
func (r *Repository) ActiveCampaigns(ctx context.Context, tenantID uuid.UUID) ([]Campaign, error) {
	query := `
		SELECT ` + campaignColumns + ` FROM campaigns
		WHERE tenant_id = $1 AND status = 'active'
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query active campaigns", err)
	}
	defer rows.Close()

	var campaigns []Campaign
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan campaign", err)
		}
		campaigns = append(campaigns, *campaign)
	}
	return campaigns, rows.Err()
}

// ActiveCampaignForLead resolves the active campaign a lead belongs to, or
// nil when the lead's campaign is missing or not active.
func (r *Repository) ActiveCampaignForLead(ctx context.Context, tenantID, leadID uuid.UUID) (*Campaign, error) {
	query := `
		SELECT c.id, c.tenant_id, c.name, c.status, c.agent_id, c.workflow_id,
			c.max_attempts, c.retry_delay_minutes
		FROM campaigns c
		JOIN leads l ON l.campaign_id = c.id
		WHERE c.tenant_id = $1 AND l.id = $2 AND c.status = 'active'`

	campaign, err := scanCampaign(r.pool.QueryRow(ctx, query, tenantID, leadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query campaign for lead", err)
	}
	return campaign, nil
}
