package repository

import (
	"context"
	"errors"
	"time"

	"dialer_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const leadColumns = `id, tenant_id, campaign_id, phone_number, first_name, last_name,
	status, do_not_call, next_callback_at, created_at`

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.TenantID, &l.CampaignID, &l.PhoneNumber, &l.FirstName,
		&l.LastName, &l.Status, &l.DoNotCall, &l.NextCallbackAt, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// LeadByID fetches one lead scoped to the tenant.
func (r *Repository) LeadByID(ctx context.Context, tenantID, leadID uuid.UUID) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE tenant_id = $1 AND id = $2`

	lead, err := scanLead(r.pool.QueryRow(ctx, query, tenantID, leadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("lead not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query lead", err)
	}
	return lead, nil
}

// DueCallbacks returns leads whose requested callback time has arrived,
// earliest first. Do-not-call leads never come back.
func (r *Repository) DueCallbacks(ctx context.Context, tenantID uuid.UUID, limit int) ([]Lead, error) {
	query := `
		SELECT ` + leadColumns + ` FROM leads
		WHERE tenant_id = $1 AND do_not_call = FALSE
		  AND next_callback_at IS NOT NULL AND next_callback_at <= NOW()
		ORDER BY next_callback_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query due callbacks", err)
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan lead", err)
		}
		leads = append(leads, *lead)
	}
	return leads, rows.Err()
}

// ClearCallback removes the lead's pending callback request.
func (r *Repository) ClearCallback(ctx context.Context, tenantID, leadID uuid.UUID) error {
	query := `UPDATE leads SET next_callback_at = NULL WHERE tenant_id = $1 AND id = $2`
	if _, err := r.pool.Exec(ctx, query, tenantID, leadID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to clear callback", err)
	}
	return nil
}

// ScheduleCallback sets the lead's callback time and status.
func (r *Repository) ScheduleCallback(ctx context.Context, tenantID, leadID uuid.UUID, at time.Time) error {
	query := `
		UPDATE leads SET next_callback_at = $3, status = 'callback'
		WHERE tenant_id = $1 AND id = $2`
	if _, err := r.pool.Exec(ctx, query, tenantID, leadID, at); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to schedule callback", err)
	}
	return nil
}

// SetLeadStatus updates the lead's pipeline status.
func (r *Repository) SetLeadStatus(ctx context.Context, tenantID, leadID uuid.UUID, status string) error {
	query := `UPDATE leads SET status = $3 WHERE tenant_id = $1 AND id = $2`
	if _, err := r.pool.Exec(ctx, query, tenantID, leadID, status); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to update lead status", err)
	}
	return nil
}

// SetDoNotCall flags the lead so no surface ever dials it again.
func (r *Repository) SetDoNotCall(ctx context.Context, tenantID, leadID uuid.UUID) error {
	query := `
		UPDATE leads SET do_not_call = TRUE, next_callback_at = NULL, status = 'do_not_call'
		WHERE tenant_id = $1 AND id = $2`
	if _, err := r.pool.Exec(ctx, query, tenantID, leadID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to set do-not-call", err)
	}
	return nil
}

// EligibleLeads returns intake candidates for one campaign. The hard
// exclusions live in SQL; the per-lead history checks stay in the service.
func (r *Repository) EligibleLeads(ctx context.Context, tenantID, campaignID uuid.UUID, limit int) ([]Lead, error) {
	query := `
		SELECT ` + leadColumns + ` FROM leads
		WHERE tenant_id = $1 AND campaign_id = $2
		  AND do_not_call = FALSE
		  AND phone_number <> ''
		  AND status <> 'callback'
		  AND (next_callback_at IS NULL OR next_callback_at <= NOW())
		ORDER BY created_at ASC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, tenantID, campaignID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query eligible leads", err)
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan lead", err)
		}
		leads = append(leads, *lead)
	}
	return leads, rows.Err()
}
