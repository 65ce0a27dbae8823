package repository

import (
	"context"
	"time"

	"dialer_backend/platform/apperr"

	"github.com/google/uuid"
)

// CountActiveCalls counts call attempts in a non-terminal provider state
// created inside the freshness window. Older rows are presumed stale and are
// the sweeper's problem, not capacity's.
func (r *Repository) CountActiveCalls(ctx context.Context, tenantID uuid.UUID, since time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM call_logs
		WHERE tenant_id = $1
		  AND status IN ('queued', 'initiated', 'ringing', 'in_progress')
		  AND created_at > $2`
	if err := r.pool.QueryRow(ctx, query, tenantID, since).Scan(&count); err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to count active calls", err)
	}
	return count, nil
}

// InsertCallAttempt records a freshly dispatched call in the queued state.
func (r *Repository) InsertCallAttempt(ctx context.Context, log *CallLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	query := `
		INSERT INTO call_logs (id, tenant_id, campaign_id, lead_id, queue_entry_id,
			provider_call_id, caller_number, lead_number, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`

	_, err := r.pool.Exec(ctx, query,
		log.ID, log.TenantID, log.CampaignID, log.LeadID, log.QueueEntryID,
		log.ProviderCallID, log.CallerNumber, log.LeadNumber, log.Status)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to insert call attempt", err)
	}
	return nil
}

// HasRecentAttempt reports whether the lead already has a non-failed call
// attempt for the campaign inside the window.
func (r *Repository) HasRecentAttempt(ctx context.Context, tenantID, campaignID, leadID uuid.UUID, since time.Time) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM call_logs
			WHERE tenant_id = $1 AND campaign_id = $2 AND lead_id = $3
			  AND status <> 'failed' AND created_at > $4
		)`
	if err := r.pool.QueryRow(ctx, query, tenantID, campaignID, leadID, since).Scan(&exists); err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "failed to check recent attempts", err)
	}
	return exists, nil
}

// HasContactedOutcome reports whether any call for the campaign/lead pair
// ever reached the lead.
func (r *Repository) HasContactedOutcome(ctx context.Context, tenantID, campaignID, leadID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM call_logs
			WHERE tenant_id = $1 AND campaign_id = $2 AND lead_id = $3
			  AND outcome IN ('connected', 'answered', 'interested', 'appointment_set')
		)`
	if err := r.pool.QueryRow(ctx, query, tenantID, campaignID, leadID).Scan(&exists); err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "failed to check contacted outcomes", err)
	}
	return exists, nil
}

// HasCallInFlight reports whether the lead has an active call attempt newer
// than the window, regardless of campaign.
func (r *Repository) HasCallInFlight(ctx context.Context, tenantID, leadID uuid.UUID, since time.Time) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM call_logs
			WHERE tenant_id = $1 AND lead_id = $2
			  AND status IN ('queued', 'initiated', 'ringing', 'in_progress')
			  AND created_at > $3
		)`
	if err := r.pool.QueryRow(ctx, query, tenantID, leadID, since).Scan(&exists); err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "failed to check in-flight calls", err)
	}
	return exists, nil
}

// ExpireStartingCalls marks initiated/ringing calls older than the cutoff as
// no_answer. Returns the number of rows expired.
func (r *Repository) ExpireStartingCalls(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error) {
	query := `
		UPDATE call_logs
		SET status = 'no_answer', ended_at = NOW()
		WHERE tenant_id = $1 AND status IN ('initiated', 'ringing') AND created_at < $2`

	tag, err := r.pool.Exec(ctx, query, tenantID, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to expire starting calls", err)
	}
	return int(tag.RowsAffected()), nil
}

// ExpireInProgressCalls marks in_progress calls older than the cutoff as
// no_answer. Returns the number of rows expired.
func (r *Repository) ExpireInProgressCalls(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error) {
	query := `
		UPDATE call_logs
		SET status = 'no_answer', ended_at = NOW()
		WHERE tenant_id = $1 AND status = 'in_progress' AND created_at < $2`

	tag, err := r.pool.Exec(ctx, query, tenantID, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to expire in-progress calls", err)
	}
	return int(tag.RowsAffected()), nil
}

// ExpireLeadActiveCalls clears any active call attempt for one lead. The
// force-dispatch path uses this so a stuck attempt cannot block an operator.
func (r *Repository) ExpireLeadActiveCalls(ctx context.Context, tenantID, leadID uuid.UUID) (int, error) {
	query := `
		UPDATE call_logs
		SET status = 'no_answer', ended_at = NOW()
		WHERE tenant_id = $1 AND lead_id = $2
		  AND status IN ('queued', 'initiated', 'ringing', 'in_progress')`

	tag, err := r.pool.Exec(ctx, query, tenantID, leadID)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to expire lead calls", err)
	}
	return int(tag.RowsAffected()), nil
}

// CallLogByProviderID looks up a call attempt by the provider's call id.
func (r *Repository) CallLogByProviderID(ctx context.Context, providerCallID string) (*CallLog, error) {
	query := `
		SELECT id, tenant_id, campaign_id, lead_id, queue_entry_id, provider_call_id,
			caller_number, lead_number, status, outcome, recording_url, recording_key,
			started_at, ended_at, created_at
		FROM call_logs
		WHERE provider_call_id = $1`

	var l CallLog
	err := r.pool.QueryRow(ctx, query, providerCallID).Scan(
		&l.ID, &l.TenantID, &l.CampaignID, &l.LeadID, &l.QueueEntryID, &l.ProviderCallID,
		&l.CallerNumber, &l.LeadNumber, &l.Status, &l.Outcome, &l.RecordingURL, &l.RecordingKey,
		&l.StartedAt, &l.EndedAt, &l.CreatedAt)
	if err != nil {
		return nil, apperr.NotFound("call log not found")
	}
	return &l, nil
}

// UpdateCallFromWebhook applies a provider status report to a call attempt.
func (r *Repository) UpdateCallFromWebhook(ctx context.Context, id uuid.UUID, status CallStatus, outcome, recordingURL *string, startedAt, endedAt *time.Time) error {
	query := `
		UPDATE call_logs
		SET status = $2,
		    outcome = COALESCE($3, outcome),
		    recording_url = COALESCE($4, recording_url),
		    started_at = COALESCE($5, started_at),
		    ended_at = COALESCE($6, ended_at)
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, status, outcome, recordingURL, startedAt, endedAt)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to update call from webhook", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("call log not found")
	}
	return nil
}

// SetRecordingKey stores the object storage key of an archived recording.
func (r *Repository) SetRecordingKey(ctx context.Context, id uuid.UUID, key string) error {
	query := `UPDATE call_logs SET recording_key = $2 WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id, key); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to set recording key", err)
	}
	return nil
}

// RecordingKey returns the archive key of a call's recording, tenant scoped.
func (r *Repository) RecordingKey(ctx context.Context, tenantID, id uuid.UUID) (string, error) {
	query := `SELECT recording_key FROM call_logs WHERE id = $1 AND tenant_id = $2`

	var key *string
	if err := r.pool.QueryRow(ctx, query, id, tenantID).Scan(&key); err != nil {
		return "", apperr.NotFound("call log not found")
	}
	if key == nil || *key == "" {
		return "", apperr.NotFound("call has no archived recording")
	}
	return *key, nil
}
