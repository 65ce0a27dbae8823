package repository

import (
	"context"

	"dialer_backend/platform/apperr"

	"github.com/google/uuid"
)

// EligibleNumbers returns outbound numbers fit to dial from: active, enrolled
// in rotation, provisioned with the provider, not spam flagged, out of
// quarantine, and under their daily limit. Ordered oldest first so
// tie-breaking in the selector is deterministic.
func (r *Repository) EligibleNumbers(ctx context.Context, tenantID uuid.UUID) ([]PhoneNumber, error) {
	query := `
		SELECT id, tenant_id, number, provider_id, status, is_spam_flagged,
			rotation_enabled, quarantined_until, daily_calls, daily_call_limit, created_at
		FROM phone_numbers
		WHERE tenant_id = $1
		  AND status = 'active'
		  AND rotation_enabled = TRUE
		  AND provider_id IS NOT NULL AND provider_id <> ''
		  AND is_spam_flagged = FALSE
		  AND (quarantined_until IS NULL OR quarantined_until <= NOW())
		  AND daily_calls < daily_call_limit
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query eligible numbers", err)
	}
	defer rows.Close()

	var numbers []PhoneNumber
	for rows.Next() {
		var n PhoneNumber
		err := rows.Scan(&n.ID, &n.TenantID, &n.Number, &n.ProviderID, &n.Status, &n.IsSpamFlagged,
			&n.RotationEnabled, &n.QuarantinedUntil, &n.DailyCalls, &n.DailyCallLimit, &n.CreatedAt)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan phone number", err)
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

// IncrementDailyCalls bumps a number's usage counter after a dispatched call.
func (r *Repository) IncrementDailyCalls(ctx context.Context, numberID uuid.UUID) error {
	query := `UPDATE phone_numbers SET daily_calls = daily_calls + 1 WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, numberID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to increment daily calls", err)
	}
	return nil
}

// ResetDailyCallCounts zeroes every number's daily counter, run once per day
// by the scheduler.
func (r *Repository) ResetDailyCallCounts(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE phone_numbers SET daily_calls = 0 WHERE daily_calls > 0`)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to reset daily call counts", err)
	}
	return int(tag.RowsAffected()), nil
}
