package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dialer_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const queueColumns = `id, tenant_id, campaign_id, lead_id, phone_number, status, priority,
	attempts, max_attempts, scheduled_at, provider_call_id, last_error, created_at, updated_at`

func scanQueueEntry(row pgx.Row) (*QueueEntry, error) {
	var e QueueEntry
	err := row.Scan(&e.ID, &e.TenantID, &e.CampaignID, &e.LeadID, &e.PhoneNumber, &e.Status,
		&e.Priority, &e.Attempts, &e.MaxAttempts, &e.ScheduledAt, &e.ProviderCallID,
		&e.LastError, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// InsertQueueEntry adds a new pending entry to the dialing queue.
func (r *Repository) InsertQueueEntry(ctx context.Context, entry *QueueEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	query := `
		INSERT INTO dialing_queue (id, tenant_id, campaign_id, lead_id, phone_number,
			status, priority, attempts, max_attempts, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())`

	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.TenantID, entry.CampaignID, entry.LeadID, entry.PhoneNumber,
		entry.Status, entry.Priority, entry.Attempts, entry.MaxAttempts, entry.ScheduledAt)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to insert queue entry", err)
	}
	return nil
}

// NonTerminalEntry returns the pending or calling entry for a campaign/lead
// pair, or nil when none exists.
func (r *Repository) NonTerminalEntry(ctx context.Context, tenantID, campaignID, leadID uuid.UUID) (*QueueEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM dialing_queue
		WHERE tenant_id = $1 AND campaign_id = $2 AND lead_id = $3
		  AND status IN ('pending', 'calling')
		ORDER BY created_at DESC
		LIMIT 1`, queueColumns)

	entry, err := scanQueueEntry(r.pool.QueryRow(ctx, query, tenantID, campaignID, leadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query queue entry", err)
	}
	return entry, nil
}

// LatestEntry returns the most recent entry for a campaign/lead pair in any
// status, or nil when the pair was never queued.
func (r *Repository) LatestEntry(ctx context.Context, tenantID, campaignID, leadID uuid.UUID) (*QueueEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM dialing_queue
		WHERE tenant_id = $1 AND campaign_id = $2 AND lead_id = $3
		ORDER BY created_at DESC
		LIMIT 1`, queueColumns)

	entry, err := scanQueueEntry(r.pool.QueryRow(ctx, query, tenantID, campaignID, leadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query latest queue entry", err)
	}
	return entry, nil
}

// DuePendingEntries returns pending entries whose scheduled time has passed,
// highest priority first, oldest schedule first within a priority.
func (r *Repository) DuePendingEntries(ctx context.Context, tenantID uuid.UUID, limit int) ([]QueueEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM dialing_queue
		WHERE tenant_id = $1 AND status = 'pending' AND scheduled_at <= NOW()
		ORDER BY priority DESC, scheduled_at ASC
		LIMIT $2`, queueColumns)

	rows, err := r.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query due queue entries", err)
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan queue entry", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// ClaimEntryForDialing atomically moves a pending entry to calling and bumps
// its attempt counter. The status precondition makes concurrent invocations
// safe: only one claimer wins. Returns the post-increment attempt count and
// whether this caller won the claim.
func (r *Repository) ClaimEntryForDialing(ctx context.Context, entryID uuid.UUID) (int, bool, error) {
	query := `
		UPDATE dialing_queue
		SET status = 'calling', attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING attempts`

	var attempts int
	err := r.pool.QueryRow(ctx, query, entryID).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, apperr.Wrap(apperr.KindInternal, "failed to claim queue entry", err)
	}
	return attempts, true, nil
}

// RequeueEntry returns a calling entry to pending with a new schedule, used
// for retryable dispatch failures and rate-limit backoff.
func (r *Repository) RequeueEntry(ctx context.Context, entryID uuid.UUID, scheduledAt time.Time, lastError string) error {
	query := `
		UPDATE dialing_queue
		SET status = 'pending', scheduled_at = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'calling'`

	tag, err := r.pool.Exec(ctx, query, entryID, scheduledAt, lastError)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to requeue entry", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("queue entry not in calling state")
	}
	return nil
}

// RequeueEntryRateLimited returns a calling entry to pending after a provider
// throttle and refunds the attempt the claim charged: the dial never reached
// the lead, so attempts stays within the entry's budget no matter how long
// the throttling lasts.
func (r *Repository) RequeueEntryRateLimited(ctx context.Context, entryID uuid.UUID, scheduledAt time.Time, lastError string) error {
	query := `
		UPDATE dialing_queue
		SET status = 'pending', attempts = GREATEST(attempts - 1, 0),
		    scheduled_at = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'calling'`

	tag, err := r.pool.Exec(ctx, query, entryID, scheduledAt, lastError)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to requeue rate-limited entry", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("queue entry not in calling state")
	}
	return nil
}

// MarkEntryCompleted finishes an entry after a call attempt was accepted by
// the provider.
func (r *Repository) MarkEntryCompleted(ctx context.Context, entryID uuid.UUID) error {
	query := `
		UPDATE dialing_queue
		SET status = 'completed', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'calling')`

	tag, err := r.pool.Exec(ctx, query, entryID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to complete queue entry", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("queue entry not found or already terminal")
	}
	return nil
}

// MarkEntryFailed terminally fails an entry with a reason.
func (r *Repository) MarkEntryFailed(ctx context.Context, entryID uuid.UUID, reason string) error {
	query := `
		UPDATE dialing_queue
		SET status = 'failed', last_error = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'calling')`

	tag, err := r.pool.Exec(ctx, query, entryID, reason)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to fail queue entry", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("queue entry not found or already terminal")
	}
	return nil
}

// SetEntryProviderCall records the provider call id handed back on dispatch.
func (r *Repository) SetEntryProviderCall(ctx context.Context, entryID uuid.UUID, providerCallID string) error {
	query := `UPDATE dialing_queue SET provider_call_id = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, entryID, providerCallID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to set provider call id", err)
	}
	return nil
}

// PromoteEntry resets an entry (terminal or not) to pending at the given
// priority, scheduled immediately, with a fresh attempt budget.
func (r *Repository) PromoteEntry(ctx context.Context, entryID uuid.UUID, priority int) error {
	query := `
		UPDATE dialing_queue
		SET status = 'pending', priority = $2, attempts = 0, scheduled_at = NOW(),
		    last_error = NULL, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, entryID, priority)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to promote queue entry", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("queue entry not found")
	}
	return nil
}

// CountPendingEntries counts all pending entries for the tenant, due or not.
func (r *Repository) CountPendingEntries(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM dialing_queue WHERE tenant_id = $1 AND status = 'pending'`
	if err := r.pool.QueryRow(ctx, query, tenantID).Scan(&count); err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to count pending entries", err)
	}
	return count, nil
}

// NextScheduledAt returns the earliest future schedule among pending entries,
// or nil when nothing is scheduled ahead.
func (r *Repository) NextScheduledAt(ctx context.Context, tenantID uuid.UUID) (*time.Time, error) {
	var next *time.Time
	query := `
		SELECT MIN(scheduled_at) FROM dialing_queue
		WHERE tenant_id = $1 AND status = 'pending' AND scheduled_at > NOW()`
	if err := r.pool.QueryRow(ctx, query, tenantID).Scan(&next); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query next scheduled entry", err)
	}
	return next, nil
}

// FailUnstartedEntries terminally fails pending entries that were never
// handed to the provider and whose schedule passed before the cutoff.
func (r *Repository) FailUnstartedEntries(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error) {
	query := `
		UPDATE dialing_queue
		SET status = 'failed', last_error = 'call never started', updated_at = NOW()
		WHERE tenant_id = $1 AND status = 'pending'
		  AND provider_call_id IS NULL AND attempts = 0 AND scheduled_at < $2`

	tag, err := r.pool.Exec(ctx, query, tenantID, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to expire unstarted entries", err)
	}
	return int(tag.RowsAffected()), nil
}

// ResetStuckCallingEntries returns calling entries that have not progressed
// since the cutoff back to pending. A dispatch step that crashed mid-flight
// leaves its claim in this state.
func (r *Repository) ResetStuckCallingEntries(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error) {
	query := `
		UPDATE dialing_queue
		SET status = 'pending', scheduled_at = NOW(), updated_at = NOW()
		WHERE tenant_id = $1 AND status = 'calling' AND updated_at < $2`

	tag, err := r.pool.Exec(ctx, query, tenantID, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to reset stuck calling entries", err)
	}
	return int(tag.RowsAffected()), nil
}

// TenantsWithRunnableWork returns tenants the scheduler should enqueue a
// cycle for: anything with due queue entries, due callbacks, or an active
// campaign that may have intake to do.
func (r *Repository) TenantsWithRunnableWork(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT tenant_id FROM dialing_queue WHERE status = 'pending' AND scheduled_at <= NOW()
		UNION
		SELECT tenant_id FROM leads
		WHERE do_not_call = FALSE AND next_callback_at IS NOT NULL AND next_callback_at <= NOW()
		UNION
		SELECT tenant_id FROM campaigns WHERE status = 'active'`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query tenants with work", err)
	}
	defer rows.Close()

	var tenants []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan tenant id", err)
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}
