package repository

import (
	"context"
	"errors"

	"dialer_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TenantPacingSettings loads the tenant's dial-pacing row, or nil when the
// tenant never configured pacing and defaults apply.
func (r *Repository) TenantPacingSettings(ctx context.Context, tenantID uuid.UUID) (*PacingSettings, error) {
	query := `
		SELECT max_concurrent_calls, calls_per_minute, provider_max_concurrent,
			adaptive_pacing_enabled
		FROM tenant_settings
		WHERE tenant_id = $1`

	var s PacingSettings
	err := r.pool.QueryRow(ctx, query, tenantID).Scan(
		&s.MaxConcurrentCalls, &s.CallsPerMinute, &s.ProviderMaxConcurrent, &s.AdaptivePacingEnabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query pacing settings", err)
	}
	return &s, nil
}
