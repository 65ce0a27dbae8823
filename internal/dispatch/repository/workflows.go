package repository

import (
	"context"
	"errors"
	"time"

	"dialer_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const enrollmentColumns = `id, tenant_id, workflow_id, lead_id, phone_number, status,
	current_step_id, next_action_at, removal_reason, created_at, updated_at`

func scanEnrollment(row pgx.Row) (*Enrollment, error) {
	var e Enrollment
	err := row.Scan(&e.ID, &e.TenantID, &e.WorkflowID, &e.LeadID, &e.PhoneNumber, &e.Status,
		&e.CurrentStepID, &e.NextActionAt, &e.RemovalReason, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PausedForCallback finds an enrollment that was paused because the lead
// asked to be called back.
func (r *Repository) PausedForCallback(ctx context.Context, tenantID, leadID uuid.UUID) (*Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + ` FROM workflow_progress
		WHERE tenant_id = $1 AND lead_id = $2
		  AND status = 'paused' AND removal_reason = $3
		ORDER BY updated_at DESC
		LIMIT 1`

	enrollment, err := scanEnrollment(r.pool.QueryRow(ctx, query, tenantID, leadID, RemovalReasonCallback))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query paused enrollment", err)
	}
	return enrollment, nil
}

// ResumeEnrollment reactivates a paused enrollment with its next action due
// immediately.
func (r *Repository) ResumeEnrollment(ctx context.Context, enrollmentID uuid.UUID) error {
	query := `
		UPDATE workflow_progress
		SET status = 'active', next_action_at = NOW(), removal_reason = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'paused'`

	tag, err := r.pool.Exec(ctx, query, enrollmentID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to resume enrollment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("enrollment not paused")
	}
	return nil
}

// LiveEnrollment returns an active or paused enrollment of the lead in the
// workflow, or nil.
func (r *Repository) LiveEnrollment(ctx context.Context, tenantID, workflowID, leadID uuid.UUID) (*Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + ` FROM workflow_progress
		WHERE tenant_id = $1 AND workflow_id = $2 AND lead_id = $3
		  AND status IN ('active', 'paused')
		LIMIT 1`

	enrollment, err := scanEnrollment(r.pool.QueryRow(ctx, query, tenantID, workflowID, leadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query live enrollment", err)
	}
	return enrollment, nil
}

// HasRecentEnrollment reports whether the lead, matched by id or by the last
// ten digits of its phone number, was enrolled in the workflow inside the
// lookback window. The phone match catches re-imported duplicates.
func (r *Repository) HasRecentEnrollment(ctx context.Context, tenantID, workflowID, leadID uuid.UUID, phoneLast10 string, since time.Time) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM workflow_progress
			WHERE tenant_id = $1 AND workflow_id = $2
			  AND created_at > $5
			  AND (lead_id = $3
			       OR ($4 <> '' AND RIGHT(REGEXP_REPLACE(phone_number, '\D', '', 'g'), 10) = $4))
		)`
	err := r.pool.QueryRow(ctx, query, tenantID, workflowID, leadID, phoneLast10, since).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "failed to check recent enrollment", err)
	}
	return exists, nil
}

// InsertEnrollment creates a new active enrollment positioned at a step.
func (r *Repository) InsertEnrollment(ctx context.Context, e *Enrollment) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	query := `
		INSERT INTO workflow_progress (id, tenant_id, workflow_id, lead_id, phone_number,
			status, current_step_id, next_action_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.TenantID, e.WorkflowID, e.LeadID, e.PhoneNumber,
		e.Status, e.CurrentStepID, e.NextActionAt)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to insert enrollment", err)
	}
	return nil
}

// PauseEnrollmentForCallback parks the lead's live enrollments until the
// callback resolver picks them back up.
func (r *Repository) PauseEnrollmentForCallback(ctx context.Context, tenantID, leadID uuid.UUID) (int, error) {
	query := `
		UPDATE workflow_progress
		SET status = 'paused', removal_reason = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND lead_id = $2 AND status = 'active'`

	tag, err := r.pool.Exec(ctx, query, tenantID, leadID, RemovalReasonCallback)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to pause enrollments", err)
	}
	return int(tag.RowsAffected()), nil
}

// RemoveEnrollments drops the lead's live enrollments with a reason, used
// when the lead opts out.
func (r *Repository) RemoveEnrollments(ctx context.Context, tenantID, leadID uuid.UUID, reason string) (int, error) {
	query := `
		UPDATE workflow_progress
		SET status = 'removed', removal_reason = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND lead_id = $2 AND status IN ('active', 'paused')`

	tag, err := r.pool.Exec(ctx, query, tenantID, leadID, reason)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "failed to remove enrollments", err)
	}
	return int(tag.RowsAffected()), nil
}

// DueEnrollments returns active enrollments whose next action time has
// passed, oldest first.
func (r *Repository) DueEnrollments(ctx context.Context, tenantID uuid.UUID, limit int) ([]Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + ` FROM workflow_progress
		WHERE tenant_id = $1 AND status = 'active'
		  AND next_action_at IS NOT NULL AND next_action_at <= NOW()
		ORDER BY next_action_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query due enrollments", err)
	}
	defer rows.Close()

	var enrollments []Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan enrollment", err)
		}
		enrollments = append(enrollments, *e)
	}
	return enrollments, rows.Err()
}

// AdvanceEnrollment moves an enrollment to its next step.
func (r *Repository) AdvanceEnrollment(ctx context.Context, enrollmentID, stepID uuid.UUID, nextActionAt time.Time) error {
	query := `
		UPDATE workflow_progress
		SET current_step_id = $2, next_action_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'active'`

	tag, err := r.pool.Exec(ctx, query, enrollmentID, stepID, nextActionAt)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to advance enrollment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("enrollment not active")
	}
	return nil
}

// CompleteEnrollment finishes an enrollment that ran out of steps.
func (r *Repository) CompleteEnrollment(ctx context.Context, enrollmentID uuid.UUID) error {
	query := `
		UPDATE workflow_progress
		SET status = 'completed', next_action_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'active'`

	tag, err := r.pool.Exec(ctx, query, enrollmentID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to complete enrollment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("enrollment not active")
	}
	return nil
}

const stepColumns = `id, workflow_id, position, step_type, body, wait_minutes`

func scanStep(row pgx.Row) (*WorkflowStep, error) {
	var s WorkflowStep
	if err := row.Scan(&s.ID, &s.WorkflowID, &s.Position, &s.StepType, &s.Body, &s.WaitMinutes); err != nil {
		return nil, err
	}
	return &s, nil
}

// FirstWorkflowStep returns the lowest-position step of a workflow, or nil
// for an empty workflow.
func (r *Repository) FirstWorkflowStep(ctx context.Context, workflowID uuid.UUID) (*WorkflowStep, error) {
	query := `
		SELECT ` + stepColumns + ` FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY position ASC
		LIMIT 1`

	step, err := scanStep(r.pool.QueryRow(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query first workflow step", err)
	}
	return step, nil
}

// WorkflowStepByID fetches one step.
func (r *Repository) WorkflowStepByID(ctx context.Context, stepID uuid.UUID) (*WorkflowStep, error) {
	query := `SELECT ` + stepColumns + ` FROM workflow_steps WHERE id = $1`

	step, err := scanStep(r.pool.QueryRow(ctx, query, stepID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("workflow step not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query workflow step", err)
	}
	return step, nil
}

// NextWorkflowStep returns the step after the given position, or nil when the
// workflow is exhausted.
func (r *Repository) NextWorkflowStep(ctx context.Context, workflowID uuid.UUID, afterPosition int) (*WorkflowStep, error) {
	query := `
		SELECT ` + stepColumns + ` FROM workflow_steps
		WHERE workflow_id = $1 AND position > $2
		ORDER BY position ASC
		LIMIT 1`

	step, err := scanStep(r.pool.QueryRow(ctx, query, workflowID, afterPosition))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to query next workflow step", err)
	}
	return step, nil
}
