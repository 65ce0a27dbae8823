// Package workflows executes follow-up workflow steps for enrolled leads.
// Enrollment happens in the dispatch engine; this executor advances due
// enrollments step by step.
package workflows

import (
	"context"
	"errors"
	"time"

	"dialer_backend/internal/dispatch/repository"
	"dialer_backend/platform/logger"
	"dialer_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	// executionBatchSize bounds one executor run.
	executionBatchSize = 50

	// Call steps enter the dialing queue ahead of fresh intake, at the same
	// priority as honored callback requests.
	callStepPriority = 10

	defaultCallStepAttempts = 3
)

// Store is the persistence surface the executor needs, satisfied by the
// dispatch repository.
type Store interface {
	DueEnrollments(ctx context.Context, tenantID uuid.UUID, limit int) ([]repository.Enrollment, error)
	WorkflowStepByID(ctx context.Context, stepID uuid.UUID) (*repository.WorkflowStep, error)
	NextWorkflowStep(ctx context.Context, workflowID uuid.UUID, afterPosition int) (*repository.WorkflowStep, error)
	AdvanceEnrollment(ctx context.Context, enrollmentID, stepID uuid.UUID, nextActionAt time.Time) error
	CompleteEnrollment(ctx context.Context, enrollmentID uuid.UUID) error
	ActiveCampaignForLead(ctx context.Context, tenantID, leadID uuid.UUID) (*repository.Campaign, error)
	NonTerminalEntry(ctx context.Context, tenantID, campaignID, leadID uuid.UUID) (*repository.QueueEntry, error)
	InsertQueueEntry(ctx context.Context, entry *repository.QueueEntry) error
}

// SMSSender sends one text message.
type SMSSender interface {
	SendSMS(ctx context.Context, tenantID, toNumber, body string) error
}

// Executor runs due workflow steps.
type Executor struct {
	store Store
	sms   SMSSender
	log   *logger.Logger
}

// NewExecutor creates a workflow executor. The sender may be nil; SMS steps
// then advance without sending, which keeps test and local setups moving.
func NewExecutor(store Store, sms SMSSender, log *logger.Logger) *Executor {
	return &Executor{store: store, sms: sms, log: log}
}

// ExecutePending runs every due enrollment for the tenant once. Returns the
// number of steps executed. Per-enrollment failures are collected and do not
// stop the rest.
func (e *Executor) ExecutePending(ctx context.Context, tenantID uuid.UUID) (int, error) {
	due, err := e.store.DueEnrollments(ctx, tenantID, executionBatchSize)
	if err != nil {
		return 0, err
	}

	var executed int
	var errs []error
	for _, enrollment := range due {
		if err := e.executeStep(ctx, tenantID, enrollment); err != nil {
			e.log.Warn("workflow step failed",
				"tenant_id", tenantID, "enrollment_id", enrollment.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		executed++
	}
	return executed, errors.Join(errs...)
}

func (e *Executor) executeStep(ctx context.Context, tenantID uuid.UUID, enrollment repository.Enrollment) error {
	if enrollment.CurrentStepID == nil {
		return e.store.CompleteEnrollment(ctx, enrollment.ID)
	}

	step, err := e.store.WorkflowStepByID(ctx, *enrollment.CurrentStepID)
	if err != nil {
		return err
	}

	switch step.StepType {
	case repository.StepTypeSMS:
		if e.sms != nil {
			// Step bodies are operator-entered; strip markup before they
			// leave the system.
			body := sanitize.Text(step.Body)
			if err := e.sms.SendSMS(ctx, tenantID.String(), enrollment.PhoneNumber, body); err != nil {
				return err
			}
		}

	case repository.StepTypeCall:
		if err := e.queueCallStep(ctx, tenantID, enrollment); err != nil {
			return err
		}

	default:
		e.log.Warn("skipping unknown step type",
			"enrollment_id", enrollment.ID, "step_type", step.StepType)
	}

	return e.advance(ctx, enrollment, step)
}

// queueCallStep puts the lead straight into the dialing queue. The step must
// not go through a callback request: the callback resolver treats a lead with
// a live enrollment as already covered and would drop the call.
func (e *Executor) queueCallStep(ctx context.Context, tenantID uuid.UUID, enrollment repository.Enrollment) error {
	campaign, err := e.store.ActiveCampaignForLead(ctx, tenantID, enrollment.LeadID)
	if err != nil {
		return err
	}
	if campaign == nil {
		e.log.Warn("call step skipped, lead has no active campaign",
			"enrollment_id", enrollment.ID, "lead_id", enrollment.LeadID)
		return nil
	}

	existing, err := e.store.NonTerminalEntry(ctx, tenantID, campaign.ID, enrollment.LeadID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	maxAttempts := campaign.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultCallStepAttempts
	}
	entry := &repository.QueueEntry{
		TenantID:    tenantID,
		CampaignID:  campaign.ID,
		LeadID:      enrollment.LeadID,
		PhoneNumber: enrollment.PhoneNumber,
		Status:      repository.EntryStatusPending,
		Priority:    callStepPriority,
		MaxAttempts: maxAttempts,
		ScheduledAt: time.Now(),
	}
	return e.store.InsertQueueEntry(ctx, entry)
}

func (e *Executor) advance(ctx context.Context, enrollment repository.Enrollment, current *repository.WorkflowStep) error {
	next, err := e.store.NextWorkflowStep(ctx, current.WorkflowID, current.Position)
	if err != nil {
		return err
	}
	if next == nil {
		return e.store.CompleteEnrollment(ctx, enrollment.ID)
	}

	wait := time.Duration(next.WaitMinutes) * time.Minute
	return e.store.AdvanceEnrollment(ctx, enrollment.ID, next.ID, time.Now().Add(wait))
}
