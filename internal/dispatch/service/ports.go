package service

import (
	"context"
	"time"

	"dialer_backend/internal/dispatch/repository"

	"github.com/google/uuid"
)

// Store is the persistence port of the dispatch engine, satisfied by
// *repository.Repository in production and by a fake in tests.
type Store interface {
	Ping(ctx context.Context) error

	// Dialing queue.
	InsertQueueEntry(ctx context.Context, entry *repository.QueueEntry) error
	NonTerminalEntry(ctx context.Context, tenantID, campaignID, leadID uuid.UUID) (*repository.QueueEntry, error)
	LatestEntry(ctx context.Context, tenantID, campaignID, leadID uuid.UUID) (*repository.QueueEntry, error)
	DuePendingEntries(ctx context.Context, tenantID uuid.UUID, limit int) ([]repository.QueueEntry, error)
	ClaimEntryForDialing(ctx context.Context, entryID uuid.UUID) (int, bool, error)
	RequeueEntry(ctx context.Context, entryID uuid.UUID, scheduledAt time.Time, lastError string) error
	RequeueEntryRateLimited(ctx context.Context, entryID uuid.UUID, scheduledAt time.Time, lastError string) error
	MarkEntryCompleted(ctx context.Context, entryID uuid.UUID) error
	MarkEntryFailed(ctx context.Context, entryID uuid.UUID, reason string) error
	SetEntryProviderCall(ctx context.Context, entryID uuid.UUID, providerCallID string) error
	PromoteEntry(ctx context.Context, entryID uuid.UUID, priority int) error
	CountPendingEntries(ctx context.Context, tenantID uuid.UUID) (int, error)
	NextScheduledAt(ctx context.Context, tenantID uuid.UUID) (*time.Time, error)
	FailUnstartedEntries(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error)
	ResetStuckCallingEntries(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error)

	// Call logs.
	CountActiveCalls(ctx context.Context, tenantID uuid.UUID, since time.Time) (int, error)
	InsertCallAttempt(ctx context.Context, log *repository.CallLog) error
	HasRecentAttempt(ctx context.Context, tenantID, campaignID, leadID uuid.UUID, since time.Time) (bool, error)
	HasContactedOutcome(ctx context.Context, tenantID, campaignID, leadID uuid.UUID) (bool, error)
	HasCallInFlight(ctx context.Context, tenantID, leadID uuid.UUID, since time.Time) (bool, error)
	ExpireStartingCalls(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error)
	ExpireInProgressCalls(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error)
	ExpireLeadActiveCalls(ctx context.Context, tenantID, leadID uuid.UUID) (int, error)

	// Leads.
	LeadByID(ctx context.Context, tenantID, leadID uuid.UUID) (*repository.Lead, error)
	DueCallbacks(ctx context.Context, tenantID uuid.UUID, limit int) ([]repository.Lead, error)
	ClearCallback(ctx context.Context, tenantID, leadID uuid.UUID) error
	EligibleLeads(ctx context.Context, tenantID, campaignID uuid.UUID, limit int) ([]repository.Lead, error)

	// Campaigns.
	CampaignByID(ctx context.Context, tenantID, campaignID uuid.UUID) (*repository.Campaign, error)
	ActiveCampaigns(ctx context.Context, tenantID uuid.UUID) ([]repository.Campaign, error)
	ActiveCampaignForLead(ctx context.Context, tenantID, leadID uuid.UUID) (*repository.Campaign, error)

	// Workflows.
	PausedForCallback(ctx context.Context, tenantID, leadID uuid.UUID) (*repository.Enrollment, error)
	ResumeEnrollment(ctx context.Context, enrollmentID uuid.UUID) error
	LiveEnrollment(ctx context.Context, tenantID, workflowID, leadID uuid.UUID) (*repository.Enrollment, error)
	HasRecentEnrollment(ctx context.Context, tenantID, workflowID, leadID uuid.UUID, phoneLast10 string, since time.Time) (bool, error)
	InsertEnrollment(ctx context.Context, e *repository.Enrollment) error
	FirstWorkflowStep(ctx context.Context, workflowID uuid.UUID) (*repository.WorkflowStep, error)

	// Phone numbers and settings.
	EligibleNumbers(ctx context.Context, tenantID uuid.UUID) ([]repository.PhoneNumber, error)
	IncrementDailyCalls(ctx context.Context, numberID uuid.UUID) error
	TenantPacingSettings(ctx context.Context, tenantID uuid.UUID) (*repository.PacingSettings, error)
}

// CreateCallParams carries everything the calling platform needs for one
// outbound dial.
type CreateCallParams struct {
	TenantID   uuid.UUID
	CampaignID uuid.UUID
	LeadID     uuid.UUID
	AgentID    string
	ToNumber   string
	FromNumber string
	LeadName   string
}

// CallCreator is the outbound side of the calling platform client.
type CallCreator interface {
	CreateCall(ctx context.Context, params CreateCallParams) (string, error)
}

// WorkflowTrigger signals the external workflow executor that freshly
// enrolled leads have a due first step.
type WorkflowTrigger interface {
	TriggerExecution(ctx context.Context, tenantID uuid.UUID) error
}
