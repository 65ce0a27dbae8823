package repository

import (
	"time"

	"github.com/google/uuid"
)

// EntryStatus is the lifecycle state of a dialing queue entry.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusCalling   EntryStatus = "calling"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusFailed    EntryStatus = "failed"
	EntryStatusCancelled EntryStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s EntryStatus) Terminal() bool {
	switch s {
	case EntryStatusCompleted, EntryStatusFailed, EntryStatusCancelled:
		return true
	}
	return false
}

// CallStatus is the provider-reported state of a call attempt.
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusFailed     CallStatus = "failed"
)

// ActiveCallStatuses are the states that count against concurrency capacity.
var ActiveCallStatuses = []string{
	string(CallStatusQueued),
	string(CallStatusInitiated),
	string(CallStatusRinging),
	string(CallStatusInProgress),
}

// EnrollmentStatus is the lifecycle state of a workflow enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentPaused    EnrollmentStatus = "paused"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentRemoved   EnrollmentStatus = "removed"
)

// RemovalReasonCallback marks enrollments paused because the lead asked to be
// called back; the callback resolver resumes exactly these.
const RemovalReasonCallback = "callback scheduled"

// StepTypeSMS and StepTypeCall are the supported workflow step kinds.
const (
	StepTypeSMS  = "sms"
	StepTypeCall = "call"
)

// QueueEntry is one row of the dialing queue.
type QueueEntry struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	CampaignID     uuid.UUID
	LeadID         uuid.UUID
	PhoneNumber    string
	Status         EntryStatus
	Priority       int
	Attempts       int
	MaxAttempts    int
	ScheduledAt    time.Time
	ProviderCallID *string
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Lead is the slice of the leads table the engine works with.
type Lead struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	CampaignID     *uuid.UUID
	PhoneNumber    string
	FirstName      string
	LastName       string
	Status         string
	DoNotCall      bool
	NextCallbackAt *time.Time
	CreatedAt      time.Time
}

// Campaign is the slice of the campaigns table the engine works with.
type Campaign struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	Name              string
	Status            string
	AgentID           *string
	WorkflowID        *uuid.UUID
	MaxAttempts       int
	RetryDelayMinutes int
}

// CallLog is one call attempt record.
type CallLog struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	CampaignID     *uuid.UUID
	LeadID         uuid.UUID
	QueueEntryID   *uuid.UUID
	ProviderCallID *string
	CallerNumber   *string
	LeadNumber     string
	Status         CallStatus
	Outcome        *string
	RecordingURL   *string
	RecordingKey   *string
	StartedAt      *time.Time
	EndedAt        *time.Time
	CreatedAt      time.Time
}

// PhoneNumber is an outbound caller-ID candidate.
type PhoneNumber struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	Number           string
	ProviderID       *string
	Status           string
	IsSpamFlagged    bool
	RotationEnabled  bool
	QuarantinedUntil *time.Time
	DailyCalls       int
	DailyCallLimit   int
	CreatedAt        time.Time
}

// Enrollment is a lead's progress through a workflow.
type Enrollment struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	WorkflowID    uuid.UUID
	LeadID        uuid.UUID
	PhoneNumber   string
	Status        EnrollmentStatus
	CurrentStepID *uuid.UUID
	NextActionAt  *time.Time
	RemovalReason *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// WorkflowStep is one step of a follow-up workflow.
type WorkflowStep struct {
	ID          uuid.UUID
	WorkflowID  uuid.UUID
	Position    int
	StepType    string
	Body        string
	WaitMinutes int
}

// PacingSettings is the tenant's dial-pacing configuration.
type PacingSettings struct {
	MaxConcurrentCalls    int
	CallsPerMinute        int
	ProviderMaxConcurrent int
	AdaptivePacingEnabled bool
}
