// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"dialer_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Dispatch Domain Events
// =============================================================================

// CallDispatched is published after a call attempt was successfully handed to
// the calling platform.
type CallDispatched struct {
	BaseEvent
	TenantID   uuid.UUID `json:"tenantId"`
	CampaignID uuid.UUID `json:"campaignId"`
	LeadID     uuid.UUID `json:"leadId"`
	EntryID    uuid.UUID `json:"entryId"`
	CallID     string    `json:"callId"`
	CallerID   string    `json:"callerId"`
}

func (e CallDispatched) EventName() string { return "dispatch.call.dispatched" }

// CycleCompleted is published at the end of every dispatch cycle with the
// aggregate counts the cycle produced.
type CycleCompleted struct {
	BaseEvent
	TenantID           uuid.UUID `json:"tenantId"`
	Dispatched         int       `json:"dispatched"`
	WorkflowEnrolled   int       `json:"workflowEnrolled"`
	DialingQueued      int       `json:"dialingQueued"`
	Remaining          int       `json:"remaining"`
	AtCapacity         bool      `json:"atCapacity"`
	UtilizationPercent float64   `json:"utilizationPercent"`
}

func (e CycleCompleted) EventName() string { return "dispatch.cycle.completed" }

// PhoneNumbersExhausted is published when a cycle cannot dial because no
// outbound number passes the eligibility filters. The notification module
// turns this into an operator alert.
type PhoneNumbersExhausted struct {
	BaseEvent
	TenantID     uuid.UUID `json:"tenantId"`
	PendingCalls int       `json:"pendingCalls"`
}

func (e PhoneNumbersExhausted) EventName() string { return "dispatch.numbers.exhausted" }

// =============================================================================
// Telephony Domain Events
// =============================================================================

// CallEnded is published when the calling platform reports a call reaching a
// terminal state via webhook.
type CallEnded struct {
	BaseEvent
	TenantID     uuid.UUID  `json:"tenantId"`
	CallLogID    uuid.UUID  `json:"callLogId"`
	LeadID       uuid.UUID  `json:"leadId"`
	Status       string     `json:"status"`
	Outcome      *string    `json:"outcome,omitempty"`
	RecordingURL *string    `json:"recordingUrl,omitempty"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
}

func (e CallEnded) EventName() string { return "telephony.call.ended" }
