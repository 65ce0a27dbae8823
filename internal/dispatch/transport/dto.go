// Package transport defines the request/response shapes of the dispatch engine.
package transport

import (
	"time"

	"dialer_backend/platform/apperr"
)

// Command is the closed set of operations the engine entry point supports.
// The free-form action string from the API boundary is parsed exactly once;
// handlers switch over Command exhaustively.
type Command string

const (
	// CommandRunCycle runs one full dispatch cycle for the tenant.
	CommandRunCycle Command = "run_cycle"
	// CommandHealthCheck verifies store connectivity, nothing else.
	CommandHealthCheck Command = "health_check"
	// CommandCleanupStuckCalls runs the stale-state sweeper in isolation.
	CommandCleanupStuckCalls Command = "cleanup_stuck_calls"
	// CommandForceDispatch upserts a priority-100 queue entry for one lead,
	// bypassing intake filtering, then dials immediately.
	CommandForceDispatch Command = "force_dispatch"
)

// ParseCommand maps the wire action string onto a Command.
// An absent action means a full cycle.
func ParseCommand(action string) (Command, error) {
	switch action {
	case "":
		return CommandRunCycle, nil
	case string(CommandHealthCheck):
		return CommandHealthCheck, nil
	case string(CommandCleanupStuckCalls):
		return CommandCleanupStuckCalls, nil
	case string(CommandForceDispatch):
		return CommandForceDispatch, nil
	default:
		return "", apperr.BadRequest("unknown action: " + action)
	}
}

// CycleRequest is the body accepted by the engine endpoints.
type CycleRequest struct {
	Action     string `json:"action"`
	LeadID     string `json:"leadId"`
	CampaignID string `json:"campaignId"`
}

// ForceDispatchRequest is the body of the operator-triggered dispatch path.
type ForceDispatchRequest struct {
	LeadID     string `json:"leadId" validate:"required,uuid"`
	CampaignID string `json:"campaignId" validate:"required,uuid"`
}

// SettingsSource records where the resolved pacing settings came from.
type SettingsSource string

const (
	SettingsFromTenant   SettingsSource = "tenant"
	SettingsFromDefaults SettingsSource = "defaults"
)

// UsedSettings echoes the pacing configuration the cycle ran with.
type UsedSettings struct {
	MaxConcurrentCalls    int            `json:"maxConcurrentCalls"`
	CallsPerMinute        int            `json:"callsPerMinute"`
	ProviderMaxConcurrent int            `json:"providerMaxConcurrent"`
	AdaptivePacingEnabled bool           `json:"adaptivePacingEnabled"`
	Source                SettingsSource `json:"source"`
}

// CallbackCounts breaks down what the callback resolver did this cycle.
type CallbackCounts struct {
	Queued   int `json:"queued"`
	Enrolled int `json:"enrolled"`
	Resumed  int `json:"resumed"`
}

// EntryResult reports the outcome of one queue entry in the batch.
type EntryResult struct {
	LeadID  string `json:"leadId"`
	Success bool   `json:"success"`
	CallID  string `json:"callId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Diagnostics explains a zero-dispatch cycle to the external scheduler.
type Diagnostics struct {
	TotalPending    int        `json:"totalPending"`
	NoneEligibleNow bool       `json:"noneEligibleNow"`
	NextScheduledAt *time.Time `json:"nextScheduledAt,omitempty"`
	Reason          string     `json:"reason"`
}

// SweepReport counts the stale state reclaimed by the sweeper.
type SweepReport struct {
	ExpiredStartingCalls   int `json:"expiredStartingCalls"`
	ExpiredInProgressCalls int `json:"expiredInProgressCalls"`
	FailedUnstartedEntries int `json:"failedUnstartedEntries"`
	ResetCallingEntries    int `json:"resetCallingEntries"`
}

// Total returns the number of rows the sweep touched.
func (r SweepReport) Total() int {
	return r.ExpiredStartingCalls + r.ExpiredInProgressCalls +
		r.FailedUnstartedEntries + r.ResetCallingEntries
}

// CycleReport is the full-cycle response consumed by the external scheduler
// and the dashboard.
type CycleReport struct {
	Dispatched            int            `json:"dispatched"`
	WorkflowEnrolled      int            `json:"workflowEnrolled"`
	DialingQueued         int            `json:"dialingQueued"`
	Remaining             int            `json:"remaining"`
	BatchSize             int            `json:"batchSize"`
	ActiveCallCount       int            `json:"activeCallCount"`
	MaxDialsInFlight      int            `json:"maxDialsInFlight"`
	UtilizationPercent    float64        `json:"utilizationPercent"`
	NextBatchDelaySeconds int            `json:"nextBatchDelaySeconds"`
	AtCapacity            bool           `json:"atCapacity"`
	UsedSettings          UsedSettings   `json:"usedSettings"`
	Callbacks             CallbackCounts `json:"callbacks"`
	Results               []EntryResult  `json:"results"`
	Diagnostics           *Diagnostics   `json:"diagnostics,omitempty"`
}
