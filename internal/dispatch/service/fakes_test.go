package service

import (
	"context"
	"sync"
	"time"

	"dialer_backend/internal/dispatch/repository"
	"dialer_backend/platform/events"
	"dialer_backend/platform/logger"

	"github.com/google/uuid"
)

// fakeStore implements Store with overridable function fields. Unset fields
// return zero values, which reads as "nothing in the database".
type fakeStore struct {
	PingFn                     func(ctx context.Context) error
	InsertQueueEntryFn         func(ctx context.Context, entry *repository.QueueEntry) error
	NonTerminalEntryFn         func(ctx context.Context, tenantID, campaignID, leadID uuid.UUID) (*repository.QueueEntry, error)
	LatestEntryFn              func(ctx context.Context, tenantID, campaignID, leadID uuid.UUID) (*repository.QueueEntry, error)
	DuePendingEntriesFn        func(ctx context.Context, tenantID uuid.UUID, limit int) ([]repository.QueueEntry, error)
	ClaimEntryForDialingFn     func(ctx context.Context, entryID uuid.UUID) (int, bool, error)
	RequeueEntryFn             func(ctx context.Context, entryID uuid.UUID, scheduledAt time.Time, lastError string) error
	RequeueEntryRateLimitedFn  func(ctx context.Context, entryID uuid.UUID, scheduledAt time.Time, lastError string) error
	MarkEntryCompletedFn       func(ctx context.Context, entryID uuid.UUID) error
	MarkEntryFailedFn          func(ctx context.Context, entryID uuid.UUID, reason string) error
	SetEntryProviderCallFn     func(ctx context.Context, entryID uuid.UUID, providerCallID string) error
	PromoteEntryFn             func(ctx context.Context, entryID uuid.UUID, priority int) error
	CountPendingEntriesFn      func(ctx context.Context, tenantID uuid.UUID) (int, error)
	NextScheduledAtFn          func(ctx context.Context, tenantID uuid.UUID) (*time.Time, error)
	FailUnstartedEntriesFn     func(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error)
	ResetStuckCallingEntriesFn func(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error)
	CountActiveCallsFn         func(ctx context.Context, tenantID uuid.UUID, since time.Time) (int, error)
	InsertCallAttemptFn        func(ctx context.Context, log *repository.CallLog) error
	HasRecentAttemptFn         func(ctx context.Context, tenantID, campaignID, leadID uuid.UUID, since time.Time) (bool, error)
	HasContactedOutcomeFn      func(ctx context.Context, tenantID, campaignID, leadID uuid.UUID) (bool, error)
	HasCallInFlightFn          func(ctx context.Context, tenantID, leadID uuid.UUID, since time.Time) (bool, error)
	ExpireStartingCallsFn      func(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error)
	ExpireInProgressCallsFn    func(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error)
	ExpireLeadActiveCallsFn    func(ctx context.Context, tenantID, leadID uuid.UUID) (int, error)
	LeadByIDFn                 func(ctx context.Context, tenantID, leadID uuid.UUID) (*repository.Lead, error)
	DueCallbacksFn             func(ctx context.Context, tenantID uuid.UUID, limit int) ([]repository.Lead, error)
	ClearCallbackFn            func(ctx context.Context, tenantID, leadID uuid.UUID) error
	EligibleLeadsFn            func(ctx context.Context, tenantID, campaignID uuid.UUID, limit int) ([]repository.Lead, error)
	CampaignByIDFn             func(ctx context.Context, tenantID, campaignID uuid.UUID) (*repository.Campaign, error)
	ActiveCampaignsFn          func(ctx context.Context, tenantID uuid.UUID) ([]repository.Campaign, error)
	ActiveCampaignForLeadFn    func(ctx context.Context, tenantID, leadID uuid.UUID) (*repository.Campaign, error)
	PausedForCallbackFn        func(ctx context.Context, tenantID, leadID uuid.UUID) (*repository.Enrollment, error)
	ResumeEnrollmentFn         func(ctx context.Context, enrollmentID uuid.UUID) error
	LiveEnrollmentFn           func(ctx context.Context, tenantID, workflowID, leadID uuid.UUID) (*repository.Enrollment, error)
	HasRecentEnrollmentFn      func(ctx context.Context, tenantID, workflowID, leadID uuid.UUID, phoneLast10 string, since time.Time) (bool, error)
	InsertEnrollmentFn         func(ctx context.Context, e *repository.Enrollment) error
	FirstWorkflowStepFn        func(ctx context.Context, workflowID uuid.UUID) (*repository.WorkflowStep, error)
	EligibleNumbersFn          func(ctx context.Context, tenantID uuid.UUID) ([]repository.PhoneNumber, error)
	IncrementDailyCallsFn      func(ctx context.Context, numberID uuid.UUID) error
	TenantPacingSettingsFn     func(ctx context.Context, tenantID uuid.UUID) (*repository.PacingSettings, error)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.PingFn != nil {
		return f.PingFn(ctx)
	}
	return nil
}

func (f *fakeStore) InsertQueueEntry(ctx context.Context, entry *repository.QueueEntry) error {
	if f.InsertQueueEntryFn != nil {
		return f.InsertQueueEntryFn(ctx, entry)
	}
	return nil
}

func (f *fakeStore) NonTerminalEntry(ctx context.Context, tenantID, campaignID, leadID uuid.UUID) (*repository.QueueEntry, error) {
	if f.NonTerminalEntryFn != nil {
		return f.NonTerminalEntryFn(ctx, tenantID, campaignID, leadID)
	}
	return nil, nil
}

func (f *fakeStore) LatestEntry(ctx context.Context, tenantID, campaignID, leadID uuid.UUID) (*repository.QueueEntry, error) {
	if f.LatestEntryFn != nil {
		return f.LatestEntryFn(ctx, tenantID, campaignID, leadID)
	}
	return nil, nil
}

func (f *fakeStore) DuePendingEntries(ctx context.Context, tenantID uuid.UUID, limit int) ([]repository.QueueEntry, error) {
	if f.DuePendingEntriesFn != nil {
		return f.DuePendingEntriesFn(ctx, tenantID, limit)
	}
	return nil, nil
}

func (f *fakeStore) ClaimEntryForDialing(ctx context.Context, entryID uuid.UUID) (int, bool, error) {
	if f.ClaimEntryForDialingFn != nil {
		return f.ClaimEntryForDialingFn(ctx, entryID)
	}
	return 1, true, nil
}

func (f *fakeStore) RequeueEntry(ctx context.Context, entryID uuid.UUID, scheduledAt time.Time, lastError string) error {
	if f.RequeueEntryFn != nil {
		return f.RequeueEntryFn(ctx, entryID, scheduledAt, lastError)
	}
	return nil
}

func (f *fakeStore) RequeueEntryRateLimited(ctx context.Context, entryID uuid.UUID, scheduledAt time.Time, lastError string) error {
	if f.RequeueEntryRateLimitedFn != nil {
		return f.RequeueEntryRateLimitedFn(ctx, entryID, scheduledAt, lastError)
	}
	return nil
}

func (f *fakeStore) MarkEntryCompleted(ctx context.Context, entryID uuid.UUID) error {
	if f.MarkEntryCompletedFn != nil {
		return f.MarkEntryCompletedFn(ctx, entryID)
	}
	return nil
}

func (f *fakeStore) MarkEntryFailed(ctx context.Context, entryID uuid.UUID, reason string) error {
	if f.MarkEntryFailedFn != nil {
		return f.MarkEntryFailedFn(ctx, entryID, reason)
	}
	return nil
}

func (f *fakeStore) SetEntryProviderCall(ctx context.Context, entryID uuid.UUID, providerCallID string) error {
	if f.SetEntryProviderCallFn != nil {
		return f.SetEntryProviderCallFn(ctx, entryID, providerCallID)
	}
	return nil
}

func (f *fakeStore) PromoteEntry(ctx context.Context, entryID uuid.UUID, priority int) error {
	if f.PromoteEntryFn != nil {
		return f.PromoteEntryFn(ctx, entryID, priority)
	}
	return nil
}

func (f *fakeStore) CountPendingEntries(ctx context.Context, tenantID uuid.UUID) (int, error) {
	if f.CountPendingEntriesFn != nil {
		return f.CountPendingEntriesFn(ctx, tenantID)
	}
	return 0, nil
}

func (f *fakeStore) NextScheduledAt(ctx context.Context, tenantID uuid.UUID) (*time.Time, error) {
	if f.NextScheduledAtFn != nil {
		return f.NextScheduledAtFn(ctx, tenantID)
	}
	return nil, nil
}

func (f *fakeStore) FailUnstartedEntries(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error) {
	if f.FailUnstartedEntriesFn != nil {
		return f.FailUnstartedEntriesFn(ctx, tenantID, cutoff)
	}
	return 0, nil
}

func (f *fakeStore) ResetStuckCallingEntries(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error) {
	if f.ResetStuckCallingEntriesFn != nil {
		return f.ResetStuckCallingEntriesFn(ctx, tenantID, cutoff)
	}
	return 0, nil
}

func (f *fakeStore) CountActiveCalls(ctx context.Context, tenantID uuid.UUID, since time.Time) (int, error) {
	if f.CountActiveCallsFn != nil {
		return f.CountActiveCallsFn(ctx, tenantID, since)
	}
	return 0, nil
}

func (f *fakeStore) InsertCallAttempt(ctx context.Context, log *repository.CallLog) error {
	if f.InsertCallAttemptFn != nil {
		return f.InsertCallAttemptFn(ctx, log)
	}
	return nil
}

func (f *fakeStore) HasRecentAttempt(ctx context.Context, tenantID, campaignID, leadID uuid.UUID, since time.Time) (bool, error) {
	if f.HasRecentAttemptFn != nil {
		return f.HasRecentAttemptFn(ctx, tenantID, campaignID, leadID, since)
	}
	return false, nil
}

func (f *fakeStore) HasContactedOutcome(ctx context.Context, tenantID, campaignID, leadID uuid.UUID) (bool, error) {
	if f.HasContactedOutcomeFn != nil {
		return f.HasContactedOutcomeFn(ctx, tenantID, campaignID, leadID)
	}
	return false, nil
}

func (f *fakeStore) HasCallInFlight(ctx context.Context, tenantID, leadID uuid.UUID, since time.Time) (bool, error) {
	if f.HasCallInFlightFn != nil {
		return f.HasCallInFlightFn(ctx, tenantID, leadID, since)
	}
	return false, nil
}

func (f *fakeStore) ExpireStartingCalls(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error) {
	if f.ExpireStartingCallsFn != nil {
		return f.ExpireStartingCallsFn(ctx, tenantID, cutoff)
	}
	return 0, nil
}

func (f *fakeStore) ExpireInProgressCalls(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error) {
	if f.ExpireInProgressCallsFn != nil {
		return f.ExpireInProgressCallsFn(ctx, tenantID, cutoff)
	}
	return 0, nil
}

func (f *fakeStore) ExpireLeadActiveCalls(ctx context.Context, tenantID, leadID uuid.UUID) (int, error) {
	if f.ExpireLeadActiveCallsFn != nil {
		return f.ExpireLeadActiveCallsFn(ctx, tenantID, leadID)
	}
	return 0, nil
}

func (f *fakeStore) LeadByID(ctx context.Context, tenantID, leadID uuid.UUID) (*repository.Lead, error) {
	if f.LeadByIDFn != nil {
		return f.LeadByIDFn(ctx, tenantID, leadID)
	}
	return &repository.Lead{ID: leadID, TenantID: tenantID}, nil
}

func (f *fakeStore) DueCallbacks(ctx context.Context, tenantID uuid.UUID, limit int) ([]repository.Lead, error) {
	if f.DueCallbacksFn != nil {
		return f.DueCallbacksFn(ctx, tenantID, limit)
	}
	return nil, nil
}

func (f *fakeStore) ClearCallback(ctx context.Context, tenantID, leadID uuid.UUID) error {
	if f.ClearCallbackFn != nil {
		return f.ClearCallbackFn(ctx, tenantID, leadID)
	}
	return nil
}

func (f *fakeStore) EligibleLeads(ctx context.Context, tenantID, campaignID uuid.UUID, limit int) ([]repository.Lead, error) {
	if f.EligibleLeadsFn != nil {
		return f.EligibleLeadsFn(ctx, tenantID, campaignID, limit)
	}
	return nil, nil
}

func (f *fakeStore) CampaignByID(ctx context.Context, tenantID, campaignID uuid.UUID) (*repository.Campaign, error) {
	if f.CampaignByIDFn != nil {
		return f.CampaignByIDFn(ctx, tenantID, campaignID)
	}
	agent := "agent-1"
	return &repository.Campaign{ID: campaignID, TenantID: tenantID, AgentID: &agent}, nil
}

func (f *fakeStore) ActiveCampaigns(ctx context.Context, tenantID uuid.UUID) ([]repository.Campaign, error) {
	if f.ActiveCampaignsFn != nil {
		return f.ActiveCampaignsFn(ctx, tenantID)
	}
	return nil, nil
}

func (f *fakeStore) ActiveCampaignForLead(ctx context.Context, tenantID, leadID uuid.UUID) (*repository.Campaign, error) {
	if f.ActiveCampaignForLeadFn != nil {
		return f.ActiveCampaignForLeadFn(ctx, tenantID, leadID)
	}
	return nil, nil
}

func (f *fakeStore) PausedForCallback(ctx context.Context, tenantID, leadID uuid.UUID) (*repository.Enrollment, error) {
	if f.PausedForCallbackFn != nil {
		return f.PausedForCallbackFn(ctx, tenantID, leadID)
	}
	return nil, nil
}

func (f *fakeStore) ResumeEnrollment(ctx context.Context, enrollmentID uuid.UUID) error {
	if f.ResumeEnrollmentFn != nil {
		return f.ResumeEnrollmentFn(ctx, enrollmentID)
	}
	return nil
}

func (f *fakeStore) LiveEnrollment(ctx context.Context, tenantID, workflowID, leadID uuid.UUID) (*repository.Enrollment, error) {
	if f.LiveEnrollmentFn != nil {
		return f.LiveEnrollmentFn(ctx, tenantID, workflowID, leadID)
	}
	return nil, nil
}

func (f *fakeStore) HasRecentEnrollment(ctx context.Context, tenantID, workflowID, leadID uuid.UUID, phoneLast10 string, since time.Time) (bool, error) {
	if f.HasRecentEnrollmentFn != nil {
		return f.HasRecentEnrollmentFn(ctx, tenantID, workflowID, leadID, phoneLast10, since)
	}
	return false, nil
}

func (f *fakeStore) InsertEnrollment(ctx context.Context, e *repository.Enrollment) error {
	if f.InsertEnrollmentFn != nil {
		return f.InsertEnrollmentFn(ctx, e)
	}
	return nil
}

func (f *fakeStore) FirstWorkflowStep(ctx context.Context, workflowID uuid.UUID) (*repository.WorkflowStep, error) {
	if f.FirstWorkflowStepFn != nil {
		return f.FirstWorkflowStepFn(ctx, workflowID)
	}
	return nil, nil
}

func (f *fakeStore) EligibleNumbers(ctx context.Context, tenantID uuid.UUID) ([]repository.PhoneNumber, error) {
	if f.EligibleNumbersFn != nil {
		return f.EligibleNumbersFn(ctx, tenantID)
	}
	return nil, nil
}

func (f *fakeStore) IncrementDailyCalls(ctx context.Context, numberID uuid.UUID) error {
	if f.IncrementDailyCallsFn != nil {
		return f.IncrementDailyCallsFn(ctx, numberID)
	}
	return nil
}

func (f *fakeStore) TenantPacingSettings(ctx context.Context, tenantID uuid.UUID) (*repository.PacingSettings, error) {
	if f.TenantPacingSettingsFn != nil {
		return f.TenantPacingSettingsFn(ctx, tenantID)
	}
	return nil, nil
}

// fakeBus records published events synchronously.
type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *fakeBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
}

func (b *fakeBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *fakeBus) Subscribe(string, events.Handler) {}

func (b *fakeBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for _, e := range b.published {
		names = append(names, e.EventName())
	}
	return names
}

// fakeCaller scripts provider responses per dialed number.
type fakeCaller struct {
	mu      sync.Mutex
	results map[string]error
	calls   []CreateCallParams
	nextID  int
}

func (c *fakeCaller) CreateCall(_ context.Context, params CreateCallParams) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, params)
	if err, ok := c.results[params.ToNumber]; ok && err != nil {
		return "", err
	}
	c.nextID++
	return "call-" + params.ToNumber + "-" + uuid.NewString()[:8], nil
}

func newTestService(store *fakeStore, caller CallCreator, bus events.Bus) *Service {
	if caller == nil {
		caller = &fakeCaller{}
	}
	if bus == nil {
		bus = &fakeBus{}
	}
	return New(store, caller, nil, bus, logger.New("test"), 24*time.Hour)
}
