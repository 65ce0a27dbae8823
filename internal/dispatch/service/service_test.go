package service

import (
	"context"
	"testing"
	"time"

	"dialer_backend/internal/dispatch/repository"
	"dialer_backend/platform/apperr"

	"github.com/google/uuid"
)

func TestRetryDelayFor_Clamped(t *testing.T) {
	cases := []struct {
		minutes int
		want    time.Duration
	}{
		{0, 5 * time.Minute},
		{-3, 5 * time.Minute},
		{1, time.Minute},
		{30, 30 * time.Minute},
		{240, 60 * time.Minute},
	}
	for _, tc := range cases {
		campaign := &repository.Campaign{RetryDelayMinutes: tc.minutes}
		if got := retryDelayFor(campaign); got != tc.want {
			t.Fatalf("retryDelayFor(%d) = %s, want %s", tc.minutes, got, tc.want)
		}
	}
}

func TestMaxAttemptsFor_Default(t *testing.T) {
	if got := maxAttemptsFor(&repository.Campaign{}); got != defaultMaxAttempts {
		t.Fatalf("expected default %d, got %d", defaultMaxAttempts, got)
	}
	if got := maxAttemptsFor(&repository.Campaign{MaxAttempts: 7}); got != 7 {
		t.Fatalf("expected campaign value 7, got %d", got)
	}
}

func TestRunCycle_EmptyTenantPublishesCompletion(t *testing.T) {
	bus := &fakeBus{}
	svc := newTestService(&fakeStore{}, nil, bus)

	report, err := svc.RunCycle(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Dispatched != 0 {
		t.Fatalf("expected idle cycle, got %d dispatched", report.Dispatched)
	}
	if report.Diagnostics == nil || report.Diagnostics.Reason != "no pending queue entries" {
		t.Fatalf("unexpected diagnostics: %+v", report.Diagnostics)
	}
	names := bus.names()
	if len(names) != 1 || names[0] != "dispatch.cycle.completed" {
		t.Fatalf("expected cycle completed event, got %v", names)
	}
}

func TestRunCycle_DispatchesDueEntry(t *testing.T) {
	tenantID := uuid.New()
	entry := pendingEntry(tenantID, "+14155550100")

	store := &fakeStore{
		DuePendingEntriesFn: func(context.Context, uuid.UUID, int) ([]repository.QueueEntry, error) {
			return []repository.QueueEntry{entry}, nil
		},
		EligibleNumbersFn: func(context.Context, uuid.UUID) ([]repository.PhoneNumber, error) {
			return []repository.PhoneNumber{testNumber("+14155550900", 0)}, nil
		},
	}
	svc := newTestService(store, nil, nil)

	report, err := svc.RunCycle(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Dispatched != 1 {
		t.Fatalf("expected 1 dispatched, got %d", report.Dispatched)
	}
	if len(report.Results) != 1 || !report.Results[0].Success {
		t.Fatalf("unexpected results: %+v", report.Results)
	}
	if report.NextBatchDelaySeconds < 1 {
		t.Fatalf("expected a positive next batch delay")
	}
}

func TestForceDispatch_RejectsDoNotCall(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeStore{
		LeadByIDFn: func(_ context.Context, _, leadID uuid.UUID) (*repository.Lead, error) {
			return &repository.Lead{ID: leadID, PhoneNumber: "+14155550100", DoNotCall: true}, nil
		},
	}
	svc := newTestService(store, nil, nil)

	_, err := svc.ForceDispatch(context.Background(), tenantID, uuid.New(), uuid.New())
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request for do-not-call lead, got %v", err)
	}
}

func TestForceDispatch_RejectsMissingPhone(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeStore{
		LeadByIDFn: func(_ context.Context, _, leadID uuid.UUID) (*repository.Lead, error) {
			return &repository.Lead{ID: leadID}, nil
		},
	}
	svc := newTestService(store, nil, nil)

	_, err := svc.ForceDispatch(context.Background(), tenantID, uuid.New(), uuid.New())
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request for missing phone, got %v", err)
	}
}

func TestForceDispatch_PromotesExistingEntry(t *testing.T) {
	tenantID := uuid.New()
	existing := &repository.QueueEntry{ID: uuid.New(), Status: repository.EntryStatusCompleted}

	var promotedPriority int
	var clearedStuck bool
	store := &fakeStore{
		LeadByIDFn: func(_ context.Context, _, leadID uuid.UUID) (*repository.Lead, error) {
			return &repository.Lead{ID: leadID, PhoneNumber: "+14155550100"}, nil
		},
		ExpireLeadActiveCallsFn: func(context.Context, uuid.UUID, uuid.UUID) (int, error) {
			clearedStuck = true
			return 1, nil
		},
		LatestEntryFn: func(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) (*repository.QueueEntry, error) {
			return existing, nil
		},
		PromoteEntryFn: func(_ context.Context, id uuid.UUID, priority int) error {
			if id != existing.ID {
				t.Fatalf("promoted wrong entry")
			}
			promotedPriority = priority
			return nil
		},
		InsertQueueEntryFn: func(context.Context, *repository.QueueEntry) error {
			t.Fatalf("existing entry must be promoted, not duplicated")
			return nil
		},
	}
	svc := newTestService(store, nil, nil)

	if _, err := svc.ForceDispatch(context.Background(), tenantID, uuid.New(), uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !clearedStuck {
		t.Fatalf("expected stuck calls cleared first")
	}
	if promotedPriority != priorityForce {
		t.Fatalf("expected priority %d, got %d", priorityForce, promotedPriority)
	}
}

func TestForceDispatch_InsertsWhenNeverQueued(t *testing.T) {
	tenantID := uuid.New()

	var inserted *repository.QueueEntry
	store := &fakeStore{
		LeadByIDFn: func(_ context.Context, _, leadID uuid.UUID) (*repository.Lead, error) {
			return &repository.Lead{ID: leadID, PhoneNumber: "+14155550100"}, nil
		},
		InsertQueueEntryFn: func(_ context.Context, e *repository.QueueEntry) error {
			inserted = e
			return nil
		},
	}
	svc := newTestService(store, nil, nil)

	if _, err := svc.ForceDispatch(context.Background(), tenantID, uuid.New(), uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted == nil || inserted.Priority != priorityForce {
		t.Fatalf("expected forced entry at priority %d, got %+v", priorityForce, inserted)
	}
}

func TestHealthCheck_WrapsStoreFailure(t *testing.T) {
	store := &fakeStore{
		PingFn: func(context.Context) error { return context.DeadlineExceeded },
	}
	svc := newTestService(store, nil, nil)

	err := svc.HealthCheck(context.Background())
	if !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}
