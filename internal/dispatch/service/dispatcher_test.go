package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"dialer_backend/internal/dispatch/repository"
	"dialer_backend/platform/apperr"

	"github.com/google/uuid"
)

func pendingEntry(tenantID uuid.UUID, phone string) repository.QueueEntry {
	return repository.QueueEntry{
		ID:          uuid.New(),
		TenantID:    tenantID,
		CampaignID:  uuid.New(),
		LeadID:      uuid.New(),
		PhoneNumber: phone,
		Status:      repository.EntryStatusPending,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}
}

func planOf(size int) batchPlan {
	return batchPlan{BatchSize: size, MaxDialsInFlight: 100}
}

func TestDispatchBatch_Success(t *testing.T) {
	tenantID := uuid.New()
	entry := pendingEntry(tenantID, "+14155550100")

	var completed, incremented bool
	var inserted *repository.CallLog
	store := &fakeStore{
		DuePendingEntriesFn: func(context.Context, uuid.UUID, int) ([]repository.QueueEntry, error) {
			return []repository.QueueEntry{entry}, nil
		},
		EligibleNumbersFn: func(context.Context, uuid.UUID) ([]repository.PhoneNumber, error) {
			return []repository.PhoneNumber{testNumber("+14155550900", 0)}, nil
		},
		MarkEntryCompletedFn: func(_ context.Context, id uuid.UUID) error {
			if id != entry.ID {
				t.Fatalf("completed wrong entry")
			}
			completed = true
			return nil
		},
		InsertCallAttemptFn: func(_ context.Context, log *repository.CallLog) error {
			inserted = log
			return nil
		},
		IncrementDailyCallsFn: func(context.Context, uuid.UUID) error {
			incremented = true
			return nil
		},
	}
	bus := &fakeBus{}
	svc := newTestService(store, nil, bus)

	dispatched, results, err := svc.dispatchBatch(context.Background(), tenantID, planOf(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dispatched != 1 {
		t.Fatalf("expected 1 dispatched, got %d", dispatched)
	}
	if len(results) != 1 || !results[0].Success || results[0].CallID == "" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if !completed {
		t.Fatalf("expected entry completed after provider accept")
	}
	if !incremented {
		t.Fatalf("expected daily call counter incremented")
	}
	if inserted == nil || inserted.Status != repository.CallStatusQueued {
		t.Fatalf("expected queued call attempt, got %+v", inserted)
	}
	names := bus.names()
	if len(names) != 1 || names[0] != "dispatch.call.dispatched" {
		t.Fatalf("expected call dispatched event, got %v", names)
	}
}

func TestDispatchBatch_NoNumbersTouchesNothing(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeStore{
		DuePendingEntriesFn: func(context.Context, uuid.UUID, int) ([]repository.QueueEntry, error) {
			return []repository.QueueEntry{pendingEntry(tenantID, "+14155550100")}, nil
		},
		MarkEntryFailedFn: func(context.Context, uuid.UUID, string) error {
			t.Fatalf("no entry may be failed when numbers are exhausted")
			return nil
		},
		ClaimEntryForDialingFn: func(context.Context, uuid.UUID) (int, bool, error) {
			t.Fatalf("no entry may be claimed when numbers are exhausted")
			return 0, false, nil
		},
	}
	bus := &fakeBus{}
	svc := newTestService(store, nil, bus)

	dispatched, results, err := svc.dispatchBatch(context.Background(), tenantID, planOf(5))
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if dispatched != 0 || results != nil {
		t.Fatalf("expected nothing dispatched, got %d / %+v", dispatched, results)
	}
	names := bus.names()
	if len(names) != 1 || names[0] != "dispatch.numbers.exhausted" {
		t.Fatalf("expected exhaustion event, got %v", names)
	}
}

func TestDispatchBatch_RateLimitAbortsRemainder(t *testing.T) {
	tenantID := uuid.New()
	first := pendingEntry(tenantID, "+14155550101")
	second := pendingEntry(tenantID, "+14155550102")
	third := pendingEntry(tenantID, "+14155550103")

	var requeued []uuid.UUID
	var requeuedAt []time.Time
	store := &fakeStore{
		DuePendingEntriesFn: func(context.Context, uuid.UUID, int) ([]repository.QueueEntry, error) {
			return []repository.QueueEntry{first, second, third}, nil
		},
		EligibleNumbersFn: func(context.Context, uuid.UUID) ([]repository.PhoneNumber, error) {
			return []repository.PhoneNumber{testNumber("+14155550900", 0)}, nil
		},
		RequeueEntryRateLimitedFn: func(_ context.Context, id uuid.UUID, at time.Time, _ string) error {
			requeued = append(requeued, id)
			requeuedAt = append(requeuedAt, at)
			return nil
		},
		RequeueEntryFn: func(context.Context, uuid.UUID, time.Time, string) error {
			t.Fatalf("rate-limited entry must not be charged an attempt")
			return nil
		},
	}
	caller := &fakeCaller{results: map[string]error{
		second.PhoneNumber: apperr.RateLimited("concurrency limit reached"),
	}}
	svc := newTestService(store, caller, nil)

	dispatched, results, err := svc.dispatchBatch(context.Background(), tenantID, planOf(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dispatched != 1 {
		t.Fatalf("expected only the first entry dispatched, got %d", dispatched)
	}
	if len(results) != 2 {
		t.Fatalf("expected batch aborted after the rate limit, got %d results", len(results))
	}
	if len(caller.calls) != 2 {
		t.Fatalf("expected third entry never dialed, got %d dials", len(caller.calls))
	}
	if len(requeued) != 1 || requeued[0] != second.ID {
		t.Fatalf("expected rate-limited entry requeued, got %v", requeued)
	}
	wait := time.Until(requeuedAt[0])
	if wait < 5*time.Second || wait > 15*time.Second {
		t.Fatalf("expected ~10s requeue delay, got %s", wait)
	}
}

func TestDispatchEntry_RateLimitKeepsAttemptBudget(t *testing.T) {
	tenantID := uuid.New()
	entry := pendingEntry(tenantID, "+14155550108")
	entry.MaxAttempts = 2

	var requeued bool
	store := &fakeStore{
		DuePendingEntriesFn: func(context.Context, uuid.UUID, int) ([]repository.QueueEntry, error) {
			return []repository.QueueEntry{entry}, nil
		},
		EligibleNumbersFn: func(context.Context, uuid.UUID) ([]repository.PhoneNumber, error) {
			return []repository.PhoneNumber{testNumber("+14155550900", 0)}, nil
		},
		// The claim lands on the last allowed attempt.
		ClaimEntryForDialingFn: func(context.Context, uuid.UUID) (int, bool, error) {
			return 2, true, nil
		},
		RequeueEntryRateLimitedFn: func(_ context.Context, id uuid.UUID, _ time.Time, _ string) error {
			if id != entry.ID {
				t.Fatalf("requeued wrong entry")
			}
			requeued = true
			return nil
		},
		MarkEntryFailedFn: func(context.Context, uuid.UUID, string) error {
			t.Fatalf("throttled entry must not be failed")
			return nil
		},
	}
	caller := &fakeCaller{results: map[string]error{
		entry.PhoneNumber: apperr.RateLimited("concurrency limit reached"),
	}}
	svc := newTestService(store, caller, nil)

	if _, _, err := svc.dispatchBatch(context.Background(), tenantID, planOf(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !requeued {
		t.Fatalf("expected the throttled entry requeued with its attempt refunded")
	}
}

func TestDispatchEntry_RetryableFailureRequeues(t *testing.T) {
	tenantID := uuid.New()
	entry := pendingEntry(tenantID, "+14155550104")
	entry.MaxAttempts = 3

	var requeuedAt time.Time
	store := &fakeStore{
		DuePendingEntriesFn: func(context.Context, uuid.UUID, int) ([]repository.QueueEntry, error) {
			return []repository.QueueEntry{entry}, nil
		},
		EligibleNumbersFn: func(context.Context, uuid.UUID) ([]repository.PhoneNumber, error) {
			return []repository.PhoneNumber{testNumber("+14155550900", 0)}, nil
		},
		ClaimEntryForDialingFn: func(context.Context, uuid.UUID) (int, bool, error) {
			return 1, true, nil
		},
		RequeueEntryFn: func(_ context.Context, _ uuid.UUID, at time.Time, _ string) error {
			requeuedAt = at
			return nil
		},
		MarkEntryFailedFn: func(context.Context, uuid.UUID, string) error {
			t.Fatalf("entry with attempts left must not be failed")
			return nil
		},
	}
	caller := &fakeCaller{results: map[string]error{
		entry.PhoneNumber: errors.New("provider unreachable"),
	}}
	svc := newTestService(store, caller, nil)

	dispatched, _, err := svc.dispatchBatch(context.Background(), tenantID, planOf(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dispatched != 0 {
		t.Fatalf("expected 0 dispatched, got %d", dispatched)
	}
	// Default campaign retry delay is 5 minutes.
	wait := time.Until(requeuedAt)
	if wait < 4*time.Minute || wait > 6*time.Minute {
		t.Fatalf("expected ~5m retry delay, got %s", wait)
	}
}

func TestDispatchEntry_ExhaustedAttemptsFail(t *testing.T) {
	tenantID := uuid.New()
	entry := pendingEntry(tenantID, "+14155550105")
	entry.MaxAttempts = 2

	var failed bool
	store := &fakeStore{
		DuePendingEntriesFn: func(context.Context, uuid.UUID, int) ([]repository.QueueEntry, error) {
			return []repository.QueueEntry{entry}, nil
		},
		EligibleNumbersFn: func(context.Context, uuid.UUID) ([]repository.PhoneNumber, error) {
			return []repository.PhoneNumber{testNumber("+14155550900", 0)}, nil
		},
		ClaimEntryForDialingFn: func(context.Context, uuid.UUID) (int, bool, error) {
			return 2, true, nil
		},
		RequeueEntryFn: func(context.Context, uuid.UUID, time.Time, string) error {
			t.Fatalf("exhausted entry must not be requeued")
			return nil
		},
		MarkEntryFailedFn: func(context.Context, uuid.UUID, string) error {
			failed = true
			return nil
		},
	}
	caller := &fakeCaller{results: map[string]error{
		entry.PhoneNumber: errors.New("provider unreachable"),
	}}
	svc := newTestService(store, caller, nil)

	if _, _, err := svc.dispatchBatch(context.Background(), tenantID, planOf(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !failed {
		t.Fatalf("expected entry terminally failed on last attempt")
	}
}

func TestDispatchEntry_LostClaimSkips(t *testing.T) {
	tenantID := uuid.New()
	entry := pendingEntry(tenantID, "+14155550106")

	store := &fakeStore{
		DuePendingEntriesFn: func(context.Context, uuid.UUID, int) ([]repository.QueueEntry, error) {
			return []repository.QueueEntry{entry}, nil
		},
		EligibleNumbersFn: func(context.Context, uuid.UUID) ([]repository.PhoneNumber, error) {
			return []repository.PhoneNumber{testNumber("+14155550900", 0)}, nil
		},
		ClaimEntryForDialingFn: func(context.Context, uuid.UUID) (int, bool, error) {
			return 0, false, nil
		},
	}
	caller := &fakeCaller{}
	svc := newTestService(store, caller, nil)

	dispatched, results, err := svc.dispatchBatch(context.Background(), tenantID, planOf(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dispatched != 0 {
		t.Fatalf("expected 0 dispatched, got %d", dispatched)
	}
	if len(caller.calls) != 0 {
		t.Fatalf("lost claim must not dial")
	}
	if len(results) != 1 || results[0].Error != "entry no longer pending" {
		t.Fatalf("unexpected result: %+v", results)
	}
}

func TestDispatchEntry_MissingAgentFails(t *testing.T) {
	tenantID := uuid.New()
	entry := pendingEntry(tenantID, "+14155550107")

	var failedReason string
	store := &fakeStore{
		DuePendingEntriesFn: func(context.Context, uuid.UUID, int) ([]repository.QueueEntry, error) {
			return []repository.QueueEntry{entry}, nil
		},
		EligibleNumbersFn: func(context.Context, uuid.UUID) ([]repository.PhoneNumber, error) {
			return []repository.PhoneNumber{testNumber("+14155550900", 0)}, nil
		},
		CampaignByIDFn: func(_ context.Context, _, campaignID uuid.UUID) (*repository.Campaign, error) {
			return &repository.Campaign{ID: campaignID}, nil
		},
		MarkEntryFailedFn: func(_ context.Context, _ uuid.UUID, reason string) error {
			failedReason = reason
			return nil
		},
	}
	svc := newTestService(store, nil, nil)

	if _, _, err := svc.dispatchBatch(context.Background(), tenantID, planOf(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failedReason != "campaign has no agent configured" {
		t.Fatalf("unexpected failure reason %q", failedReason)
	}
}
