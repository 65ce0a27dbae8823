package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"dialer_backend/internal/dispatch/transport"

	"github.com/google/uuid"
)

func TestNextBatchDelay(t *testing.T) {
	cases := []struct {
		batchSize      int
		callsPerMinute int
		want           int
	}{
		{4, 40, 6},
		{15, 40, 23},
		{1, 40, 2},
		{1, 120, 1},
		{0, 40, batchIntervalSeconds},
		{4, 0, batchIntervalSeconds},
	}
	for _, tc := range cases {
		if got := nextBatchDelay(tc.batchSize, tc.callsPerMinute); got != tc.want {
			t.Fatalf("nextBatchDelay(%d, %d) = %d, want %d", tc.batchSize, tc.callsPerMinute, got, tc.want)
		}
	}
}

func TestBuildReport_Utilization(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil, nil)
	plan := batchPlan{
		BatchSize:        4,
		ActiveCalls:      20,
		MaxDialsInFlight: 100,
		Settings:         transport.UsedSettings{CallsPerMinute: 40},
	}

	report, err := svc.buildReport(context.Background(), uuid.New(), plan, transport.CallbackCounts{}, 0, 0, 5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.UtilizationPercent != 25 {
		t.Fatalf("expected 25%% utilization, got %v", report.UtilizationPercent)
	}
	if report.Diagnostics != nil {
		t.Fatalf("dispatching cycle must carry no diagnostics")
	}
}

func TestBuildReport_AtCapacityDiagnostics(t *testing.T) {
	store := &fakeStore{
		CountPendingEntriesFn: func(context.Context, uuid.UUID) (int, error) { return 7, nil },
	}
	svc := newTestService(store, nil, nil)
	plan := batchPlan{
		ActiveCalls:      100,
		MaxDialsInFlight: 100,
		AtCapacity:       true,
		Settings:         transport.UsedSettings{CallsPerMinute: 40},
	}

	report, err := svc.buildReport(context.Background(), uuid.New(), plan, transport.CallbackCounts{}, 0, 0, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Diagnostics == nil {
		t.Fatalf("expected diagnostics on zero-dispatch cycle")
	}
	if !strings.Contains(report.Diagnostics.Reason, "at capacity") {
		t.Fatalf("unexpected reason %q", report.Diagnostics.Reason)
	}
	if report.Diagnostics.TotalPending != 7 {
		t.Fatalf("expected 7 pending, got %d", report.Diagnostics.TotalPending)
	}
}

func TestBuildReport_EmptyQueueDiagnostics(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil, nil)
	plan := batchPlan{BatchSize: 4, MaxDialsInFlight: 100, Settings: transport.UsedSettings{CallsPerMinute: 40}}

	report, err := svc.buildReport(context.Background(), uuid.New(), plan, transport.CallbackCounts{}, 0, 0, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Diagnostics == nil || report.Diagnostics.Reason != "no pending queue entries" {
		t.Fatalf("unexpected diagnostics: %+v", report.Diagnostics)
	}
}

func TestBuildReport_ScheduledLaterDiagnostics(t *testing.T) {
	next := time.Now().Add(30 * time.Minute)
	store := &fakeStore{
		CountPendingEntriesFn: func(context.Context, uuid.UUID) (int, error) { return 3, nil },
		NextScheduledAtFn:     func(context.Context, uuid.UUID) (*time.Time, error) { return &next, nil },
	}
	svc := newTestService(store, nil, nil)
	plan := batchPlan{BatchSize: 4, MaxDialsInFlight: 100, Settings: transport.UsedSettings{CallsPerMinute: 40}}

	report, err := svc.buildReport(context.Background(), uuid.New(), plan, transport.CallbackCounts{}, 0, 0, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	diag := report.Diagnostics
	if diag == nil || !diag.NoneEligibleNow {
		t.Fatalf("expected none-eligible diagnostics, got %+v", diag)
	}
	if diag.NextScheduledAt == nil || !diag.NextScheduledAt.Equal(next) {
		t.Fatalf("expected next schedule carried, got %+v", diag.NextScheduledAt)
	}
	if !strings.Contains(diag.Reason, "scheduled for later") {
		t.Fatalf("unexpected reason %q", diag.Reason)
	}
}

func TestBuildReport_CombinesCallbackCounts(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil, nil)
	plan := batchPlan{BatchSize: 4, MaxDialsInFlight: 100, Settings: transport.UsedSettings{CallsPerMinute: 40}}
	callbacks := transport.CallbackCounts{Queued: 2, Enrolled: 1, Resumed: 1}

	report, err := svc.buildReport(context.Background(), uuid.New(), plan, callbacks, 3, 4, 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.WorkflowEnrolled != 4 {
		t.Fatalf("expected intake + callback enrollments = 4, got %d", report.WorkflowEnrolled)
	}
	if report.DialingQueued != 6 {
		t.Fatalf("expected intake + callback queueing = 6, got %d", report.DialingQueued)
	}
	if report.Callbacks.Resumed != 1 {
		t.Fatalf("expected resumed count carried, got %+v", report.Callbacks)
	}
}

func TestSweep_CountsEverything(t *testing.T) {
	store := &fakeStore{
		ExpireStartingCallsFn: func(context.Context, uuid.UUID, time.Time) (int, error) { return 2, nil },
		ExpireInProgressCallsFn: func(context.Context, uuid.UUID, time.Time) (int, error) {
			return 1, nil
		},
		FailUnstartedEntriesFn: func(context.Context, uuid.UUID, time.Time) (int, error) { return 3, nil },
		ResetStuckCallingEntriesFn: func(context.Context, uuid.UUID, time.Time) (int, error) {
			return 4, nil
		},
	}
	svc := newTestService(store, nil, nil)

	report, err := svc.sweep(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Total() != 10 {
		t.Fatalf("expected total 10, got %d", report.Total())
	}
	if report.ExpiredStartingCalls != 2 || report.ExpiredInProgressCalls != 1 ||
		report.FailedUnstartedEntries != 3 || report.ResetCallingEntries != 4 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestSweep_WindowCutoffs(t *testing.T) {
	now := time.Now()
	store := &fakeStore{
		ExpireStartingCallsFn: func(_ context.Context, _ uuid.UUID, cutoff time.Time) (int, error) {
			if d := now.Sub(cutoff); d < time.Minute || d > 3*time.Minute {
				t.Fatalf("expected ~2m starting-call window, got %s", d)
			}
			return 0, nil
		},
		ExpireInProgressCallsFn: func(_ context.Context, _ uuid.UUID, cutoff time.Time) (int, error) {
			if d := now.Sub(cutoff); d < 4*time.Minute || d > 6*time.Minute {
				t.Fatalf("expected ~5m conversation window, got %s", d)
			}
			return 0, nil
		},
	}
	svc := newTestService(store, nil, nil)

	if _, err := svc.sweep(context.Background(), uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
