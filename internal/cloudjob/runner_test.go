package cloudjob

import (
	"cloudjobs/internal/apperrors"
	"cloudjobs/internal/database"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type analyticsRecorder struct {
	mu        sync.Mutex
	started   []Event
	succeeded []Event
	failed    []Event
}

func (a *analyticsRecorder) WorkflowStarted(_ context.Context, e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = append(a.started, e)
}

func (a *analyticsRecorder) WorkflowSucceeded(_ context.Context, e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.succeeded = append(a.succeeded, e)
}

func (a *analyticsRecorder) WorkflowFailed(_ context.Context, e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed = append(a.failed, e)
}

func (a *analyticsRecorder) counts() (int, int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.started), len(a.succeeded), len(a.failed)
}

func testDeps(api *fakeAPI, analytics Analytics) Deps {
	return Deps{
		API:        api,
		Repository: newCountingRepository(),
		Budgets:    fastBudgets(),
		Analytics:  analytics,
	}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStart_Success(t *testing.T) {
	t.Parallel()
	analytics := &analyticsRecorder{}
	h, err := Start(context.Background(), "wf-ok", NameCreateFreeSubscriptionAndDatabase, Data{}, testCreds, testDeps(newFakeAPI(), analytics))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	result, err := h.Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	db, ok := result.(*database.Database)
	if !ok || db.ID == "" {
		t.Fatalf("Expected a database handle, got %T", result)
	}
	if h.State().Status != StatusFinished {
		t.Errorf("Expected finished, got %s", h.State().Status)
	}
	if _, settled := h.Settled(); !settled {
		t.Error("Expected handle settled")
	}

	started, succeeded, failed := analytics.counts()
	if started != 1 || succeeded != 1 || failed != 0 {
		t.Errorf("Expected 1 start and 1 success, got %d/%d/%d", started, succeeded, failed)
	}
}

func TestStart_UnknownName(t *testing.T) {
	t.Parallel()
	analytics := &analyticsRecorder{}
	_, err := Start(context.Background(), "wf", Name("mine-bitcoin"), Data{}, testCreds, testDeps(newFakeAPI(), analytics))
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("Expected ErrValidation, got %v", err)
	}
	if started, _, _ := analytics.counts(); started != 0 {
		t.Error("Expected no analytics for a workflow that never started")
	}
}

func TestStart_MissingData(t *testing.T) {
	t.Parallel()
	_, err := Start(context.Background(), "wf", NameImportFreeDatabase, Data{SubscriptionID: 1}, testCreds, testDeps(newFakeAPI(), nil))
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("Expected ErrValidation, got %v", err)
	}
}

func TestStart_CancelWhilePolling(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	api.neverActive = true
	analytics := &analyticsRecorder{}
	deps := testDeps(api, analytics)
	deps.Budgets.Database = PollConfig{Interval: 10 * time.Second, Timeout: time.Minute}

	h, err := Start(context.Background(), "wf-cancel", NameImportFreeDatabase, Data{SubscriptionID: 7, DatabaseID: 42}, testCreds, deps)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	polling := make(chan struct{})
	var once sync.Once
	h.OnStateChange(func(s State) {
		if s.Child != nil && s.Child.Progress != nil {
			once.Do(func() { close(polling) })
		}
	})
	select {
	case <-polling:
	case <-time.After(5 * time.Second):
		t.Fatal("Workflow never started polling")
	}

	h.Cancel("user closed the dialog")
	h.Cancel("again")

	_, err = h.Wait(waitCtx(t))
	if !IsCancelled(err) {
		t.Fatalf("Expected cancellation, got %v", err)
	}
	if !IsCancelled(h.Err()) {
		t.Errorf("Expected Err to report the cancellation, got %v", h.Err())
	}
	state := h.State()
	if state.Status != StatusCancelled || state.Error.Message != "cancelled: user closed the dialog" {
		t.Errorf("Unexpected final state %+v", state.Error)
	}

	_, succeeded, failed := analytics.counts()
	if succeeded != 0 || failed != 1 {
		t.Errorf("Expected one failure event, got %d/%d", succeeded, failed)
	}
	analytics.mu.Lock()
	kind := analytics.failed[0].ErrorKind
	analytics.mu.Unlock()
	if kind != apperrors.KindCancelled {
		t.Errorf("Expected cancelled kind in telemetry, got %q", kind)
	}
}

func TestHandle_LateSubscriberSeesSettledState(t *testing.T) {
	t.Parallel()
	h, err := Start(context.Background(), "wf-late", NameImportFreeDatabase, Data{SubscriptionID: 7, DatabaseID: 42}, testCreds, testDeps(newFakeAPI(), nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := h.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var got State
	h.OnStateChange(func(s State) { got = s })
	if got.Status != StatusFinished || got.ID != "wf-late" {
		t.Errorf("Expected settled state delivered immediately, got %+v", got)
	}

	h.Cancel("too late")
	if h.State().Status != StatusFinished {
		t.Error("Expected cancel after settlement to be a no-op")
	}
}

func TestHandle_WaitRespectsContext(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	api.neverActive = true
	deps := testDeps(api, nil)
	deps.Budgets.Database = PollConfig{Interval: 10 * time.Second, Timeout: time.Minute}

	h, err := Start(context.Background(), "wf-wait", NameImportFreeDatabase, Data{SubscriptionID: 7, DatabaseID: 42}, testCreds, deps)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer h.Cancel("test done")

	if h.Err() != nil {
		t.Errorf("Expected nil Err while running, got %v", h.Err())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}
