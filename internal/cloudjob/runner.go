package cloudjob

import (
	"cloudjobs/internal/apperrors"
	"cloudjobs/internal/cloudapi"
	"cloudjobs/internal/database"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Event describes a root workflow for telemetry.
type Event struct {
	WorkflowID string
	Name       Name
	Status     Status
	Step       Step
	ErrorKind  string
	ErrorJob   Name
	Message    string
	Duration   time.Duration
}

// Analytics receives fire-and-forget workflow notifications. Implementations
// must not block; their failures never reach the workflow.
type Analytics interface {
	WorkflowStarted(ctx context.Context, e Event)
	WorkflowSucceeded(ctx context.Context, e Event)
	WorkflowFailed(ctx context.Context, e Event)
}

// Deps are the collaborators shared by every workflow the runner starts.
type Deps struct {
	API        cloudapi.API
	Repository database.Repository
	Verifier   database.Verifier
	Budgets    Budgets
	Analytics  Analytics
	Logger     *slog.Logger
}

// Handle controls a running root workflow.
type Handle struct {
	id     string
	name   Name
	signal *Signal
	job    Runnable

	done     chan struct{}
	result   any
	err      error
	started  time.Time
	finished time.Time

	mu          sync.Mutex
	last        State
	subscribers []func(State)
}

// Start builds the named root workflow and runs it in the background. The
// workflow outlives ctx's cancellation; stop it with Handle.Cancel.
func Start(ctx context.Context, id string, name Name, data Data, creds cloudapi.Credentials, deps Deps) (*Handle, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handle{
		id:      id,
		name:    name,
		signal:  NewSignal(context.Background()),
		done:    make(chan struct{}),
		started: time.Now(),
		last:    State{ID: id, Name: name, Status: StatusCreated},
	}

	root, err := Build(name, Options{
		ID:            id,
		Signal:        h.signal,
		Credentials:   creds,
		API:           deps.API,
		Repository:    deps.Repository,
		Verifier:      deps.Verifier,
		Budgets:       deps.Budgets,
		Logger:        logger,
		OnStateChange: h.publish,
	}, data)
	if err != nil {
		return nil, err
	}
	h.job = root

	runCtx := context.WithoutCancel(ctx)
	if deps.Analytics != nil {
		deps.Analytics.WorkflowStarted(runCtx, Event{WorkflowID: id, Name: name, Status: StatusRunning})
	}

	go h.run(runCtx, deps.Analytics, logger)
	return h, nil
}

func (h *Handle) run(ctx context.Context, analytics Analytics, logger *slog.Logger) {
	defer close(h.done)

	result, err := h.job.Execute(ctx)
	state := h.job.State()

	h.mu.Lock()
	h.result, h.err = result, err
	h.finished = time.Now()
	h.mu.Unlock()

	event := Event{
		WorkflowID: h.id,
		Name:       h.name,
		Status:     state.Status,
		Step:       state.Step,
		Duration:   h.finished.Sub(h.started),
	}
	if state.Error != nil {
		event.ErrorKind = state.Error.Kind
		event.ErrorJob = state.Error.Job
		event.Message = state.Error.Message
	}

	if analytics != nil {
		if err != nil {
			analytics.WorkflowFailed(ctx, event)
		} else {
			analytics.WorkflowSucceeded(ctx, event)
		}
	}
	logger.Info("Workflow settled", "jobId", h.id, "job", h.name, "status", state.Status, "duration", event.Duration)
}

// publish records the root's latest state and fans it out to subscribers.
func (h *Handle) publish(s State) {
	h.mu.Lock()
	h.last = s
	subs := append([]func(State){}, h.subscribers...)
	h.mu.Unlock()

	for _, cb := range subs {
		cb(s)
	}
}

// ID returns the workflow id.
func (h *Handle) ID() string { return h.id }

// Name returns the root workflow name.
func (h *Handle) Name() Name { return h.name }

// State returns the latest state of the root job, children included.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// OnStateChange subscribes cb to state changes. cb is called immediately with
// the current state, so a late subscriber still sees a settled workflow.
func (h *Handle) OnStateChange(cb func(State)) {
	h.mu.Lock()
	h.subscribers = append(h.subscribers, cb)
	current := h.last
	h.mu.Unlock()
	cb(current)
}

// Cancel trips the workflow's signal. Idempotent; a settled workflow is unaffected.
func (h *Handle) Cancel(reason string) {
	h.signal.Cancel(reason)
}

// Done is closed once the workflow settled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the workflow settles or ctx ends, returning the workflow's
// result or its classified error.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Settled reports whether the workflow finished and when.
func (h *Handle) Settled() (time.Time, bool) {
	select {
	case <-h.done:
	default:
		return time.Time{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished, true
}

// StartedAt returns when the workflow was started.
func (h *Handle) StartedAt() time.Time {
	return h.started
}

// Err returns the settled error, or nil while running or after success.
func (h *Handle) Err() error {
	select {
	case <-h.done:
	default:
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// IsCancelled reports whether err came from a cancelled workflow.
func IsCancelled(err error) bool {
	return errors.Is(err, apperrors.ErrCancelled)
}
