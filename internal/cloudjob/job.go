// Package cloudjob drives multi-step provisioning workflows against the cloud
// provisioning API.
//
// A workflow is a tree of jobs. Every job goes through
// created -> running -> finished|failed|cancelled exactly once, and all jobs of
// one tree share a Signal. Cancellation is cooperative: jobs check the signal
// before side effects, around child jobs, and between poll attempts, and never
// interrupt a remote call already in flight.
package cloudjob

import (
	"cloudjobs/internal/apperrors"
	"cloudjobs/internal/cloudapi"
	"cloudjobs/internal/database"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrTerminalState is returned when a settled job's state is written again.
	ErrTerminalState = errors.New("job state is terminal")

	// ErrInvalidTransition is returned for a status change that skips or reverses a phase.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Options are the dependencies shared by every job of a tree. A child job
// receives a copy of its parent's options.
type Options struct {
	ID          string
	Signal      *Signal
	Credentials cloudapi.Credentials
	API         cloudapi.API
	Repository  database.Repository
	Verifier    database.Verifier // optional
	Budgets     Budgets
	Logger      *slog.Logger

	// OnStateChange receives a snapshot after every state change. It runs on
	// the job's goroutine and must not block.
	OnStateChange func(State)
}

func (o Options) withDefaults() Options {
	if o.Signal == nil {
		o.Signal = NewSignal(context.Background())
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Budgets == (Budgets{}) {
		o.Budgets = DefaultBudgets()
	} else {
		o.Budgets = o.Budgets.withDefaults()
	}
	return o
}

// StepError attributes a failure to the job it first happened in. Ancestors
// pass it through untouched.
type StepError struct {
	Job Name
	Err error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Job, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func attribute(name Name, err error) error {
	var se *StepError
	if errors.As(err, &se) {
		return err
	}
	return &StepError{Job: name, Err: err}
}

// errorInfo summarizes err for State and telemetry.
func errorInfo(err error) *ErrorInfo {
	info := &ErrorInfo{Kind: apperrors.Kind(err), Message: err.Error()}
	var se *StepError
	if errors.As(err, &se) {
		info.Job = se.Job
		info.Message = se.Err.Error()
	}
	return info
}

// core holds the state machine shared by all job types.
type core struct {
	name   Name
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

func newCore(name Name, opts Options) *core {
	opts = opts.withDefaults()
	return &core{
		name:   name,
		opts:   opts,
		logger: opts.Logger.With("jobId", opts.ID, "job", string(name)),
		state: State{
			ID:     opts.ID,
			Name:   name,
			Status: StatusCreated,
		},
	}
}

// Name returns the job type.
func (c *core) Name() Name {
	return c.name
}

// State returns a snapshot of the job's state.
func (c *core) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// changeState is the only way a job's state is mutated. It rejects writes
// after a terminal status and out-of-order transitions, then notifies the
// subscriber outside the lock.
func (c *core) changeState(update func(*State)) error {
	c.mu.Lock()
	current := c.state.Status
	if current.Terminal() {
		c.mu.Unlock()
		c.logger.Error("State change after terminal state", "status", current)
		return fmt.Errorf("%s: %w", c.name, ErrTerminalState)
	}

	next := c.state
	update(&next)
	if next.Status != current && !validTransition(current, next.Status) {
		c.mu.Unlock()
		c.logger.Error("Invalid status transition", "from", current, "to", next.Status)
		return fmt.Errorf("%s: %w: %s -> %s", c.name, ErrInvalidTransition, current, next.Status)
	}
	c.state = next
	notify := c.opts.OnStateChange
	c.mu.Unlock()

	if notify != nil {
		notify(next)
	}
	return nil
}

// setStep records the workflow phase.
func (c *core) setStep(step Step) {
	_ = c.changeState(func(s *State) {
		s.Step = step
		s.Progress = nil
	})
}

// checkSignal returns a Cancelled error once the tree's signal tripped or the
// caller's context ended.
func (c *core) checkSignal(ctx context.Context) error {
	if err := c.opts.Signal.Err(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &apperrors.Error{
			Sentinel: apperrors.ErrCancelled,
			Message:  "cancelled: " + err.Error(),
			Cause:    err,
		}
	}
	return nil
}

// childOptions derives the options handed to a child job. The child's state
// is mirrored into this job's State.Child without its result: intermediate
// results are remote snapshots that may carry credentials.
func (c *core) childOptions() Options {
	o := c.opts
	o.Logger = c.opts.Logger.With("parentJob", string(c.name))
	o.OnStateChange = func(s State) {
		_ = c.changeState(func(st *State) {
			child := s
			child.Result = nil
			st.Child = &child
		})
	}
	return o
}

// Runnable is a job whose result type has been erased, as built by the factory.
type Runnable interface {
	Name() Name
	State() State
	Execute(ctx context.Context) (any, error)
}

// Job runs one iteration function under the lifecycle engine.
type Job[T any] struct {
	*core
	iteration func(ctx context.Context, c *core) (T, error)
	result    T
}

func newJob[T any](name Name, opts Options, iteration func(ctx context.Context, c *core) (T, error)) *Job[T] {
	return &Job[T]{
		core:      newCore(name, opts),
		iteration: iteration,
	}
}

// Run executes the job once. The returned error keeps the classification of
// whatever failed, wrapped in a *StepError naming the job it came from.
func (j *Job[T]) Run(ctx context.Context) (T, error) {
	var zero T
	if err := j.changeState(func(s *State) { s.Status = StatusRunning }); err != nil {
		return zero, apperrors.Internal("job.run", err)
	}
	j.logger.Debug("Job started")

	if err := j.checkSignal(ctx); err != nil {
		err = attribute(j.name, err)
		j.settleError(err)
		return zero, err
	}

	result, err := j.iterate(ctx)
	if err == nil {
		// A cancellation that landed during the last step must not be swallowed.
		err = j.checkSignal(ctx)
	}
	if err != nil {
		err = attribute(j.name, err)
		j.settleError(err)
		return zero, err
	}

	_ = j.changeState(func(s *State) {
		s.Status = StatusFinished
		s.Progress = nil
		s.Result = result
		j.result = result
	})
	j.logger.Debug("Job finished")
	return result, nil
}

// Execute implements Runnable.
func (j *Job[T]) Execute(ctx context.Context) (any, error) {
	result, err := j.Run(ctx)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Result returns the job's result once it finished.
func (j *Job[T]) Result() (T, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Status != StatusFinished {
		var zero T
		return zero, false
	}
	return j.result, true
}

func (j *Job[T]) iterate(ctx context.Context) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("Job panicked", "panic", r)
			err = apperrors.Internal(string(j.name), fmt.Errorf("panic: %v", r))
		}
	}()
	return j.iteration(ctx, j.core)
}

func (j *Job[T]) settleError(err error) {
	status := StatusFailed
	if errors.Is(err, apperrors.ErrCancelled) {
		status = StatusCancelled
	}
	info := errorInfo(err)

	_ = j.changeState(func(s *State) {
		s.Status = status
		s.Error = info
	})

	if status == StatusCancelled {
		j.logger.Info("Job cancelled", "reason", info.Message)
		return
	}
	j.logger.Warn("Job failed", "error", err, "kind", info.Kind, "failedJob", info.Job)
}
