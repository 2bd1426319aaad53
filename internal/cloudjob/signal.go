package cloudjob

import (
	"cloudjobs/internal/apperrors"
	"context"
	"errors"
)

// Signal is the cancellation token shared by every job of one tree.
// It flips from active to cancelled exactly once; later Cancel calls keep
// the first reason.
type Signal struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

type cancelReason struct{ reason string }

func (r *cancelReason) Error() string { return r.reason }

// NewSignal creates an active signal. Cancelling parent also trips it.
func NewSignal(parent context.Context) *Signal {
	ctx, cancel := context.WithCancelCause(parent)
	return &Signal{ctx: ctx, cancel: cancel}
}

// Cancel trips the signal. Idempotent.
func (s *Signal) Cancel(reason string) {
	s.cancel(&cancelReason{reason: reason})
}

// Cancelled reports whether the signal tripped.
func (s *Signal) Cancelled() bool {
	return s.ctx.Err() != nil
}

// Reason returns the reason given to the first Cancel, or the parent's error.
func (s *Signal) Reason() string {
	cause := context.Cause(s.ctx)
	if cause == nil {
		return ""
	}
	var r *cancelReason
	if errors.As(cause, &r) {
		return r.reason
	}
	return cause.Error()
}

// Done is closed once the signal trips.
func (s *Signal) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Err returns nil while active and a Cancelled error afterwards.
func (s *Signal) Err() error {
	if !s.Cancelled() {
		return nil
	}
	return apperrors.Cancelled(s.Reason())
}
