package cloudjob

import (
	"cloudjobs/internal/apperrors"
	"cloudjobs/pkg/backoff"
	"context"
	"fmt"
	"time"
)

// PollConfig bounds a wait on the remote system.
type PollConfig struct {
	Interval           time.Duration
	Timeout            time.Duration
	MaxTransientErrors int
}

func (p PollConfig) withDefaults(def PollConfig) PollConfig {
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.MaxTransientErrors < 0 {
		p.MaxTransientErrors = 0
	}
	return p
}

// poll calls fn until it reports done, returns a non-transient error, exceeds
// cfg.MaxTransientErrors consecutive transient errors, or runs out of time.
// The signal is checked before every attempt and interrupts the sleep between
// attempts.
func poll[T any](ctx context.Context, c *core, op string, cfg PollConfig, fn func(ctx context.Context) (value T, done bool, err error)) (T, error) {
	var zero T
	start := time.Now()
	transient := 0

	for attempt := 1; ; attempt++ {
		if err := c.checkSignal(ctx); err != nil {
			return zero, err
		}

		value, done, err := fn(ctx)
		var lastErr string
		switch {
		case err == nil:
			transient = 0
		case apperrors.IsTransient(err):
			transient++
			lastErr = err.Error()
			if transient > cfg.MaxTransientErrors {
				return zero, fmt.Errorf("%s: %d consecutive transient errors: %w", op, transient, err)
			}
			c.logger.Warn("Transient error while polling", "op", op, "attempt", attempt, "error", err)
		default:
			return zero, err
		}
		if done && err == nil {
			return value, nil
		}

		elapsed := time.Since(start)
		if elapsed >= cfg.Timeout {
			return zero, apperrors.Timeout(op, fmt.Sprintf("gave up after %s (%d attempts)", cfg.Timeout, attempt))
		}

		_ = c.changeState(func(s *State) {
			s.Progress = PollProgress{
				Attempt:   attempt,
				Elapsed:   elapsed.Round(time.Millisecond).String(),
				Timeout:   cfg.Timeout.String(),
				LastError: lastErr,
			}
		})

		remaining := cfg.Timeout - elapsed
		delay := min(cfg.Interval, remaining)
		if transient > 0 {
			// Transient failures back off from a quarter interval up to the interval.
			delay = backoff.Within(transient, &backoff.Config{
				Initial: cfg.Interval / 4,
				Max:     cfg.Interval,
			}, remaining)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// sleep waits for d, returning early with a Cancelled error when the signal
// trips or ctx ends.
func (c *core) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-c.opts.Signal.Done():
	case <-ctx.Done():
	}
	return c.checkSignal(ctx)
}
