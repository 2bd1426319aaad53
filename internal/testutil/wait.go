// Package testutil holds helpers for asserting on asynchronous behaviour.
package testutil

import (
	"testing"
	"time"
)

type waitConfig struct {
	timeout  time.Duration
	interval time.Duration
}

// Option tunes a wait.
type Option func(*waitConfig)

// Timeout bounds the wait (default: 5s).
func Timeout(d time.Duration) Option {
	return func(c *waitConfig) { c.timeout = d }
}

// Interval sets how often the condition is evaluated (default: 10ms).
func Interval(d time.Duration) Option {
	return func(c *waitConfig) { c.interval = d }
}

func newWaitConfig(opts []Option) waitConfig {
	c := waitConfig{timeout: 5 * time.Second, interval: 10 * time.Millisecond}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Eventually evaluates cond until it holds or the timeout passes. The
// condition is always evaluated at least once.
func Eventually(tb testing.TB, cond func() bool, opts ...Option) bool {
	tb.Helper()
	c := newWaitConfig(opts)

	deadline := time.Now().Add(c.timeout)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		if cond() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		<-ticker.C
	}
}

// MustEventually fails the test with msg if cond never holds.
func MustEventually(tb testing.TB, cond func() bool, msg string, opts ...Option) {
	tb.Helper()
	if !Eventually(tb, cond, opts...) {
		tb.Fatalf("timed out waiting: %s", msg)
	}
}

// MustReceive returns the next value from ch, failing the test after timeout.
func MustReceive[T any](tb testing.TB, ch <-chan T, timeout time.Duration) T {
	tb.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		tb.Fatalf("nothing received within %v", timeout)
		var zero T
		return zero
	}
}

// MustClose waits for ch to be closed, failing the test after timeout.
func MustClose[T any](tb testing.TB, ch <-chan T, timeout time.Duration) {
	tb.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			tb.Fatalf("channel not closed within %v", timeout)
			return
		}
	}
}
