// Package backoff computes delays between repeated attempts.
package backoff

import "time"

const (
	defaultInitial    = 100 * time.Millisecond
	defaultMax        = 5 * time.Second
	defaultMultiplier = 2.0
)

// Config shapes the delay curve. Zero values use defaults.
type Config struct {
	Initial    time.Duration // first delay (default: 100ms)
	Max        time.Duration // ceiling (default: 5s)
	Multiplier float64       // growth per attempt (default: 2)
}

func (c *Config) resolve() (initial, ceiling time.Duration, multiplier float64) {
	initial, ceiling, multiplier = defaultInitial, defaultMax, defaultMultiplier
	if c == nil {
		return
	}
	if c.Initial > 0 {
		initial = c.Initial
	}
	if c.Max > 0 {
		ceiling = c.Max
	}
	if c.Multiplier > 1 {
		multiplier = c.Multiplier
	}
	return
}

// Exponential returns the delay before the given attempt. Attempt 1 (and
// anything lower) waits Initial; each later attempt multiplies the previous
// delay until Max is reached.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial, ceiling, multiplier := cfg.resolve()
	if initial >= ceiling {
		return ceiling
	}

	d := float64(initial)
	for i := 1; i < attempt; i++ {
		d *= multiplier
		if d >= float64(ceiling) {
			return ceiling
		}
	}
	return time.Duration(d)
}

// Within returns Exponential clamped to limit. A non-positive limit means no
// time is left and yields zero.
func Within(attempt int, cfg *Config, limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return min(Exponential(attempt, cfg), limit)
}
