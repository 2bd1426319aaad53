package dispatcher

import (
	"cloudjobs/internal/config"
	"cloudjobs/pkg/backoff"
	"time"
)

// Config tunes a MemoryDispatcher. Zero values use defaults.
type Config struct {
	BufferSize  int           // queued events (default: 1000)
	Workers     int           // delivery goroutines (default: 2)
	HTTPTimeout time.Duration // per request (default: 10s)
	UserAgent   string

	MaxRetries int            // attempts after the first (default: 3, negative disables)
	Backoff    backoff.Config // delay between attempts

	BreakerThreshold int           // consecutive failed deliveries before a host is paused (default: 5)
	BreakerCooldown  time.Duration // pause length (default: 30s)
	MaxDeferrals     int           // times an event may wait for a paused host (default: 5)
}

// LoadConfigFromEnv reads ANALYTICS_* tuning variables.
func LoadConfigFromEnv() Config {
	return Config{
		BufferSize:       config.GetIntEnv("ANALYTICS_BUFFER_SIZE", 1000),
		Workers:          config.GetIntEnv("ANALYTICS_WORKERS", 2),
		HTTPTimeout:      config.GetDurationEnv("ANALYTICS_HTTP_TIMEOUT", 10*time.Second),
		MaxRetries:       config.GetIntEnv("ANALYTICS_MAX_RETRIES", 3),
		BreakerThreshold: config.GetIntEnv("ANALYTICS_BREAKER_THRESHOLD", 5),
		BreakerCooldown:  config.GetDurationEnv("ANALYTICS_BREAKER_COOLDOWN", 30*time.Second),
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = 3
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.Backoff.Initial <= 0 {
		c.Backoff.Initial = 200 * time.Millisecond
	}
	if c.Backoff.Max <= 0 {
		c.Backoff.Max = 5 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	if c.MaxDeferrals <= 0 {
		c.MaxDeferrals = 5
	}
	return c
}
