package database

import (
	"cloudjobs/internal/apperrors"
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisVerifier checks a provisioned endpoint answers PING.
type RedisVerifier struct {
	timeout time.Duration
}

// NewRedisVerifier creates a verifier. Zero timeout uses 10s.
func NewRedisVerifier(timeout time.Duration) *RedisVerifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RedisVerifier{timeout: timeout}
}

// Verify implements Verifier.
func (v *RedisVerifier) Verify(ctx context.Context, d Descriptor) error {
	opts := &redis.Options{
		Addr:         d.Addr(),
		Username:     d.Username,
		Password:     d.Password,
		DialTimeout:  v.timeout,
		ReadTimeout:  v.timeout,
		WriteTimeout: v.timeout,
		MaxRetries:   1,
	}
	if d.TLS {
		opts.TLSConfig = &tls.Config{ServerName: d.Host, MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if isAuthError(err) {
			return apperrors.Unauthorized("verify "+d.Addr(), err)
		}
		return fmt.Errorf("ping %s: %w", d.Addr(), err)
	}
	return nil
}

// authErrorPrefixes are the server replies for rejected credentials across
// Redis versions. Repeating the same credentials cannot change them.
var authErrorPrefixes = []string{"WRONGPASS", "NOAUTH", "NOPERM", "invalid password", "invalid username-password pair"}

func isAuthError(err error) bool {
	for _, prefix := range authErrorPrefixes {
		if redis.HasErrorPrefix(err, prefix) {
			return true
		}
	}
	return false
}

// Verify RedisVerifier implements Verifier
var _ Verifier = (*RedisVerifier)(nil)
