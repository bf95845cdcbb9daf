package app

import (
	"context"
	"time"

	"video_ingest_service/pkg/config"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounded exponential backoff
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

// RetryPolicyFrom config.RetryConfig -> RetryPolicy
func RetryPolicyFrom(c config.RetryConfig) RetryPolicy {
	return RetryPolicy{InitialInterval: c.InitialInterval, MaxInterval: c.MaxInterval, MaxAttempts: c.MaxAttempts}
}

// Do run op until it succeeds, returns backoff.Permanent, attempts run out or ctx is done.
// The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
}
