package executor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/robert-malhotra/planet-overlap/internal/config"
)

// RetryPolicy bounds retries of transient catalog failures.
type RetryPolicy struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the randomization factor applied to each delay.
	Jitter float64
}

// DefaultRetryPolicy returns 3 retries backing off from 1s to 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

// RetryPolicyFromConfig reads the retry settings from search config.
func RetryPolicyFromConfig(cfg config.SearchConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxRetries = cfg.MaxRetries
	p.Initial = cfg.BackoffInitial
	p.Max = cfg.BackoffMax
	p.Multiplier = cfg.BackoffMultiplier
	return p
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.Reset()
	return b
}

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
