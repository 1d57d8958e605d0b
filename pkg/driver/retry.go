package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
)

// RetryPolicy bounds how often a conflicting unit of work is re-run and how
// long to wait between attempts. Delays grow exponentially from BaseDelay
// by Multiplier up to MaxDelay; each delay is randomized by ±Jitter.
type RetryPolicy struct {
	MaxAttempts int           `validate:"gte=1,lte=100" yaml:"max_attempts"`
	BaseDelay   time.Duration `validate:"gt=0" yaml:"base_delay"`
	MaxDelay    time.Duration `validate:"gtefield=BaseDelay" yaml:"max_delay"`
	Multiplier  float64       `validate:"gte=1" yaml:"multiplier"`
	Jitter      float64       `validate:"gte=0,lte=1" yaml:"jitter"`
}

// DefaultRetryPolicy returns the policy used when none is configured: four
// attempts, starting at 10ms and doubling up to one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2,
		Jitter:      0.5,
	}
}

var validate = validator.New()

// Validate checks the policy bounds.
func (p RetryPolicy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}
	return nil
}

// backOff builds the delay schedule for one unit of work. It stops after
// MaxAttempts-1 retries or when ctx is done.
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}

// RetryEvent describes a retry about to happen.
type RetryEvent struct {
	// Attempt is the number of the attempt that conflicted, starting at 1.
	Attempt int

	// Cause is the conflict error of that attempt.
	Cause error

	// Delay is how long the driver waits before the next attempt.
	Delay time.Duration
}
