package base

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/errors"
)

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64
}

// NewRetryPolicy creates a new retry policy with exponential backoff
func NewRetryPolicy(maxAttempts int, initialDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialDelay:    initialDelay,
		MaxDelay:        time.Minute,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

// PolicyFromSettings builds the connection policy: max attempts and the
// initial wait come from the resolved settings, later waits grow by the
// same factor.
func PolicyFromSettings(s config.Settings) *RetryPolicy {
	p := NewRetryPolicy(s.MaxAttempts, s.ConnectionTimeout)
	if secs := s.ConnectionTimeout.Seconds(); secs > 1 {
		p.Multiplier = secs
	}
	return p
}

// Execute runs fn until it succeeds, the attempts are spent, or fn returns an
// error that errors.IsRetryable rejects.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := rp.Do(ctx, fn, errors.IsRetryable)
	return err
}

// Do runs fn with retry only while shouldRetry accepts the error. It returns
// the number of attempts made.
func (rp *RetryPolicy) Do(ctx context.Context, fn func(context.Context) error, shouldRetry func(error) bool) (int, error) {
	var lastErr error
	attempts := rp.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return attempt + 1, err
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(rp.calculateDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "retry cancelled")
		case <-timer.C:
		}
	}

	return attempts, fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// calculateDelay calculates the delay for a given attempt
func (rp *RetryPolicy) calculateDelay(attempt int) time.Duration {
	delay := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))

	if rp.MaxDelay > 0 && delay > float64(rp.MaxDelay) {
		delay = float64(rp.MaxDelay)
	}

	// jitter
	if rp.RandomizeFactor > 0 {
		delta := delay * rp.RandomizeFactor
		minDelay := delay - delta
		delay = minDelay + (rand.Float64() * 2 * delta)
	}

	return time.Duration(delay)
}

// WithMaxAttempts returns a new policy with updated max attempts
func (rp *RetryPolicy) WithMaxAttempts(attempts int) *RetryPolicy {
	policy := *rp
	policy.MaxAttempts = attempts
	return &policy
}

// WithDelay returns a new policy with updated delays
func (rp *RetryPolicy) WithDelay(initial, max time.Duration) *RetryPolicy {
	policy := *rp
	policy.InitialDelay = initial
	policy.MaxDelay = max
	return &policy
}

// NoRetryPolicy returns a policy that doesn't retry
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 1,
	}
}
