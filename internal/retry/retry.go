// Package retry wraps a fallible operation with bounded, exponentially spaced
// retries.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy controls how many times and how far apart an operation is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Jitter is the randomization factor in [0,1]. Zero disables jitter.
	Jitter float64
	// Retryable decides whether an error deserves another attempt. Nil
	// retries every error.
	Retryable func(error) bool
}

// DefaultPolicy mirrors the pipeline defaults: two retries, 500ms doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
		Jitter:          0.5,
	}
}

// Attempt describes one finished try.
type Attempt struct {
	Number  int
	Err     error
	Elapsed time.Duration
}

// Observer receives every attempt for diagnostics.
type Observer func(Attempt)

func (p Policy) schedule(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.Jitter
	// The attempt ceiling bounds the run; elapsed time does not.
	b.MaxElapsedTime = 0
	b.Reset()

	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}

// Do runs op until it succeeds, returns a non-retryable error, exhausts the
// retry ceiling or ctx ends. It returns the first success or the last
// failure, plus the number of attempts made.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error), observe Observer) (T, int, error) {
	var (
		result   T
		lastErr  error
		attempts int
	)
	operation := func() error {
		attempts++
		start := time.Now()
		out, err := op(ctx, attempts)
		if observe != nil {
			observe(Attempt{Number: attempts, Err: err, Elapsed: time.Since(start)})
		}
		if err == nil {
			result = out
			lastErr = nil
			return nil
		}
		lastErr = err
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, p.schedule(ctx))
	if err == nil {
		return result, attempts, nil
	}
	// A cancelled context surfaces the last real failure when there is one.
	if lastErr != nil {
		return result, attempts, lastErr
	}
	return result, attempts, err
}
