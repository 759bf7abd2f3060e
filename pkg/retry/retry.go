// Package retry bounds how long the tool waits for a MongoDB deployment to
// become reachable. Setup steps themselves are never retried.
package retry

import (
	"context"
	"math"
	"time"
)

// Func is an operation that may be attempted more than once.
type Func func(ctx context.Context) error

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// Options configures Do.
type Options struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Classifier      Classifier
	// OnRetry is called before each wait with the failed attempt number.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// ConnectOptions returns options for reaching a server that may still be
// starting up: a few attempts, short exponential waits.
func ConnectOptions(attempts int) Options {
	if attempts < 1 {
		attempts = 1
	}
	return Options{
		MaxAttempts:     attempts,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

// Do runs fn until it succeeds, the classifier rejects its error, attempts
// run out or ctx is done. The last error from fn is returned.
func Do(ctx context.Context, fn Func, opts Options) error {
	var lastErr error
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if opts.Classifier != nil && !opts.Classifier(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		wait := Backoff(attempt, opts)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// Backoff returns the wait after the given failed attempt (1-based),
// capped at MaxInterval when one is set.
func Backoff(attempt int, opts Options) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := opts.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	interval := float64(opts.InitialInterval) * math.Pow(multiplier, float64(attempt-1))
	if opts.MaxInterval > 0 && interval > float64(opts.MaxInterval) {
		return opts.MaxInterval
	}
	return time.Duration(interval)
}
