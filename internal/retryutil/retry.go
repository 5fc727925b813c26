// Package retryutil implements the generic backoff+predicate retry used by
// the answer pipeline, scoring worker, and recovery service (component J).
// The reconnection manager does not call it; it computes its own delays.
package retryutil

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Predicate decides whether an error is worth retrying.
type Predicate func(error) bool

// Always retries every error.
func Always() Predicate {
	return func(error) bool { return true }
}

// Never retries nothing.
func Never() Predicate {
	return func(error) bool { return false }
}

// Any retries if at least one predicate says so.
func Any(preds ...Predicate) Predicate {
	return func(err error) bool {
		for _, p := range preds {
			if p(err) {
				return true
			}
		}
		return false
	}
}

// All retries only if every predicate agrees.
func All(preds ...Predicate) Predicate {
	return func(err error) bool {
		for _, p := range preds {
			if !p(err) {
				return false
			}
		}
		return true
	}
}

// Options configures retryWithBackoff.
type Options struct {
	MaxRetries        int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
	Jitter            bool
	IsRetryable       Predicate
	OnRetry           func(attempt int, err error, delay time.Duration)
}

// Exhausted is raised when every attempt failed.
type Exhausted struct {
	OriginalError error
	Attempts      int
	TotalTime     time.Duration
}

func (e *Exhausted) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts (%s): %v", e.Attempts, e.TotalTime, e.OriginalError)
}

func (e *Exhausted) Unwrap() error {
	return e.OriginalError
}

// WithBackoff retries op up to MaxRetries+1 total attempts, applying
// exponential backoff between attempts (optionally jittered ±20%, capped at
// MaxDelay). isRetryable defaults to Always when unset.
func WithBackoff(ctx context.Context, op func(ctx context.Context) error, opts Options) error {
	isRetryable := opts.IsRetryable
	if isRetryable == nil {
		isRetryable = Always()
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !isRetryable(lastErr) {
			return lastErr
		}

		if attempt == opts.MaxRetries {
			break
		}

		delay := nextDelay(attempt, opts)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, lastErr, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return &Exhausted{
		OriginalError: lastErr,
		Attempts:      opts.MaxRetries + 1,
		TotalTime:     time.Since(start),
	}
}

func nextDelay(attempt int, opts Options) time.Duration {
	multiplier := opts.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	base := float64(opts.InitialDelay) * math.Pow(multiplier, float64(attempt))

	if opts.Jitter {
		jitter := base * 0.2
		base = base - jitter + rand.Float64()*2*jitter
	}

	delay := time.Duration(base)
	if opts.MaxDelay > 0 && delay > opts.MaxDelay {
		delay = opts.MaxDelay
	}
	return delay
}

// Transient network/database/HTTP classification predicates. Components
// compose these with errors.As over their own sentinel/wrapper types rather
// than relying solely on string matching.

// TransientError is implemented by sentinel errors that know their own
// retryability (e.g. a database-driver timeout wrapper).
type TransientError interface {
	error
	Temporary() bool
}

// IsTransient retries errors that self-report as temporary.
func IsTransient() Predicate {
	return func(err error) bool {
		var t TransientError
		if asTransient(err, &t) {
			return t.Temporary()
		}
		return false
	}
}

func asTransient(err error, target *TransientError) bool {
	for err != nil {
		if t, ok := err.(TransientError); ok {
			*target = t
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// IsHTTPStatusRetryable retries the transient HTTP statuses named in the
// spec: 5xx, 429, 408.
func IsHTTPStatusRetryable(status int) bool {
	if status == 429 || status == 408 {
		return true
	}
	return status >= 500 && status <= 599
}
