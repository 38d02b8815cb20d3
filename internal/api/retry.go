package api

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const maxBackoff = 30 * time.Second

// RetryableError wraps an error the retry loop may try again.
type RetryableError struct {
	Err        error
	Status     int
	RetryAfter time.Duration // from a 429 Retry-After header, 0 if absent
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable reports whether a status code may be retried: never a 4xx
// except 429, always 5xx and transport errors.
func Retryable(status int) bool {
	if status == 429 {
		return true
	}
	if status >= 400 && status < 500 {
		return false
	}
	return status == 0 || status >= 500
}

// Retry runs fn up to maxRetries+1 times. Rate-limited responses back
// off exponentially with jitter, capped at 30 seconds, honoring a
// server-provided Retry-After; everything else waits delay*attempt.
func Retry(ctx context.Context, maxRetries int, delay time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var retryable *RetryableError
		if !errors.As(lastErr, &retryable) || attempt >= maxRetries {
			return lastErr
		}

		wait := computeDelay(attempt, delay, retryable)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// computeDelay is the pure backoff schedule; attempt is zero-based.
func computeDelay(attempt int, base time.Duration, err *RetryableError) time.Duration {
	if err.Status == 429 {
		wait := base * (1 << attempt)
		if err.RetryAfter > wait {
			wait = err.RetryAfter
		}
		// Up to 10% jitter keeps synchronized clients from stampeding.
		wait += time.Duration(rand.Int63n(int64(wait)/10 + 1))
		if wait > maxBackoff {
			wait = maxBackoff
		}
		return wait
	}
	return base * time.Duration(attempt+1)
}
