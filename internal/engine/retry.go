// Package engine holds the small stateful primitives shared by the
// Fetcher and Pipeline: the write-budget governor, the API rate limiter,
// the active-task tracker, and the retry combinator StoreGateway uses.
package engine

import (
	"context"
	"time"
)

// Do runs fn up to maxAttempts times in total, sleeping between attempts
// with doubling backoff starting at initialDelay. It is the retry
// combinator named in SPEC_FULL.md section 9 ("Decorators for retry");
// StoreGateway's quota backoff is built on it.
//
// An error is retried when shouldRetry is nil or returns true for it; an
// error for which shouldRetry returns false is returned at once. The last
// error is returned if every attempt fails.
// Do observes ctx cancellation between attempts and during the backoff
// sleep, returning ctx.Err() immediately if cancelled.
func Do(ctx context.Context, maxAttempts int, initialDelay time.Duration, shouldRetry func(error) bool, fn func() error) error {
	delay := initialDelay
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	return lastErr
}
