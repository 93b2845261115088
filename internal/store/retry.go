package store

import (
	"context"
	"time"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/taskerr"
)

// retryBackoff bounds are per spec §4.1: 100ms -> 10s, cap 5 attempts.
const (
	retryBaseDelay = 100 * time.Millisecond
	retryMaxDelay  = 10 * time.Second
	retryMaxAttempts = 5
)

// withRetry runs op, retrying transient failures with exponential backoff.
// op should return an error satisfying taskerr.Is(err, taskerr.ErrTransientUpstream)
// (or simply any error, treated as transient) for a condition worth retrying;
// a nil error or context cancellation stops the loop immediately. op must
// classify conditions that will never succeed on retry (a unique constraint
// violation, a permanent upstream rejection) into taskerr.ErrAlreadyExists or
// taskerr.ErrPermanentUpstream itself — withRetry returns those immediately,
// unwrapped and unretried, instead of burning through retryMaxAttempts and
// masking them as ErrStoreUnavailable.
func withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	delay := retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if taskerr.Is(lastErr, taskerr.ErrAlreadyExists) || taskerr.Is(lastErr, taskerr.ErrPermanentUpstream) {
			return lastErr
		}
		if attempt == retryMaxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
	return taskerr.Wrapf(taskerr.ErrStoreUnavailable, "exhausted %d attempts: %v", retryMaxAttempts, lastErr)
}
