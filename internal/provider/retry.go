package provider

import (
	"context"
	"time"
)

// retryBaseDelay is the backoff before the second attempt; it doubles
// per attempt after that.
const retryBaseDelay = 500 * time.Millisecond

// Retry runs op up to attempts times with exponential backoff between
// failures. It returns the last error when every attempt fails, and
// stops early if the context is cancelled.
func Retry(ctx context.Context, attempts int, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := retryBaseDelay
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if lastErr = op(); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}
