package render

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	retryAttempts = 3
	retryBase     = 500 * time.Millisecond
)

// RemoteAPIError wraps a remote call that kept failing after retries. One
// RemoteAPIError fails one assessment's render; it never aborts the batch.
type RemoteAPIError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RemoteAPIError) Unwrap() error { return e.Err }

// withRetry runs fn up to retryAttempts times with exponential backoff,
// honoring context cancellation between attempts.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var last error
	delay := retryBase
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = fn()
		if last == nil {
			return nil
		}
		if attempt == retryAttempts {
			break
		}
		slog.Warn("remote call failed, retrying", "op", op, "attempt", attempt, "error", last)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return &RemoteAPIError{Op: op, Attempts: retryAttempts, Err: last}
}
