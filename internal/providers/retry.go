package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type rateLimitError struct{}

func (e *rateLimitError) Error() string { return "rate limited" }

type serverError struct {
	statusCode int
	body       string
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error (status %d): %s", e.statusCode, e.body)
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return "transport error: " + e.err.Error() }

func (e *transportError) Unwrap() error { return e.err }

type authError struct {
	message string
}

func (e *authError) Error() string {
	return "authentication error: " + e.message
}

// IsAuthError checks if an error is an authentication error. Auth errors are
// never retried and map to a dedicated exit code.
func IsAuthError(err error) bool {
	var ae *authError
	return errors.As(err, &ae)
}

// retryable reports whether an attempt error is transient: rate limits,
// 5xx responses, transport failures, and per-attempt deadline hits.
func retryable(err error) bool {
	var (
		rl *rateLimitError
		se *serverError
		te *transportError
	)
	if errors.As(err, &rl) || errors.As(err, &se) || errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// retryWithBackoff runs fn up to maxRetries+1 times with exponential backoff
// between transient failures. A canceled parent context stops retrying.
func retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt < maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
