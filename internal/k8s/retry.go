package k8s

import (
	"context"
	"errors"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

const (
	defaultRetryAttempts = 3
	initialBackoff       = 100 * time.Millisecond
	maxBackoff           = 2 * time.Second
)

// isRetryable returns true for 5xx and 429.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if apierrors.IsTooManyRequests(err) || apierrors.IsInternalError(err) ||
		apierrors.IsServerTimeout(err) || apierrors.IsServiceUnavailable(err) {
		return true
	}
	var se *apierrors.StatusError
	return errors.As(err, &se) && se.ErrStatus.Code >= 500
}

// backoff returns the delay before retry attempt+1; exponential (x3) with cap.
func backoff(attempt int) time.Duration {
	d := initialBackoff
	for i := 0; i < attempt; i++ {
		d *= 3
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// doWithRetryValue runs fn up to maxAttempts times and returns its value; retries on 5xx/429.
func doWithRetryValue[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		val, err := fn()
		if err == nil {
			return val, nil
		}
		if attempt >= maxAttempts-1 || !isRetryable(err) {
			return zero, err
		}
		timer := time.NewTimer(backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
