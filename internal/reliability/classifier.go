package reliability

import (
	"context"
	"errors"
	"time"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Retryable marks err as worth another attempt.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var r retryableError
	return errors.As(err, &r)
}

// Policy bounds a retry loop.
type Policy struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
}

// DefaultPolicy is used for outbound deliveries.
var DefaultPolicy = Policy{Attempts: 3, Base: 200 * time.Millisecond, Cap: 2 * time.Second}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. The last error is returned unwrapped of its
// retry marker.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(ExponentialBackoff(attempt-1, p.Base, p.Cap))
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(ctx.Err(), unmark(err))
			case <-timer.C:
			}
		}
		err = fn(ctx)
		if err == nil || !IsRetryable(err) {
			return unmark(err)
		}
	}
	return unmark(err)
}

func unmark(err error) error {
	var r retryableError
	if errors.As(err, &r) {
		return r.err
	}
	return err
}
