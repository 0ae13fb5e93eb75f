package utils

import (
	"context"
	"errors"
	"time"
)

// PermanentError marks an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so that Retry returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Retry calls f up to attempts times, sleeping between failed attempts with
// exponential backoff starting at baseDelay and capped at maxDelay.
// It returns nil as soon as f succeeds, the wrapped error as soon as f
// returns a PermanentError, ctx.Err() if the context ends while waiting,
// and otherwise the error of the last attempt.
func Retry(ctx context.Context, attempts uint, baseDelay, maxDelay time.Duration, f func() error) error {
	if attempts == 0 {
		attempts = 1
	}

	var err error
	delay := baseDelay
	for attempt := uint(0); attempt < attempts; attempt++ {
		if attempt > 0 {
			if serr := ContextSleep(ctx, delay); serr != nil {
				return serr
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		}

		err = f()
		if err == nil {
			return nil
		}
		var permErr *PermanentError
		if errors.As(err, &permErr) {
			return permErr.Err
		}
	}
	return err
}
