// Package retry implements the fixed backoff policy shared by the evaluator,
// judge, and storage layers: a bounded number of attempts with exponentially
// doubling sleeps (1s, 2s, 4s, ...) between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as not worth retrying; Do returns it unwrapped
// without consuming further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type Policy struct {
	Attempts int
	Base     time.Duration
}

// Default is three attempts with doubling waits starting at one second.
func Default() Policy {
	return Policy{Attempts: 3, Base: time.Second}
}

// Do runs op until it succeeds or attempts are exhausted. The wait before
// retry n is Base<<(n-1). Context cancellation aborts waiting immediately
// and is not retried.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(p.Base << (i - 1)):
			case <-ctx.Done():
				return fmt.Errorf("retry aborted after %d attempts: %w", i, ctx.Err())
			}
		}
		if lastErr = op(); lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted after %d attempts: %w", i+1, lastErr)
		}
	}
	return fmt.Errorf("%d attempts exhausted: %w", attempts, lastErr)
}
