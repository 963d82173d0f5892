package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// stopError marks an error that must not be retried.
type stopError struct {
	err error
}

func (e *stopError) Error() string {
	return e.err.Error()
}

func (e *stopError) Unwrap() error {
	return e.err
}

// Stop wraps err so that Do and DoValue return it immediately without
// consuming the remaining attempts.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// Do calls op until it succeeds, returns a Stop error, the context is
// canceled or attempts calls have been made. It sleeps interval between
// attempts and returns the last error seen.
func Do(ctx context.Context, attempts int, interval time.Duration, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, attempts, interval, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, attempts int, interval time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		var stop *stopError
		if errors.As(err, &stop) {
			return zero, stop.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%w (gave up after %d attempts: %v)", lastErr, attempt, ctx.Err())
		case <-timer.C:
		}
	}

	return zero, lastErr
}
