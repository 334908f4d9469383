// Package deadline provides the race primitive used for every remote call:
// first of {operation, deadline} to settle wins, and the loser's eventual
// settlement is discarded. Timeouts are the only cancellation mechanism in
// the engine; an in-flight call is abandoned, not interrupted, once the
// deadline branch has reported to the caller.
package deadline

import (
	"context"
	"errors"
	"time"
)

// ErrDeadline is returned when the deadline wins the race.
var ErrDeadline = errors.New("deadline exceeded before remote call settled")

// Exceeded reports whether err is (or wraps) a deadline loss.
func Exceeded(err error) bool {
	return errors.Is(err, ErrDeadline) || errors.Is(err, context.DeadlineExceeded)
}

type result[T any] struct {
	val T
	err error
}

// Race runs op and waits at most d for it to settle. The op receives a
// context cancelled at the deadline, but Race does not wait for it to notice:
// a late result is delivered into a buffered channel and dropped.
func Race[T any](ctx context.Context, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	opCtx, cancel := context.WithTimeout(ctx, d)

	ch := make(chan result[T], 1)
	go func() {
		defer cancel()
		v, err := op(opCtx)
		ch <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-time.After(d):
		var zero T
		return zero, ErrDeadline
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
