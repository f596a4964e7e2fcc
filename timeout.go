package jsbridge

import (
	"context"
	"fmt"
	"time"
)

// TimeoutInvoker decides how long a native call may take. It calls invoke
// to perform the call and returns its outcome, or gives up on it.
type TimeoutInvoker func(ctx context.Context, call NativeCall, invoke func(context.Context) (any, error)) (any, error)

// DefaultTimeoutInvoker calls invoke inline with no deadline.
func DefaultTimeoutInvoker(ctx context.Context, _ NativeCall, invoke func(context.Context) (any, error)) (any, error) {
	return invoke(ctx)
}

// DeadlineTimeoutInvoker runs each call on its own goroutine and abandons
// it after d with ErrCallAbandoned. The delegate then runs off the dispatch
// thread and must not touch the executor; an abandoned result is dropped.
func DeadlineTimeoutInvoker(d time.Duration) TimeoutInvoker {
	return func(ctx context.Context, call NativeCall, invoke func(context.Context) (any, error)) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type outcome struct {
			value any
			err   error
		}
		done := make(chan outcome, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					done <- outcome{err: fmt.Errorf("%s: panic: %v", call, p)}
				}
			}()
			v, err := invoke(ctx)
			done <- outcome{v, err}
		}()

		select {
		case o := <-done:
			return o.value, o.err
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrCallAbandoned, call, ctx.Err())
		}
	}
}
