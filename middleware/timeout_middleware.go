package middleware

import (
	"context"
	"fmt"
	"time"

	"stompclient/frame"
)

// Timeout bounds how long a single MESSAGE handler invocation may run. The
// handler goroutine is not cancelled when the timeout fires — it keeps
// running in the background — so handlers that need real cancellation
// must check ctx.Done() themselves.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg frame.Frame) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- next(ctx, msg)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return fmt.Errorf("middleware: handler timed out after %s", timeout)
			}
		}
	}
}
