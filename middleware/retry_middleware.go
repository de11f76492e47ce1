package middleware

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"stompclient/frame"
	"stompclient/transport"
)

// Retry re-runs a MESSAGE handler with exponential backoff when it fails
// with a transient transport error, up to maxRetries times. Any other
// error returns immediately, since retrying a handler's own business
// logic error would just reproduce it.
func Retry(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg frame.Frame) error {
			err := next(ctx, msg)
			for i := 0; i < maxRetries && isRetryable(err); i++ {
				logger.Debug("retrying message handler", zap.Int("attempt", i+1), zap.Error(err))
				select {
				case <-time.After(baseDelay * time.Duration(1<<i)):
				case <-ctx.Done():
					return err
				}
				err = next(ctx, msg)
			}
			return err
		}
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, transport.ErrConnectionLost)
}
