package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"stompclient/frame"
)

// Logging records the destination, subscription id, and duration of every
// MESSAGE dispatch, plus the handler's error if any.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg frame.Frame) error {
			start := time.Now()
			err := next(ctx, msg)
			destination, _ := msg.Headers.Get("destination")
			subscriptionID, _ := msg.Headers.Get("subscription")
			fields := []zap.Field{
				zap.String("destination", destination),
				zap.String("subscription", subscriptionID),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Error("message handler failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("message handled", fields...)
			}
			return err
		}
	}
}
