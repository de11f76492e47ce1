package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"stompclient/frame"
)

// ErrRateLimited is returned in place of calling the wrapped handler when
// the token bucket is empty. A subscription's SuppressedExceptionCheck can
// match on this to NACK instead of tearing the connection down.
var ErrRateLimited = errors.New("middleware: rate limit exceeded")

// RateLimit throttles MESSAGE dispatch to at most r handler invocations
// per second, with bursts up to burst. The limiter is created once, in
// the outer closure, and shared across every message on the subscription
// this wraps — a fresh limiter per call would defeat the bucket.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg frame.Frame) error {
			if !limiter.Allow() {
				return ErrRateLimited
			}
			return next(ctx, msg)
		}
	}
}
