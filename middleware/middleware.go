// Package middleware implements the onion-model chain for wrapping
// subscription message handlers with cross-cutting concerns — logging,
// timeout, rate limiting, retry — without the handler itself knowing
// about any of them.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Dispatch:  A.before → B.before → C.before → handler
//	Return:    handler → C.after → B.after → A.after
//
// A middleware can do pre-processing, call next to continue the chain,
// do post-processing, or short-circuit by returning without calling next
// (rate limiting does this).
package middleware

import (
	"context"

	"stompclient/frame"
)

// HandlerFunc matches subscription.AutoAckHandler so a wrapped chain can
// be passed straight into Registry.Subscribe.
type HandlerFunc func(ctx context.Context, msg frame.Frame) error

// Middleware takes a handler and returns a new handler wrapping it.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first in the list is the outermost
// layer: executed first on dispatch, last on return.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
