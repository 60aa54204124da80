// Package middleware provides composable middleware for admission decisions.
// Middleware wraps the gate call synchronously and can observe or modify the
// decision flow (recover from panics, log, record metrics, add tracing, etc.).
package middleware

import (
	"context"

	"github.com/makimoto/kuroko2/definition"
)

// Handler is the terminal function that produces the admission decision.
// The boolean is the decision itself; a false return is a normal denial,
// not an error.
type Handler func(ctx context.Context) (bool, error)

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the definition being decided on, and the next handler to
// call. Middleware MUST call next to continue the chain (unless
// short-circuiting on error).
type Middleware func(ctx context.Context, def *definition.Definition, next Handler) (bool, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, metrics) executes as:
//
//	logging → recover → metrics → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, def *definition.Definition, next Handler) (bool, error) {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (bool, error) {
				return mw(ctx, def, prev)
			}
		}
		return h(ctx)
	}
}
