package middleware

import (
	"context"
	"time"

	"github.com/makimoto/kuroko2/definition"
)

// Timeout returns middleware that bounds how long an admission decision may
// take. The snapshot read goes to a store; a slow backend should surface as
// a decision error rather than wedging the launch path. A zero duration
// disables the deadline.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *definition.Definition, next Handler) (bool, error) {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
