package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/makimoto/kuroko2/definition"
)

// Recover returns middleware that recovers from panics in the decision chain.
// Panics are converted to errors and logged with a stack trace; the decision
// reports as not admitted.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, def *definition.Definition, next Handler) (admitted bool, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("admission check panicked",
					slog.String("definition_id", def.ID.String()),
					slog.String("definition_name", def.Name),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				admitted = false
				retErr = fmt.Errorf("panic deciding admission for %s: %v", def.Name, r)
			}
		}()
		return next(ctx)
	}
}
