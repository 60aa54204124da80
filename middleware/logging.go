package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/makimoto/kuroko2/definition"
)

// Logging returns middleware that logs each admission decision.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, def *definition.Definition, next Handler) (bool, error) {
		start := time.Now()
		admitted, err := next(ctx)
		elapsed := time.Since(start)

		switch {
		case err != nil:
			logger.Error("admission check failed",
				slog.String("definition_id", def.ID.String()),
				slog.String("definition_name", def.Name),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		case admitted:
			logger.Info("launch admitted",
				slog.String("definition_id", def.ID.String()),
				slog.String("definition_name", def.Name),
				slog.String("prevent_multi", def.PreventMulti.String()),
				slog.Duration("elapsed", elapsed),
			)
		default:
			logger.Info("launch denied",
				slog.String("definition_id", def.ID.String()),
				slog.String("definition_name", def.Name),
				slog.String("prevent_multi", def.PreventMulti.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return admitted, err
	}
}
