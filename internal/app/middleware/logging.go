package middleware

import (
	"context"
	"log/slog"
	"time"

	"slotkeeper/internal/app/commands"
	"slotkeeper/internal/domain/shared/errs"
)

// Logging records every dispatched command with its outcome. Expected
// outcomes (conflicts, validation) are logged at info level.
func Logging(logger *slog.Logger) CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := nextFn(ctx, cmd)
			attrs := []any{"command", cmd.Key(), "duration", time.Since(start)}
			switch kind := errs.Kind(err); kind {
			case "":
				logger.DebugContext(ctx, "command handled", attrs...)
			case "unexpected":
				logger.ErrorContext(ctx, "command failed", append(attrs, "kind", kind, "error", err)...)
			default:
				logger.InfoContext(ctx, "command rejected", append(attrs, "kind", kind, "error", err)...)
			}
			return res, err
		})
	}
}
