package middleware

import (
	"context"
	"log/slog"

	"slotkeeper/internal/app/commands"
	"slotkeeper/internal/app/outbox"
)

// OutboxFlush hands recorded events to the outbox transport once the command
// has committed. A flush failure does not undo the command, so it is logged.
func OutboxFlush(box outbox.Outbox, logger *slog.Logger) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := nextFn(ctx, cmd)
			if flushErr := box.Flush(ctx); flushErr != nil {
				logger.Error("outbox flush failed", "command", cmd.Key(), "error", flushErr)
			}
			if err != nil {
				return nil, err
			}
			return res, nil
		})
	}
}
