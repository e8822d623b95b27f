package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"slotkeeper/internal/app/commands"
	"slotkeeper/internal/app/policies"
	"slotkeeper/internal/app/queries"
)

type Authorizer interface {
	Authorize(ctx context.Context, message any) error
}

// Authorization rejects commands the calling identity may not send.
func Authorization(a Authorizer, logger *slog.Logger) CommandMiddleware {
	check := guard(a, logger)
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := check(ctx, cmd); err != nil {
				return nil, err
			}
			return nextFn(ctx, cmd)
		})
	}
}

func QueryAuthorization(a Authorizer, logger *slog.Logger) QueryMiddleware {
	check := guard(a, logger)
	return func(next queries.Bus) queries.Bus {
		nextFn := wrapQuery(next)
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := check(ctx, q); err != nil {
				return nil, err
			}
			return nextFn(ctx, q)
		})
	}
}

func guard(a Authorizer, logger *slog.Logger) func(context.Context, any) error {
	if a == nil {
		panic("middleware: authorizer required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, message any) error {
		err := a.Authorize(ctx, message)
		if err == nil {
			return nil
		}
		caller := "anonymous"
		if id, ok := policies.IdentityFromContext(ctx); ok {
			caller = id.ID
		}
		logger.WarnContext(ctx, "authorization denied", "message", fmt.Sprintf("%T", message), "caller", caller, "error", err)
		return err
	}
}
