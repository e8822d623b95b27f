package middleware

import (
	"context"

	"slotkeeper/internal/app/queries"
	"slotkeeper/internal/app/uow"
)

// ReadOnlyUnit opens one read-only unit of work per query so every
// repository read inside a handler sees the same snapshot.
//
// Commands manage their own units: the per-resource lock has to be held until
// commit, which a bus-level transaction cannot guarantee.
func ReadOnlyUnit(factory uow.UoWFactory) QueryMiddleware {
	if factory == nil {
		panic("middleware: uow factory required")
	}
	return func(next queries.Bus) queries.Bus {
		nextFn := wrapQuery(next)
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if _, ok := uow.FromContext(ctx); ok {
				return nextFn(ctx, q)
			}
			unit, err := factory.Begin(ctx, uow.TxOptions{ReadOnly: true})
			if err != nil {
				return nil, err
			}
			execCtx := uow.ContextWithUnitOfWork(uow.Inject(ctx, unit), unit)
			defer func() {
				_ = unit.Rollback(execCtx)
			}()
			return nextFn(execCtx, q)
		})
	}
}
