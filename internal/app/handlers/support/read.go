package support

import (
	"context"

	"slotkeeper/internal/app/uow"
)

// Read runs fn against a read-only unit, borrowing the one in ctx if present.
func Read(ctx context.Context, factory uow.UoWFactory, fn func(ctx context.Context, unit uow.UnitOfWork) error) error {
	unit, execCtx, cleanup, err := BeginReadOnlyUnit(ctx, factory)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	return fn(execCtx, unit)
}
