package uow

import (
	"context"

	"slotkeeper/internal/app/outbox"
	domainreassignment "slotkeeper/internal/domain/reassignment"
	domainrecurrence "slotkeeper/internal/domain/recurrence"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	domainwaitlist "slotkeeper/internal/domain/waitlist"
)

// UnitOfWork coordinates repositories inside a transaction boundary. Events
// written to Outbox become visible only when the unit commits.
type UnitOfWork interface {
	Resources() domainresource.Repository
	Reservations() domainreservation.Repository
	Series() domainrecurrence.Repository
	Waitlist() domainwaitlist.Repository
	Reassignments() domainreassignment.Repository
	Outbox() outbox.Outbox

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

type TxOptions struct {
	ReadOnly bool
}

// Inject lets store specific units (a Mongo session) ride along in ctx.
func Inject(ctx context.Context, unit UnitOfWork) context.Context {
	if injector, ok := unit.(interface {
		InjectContext(context.Context) context.Context
	}); ok {
		return injector.InjectContext(ctx)
	}
	return ctx
}
