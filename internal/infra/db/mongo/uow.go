package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"

	appoutbox "slotkeeper/internal/app/outbox"
	"slotkeeper/internal/app/uow"
	domainreassignment "slotkeeper/internal/domain/reassignment"
	domainrecurrence "slotkeeper/internal/domain/recurrence"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	domainwaitlist "slotkeeper/internal/domain/waitlist"
)

// Factory wires Mongo transactions into the generic UnitOfWork interface.
type Factory struct {
	DB *mongo.Database

	ResourcesRepo     domainresource.Repository
	ReservationsRepo  domainreservation.Repository
	SeriesRepo        domainrecurrence.Repository
	WaitlistRepo      domainwaitlist.Repository
	ReassignmentsRepo domainreassignment.Repository
	// Outbox must write through the session in ctx so records commit with
	// the aggregates.
	Outbox appoutbox.Outbox
}

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

// NewFactory builds a factory over the Mongo repositories of db.
func NewFactory(db *mongo.Database, box appoutbox.Outbox) Factory {
	return Factory{
		DB:                db,
		ResourcesRepo:     NewResourceRepository(db),
		ReservationsRepo:  NewReservationRepository(db),
		SeriesRepo:        NewSeriesRepository(db),
		WaitlistRepo:      NewWaitlistRepository(db),
		ReassignmentsRepo: NewReassignmentRepository(db),
		Outbox:            box,
	}
}

// Begin starts a session. Write units also start a transaction; read-only
// units read at majority without one.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	u := &Unit{factory: f, session: session, readOnly: opts.ReadOnly}
	if opts.ReadOnly {
		return u, nil
	}
	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(f.DB.WriteConcern())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return u, nil
}

type Unit struct {
	factory  Factory
	session  mongo.Session
	readOnly bool
}

func (u *Unit) Resources() domainresource.Repository { return u.factory.ResourcesRepo }
func (u *Unit) Reservations() domainreservation.Repository { return u.factory.ReservationsRepo }
func (u *Unit) Series() domainrecurrence.Repository { return u.factory.SeriesRepo }
func (u *Unit) Waitlist() domainwaitlist.Repository { return u.factory.WaitlistRepo }
func (u *Unit) Reassignments() domainreassignment.Repository { return u.factory.ReassignmentsRepo }
func (u *Unit) Outbox() appoutbox.Outbox { return u.factory.Outbox }

func (u *Unit) Commit(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	if u.readOnly {
		return nil
	}
	return u.session.CommitTransaction(ctx)
}

func (u *Unit) Rollback(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	if u.readOnly {
		return nil
	}
	return u.session.AbortTransaction(ctx)
}

// InjectContext ensures Mongo session is available in context for downstream repos.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}

var _ uow.UoWFactory = Factory{}
