package memory

import (
	"context"
	"errors"
	"sync"

	appoutbox "slotkeeper/internal/app/outbox"
	"slotkeeper/internal/app/uow"
	domainreassignment "slotkeeper/internal/domain/reassignment"
	domainrecurrence "slotkeeper/internal/domain/recurrence"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	domainwaitlist "slotkeeper/internal/domain/waitlist"
)

// Factory wires in-memory repositories into a unit-of-work boundary.
type Factory struct {
	ResourcesRepo     domainresource.Repository
	ReservationsRepo  domainreservation.Repository
	SeriesRepo        domainrecurrence.Repository
	WaitlistRepo      domainwaitlist.Repository
	ReassignmentsRepo domainreassignment.Repository
	Outbox            appoutbox.Outbox
}

var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// NewFactory builds a factory over fresh repositories.
func NewFactory(box appoutbox.Outbox) Factory {
	return Factory{
		ResourcesRepo:     NewResourceRepository(),
		ReservationsRepo:  NewReservationRepository(),
		SeriesRepo:        NewSeriesRepository(),
		WaitlistRepo:      NewWaitlistRepository(),
		ReassignmentsRepo: NewReassignmentRepository(),
		Outbox:            box,
	}
}

// Begin starts a unit without isolation. Repository writes apply immediately
// and are undone on Rollback; outbox records are held back until Commit.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.ResourcesRepo == nil || f.ReservationsRepo == nil || f.SeriesRepo == nil || f.WaitlistRepo == nil || f.ReassignmentsRepo == nil {
		return nil, ErrFactoryMisconfigured
	}
	u := &Unit{factory: f, pending: &pendingOutbox{}}
	if !opts.ReadOnly {
		u.journal = &journal{}
	}
	return u, nil
}

type Unit struct {
	factory Factory
	pending *pendingOutbox
	journal *journal
}

// InjectContext lets the repositories journal writes made through ctx.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	if u.journal == nil {
		return ctx
	}
	return context.WithValue(ctx, journalKey{}, u.journal)
}

func (u *Unit) Resources() domainresource.Repository { return u.factory.ResourcesRepo }
func (u *Unit) Reservations() domainreservation.Repository { return u.factory.ReservationsRepo }
func (u *Unit) Series() domainrecurrence.Repository { return u.factory.SeriesRepo }
func (u *Unit) Waitlist() domainwaitlist.Repository { return u.factory.WaitlistRepo }
func (u *Unit) Reassignments() domainreassignment.Repository { return u.factory.ReassignmentsRepo }
func (u *Unit) Outbox() appoutbox.Outbox { return u.pending }

func (u *Unit) Commit(ctx context.Context) error {
	u.journal.discard()
	records := u.pending.take()
	if u.factory.Outbox == nil {
		return nil
	}
	for _, rec := range records {
		if err := u.factory.Outbox.Add(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.pending.take()
	u.journal.undo()
	return nil
}

type journalKey struct{}

// journal holds undo steps for the writes of one unit.
type journal struct {
	mu    sync.Mutex
	steps []func()
}

func journalFrom(ctx context.Context) *journal {
	if ctx == nil {
		return nil
	}
	j, _ := ctx.Value(journalKey{}).(*journal)
	return j
}

func (j *journal) record(step func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.steps = append(j.steps, step)
}

func (j *journal) undo() {
	if j == nil {
		return
	}
	j.mu.Lock()
	steps := j.steps
	j.steps = nil
	j.mu.Unlock()
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
}

func (j *journal) discard() {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.steps = nil
	j.mu.Unlock()
}

// pendingOutbox buffers records for the lifetime of one unit.
type pendingOutbox struct {
	mu      sync.Mutex
	records []appoutbox.EventRecord
}

func (p *pendingOutbox) Add(ctx context.Context, rec appoutbox.EventRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	return nil
}

func (p *pendingOutbox) Flush(ctx context.Context) error { return nil }

func (p *pendingOutbox) take() []appoutbox.EventRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.records
	p.records = nil
	return out
}

var _ uow.UoWFactory = Factory{}
