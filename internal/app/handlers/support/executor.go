package support

import (
	"context"
	"errors"
	"time"

	"slotkeeper/internal/app/lock"
	"slotkeeper/internal/app/outbox"
	"slotkeeper/internal/app/uow"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/events"
)

const defaultLockTimeout = 5 * time.Second

var ErrExecutorMisconfigured = errors.New("support: executor requires a unit of work factory")

// Tx is the write scope handed to command bodies. Aggregates passed to Track
// have their pending events written to the unit's outbox before commit.
type Tx struct {
	uow.UnitOfWork
	tracked []events.Source
}

func (t *Tx) Track(sources ...events.Source) {
	t.tracked = append(t.tracked, sources...)
}

// Executor runs a command body under per-resource locks inside one unit of
// work. Locks are held until the unit commits so a conflict check and the
// write that depends on it cannot interleave with another writer.
type Executor struct {
	Factory     uow.UoWFactory
	Locker      lock.Locker
	Encoder     outbox.EventEncoder
	LockTimeout time.Duration
}

// Run executes fn once more if the first attempt lost an optimistic version race.
func (e *Executor) Run(ctx context.Context, keys []string, fn func(ctx context.Context, tx *Tx) error) error {
	err := e.runOnce(ctx, keys, fn)
	if errors.Is(err, errs.ErrStale) {
		err = e.runOnce(ctx, keys, fn)
	}
	return err
}

func (e *Executor) runOnce(ctx context.Context, keys []string, fn func(ctx context.Context, tx *Tx) error) error {
	if e.Factory == nil {
		return ErrExecutorMisconfigured
	}
	if e.Locker != nil && len(keys) > 0 {
		lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout())
		release, err := e.Locker.Acquire(lockCtx, keys...)
		cancel()
		if err != nil {
			return err
		}
		defer release()
	}

	unit, err := e.Factory.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return err
	}
	execCtx := uow.ContextWithUnitOfWork(uow.Inject(ctx, unit), unit)
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(execCtx)
		}
	}()

	tx := &Tx{UnitOfWork: unit}
	if err := fn(execCtx, tx); err != nil {
		return err
	}
	var pending []events.DomainEvent
	for _, src := range tx.tracked {
		pending = append(pending, src.Drain()...)
	}
	if err := outbox.RecordDomainEvents(execCtx, unit.Outbox(), e.Encoder, pending); err != nil {
		return err
	}
	if err := unit.Commit(execCtx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (e *Executor) lockTimeout() time.Duration {
	if e.LockTimeout > 0 {
		return e.LockTimeout
	}
	return defaultLockTimeout
}

// ResourceKeys maps resource ids to lock keys.
func ResourceKeys[ID ~string](ids ...ID) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, lock.ResourceKey(string(id)))
	}
	return keys
}
