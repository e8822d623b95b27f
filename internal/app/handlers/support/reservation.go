package support

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"slotkeeper/internal/app/uow"
	domainrecurrence "slotkeeper/internal/domain/recurrence"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/errs"
)

var errReservationMoved = fmt.Errorf("support: reservation moved to another resource: %w", errs.ErrStale)

// WithReservation locks the resource currently holding the reservation and
// runs fn with a fresh copy. A reservation reassigned between the lookup and
// the lock is looked up again once.
func (e *Executor) WithReservation(ctx context.Context, id string, fn func(ctx context.Context, tx *Tx, r *domainreservation.Reservation) error) error {
	reservationID := domainreservation.ReservationID(strings.TrimSpace(id))
	if reservationID == "" {
		return errs.Invalid("reservation_id", "required")
	}
	for attempt := 0; ; attempt++ {
		var resourceID domainresource.ResourceID
		err := Read(ctx, e.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
			r, err := unit.Reservations().ByID(ctx, reservationID)
			if err != nil {
				return err
			}
			resourceID = r.ResourceID
			return nil
		})
		if err != nil {
			return err
		}
		err = e.Run(ctx, ResourceKeys(resourceID), func(ctx context.Context, tx *Tx) error {
			r, err := tx.Reservations().ByID(ctx, reservationID)
			if err != nil {
				return err
			}
			if r.ResourceID != resourceID {
				return errReservationMoved
			}
			return fn(ctx, tx, r)
		})
		if errors.Is(err, errReservationMoved) && attempt == 0 {
			continue
		}
		return err
	}
}

// SyncSeries mirrors a reservation status onto its series instance, if any.
func SyncSeries(ctx context.Context, tx *Tx, r *domainreservation.Reservation, status domainrecurrence.InstanceStatus) error {
	if r.SeriesID == "" {
		return nil
	}
	s, err := tx.Series().ByID(ctx, domainrecurrence.SeriesID(r.SeriesID))
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !s.SyncInstance(string(r.ID), status, r.UpdatedAt) {
		return nil
	}
	if err := tx.Series().Save(ctx, s); err != nil {
		return err
	}
	tx.Track(s)
	return nil
}
