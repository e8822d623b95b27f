// Package booking places, confirms, cancels and completes single reservations.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"slotkeeper/internal/app/clock"
	"slotkeeper/internal/app/conflicts"
	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/handlers/support"
	"slotkeeper/internal/app/handlers/waitlist"
	"slotkeeper/internal/app/policies"
	"slotkeeper/internal/app/uow"
	domainrecurrence "slotkeeper/internal/domain/recurrence"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/window"
)

// Policy tunes the booking flow.
type Policy struct {
	// AutoConfirm books straight into CONFIRMED instead of PENDING.
	AutoConfirm bool
	LockTimeout time.Duration
}

// WaitlistJoiner enrolls a requester whose window is taken.
type WaitlistJoiner interface {
	Join(ctx context.Context, cmd waitlist.JoinCommand) (dto.WaitlistEntry, error)
}

type Service struct {
	Exec     *support.Executor
	Detector *conflicts.Detector
	Clock    clock.Clock
	Identity policies.IdentityProvider
	Waitlist WaitlistJoiner
	Policy   Policy
	Logger   *slog.Logger
	NewID    func() string
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) requesterType(ctx context.Context, requesterID, given string) (string, error) {
	if given = strings.TrimSpace(given); given != "" || s.Identity == nil {
		return given, nil
	}
	id, err := s.Identity.Identify(ctx, requesterID)
	if err != nil {
		return "", err
	}
	return id.PriorityClass, nil
}

// Book checks the window under the resource lock and records a reservation.
// When the only obstacle is another reservation and the caller asked for it,
// the requester is put on the waiting list and the result says so.
func (s *Service) Book(ctx context.Context, cmd BookCommand) (*dto.BookingResult, error) {
	w, err := window.New(cmd.Start, cmd.End)
	if err != nil {
		return nil, err
	}
	requesterType, err := s.requesterType(ctx, cmd.RequesterID, cmd.RequesterType)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(cmd.ReservationID)
	if id == "" {
		if s.NewID != nil {
			id = s.NewID()
		} else {
			id = uuid.NewString()
		}
	}
	resourceID := domainresource.ResourceID(strings.TrimSpace(cmd.ResourceID))

	var out *dto.BookingResult
	err = s.Exec.Run(ctx, support.ResourceKeys(resourceID), func(ctx context.Context, tx *support.Tx) error {
		if _, err := tx.Reservations().ByID(ctx, domainreservation.ReservationID(id)); err == nil {
			return errs.Invalid("reservation_id", "already exists")
		} else if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		res, err := tx.Resources().ByID(ctx, resourceID)
		if err != nil {
			return err
		}
		result, err := s.Detector.CheckResource(ctx, tx, res, conflicts.Request{Window: w, RequesterType: requesterType})
		if err != nil {
			return err
		}
		if err := result.Err(); err != nil {
			return err
		}
		now := s.now()
		r, err := domainreservation.New(domainreservation.CreateParams{
			ID:            domainreservation.ReservationID(id),
			ResourceID:    res.ID,
			RequesterID:   strings.TrimSpace(cmd.RequesterID),
			RequesterType: requesterType,
			Window:        w,
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}
		if s.Policy.AutoConfirm {
			if err := r.Confirm(now); err != nil {
				return err
			}
		}
		if err := tx.Reservations().Save(ctx, r); err != nil {
			return err
		}
		tx.Track(r)
		mapped := dto.MapReservation(r)
		out = &dto.BookingResult{Reservation: &mapped}
		return nil
	})

	var conflict *errs.ConflictError
	if errors.As(err, &conflict) && cmd.JoinWaitlist && conflict.OnlyReserved() && s.Waitlist != nil {
		entry, joinErr := s.Waitlist.Join(ctx, waitlist.JoinCommand{
			ResourceID:     string(resourceID),
			RequesterID:    cmd.RequesterID,
			RequesterClass: requesterType,
			Start:          w.Start,
			End:            w.End,
		})
		if joinErr != nil {
			return nil, joinErr
		}
		s.logger().Info("booking queued on waiting list", "resource_id", resourceID, "entry_id", entry.ID, "conflicting", conflict.ConflictingIDs)
		return &dto.BookingResult{Waitlisted: &entry, Reasons: dto.MapReasons(conflict.Reasons)}, nil
	}
	if err != nil {
		return nil, err
	}
	s.logger().Info("reservation booked", "reservation_id", out.Reservation.ID, "resource_id", resourceID, "status", out.Reservation.Status)
	return out, nil
}

// Confirm is idempotent for CONFIRMED reservations.
func (s *Service) Confirm(ctx context.Context, cmd ConfirmCommand) (dto.Reservation, error) {
	var out dto.Reservation
	err := s.Exec.WithReservation(ctx, cmd.ReservationID, func(ctx context.Context, tx *support.Tx, r *domainreservation.Reservation) error {
		if r.Status == domainreservation.StatusConfirmed {
			out = dto.MapReservation(r)
			return nil
		}
		if err := r.Confirm(s.now()); err != nil {
			return err
		}
		if err := tx.Reservations().Save(ctx, r); err != nil {
			return err
		}
		tx.Track(r)
		out = dto.MapReservation(r)
		return support.SyncSeries(ctx, tx, r, domainrecurrence.InstanceConfirmed)
	})
	return out, err
}

// Cancel frees the window. Waiting list promotion reacts to the emitted event.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (dto.Reservation, error) {
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = "requester-cancelled"
	}
	var out dto.Reservation
	err := s.Exec.WithReservation(ctx, cmd.ReservationID, func(ctx context.Context, tx *support.Tx, r *domainreservation.Reservation) error {
		if err := r.Cancel(reason, s.now()); err != nil {
			return err
		}
		if err := tx.Reservations().Save(ctx, r); err != nil {
			return err
		}
		tx.Track(r)
		out = dto.MapReservation(r)
		return support.SyncSeries(ctx, tx, r, domainrecurrence.InstanceCancelled)
	})
	if err != nil {
		return dto.Reservation{}, err
	}
	s.logger().Info("reservation cancelled", "reservation_id", out.ID, "resource_id", out.ResourceID, "reason", reason)
	return out, nil
}

// CompleteEnded closes confirmed reservations whose window is over.
func (s *Service) CompleteEnded(ctx context.Context, _ CompleteEndedCommand) (dto.SweepReport, error) {
	const job = "reservations.complete"
	var due []*domainreservation.Reservation
	err := support.Read(ctx, s.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		due, err = unit.Reservations().ListByStatus(ctx, domainreservation.StatusConfirmed, s.now())
		return err
	})
	if err != nil {
		return dto.SweepReport{Job: job}, err
	}
	return support.SweepEach(ctx, s.Logger, job, due, reservationID, func(ctx context.Context, item *domainreservation.Reservation) (bool, error) {
		changed := false
		err := s.Exec.WithReservation(ctx, string(item.ID), func(ctx context.Context, tx *support.Tx, r *domainreservation.Reservation) error {
			if r.Status != domainreservation.StatusConfirmed {
				return nil
			}
			if err := r.Complete(s.now()); err != nil {
				return err
			}
			changed = true
			if err := tx.Reservations().Save(ctx, r); err != nil {
				return err
			}
			tx.Track(r)
			return nil
		})
		return changed, err
	}), nil
}

// CheckAvailability reports every reason the window would be rejected
// without booking anything.
func (s *Service) CheckAvailability(ctx context.Context, q AvailabilityQuery) (dto.Availability, error) {
	w, err := window.New(q.Start, q.End)
	if err != nil {
		return dto.Availability{}, err
	}
	requesterType := strings.TrimSpace(q.RequesterType)
	if requesterType == "" {
		if id, ok := policies.IdentityFromContext(ctx); ok {
			requesterType = id.PriorityClass
		}
	}
	var out dto.Availability
	err = support.Read(ctx, s.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		result, err := s.Detector.Check(ctx, unit, conflicts.Request{
			ResourceID:           domainresource.ResourceID(strings.TrimSpace(q.ResourceID)),
			Window:               w,
			ExcludeReservationID: domainreservation.ReservationID(strings.TrimSpace(q.ExcludeReservationID)),
			RequesterType:        requesterType,
		})
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(result.Conflicts))
		for _, r := range result.Conflicts {
			ids = append(ids, string(r.ID))
		}
		out = dto.Availability{
			ResourceID:     string(result.ResourceID),
			Start:          w.Start,
			End:            w.End,
			Available:      result.OK(),
			Reasons:        dto.MapReasons(result.Reasons),
			ConflictingIDs: ids,
		}
		return nil
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, q GetQuery) (dto.Reservation, error) {
	var out dto.Reservation
	err := support.Read(ctx, s.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		r, err := unit.Reservations().ByID(ctx, domainreservation.ReservationID(strings.TrimSpace(q.ReservationID)))
		if err != nil {
			return err
		}
		out = dto.MapReservation(r)
		return nil
	})
	return out, err
}

func (s *Service) List(ctx context.Context, q ListQuery) (dto.ReservationCollection, error) {
	if strings.TrimSpace(q.ResourceID) == "" {
		return dto.ReservationCollection{}, errs.Invalid("resource_id", "required")
	}
	w, err := window.New(q.From, q.To)
	if err != nil {
		return dto.ReservationCollection{}, err
	}
	var out dto.ReservationCollection
	err = support.Read(ctx, s.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		items, err := unit.Reservations().ListByResource(ctx, domainresource.ResourceID(strings.TrimSpace(q.ResourceID)), w)
		if err != nil {
			return err
		}
		out = dto.MapReservations(items)
		return nil
	})
	return out, err
}

func reservationID(r *domainreservation.Reservation) string { return string(r.ID) }
