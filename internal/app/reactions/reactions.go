// Package reactions subscribes the scheduling services to domain events.
// A cancelled or moved reservation frees a window that the waiting list may
// fill; a resource leaving service displaces its reservations.
package reactions

import (
	"context"
	"log/slog"

	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/handlers/reassignment"
	"slotkeeper/internal/app/handlers/waitlist"
	"slotkeeper/internal/app/outbox"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/window"
	domainwaitlist "slotkeeper/internal/domain/waitlist"
)

const reservationCancelledNote = "reservation-cancelled"

type Promoter interface {
	PromoteNext(ctx context.Context, cmd waitlist.PromoteNextCommand) (*dto.WaitlistEntry, error)
	PromoteAll(ctx context.Context, resourceID string) (int, error)
}

type Displacer interface {
	OpenForResource(ctx context.Context, cmd reassignment.OpenForResourceCommand) (dto.SweepReport, error)
	CancelForReservation(ctx context.Context, cmd reassignment.CancelForReservationCommand) (dto.SweepReport, error)
}

type Reactions struct {
	Waitlist     Promoter
	Reassignment Displacer
	Logger       *slog.Logger
}

// Register subscribes every reaction on router.
func (r *Reactions) Register(router *outbox.Router) {
	router.Subscribe(domainreservation.EventCancelled, r.onReservationCancelled)
	router.Subscribe(domainreservation.EventReassigned, r.onReservationReassigned)
	router.Subscribe(domainwaitlist.EventDemoted, r.onEntryDemoted)
	router.Subscribe(domainwaitlist.EventExpired, r.onEntryExpired)
	router.Subscribe(domainwaitlist.EventLeft, r.onEntryLeft)
	router.Subscribe(domainresource.EventStatusChanged, r.onResourceStatusChanged)
}

func (r *Reactions) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Reactions) onReservationCancelled(ctx context.Context, rec outbox.EventRecord) error {
	ev, err := outbox.Decode[domainreservation.Cancelled](rec)
	if err != nil {
		return err
	}
	if r.Reassignment != nil {
		if _, err := r.Reassignment.CancelForReservation(ctx, reassignment.CancelForReservationCommand{
			ReservationID: string(ev.ReservationID),
			Reason:        reservationCancelledNote,
		}); err != nil {
			return err
		}
	}
	return r.promote(ctx, ev.ResourceID, ev.Window, "")
}

func (r *Reactions) onReservationReassigned(ctx context.Context, rec outbox.EventRecord) error {
	ev, err := outbox.Decode[domainreservation.Reassigned](rec)
	if err != nil {
		return err
	}
	return r.promote(ctx, ev.FromResource, ev.Window, "")
}

// onEntryDemoted hands a declined or lapsed offer to the next entry in line.
func (r *Reactions) onEntryDemoted(ctx context.Context, rec outbox.EventRecord) error {
	ev, err := outbox.Decode[domainwaitlist.Demoted](rec)
	if err != nil {
		return err
	}
	return r.promote(ctx, ev.ResourceID, ev.Window, string(ev.EntryID))
}

func (r *Reactions) onEntryExpired(ctx context.Context, rec outbox.EventRecord) error {
	ev, err := outbox.Decode[domainwaitlist.Expired](rec)
	if err != nil {
		return err
	}
	if !ev.HeldOffer {
		return nil
	}
	return r.promote(ctx, ev.ResourceID, ev.Window, string(ev.EntryID))
}

func (r *Reactions) onEntryLeft(ctx context.Context, rec outbox.EventRecord) error {
	ev, err := outbox.Decode[domainwaitlist.Left](rec)
	if err != nil {
		return err
	}
	if !ev.HeldOffer {
		return nil
	}
	return r.promote(ctx, ev.ResourceID, ev.Window, string(ev.EntryID))
}

func (r *Reactions) onResourceStatusChanged(ctx context.Context, rec outbox.EventRecord) error {
	ev, err := outbox.Decode[domainresource.StatusChanged](rec)
	if err != nil {
		return err
	}
	switch {
	case ev.To.Displacing() && r.Reassignment != nil:
		report, err := r.Reassignment.OpenForResource(ctx, reassignment.OpenForResourceCommand{
			ResourceID: string(ev.ResourceID),
			Reason:     string(ev.To),
		})
		if err != nil {
			return err
		}
		r.logger().InfoContext(ctx, "reservations displaced", "resource_id", ev.ResourceID, "status", ev.To, "requests", report.Changed, "failed", report.Failed)
	case ev.To.Bookable() && r.Waitlist != nil:
		offered, err := r.Waitlist.PromoteAll(ctx, string(ev.ResourceID))
		if err != nil {
			return err
		}
		if offered > 0 {
			r.logger().InfoContext(ctx, "waitlist offers after reactivation", "resource_id", ev.ResourceID, "offers", offered)
		}
	}
	return nil
}

func (r *Reactions) promote(ctx context.Context, resourceID domainresource.ResourceID, w window.TimeWindow, exclude string) error {
	if r.Waitlist == nil {
		return nil
	}
	entry, err := r.Waitlist.PromoteNext(ctx, waitlist.PromoteNextCommand{
		ResourceID:     string(resourceID),
		Start:          w.Start,
		End:            w.End,
		ExcludeEntryID: exclude,
	})
	if err != nil {
		return err
	}
	if entry != nil {
		r.logger().InfoContext(ctx, "freed window offered", "resource_id", resourceID, "entry_id", entry.ID)
	}
	return nil
}
