// Package waitlist runs the per-resource priority queue: enrollment, offers
// when a window frees up, escalation and expiry.
package waitlist

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
	"slotkeeper/internal/app/policies"
	"slotkeeper/internal/app/uow"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/window"
	domainwaitlist "slotkeeper/internal/domain/waitlist"
)

type Manager struct {
	Exec     *support.Executor
	Detector *conflicts.Detector
	Clock    clock.Clock
	Identity policies.IdentityProvider
	Policy   domainwaitlist.Policy
	Logger   *slog.Logger
	NewID    func() string
}

func (m *Manager) now() time.Time {
	if m.Clock == nil {
		return time.Now().UTC()
	}
	return m.Clock.Now()
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *Manager) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return uuid.NewString()
}

func (m *Manager) requesterClass(ctx context.Context, requesterID, class string) (string, error) {
	if class = strings.TrimSpace(class); class != "" || m.Identity == nil {
		return class, nil
	}
	id, err := m.Identity.Identify(ctx, requesterID)
	if err != nil {
		return "", err
	}
	return id.PriorityClass, nil
}

// Join enrolls a requester. Joining again for the same window returns the
// entry that is already open.
func (m *Manager) Join(ctx context.Context, cmd JoinCommand) (dto.WaitlistEntry, error) {
	w, err := window.New(cmd.Start, cmd.End)
	if err != nil {
		return dto.WaitlistEntry{}, err
	}
	class, err := m.requesterClass(ctx, cmd.RequesterID, cmd.RequesterClass)
	if err != nil {
		return dto.WaitlistEntry{}, err
	}
	entryID := strings.TrimSpace(cmd.EntryID)
	if entryID == "" {
		entryID = m.newID()
	}
	resourceID := domainresource.ResourceID(strings.TrimSpace(cmd.ResourceID))

	var out dto.WaitlistEntry
	err = m.Exec.Run(ctx, support.ResourceKeys(resourceID), func(ctx context.Context, tx *support.Tx) error {
		res, err := tx.Resources().ByID(ctx, resourceID)
		if err != nil {
			return err
		}
		open, err := tx.Waitlist().ListByResource(ctx, resourceID, domainwaitlist.StatusWaiting, domainwaitlist.StatusOffered)
		if err != nil {
			return err
		}
		for _, e := range open {
			if e.RequesterID == cmd.RequesterID && e.Window.Equal(w) {
				out = dto.MapWaitlistEntry(e)
				return nil
			}
		}
		entry, err := domainwaitlist.Join(domainwaitlist.JoinParams{
			ID:             domainwaitlist.EntryID(entryID),
			ResourceID:     res.ID,
			RequesterID:    strings.TrimSpace(cmd.RequesterID),
			RequesterClass: class,
			Window:         w,
			BasePriority:   m.Policy.BasePriority(class) + res.PriorityWeight(class),
			EnrolledAt:     m.now(),
			TTL:            m.Policy.EntryTTL,
		})
		if err != nil {
			return err
		}
		if err := tx.Waitlist().Save(ctx, entry); err != nil {
			return err
		}
		tx.Track(entry)
		out = dto.MapWaitlistEntry(entry)
		return nil
	})
	if err != nil {
		return dto.WaitlistEntry{}, err
	}
	m.logger().Info("waitlist joined", "entry_id", out.ID, "resource_id", out.ResourceID, "priority", out.Priority)
	return out, nil
}

func (m *Manager) Leave(ctx context.Context, cmd LeaveCommand) (dto.WaitlistEntry, error) {
	var out dto.WaitlistEntry
	err := m.withEntry(ctx, cmd.EntryID, func(ctx context.Context, tx *support.Tx, e *domainwaitlist.Entry) error {
		if err := e.Leave(m.now()); err != nil {
			return err
		}
		if err := tx.Waitlist().Save(ctx, e); err != nil {
			return err
		}
		tx.Track(e)
		out = dto.MapWaitlistEntry(e)
		return nil
	})
	return out, err
}

// PromoteNext offers the freed window to the highest priority WAITING entry
// whose window fits inside it and is still free on the calendar. Entries
// overlapping an outstanding offer are passed over. Offers past their
// deadline lapse first. A nil result means no entry qualified.
func (m *Manager) PromoteNext(ctx context.Context, cmd PromoteNextCommand) (*dto.WaitlistEntry, error) {
	freed, err := window.New(cmd.Start, cmd.End)
	if err != nil {
		return nil, err
	}
	resourceID := domainresource.ResourceID(strings.TrimSpace(cmd.ResourceID))
	exclude := domainwaitlist.EntryID(strings.TrimSpace(cmd.ExcludeEntryID))

	var out *dto.WaitlistEntry
	err = m.Exec.Run(ctx, support.ResourceKeys(resourceID), func(ctx context.Context, tx *support.Tx) error {
		out = nil
		now := m.now()
		res, err := tx.Resources().ByID(ctx, resourceID)
		if err != nil {
			return err
		}
		entries, err := tx.Waitlist().ListByResource(ctx, resourceID, domainwaitlist.StatusWaiting, domainwaitlist.StatusOffered)
		if err != nil {
			return err
		}
		var held []window.TimeWindow
		waiting := make([]*domainwaitlist.Entry, 0, len(entries))
		for _, e := range entries {
			if e.Expire(now) {
				if err := m.saveEntry(ctx, tx, e); err != nil {
					return err
				}
				continue
			}
			if e.Lapse(now, m.Policy) {
				if err := m.saveEntry(ctx, tx, e); err != nil {
					return err
				}
			}
			if e.Status == domainwaitlist.StatusExpired {
				continue
			}
			if e.Status == domainwaitlist.StatusOffered {
				held = append(held, e.Window)
				continue
			}
			if e.ID != exclude {
				waiting = append(waiting, e)
			}
		}
		domainwaitlist.Sort(waiting)
		for _, e := range waiting {
			if !e.Fits(freed) || overlapsAny(e.Window, held) {
				continue
			}
			result, err := m.Detector.CheckResource(ctx, tx, res, conflicts.Request{
				Window:        e.Window,
				RequesterType: e.RequesterClass,
				Options:       domainresource.EvalOptions{IgnoreLeadTime: true},
			})
			if err != nil {
				return err
			}
			if !result.OK() {
				continue
			}
			if err := e.Offer(now, m.offerDeadline(now, e)); err != nil {
				return err
			}
			if err := tx.Waitlist().Save(ctx, e); err != nil {
				return err
			}
			tx.Track(e)
			mapped := dto.MapWaitlistEntry(e)
			out = &mapped
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		m.logger().Info("waitlist offer made", "entry_id", out.ID, "resource_id", out.ResourceID, "deadline", *out.OfferDeadline)
	}
	return out, nil
}

// offerDeadline never runs past the start of the wanted window.
func (m *Manager) offerDeadline(now time.Time, e *domainwaitlist.Entry) time.Time {
	deadline := now.Add(m.Policy.OfferResponseWindow)
	if e.Window.Start.Before(deadline) {
		deadline = e.Window.Start
	}
	return deadline
}

// errSlotTaken rolls back an acceptance attempt that found the window booked.
var errSlotTaken = errors.New("waitlist: offered window taken")

// AcceptOffer turns an outstanding offer into a confirmed reservation after
// checking the calendar again. A lapsed offer is demoted and reported as
// expired. A slot found taken is checked once more on fresh state; if it is
// still taken the entry goes back in the queue without penalty and the
// conflict is surfaced.
func (m *Manager) AcceptOffer(ctx context.Context, cmd AcceptOfferCommand) (dto.OfferAcceptance, error) {
	out, err := m.acceptOffer(ctx, cmd.EntryID, false)
	if errors.Is(err, errSlotTaken) {
		out, err = m.acceptOffer(ctx, cmd.EntryID, true)
	}
	if err != nil {
		return dto.OfferAcceptance{}, err
	}
	m.logger().Info("waitlist offer accepted", "entry_id", out.Entry.ID, "reservation_id", out.Reservation.ID)
	return out, nil
}

func (m *Manager) acceptOffer(ctx context.Context, entryID string, final bool) (dto.OfferAcceptance, error) {
	var (
		out     dto.OfferAcceptance
		outcome error
	)
	err := m.withEntry(ctx, entryID, func(ctx context.Context, tx *support.Tx, e *domainwaitlist.Entry) error {
		outcome = nil
		now := m.now()
		if e.Status == domainwaitlist.StatusOffered && now.After(e.OfferDeadline) {
			e.Lapse(now, m.Policy)
			outcome = domainwaitlist.ErrOfferExpired
			return m.saveEntry(ctx, tx, e)
		}
		if e.Status != domainwaitlist.StatusOffered {
			return domainwaitlist.ErrInvalidState
		}
		res, err := tx.Resources().ByID(ctx, e.ResourceID)
		if err != nil {
			return err
		}
		result, err := m.Detector.CheckResource(ctx, tx, res, conflicts.Request{
			Window:        e.Window,
			RequesterType: e.RequesterClass,
			Options:       domainresource.EvalOptions{IgnoreLeadTime: true},
		})
		if err != nil {
			return err
		}
		if !result.OK() {
			if !final {
				return errSlotTaken
			}
			outcome = result.Err()
			if err := e.Withdraw(now); err != nil {
				return err
			}
			return m.saveEntry(ctx, tx, e)
		}
		r, err := domainreservation.New(domainreservation.CreateParams{
			ID:            domainreservation.ReservationID(m.newID()),
			ResourceID:    e.ResourceID,
			RequesterID:   e.RequesterID,
			RequesterType: e.RequesterClass,
			Window:        e.Window,
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}
		if err := r.Confirm(now); err != nil {
			return err
		}
		if err := tx.Reservations().Save(ctx, r); err != nil {
			return err
		}
		if err := e.Accept(string(r.ID), now); err != nil {
			return err
		}
		if err := tx.Waitlist().Save(ctx, e); err != nil {
			return err
		}
		tx.Track(r, e)
		out = dto.OfferAcceptance{Entry: dto.MapWaitlistEntry(e), Reservation: dto.MapReservation(r)}
		return nil
	})
	if err != nil {
		return dto.OfferAcceptance{}, err
	}
	if outcome != nil {
		return dto.OfferAcceptance{}, outcome
	}
	return out, nil
}

// DeclineOffer re-queues the entry with a demotion penalty, or expires it
// once it has used up its offers.
func (m *Manager) DeclineOffer(ctx context.Context, cmd DeclineOfferCommand) (dto.WaitlistEntry, error) {
	var out dto.WaitlistEntry
	err := m.withEntry(ctx, cmd.EntryID, func(ctx context.Context, tx *support.Tx, e *domainwaitlist.Entry) error {
		if err := e.Decline(m.now(), m.Policy); err != nil {
			return err
		}
		out = dto.MapWaitlistEntry(e)
		return m.saveEntry(ctx, tx, e)
	})
	return out, err
}

// EscalatePriority raises every waiting entry to the bonus its wait has
// earned. Bonuses only grow, so overlapping runs are harmless.
func (m *Manager) EscalatePriority(ctx context.Context, _ EscalatePriorityCommand) (dto.SweepReport, error) {
	entries, err := m.listByStatus(ctx, domainwaitlist.StatusWaiting)
	if err != nil {
		return dto.SweepReport{Job: "waitlist.escalate"}, err
	}
	return support.SweepEach(ctx, m.Logger, "waitlist.escalate", entries, entryID, func(ctx context.Context, item *domainwaitlist.Entry) (bool, error) {
		changed := false
		err := m.Exec.Run(ctx, support.ResourceKeys(item.ResourceID), func(ctx context.Context, tx *support.Tx) error {
			e, err := tx.Waitlist().ByID(ctx, item.ID)
			if err != nil {
				return err
			}
			changed = e.Escalate(m.now(), m.Policy)
			if !changed {
				return nil
			}
			return m.saveEntry(ctx, tx, e)
		})
		return changed, err
	}), nil
}

// LapseOffers demotes offers whose response deadline has passed.
func (m *Manager) LapseOffers(ctx context.Context, _ LapseOffersCommand) (dto.SweepReport, error) {
	entries, err := m.listByStatus(ctx, domainwaitlist.StatusOffered)
	if err != nil {
		return dto.SweepReport{Job: "waitlist.lapse"}, err
	}
	now := m.now()
	due := entries[:0]
	for _, e := range entries {
		if now.After(e.OfferDeadline) {
			due = append(due, e)
		}
	}
	return support.SweepEach(ctx, m.Logger, "waitlist.lapse", due, entryID, func(ctx context.Context, item *domainwaitlist.Entry) (bool, error) {
		changed := false
		err := m.withEntry(ctx, string(item.ID), func(ctx context.Context, tx *support.Tx, e *domainwaitlist.Entry) error {
			changed = e.Lapse(m.now(), m.Policy)
			if !changed {
				return nil
			}
			return m.saveEntry(ctx, tx, e)
		})
		return changed, err
	}), nil
}

// ExpireStale closes open entries past their absolute expiry.
func (m *Manager) ExpireStale(ctx context.Context, _ ExpireStaleCommand) (dto.SweepReport, error) {
	entries, err := m.listByStatus(ctx, domainwaitlist.StatusWaiting, domainwaitlist.StatusOffered)
	if err != nil {
		return dto.SweepReport{Job: "waitlist.expire"}, err
	}
	now := m.now()
	due := entries[:0]
	for _, e := range entries {
		if !now.Before(e.ExpiresAt) {
			due = append(due, e)
		}
	}
	return support.SweepEach(ctx, m.Logger, "waitlist.expire", due, entryID, func(ctx context.Context, item *domainwaitlist.Entry) (bool, error) {
		changed := false
		err := m.withEntry(ctx, string(item.ID), func(ctx context.Context, tx *support.Tx, e *domainwaitlist.Entry) error {
			changed = e.Expire(m.now())
			if !changed {
				return nil
			}
			return m.saveEntry(ctx, tx, e)
		})
		return changed, err
	}), nil
}

// PromoteAll keeps offering free windows on the resource until no waiting
// entry qualifies. Used when a resource comes back into service.
func (m *Manager) PromoteAll(ctx context.Context, resourceID string) (int, error) {
	var entries []*domainwaitlist.Entry
	err := support.Read(ctx, m.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		entries, err = unit.Waitlist().ListByResource(ctx, domainresource.ResourceID(resourceID), domainwaitlist.StatusWaiting)
		return err
	})
	if err != nil || len(entries) == 0 {
		return 0, err
	}
	span := entries[0].Window
	for _, e := range entries[1:] {
		if e.Window.Start.Before(span.Start) {
			span.Start = e.Window.Start
		}
		if e.Window.End.After(span.End) {
			span.End = e.Window.End
		}
	}
	offered := 0
	for i := 0; i < maxPromotions; i++ {
		entry, err := m.PromoteNext(ctx, PromoteNextCommand{ResourceID: resourceID, Start: span.Start, End: span.End})
		if err != nil {
			return offered, err
		}
		if entry == nil {
			break
		}
		offered++
	}
	return offered, nil
}

func (m *Manager) List(ctx context.Context, q ListQuery) (dto.WaitlistCollection, error) {
	status := strings.ToUpper(strings.TrimSpace(q.Status))
	var statuses []domainwaitlist.Status
	switch status {
	case "":
		statuses = []domainwaitlist.Status{domainwaitlist.StatusWaiting, domainwaitlist.StatusOffered}
	case allStatusesV:
	default:
		statuses = []domainwaitlist.Status{domainwaitlist.Status(status)}
	}
	if strings.TrimSpace(q.ResourceID) == "" {
		return dto.WaitlistCollection{}, errs.Invalid("resource_id", "required")
	}
	var out dto.WaitlistCollection
	err := support.Read(ctx, m.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		if statuses == nil {
			statuses = []domainwaitlist.Status{
				domainwaitlist.StatusWaiting, domainwaitlist.StatusOffered, domainwaitlist.StatusConfirmed,
				domainwaitlist.StatusExpired, domainwaitlist.StatusCancelled,
			}
		}
		entries, err := unit.Waitlist().ListByResource(ctx, domainresource.ResourceID(q.ResourceID), statuses...)
		if err != nil {
			return err
		}
		domainwaitlist.Sort(entries)
		out = dto.MapWaitlist(entries)
		return nil
	})
	return out, err
}

func (m *Manager) Get(ctx context.Context, q GetEntryQuery) (dto.WaitlistEntry, error) {
	var out dto.WaitlistEntry
	err := support.Read(ctx, m.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		e, err := unit.Waitlist().ByID(ctx, domainwaitlist.EntryID(strings.TrimSpace(q.EntryID)))
		if err != nil {
			return err
		}
		out = dto.MapWaitlistEntry(e)
		return nil
	})
	return out, err
}

// withEntry locks the entry's resource and hands over a fresh copy.
func (m *Manager) withEntry(ctx context.Context, id string, fn func(ctx context.Context, tx *support.Tx, e *domainwaitlist.Entry) error) error {
	entryID := domainwaitlist.EntryID(strings.TrimSpace(id))
	if entryID == "" {
		return errs.Invalid("entry_id", "required")
	}
	var resourceID domainresource.ResourceID
	err := support.Read(ctx, m.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		e, err := unit.Waitlist().ByID(ctx, entryID)
		if err != nil {
			return err
		}
		resourceID = e.ResourceID
		return nil
	})
	if err != nil {
		return err
	}
	return m.Exec.Run(ctx, support.ResourceKeys(resourceID), func(ctx context.Context, tx *support.Tx) error {
		e, err := tx.Waitlist().ByID(ctx, entryID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, e)
	})
}

func (m *Manager) saveEntry(ctx context.Context, tx *support.Tx, e *domainwaitlist.Entry) error {
	if err := tx.Waitlist().Save(ctx, e); err != nil {
		return err
	}
	tx.Track(e)
	return nil
}

func (m *Manager) listByStatus(ctx context.Context, statuses ...domainwaitlist.Status) ([]*domainwaitlist.Entry, error) {
	var entries []*domainwaitlist.Entry
	err := support.Read(ctx, m.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		entries, err = unit.Waitlist().ListByStatus(ctx, statuses...)
		return err
	})
	return entries, err
}

func entryID(e *domainwaitlist.Entry) string { return string(e.ID) }

func overlapsAny(w window.TimeWindow, others []window.TimeWindow) bool {
	for _, o := range others {
		if w.Overlaps(o) {
			return true
		}
	}
	return false
}
