package waitlist

import (
	"context"
	"fmt"
	"sort"
	"time"

	"slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/events"
	"slotkeeper/internal/domain/shared/window"
)

var (
	ErrInvalidState     = fmt.Errorf("waitlist: %w", errs.ErrInvalidStateTransition)
	ErrNotFound         = fmt.Errorf("waitlist: %w", errs.ErrNotFound)
	ErrOfferExpired     = fmt.Errorf("waitlist: offer response window closed: %w", errs.ErrDeadlineExpired)
	ErrConcurrentUpdate = fmt.Errorf("waitlist: %w", errs.ErrStale)
)

type EntryID string

type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusOffered   Status = "OFFERED"
	StatusConfirmed Status = "CONFIRMED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Open() bool {
	return s == StatusWaiting || s == StatusOffered
}

type Entry struct {
	ID              EntryID
	ResourceID      resource.ResourceID
	RequesterID     string
	RequesterClass  string
	Window          window.TimeWindow
	BasePriority    int
	EscalationBonus int
	Penalty         int
	EnrolledAt      time.Time
	ExpiresAt       time.Time
	Status          Status
	OfferCount      int
	OfferDeadline   time.Time
	ReservationID   string
	UpdatedAt       time.Time
	Version         int64
	events.Recorder
}

type Repository interface {
	ByID(ctx context.Context, id EntryID) (*Entry, error)
	Save(ctx context.Context, e *Entry) error
	// ListByResource returns entries for the resource in any of statuses.
	ListByResource(ctx context.Context, resourceID resource.ResourceID, statuses ...Status) ([]*Entry, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Entry, error)
}

type JoinParams struct {
	ID             EntryID
	ResourceID     resource.ResourceID
	RequesterID    string
	RequesterClass string
	Window         window.TimeWindow
	BasePriority   int
	EnrolledAt     time.Time
	TTL            time.Duration
}

// Join enrolls a requester. The entry expires after TTL or when the desired
// window starts, whichever comes first.
func Join(params JoinParams) (*Entry, error) {
	verr := &errs.ValidationError{}
	if params.ID == "" {
		verr.Add("id", "required")
	}
	if params.ResourceID == "" {
		verr.Add("resource_id", "required")
	}
	if params.RequesterID == "" {
		verr.Add("requester_id", "required")
	}
	if err := params.Window.Validate(); err != nil {
		verr.Add("window", err.Error())
	}
	if verr.HasErrors() {
		return nil, verr
	}
	enrolled := params.EnrolledAt.UTC()
	if !params.Window.Start.After(enrolled) {
		return nil, errs.Invalid("window", "must start in the future")
	}
	expires := params.Window.Start
	if params.TTL > 0 && enrolled.Add(params.TTL).Before(expires) {
		expires = enrolled.Add(params.TTL)
	}
	e := &Entry{
		ID:             params.ID,
		ResourceID:     params.ResourceID,
		RequesterID:    params.RequesterID,
		RequesterClass: params.RequesterClass,
		Window:         params.Window,
		BasePriority:   params.BasePriority,
		EnrolledAt:     enrolled,
		ExpiresAt:      expires,
		Status:         StatusWaiting,
		UpdatedAt:      enrolled,
	}
	e.Record(Joined{EntryID: e.ID, ResourceID: e.ResourceID, RequesterID: e.RequesterID, Window: e.Window, Priority: e.Priority(), At: enrolled})
	return e, nil
}

// Priority is base + escalation bonus - demotion penalty.
func (e *Entry) Priority() int {
	return e.BasePriority + e.EscalationBonus - e.Penalty
}

// Fits reports whether the desired window lies inside the freed one.
func (e *Entry) Fits(freed window.TimeWindow) bool {
	return freed.Contains(e.Window)
}

// Escalate raises the bonus to what the elapsed wait has earned. It never
// lowers it, so running it repeatedly is harmless.
func (e *Entry) Escalate(now time.Time, policy Policy) bool {
	if e.Status != StatusWaiting {
		return false
	}
	bonus := policy.BonusAt(e.EnrolledAt, now)
	if bonus <= e.EscalationBonus {
		return false
	}
	e.EscalationBonus = bonus
	e.UpdatedAt = now.UTC()
	return true
}

// Offer hands the slot to this entry until deadline.
func (e *Entry) Offer(now, deadline time.Time) error {
	if e.Status != StatusWaiting {
		return ErrInvalidState
	}
	e.Status = StatusOffered
	e.OfferCount++
	e.OfferDeadline = deadline.UTC()
	e.UpdatedAt = now.UTC()
	e.Record(Offered{
		EntryID:     e.ID,
		ResourceID:  e.ResourceID,
		RequesterID: e.RequesterID,
		Window:      e.Window,
		Deadline:    e.OfferDeadline,
		At:          e.UpdatedAt,
	})
	return nil
}

// Accept converts an outstanding offer. Deadlines are checked lazily here.
func (e *Entry) Accept(reservationID string, now time.Time) error {
	if e.Status != StatusOffered {
		return ErrInvalidState
	}
	if now.After(e.OfferDeadline) {
		return ErrOfferExpired
	}
	e.Status = StatusConfirmed
	e.ReservationID = reservationID
	e.UpdatedAt = now.UTC()
	e.Record(OfferAccepted{EntryID: e.ID, ResourceID: e.ResourceID, RequesterID: e.RequesterID, ReservationID: reservationID, At: e.UpdatedAt})
	return nil
}

// Decline returns the entry to the queue with a penalty, or expires it once
// it has used up its offers.
func (e *Entry) Decline(now time.Time, policy Policy) error {
	if e.Status != StatusOffered {
		return ErrInvalidState
	}
	e.demote(now, policy, "declined")
	return nil
}

// Lapse treats an unanswered offer past its deadline like a decline.
func (e *Entry) Lapse(now time.Time, policy Policy) bool {
	if e.Status != StatusOffered || !now.After(e.OfferDeadline) {
		return false
	}
	e.demote(now, policy, "lapsed")
	return true
}

// Withdraw puts an offered entry back without penalty, used when the slot
// turned out to be taken by the time it was accepted.
func (e *Entry) Withdraw(now time.Time) error {
	if e.Status != StatusOffered {
		return ErrInvalidState
	}
	e.Status = StatusWaiting
	e.OfferDeadline = time.Time{}
	e.UpdatedAt = now.UTC()
	return nil
}

func (e *Entry) demote(now time.Time, policy Policy, cause string) {
	e.UpdatedAt = now.UTC()
	e.OfferDeadline = time.Time{}
	if policy.MaxOffers > 0 && e.OfferCount >= policy.MaxOffers {
		e.Status = StatusExpired
		e.Record(Expired{EntryID: e.ID, ResourceID: e.ResourceID, RequesterID: e.RequesterID, Window: e.Window, Cause: "offers exhausted", HeldOffer: true, At: e.UpdatedAt})
		return
	}
	e.Status = StatusWaiting
	e.Penalty += policy.DemotionPenalty
	e.Record(Demoted{EntryID: e.ID, ResourceID: e.ResourceID, Window: e.Window, Cause: cause, Penalty: e.Penalty, At: e.UpdatedAt})
}

// Expire moves open entries past their absolute expiry to EXPIRED.
func (e *Entry) Expire(now time.Time) bool {
	if !e.Status.Open() || now.Before(e.ExpiresAt) {
		return false
	}
	wasOffered := e.Status == StatusOffered
	e.Status = StatusExpired
	e.UpdatedAt = now.UTC()
	e.Record(Expired{EntryID: e.ID, ResourceID: e.ResourceID, RequesterID: e.RequesterID, Window: e.Window, Cause: "stale", HeldOffer: wasOffered, At: e.UpdatedAt})
	return true
}

// Leave withdraws the requester from the queue.
func (e *Entry) Leave(now time.Time) error {
	if !e.Status.Open() {
		return ErrInvalidState
	}
	wasOffered := e.Status == StatusOffered
	e.Status = StatusCancelled
	e.UpdatedAt = now.UTC()
	e.Record(Left{EntryID: e.ID, ResourceID: e.ResourceID, Window: e.Window, HeldOffer: wasOffered, At: e.UpdatedAt})
	return nil
}

// Compare orders entries by priority descending then enrollment ascending.
// The id breaks remaining ties so sorting is deterministic.
func Compare(a, b *Entry) int {
	if pa, pb := a.Priority(), b.Priority(); pa != pb {
		if pa > pb {
			return -1
		}
		return 1
	}
	if !a.EnrolledAt.Equal(b.EnrolledAt) {
		if a.EnrolledAt.Before(b.EnrolledAt) {
			return -1
		}
		return 1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

func Sort(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return Compare(entries[i], entries[j]) < 0 })
}

// NextFit returns the best WAITING entry whose window fits in freed.
func NextFit(entries []*Entry, freed window.TimeWindow) *Entry {
	candidates := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e.Status == StatusWaiting && e.Fits(freed) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	Sort(candidates)
	return candidates[0]
}
