package waitlist

import (
	"time"

	"slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/window"
)

type Joined struct {
	EntryID     EntryID
	ResourceID  resource.ResourceID
	RequesterID string
	Window      window.TimeWindow
	Priority    int
	At          time.Time
}

func (e Joined) EventName() string     { return "waitlist.joined" }
func (e Joined) AggregateID() string   { return string(e.EntryID) }
func (e Joined) OccurredAt() time.Time { return e.At }

type Offered struct {
	EntryID     EntryID
	ResourceID  resource.ResourceID
	RequesterID string
	Window      window.TimeWindow
	Deadline    time.Time
	At          time.Time
}

func (e Offered) EventName() string     { return EventOffered }
func (e Offered) AggregateID() string   { return string(e.EntryID) }
func (e Offered) OccurredAt() time.Time { return e.At }

type OfferAccepted struct {
	EntryID       EntryID
	ResourceID    resource.ResourceID
	RequesterID   string
	ReservationID string
	At            time.Time
}

func (e OfferAccepted) EventName() string     { return "waitlist.offer_accepted" }
func (e OfferAccepted) AggregateID() string   { return string(e.EntryID) }
func (e OfferAccepted) OccurredAt() time.Time { return e.At }

// Demoted is recorded when an offer is declined or lapses and the entry re-queues.
type Demoted struct {
	EntryID    EntryID
	ResourceID resource.ResourceID
	Window     window.TimeWindow
	Cause      string
	Penalty    int
	At         time.Time
}

func (e Demoted) EventName() string     { return EventDemoted }
func (e Demoted) AggregateID() string   { return string(e.EntryID) }
func (e Demoted) OccurredAt() time.Time { return e.At }

type Expired struct {
	EntryID     EntryID
	ResourceID  resource.ResourceID
	RequesterID string
	Window      window.TimeWindow
	Cause       string
	HeldOffer   bool
	At          time.Time
}

func (e Expired) EventName() string     { return EventExpired }
func (e Expired) AggregateID() string   { return string(e.EntryID) }
func (e Expired) OccurredAt() time.Time { return e.At }

type Left struct {
	EntryID    EntryID
	ResourceID resource.ResourceID
	Window     window.TimeWindow
	HeldOffer  bool
	At         time.Time
}

func (e Left) EventName() string     { return EventLeft }
func (e Left) AggregateID() string   { return string(e.EntryID) }
func (e Left) OccurredAt() time.Time { return e.At }

const (
	EventOffered = "waitlist.offered"
	EventDemoted = "waitlist.demoted"
	EventExpired = "waitlist.expired"
	EventLeft    = "waitlist.left"
)
