package reservation

import (
	"time"

	"slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/window"
)

type Created struct {
	ReservationID ReservationID
	ResourceID    resource.ResourceID
	RequesterID   string
	Window        window.TimeWindow
	SeriesID      string
	At            time.Time
}

func (e Created) EventName() string     { return "reservation.created" }
func (e Created) AggregateID() string   { return string(e.ReservationID) }
func (e Created) OccurredAt() time.Time { return e.At }

type Confirmed struct {
	ReservationID ReservationID
	ResourceID    resource.ResourceID
	Window        window.TimeWindow
	At            time.Time
}

func (e Confirmed) EventName() string     { return "reservation.confirmed" }
func (e Confirmed) AggregateID() string   { return string(e.ReservationID) }
func (e Confirmed) OccurredAt() time.Time { return e.At }

// Cancelled announces a freed window on ResourceID.
type Cancelled struct {
	ReservationID ReservationID
	ResourceID    resource.ResourceID
	RequesterID   string
	Window        window.TimeWindow
	Reason        string
	At            time.Time
}

func (e Cancelled) EventName() string     { return EventCancelled }
func (e Cancelled) AggregateID() string   { return string(e.ReservationID) }
func (e Cancelled) OccurredAt() time.Time { return e.At }

type Completed struct {
	ReservationID ReservationID
	At            time.Time
}

func (e Completed) EventName() string     { return "reservation.completed" }
func (e Completed) AggregateID() string   { return string(e.ReservationID) }
func (e Completed) OccurredAt() time.Time { return e.At }

// Reassigned frees Window on FromResource.
type Reassigned struct {
	ReservationID ReservationID
	FromResource  resource.ResourceID
	ToResource    resource.ResourceID
	RequestID     string
	RequesterID   string
	Window        window.TimeWindow
	At            time.Time
}

func (e Reassigned) EventName() string     { return EventReassigned }
func (e Reassigned) AggregateID() string   { return string(e.ReservationID) }
func (e Reassigned) OccurredAt() time.Time { return e.At }

const (
	EventCancelled  = "reservation.cancelled"
	EventReassigned = "reservation.reassigned"
)
