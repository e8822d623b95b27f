package reassignment

import (
	"time"

	"slotkeeper/internal/domain/reservation"
	"slotkeeper/internal/domain/resource"
)

type Requested struct {
	RequestID     RequestID
	ReservationID reservation.ReservationID
	ResourceID    resource.ResourceID
	RequesterID   string
	Reason        Reason
	Deadline      time.Time
	At            time.Time
}

func (e Requested) EventName() string     { return EventRequested }
func (e Requested) AggregateID() string   { return string(e.RequestID) }
func (e Requested) OccurredAt() time.Time { return e.At }

type AutoApproved struct {
	RequestID     RequestID
	ReservationID reservation.ReservationID
	RequesterID   string
	ResourceID    resource.ResourceID
	At            time.Time
}

func (e AutoApproved) EventName() string     { return EventAutoApproved }
func (e AutoApproved) AggregateID() string   { return string(e.RequestID) }
func (e AutoApproved) OccurredAt() time.Time { return e.At }

type Accepted struct {
	RequestID     RequestID
	ReservationID reservation.ReservationID
	ResourceID    resource.ResourceID
	At            time.Time
}

func (e Accepted) EventName() string     { return "reassignment.accepted" }
func (e Accepted) AggregateID() string   { return string(e.RequestID) }
func (e Accepted) OccurredAt() time.Time { return e.At }

type Rejected struct {
	RequestID     RequestID
	ReservationID reservation.ReservationID
	At            time.Time
}

func (e Rejected) EventName() string     { return "reassignment.rejected" }
func (e Rejected) AggregateID() string   { return string(e.RequestID) }
func (e Rejected) OccurredAt() time.Time { return e.At }

type Expired struct {
	RequestID     RequestID
	ReservationID reservation.ReservationID
	RequesterID   string
	Fallback      Fallback
	ResourceID    resource.ResourceID
	At            time.Time
}

func (e Expired) EventName() string     { return EventExpired }
func (e Expired) AggregateID() string   { return string(e.RequestID) }
func (e Expired) OccurredAt() time.Time { return e.At }

type CancelledEvent struct {
	RequestID     RequestID
	ReservationID reservation.ReservationID
	Reason        string
	At            time.Time
}

func (e CancelledEvent) EventName() string     { return "reassignment.cancelled" }
func (e CancelledEvent) AggregateID() string   { return string(e.RequestID) }
func (e CancelledEvent) OccurredAt() time.Time { return e.At }

const (
	EventRequested    = "reassignment.requested"
	EventAutoApproved = "reassignment.auto_approved"
	EventExpired      = "reassignment.expired"
)
