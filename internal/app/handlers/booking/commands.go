package booking

import (
	"strings"
	"time"

	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/domain/shared/errs"
)

const (
	bookKey          = "booking.book"
	confirmKey       = "booking.confirm"
	cancelKey        = "booking.cancel"
	completeEndedKey = "booking.sweep.complete_ended"
	availabilityKey  = "booking.availability"
	getKey           = "booking.get"
	listKey          = "booking.list"
)

type BookCommand struct {
	ReservationID   string
	ResourceID      string
	RequesterID     string
	RequesterType   string
	Start           time.Time
	End             time.Time
	JoinWaitlist    bool
	IdempotencyKeyV string
}

func (c BookCommand) Key() string { return bookKey }

func (c BookCommand) ActingRequester() string { return c.RequesterID }

func (c BookCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c BookCommand) ResultPrototype() any { return &dto.BookingResult{} }

func (c BookCommand) Validate() error {
	verr := &errs.ValidationError{}
	if strings.TrimSpace(c.ResourceID) == "" {
		verr.Add("resource_id", "required")
	}
	if strings.TrimSpace(c.RequesterID) == "" {
		verr.Add("requester_id", "required")
	}
	if c.Start.IsZero() || c.End.IsZero() {
		verr.Add("window", "start and end are required")
	} else if !c.End.After(c.Start) {
		verr.Add("window", "end must be after start")
	}
	return verr.OrNil()
}

type ConfirmCommand struct {
	ReservationID string
}

func (c ConfirmCommand) Key() string { return confirmKey }

type CancelCommand struct {
	ReservationID string
	Reason        string
}

func (c CancelCommand) Key() string { return cancelKey }

// CompleteEndedCommand moves confirmed reservations whose window has ended to COMPLETED.
type CompleteEndedCommand struct{}

func (CompleteEndedCommand) Key() string { return completeEndedKey }

type AvailabilityQuery struct {
	ResourceID           string
	Start                time.Time
	End                  time.Time
	RequesterType        string
	ExcludeReservationID string
}

func (q AvailabilityQuery) Key() string { return availabilityKey }

type GetQuery struct {
	ReservationID string
}

func (q GetQuery) Key() string { return getKey }

// ListQuery lists reservations on a resource overlapping [From, To).
type ListQuery struct {
	ResourceID string
	From       time.Time
	To         time.Time
}

func (q ListQuery) Key() string { return listKey }
