package reassignment

import (
	"strings"
	"time"

	"slotkeeper/internal/domain/shared/errs"
)

const (
	findEquivalentsKey  = "reassignment.find_equivalents"
	openKey             = "reassignment.open"
	openForResourceKey  = "reassignment.open_for_resource"
	autoProcessKey      = "reassignment.auto_process"
	autoProcessAllKey   = "reassignment.sweep.auto_process"
	respondKey          = "reassignment.respond"
	cancelKey           = "reassignment.cancel"
	cancelForReservKey  = "reassignment.cancel_for_reservation"
	expireOverdueKey    = "reassignment.sweep.expire_overdue"
	getKey              = "reassignment.get"
	listKey             = "reassignment.list"
	rejectedReason      = "reassignment-rejected"
	expiredReason       = "reassignment-expired"
	reservationGoneNote = "reservation is no longer active on the resource"
)

// FindEquivalentsQuery ranks substitutes for ResourceID that are free over
// [Start, End). Zero RequiredCapacity means the original's capacity.
type FindEquivalentsQuery struct {
	ResourceID           string
	Start                time.Time
	End                  time.Time
	RequiredCapacity     int
	TolerancePercent     int
	RequiredFeatures     []string
	PreferredFeatures    []string
	MaxDistanceMeters    float64
	RequesterType        string
	ExcludeReservationID string
}

func (q FindEquivalentsQuery) Key() string { return findEquivalentsKey }

type OpenCommand struct {
	RequestID                string
	ReservationID            string
	Reason                   string
	PriorityClass            string
	AcceptEquivalent         bool
	AcceptAlternativeTime    bool
	CapacityTolerancePercent int
	RequiredFeatures         []string
	PreferredFeatures        []string
	MaxDistanceMeters        float64
	RequiredCapacity         int
}

func (c OpenCommand) Key() string { return openKey }

func (c OpenCommand) Validate() error {
	if strings.TrimSpace(c.ReservationID) == "" {
		return errs.Invalid("reservation_id", "required")
	}
	return nil
}

// OpenForResourceCommand opens a request for every upcoming reservation on a
// resource that has been taken out of service.
type OpenForResourceCommand struct {
	ResourceID string
	Reason     string
}

func (c OpenForResourceCommand) Key() string { return openForResourceKey }

type AutoProcessCommand struct {
	RequestID string
}

func (c AutoProcessCommand) Key() string { return autoProcessKey }

type AutoProcessPendingCommand struct{}

func (AutoProcessPendingCommand) Key() string { return autoProcessAllKey }

type RespondCommand struct {
	RequestID          string
	Decision           string
	SelectedResourceID string
}

func (c RespondCommand) Key() string { return respondKey }

type CancelCommand struct {
	RequestID string
	Reason    string
}

func (c CancelCommand) Key() string { return cancelKey }

// CancelForReservationCommand withdraws pending requests of a reservation
// that was cancelled.
type CancelForReservationCommand struct {
	ReservationID string
	Reason        string
}

func (c CancelForReservationCommand) Key() string { return cancelForReservKey }

type ExpireOverdueCommand struct{}

func (ExpireOverdueCommand) Key() string { return expireOverdueKey }

type GetQuery struct {
	RequestID string
}

func (q GetQuery) Key() string { return getKey }

type ListQuery struct {
	Status        string
	ReservationID string
}

func (q ListQuery) Key() string { return listKey }
