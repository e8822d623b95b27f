package dto

import (
	"time"

	domainreservation "slotkeeper/internal/domain/reservation"
	"slotkeeper/internal/domain/shared/errs"
)

type Reservation struct {
	ID            string    `json:"id"`
	ResourceID    string    `json:"resource_id"`
	RequesterID   string    `json:"requester_id"`
	RequesterType string    `json:"requester_type,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Status        string    `json:"status"`
	SeriesID      string    `json:"series_id,omitempty"`
	InstanceIndex int       `json:"instance_index,omitempty"`
	CancelReason  string    `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ReservationCollection struct {
	Items []Reservation `json:"items"`
}

// BookingResult carries either the new reservation or, when the caller asked
// to queue on conflict, the waiting list entry that was created instead.
type BookingResult struct {
	Reservation *Reservation   `json:"reservation,omitempty"`
	Waitlisted  *WaitlistEntry `json:"waitlisted,omitempty"`
	Reasons     []string       `json:"reasons,omitempty"`
}

// Availability is the outcome of a dry-run conflict check.
type Availability struct {
	ResourceID     string    `json:"resource_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Available      bool      `json:"available"`
	Reasons        []string  `json:"reasons"`
	ConflictingIDs []string  `json:"conflicting_ids"`
}

func MapReservation(r *domainreservation.Reservation) Reservation {
	return Reservation{
		ID:            string(r.ID),
		ResourceID:    string(r.ResourceID),
		RequesterID:   r.RequesterID,
		RequesterType: r.RequesterType,
		Start:         r.Window.Start,
		End:           r.Window.End,
		Status:        string(r.Status),
		SeriesID:      r.SeriesID,
		InstanceIndex: r.InstanceIndex,
		CancelReason:  r.CancelReason,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func MapReservations(items []*domainreservation.Reservation) ReservationCollection {
	out := make([]Reservation, 0, len(items))
	for _, r := range items {
		out = append(out, MapReservation(r))
	}
	return ReservationCollection{Items: out}
}

func MapReasons(reasons []errs.ConflictReason) []string {
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, string(r))
	}
	return out
}
