package dto

import (
	"time"

	domainwaitlist "slotkeeper/internal/domain/waitlist"
)

type WaitlistEntry struct {
	ID              string     `json:"id"`
	ResourceID      string     `json:"resource_id"`
	RequesterID     string     `json:"requester_id"`
	RequesterClass  string     `json:"requester_class"`
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	Priority        int        `json:"priority"`
	BasePriority    int        `json:"base_priority"`
	EscalationBonus int        `json:"escalation_bonus"`
	Penalty         int        `json:"penalty"`
	Status          string     `json:"status"`
	OfferCount      int        `json:"offer_count"`
	OfferDeadline   *time.Time `json:"offer_deadline,omitempty"`
	ReservationID   string     `json:"reservation_id,omitempty"`
	EnrolledAt      time.Time  `json:"enrolled_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
}

type WaitlistCollection struct {
	Items []WaitlistEntry `json:"items"`
}

// OfferAcceptance is returned when an offered slot becomes a reservation.
type OfferAcceptance struct {
	Entry       WaitlistEntry `json:"entry"`
	Reservation Reservation   `json:"reservation"`
}

func MapWaitlistEntry(e *domainwaitlist.Entry) WaitlistEntry {
	out := WaitlistEntry{
		ID:              string(e.ID),
		ResourceID:      string(e.ResourceID),
		RequesterID:     e.RequesterID,
		RequesterClass:  e.RequesterClass,
		Start:           e.Window.Start,
		End:             e.Window.End,
		Priority:        e.Priority(),
		BasePriority:    e.BasePriority,
		EscalationBonus: e.EscalationBonus,
		Penalty:         e.Penalty,
		Status:          string(e.Status),
		OfferCount:      e.OfferCount,
		ReservationID:   e.ReservationID,
		EnrolledAt:      e.EnrolledAt,
		ExpiresAt:       e.ExpiresAt,
	}
	if !e.OfferDeadline.IsZero() {
		deadline := e.OfferDeadline
		out.OfferDeadline = &deadline
	}
	return out
}

func MapWaitlist(items []*domainwaitlist.Entry) WaitlistCollection {
	out := make([]WaitlistEntry, 0, len(items))
	for _, e := range items {
		out = append(out, MapWaitlistEntry(e))
	}
	return WaitlistCollection{Items: out}
}
