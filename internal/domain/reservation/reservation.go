package reservation

import (
	"context"
	"fmt"
	"time"

	"slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/events"
	"slotkeeper/internal/domain/shared/window"
)

var (
	ErrInvalidState     = fmt.Errorf("reservation: %w", errs.ErrInvalidStateTransition)
	ErrNotFound         = fmt.Errorf("reservation: %w", errs.ErrNotFound)
	ErrNotEnded         = fmt.Errorf("reservation: window has not ended: %w", errs.ErrInvalidStateTransition)
	ErrConcurrentUpdate = fmt.Errorf("reservation: %w", errs.ErrStale)
)

type ReservationID string

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Active reservations hold their window on the resource calendar.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Reservation struct {
	ID            ReservationID
	ResourceID    resource.ResourceID
	RequesterID   string
	RequesterType string
	Window        window.TimeWindow
	Status        Status
	SeriesID      string
	InstanceIndex int
	CancelReason  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int64
	events.Recorder
}

type Repository interface {
	ByID(ctx context.Context, id ReservationID) (*Reservation, error)
	Save(ctx context.Context, r *Reservation) error
	// FindOverlapping returns active reservations on the resource overlapping w.
	FindOverlapping(ctx context.Context, resourceID resource.ResourceID, w window.TimeWindow) ([]*Reservation, error)
	ListByResource(ctx context.Context, resourceID resource.ResourceID, w window.TimeWindow) ([]*Reservation, error)
	ListBySeries(ctx context.Context, seriesID string) ([]*Reservation, error)
	ListByStatus(ctx context.Context, status Status, endedBefore time.Time) ([]*Reservation, error)
}

type CreateParams struct {
	ID            ReservationID
	ResourceID    resource.ResourceID
	RequesterID   string
	RequesterType string
	Window        window.TimeWindow
	SeriesID      string
	InstanceIndex int
	CreatedAt     time.Time
}

// New creates a PENDING reservation. The caller is responsible for proving the
// window conflict-free under the resource lock.
func New(params CreateParams) (*Reservation, error) {
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
	now := params.CreatedAt.UTC()
	r := &Reservation{
		ID:            params.ID,
		ResourceID:    params.ResourceID,
		RequesterID:   params.RequesterID,
		RequesterType: params.RequesterType,
		Window:        params.Window,
		Status:        StatusPending,
		SeriesID:      params.SeriesID,
		InstanceIndex: params.InstanceIndex,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.Record(Created{
		ReservationID: r.ID,
		ResourceID:    r.ResourceID,
		RequesterID:   r.RequesterID,
		Window:        r.Window,
		SeriesID:      r.SeriesID,
		At:            now,
	})
	return r, nil
}

// Confirm is idempotent on CONFIRMED reservations.
func (r *Reservation) Confirm(now time.Time) error {
	switch r.Status {
	case StatusConfirmed:
		return nil
	case StatusPending:
	default:
		return ErrInvalidState
	}
	r.Status = StatusConfirmed
	r.UpdatedAt = now.UTC()
	r.Record(Confirmed{ReservationID: r.ID, ResourceID: r.ResourceID, Window: r.Window, At: r.UpdatedAt})
	return nil
}

// Cancel frees the window. The emitted Cancelled event drives waiting list promotion.
func (r *Reservation) Cancel(reason string, now time.Time) error {
	if !r.Status.Active() {
		return ErrInvalidState
	}
	r.Status = StatusCancelled
	r.CancelReason = reason
	r.UpdatedAt = now.UTC()
	r.Record(Cancelled{
		ReservationID: r.ID,
		ResourceID:    r.ResourceID,
		RequesterID:   r.RequesterID,
		Window:        r.Window,
		Reason:        reason,
		At:            r.UpdatedAt,
	})
	return nil
}

// Complete is driven by the completion sweep. Outside CONFIRMED it does nothing.
func (r *Reservation) Complete(now time.Time) error {
	if r.Status != StatusConfirmed {
		return nil
	}
	if !r.Window.End.Before(now) {
		return ErrNotEnded
	}
	r.Status = StatusCompleted
	r.UpdatedAt = now.UTC()
	r.Record(Completed{ReservationID: r.ID, At: r.UpdatedAt})
	return nil
}

// Reassign moves an active reservation to another resource, keeping its window.
func (r *Reservation) Reassign(to resource.ResourceID, requestID string, now time.Time) error {
	if !r.Status.Active() {
		return ErrInvalidState
	}
	if to == "" {
		return errs.Invalid("resource_id", "required")
	}
	if to == r.ResourceID {
		return nil
	}
	from := r.ResourceID
	r.ResourceID = to
	r.UpdatedAt = now.UTC()
	r.Record(Reassigned{
		ReservationID: r.ID,
		FromResource:  from,
		ToResource:    to,
		RequestID:     requestID,
		RequesterID:   r.RequesterID,
		Window:        r.Window,
		At:            r.UpdatedAt,
	})
	return nil
}
