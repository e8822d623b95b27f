package reassignment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"slotkeeper/internal/domain/reservation"
	"slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/events"
	"slotkeeper/internal/domain/shared/window"
)

var (
	ErrInvalidState     = fmt.Errorf("reassignment: %w", errs.ErrInvalidStateTransition)
	ErrNotFound         = fmt.Errorf("reassignment: %w", errs.ErrNotFound)
	ErrDeadlinePassed   = fmt.Errorf("reassignment: response deadline passed: %w", errs.ErrDeadlineExpired)
	ErrConcurrentUpdate = fmt.Errorf("reassignment: %w", errs.ErrStale)
)

type RequestID string

type Reason string

const (
	ReasonResourceUnavailable Reason = "RESOURCE_UNAVAILABLE"
	ReasonMaintenance         Reason = "MAINTENANCE"
	ReasonCapacityChange      Reason = "CAPACITY_CHANGE"
	ReasonAdministrative      Reason = "ADMINISTRATIVE"
)

type Status string

const (
	StatusPending      Status = "PENDING"
	StatusAccepted     Status = "ACCEPTED"
	StatusRejected     Status = "REJECTED"
	StatusAutoApproved Status = "AUTO_APPROVED"
	StatusExpired      Status = "EXPIRED"
	StatusCancelled    Status = "CANCELLED"
)

type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

func ParseDecision(raw string) (Decision, error) {
	switch d := Decision(strings.ToUpper(strings.TrimSpace(raw))); d {
	case DecisionAccept, DecisionReject:
		return d, nil
	}
	return "", errs.Invalid("decision", fmt.Sprintf("unknown decision %q", raw))
}

// Constraints are the requester's acceptance rules for a substitute.
type Constraints struct {
	AcceptEquivalent         bool
	AcceptAlternativeTime    bool
	CapacityTolerancePercent int
	RequiredFeatures         []string
	PreferredFeatures        []string
	MaxDistanceMeters        float64
	RequiredCapacity         int
}

type Request struct {
	ID                 RequestID
	ReservationID      reservation.ReservationID
	ResourceID         resource.ResourceID
	Window             window.TimeWindow
	RequesterID        string
	PriorityClass      string
	Reason             Reason
	Constraints        Constraints
	ResponseDeadline   time.Time
	Status             Status
	SelectedResourceID resource.ResourceID
	Candidates         []Candidate
	Fallback           Fallback
	Note               string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ResolvedAt         time.Time
	Version            int64
	events.Recorder
}

type Repository interface {
	ByID(ctx context.Context, id RequestID) (*Request, error)
	Save(ctx context.Context, r *Request) error
	ListByStatus(ctx context.Context, status Status) ([]*Request, error)
	ListByReservation(ctx context.Context, id reservation.ReservationID) ([]*Request, error)
}

type OpenParams struct {
	ID            RequestID
	Reservation   *reservation.Reservation
	PriorityClass string
	Reason        Reason
	Constraints   Constraints
	Deadline      time.Time
	CreatedAt     time.Time
}

func Open(params OpenParams) (*Request, error) {
	verr := &errs.ValidationError{}
	if params.ID == "" {
		verr.Add("id", "required")
	}
	if params.Reservation == nil {
		verr.Add("reservation_id", "required")
	}
	if params.Constraints.CapacityTolerancePercent < 0 || params.Constraints.CapacityTolerancePercent > 100 {
		verr.Add("capacity_tolerance_percent", "must be within 0..100")
	}
	if params.Constraints.RequiredCapacity < 0 {
		verr.Add("required_capacity", "must not be negative")
	}
	if !params.Deadline.After(params.CreatedAt) {
		verr.Add("response_deadline", "must be after creation")
	}
	if verr.HasErrors() {
		return nil, verr
	}
	res := params.Reservation
	if !res.Status.Active() {
		return nil, ErrInvalidState
	}
	reason := params.Reason
	if reason == "" {
		reason = ReasonResourceUnavailable
	}
	c := params.Constraints
	c.RequiredFeatures = resource.NormalizeFeatures(c.RequiredFeatures)
	c.PreferredFeatures = resource.NormalizeFeatures(c.PreferredFeatures)
	now := params.CreatedAt.UTC()
	r := &Request{
		ID:               params.ID,
		ReservationID:    res.ID,
		ResourceID:       res.ResourceID,
		Window:           res.Window,
		RequesterID:      res.RequesterID,
		PriorityClass:    params.PriorityClass,
		Reason:           reason,
		Constraints:      c,
		ResponseDeadline: params.Deadline.UTC(),
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.Record(Requested{
		RequestID:     r.ID,
		ReservationID: r.ReservationID,
		ResourceID:    r.ResourceID,
		RequesterID:   r.RequesterID,
		Reason:        r.Reason,
		Deadline:      r.ResponseDeadline,
		At:            now,
	})
	return r, nil
}

// Target turns the constraints into a scoring target relative to the original.
func (r *Request) Target(original *resource.Resource, defaultTolerance int) Target {
	c := r.Constraints
	capacity := c.RequiredCapacity
	if capacity == 0 && original != nil {
		capacity = original.Capacity
	}
	tolerance := c.CapacityTolerancePercent
	if tolerance == 0 {
		tolerance = defaultTolerance
	}
	t := Target{
		RequiredCapacity: capacity,
		TolerancePercent: tolerance,
		Required:         c.RequiredFeatures,
		Preferred:        c.PreferredFeatures,
		MaxDistance:      c.MaxDistanceMeters,
	}
	if original != nil {
		t.Origin = original.Location
	}
	return t
}

func (r *Request) SetCandidates(eq Equivalents, now time.Time) {
	r.Candidates = eq.All()
	r.UpdatedAt = now.UTC()
}

// HoursUntilEvent is the lead time before the displaced window starts.
func (r *Request) HoursUntilEvent(now time.Time) float64 {
	return r.Window.Start.Sub(now).Hours()
}

func (r *Request) Overdue(now time.Time) bool {
	return now.After(r.ResponseDeadline)
}

func (r *Request) AutoApprove(to resource.ResourceID, now time.Time) error {
	if r.Status != StatusPending {
		return ErrInvalidState
	}
	r.resolve(StatusAutoApproved, to, now)
	r.Record(AutoApproved{RequestID: r.ID, ReservationID: r.ReservationID, RequesterID: r.RequesterID, ResourceID: to, At: r.UpdatedAt})
	return nil
}

// Accept records the requester's choice. Deadlines are enforced lazily.
func (r *Request) Accept(to resource.ResourceID, now time.Time) error {
	if r.Status != StatusPending {
		return ErrInvalidState
	}
	if r.Overdue(now) {
		return ErrDeadlinePassed
	}
	if to == "" {
		return errs.Invalid("selected_resource_id", "required when accepting")
	}
	r.resolve(StatusAccepted, to, now)
	r.Record(Accepted{RequestID: r.ID, ReservationID: r.ReservationID, ResourceID: to, At: r.UpdatedAt})
	return nil
}

func (r *Request) Reject(now time.Time) error {
	if r.Status != StatusPending {
		return ErrInvalidState
	}
	if r.Overdue(now) {
		return ErrDeadlinePassed
	}
	r.resolve(StatusRejected, "", now)
	r.Record(Rejected{RequestID: r.ID, ReservationID: r.ReservationID, At: r.UpdatedAt})
	return nil
}

// Expire applies only strictly after the response deadline.
func (r *Request) Expire(now time.Time) bool {
	if r.Status != StatusPending || !r.Overdue(now) {
		return false
	}
	r.resolve(StatusExpired, "", now)
	return true
}

// RecordFallback notes what happened after expiry. selected is empty unless
// the fallback auto approved a good match.
func (r *Request) RecordFallback(kind Fallback, selected resource.ResourceID, now time.Time) {
	r.Fallback = kind
	r.SelectedResourceID = selected
	r.UpdatedAt = now.UTC()
	r.Record(Expired{
		RequestID:     r.ID,
		ReservationID: r.ReservationID,
		RequesterID:   r.RequesterID,
		Fallback:      kind,
		ResourceID:    selected,
		At:            r.UpdatedAt,
	})
}

func (r *Request) Cancel(reason string, now time.Time) error {
	if r.Status != StatusPending {
		return ErrInvalidState
	}
	r.Note = reason
	r.resolve(StatusCancelled, "", now)
	r.Record(CancelledEvent{RequestID: r.ID, ReservationID: r.ReservationID, Reason: reason, At: r.UpdatedAt})
	return nil
}

func (r *Request) resolve(status Status, selected resource.ResourceID, now time.Time) {
	r.Status = status
	if selected != "" {
		r.SelectedResourceID = selected
	}
	r.UpdatedAt = now.UTC()
	r.ResolvedAt = r.UpdatedAt
}
