package memory

import (
	"context"
	"time"

	domainreassignment "slotkeeper/internal/domain/reassignment"
	domainrecurrence "slotkeeper/internal/domain/recurrence"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/window"
	domainwaitlist "slotkeeper/internal/domain/waitlist"
)

// ResourceRepository keeps the resource catalog in memory.
type ResourceRepository struct {
	t *table[domainresource.ResourceID, domainresource.Resource]
}

func NewResourceRepository() *ResourceRepository {
	return &ResourceRepository{t: newTable(
		func(r *domainresource.Resource) domainresource.ResourceID { return r.ID },
		func(r *domainresource.Resource) *int64 { return &r.Version },
		cloneResource,
		domainresource.ErrNotFound,
		domainresource.ErrConcurrentUpdate,
	)}
}

func (r *ResourceRepository) ByID(ctx context.Context, id domainresource.ResourceID) (*domainresource.Resource, error) {
	return r.t.get(id)
}

func (r *ResourceRepository) Save(ctx context.Context, res *domainresource.Resource) error {
	return r.t.put(ctx, res)
}

func (r *ResourceRepository) List(ctx context.Context, filter domainresource.Filter) ([]*domainresource.Resource, error) {
	return r.t.filter(func(res *domainresource.Resource) bool {
		if filter.Type != "" && res.Type != filter.Type {
			return false
		}
		return filter.Status == "" || res.Status == filter.Status
	}), nil
}

// ReservationRepository stores reservations in memory.
type ReservationRepository struct {
	t *table[domainreservation.ReservationID, domainreservation.Reservation]
}

func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{t: newTable(
		func(r *domainreservation.Reservation) domainreservation.ReservationID { return r.ID },
		func(r *domainreservation.Reservation) *int64 { return &r.Version },
		cloneReservation,
		domainreservation.ErrNotFound,
		domainreservation.ErrConcurrentUpdate,
	)}
}

func (r *ReservationRepository) ByID(ctx context.Context, id domainreservation.ReservationID) (*domainreservation.Reservation, error) {
	return r.t.get(id)
}

func (r *ReservationRepository) Save(ctx context.Context, res *domainreservation.Reservation) error {
	return r.t.put(ctx, res)
}

func (r *ReservationRepository) FindOverlapping(ctx context.Context, resourceID domainresource.ResourceID, w window.TimeWindow) ([]*domainreservation.Reservation, error) {
	return r.t.filter(func(res *domainreservation.Reservation) bool {
		return res.ResourceID == resourceID && res.Status.Active() && res.Window.Overlaps(w)
	}), nil
}

func (r *ReservationRepository) ListByResource(ctx context.Context, resourceID domainresource.ResourceID, w window.TimeWindow) ([]*domainreservation.Reservation, error) {
	return r.t.filter(func(res *domainreservation.Reservation) bool {
		return res.ResourceID == resourceID && res.Window.Overlaps(w)
	}), nil
}

func (r *ReservationRepository) ListBySeries(ctx context.Context, seriesID string) ([]*domainreservation.Reservation, error) {
	return r.t.filter(func(res *domainreservation.Reservation) bool {
		return res.SeriesID == seriesID
	}), nil
}

func (r *ReservationRepository) ListByStatus(ctx context.Context, status domainreservation.Status, endedBefore time.Time) ([]*domainreservation.Reservation, error) {
	return r.t.filter(func(res *domainreservation.Reservation) bool {
		return res.Status == status && (endedBefore.IsZero() || res.Window.End.Before(endedBefore))
	}), nil
}

// SeriesRepository stores recurring series with their instances.
type SeriesRepository struct {
	t *table[domainrecurrence.SeriesID, domainrecurrence.Series]
}

func NewSeriesRepository() *SeriesRepository {
	return &SeriesRepository{t: newTable(
		func(s *domainrecurrence.Series) domainrecurrence.SeriesID { return s.ID },
		func(s *domainrecurrence.Series) *int64 { return &s.Version },
		cloneSeries,
		domainrecurrence.ErrNotFound,
		domainrecurrence.ErrConcurrentUpdate,
	)}
}

func (r *SeriesRepository) ByID(ctx context.Context, id domainrecurrence.SeriesID) (*domainrecurrence.Series, error) {
	return r.t.get(id)
}

func (r *SeriesRepository) Save(ctx context.Context, s *domainrecurrence.Series) error {
	return r.t.put(ctx, s)
}

func (r *SeriesRepository) ListByStatus(ctx context.Context, status domainrecurrence.Status) ([]*domainrecurrence.Series, error) {
	return r.t.filter(func(s *domainrecurrence.Series) bool { return s.Status == status }), nil
}

func (r *SeriesRepository) ListByResource(ctx context.Context, resourceID domainresource.ResourceID) ([]*domainrecurrence.Series, error) {
	return r.t.filter(func(s *domainrecurrence.Series) bool { return s.ResourceID == resourceID }), nil
}

// WaitlistRepository stores waiting list entries.
type WaitlistRepository struct {
	t *table[domainwaitlist.EntryID, domainwaitlist.Entry]
}

func NewWaitlistRepository() *WaitlistRepository {
	return &WaitlistRepository{t: newTable(
		func(e *domainwaitlist.Entry) domainwaitlist.EntryID { return e.ID },
		func(e *domainwaitlist.Entry) *int64 { return &e.Version },
		cloneEntry,
		domainwaitlist.ErrNotFound,
		domainwaitlist.ErrConcurrentUpdate,
	)}
}

func (r *WaitlistRepository) ByID(ctx context.Context, id domainwaitlist.EntryID) (*domainwaitlist.Entry, error) {
	return r.t.get(id)
}

func (r *WaitlistRepository) Save(ctx context.Context, e *domainwaitlist.Entry) error {
	return r.t.put(ctx, e)
}

func (r *WaitlistRepository) ListByResource(ctx context.Context, resourceID domainresource.ResourceID, statuses ...domainwaitlist.Status) ([]*domainwaitlist.Entry, error) {
	return r.t.filter(func(e *domainwaitlist.Entry) bool {
		return e.ResourceID == resourceID && statusIn(e.Status, statuses)
	}), nil
}

func (r *WaitlistRepository) ListByStatus(ctx context.Context, statuses ...domainwaitlist.Status) ([]*domainwaitlist.Entry, error) {
	return r.t.filter(func(e *domainwaitlist.Entry) bool { return statusIn(e.Status, statuses) }), nil
}

// ReassignmentRepository stores reassignment requests.
type ReassignmentRepository struct {
	t *table[domainreassignment.RequestID, domainreassignment.Request]
}

func NewReassignmentRepository() *ReassignmentRepository {
	return &ReassignmentRepository{t: newTable(
		func(r *domainreassignment.Request) domainreassignment.RequestID { return r.ID },
		func(r *domainreassignment.Request) *int64 { return &r.Version },
		cloneRequest,
		domainreassignment.ErrNotFound,
		domainreassignment.ErrConcurrentUpdate,
	)}
}

func (r *ReassignmentRepository) ByID(ctx context.Context, id domainreassignment.RequestID) (*domainreassignment.Request, error) {
	return r.t.get(id)
}

func (r *ReassignmentRepository) Save(ctx context.Context, req *domainreassignment.Request) error {
	return r.t.put(ctx, req)
}

func (r *ReassignmentRepository) ListByStatus(ctx context.Context, status domainreassignment.Status) ([]*domainreassignment.Request, error) {
	return r.t.filter(func(req *domainreassignment.Request) bool { return req.Status == status }), nil
}

func (r *ReassignmentRepository) ListByReservation(ctx context.Context, id domainreservation.ReservationID) ([]*domainreassignment.Request, error) {
	return r.t.filter(func(req *domainreassignment.Request) bool { return req.ReservationID == id }), nil
}

func statusIn[S comparable](s S, set []S) bool {
	if len(set) == 0 {
		return true
	}
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}

var (
	_ domainresource.Repository     = (*ResourceRepository)(nil)
	_ domainreservation.Repository  = (*ReservationRepository)(nil)
	_ domainrecurrence.Repository   = (*SeriesRepository)(nil)
	_ domainwaitlist.Repository     = (*WaitlistRepository)(nil)
	_ domainreassignment.Repository = (*ReassignmentRepository)(nil)
)
