// Package conflicts decides whether a window can be placed on a resource.
package conflicts

import (
	"context"
	"sort"

	"slotkeeper/internal/app/clock"
	"slotkeeper/internal/domain/reservation"
	"slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/window"
)

// Source is satisfied by a unit of work.
type Source interface {
	Resources() resource.Repository
	Reservations() reservation.Repository
}

type Request struct {
	ResourceID           resource.ResourceID
	Window               window.TimeWindow
	ExcludeReservationID reservation.ReservationID
	RequesterType        string
	Options              resource.EvalOptions
}

type Result struct {
	ResourceID resource.ResourceID
	Window     window.TimeWindow
	Reasons    []errs.ConflictReason
	Conflicts  []*reservation.Reservation
}

func (r Result) OK() bool {
	return len(r.Reasons) == 0
}

// Err returns a *errs.ConflictError or nil.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	ids := make([]string, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		ids = append(ids, string(c.ID))
	}
	return &errs.ConflictError{
		ResourceID:     string(r.ResourceID),
		Start:          r.Window.Start,
		End:            r.Window.End,
		Reasons:        r.Reasons,
		ConflictingIDs: ids,
	}
}

type Detector struct {
	Clock clock.Clock
}

func NewDetector(c clock.Clock) *Detector {
	if c == nil {
		c = clock.NewSystem()
	}
	return &Detector{Clock: c}
}

// Check evaluates the resource calendar and existing reservations.
func (d *Detector) Check(ctx context.Context, src Source, req Request) (Result, error) {
	if err := req.Window.Validate(); err != nil {
		return Result{}, err
	}
	res, err := src.Resources().ByID(ctx, req.ResourceID)
	if err != nil {
		return Result{}, err
	}
	return d.CheckResource(ctx, src, res, req)
}

// CheckResource is Check for callers that already loaded the resource.
func (d *Detector) CheckResource(ctx context.Context, src Source, res *resource.Resource, req Request) (Result, error) {
	req.ResourceID = res.ID
	conflicts, err := d.FindConflicts(ctx, src, req.ResourceID, req.Window, req.ExcludeReservationID)
	if err != nil {
		return Result{}, err
	}
	reasons := res.Evaluate(req.Window, d.Clock.Now(), req.RequesterType, req.Options)
	if len(conflicts) > 0 {
		reasons = errs.NormalizeReasons(append(reasons, errs.ReasonReserved))
	}
	return Result{ResourceID: res.ID, Window: req.Window, Reasons: reasons, Conflicts: conflicts}, nil
}

// HasConflict reports whether any reason blocks the window.
func (d *Detector) HasConflict(ctx context.Context, src Source, req Request) (bool, error) {
	result, err := d.Check(ctx, src, req)
	if err != nil {
		return false, err
	}
	return !result.OK(), nil
}

// FindConflicts lists active reservations overlapping w, ordered by start.
func (d *Detector) FindConflicts(ctx context.Context, src Source, resourceID resource.ResourceID, w window.TimeWindow, exclude reservation.ReservationID) ([]*reservation.Reservation, error) {
	found, err := src.Reservations().FindOverlapping(ctx, resourceID, w)
	if err != nil {
		return nil, err
	}
	out := make([]*reservation.Reservation, 0, len(found))
	for _, r := range found {
		if r.ID == exclude || !r.Status.Active() || !r.Window.Overlaps(w) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Window.Start.Equal(out[j].Window.Start) {
			return out[i].Window.Start.Before(out[j].Window.Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
