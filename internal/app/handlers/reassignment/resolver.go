// Package reassignment moves reservations off resources that can no longer
// host them: it ranks substitutes, auto-approves urgent exact matches and
// tracks the requester's answer until its deadline.
package reassignment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"slotkeeper/internal/app/clock"
	"slotkeeper/internal/app/conflicts"
	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/handlers/support"
	"slotkeeper/internal/app/handlers/waitlist"
	"slotkeeper/internal/app/policies"
	"slotkeeper/internal/app/uow"
	domainreassignment "slotkeeper/internal/domain/reassignment"
	domainrecurrence "slotkeeper/internal/domain/recurrence"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/window"
)

// upcomingSpan bounds how far ahead OpenForResource looks for reservations.
const upcomingSpan = 5 * 365 * 24 * time.Hour

// WaitlistJoiner re-enters a displaced requester into the waiting list.
type WaitlistJoiner interface {
	Join(ctx context.Context, cmd waitlist.JoinCommand) (dto.WaitlistEntry, error)
}

type Resolver struct {
	Exec     *support.Executor
	Detector *conflicts.Detector
	Clock    clock.Clock
	Identity policies.IdentityProvider
	Waitlist WaitlistJoiner
	Policy   domainreassignment.Policy
	Logger   *slog.Logger
	NewID    func() string
}

func (r *Resolver) now() time.Time {
	if r.Clock == nil {
		return time.Now().UTC()
	}
	return r.Clock.Now()
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Resolver) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

// FindEquivalents ranks active resources of the same type that are free
// over the window.
func (r *Resolver) FindEquivalents(ctx context.Context, q FindEquivalentsQuery) (dto.Equivalents, error) {
	w, err := window.New(q.Start, q.End)
	if err != nil {
		return dto.Equivalents{}, err
	}
	var out dto.Equivalents
	err = support.Read(ctx, r.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		original, err := unit.Resources().ByID(ctx, domainresource.ResourceID(strings.TrimSpace(q.ResourceID)))
		if err != nil {
			return err
		}
		capacity := q.RequiredCapacity
		if capacity == 0 {
			capacity = original.Capacity
		}
		tolerance := q.TolerancePercent
		if tolerance == 0 {
			tolerance = r.Policy.DefaultCapacityTolerancePercent
		}
		target := domainreassignment.Target{
			Origin:           original.Location,
			RequiredCapacity: capacity,
			TolerancePercent: tolerance,
			Required:         domainresource.NormalizeFeatures(q.RequiredFeatures),
			Preferred:        domainresource.NormalizeFeatures(q.PreferredFeatures),
			MaxDistance:      q.MaxDistanceMeters,
		}
		eq, err := r.rank(ctx, unit, original, target, w, q.RequesterType, domainreservation.ReservationID(q.ExcludeReservationID))
		if err != nil {
			return err
		}
		out = dto.MapEquivalents(eq)
		return nil
	})
	return out, err
}

// Open creates a PENDING request for an active reservation and attempts
// auto-approval right away. An open request for the same reservation is
// returned instead of creating a second one.
func (r *Resolver) Open(ctx context.Context, cmd OpenCommand) (dto.Reassignment, error) {
	reason := domainreassignment.Reason(strings.ToUpper(strings.TrimSpace(cmd.Reason)))
	requestID := strings.TrimSpace(cmd.RequestID)
	if requestID == "" {
		requestID = r.newID()
	}
	var (
		out     dto.Reassignment
		created bool
	)
	err := r.Exec.WithReservation(ctx, cmd.ReservationID, func(ctx context.Context, tx *support.Tx, res *domainreservation.Reservation) error {
		created = false
		existing, err := tx.Reassignments().ListByReservation(ctx, res.ID)
		if err != nil {
			return err
		}
		for _, req := range existing {
			if req.Status == domainreassignment.StatusPending {
				out = dto.MapReassignment(req)
				return nil
			}
		}
		original, err := tx.Resources().ByID(ctx, res.ResourceID)
		if err != nil {
			return err
		}
		class, err := r.priorityClass(ctx, cmd.PriorityClass, res)
		if err != nil {
			return err
		}
		now := r.now()
		req, err := domainreassignment.Open(domainreassignment.OpenParams{
			ID:            domainreassignment.RequestID(requestID),
			Reservation:   res,
			PriorityClass: class,
			Reason:        reason,
			Constraints: domainreassignment.Constraints{
				AcceptEquivalent:         cmd.AcceptEquivalent,
				AcceptAlternativeTime:    cmd.AcceptAlternativeTime,
				CapacityTolerancePercent: cmd.CapacityTolerancePercent,
				RequiredFeatures:         cmd.RequiredFeatures,
				PreferredFeatures:        cmd.PreferredFeatures,
				MaxDistanceMeters:        cmd.MaxDistanceMeters,
				RequiredCapacity:         cmd.RequiredCapacity,
			},
			Deadline:  r.Policy.Deadline(now, res.Window.Start),
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		eq, err := r.rank(ctx, tx, original, req.Target(original, r.Policy.DefaultCapacityTolerancePercent), req.Window, res.RequesterType, res.ID)
		if err != nil {
			return err
		}
		req.SetCandidates(eq, now)
		if err := tx.Reassignments().Save(ctx, req); err != nil {
			return err
		}
		tx.Track(req)
		out = dto.MapReassignment(req)
		created = true
		return nil
	})
	if err != nil {
		return dto.Reassignment{}, err
	}
	if !created {
		return out, nil
	}
	r.logger().Info("reassignment requested", "request_id", out.ID, "reservation_id", out.ReservationID, "candidates", len(out.Candidates))
	return r.AutoProcess(ctx, AutoProcessCommand{RequestID: out.ID})
}

// OpenForResource opens requests for every upcoming active reservation on
// the resource.
func (r *Resolver) OpenForResource(ctx context.Context, cmd OpenForResourceCommand) (dto.SweepReport, error) {
	const job = "reassignment.open_for_resource"
	resourceID := domainresource.ResourceID(strings.TrimSpace(cmd.ResourceID))
	now := r.now()
	span, err := window.New(now, now.Add(upcomingSpan))
	if err != nil {
		return dto.SweepReport{Job: job}, err
	}
	var (
		upcoming []*domainreservation.Reservation
		original *domainresource.Resource
	)
	err = support.Read(ctx, r.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		original, err = unit.Resources().ByID(ctx, resourceID)
		if err != nil {
			return err
		}
		items, err := unit.Reservations().ListByResource(ctx, resourceID, span)
		if err != nil {
			return err
		}
		for _, res := range items {
			if res.Status.Active() && res.Window.Start.After(now) {
				upcoming = append(upcoming, res)
			}
		}
		return nil
	})
	if err != nil {
		return dto.SweepReport{Job: job}, err
	}
	reason := strings.ToUpper(strings.TrimSpace(cmd.Reason))
	if reason != string(domainreassignment.ReasonMaintenance) {
		reason = string(domainreassignment.ReasonResourceUnavailable)
	}
	return support.SweepEach(ctx, r.Logger, job, upcoming, reservationKey, func(ctx context.Context, res *domainreservation.Reservation) (bool, error) {
		_, err := r.Open(ctx, OpenCommand{
			ReservationID:     string(res.ID),
			Reason:            reason,
			AcceptEquivalent:  true,
			PreferredFeatures: original.Features,
		})
		return err == nil, err
	}), nil
}

// AutoProcess approves the single exact substitute when the event is close
// enough. The substitute is checked again under both resource locks; if it
// was taken in the meantime the request stays PENDING for the requester.
func (r *Resolver) AutoProcess(ctx context.Context, cmd AutoProcessCommand) (dto.Reassignment, error) {
	snap, err := r.snapshot(ctx, cmd.RequestID)
	if err != nil {
		return dto.Reassignment{}, err
	}
	if snap.req.Status != domainreassignment.StatusPending || snap.req.Overdue(r.now()) {
		return dto.MapReassignment(snap.req), nil
	}
	cand, ok := r.Policy.AutoCandidate(snap.eq, snap.req.HoursUntilEvent(r.now()))
	if !ok {
		return dto.MapReassignment(snap.req), nil
	}

	var out dto.Reassignment
	err = r.Exec.Run(ctx, support.ResourceKeys(snap.req.ResourceID, cand.ResourceID), func(ctx context.Context, tx *support.Tx) error {
		now := r.now()
		req, res, err := r.load(ctx, tx, snap.req.ID)
		if err != nil {
			return err
		}
		if req.Status != domainreassignment.StatusPending {
			out = dto.MapReassignment(req)
			return nil
		}
		if res == nil {
			return r.withdraw(ctx, tx, req, now, &out)
		}
		target, err := tx.Resources().ByID(ctx, cand.ResourceID)
		if err != nil {
			return err
		}
		result, err := r.Detector.CheckResource(ctx, tx, target, conflicts.Request{
			Window:               res.Window,
			ExcludeReservationID: res.ID,
			RequesterType:        res.RequesterType,
			Options:              domainresource.EvalOptions{IgnoreLeadTime: true},
		})
		if err != nil {
			return err
		}
		if !result.OK() {
			req.Note = "auto-approval of " + string(target.ID) + " failed re-check: " + strings.Join(dto.MapReasons(result.Reasons), ",")
			req.SetCandidates(snap.eq, now)
			r.logger().Warn("reassignment auto-approval downgraded", "request_id", req.ID, "resource_id", target.ID, "reasons", result.Reasons)
			if err := tx.Reassignments().Save(ctx, req); err != nil {
				return err
			}
			out = dto.MapReassignment(req)
			return nil
		}
		if err := req.AutoApprove(target.ID, now); err != nil {
			return err
		}
		if err := r.move(ctx, tx, req, res, target.ID, now); err != nil {
			return err
		}
		out = dto.MapReassignment(req)
		return nil
	})
	if err != nil {
		return dto.Reassignment{}, err
	}
	if out.Status == string(domainreassignment.StatusAutoApproved) {
		r.logger().Info("reassignment auto-approved", "request_id", out.ID, "resource_id", out.SelectedResourceID)
	}
	return out, nil
}

// AutoProcessPending runs AutoProcess over every pending request.
func (r *Resolver) AutoProcessPending(ctx context.Context, _ AutoProcessPendingCommand) (dto.SweepReport, error) {
	const job = "reassignment.auto_process"
	pending, err := r.listByStatus(ctx, domainreassignment.StatusPending)
	if err != nil {
		return dto.SweepReport{Job: job}, err
	}
	return support.SweepEach(ctx, r.Logger, job, pending, requestKey, func(ctx context.Context, req *domainreassignment.Request) (bool, error) {
		out, err := r.AutoProcess(ctx, AutoProcessCommand{RequestID: string(req.ID)})
		return err == nil && out.Status != string(domainreassignment.StatusPending), err
	}), nil
}

// ProcessUserResponse records the requester's decision. ACCEPT moves the
// reservation once the chosen resource passes the conflict check again.
// REJECT closes the request; unless partial reassignment is allowed the
// reservation is released and its requester queued for the original slot.
// An answer after the deadline applies the expiry fallback instead.
func (r *Resolver) ProcessUserResponse(ctx context.Context, cmd RespondCommand) (dto.Reassignment, error) {
	decision, err := domainreassignment.ParseDecision(cmd.Decision)
	if err != nil {
		return dto.Reassignment{}, err
	}
	snap, err := r.snapshot(ctx, cmd.RequestID)
	if err != nil {
		return dto.Reassignment{}, err
	}
	req := snap.req
	if req.Status != domainreassignment.StatusPending {
		return dto.Reassignment{}, domainreassignment.ErrInvalidState
	}
	if req.Overdue(r.now()) {
		if _, err := r.expireOne(ctx, req.ID); err != nil {
			return dto.Reassignment{}, err
		}
		return dto.Reassignment{}, domainreassignment.ErrDeadlinePassed
	}

	keys := []domainresource.ResourceID{req.ResourceID}
	selected := domainresource.ResourceID(strings.TrimSpace(cmd.SelectedResourceID))
	if decision == domainreassignment.DecisionAccept {
		if selected == "" {
			best := snap.eq.All()
			if len(best) == 0 {
				return dto.Reassignment{}, errs.Invalid("selected_resource_id", "no candidate available to accept")
			}
			selected = best[0].ResourceID
		}
		keys = append(keys, selected)
	}

	var (
		out    dto.Reassignment
		rejoin *domainreservation.Reservation
	)
	err = r.Exec.Run(ctx, support.ResourceKeys(keys...), func(ctx context.Context, tx *support.Tx) error {
		rejoin = nil
		now := r.now()
		req, res, err := r.load(ctx, tx, snap.req.ID)
		if err != nil {
			return err
		}
		if req.Status != domainreassignment.StatusPending {
			return domainreassignment.ErrInvalidState
		}
		if res == nil {
			return r.withdraw(ctx, tx, req, now, &out)
		}
		switch decision {
		case domainreassignment.DecisionAccept:
			target, err := tx.Resources().ByID(ctx, selected)
			if err != nil {
				return err
			}
			result, err := r.Detector.CheckResource(ctx, tx, target, conflicts.Request{
				Window:               res.Window,
				ExcludeReservationID: res.ID,
				RequesterType:        res.RequesterType,
				Options:              domainresource.EvalOptions{IgnoreLeadTime: true},
			})
			if err != nil {
				return err
			}
			if err := result.Err(); err != nil {
				return err
			}
			if err := req.Accept(target.ID, now); err != nil {
				return err
			}
			if err := r.move(ctx, tx, req, res, target.ID, now); err != nil {
				return err
			}
		default:
			if err := req.Reject(now); err != nil {
				return err
			}
			if err := tx.Reassignments().Save(ctx, req); err != nil {
				return err
			}
			tx.Track(req)
			if !r.Policy.AllowPartialReassignment {
				if err := r.release(ctx, tx, res, rejectedReason, now); err != nil {
					return err
				}
				rejoin = res
			}
		}
		out = dto.MapReassignment(req)
		return nil
	})
	if err != nil {
		return dto.Reassignment{}, err
	}
	if rejoin != nil {
		r.requeue(ctx, rejoin, out.PriorityClass)
	}
	r.logger().Info("reassignment answered", "request_id", out.ID, "decision", decision, "status", out.Status)
	return out, nil
}

func (r *Resolver) Cancel(ctx context.Context, cmd CancelCommand) (dto.Reassignment, error) {
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = "cancelled"
	}
	snap, err := r.snapshot(ctx, cmd.RequestID)
	if err != nil {
		return dto.Reassignment{}, err
	}
	var out dto.Reassignment
	err = r.Exec.Run(ctx, support.ResourceKeys(snap.req.ResourceID), func(ctx context.Context, tx *support.Tx) error {
		req, err := tx.Reassignments().ByID(ctx, snap.req.ID)
		if err != nil {
			return err
		}
		if err := req.Cancel(reason, r.now()); err != nil {
			return err
		}
		if err := tx.Reassignments().Save(ctx, req); err != nil {
			return err
		}
		tx.Track(req)
		out = dto.MapReassignment(req)
		return nil
	})
	return out, err
}

// CancelForReservation cancels every pending request of the reservation.
func (r *Resolver) CancelForReservation(ctx context.Context, cmd CancelForReservationCommand) (dto.SweepReport, error) {
	const job = "reassignment.cancel_for_reservation"
	var pending []*domainreassignment.Request
	err := support.Read(ctx, r.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		items, err := unit.Reassignments().ListByReservation(ctx, domainreservation.ReservationID(strings.TrimSpace(cmd.ReservationID)))
		if err != nil {
			return err
		}
		for _, req := range items {
			if req.Status == domainreassignment.StatusPending {
				pending = append(pending, req)
			}
		}
		return nil
	})
	if err != nil {
		return dto.SweepReport{Job: job}, err
	}
	return support.SweepEach(ctx, r.Logger, job, pending, requestKey, func(ctx context.Context, req *domainreassignment.Request) (bool, error) {
		_, err := r.Cancel(ctx, CancelCommand{RequestID: string(req.ID), Reason: cmd.Reason})
		if errors.Is(err, errs.ErrInvalidStateTransition) {
			return false, nil
		}
		return err == nil, err
	}), nil
}

// ExpireOverdue is the timeout sweep. Only requests strictly past their
// deadline expire; each then gets the configured fallback.
func (r *Resolver) ExpireOverdue(ctx context.Context, _ ExpireOverdueCommand) (dto.SweepReport, error) {
	const job = "reassignment.expire"
	pending, err := r.listByStatus(ctx, domainreassignment.StatusPending)
	if err != nil {
		return dto.SweepReport{Job: job}, err
	}
	now := r.now()
	due := pending[:0]
	for _, req := range pending {
		if req.Overdue(now) {
			due = append(due, req)
		}
	}
	return support.SweepEach(ctx, r.Logger, job, due, requestKey, func(ctx context.Context, req *domainreassignment.Request) (bool, error) {
		return r.expireOne(ctx, req.ID)
	}), nil
}

// expireOne expires a single overdue request and applies the fallback:
// AUTO_APPROVE_GOOD moves the reservation to the best good match that still
// passes the conflict check, anything else releases the reservation and
// queues its requester on the original resource.
func (r *Resolver) expireOne(ctx context.Context, id domainreassignment.RequestID) (bool, error) {
	snap, err := r.snapshot(ctx, string(id))
	if err != nil {
		return false, err
	}
	keys := []domainresource.ResourceID{snap.req.ResourceID}
	best, haveBest := snap.eq.BestGood()
	useBest := haveBest && r.Policy.Fallback == domainreassignment.FallbackAutoApproveGood
	if useBest {
		keys = append(keys, best.ResourceID)
	}

	var (
		expired bool
		rejoin  *domainreservation.Reservation
		class   string
	)
	err = r.Exec.Run(ctx, support.ResourceKeys(keys...), func(ctx context.Context, tx *support.Tx) error {
		expired, rejoin = false, nil
		now := r.now()
		req, res, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if !req.Expire(now) {
			return nil
		}
		expired = true
		class = req.PriorityClass
		if res == nil {
			req.Note = reservationGoneNote
			req.RecordFallback(r.Policy.Fallback, "", now)
			return r.saveRequest(ctx, tx, req)
		}
		if useBest {
			target, err := tx.Resources().ByID(ctx, best.ResourceID)
			if err != nil {
				return err
			}
			result, err := r.Detector.CheckResource(ctx, tx, target, conflicts.Request{
				Window:               res.Window,
				ExcludeReservationID: res.ID,
				RequesterType:        res.RequesterType,
				Options:              domainresource.EvalOptions{IgnoreLeadTime: true},
			})
			if err != nil {
				return err
			}
			if result.OK() {
				req.RecordFallback(domainreassignment.FallbackAutoApproveGood, target.ID, now)
				return r.move(ctx, tx, req, res, target.ID, now)
			}
		}
		req.RecordFallback(domainreassignment.FallbackWaitlist, "", now)
		if err := r.saveRequest(ctx, tx, req); err != nil {
			return err
		}
		if err := r.release(ctx, tx, res, expiredReason, now); err != nil {
			return err
		}
		rejoin = res
		return nil
	})
	if err != nil {
		return false, err
	}
	if rejoin != nil {
		r.requeue(ctx, rejoin, class)
	}
	return expired, nil
}

func (r *Resolver) Get(ctx context.Context, q GetQuery) (dto.Reassignment, error) {
	var out dto.Reassignment
	err := support.Read(ctx, r.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		req, err := unit.Reassignments().ByID(ctx, domainreassignment.RequestID(strings.TrimSpace(q.RequestID)))
		if err != nil {
			return err
		}
		out = dto.MapReassignment(req)
		return nil
	})
	return out, err
}

func (r *Resolver) List(ctx context.Context, q ListQuery) (dto.ReassignmentCollection, error) {
	var out dto.ReassignmentCollection
	err := support.Read(ctx, r.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		var (
			items []*domainreassignment.Request
			err   error
		)
		if id := strings.TrimSpace(q.ReservationID); id != "" {
			items, err = unit.Reassignments().ListByReservation(ctx, domainreservation.ReservationID(id))
		} else {
			status := strings.ToUpper(strings.TrimSpace(q.Status))
			if status == "" {
				status = string(domainreassignment.StatusPending)
			}
			items, err = unit.Reassignments().ListByStatus(ctx, domainreassignment.Status(status))
		}
		if err != nil {
			return err
		}
		out = dto.MapReassignments(items)
		return nil
	})
	return out, err
}

// snapshot is a lock-free read of a request with freshly ranked candidates.
type snapshot struct {
	req *domainreassignment.Request
	eq  domainreassignment.Equivalents
}

func (r *Resolver) snapshot(ctx context.Context, id string) (snapshot, error) {
	requestID := domainreassignment.RequestID(strings.TrimSpace(id))
	if requestID == "" {
		return snapshot{}, errs.Invalid("request_id", "required")
	}
	var snap snapshot
	err := support.Read(ctx, r.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		req, err := unit.Reassignments().ByID(ctx, requestID)
		if err != nil {
			return err
		}
		snap.req = req
		if req.Status != domainreassignment.StatusPending {
			return nil
		}
		original, err := unit.Resources().ByID(ctx, req.ResourceID)
		if err != nil {
			return err
		}
		requesterType := req.PriorityClass
		if res, err := unit.Reservations().ByID(ctx, req.ReservationID); err == nil {
			requesterType = res.RequesterType
		}
		snap.eq, err = r.rank(ctx, unit, original, req.Target(original, r.Policy.DefaultCapacityTolerancePercent), req.Window, requesterType, req.ReservationID)
		return err
	})
	return snap, err
}

// rank scores the active resources of the original's type that are free
// over w.
func (r *Resolver) rank(ctx context.Context, src conflicts.Source, original *domainresource.Resource, target domainreassignment.Target, w window.TimeWindow, requesterType string, exclude domainreservation.ReservationID) (domainreassignment.Equivalents, error) {
	pool, err := src.Resources().List(ctx, domainresource.Filter{Type: original.Type, Status: domainresource.StatusActive})
	if err != nil {
		return domainreassignment.Equivalents{}, err
	}
	free := make([]*domainresource.Resource, 0, len(pool))
	for _, cand := range pool {
		if cand.ID == original.ID {
			continue
		}
		result, err := r.Detector.CheckResource(ctx, src, cand, conflicts.Request{
			Window:               w,
			ExcludeReservationID: exclude,
			RequesterType:        requesterType,
			Options:              domainresource.EvalOptions{IgnoreLeadTime: true},
		})
		if err != nil {
			return domainreassignment.Equivalents{}, err
		}
		if result.OK() {
			free = append(free, cand)
		}
	}
	return domainreassignment.Rank(target, free), nil
}

// load returns the request and its reservation. The reservation is nil when
// it is no longer active on the request's resource.
func (r *Resolver) load(ctx context.Context, tx *support.Tx, id domainreassignment.RequestID) (*domainreassignment.Request, *domainreservation.Reservation, error) {
	req, err := tx.Reassignments().ByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	res, err := tx.Reservations().ByID(ctx, req.ReservationID)
	if errors.Is(err, errs.ErrNotFound) {
		return req, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if !res.Status.Active() || res.ResourceID != req.ResourceID {
		return req, nil, nil
	}
	return req, res, nil
}

// withdraw cancels a request whose reservation went away underneath it.
func (r *Resolver) withdraw(ctx context.Context, tx *support.Tx, req *domainreassignment.Request, now time.Time, out *dto.Reassignment) error {
	if err := req.Cancel(reservationGoneNote, now); err != nil {
		return err
	}
	*out = dto.MapReassignment(req)
	return r.saveRequest(ctx, tx, req)
}

// move reassigns the reservation and persists both aggregates.
func (r *Resolver) move(ctx context.Context, tx *support.Tx, req *domainreassignment.Request, res *domainreservation.Reservation, to domainresource.ResourceID, now time.Time) error {
	if err := res.Reassign(to, string(req.ID), now); err != nil {
		return err
	}
	if err := tx.Reservations().Save(ctx, res); err != nil {
		return err
	}
	tx.Track(res)
	return r.saveRequest(ctx, tx, req)
}

// release cancels the displaced reservation so its requester can be queued.
func (r *Resolver) release(ctx context.Context, tx *support.Tx, res *domainreservation.Reservation, reason string, now time.Time) error {
	if err := res.Cancel(reason, now); err != nil {
		return err
	}
	if err := tx.Reservations().Save(ctx, res); err != nil {
		return err
	}
	tx.Track(res)
	return support.SyncSeries(ctx, tx, res, domainrecurrence.InstanceCancelled)
}

// requeue enrolls the displaced requester for the original slot. It runs
// after the release committed, so a failure is logged rather than returned.
func (r *Resolver) requeue(ctx context.Context, res *domainreservation.Reservation, class string) {
	if r.Waitlist == nil {
		return
	}
	if class == "" {
		class = res.RequesterType
	}
	entry, err := r.Waitlist.Join(ctx, waitlist.JoinCommand{
		ResourceID:     string(res.ResourceID),
		RequesterID:    res.RequesterID,
		RequesterClass: class,
		Start:          res.Window.Start,
		End:            res.Window.End,
	})
	if err != nil {
		r.logger().Warn("requeue after reassignment failed", "reservation_id", res.ID, "error", err)
		return
	}
	r.logger().Info("displaced requester queued", "reservation_id", res.ID, "entry_id", entry.ID)
}

func (r *Resolver) priorityClass(ctx context.Context, given string, res *domainreservation.Reservation) (string, error) {
	if class := strings.TrimSpace(given); class != "" {
		return class, nil
	}
	if res.RequesterType != "" || r.Identity == nil {
		return res.RequesterType, nil
	}
	id, err := r.Identity.Identify(ctx, res.RequesterID)
	if err != nil {
		return "", err
	}
	return id.PriorityClass, nil
}

func (r *Resolver) saveRequest(ctx context.Context, tx *support.Tx, req *domainreassignment.Request) error {
	if err := tx.Reassignments().Save(ctx, req); err != nil {
		return err
	}
	tx.Track(req)
	return nil
}

func (r *Resolver) listByStatus(ctx context.Context, status domainreassignment.Status) ([]*domainreassignment.Request, error) {
	var items []*domainreassignment.Request
	err := support.Read(ctx, r.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		items, err = unit.Reassignments().ListByStatus(ctx, status)
		return err
	})
	return items, err
}

func requestKey(req *domainreassignment.Request) string { return string(req.ID) }

func reservationKey(res *domainreservation.Reservation) string { return string(res.ID) }
