// Package series manages recurring reservations and their materialized instances.
package series

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
	"slotkeeper/internal/app/policies"
	"slotkeeper/internal/app/uow"
	domainrecurrence "slotkeeper/internal/domain/recurrence"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/daytime"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/window"
)

const (
	defaultHorizon    = 90 * 24 * time.Hour
	rescheduledReason = "series-rescheduled"
)

// Policy bounds how far ahead instances are materialized.
type Policy struct {
	Horizon            time.Duration
	MaxInstancesPerRun int
}

type Service struct {
	Exec     *support.Executor
	Detector *conflicts.Detector
	Clock    clock.Clock
	Identity policies.IdentityProvider
	Expander domainrecurrence.Expander
	Policy   Policy
	Logger   *slog.Logger
	NewID    func() string
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) horizon(now time.Time) time.Time {
	h := s.Policy.Horizon
	if h <= 0 {
		h = defaultHorizon
	}
	return now.Add(h)
}

// Create validates the definition, stores the series and expands it.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*dto.SeriesExpansion, error) {
	startTime, err := daytime.Parse(cmd.StartTime)
	if err != nil {
		return nil, errs.Invalid("start_time", err.Error())
	}
	endTime, err := daytime.Parse(cmd.EndTime)
	if err != nil {
		return nil, errs.Invalid("end_time", err.Error())
	}
	rule, err := parseRule(cmd)
	if err != nil {
		return nil, err
	}
	startDate, err := daytime.ParseDate(cmd.StartDate, time.UTC)
	if err != nil {
		return nil, errs.Invalid("start_date", err.Error())
	}
	endDate, err := daytime.ParseDate(cmd.EndDate, time.UTC)
	if err != nil {
		return nil, errs.Invalid("end_date", err.Error())
	}
	requesterType := strings.TrimSpace(cmd.RequesterType)
	if requesterType == "" && s.Identity != nil {
		id, err := s.Identity.Identify(ctx, cmd.RequesterID)
		if err != nil {
			return nil, err
		}
		requesterType = id.PriorityClass
	}
	seriesID := strings.TrimSpace(cmd.SeriesID)
	if seriesID == "" {
		if s.NewID != nil {
			seriesID = s.NewID()
		} else {
			seriesID = uuid.NewString()
		}
	}
	resourceID := domainresource.ResourceID(strings.TrimSpace(cmd.ResourceID))

	var out *dto.SeriesExpansion
	err = s.Exec.Run(ctx, support.ResourceKeys(resourceID), func(ctx context.Context, tx *support.Tx) error {
		if _, err := tx.Series().ByID(ctx, domainrecurrence.SeriesID(seriesID)); err == nil {
			return errs.Invalid("series_id", "already exists")
		} else if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		res, err := tx.Resources().ByID(ctx, resourceID)
		if err != nil {
			return err
		}
		timezone := strings.TrimSpace(cmd.Timezone)
		if timezone == "" {
			timezone = res.Schedule.Timezone
		}
		now := s.now()
		series, err := domainrecurrence.New(domainrecurrence.CreateParams{
			ID:            domainrecurrence.SeriesID(seriesID),
			ResourceID:    res.ID,
			RequesterID:   strings.TrimSpace(cmd.RequesterID),
			RequesterType: requesterType,
			StartTime:     startTime,
			EndTime:       endTime,
			Rule:          rule,
			StartDate:     startDate,
			EndDate:       endDate,
			Timezone:      timezone,
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}
		until := cmd.Until
		if until.IsZero() {
			until = s.horizon(now)
		}
		expansion, err := s.expand(ctx, tx, series, res, until, cmd.MaxInstances, cmd.SkipConflicts)
		if err != nil {
			return err
		}
		out = &expansion
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger().Info("series created", "series_id", seriesID, "resource_id", resourceID, "generated", len(out.Generated), "conflicts", len(out.Conflicts))
	return out, nil
}

// Expand materializes occurrences up to Until that are not yet instances.
func (s *Service) Expand(ctx context.Context, cmd ExpandCommand) (*dto.SeriesExpansion, error) {
	var out *dto.SeriesExpansion
	err := s.withSeries(ctx, cmd.SeriesID, func(ctx context.Context, tx *support.Tx, series *domainrecurrence.Series, res *domainresource.Resource) error {
		until := cmd.Until
		if until.IsZero() {
			until = s.horizon(s.now())
		}
		expansion, err := s.expand(ctx, tx, series, res, until, cmd.MaxInstances, cmd.SkipConflicts)
		if err != nil {
			return err
		}
		out = &expansion
		return nil
	})
	return out, err
}

// Cancel closes the series and cancels the reservations of the instances the
// scope selects. Each cancellation frees its window for the waiting list.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (dto.Series, error) {
	scope, err := domainrecurrence.ParseScope(cmd.Scope)
	if err != nil {
		return dto.Series{}, err
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = "series-cancelled"
	}
	var out dto.Series
	err = s.withSeries(ctx, cmd.SeriesID, func(ctx context.Context, tx *support.Tx, series *domainrecurrence.Series, _ *domainresource.Resource) error {
		now := s.now()
		affected, err := series.Cancel(scope, reason, now)
		if err != nil {
			return err
		}
		if err := s.cancelReservations(ctx, tx, affected, reason, now); err != nil {
			return err
		}
		if err := tx.Series().Save(ctx, series); err != nil {
			return err
		}
		tx.Track(series)
		out = dto.MapSeries(series)
		return nil
	})
	if err != nil {
		return dto.Series{}, err
	}
	s.logger().Info("series cancelled", "series_id", out.ID, "scope", scope)
	return out, nil
}

// UpdateTimes supersedes the instances in scope and re-expands them with the
// new time of day. Without SkipConflicts a conflicting occurrence rolls the
// whole change back.
func (s *Service) UpdateTimes(ctx context.Context, cmd UpdateTimesCommand) (*dto.SeriesExpansion, error) {
	scope, err := domainrecurrence.ParseScope(cmd.Scope)
	if err != nil {
		return nil, err
	}
	start, err := daytime.Parse(cmd.StartTime)
	if err != nil {
		return nil, errs.Invalid("start_time", err.Error())
	}
	end, err := daytime.Parse(cmd.EndTime)
	if err != nil {
		return nil, errs.Invalid("end_time", err.Error())
	}
	var out *dto.SeriesExpansion
	err = s.withSeries(ctx, cmd.SeriesID, func(ctx context.Context, tx *support.Tx, series *domainrecurrence.Series, res *domainresource.Resource) error {
		now := s.now()
		affected, err := series.UpdateTimes(start, end, scope, now)
		if err != nil {
			return err
		}
		if err := s.cancelReservations(ctx, tx, affected, rescheduledReason, now); err != nil {
			return err
		}
		until := s.horizon(now)
		if last := latestEnd(affected); last.After(until) {
			until = last
		}
		expansion, err := s.expand(ctx, tx, series, res, until, 0, cmd.SkipConflicts)
		if err != nil {
			return err
		}
		out = &expansion
		return nil
	})
	return out, err
}

// GenerateDue is the instance sweep: active series are extended to the
// horizon with conflicts flagged, and finished series are completed.
func (s *Service) GenerateDue(ctx context.Context, _ GenerateDueCommand) (dto.SweepReport, error) {
	const job = "series.generate"
	var active []*domainrecurrence.Series
	err := support.Read(ctx, s.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		active, err = unit.Series().ListByStatus(ctx, domainrecurrence.StatusActive)
		return err
	})
	if err != nil {
		return dto.SweepReport{Job: job}, err
	}
	return support.SweepEach(ctx, s.Logger, job, active, idOfSeries, func(ctx context.Context, item *domainrecurrence.Series) (bool, error) {
		changed := false
		err := s.withSeries(ctx, string(item.ID), func(ctx context.Context, tx *support.Tx, series *domainrecurrence.Series, res *domainresource.Resource) error {
			changed = false
			now := s.now()
			if series.Complete(now) {
				changed = true
				if err := tx.Series().Save(ctx, series); err != nil {
					return err
				}
				tx.Track(series)
				return nil
			}
			if series.Status != domainrecurrence.StatusActive {
				return nil
			}
			expansion, err := s.expand(ctx, tx, series, res, s.horizon(now), s.Policy.MaxInstancesPerRun, true)
			if err != nil {
				return err
			}
			changed = len(expansion.Generated)+len(expansion.Conflicts) > 0
			return nil
		})
		return changed, err
	}), nil
}

func (s *Service) Get(ctx context.Context, q GetQuery) (dto.Series, error) {
	var out dto.Series
	err := support.Read(ctx, s.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		series, err := unit.Series().ByID(ctx, domainrecurrence.SeriesID(strings.TrimSpace(q.SeriesID)))
		if err != nil {
			return err
		}
		out = dto.MapSeries(series)
		return nil
	})
	return out, err
}

// expand runs the expander with the conflict detector as checker, creates a
// PENDING reservation per generated instance and records the result on the
// series. Nothing is written when the expansion aborts.
func (s *Service) expand(ctx context.Context, tx *support.Tx, series *domainrecurrence.Series, res *domainresource.Resource, until time.Time, maxInstances int, skipConflicts bool) (dto.SeriesExpansion, error) {
	check := func(w window.TimeWindow) error {
		result, err := s.Detector.CheckResource(ctx, tx, res, conflicts.Request{
			Window:        w,
			RequesterType: series.RequesterType,
			Options:       domainresource.EvalOptions{IgnoreLeadTime: true},
		})
		if err != nil {
			return err
		}
		return result.Err()
	}
	generated, conflicted, err := s.Expander.Expand(series, until, maxInstances, skipConflicts, check)
	if err != nil {
		return dto.SeriesExpansion{}, err
	}
	now := s.now()
	for i := range generated {
		inst := &generated[i]
		r, err := domainreservation.New(domainreservation.CreateParams{
			ID:            domainreservation.ReservationID(inst.ID),
			ResourceID:    series.ResourceID,
			RequesterID:   series.RequesterID,
			RequesterType: series.RequesterType,
			Window:        inst.Window,
			SeriesID:      string(series.ID),
			InstanceIndex: inst.Index,
			CreatedAt:     now,
		})
		if err != nil {
			return dto.SeriesExpansion{}, err
		}
		if err := tx.Reservations().Save(ctx, r); err != nil {
			return dto.SeriesExpansion{}, err
		}
		tx.Track(r)
		inst.ReservationID = string(r.ID)
	}
	if err := series.AddInstances(generated, conflicted, now); err != nil {
		return dto.SeriesExpansion{}, err
	}
	if err := tx.Series().Save(ctx, series); err != nil {
		return dto.SeriesExpansion{}, err
	}
	tx.Track(series)
	return dto.SeriesExpansion{
		Series:    dto.MapSeries(series),
		Generated: dto.MapInstances(generated),
		Conflicts: dto.MapInstances(conflicted),
	}, nil
}

func (s *Service) cancelReservations(ctx context.Context, tx *support.Tx, affected []domainrecurrence.Instance, reason string, now time.Time) error {
	for _, inst := range affected {
		if inst.ReservationID == "" {
			continue
		}
		r, err := tx.Reservations().ByID(ctx, domainreservation.ReservationID(inst.ReservationID))
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if !r.Status.Active() {
			continue
		}
		if err := r.Cancel(reason, now); err != nil {
			return err
		}
		if err := tx.Reservations().Save(ctx, r); err != nil {
			return err
		}
		tx.Track(r)
	}
	return nil
}

// withSeries locks the series' resource and loads both.
func (s *Service) withSeries(ctx context.Context, id string, fn func(ctx context.Context, tx *support.Tx, series *domainrecurrence.Series, res *domainresource.Resource) error) error {
	sid := domainrecurrence.SeriesID(strings.TrimSpace(id))
	if sid == "" {
		return errs.Invalid("series_id", "required")
	}
	var resourceID domainresource.ResourceID
	err := support.Read(ctx, s.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		series, err := unit.Series().ByID(ctx, sid)
		if err != nil {
			return err
		}
		resourceID = series.ResourceID
		return nil
	})
	if err != nil {
		return err
	}
	return s.Exec.Run(ctx, support.ResourceKeys(resourceID), func(ctx context.Context, tx *support.Tx) error {
		series, err := tx.Series().ByID(ctx, sid)
		if err != nil {
			return err
		}
		res, err := tx.Resources().ByID(ctx, series.ResourceID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, series, res)
	})
}

func parseRule(cmd CreateCommand) (domainrecurrence.Rule, error) {
	rule := domainrecurrence.Rule{
		Frequency:  domainrecurrence.Frequency(strings.ToUpper(strings.TrimSpace(cmd.Frequency))),
		Interval:   cmd.Interval,
		DayOfMonth: cmd.DayOfMonth,
	}
	for _, raw := range cmd.Weekdays {
		wd, err := daytime.ParseWeekday(raw)
		if err != nil {
			return domainrecurrence.Rule{}, errs.Invalid("weekdays", err.Error())
		}
		rule.Weekdays = append(rule.Weekdays, wd)
	}
	return rule, nil
}

func latestEnd(items []domainrecurrence.Instance) time.Time {
	var last time.Time
	for _, inst := range items {
		if inst.Window.End.After(last) {
			last = inst.Window.End
		}
	}
	return last
}

func idOfSeries(s *domainrecurrence.Series) string { return string(s.ID) }
