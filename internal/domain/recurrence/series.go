package recurrence

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/daytime"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/events"
	"slotkeeper/internal/domain/shared/window"
)

var (
	ErrInvalidState     = fmt.Errorf("series: %w", errs.ErrInvalidStateTransition)
	ErrNotFound         = fmt.Errorf("series: %w", errs.ErrNotFound)
	ErrConcurrentUpdate = fmt.Errorf("series: %w", errs.ErrStale)
)

type SeriesID string

type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

type InstanceStatus string

const (
	InstancePending   InstanceStatus = "PENDING"
	InstanceConfirmed InstanceStatus = "CONFIRMED"
	InstanceCancelled InstanceStatus = "CANCELLED"
	InstanceConflict  InstanceStatus = "CONFLICT"
)

// Scope selects which instances a series level change touches.
type Scope string

const (
	ScopeAll        Scope = "ALL"
	ScopeFutureOnly Scope = "FUTURE_ONLY"
)

func ParseScope(raw string) (Scope, error) {
	switch s := Scope(strings.ToUpper(strings.TrimSpace(raw))); s {
	case ScopeAll, ScopeFutureOnly:
		return s, nil
	case "":
		return ScopeAll, nil
	}
	return "", errs.Invalid("scope", fmt.Sprintf("unknown scope %q", raw))
}

// Rule is the recurrence definition. Weekdays apply to WEEKLY and DayOfMonth
// to MONTHLY; other fields are ignored for the remaining frequencies.
type Rule struct {
	Frequency  Frequency
	Interval   int
	Weekdays   []time.Weekday
	DayOfMonth int
}

type Instance struct {
	ID            string
	SeriesID      SeriesID
	Index         int
	Revision      int
	Window        window.TimeWindow
	Status        InstanceStatus
	ReservationID string
	Reasons       []errs.ConflictReason
	// Superseded instances were replaced by a time change and are kept for history.
	Superseded bool
}

type Series struct {
	ID                 SeriesID
	ResourceID         resource.ResourceID
	RequesterID        string
	RequesterType      string
	StartTime          daytime.Time
	EndTime            daytime.Time
	Rule               Rule
	StartDate          time.Time
	EndDate            time.Time
	Timezone           string
	Status             Status
	Revision           int
	Instances          []Instance
	TotalInstances     int
	ConfirmedInstances int
	CancelReason       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Version            int64
	events.Recorder
}

type Repository interface {
	ByID(ctx context.Context, id SeriesID) (*Series, error)
	Save(ctx context.Context, s *Series) error
	ListByStatus(ctx context.Context, status Status) ([]*Series, error)
	ListByResource(ctx context.Context, resourceID resource.ResourceID) ([]*Series, error)
}

type CreateParams struct {
	ID            SeriesID
	ResourceID    resource.ResourceID
	RequesterID   string
	RequesterType string
	StartTime     daytime.Time
	EndTime       daytime.Time
	Rule          Rule
	StartDate     time.Time
	EndDate       time.Time
	Timezone      string
	CreatedAt     time.Time
}

func New(params CreateParams) (*Series, error) {
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
	if _, err := daytime.LoadLocation(params.Timezone); err != nil {
		verr.Add("timezone", err.Error())
	}
	validateTimes(verr, params.StartTime, params.EndTime)
	if params.StartDate.IsZero() || params.EndDate.IsZero() {
		verr.Add("date_range", "start and end dates are required")
	} else if civil(params.EndDate).Before(civil(params.StartDate)) {
		verr.Add("date_range", "end date precedes start date")
	}
	rule := params.Rule
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	if rule.Frequency == Monthly && rule.DayOfMonth == 0 && !params.StartDate.IsZero() {
		rule.DayOfMonth = params.StartDate.Day()
	}
	validateRule(verr, rule)
	if verr.HasErrors() {
		return nil, verr
	}
	now := params.CreatedAt.UTC()
	s := &Series{
		ID:            params.ID,
		ResourceID:    params.ResourceID,
		RequesterID:   params.RequesterID,
		RequesterType: params.RequesterType,
		StartTime:     params.StartTime,
		EndTime:       params.EndTime,
		Rule:          normalizeRule(rule),
		StartDate:     civil(params.StartDate),
		EndDate:       civil(params.EndDate),
		Timezone:      params.Timezone,
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.Record(Created{SeriesID: s.ID, ResourceID: s.ResourceID, RequesterID: s.RequesterID, At: now})
	return s, nil
}

func validateTimes(verr *errs.ValidationError, start, end daytime.Time) {
	if !start.Valid() || !end.Valid() || end <= start {
		verr.Add("time_of_day", "end time must be after start time")
	}
}

func validateRule(verr *errs.ValidationError, rule Rule) {
	if rule.Interval < 1 {
		verr.Add("interval", "must be at least 1")
	}
	switch rule.Frequency {
	case Daily:
	case Weekly:
		if len(rule.Weekdays) == 0 {
			verr.Add("weekdays", "weekly series need at least one weekday")
		}
		for _, wd := range rule.Weekdays {
			if wd < time.Sunday || wd > time.Saturday {
				verr.Add("weekdays", "out of range")
			}
		}
	case Monthly:
		if rule.DayOfMonth < 1 || rule.DayOfMonth > 31 {
			verr.Add("day_of_month", "must be within 1..31")
		}
	default:
		verr.Add("frequency", fmt.Sprintf("unknown frequency %q", rule.Frequency))
	}
}

func normalizeRule(rule Rule) Rule {
	if len(rule.Weekdays) > 0 {
		seen := make(map[time.Weekday]bool, len(rule.Weekdays))
		days := make([]time.Weekday, 0, len(rule.Weekdays))
		for _, wd := range rule.Weekdays {
			if !seen[wd] {
				seen[wd] = true
				days = append(days, wd)
			}
		}
		sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
		rule.Weekdays = days
	}
	return rule
}

// civil drops the clock part, keeping the calendar date at UTC midnight.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Series) Location() *time.Location {
	loc, err := daytime.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// InstanceID is stable for a given occurrence and revision.
func (s *Series) InstanceID(index, revision int) string {
	return fmt.Sprintf("%s-%04d-r%d", s.ID, index, revision)
}

// AddInstances records the output of an expansion.
func (s *Series) AddInstances(generated, conflicts []Instance, now time.Time) error {
	if s.Status != StatusActive {
		return ErrInvalidState
	}
	if len(generated) == 0 && len(conflicts) == 0 {
		return nil
	}
	s.Instances = append(s.Instances, generated...)
	s.Instances = append(s.Instances, conflicts...)
	sort.SliceStable(s.Instances, func(i, j int) bool {
		if s.Instances[i].Index != s.Instances[j].Index {
			return s.Instances[i].Index < s.Instances[j].Index
		}
		return s.Instances[i].Revision < s.Instances[j].Revision
	})
	s.recount()
	s.UpdatedAt = now.UTC()
	s.Record(Expanded{SeriesID: s.ID, RequesterID: s.RequesterID, Generated: len(generated), Conflicts: len(conflicts), At: s.UpdatedAt})
	return nil
}

// LinkReservation stores the reservation materialized for an instance.
func (s *Series) LinkReservation(instanceID, reservationID string) {
	for i := range s.Instances {
		if s.Instances[i].ID == instanceID {
			s.Instances[i].ReservationID = reservationID
			return
		}
	}
}

// SyncInstance mirrors a reservation status change onto the owning instance.
func (s *Series) SyncInstance(reservationID string, status InstanceStatus, now time.Time) bool {
	for i := range s.Instances {
		inst := &s.Instances[i]
		if inst.ReservationID != reservationID || inst.Status == status {
			continue
		}
		inst.Status = status
		s.recount()
		s.UpdatedAt = now.UTC()
		return true
	}
	return false
}

// Cancel cancels the series and returns the instances it cancelled. ALL
// touches every instance that has not ended yet; FUTURE_ONLY only those
// starting after now.
func (s *Series) Cancel(scope Scope, reason string, now time.Time) ([]Instance, error) {
	if s.Status != StatusActive {
		return nil, ErrInvalidState
	}
	affected := s.cancelInstances(scope, now, false)
	s.Status = StatusCancelled
	s.CancelReason = reason
	s.recount()
	s.UpdatedAt = now.UTC()
	s.Record(Cancelled{SeriesID: s.ID, RequesterID: s.RequesterID, Scope: scope, Instances: len(affected), Reason: reason, At: s.UpdatedAt})
	return affected, nil
}

// UpdateTimes changes the time of day. Instances that have not started yet
// are superseded and the caller re-expands the series to recreate them with
// the new times. An instance already in progress keeps its times under
// either scope.
func (s *Series) UpdateTimes(start, end daytime.Time, scope Scope, now time.Time) ([]Instance, error) {
	if s.Status != StatusActive {
		return nil, ErrInvalidState
	}
	verr := &errs.ValidationError{}
	validateTimes(verr, start, end)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	affected := s.cancelInstances(ScopeFutureOnly, now, true)
	s.StartTime = start
	s.EndTime = end
	s.Revision++
	s.recount()
	s.UpdatedAt = now.UTC()
	s.Record(TimesUpdated{SeriesID: s.ID, StartTime: start, EndTime: end, Scope: scope, At: s.UpdatedAt})
	return affected, nil
}

func (s *Series) cancelInstances(scope Scope, now time.Time, supersede bool) []Instance {
	var affected []Instance
	for i := range s.Instances {
		inst := &s.Instances[i]
		if inst.Superseded || inst.Status == InstanceCancelled || !inst.Window.End.After(now) {
			continue
		}
		if scope == ScopeFutureOnly && !inst.Window.Start.After(now) {
			continue
		}
		inst.Status = InstanceCancelled
		inst.Superseded = supersede
		affected = append(affected, *inst)
	}
	return affected
}

// Complete closes an active series once its date range is over and every
// instance has ended or been resolved.
func (s *Series) Complete(now time.Time) bool {
	if s.Status != StatusActive {
		return false
	}
	loc := s.Location()
	last := time.Date(s.EndDate.Year(), s.EndDate.Month(), s.EndDate.Day()+1, 0, 0, 0, 0, loc)
	if now.Before(last) {
		return false
	}
	for _, inst := range s.Instances {
		if inst.Superseded {
			continue
		}
		if (inst.Status == InstancePending || inst.Status == InstanceConfirmed) && inst.Window.End.After(now) {
			return false
		}
	}
	s.Status = StatusCompleted
	s.UpdatedAt = now.UTC()
	s.Record(Completed{SeriesID: s.ID, At: s.UpdatedAt})
	return true
}

// Materialized reports whether an occurrence already has a live instance.
func (s *Series) Materialized(index int) bool {
	for _, inst := range s.Instances {
		if inst.Index == index && !inst.Superseded {
			return true
		}
	}
	return false
}

func (s *Series) recount() {
	total, confirmed := 0, 0
	for _, inst := range s.Instances {
		if inst.Superseded || inst.Status == InstanceCancelled {
			continue
		}
		total++
		if inst.Status == InstanceConfirmed {
			confirmed++
		}
	}
	s.TotalInstances = total
	s.ConfirmedInstances = confirmed
}
