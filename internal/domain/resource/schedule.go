package resource

import (
	"fmt"
	"sort"
	"time"

	"slotkeeper/internal/domain/shared/daytime"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/window"
)

type ExceptionKind string

const (
	ExceptionUnavailable  ExceptionKind = "UNAVAILABLE"
	ExceptionSpecialHours ExceptionKind = "SPECIAL_HOURS"
	ExceptionMaintenance  ExceptionKind = "MAINTENANCE"
)

type MaintenanceFrequency string

const (
	MaintenanceDaily   MaintenanceFrequency = "DAILY"
	MaintenanceWeekly  MaintenanceFrequency = "WEEKLY"
	MaintenanceMonthly MaintenanceFrequency = "MONTHLY"
)

// OperatingHours opens the resource on Weekday between Start and End local time.
type OperatingHours struct {
	Weekday time.Weekday
	Start   daytime.Time
	End     daytime.Time
}

// Exception overrides a single local date. A zero End means the whole day.
type Exception struct {
	Date   string
	Kind   ExceptionKind
	Start  daytime.Time
	End    daytime.Time
	Reason string
}

func (e Exception) AllDay() bool {
	return e.End == 0
}

func (e Exception) span() (daytime.Time, daytime.Time) {
	if e.AllDay() {
		return 0, daytime.EndOfDay
	}
	return e.Start, e.End
}

// MaintenanceWindow is a recurring block during which the resource is serviced.
type MaintenanceWindow struct {
	Frequency   MaintenanceFrequency
	Weekday     time.Weekday
	DayOfMonth  int
	Start       daytime.Time
	End         daytime.Time
	Description string
}

func (m MaintenanceWindow) occursOn(day time.Time) bool {
	switch m.Frequency {
	case MaintenanceDaily:
		return true
	case MaintenanceWeekly:
		return day.Weekday() == m.Weekday
	case MaintenanceMonthly:
		return day.Day() == clampDay(day.Year(), day.Month(), m.DayOfMonth)
	}
	return false
}

type Restrictions struct {
	MinDuration           time.Duration
	MaxDuration           time.Duration
	MinAdvanceNoticeHours int
	MaxAdvanceNoticeDays  int
	AllowedUserTypes      []string
	PriorityWeights       map[string]int
}

// ScheduleRule is the administrator defined availability of a resource.
// A rule without weekly hours leaves the resource open around the clock.
type ScheduleRule struct {
	Timezone     string
	WeeklyHours  []OperatingHours
	Exceptions   []Exception
	Maintenance  []MaintenanceWindow
	Restrictions Restrictions
}

// EvalOptions relaxes checks for callers that materialize windows ahead of time.
type EvalOptions struct {
	IgnoreLeadTime bool
}

func (s ScheduleRule) Location() *time.Location {
	loc, err := daytime.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s ScheduleRule) Validate() error {
	verr := &errs.ValidationError{}
	if _, err := daytime.LoadLocation(s.Timezone); err != nil {
		verr.Add("timezone", err.Error())
	}
	for i, h := range s.WeeklyHours {
		field := fmt.Sprintf("weekly_hours[%d]", i)
		if h.Weekday < time.Sunday || h.Weekday > time.Saturday {
			verr.Add(field+".weekday", "out of range")
		}
		if !h.Start.Valid() || !h.End.Valid() || h.End <= h.Start {
			verr.Add(field, "end must be after start")
		}
	}
	for i, ex := range s.Exceptions {
		field := fmt.Sprintf("exceptions[%d]", i)
		if _, err := daytime.ParseDate(ex.Date, time.UTC); err != nil {
			verr.Add(field+".date", err.Error())
		}
		switch ex.Kind {
		case ExceptionUnavailable, ExceptionMaintenance:
			if !ex.AllDay() && (ex.End <= ex.Start || !ex.End.Valid()) {
				verr.Add(field, "end must be after start")
			}
		case ExceptionSpecialHours:
			if ex.End <= ex.Start || !ex.End.Valid() {
				verr.Add(field, "special hours need start and end")
			}
		default:
			verr.Add(field+".kind", fmt.Sprintf("unknown kind %q", ex.Kind))
		}
	}
	for i, m := range s.Maintenance {
		field := fmt.Sprintf("maintenance[%d]", i)
		switch m.Frequency {
		case MaintenanceDaily, MaintenanceWeekly:
		case MaintenanceMonthly:
			if m.DayOfMonth < 1 || m.DayOfMonth > 31 {
				verr.Add(field+".day_of_month", "must be within 1..31")
			}
		default:
			verr.Add(field+".frequency", fmt.Sprintf("unknown frequency %q", m.Frequency))
		}
		if !m.Start.Valid() || !m.End.Valid() || m.End <= m.Start {
			verr.Add(field, "end must be after start")
		}
	}
	r := s.Restrictions
	if r.MinDuration < 0 || r.MaxDuration < 0 {
		verr.Add("restrictions.duration", "must not be negative")
	}
	if r.MinDuration > 0 && r.MaxDuration > 0 && r.MinDuration > r.MaxDuration {
		verr.Add("restrictions.duration", "min exceeds max")
	}
	if r.MinAdvanceNoticeHours < 0 || r.MaxAdvanceNoticeDays < 0 {
		verr.Add("restrictions.advance_notice", "must not be negative")
	}
	return verr.OrNil()
}

// Evaluate lists every calendar rule that w violates. An empty result means
// the window is acceptable as far as the calendar is concerned.
func (s ScheduleRule) Evaluate(w window.TimeWindow, now time.Time, requesterType string, opts EvalOptions) []errs.ConflictReason {
	var reasons []errs.ConflictReason
	r := s.Restrictions

	d := w.Duration()
	if (r.MinDuration > 0 && d < r.MinDuration) || (r.MaxDuration > 0 && d > r.MaxDuration) {
		reasons = append(reasons, errs.ReasonScheduleRestriction)
	}
	if len(r.AllowedUserTypes) > 0 && !contains(r.AllowedUserTypes, requesterType) {
		reasons = append(reasons, errs.ReasonScheduleRestriction)
	}

	loc := s.Location()
	for day := daytime.Midnight(w.Start, loc); day.Before(w.End); day = nextDay(day) {
		reasons = append(reasons, s.evaluateDay(day, w, loc)...)
	}

	lead := w.Start.Sub(now)
	if lead < 0 {
		reasons = append(reasons, errs.ReasonTooSoon)
	} else if !opts.IgnoreLeadTime {
		if r.MinAdvanceNoticeHours > 0 && lead < time.Duration(r.MinAdvanceNoticeHours)*time.Hour {
			reasons = append(reasons, errs.ReasonTooSoon)
		}
		if r.MaxAdvanceNoticeDays > 0 && lead > time.Duration(r.MaxAdvanceNoticeDays)*24*time.Hour {
			reasons = append(reasons, errs.ReasonTooFar)
		}
	}
	return errs.NormalizeReasons(reasons)
}

// evaluateDay checks the part of w that falls on the local date starting at day.
func (s ScheduleRule) evaluateDay(day time.Time, w window.TimeWindow, loc *time.Location) []errs.ConflictReason {
	next := nextDay(day)
	segStart, segEnd := w.Start, w.End
	if segStart.Before(day) {
		segStart = day
	}
	if segEnd.After(next) {
		segEnd = next
	}
	from := daytime.Of(segStart, loc)
	to := daytime.EndOfDay
	if segEnd.Before(next) {
		to = daytime.Of(segEnd, loc)
	}

	var reasons []errs.ConflictReason
	date := day.Format(daytime.DateLayout)
	var special []span
	for _, ex := range s.Exceptions {
		if ex.Date != date {
			continue
		}
		start, end := ex.span()
		switch ex.Kind {
		case ExceptionUnavailable:
			if start < to && from < end {
				reasons = append(reasons, errs.ReasonScheduleRestriction)
			}
		case ExceptionMaintenance:
			if start < to && from < end {
				reasons = append(reasons, errs.ReasonMaintenance)
			}
		case ExceptionSpecialHours:
			special = append(special, span{start, end})
		}
	}

	var open []span
	switch {
	case special != nil:
		open = special
	case len(s.WeeklyHours) == 0:
		open = []span{{0, daytime.EndOfDay}}
	default:
		for _, h := range s.WeeklyHours {
			if h.Weekday == day.Weekday() {
				open = append(open, span{h.Start, h.End})
			}
		}
	}
	if !covers(open, from, to) {
		reasons = append(reasons, errs.ReasonOutOfHours)
	}

	for _, m := range s.Maintenance {
		if m.occursOn(day) && m.Start < to && from < m.End {
			reasons = append(reasons, errs.ReasonMaintenance)
		}
	}
	return reasons
}

// Block is a closed stretch of the calendar with the reason a booking there
// would be rejected.
type Block struct {
	Window window.TimeWindow
	Reason errs.ConflictReason
	Note   string
}

// BlockedBetween lists closed blocks (unavailable or maintenance exceptions and recurring
// windows) intersecting [from, to).
func (s ScheduleRule) BlockedBetween(from, to time.Time) []Block {
	loc := s.Location()
	var out []Block
	for day := daytime.Midnight(from, loc); day.Before(to); day = nextDay(day) {
		date := day.Format(daytime.DateLayout)
		for _, ex := range s.Exceptions {
			if ex.Date != date || ex.Kind == ExceptionSpecialHours {
				continue
			}
			reason := errs.ReasonScheduleRestriction
			if ex.Kind == ExceptionMaintenance {
				reason = errs.ReasonMaintenance
			}
			start, end := ex.span()
			out = appendClipped(out, Block{Window: window.TimeWindow{Start: start.On(day, loc), End: end.On(day, loc)}, Reason: reason, Note: ex.Reason}, from, to)
		}
		for _, m := range s.Maintenance {
			if m.occursOn(day) {
				out = appendClipped(out, Block{Window: window.TimeWindow{Start: m.Start.On(day, loc), End: m.End.On(day, loc)}, Reason: errs.ReasonMaintenance, Note: m.Description}, from, to)
			}
		}
	}
	return out
}

func appendClipped(out []Block, b Block, from, to time.Time) []Block {
	b.Window = window.TimeWindow{Start: b.Window.Start.UTC(), End: b.Window.End.UTC()}
	if !b.Window.Overlaps(window.TimeWindow{Start: from, End: to}) {
		return out
	}
	return append(out, b)
}

type span struct {
	start daytime.Time
	end   daytime.Time
}

// covers merges touching spans and reports whether one of them holds [from, to).
func covers(spans []span, from, to daytime.Time) bool {
	if len(spans) == 0 {
		return false
	}
	sorted := append([]span(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })
	cur := sorted[0]
	for _, sp := range sorted[1:] {
		if sp.start <= cur.end {
			if sp.end > cur.end {
				cur.end = sp.end
			}
			continue
		}
		if cur.start <= from && to <= cur.end {
			return true
		}
		cur = sp
	}
	return cur.start <= from && to <= cur.end
}

func nextDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, day.Location())
}

func clampDay(year int, month time.Month, day int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
