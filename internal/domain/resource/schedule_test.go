package resource

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"slotkeeper/internal/domain/shared/daytime"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/window"
)

func at(day, clock string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", day+" "+clock)
	if err != nil {
		panic(err)
	}
	return t
}

func weekdays(start, end string) []OperatingHours {
	var out []OperatingHours
	for wd := time.Monday; wd <= time.Friday; wd++ {
		out = append(out, OperatingHours{Weekday: wd, Start: daytime.MustParse(start), End: daytime.MustParse(end)})
	}
	return out
}

func TestScheduleRuleEvaluate(t *testing.T) {
	t.Parallel()
	now := at("2024-03-01", "12:00")
	base := ScheduleRule{WeeklyHours: weekdays("08:00", "18:00")}

	tests := []struct {
		name   string
		rule   func() ScheduleRule
		win    window.TimeWindow
		kind   string
		opts   EvalOptions
		expect []errs.ConflictReason
	}{
		{
			name:   "inside weekday hours",
			rule:   func() ScheduleRule { return base },
			win:    window.Must(at("2024-03-04", "09:00"), at("2024-03-04", "10:00")),
			expect: nil,
		},
		{
			name:   "saturday is closed",
			rule:   func() ScheduleRule { return base },
			win:    window.Must(at("2024-03-09", "09:00"), at("2024-03-09", "10:00")),
			expect: []errs.ConflictReason{errs.ReasonOutOfHours},
		},
		{
			name:   "runs past closing",
			rule:   func() ScheduleRule { return base },
			win:    window.Must(at("2024-03-04", "17:30"), at("2024-03-04", "18:30")),
			expect: []errs.ConflictReason{errs.ReasonOutOfHours},
		},
		{
			name:   "ends exactly at closing",
			rule:   func() ScheduleRule { return base },
			win:    window.Must(at("2024-03-04", "17:00"), at("2024-03-04", "18:00")),
			expect: nil,
		},
		{
			name: "crosses midnight on a 24h resource",
			rule: func() ScheduleRule { return ScheduleRule{} },
			win:  window.Must(at("2024-03-04", "22:00"), at("2024-03-05", "02:00")),
		},
		{
			name:   "crosses midnight on an office resource",
			rule:   func() ScheduleRule { return base },
			win:    window.Must(at("2024-03-04", "17:00"), at("2024-03-05", "09:00")),
			expect: []errs.ConflictReason{errs.ReasonOutOfHours},
		},
		{
			name: "unavailable exception",
			rule: func() ScheduleRule {
				r := base
				r.Exceptions = []Exception{{Date: "2024-03-04", Kind: ExceptionUnavailable, Reason: "holiday"}}
				return r
			},
			win:    window.Must(at("2024-03-04", "09:00"), at("2024-03-04", "10:00")),
			expect: []errs.ConflictReason{errs.ReasonScheduleRestriction},
		},
		{
			name: "partial maintenance exception misses the window",
			rule: func() ScheduleRule {
				r := base
				r.Exceptions = []Exception{{Date: "2024-03-04", Kind: ExceptionMaintenance, Start: daytime.MustParse("12:00"), End: daytime.MustParse("13:00")}}
				return r
			},
			win: window.Must(at("2024-03-04", "09:00"), at("2024-03-04", "12:00")),
		},
		{
			name: "partial maintenance exception hits the window",
			rule: func() ScheduleRule {
				r := base
				r.Exceptions = []Exception{{Date: "2024-03-04", Kind: ExceptionMaintenance, Start: daytime.MustParse("12:00"), End: daytime.MustParse("13:00")}}
				return r
			},
			win:    window.Must(at("2024-03-04", "11:00"), at("2024-03-04", "12:30")),
			expect: []errs.ConflictReason{errs.ReasonMaintenance},
		},
		{
			name: "special hours open a saturday",
			rule: func() ScheduleRule {
				r := base
				r.Exceptions = []Exception{{Date: "2024-03-09", Kind: ExceptionSpecialHours, Start: daytime.MustParse("10:00"), End: daytime.MustParse("14:00")}}
				return r
			},
			win: window.Must(at("2024-03-09", "10:00"), at("2024-03-09", "11:00")),
		},
		{
			name: "special hours shorten a weekday",
			rule: func() ScheduleRule {
				r := base
				r.Exceptions = []Exception{{Date: "2024-03-04", Kind: ExceptionSpecialHours, Start: daytime.MustParse("08:00"), End: daytime.MustParse("12:00")}}
				return r
			},
			win:    window.Must(at("2024-03-04", "13:00"), at("2024-03-04", "14:00")),
			expect: []errs.ConflictReason{errs.ReasonOutOfHours},
		},
		{
			name: "weekly maintenance block",
			rule: func() ScheduleRule {
				r := base
				r.Maintenance = []MaintenanceWindow{{Frequency: MaintenanceWeekly, Weekday: time.Monday, Start: daytime.MustParse("08:00"), End: daytime.MustParse("09:00")}}
				return r
			},
			win:    window.Must(at("2024-03-11", "08:30"), at("2024-03-11", "09:30")),
			expect: []errs.ConflictReason{errs.ReasonMaintenance},
		},
		{
			name: "monthly maintenance clamps to month end",
			rule: func() ScheduleRule {
				return ScheduleRule{Maintenance: []MaintenanceWindow{{Frequency: MaintenanceMonthly, DayOfMonth: 31, Start: daytime.MustParse("00:00"), End: daytime.MustParse("02:00")}}}
			},
			win:    window.Must(at("2024-04-30", "01:00"), at("2024-04-30", "03:00")),
			expect: []errs.ConflictReason{errs.ReasonMaintenance},
		},
		{
			name: "duration bounds",
			rule: func() ScheduleRule {
				r := base
				r.Restrictions.MinDuration = 30 * time.Minute
				r.Restrictions.MaxDuration = 2 * time.Hour
				return r
			},
			win:    window.Must(at("2024-03-04", "09:00"), at("2024-03-04", "12:00")),
			expect: []errs.ConflictReason{errs.ReasonScheduleRestriction},
		},
		{
			name: "user type not allowed",
			rule: func() ScheduleRule {
				r := base
				r.Restrictions.AllowedUserTypes = []string{"staff"}
				return r
			},
			win:    window.Must(at("2024-03-04", "09:00"), at("2024-03-04", "10:00")),
			kind:   "student",
			expect: []errs.ConflictReason{errs.ReasonScheduleRestriction},
		},
		{
			name: "too soon",
			rule: func() ScheduleRule {
				r := ScheduleRule{}
				r.Restrictions.MinAdvanceNoticeHours = 24
				return r
			},
			win:    window.Must(at("2024-03-01", "20:00"), at("2024-03-01", "21:00")),
			expect: []errs.ConflictReason{errs.ReasonTooSoon},
		},
		{
			name: "too far",
			rule: func() ScheduleRule {
				r := ScheduleRule{}
				r.Restrictions.MaxAdvanceNoticeDays = 2
				return r
			},
			win:    window.Must(at("2024-03-04", "09:00"), at("2024-03-04", "10:00")),
			expect: []errs.ConflictReason{errs.ReasonTooFar},
		},
		{
			name: "lead time ignored for materialized windows",
			rule: func() ScheduleRule {
				r := ScheduleRule{}
				r.Restrictions.MaxAdvanceNoticeDays = 2
				return r
			},
			win:  window.Must(at("2024-03-04", "09:00"), at("2024-03-04", "10:00")),
			opts: EvalOptions{IgnoreLeadTime: true},
		},
		{
			name:   "start in the past is always too soon",
			rule:   func() ScheduleRule { return ScheduleRule{} },
			win:    window.Must(at("2024-02-28", "09:00"), at("2024-02-28", "10:00")),
			opts:   EvalOptions{IgnoreLeadTime: true},
			expect: []errs.ConflictReason{errs.ReasonTooSoon},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.rule().Evaluate(tt.win, now, tt.kind, tt.opts)
			if !reflect.DeepEqual(got, tt.expect) {
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestScheduleRuleEvaluateUsesLocalHours(t *testing.T) {
	t.Parallel()
	rule := ScheduleRule{Timezone: "UTC", WeeklyHours: weekdays("08:00", "18:00")}
	plusThree := time.FixedZone("UTC+3", 3*3600)
	// 09:00 local in UTC+3 is 06:00 UTC, before opening.
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, plusThree)
	w := window.Must(start, start.Add(time.Hour))
	got := rule.Evaluate(w, at("2024-03-01", "00:00"), "", EvalOptions{})
	if !reflect.DeepEqual(got, []errs.ConflictReason{errs.ReasonOutOfHours}) {
		t.Fatalf("expected OUT_OF_HOURS, got %v", got)
	}
}

func TestResourceStatusGatesBooking(t *testing.T) {
	t.Parallel()
	res, err := Register(RegisterParams{ID: "r1", Name: "Lab", Type: "lab", Capacity: 10, CreatedAt: at("2024-03-01", "00:00")})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	w := window.Must(at("2024-03-04", "09:00"), at("2024-03-04", "10:00"))
	now := at("2024-03-01", "00:00")
	if got := res.Evaluate(w, now, "", EvalOptions{}); len(got) != 0 {
		t.Fatalf("active resource should be bookable, got %v", got)
	}
	if err := res.SetStatus(StatusMaintenance, "filter swap", now); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if got := res.Evaluate(w, now, "", EvalOptions{}); !reflect.DeepEqual(got, []errs.ConflictReason{errs.ReasonMaintenance}) {
		t.Fatalf("expected MAINTENANCE, got %v", got)
	}
	if err := res.SetStatus(StatusOutOfService, "", now); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if got := res.Evaluate(w, now, "", EvalOptions{}); !reflect.DeepEqual(got, []errs.ConflictReason{errs.ReasonScheduleRestriction}) {
		t.Fatalf("expected SCHEDULE_RESTRICTION, got %v", got)
	}
	evs := res.Drain()
	if len(evs) != 3 {
		t.Fatalf("expected registered + two status events, got %d", len(evs))
	}
	if err := res.SetStatus("BROKEN", "", now); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	_, err := Register(RegisterParams{ID: "r1", Name: "Lab", Type: "lab", Capacity: 0})
	var verr *errs.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := verr.FieldErrors["capacity"]; !ok {
		t.Fatalf("expected capacity field error, got %v", verr.FieldErrors)
	}
}

func TestParseWeeklyHours(t *testing.T) {
	t.Parallel()
	hours, err := ParseWeeklyHours(json.RawMessage(`[{"weekday":"MON","start":"08:00","end":"18:00"},{"weekday":"friday","start":"08:00","end":"12:00"}]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(hours) != 2 || hours[1].Weekday != time.Friday || hours[1].End != daytime.MustParse("12:00") {
		t.Fatalf("unexpected hours %+v", hours)
	}

	_, err = ParseWeeklyHours(json.RawMessage(`{"monday":{"start":"08:00","end":"18:00"}}`))
	var verr *errs.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected keyed map to be rejected, got %v", err)
	}
	if _, ok := verr.FieldErrors["weekly_hours"]; !ok {
		t.Fatalf("expected weekly_hours field error, got %v", verr.FieldErrors)
	}

	if _, err := ParseWeeklyHours(json.RawMessage(`[{"weekday":"MON","start":"18:00","end":"08:00"}]`)); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected inverted hours to be rejected, got %v", err)
	}
}

func TestParsePriorityWeightsRejectsMap(t *testing.T) {
	t.Parallel()
	weights, err := ParsePriorityWeights(json.RawMessage(`[{"user_type":"faculty","weight":3}]`))
	if err != nil || weights["faculty"] != 3 {
		t.Fatalf("unexpected result %v %v", weights, err)
	}
	if _, err := ParsePriorityWeights(json.RawMessage(`{"faculty":3}`)); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected keyed map to be rejected, got %v", err)
	}
}

func TestDistanceMeters(t *testing.T) {
	t.Parallel()
	a := Location{Building: "B1", Floor: 1}
	b := Location{Building: "B1", Floor: 3}
	if d, ok := DistanceMeters(a, b); !ok || d != sameSiteMeters+2*floorHeightMeters {
		t.Fatalf("unexpected floor distance %v %v", d, ok)
	}
	if _, ok := DistanceMeters(a, Location{Building: "B2"}); ok {
		t.Fatalf("different buildings without coordinates should be unknown")
	}
	p := Location{Coordinates: &Coordinates{Lat: 52.52, Lon: 13.405}}
	q := Location{Coordinates: &Coordinates{Lat: 52.5201, Lon: 13.405}}
	if d, ok := DistanceMeters(p, q); !ok || d < 10 || d > 12 {
		t.Fatalf("expected roughly 11m, got %v", d)
	}
}

func TestBlockedBetween(t *testing.T) {
	t.Parallel()
	rule := ScheduleRule{
		Exceptions:  []Exception{{Date: "2024-03-05", Kind: ExceptionUnavailable}},
		Maintenance: []MaintenanceWindow{{Frequency: MaintenanceWeekly, Weekday: time.Monday, Start: daytime.MustParse("07:00"), End: daytime.MustParse("08:00")}},
	}
	blocks := rule.BlockedBetween(at("2024-03-04", "00:00"), at("2024-03-06", "00:00"))
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %v", blocks)
	}
	if !blocks[0].Window.Start.Equal(at("2024-03-04", "07:00")) || !blocks[1].Window.End.Equal(at("2024-03-06", "00:00")) {
		t.Fatalf("unexpected blocks %v", blocks)
	}
	if blocks[0].Reason != errs.ReasonMaintenance || blocks[1].Reason != errs.ReasonScheduleRestriction {
		t.Fatalf("unexpected reasons %v", blocks)
	}
}

func TestBlockedBetweenAcrossDST(t *testing.T) {
	t.Parallel()
	madrid, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Skipf("tz data: %v", err)
	}
	rule := ScheduleRule{
		Timezone:    "Europe/Madrid",
		Exceptions:  []Exception{{Date: "2024-03-31", Kind: ExceptionUnavailable}},
		Maintenance: []MaintenanceWindow{{Frequency: MaintenanceDaily, Start: daytime.MustParse("10:00"), End: daytime.MustParse("11:00")}},
	}
	from := time.Date(2024, 3, 30, 0, 0, 0, 0, madrid)
	to := time.Date(2024, 4, 1, 0, 0, 0, 0, madrid)
	blocks := rule.BlockedBetween(from, to)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %v", blocks)
	}

	for _, i := range []int{0, 2} {
		b := blocks[i]
		local := b.Window.Start.In(madrid)
		if b.Reason != errs.ReasonMaintenance || local.Hour() != 10 || b.Window.Duration() != time.Hour {
			t.Fatalf("maintenance block %d = %v (local start %s)", i, b, local.Format("15:04 MST"))
		}
	}
	closed := blocks[1]
	if !closed.Window.Start.Equal(time.Date(2024, 3, 31, 0, 0, 0, 0, madrid)) || !closed.Window.End.Equal(to) {
		t.Fatalf("unavailable block = %v", closed)
	}
	if closed.Window.Duration() != 23*time.Hour {
		t.Fatalf("the spring-forward day lasts 23h, block lasts %s", closed.Window.Duration())
	}
}
