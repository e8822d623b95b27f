package resources

import (
	"fmt"
	"strings"
	"time"

	domainresource "slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/daytime"
	"slotkeeper/internal/domain/shared/errs"
)

// ParseSchedule converts the ingestion shape into a validated rule.
func ParseSchedule(in ScheduleInput) (domainresource.ScheduleRule, error) {
	hours, err := domainresource.ParseWeeklyHours(in.WeeklyHours)
	if err != nil {
		return domainresource.ScheduleRule{}, err
	}
	weights, err := domainresource.ParsePriorityWeights(in.Restrictions.PriorityWeights)
	if err != nil {
		return domainresource.ScheduleRule{}, err
	}
	verr := &errs.ValidationError{}
	rule := domainresource.ScheduleRule{
		Timezone:    strings.TrimSpace(in.Timezone),
		WeeklyHours: hours,
		Restrictions: domainresource.Restrictions{
			MinDuration:           time.Duration(in.Restrictions.MinDurationMinutes) * time.Minute,
			MaxDuration:           time.Duration(in.Restrictions.MaxDurationMinutes) * time.Minute,
			MinAdvanceNoticeHours: in.Restrictions.MinAdvanceNoticeHours,
			MaxAdvanceNoticeDays:  in.Restrictions.MaxAdvanceNoticeDays,
			AllowedUserTypes:      trimAll(in.Restrictions.AllowedUserTypes),
			PriorityWeights:       weights,
		},
	}
	for i, ex := range in.Exceptions {
		field := fmt.Sprintf("exceptions[%d]", i)
		start, end, ok := parseSpan(verr, field, ex.Start, ex.End, true)
		if !ok {
			continue
		}
		rule.Exceptions = append(rule.Exceptions, domainresource.Exception{
			Date:   strings.TrimSpace(ex.Date),
			Kind:   domainresource.ExceptionKind(strings.ToUpper(strings.TrimSpace(ex.Kind))),
			Start:  start,
			End:    end,
			Reason: ex.Reason,
		})
	}
	for i, m := range in.Maintenance {
		field := fmt.Sprintf("maintenance[%d]", i)
		start, end, ok := parseSpan(verr, field, m.Start, m.End, false)
		if !ok {
			continue
		}
		mw := domainresource.MaintenanceWindow{
			Frequency:   domainresource.MaintenanceFrequency(strings.ToUpper(strings.TrimSpace(m.Frequency))),
			DayOfMonth:  m.DayOfMonth,
			Start:       start,
			End:         end,
			Description: m.Description,
		}
		if mw.Frequency == domainresource.MaintenanceWeekly {
			wd, err := daytime.ParseWeekday(m.Weekday)
			if err != nil {
				verr.Add(field+".weekday", err.Error())
				continue
			}
			mw.Weekday = wd
		}
		rule.Maintenance = append(rule.Maintenance, mw)
	}
	if verr.HasErrors() {
		return domainresource.ScheduleRule{}, verr
	}
	if err := rule.Validate(); err != nil {
		return domainresource.ScheduleRule{}, err
	}
	return rule, nil
}

// parseSpan reads a local start/end pair. With optional set, both may be
// empty to mean the whole day.
func parseSpan(verr *errs.ValidationError, field, rawStart, rawEnd string, optional bool) (daytime.Time, daytime.Time, bool) {
	rawStart, rawEnd = strings.TrimSpace(rawStart), strings.TrimSpace(rawEnd)
	if optional && rawStart == "" && rawEnd == "" {
		return 0, 0, true
	}
	start, err := daytime.Parse(rawStart)
	if err != nil {
		verr.Add(field+".start", err.Error())
		return 0, 0, false
	}
	end, err := daytime.Parse(rawEnd)
	if err != nil {
		verr.Add(field+".end", err.Error())
		return 0, 0, false
	}
	return start, end, true
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
