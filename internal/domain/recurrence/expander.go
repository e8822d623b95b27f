package recurrence

import (
	"errors"
	"time"

	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/window"
)

// Checker validates a candidate window against the resource calendar and
// existing reservations. It returns a *errs.ConflictError for conflicts.
type Checker func(w window.TimeWindow) error

// Expander turns a series definition into concrete instances. It is a pure
// function of the series, the bound and whatever the checker observes.
type Expander struct{}

// Expand generates instances for occurrences on or before until that are not
// yet materialized, stopping after maxInstances new occurrences (0 = no cap).
// With skipConflicts a conflicting occurrence becomes a CONFLICT instance;
// without it the first conflict aborts the expansion and is returned.
func (Expander) Expand(s *Series, until time.Time, maxInstances int, skipConflicts bool, check Checker) (generated, conflicts []Instance, err error) {
	if s.Status != StatusActive {
		return nil, nil, ErrInvalidState
	}
	loc := s.Location()
	limit := s.EndDate
	if u := civil(until.In(loc)); u.Before(limit) {
		limit = u
	}

	count := 0
	stop := errors.New("stop")
	err = s.occurrences(limit, func(index int, date time.Time) error {
		if s.Materialized(index) {
			return nil
		}
		if maxInstances > 0 && count >= maxInstances {
			return stop
		}
		count++
		w, werr := window.New(
			s.StartTime.On(localDate(date, loc), loc),
			s.EndTime.On(localDate(date, loc), loc),
		)
		if werr != nil {
			return werr
		}
		inst := Instance{
			ID:       s.InstanceID(index, s.Revision),
			SeriesID: s.ID,
			Index:    index,
			Revision: s.Revision,
			Window:   w,
			Status:   InstancePending,
		}
		if check != nil {
			if cerr := check(w); cerr != nil {
				var conflict *errs.ConflictError
				if !errors.As(cerr, &conflict) || !skipConflicts {
					return cerr
				}
				inst.Status = InstanceConflict
				inst.Reasons = conflict.Reasons
				conflicts = append(conflicts, inst)
				return nil
			}
		}
		generated = append(generated, inst)
		return nil
	})
	if err != nil && !errors.Is(err, stop) {
		return nil, nil, err
	}
	return generated, conflicts, nil
}

// Occurrences lists the calendar dates of the series up to until, ignoring
// what is already materialized.
func (s *Series) Occurrences(until time.Time) []time.Time {
	limit := s.EndDate
	if u := civil(until.In(s.Location())); u.Before(limit) {
		limit = u
	}
	var out []time.Time
	_ = s.occurrences(limit, func(_ int, date time.Time) error {
		out = append(out, date)
		return nil
	})
	return out
}

// occurrences walks matching civil dates from StartDate through limit and
// numbers them from zero.
func (s *Series) occurrences(limit time.Time, fn func(index int, date time.Time) error) error {
	start := s.StartDate
	interval := s.Rule.Interval
	if interval < 1 {
		interval = 1
	}
	index := 0
	emit := func(date time.Time) error {
		err := fn(index, date)
		index++
		return err
	}

	switch s.Rule.Frequency {
	case Daily:
		for date := start; !date.After(limit); date = date.AddDate(0, 0, interval) {
			if err := emit(date); err != nil {
				return err
			}
		}
	case Weekly:
		days := make(map[time.Weekday]bool, len(s.Rule.Weekdays))
		for _, wd := range s.Rule.Weekdays {
			days[wd] = true
		}
		// Week blocks are anchored on the Monday of the start date's week.
		anchor := start.AddDate(0, 0, -((int(start.Weekday()) + 6) % 7))
		for block := anchor; !block.After(limit); block = block.AddDate(0, 0, 7*interval) {
			for offset := 0; offset < 7; offset++ {
				date := block.AddDate(0, 0, offset)
				if date.Before(start) || !days[date.Weekday()] {
					continue
				}
				if date.After(limit) {
					return nil
				}
				if err := emit(date); err != nil {
					return err
				}
			}
		}
	case Monthly:
		for k := 0; ; k += interval {
			first := time.Date(start.Year(), start.Month()+time.Month(k), 1, 0, 0, 0, 0, time.UTC)
			date := time.Date(first.Year(), first.Month(), clampDay(first.Year(), first.Month(), s.Rule.DayOfMonth), 0, 0, 0, 0, time.UTC)
			if date.After(limit) {
				return nil
			}
			if date.Before(start) {
				continue
			}
			if err := emit(date); err != nil {
				return err
			}
		}
	}
	return nil
}

// localDate re-reads a civil date (stored at UTC midnight) in loc.
func localDate(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
}

func clampDay(year int, month time.Month, day int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}
