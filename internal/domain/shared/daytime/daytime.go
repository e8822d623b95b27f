// Package daytime models wall-clock times of day used by operating hours and
// recurring series.
package daytime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EndOfDay is the exclusive upper bound, written "24:00".
const EndOfDay Time = 24 * 60

// Time is a number of minutes since local midnight in [0, 1440].
type Time int

func Parse(raw string) (Time, error) {
	raw = strings.TrimSpace(raw)
	hh, mm, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, fmt.Errorf("daytime: %q is not HH:MM", raw)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("daytime: %q is not HH:MM", raw)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("daytime: %q is not HH:MM", raw)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("daytime: %q out of range", raw)
	}
	return Time(h*60 + m), nil
}

func MustParse(raw string) Time {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// Of returns the time of day of t in loc.
func Of(t time.Time, loc *time.Location) Time {
	t = t.In(loc)
	return Time(t.Hour()*60 + t.Minute())
}

// On anchors the time of day to the calendar date of day in loc. The clock
// reading is kept across DST changes; EndOfDay is the next local midnight.
func (t Time) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	if t >= EndOfDay {
		return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	}
	return time.Date(y, m, d, int(t)/60, int(t)%60, 0, 0, loc)
}

func (t Time) Valid() bool {
	return t >= 0 && t <= EndOfDay
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Time) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Midnight returns local midnight of the calendar day containing t.
func Midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// SameDate compares calendar dates in loc.
func SameDate(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

var weekdayNames = map[string]time.Weekday{
	"SUN": time.Sunday, "SUNDAY": time.Sunday,
	"MON": time.Monday, "MONDAY": time.Monday,
	"TUE": time.Tuesday, "TUESDAY": time.Tuesday,
	"WED": time.Wednesday, "WEDNESDAY": time.Wednesday,
	"THU": time.Thursday, "THURSDAY": time.Thursday,
	"FRI": time.Friday, "FRIDAY": time.Friday,
	"SAT": time.Saturday, "SATURDAY": time.Saturday,
}

// ParseWeekday accepts English day names or their three letter abbreviations.
func ParseWeekday(raw string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(raw))]
	if !ok {
		return 0, fmt.Errorf("daytime: unknown weekday %q", raw)
	}
	return wd, nil
}

// ParseDate parses a civil date (YYYY-MM-DD) at midnight in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("daytime: %q is not YYYY-MM-DD", raw)
	}
	return d, nil
}

const DateLayout = "2006-01-02"

// LoadLocation resolves an IANA zone name, treating "" as UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "UTC") {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
