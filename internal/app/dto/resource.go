package dto

import (
	"sort"
	"time"

	domainresource "slotkeeper/internal/domain/resource"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Location struct {
	Building    string       `json:"building,omitempty"`
	Floor       int          `json:"floor,omitempty"`
	Room        string       `json:"room,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

type ScheduleException struct {
	Date   string `json:"date"`
	Kind   string `json:"kind"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type MaintenanceWindow struct {
	Frequency   string `json:"frequency"`
	Weekday     string `json:"weekday,omitempty"`
	DayOfMonth  int    `json:"day_of_month,omitempty"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Description string `json:"description,omitempty"`
}

type PriorityWeight struct {
	UserType string `json:"user_type"`
	Weight   int    `json:"weight"`
}

type Restrictions struct {
	MinDurationMinutes    int              `json:"min_duration_minutes,omitempty"`
	MaxDurationMinutes    int              `json:"max_duration_minutes,omitempty"`
	MinAdvanceNoticeHours int              `json:"min_advance_notice_hours,omitempty"`
	MaxAdvanceNoticeDays  int              `json:"max_advance_notice_days,omitempty"`
	AllowedUserTypes      []string         `json:"allowed_user_types,omitempty"`
	PriorityWeights       []PriorityWeight `json:"priority_weights,omitempty"`
}

type Schedule struct {
	Timezone     string              `json:"timezone"`
	WeeklyHours  []map[string]string `json:"weekly_hours"`
	Exceptions   []ScheduleException `json:"exceptions"`
	Maintenance  []MaintenanceWindow `json:"maintenance"`
	Restrictions Restrictions        `json:"restrictions"`
}

type Resource struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Capacity  int       `json:"capacity"`
	Location  Location  `json:"location"`
	Features  []string  `json:"features"`
	Status    string    `json:"status"`
	Schedule  Schedule  `json:"schedule"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ResourceCollection struct {
	Items []Resource `json:"items"`
}

func MapLocation(l domainresource.Location) Location {
	out := Location{Building: l.Building, Floor: l.Floor, Room: l.Room}
	if l.Coordinates != nil {
		out.Coordinates = &Coordinates{Lat: l.Coordinates.Lat, Lon: l.Coordinates.Lon}
	}
	return out
}

func MapSchedule(s domainresource.ScheduleRule) Schedule {
	out := Schedule{
		Timezone:    s.Timezone,
		WeeklyHours: domainresource.FormatWeeklyHours(s.WeeklyHours),
		Exceptions:  make([]ScheduleException, 0, len(s.Exceptions)),
		Maintenance: make([]MaintenanceWindow, 0, len(s.Maintenance)),
	}
	for _, ex := range s.Exceptions {
		item := ScheduleException{Date: ex.Date, Kind: string(ex.Kind), Reason: ex.Reason}
		if !ex.AllDay() {
			item.Start = ex.Start.String()
			item.End = ex.End.String()
		}
		out.Exceptions = append(out.Exceptions, item)
	}
	for _, m := range s.Maintenance {
		item := MaintenanceWindow{
			Frequency:   string(m.Frequency),
			Start:       m.Start.String(),
			End:         m.End.String(),
			Description: m.Description,
		}
		switch m.Frequency {
		case domainresource.MaintenanceWeekly:
			item.Weekday = m.Weekday.String()
		case domainresource.MaintenanceMonthly:
			item.DayOfMonth = m.DayOfMonth
		}
		out.Maintenance = append(out.Maintenance, item)
	}
	r := s.Restrictions
	out.Restrictions = Restrictions{
		MinDurationMinutes:    int(r.MinDuration / time.Minute),
		MaxDurationMinutes:    int(r.MaxDuration / time.Minute),
		MinAdvanceNoticeHours: r.MinAdvanceNoticeHours,
		MaxAdvanceNoticeDays:  r.MaxAdvanceNoticeDays,
		AllowedUserTypes:      r.AllowedUserTypes,
	}
	for userType, weight := range r.PriorityWeights {
		out.Restrictions.PriorityWeights = append(out.Restrictions.PriorityWeights, PriorityWeight{UserType: userType, Weight: weight})
	}
	sort.Slice(out.Restrictions.PriorityWeights, func(i, j int) bool {
		return out.Restrictions.PriorityWeights[i].UserType < out.Restrictions.PriorityWeights[j].UserType
	})
	return out
}

func MapResource(r *domainresource.Resource) Resource {
	features := r.Features
	if features == nil {
		features = []string{}
	}
	return Resource{
		ID:        string(r.ID),
		Name:      r.Name,
		Type:      r.Type,
		Capacity:  r.Capacity,
		Location:  MapLocation(r.Location),
		Features:  features,
		Status:    string(r.Status),
		Schedule:  MapSchedule(r.Schedule),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func MapResources(items []*domainresource.Resource) ResourceCollection {
	out := make([]Resource, 0, len(items))
	for _, r := range items {
		out = append(out, MapResource(r))
	}
	return ResourceCollection{Items: out}
}
