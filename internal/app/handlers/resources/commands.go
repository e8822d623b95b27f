package resources

import (
	"encoding/json"
	"strings"
	"time"

	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/policies"
	"slotkeeper/internal/domain/shared/errs"
)

const (
	registerKey       = "resources.register"
	setStatusKey      = "resources.set_status"
	updateScheduleKey = "resources.update_schedule"
	exportKey         = "resources.calendar.export"
	getKey            = "resources.get"
	listKey           = "resources.list"
	calendarKey       = "resources.calendar"

	// maxCalendarSpan keeps calendar reads and exports bounded.
	maxCalendarSpan = 366 * 24 * time.Hour
)

// ScheduleInput is the ingestion shape of a schedule rule. Weekly hours and
// priority weights stay raw so the list-only boundary can reject map forms.
type ScheduleInput struct {
	Timezone     string                  `json:"timezone"`
	WeeklyHours  json.RawMessage         `json:"weekly_hours"`
	Exceptions   []dto.ScheduleException `json:"exceptions"`
	Maintenance  []dto.MaintenanceWindow `json:"maintenance"`
	Restrictions RestrictionsInput       `json:"restrictions"`
}

type RestrictionsInput struct {
	MinDurationMinutes    int             `json:"min_duration_minutes"`
	MaxDurationMinutes    int             `json:"max_duration_minutes"`
	MinAdvanceNoticeHours int             `json:"min_advance_notice_hours"`
	MaxAdvanceNoticeDays  int             `json:"max_advance_notice_days"`
	AllowedUserTypes      []string        `json:"allowed_user_types"`
	PriorityWeights       json.RawMessage `json:"priority_weights"`
}

type RegisterCommand struct {
	ResourceID string
	Name       string
	Type       string
	Capacity   int
	Location   dto.Location
	Features   []string
	Schedule   ScheduleInput
}

func (c RegisterCommand) Key() string { return registerKey }

func (c RegisterCommand) RequiredRole() string { return policies.RoleAdmin }

func (c RegisterCommand) Validate() error {
	verr := &errs.ValidationError{}
	if strings.TrimSpace(c.Name) == "" {
		verr.Add("name", "required")
	}
	if strings.TrimSpace(c.Type) == "" {
		verr.Add("type", "required")
	}
	if c.Capacity <= 0 {
		verr.Add("capacity", "must be positive")
	}
	return verr.OrNil()
}

type SetStatusCommand struct {
	ResourceID string
	Status     string
	Reason     string
}

func (c SetStatusCommand) Key() string { return setStatusKey }

func (c SetStatusCommand) RequiredRole() string { return policies.RoleAdmin }

type UpdateScheduleCommand struct {
	ResourceID string
	Schedule   ScheduleInput
}

func (c UpdateScheduleCommand) Key() string { return updateScheduleKey }

func (c UpdateScheduleCommand) RequiredRole() string { return policies.RoleAdmin }

// ExportCalendarCommand renders the calendar and, with Publish set, uploads
// the feed to object storage.
type ExportCalendarCommand struct {
	ResourceID string
	From       time.Time
	To         time.Time
	Publish    bool
}

func (c ExportCalendarCommand) Key() string { return exportKey }

type GetQuery struct {
	ResourceID string
}

func (q GetQuery) Key() string { return getKey }

type ListQuery struct {
	Type   string
	Status string
}

func (q ListQuery) Key() string { return listKey }

type CalendarQuery struct {
	ResourceID string
	From       time.Time
	To         time.Time
}

func (q CalendarQuery) Key() string { return calendarKey }
