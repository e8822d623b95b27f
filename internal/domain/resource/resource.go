package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/events"
	"slotkeeper/internal/domain/shared/window"
)

var (
	ErrNotFound         = fmt.Errorf("resource: %w", errs.ErrNotFound)
	ErrConcurrentUpdate = fmt.Errorf("resource: %w", errs.ErrStale)
)

type ResourceID string

// Status is the single tagged availability state of a resource.
type Status string

const (
	StatusActive       Status = "ACTIVE"
	StatusInactive     Status = "INACTIVE"
	StatusMaintenance  Status = "MAINTENANCE"
	StatusOutOfService Status = "OUT_OF_SERVICE"
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusActive, StatusInactive, StatusMaintenance, StatusOutOfService:
		return s, nil
	}
	return "", errs.Invalid("status", fmt.Sprintf("unknown status %q", raw))
}

// Bookable reports whether new reservations may be placed.
func (s Status) Bookable() bool {
	return s == StatusActive
}

// Displacing reports whether existing reservations must move elsewhere.
func (s Status) Displacing() bool {
	return s == StatusMaintenance || s == StatusOutOfService
}

type Resource struct {
	ID        ResourceID
	Name      string
	Type      string
	Capacity  int
	Location  Location
	Features  []string
	Status    Status
	Schedule  ScheduleRule
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
	events.Recorder
}

type Repository interface {
	ByID(ctx context.Context, id ResourceID) (*Resource, error)
	Save(ctx context.Context, r *Resource) error
	List(ctx context.Context, filter Filter) ([]*Resource, error)
}

// Filter narrows List; zero values match everything.
type Filter struct {
	Type   string
	Status Status
}

type RegisterParams struct {
	ID        ResourceID
	Name      string
	Type      string
	Capacity  int
	Location  Location
	Features  []string
	Schedule  ScheduleRule
	CreatedAt time.Time
}

func Register(params RegisterParams) (*Resource, error) {
	verr := &errs.ValidationError{}
	if params.ID == "" {
		verr.Add("id", "required")
	}
	if strings.TrimSpace(params.Name) == "" {
		verr.Add("name", "required")
	}
	if strings.TrimSpace(params.Type) == "" {
		verr.Add("type", "required")
	}
	if params.Capacity <= 0 {
		verr.Add("capacity", "must be positive")
	}
	if err := params.Schedule.Validate(); err != nil {
		var scheduleErr *errs.ValidationError
		if errors.As(err, &scheduleErr) {
			for field, msg := range scheduleErr.FieldErrors {
				verr.Add("schedule."+field, msg)
			}
		} else {
			verr.Add("schedule", err.Error())
		}
	}
	if verr.HasErrors() {
		return nil, verr
	}
	now := params.CreatedAt.UTC()
	r := &Resource{
		ID:        params.ID,
		Name:      strings.TrimSpace(params.Name),
		Type:      strings.TrimSpace(params.Type),
		Capacity:  params.Capacity,
		Location:  params.Location,
		Features:  NormalizeFeatures(params.Features),
		Status:    StatusActive,
		Schedule:  params.Schedule,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.Record(Registered{ResourceID: r.ID, Type: r.Type, At: now})
	return r, nil
}

// SetStatus moves the resource to next. Setting the current status is a no-op.
func (r *Resource) SetStatus(next Status, reason string, now time.Time) error {
	if _, err := ParseStatus(string(next)); err != nil {
		return err
	}
	if r.Status == next {
		return nil
	}
	prev := r.Status
	r.Status = next
	r.UpdatedAt = now.UTC()
	r.Record(StatusChanged{ResourceID: r.ID, From: prev, To: next, Reason: reason, At: r.UpdatedAt})
	return nil
}

func (r *Resource) UpdateSchedule(rule ScheduleRule, now time.Time) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	r.Schedule = rule
	r.UpdatedAt = now.UTC()
	r.Record(ScheduleUpdated{ResourceID: r.ID, At: r.UpdatedAt})
	return nil
}

// Evaluate combines the lifecycle status with the schedule rule.
func (r *Resource) Evaluate(w window.TimeWindow, now time.Time, requesterType string, opts EvalOptions) []errs.ConflictReason {
	reasons := r.Schedule.Evaluate(w, now, requesterType, opts)
	switch r.Status {
	case StatusMaintenance:
		reasons = append(reasons, errs.ReasonMaintenance)
	case StatusInactive, StatusOutOfService:
		reasons = append(reasons, errs.ReasonScheduleRestriction)
	}
	return errs.NormalizeReasons(reasons)
}

func (r *Resource) HasFeature(feature string) bool {
	feature = strings.ToLower(strings.TrimSpace(feature))
	for _, f := range r.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// PriorityWeight returns the per requester type weight configured on the resource.
func (r *Resource) PriorityWeight(requesterType string) int {
	return r.Schedule.Restrictions.PriorityWeights[requesterType]
}

// NormalizeFeatures lower-cases, trims and dedupes feature names.
func NormalizeFeatures(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, f := range in {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
