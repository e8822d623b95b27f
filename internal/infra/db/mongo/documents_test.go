package mongo

import (
	"reflect"
	"testing"
	"time"

	domainreassignment "slotkeeper/internal/domain/reassignment"
	domainrecurrence "slotkeeper/internal/domain/recurrence"
	domainresource "slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/daytime"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/window"
)

func TestResourceDocumentKeepsSchedule(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	res := &domainresource.Resource{
		ID:       "lab-1",
		Name:     "Lab",
		Type:     "lab",
		Capacity: 24,
		Location: domainresource.Location{Building: "B", Floor: 2, Coordinates: &domainresource.Coordinates{Lat: 52.1, Lon: 4.3}},
		Features: []string{"projector"},
		Status:   domainresource.StatusActive,
		Schedule: domainresource.ScheduleRule{
			Timezone:    "Europe/Amsterdam",
			WeeklyHours: []domainresource.OperatingHours{{Weekday: time.Tuesday, Start: daytime.MustParse("08:00"), End: daytime.MustParse("17:30")}},
			Maintenance: []domainresource.MaintenanceWindow{{Frequency: domainresource.MaintenanceWeekly, Weekday: time.Friday, Start: daytime.MustParse("16:00"), End: daytime.MustParse("17:00")}},
			Restrictions: domainresource.Restrictions{
				MinDuration:      30 * time.Minute,
				AllowedUserTypes: []string{"staff"},
			},
		},
		CreatedAt: created,
		UpdatedAt: created,
		Version:   3,
	}
	got := newResourceDocument(res).toAggregate()
	if !reflect.DeepEqual(got.Schedule, res.Schedule) {
		t.Fatalf("schedule = %+v, want %+v", got.Schedule, res.Schedule)
	}
	if got.Location.Coordinates == nil || got.Location.Coordinates.Lat != 52.1 {
		t.Fatalf("location = %+v", got.Location)
	}
	if !got.CreatedAt.Equal(created) || got.Version != 3 {
		t.Fatalf("resource = %+v", got)
	}
}

func TestSeriesDocumentKeepsInstances(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	s := &domainrecurrence.Series{
		ID:        "s-1",
		StartTime: daytime.MustParse("09:00"),
		EndTime:   daytime.MustParse("10:00"),
		Rule:      domainrecurrence.Rule{Frequency: domainrecurrence.Weekly, Interval: 1, Weekdays: []time.Weekday{time.Monday}},
		StartDate: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Instances: []domainrecurrence.Instance{{
			ID:       "s-1-0000-r0",
			SeriesID: "s-1",
			Window:   window.Must(start, start.Add(time.Hour)),
			Status:   domainrecurrence.InstanceConflict,
			Reasons:  []errs.ConflictReason{errs.ReasonReserved},
		}},
	}
	got := newSeriesDocument(s).toAggregate()
	if len(got.Instances) != 1 || !got.Instances[0].Window.Start.Equal(start) || got.Instances[0].Reasons[0] != errs.ReasonReserved {
		t.Fatalf("instances = %+v", got.Instances)
	}
	if !got.EndDate.IsZero() {
		t.Fatalf("zero end date must stay zero, got %s", got.EndDate)
	}
	if got.Rule.Weekdays[0] != time.Monday {
		t.Fatalf("rule = %+v", got.Rule)
	}
}

func TestRequestDocumentKeepsCandidates(t *testing.T) {
	r := &domainreassignment.Request{
		ID:         "rq-1",
		Candidates: []domainreassignment.Candidate{{ResourceID: "room-2", Score: 0.9, Tier: domainreassignment.TierGood}},
	}
	got := newRequestDocument(r).toAggregate()
	if !got.ResolvedAt.IsZero() || len(got.Candidates) != 1 || got.Candidates[0].ResourceID != "room-2" {
		t.Fatalf("request = %+v", got)
	}
}
