package resources

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"slotkeeper/internal/app/clock"
	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/handlers/support"
	"slotkeeper/internal/app/lock"
	appoutbox "slotkeeper/internal/app/outbox"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/window"
	"slotkeeper/internal/infra/storage/memory"
)

var now0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type stubEncoder struct{}

func (stubEncoder) ContentType() string { return "text/calendar" }
func (stubEncoder) Extension() string   { return ".ics" }
func (stubEncoder) Encode(cal dto.Calendar) ([]byte, error) {
	return []byte("BEGIN:VCALENDAR " + cal.ResourceID), nil
}

type stubUploader struct {
	keys []string
	body string
}

func (u *stubUploader) Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	u.keys = append(u.keys, key)
	u.body = string(data)
	return "https://cdn.test/" + key, nil
}

func newService(t *testing.T) (*Service, memory.Factory, *appoutbox.Router) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := appoutbox.NewRouter()
	factory := memory.NewFactory(memory.NewOutbox(router, logger))
	svc := &Service{
		Exec:     &support.Executor{Factory: factory, Locker: lock.NewKeyedMutex()},
		Clock:    clock.NewManual(now0),
		Encoder:  stubEncoder{},
		Uploader: &stubUploader{},
		Logger:   logger,
	}
	return svc, factory, router
}

func weekdaySchedule() ScheduleInput {
	return ScheduleInput{
		Timezone: "UTC",
		WeeklyHours: json.RawMessage(`[
			{"weekday":"monday","start":"08:00","end":"18:00"},
			{"weekday":"tuesday","start":"08:00","end":"18:00"}
		]`),
		Exceptions: []dto.ScheduleException{{Date: "2024-03-05", Kind: "unavailable", Reason: "holiday"}},
		Maintenance: []dto.MaintenanceWindow{
			{Frequency: "weekly", Weekday: "monday", Start: "07:00", End: "08:00", Description: "cleaning"},
		},
		Restrictions: RestrictionsInput{
			MaxDurationMinutes: 240,
			PriorityWeights:    json.RawMessage(`[{"user_type":"faculty","weight":5}]`),
		},
	}
}

func TestRegisterParsesSchedule(t *testing.T) {
	svc, _, _ := newService(t)
	out, err := svc.Register(context.Background(), RegisterCommand{
		ResourceID: "room-1",
		Name:       "Seminar room",
		Type:       "meeting-room",
		Capacity:   12,
		Features:   []string{"Projector", "projector "},
		Schedule:   weekdaySchedule(),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if out.Status != string(domainresource.StatusActive) {
		t.Fatalf("expected ACTIVE, got %s", out.Status)
	}
	if len(out.Features) != 1 || out.Features[0] != "projector" {
		t.Fatalf("features = %v", out.Features)
	}
	if len(out.Schedule.WeeklyHours) != 2 || out.Schedule.WeeklyHours[0]["weekday"] != "Monday" {
		t.Fatalf("weekly hours = %v", out.Schedule.WeeklyHours)
	}
	if len(out.Schedule.Restrictions.PriorityWeights) != 1 || out.Schedule.Restrictions.PriorityWeights[0].Weight != 5 {
		t.Fatalf("priority weights = %v", out.Schedule.Restrictions.PriorityWeights)
	}

	_, err = svc.Register(context.Background(), RegisterCommand{ResourceID: "room-1", Name: "dup", Type: "meeting-room", Capacity: 1})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected duplicate registration to fail validation, got %v", err)
	}
}

func TestRegisterRejectsKeyedWeeklyHours(t *testing.T) {
	svc, _, _ := newService(t)
	in := weekdaySchedule()
	in.WeeklyHours = json.RawMessage(`{"monday":{"start":"08:00","end":"18:00"}}`)
	_, err := svc.Register(context.Background(), RegisterCommand{ResourceID: "room-1", Name: "x", Type: "t", Capacity: 1, Schedule: in})
	var verr *errs.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := verr.FieldErrors["weekly_hours"]; !ok {
		t.Fatalf("expected weekly_hours field error, got %v", verr.FieldErrors)
	}
}

func TestSetStatusRecordsChange(t *testing.T) {
	svc, _, router := newService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterCommand{ResourceID: "room-1", Name: "x", Type: "t", Capacity: 4}); err != nil {
		t.Fatalf("register: %v", err)
	}
	var seen []domainresource.StatusChanged
	router.Subscribe(domainresource.EventStatusChanged, func(ctx context.Context, rec appoutbox.EventRecord) error {
		ev, err := appoutbox.Decode[domainresource.StatusChanged](rec)
		if err != nil {
			return err
		}
		seen = append(seen, ev)
		return nil
	})

	out, err := svc.SetStatus(ctx, SetStatusCommand{ResourceID: "room-1", Status: "maintenance", Reason: "leak"})
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if out.Status != string(domainresource.StatusMaintenance) {
		t.Fatalf("status = %s", out.Status)
	}
	box := svc.Exec.Factory.(memory.Factory).Outbox
	if err := box.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(seen) != 1 || seen[0].To != domainresource.StatusMaintenance || seen[0].From != domainresource.StatusActive {
		t.Fatalf("unexpected events: %+v", seen)
	}

	if _, err := svc.SetStatus(ctx, SetStatusCommand{ResourceID: "room-1", Status: "retired"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}

func TestCalendarListsReservationsAndBlocks(t *testing.T) {
	svc, factory, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterCommand{ResourceID: "room-1", Name: "x", Type: "t", Capacity: 4, Schedule: weekdaySchedule()}); err != nil {
		t.Fatalf("register: %v", err)
	}
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	res, err := domainreservation.New(domainreservation.CreateParams{
		ID:          "res-1",
		ResourceID:  "room-1",
		RequesterID: "u-1",
		Window:      window.Must(start, start.Add(time.Hour)),
		CreatedAt:   now0,
	})
	if err != nil {
		t.Fatalf("reservation: %v", err)
	}
	if err := factory.ReservationsRepo.Save(ctx, res); err != nil {
		t.Fatalf("save: %v", err)
	}

	cal, err := svc.Calendar(ctx, CalendarQuery{
		ResourceID: "room-1",
		From:       time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	if len(cal.Reservations) != 1 || cal.Reservations[0].ID != "res-1" {
		t.Fatalf("reservations = %+v", cal.Reservations)
	}
	if len(cal.Blocks) != 2 {
		t.Fatalf("expected maintenance and holiday blocks, got %+v", cal.Blocks)
	}
	if cal.Blocks[0].Reason != "MAINTENANCE: cleaning" || cal.Blocks[1].Reason != "SCHEDULE_RESTRICTION: holiday" {
		t.Fatalf("block reasons = %q, %q", cal.Blocks[0].Reason, cal.Blocks[1].Reason)
	}

	_, err = svc.Calendar(ctx, CalendarQuery{ResourceID: "room-1", From: now0, To: now0.Add(400 * 24 * time.Hour)})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected span validation error, got %v", err)
	}
}

func TestExportPublishesFeed(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterCommand{ResourceID: "room-1", Name: "x", Type: "t", Capacity: 4}); err != nil {
		t.Fatalf("register: %v", err)
	}
	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	out, err := svc.Export(ctx, ExportCalendarCommand{ResourceID: "room-1", From: from, To: from.Add(7 * 24 * time.Hour), Publish: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out.Filename != "room-1-20240304.ics" || out.ContentType != "text/calendar" {
		t.Fatalf("unexpected export: %+v", out)
	}
	uploader := svc.Uploader.(*stubUploader)
	if len(uploader.keys) != 1 || uploader.keys[0] != "calendars/room-1/20240304-20240311.ics" {
		t.Fatalf("keys = %v", uploader.keys)
	}
	if !strings.HasPrefix(out.URL, "https://cdn.test/") || uploader.body != "BEGIN:VCALENDAR room-1" {
		t.Fatalf("url %q body %q", out.URL, uploader.body)
	}
}
