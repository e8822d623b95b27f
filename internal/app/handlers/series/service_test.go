package series

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"slotkeeper/internal/app/clock"
	"slotkeeper/internal/app/conflicts"
	"slotkeeper/internal/app/handlers/support"
	"slotkeeper/internal/app/lock"
	appoutbox "slotkeeper/internal/app/outbox"
	domainrecurrence "slotkeeper/internal/domain/recurrence"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/window"
	"slotkeeper/internal/infra/storage/memory"
)

var now0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	clock   *clock.Manual
	factory memory.Factory
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewManual(now0)
	factory := memory.NewFactory(memory.NewOutbox(appoutbox.NewRouter(), logger))
	res, err := domainresource.Register(domainresource.RegisterParams{
		ID:        "studio",
		Name:      "Studio",
		Type:      "studio",
		Capacity:  6,
		Schedule:  domainresource.ScheduleRule{Timezone: "UTC"},
		CreatedAt: now0,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := factory.ResourcesRepo.Save(context.Background(), res); err != nil {
		t.Fatalf("save: %v", err)
	}
	return &fixture{
		clock:   clk,
		factory: factory,
		svc: &Service{
			Exec:     &support.Executor{Factory: factory, Locker: lock.NewKeyedMutex()},
			Detector: conflicts.NewDetector(clk),
			Clock:    clk,
			Logger:   logger,
		},
	}
}

// Mondays and Wednesdays 09:00-10:00 for two weeks.
func weeklyCommand() CreateCommand {
	return CreateCommand{
		SeriesID:      "s-1",
		ResourceID:    "studio",
		RequesterID:   "u-1",
		RequesterType: "staff",
		StartTime:     "09:00",
		EndTime:       "10:00",
		Frequency:     "weekly",
		Interval:      1,
		Weekdays:      []string{"monday", "wednesday"},
		StartDate:     "2024-03-04",
		EndDate:       "2024-03-15",
	}
}

func (f *fixture) block(t *testing.T, id string, start time.Time) {
	t.Helper()
	r, err := domainreservation.New(domainreservation.CreateParams{
		ID:            domainreservation.ReservationID(id),
		ResourceID:    "studio",
		RequesterID:   "u-other",
		RequesterType: "staff",
		Window:        window.Must(start, start.Add(time.Hour)),
		CreatedAt:     now0,
	})
	if err != nil {
		t.Fatalf("reservation: %v", err)
	}
	if err := f.factory.ReservationsRepo.Save(context.Background(), r); err != nil {
		t.Fatalf("save reservation: %v", err)
	}
}

func (f *fixture) seriesReservations(t *testing.T) map[domainreservation.Status]int {
	t.Helper()
	items, err := f.factory.ReservationsRepo.ListBySeries(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	out := map[domainreservation.Status]int{}
	for _, r := range items {
		out[r.Status]++
	}
	return out
}

func TestCreateMaterializesInstancesWithReservations(t *testing.T) {
	f := newFixture(t)
	out, err := f.svc.Create(context.Background(), weeklyCommand())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(out.Generated) != 4 || len(out.Conflicts) != 0 {
		t.Fatalf("generated %d, conflicts %d", len(out.Generated), len(out.Conflicts))
	}
	want := []time.Time{
		time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC),
	}
	for i, inst := range out.Generated {
		if !inst.Start.Equal(want[i]) {
			t.Fatalf("instance %d starts %s, want %s", i, inst.Start, want[i])
		}
		if inst.ReservationID == "" {
			t.Fatalf("instance %d has no reservation", i)
		}
	}
	if got := f.seriesReservations(t); got[domainreservation.StatusPending] != 4 {
		t.Fatalf("reservations = %v", got)
	}
	if out.Series.TotalInstances != 4 {
		t.Fatalf("total = %d", out.Series.TotalInstances)
	}
}

func TestCreateFlagsConflictsWhenSkipping(t *testing.T) {
	f := newFixture(t)
	f.block(t, "other", time.Date(2024, 3, 6, 9, 30, 0, 0, time.UTC))
	cmd := weeklyCommand()
	cmd.SkipConflicts = true

	out, err := f.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(out.Generated) != 3 || len(out.Conflicts) != 1 {
		t.Fatalf("generated %d, conflicts %d", len(out.Generated), len(out.Conflicts))
	}
	c := out.Conflicts[0]
	if c.Status != string(domainrecurrence.InstanceConflict) || len(c.Reasons) != 1 || c.Reasons[0] != string(errs.ReasonReserved) {
		t.Fatalf("conflict instance = %+v", c)
	}
}

func TestCreateAbortsOnConflictWithoutSkipping(t *testing.T) {
	f := newFixture(t)
	f.block(t, "other", time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC))

	_, err := f.svc.Create(context.Background(), weeklyCommand())
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := f.svc.Get(context.Background(), GetQuery{SeriesID: "s-1"}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("aborted series must not be stored, got %v", err)
	}
	if got := f.seriesReservations(t); len(got) != 0 {
		t.Fatalf("aborted series left reservations: %v", got)
	}
}

func TestCancelFutureOnlyKeepsPastInstances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Create(ctx, weeklyCommand()); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.clock.Set(time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC))

	out, err := f.svc.Cancel(ctx, CancelCommand{SeriesID: "s-1", Scope: "FUTURE_ONLY"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if out.Status != string(domainrecurrence.StatusCancelled) {
		t.Fatalf("status = %s", out.Status)
	}
	got := f.seriesReservations(t)
	if got[domainreservation.StatusCancelled] != 2 || got[domainreservation.StatusPending] != 2 {
		t.Fatalf("reservations = %v", got)
	}
	if _, err := f.svc.Cancel(ctx, CancelCommand{SeriesID: "s-1", Scope: "ALL"}); !errors.Is(err, errs.ErrInvalidStateTransition) {
		t.Fatalf("cancelling twice should fail, got %v", err)
	}
}

func TestCancelRejectsUnknownScope(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Cancel(context.Background(), CancelCommand{SeriesID: "s-1", Scope: "SOME"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateTimesReplacesInstances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Create(ctx, weeklyCommand()); err != nil {
		t.Fatalf("create: %v", err)
	}
	out, err := f.svc.UpdateTimes(ctx, UpdateTimesCommand{SeriesID: "s-1", StartTime: "14:00", EndTime: "15:00", Scope: "ALL"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(out.Generated) != 4 {
		t.Fatalf("generated %d", len(out.Generated))
	}
	for _, inst := range out.Generated {
		if inst.Start.Hour() != 14 || inst.Revision != 1 {
			t.Fatalf("instance = %+v", inst)
		}
	}
	got := f.seriesReservations(t)
	if got[domainreservation.StatusCancelled] != 4 || got[domainreservation.StatusPending] != 4 {
		t.Fatalf("reservations = %v", got)
	}
}

func TestUpdateTimesRollsBackOnConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Create(ctx, weeklyCommand()); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.block(t, "other", time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC))

	_, err := f.svc.UpdateTimes(ctx, UpdateTimesCommand{SeriesID: "s-1", StartTime: "14:00", EndTime: "15:00", Scope: "ALL"})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got := f.seriesReservations(t)
	if got[domainreservation.StatusPending] != 4 || got[domainreservation.StatusCancelled] != 0 {
		t.Fatalf("reservations after rollback = %v", got)
	}
	series, err := f.svc.Get(ctx, GetQuery{SeriesID: "s-1"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if series.StartTime != "09:00" || series.Revision != 0 {
		t.Fatalf("series = %+v", series)
	}
}

func TestGenerateDueCompletesFinishedSeries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Create(ctx, weeklyCommand()); err != nil {
		t.Fatalf("create: %v", err)
	}
	report, err := f.svc.GenerateDue(ctx, GenerateDueCommand{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Scanned != 1 || report.Changed != 0 {
		t.Fatalf("nothing new to materialize, got %+v", report)
	}

	f.clock.Set(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))
	report, err = f.svc.GenerateDue(ctx, GenerateDueCommand{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Changed != 1 {
		t.Fatalf("report = %+v", report)
	}
	series, _ := f.svc.Get(ctx, GetQuery{SeriesID: "s-1"})
	if series.Status != string(domainrecurrence.StatusCompleted) {
		t.Fatalf("status = %s", series.Status)
	}
}

func TestUpdateTimesLeavesInstanceInProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Create(ctx, weeklyCommand()); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.clock.Set(time.Date(2024, 3, 6, 9, 30, 0, 0, time.UTC))

	out, err := f.svc.UpdateTimes(ctx, UpdateTimesCommand{SeriesID: "s-1", StartTime: "14:00", EndTime: "15:00", Scope: "ALL"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(out.Generated) != 2 || len(out.Conflicts) != 0 {
		t.Fatalf("generated %d, conflicts %d", len(out.Generated), len(out.Conflicts))
	}
	for _, inst := range out.Generated {
		if inst.Start.Hour() != 14 || inst.Start.Before(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("instance = %+v", inst)
		}
	}
	got := f.seriesReservations(t)
	if got[domainreservation.StatusCancelled] != 2 || got[domainreservation.StatusPending] != 4 {
		t.Fatalf("reservations = %v", got)
	}
}
