package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"slotkeeper/internal/app/clock"
	"slotkeeper/internal/app/commands"
	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/handlers/booking"
	"slotkeeper/internal/app/handlers/resources"
	"slotkeeper/internal/app/handlers/waitlist"
	"slotkeeper/internal/app/outbox"
	"slotkeeper/internal/app/policies"
	"slotkeeper/internal/app/queries"
	domainwaitlist "slotkeeper/internal/domain/waitlist"
	"slotkeeper/internal/infra/storage/memory"
)

var (
	now0   = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	monday = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	admin  = policies.Identity{ID: "ops", Roles: []string{policies.RoleAdmin}}
)

type notes struct {
	mu   sync.Mutex
	sent []policies.Notification
}

func (n *notes) Notify(_ context.Context, note policies.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

func (n *notes) eventsFor(recipient string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.Recipient == recipient {
			out = append(out, s.Event)
		}
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *notes) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := outbox.NewRouter()
	box := memory.NewOutbox(router, logger)
	n := &notes{}
	e, err := New(Deps{
		Factory:     memory.NewFactory(box),
		Outbox:      box,
		Router:      router,
		Idempotency: memory.NewIdempotencyStore(),
		Clock:       clock.NewManual(now0),
		Notifier:    n,
		Logger:      logger,
	}, DefaultPolicies())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e, n
}

func registerRoom(t *testing.T, e *Engine) {
	t.Helper()
	ctx := policies.ContextWithIdentity(context.Background(), admin)
	_, err := commands.Dispatch[resources.RegisterCommand, dto.Resource](ctx, e.Commands, resources.RegisterCommand{
		ResourceID: "room-1",
		Name:       "Room 1",
		Type:       "meeting-room",
		Capacity:   10,
		Schedule:   resources.ScheduleInput{Timezone: "UTC"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
}

func book(id, requester string, join bool) booking.BookCommand {
	return booking.BookCommand{
		ReservationID: id,
		ResourceID:    "room-1",
		RequesterID:   requester,
		RequesterType: "staff",
		Start:         monday,
		End:           monday.Add(time.Hour),
		JoinWaitlist:  join,
	}
}

func TestNewRequiresStoreAndRouter(t *testing.T) {
	if _, err := New(Deps{}, DefaultPolicies()); !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("expected ErrMissingDependency, got %v", err)
	}
}

func TestRegisterRequiresAdmin(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := commands.Dispatch[resources.RegisterCommand, dto.Resource](context.Background(), e.Commands, resources.RegisterCommand{
		ResourceID: "room-1",
		Name:       "Room 1",
		Type:       "meeting-room",
		Capacity:   10,
	})
	if !errors.Is(err, policies.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestBookReplaysIdempotentRequest(t *testing.T) {
	e, _ := newTestEngine(t)
	registerRoom(t, e)
	ctx := context.Background()

	cmd := book("", "u-1", false)
	cmd.IdempotencyKeyV = "req-1"
	first, err := commands.Dispatch[booking.BookCommand, *dto.BookingResult](ctx, e.Commands, cmd)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	again, err := commands.Dispatch[booking.BookCommand, *dto.BookingResult](ctx, e.Commands, cmd)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.Reservation == nil || again.Reservation == nil || first.Reservation.ID != again.Reservation.ID {
		t.Fatalf("replay returned a different reservation: %+v vs %+v", first.Reservation, again.Reservation)
	}

	list, err := queries.Ask[booking.ListQuery, dto.ReservationCollection](ctx, e.Queries, booking.ListQuery{
		ResourceID: "room-1",
		From:       monday.Add(-time.Hour),
		To:         monday.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("expected one reservation, got %d", len(list.Items))
	}
}

func TestCancelThroughBusOffersSlotAndNotifies(t *testing.T) {
	e, n := newTestEngine(t)
	registerRoom(t, e)
	ctx := context.Background()

	if _, err := commands.Dispatch[booking.BookCommand, *dto.BookingResult](ctx, e.Commands, book("res-1", "u-1", false)); err != nil {
		t.Fatalf("book: %v", err)
	}
	queued, err := commands.Dispatch[booking.BookCommand, *dto.BookingResult](ctx, e.Commands, book("res-2", "u-2", true))
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if queued.Waitlisted == nil {
		t.Fatalf("expected a waiting list entry, got %+v", queued)
	}

	if _, err := commands.Dispatch[booking.CancelCommand, dto.Reservation](ctx, e.Commands, booking.CancelCommand{ReservationID: "res-1", Reason: "moved"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	entry, err := queries.Ask[waitlist.GetEntryQuery, dto.WaitlistEntry](ctx, e.Queries, waitlist.GetEntryQuery{EntryID: queued.Waitlisted.ID})
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if entry.Status != string(domainwaitlist.StatusOffered) {
		t.Fatalf("entry status = %s", entry.Status)
	}
	got := n.eventsFor("u-2")
	if len(got) != 1 || got[0] != domainwaitlist.EventOffered {
		t.Fatalf("notifications for u-2 = %v", got)
	}
}

func TestBookOnBehalfOfAnotherRequesterNeedsAdmin(t *testing.T) {
	e, _ := newTestEngine(t)
	registerRoom(t, e)
	staff := policies.ContextWithIdentity(context.Background(), policies.Identity{ID: "u-1", PriorityClass: "staff"})

	_, err := commands.Dispatch[booking.BookCommand, *dto.BookingResult](staff, e.Commands, book("res-1", "u-2", false))
	if !errors.Is(err, policies.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := commands.Dispatch[booking.BookCommand, *dto.BookingResult](staff, e.Commands, book("res-1", "u-1", false)); err != nil {
		t.Fatalf("own booking: %v", err)
	}
	onBehalf := policies.ContextWithIdentity(context.Background(), admin)
	cmd := book("res-2", "u-2", false)
	cmd.Start, cmd.End = monday.Add(2*time.Hour), monday.Add(3*time.Hour)
	if _, err := commands.Dispatch[booking.BookCommand, *dto.BookingResult](onBehalf, e.Commands, cmd); err != nil {
		t.Fatalf("admin booking for u-2: %v", err)
	}
}
