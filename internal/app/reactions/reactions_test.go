package reactions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"slotkeeper/internal/app/clock"
	"slotkeeper/internal/app/conflicts"
	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/handlers/booking"
	"slotkeeper/internal/app/handlers/reassignment"
	"slotkeeper/internal/app/handlers/support"
	"slotkeeper/internal/app/handlers/waitlist"
	"slotkeeper/internal/app/lock"
	"slotkeeper/internal/app/outbox"
	"slotkeeper/internal/app/policies"
	domainreassignment "slotkeeper/internal/domain/reassignment"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	domainwaitlist "slotkeeper/internal/domain/waitlist"
	"slotkeeper/internal/infra/storage/memory"
)

var now0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []policies.Notification
	fail bool
}

func (n *recordingNotifier) Notify(ctx context.Context, note policies.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	if n.fail {
		return errors.New("smtp down")
	}
	return nil
}

func (n *recordingNotifier) events(recipient string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, note := range n.sent {
		if note.Recipient == recipient {
			out = append(out, note.Event)
		}
	}
	return out
}

type engine struct {
	box      *memory.Outbox
	factory  memory.Factory
	booking  *booking.Service
	waitlist *waitlist.Manager
	resolver *reassignment.Resolver
	notifier *recordingNotifier
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewManual(now0)
	router := outbox.NewRouter()
	box := memory.NewOutbox(router, logger)
	factory := memory.NewFactory(box)
	exec := &support.Executor{Factory: factory, Locker: lock.NewKeyedMutex()}
	detector := conflicts.NewDetector(clk)

	seq := 0
	manager := &waitlist.Manager{Exec: exec, Detector: detector, Clock: clk, Policy: domainwaitlist.DefaultPolicy(), Logger: logger, NewID: func() string {
		seq++
		return fmt.Sprintf("wl-%d", seq)
	}}
	resolver := &reassignment.Resolver{Exec: exec, Detector: detector, Clock: clk, Waitlist: manager, Policy: domainreassignment.DefaultPolicy(), Logger: logger}
	svc := &booking.Service{Exec: exec, Detector: detector, Clock: clk, Waitlist: manager, Logger: logger}
	notifier := &recordingNotifier{}

	(&Reactions{Waitlist: manager, Reassignment: resolver, Logger: logger}).Register(router)
	(&NotificationRelay{Notifier: notifier, Logger: logger}).Register(router)

	for _, id := range []string{"room-1", "room-2"} {
		res, err := domainresource.Register(domainresource.RegisterParams{
			ID:        domainresource.ResourceID(id),
			Name:      id,
			Type:      "meeting-room",
			Capacity:  8,
			Schedule:  domainresource.ScheduleRule{Timezone: "UTC"},
			CreatedAt: now0,
		})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		if err := factory.ResourcesRepo.Save(context.Background(), res); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	return &engine{box: box, factory: factory, booking: svc, waitlist: manager, resolver: resolver, notifier: notifier}
}

func (e *engine) book(t *testing.T, id, requester string, start time.Time, join bool) *dto.BookingResult {
	t.Helper()
	out, err := e.booking.Book(context.Background(), booking.BookCommand{
		ReservationID: id,
		ResourceID:    "room-1",
		RequesterID:   requester,
		RequesterType: "staff",
		Start:         start,
		End:           start.Add(time.Hour),
		JoinWaitlist:  join,
	})
	if err != nil {
		t.Fatalf("book %s: %v", id, err)
	}
	return out
}

func (e *engine) flush(t *testing.T) {
	t.Helper()
	if err := e.box.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestCancellationOffersWindowToWaitingEntry(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	e.book(t, "res-1", "u-1", start, false)
	queued := e.book(t, "res-2", "u-2", start, true)
	if queued.Waitlisted == nil || queued.Reservation != nil {
		t.Fatalf("expected waiting list entry, got %+v", queued)
	}
	e.flush(t)

	if _, err := e.booking.Cancel(ctx, booking.CancelCommand{ReservationID: "res-1"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	e.flush(t)

	entry, err := e.waitlist.Get(ctx, waitlist.GetEntryQuery{EntryID: queued.Waitlisted.ID})
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != string(domainwaitlist.StatusOffered) {
		t.Fatalf("expected OFFERED after cancellation, got %s", entry.Status)
	}
	if got := e.notifier.events("u-2"); len(got) != 1 || got[0] != domainwaitlist.EventOffered {
		t.Fatalf("u-2 notifications = %v", got)
	}
	if got := e.notifier.events("u-1"); len(got) != 1 || got[0] != domainreservation.EventCancelled {
		t.Fatalf("u-1 notifications = %v", got)
	}
}

func TestDeclinedOfferMovesToNextEntry(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	e.book(t, "res-1", "u-1", start, false)
	first := e.book(t, "res-2", "u-2", start, true)
	second := e.book(t, "res-3", "u-3", start, true)
	if _, err := e.booking.Cancel(ctx, booking.CancelCommand{ReservationID: "res-1"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	e.flush(t)

	if _, err := e.waitlist.DeclineOffer(ctx, waitlist.DeclineOfferCommand{EntryID: first.Waitlisted.ID}); err != nil {
		t.Fatalf("decline: %v", err)
	}
	e.flush(t)

	next, err := e.waitlist.Get(ctx, waitlist.GetEntryQuery{EntryID: second.Waitlisted.ID})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if next.Status != string(domainwaitlist.StatusOffered) {
		t.Fatalf("expected the next entry to be offered, got %s", next.Status)
	}
	declined, _ := e.waitlist.Get(ctx, waitlist.GetEntryQuery{EntryID: first.Waitlisted.ID})
	if declined.Status != string(domainwaitlist.StatusWaiting) {
		t.Fatalf("declined entry should wait again, got %s", declined.Status)
	}
}

func TestMaintenanceOpensReassignmentRequests(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	e.book(t, "res-1", "u-1", start, false)
	e.flush(t)

	res, err := e.factory.ResourcesRepo.ByID(ctx, "room-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	res.Drain()
	if err := res.SetStatus(domainresource.StatusMaintenance, "leak", now0); err != nil {
		t.Fatalf("status: %v", err)
	}
	evs := res.Drain()
	if len(evs) != 1 {
		t.Fatalf("expected one status event, got %d", len(evs))
	}
	rec, err := outbox.JSONEventEncoder{}.Encode(evs[0])
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := e.factory.ResourcesRepo.Save(ctx, res); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := e.box.Add(ctx, rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	e.flush(t)

	list, err := e.resolver.List(ctx, reassignment.ListQuery{ReservationID: "res-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("expected one request, got %d", len(list.Items))
	}
	req := list.Items[0]
	if req.Reason != string(domainreassignment.ReasonMaintenance) || req.Status != string(domainreassignment.StatusPending) {
		t.Fatalf("unexpected request %+v", req)
	}
	if len(req.Candidates) != 1 || req.Candidates[0].ResourceID != "room-2" {
		t.Fatalf("candidates = %+v", req.Candidates)
	}
	if got := e.notifier.events("u-1"); len(got) != 1 || got[0] != domainreassignment.EventRequested {
		t.Fatalf("u-1 notifications = %v", got)
	}
}

func TestNotificationFailureIsSwallowed(t *testing.T) {
	e := newEngine(t)
	e.notifier.fail = true
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	e.book(t, "res-1", "u-1", start, false)
	if _, err := e.booking.Cancel(context.Background(), booking.CancelCommand{ReservationID: "res-1"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	e.flush(t)
	if got := e.notifier.events("u-1"); len(got) != 1 {
		t.Fatalf("expected one attempted notification, got %v", got)
	}
}
