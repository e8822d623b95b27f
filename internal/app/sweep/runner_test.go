package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"slotkeeper/internal/app/commands"
	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/handlers/reassignment"
	"slotkeeper/internal/app/handlers/waitlist"
	"slotkeeper/internal/app/policies"
)

type recordingBus struct {
	mu       sync.Mutex
	keys     []string
	failKey  string
	identity []policies.Identity
}

func (b *recordingBus) Dispatch(ctx context.Context, cmd commands.Command) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, cmd.Key())
	id, _ := policies.IdentityFromContext(ctx)
	b.identity = append(b.identity, id)
	if cmd.Key() == b.failKey {
		return nil, errors.New("store unavailable")
	}
	return dto.SweepReport{Job: cmd.Key(), Scanned: 2, Changed: 1}, nil
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunWaitlistDispatchesEveryStep(t *testing.T) {
	bus := &recordingBus{}
	r, err := NewRunner(bus, Schedule{}, quiet())
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	reports, err := r.RunWaitlist(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{
		waitlist.EscalatePriorityCommand{}.Key(),
		waitlist.LapseOffersCommand{}.Key(),
		waitlist.ExpireStaleCommand{}.Key(),
	}
	if !reflect.DeepEqual(bus.keys, want) {
		t.Fatalf("keys = %v, want %v", bus.keys, want)
	}
	if len(reports) != 3 || reports[0].Changed != 1 {
		t.Fatalf("reports = %+v", reports)
	}
	for _, id := range bus.identity {
		if id.ID != SystemIdentity.ID || !id.HasRole(policies.RoleAdmin) {
			t.Fatalf("sweep ran as %+v", id)
		}
	}
}

func TestFailingStepDoesNotStopTheRun(t *testing.T) {
	bus := &recordingBus{failKey: reassignment.AutoProcessPendingCommand{}.Key()}
	r, err := NewRunner(bus, Schedule{}, quiet())
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	reports, err := r.RunReassignment(context.Background())
	if err == nil {
		t.Fatal("expected the failing step to be reported")
	}
	if len(bus.keys) != 2 || bus.keys[1] != (reassignment.ExpireOverdueCommand{}).Key() {
		t.Fatalf("keys = %v", bus.keys)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %+v", reports)
	}
}

func TestNewRunnerSchedulesConfiguredJobs(t *testing.T) {
	r, err := NewRunner(&recordingBus{}, Schedule{Instances: "@every 1m", Completion: "*/5 * * * *"}, quiet())
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	if got := r.Jobs(); !reflect.DeepEqual(got, []string{JobInstances, JobCompletion}) {
		t.Fatalf("jobs = %v", got)
	}
	r.Start()
	r.Stop(context.Background())
}

func TestNewRunnerRejectsBadSpec(t *testing.T) {
	if _, err := NewRunner(&recordingBus{}, Schedule{Waitlist: "every minute"}, quiet()); err == nil {
		t.Fatal("expected a parse error")
	}
	if _, err := NewRunner(nil, Schedule{}, quiet()); !errors.Is(err, commands.ErrNilBus) {
		t.Fatalf("expected ErrNilBus, got %v", err)
	}
}
