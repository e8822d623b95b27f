package recurrence

import (
	"errors"
	"testing"
	"time"

	"slotkeeper/internal/domain/shared/daytime"
)

func expanded(t *testing.T) *Series {
	t.Helper()
	s := newSeries(t, Rule{Frequency: Daily, Interval: 1}, date(2024, 3, 1), date(2024, 3, 5))
	generated, _, err := Expander{}.Expand(s, date(2024, 3, 5), 0, true, nil)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	for i := range generated {
		generated[i].ReservationID = "res-" + generated[i].ID
	}
	if err := s.AddInstances(generated, nil, date(2024, 2, 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	return s
}

func TestCancelScopes(t *testing.T) {
	t.Parallel()
	// 2024-03-03 10:30, in the middle of the third instance.
	now := date(2024, 3, 3).Add(10*time.Hour + 30*time.Minute)

	all := expanded(t)
	affected, err := all.Cancel(ScopeAll, "course dropped", now)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(affected) != 3 {
		t.Fatalf("ALL should cancel the running and future instances, got %d", len(affected))
	}
	if all.Status != StatusCancelled || all.TotalInstances != 2 {
		t.Fatalf("unexpected series state %s total=%d", all.Status, all.TotalInstances)
	}

	future := expanded(t)
	affected, err = future.Cancel(ScopeFutureOnly, "", now)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(affected) != 2 || affected[0].Index != 3 {
		t.Fatalf("FUTURE_ONLY should cancel the instances starting after now, got %+v", affected)
	}

	if _, err := future.Cancel(ScopeAll, "", now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state on second cancel, got %v", err)
	}
}

func TestUpdateTimesSupersedesAndReexpands(t *testing.T) {
	t.Parallel()
	s := expanded(t)
	now := date(2024, 3, 2).Add(12 * time.Hour)
	affected, err := s.UpdateTimes(daytime.MustParse("14:00"), daytime.MustParse("15:00"), ScopeFutureOnly, now)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(affected) != 3 {
		t.Fatalf("expected 3 superseded instances, got %d", len(affected))
	}
	regenerated, _, err := Expander{}.Expand(s, date(2024, 3, 5), 0, true, nil)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(regenerated) != 3 {
		t.Fatalf("expected 3 regenerated instances, got %d", len(regenerated))
	}
	if regenerated[0].Window.Start.Hour() != 14 || regenerated[0].Revision != 1 || regenerated[0].ID == affected[0].ID {
		t.Fatalf("unexpected regenerated instance %+v", regenerated[0])
	}
}

func TestSyncAndComplete(t *testing.T) {
	t.Parallel()
	s := expanded(t)
	for _, inst := range s.Instances {
		s.SyncInstance(inst.ReservationID, InstanceConfirmed, date(2024, 2, 2))
	}
	if s.ConfirmedInstances != 5 {
		t.Fatalf("expected 5 confirmed, got %d", s.ConfirmedInstances)
	}
	if s.Complete(date(2024, 3, 5).Add(12 * time.Hour)) {
		t.Fatalf("series must not complete before its last day ends")
	}
	if !s.Complete(date(2024, 3, 6)) {
		t.Fatalf("series should complete after its range")
	}
	if s.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", s.Status)
	}
}
