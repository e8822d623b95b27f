package reassignment

import (
	"errors"
	"testing"
	"time"

	"slotkeeper/internal/domain/reservation"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/window"
)

var now0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openRequest(t *testing.T, deadline time.Time) *Request {
	t.Helper()
	start := now0.Add(72 * time.Hour)
	res, err := reservation.New(reservation.CreateParams{
		ID:          "res-1",
		ResourceID:  "room-1",
		RequesterID: "u-1",
		Window:      window.Must(start, start.Add(time.Hour)),
		CreatedAt:   now0.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("reservation: %v", err)
	}
	req, err := Open(OpenParams{
		ID:          "rr-1",
		Reservation: res,
		Constraints: Constraints{AcceptEquivalent: true, RequiredFeatures: []string{" Projector "}},
		Deadline:    deadline,
		CreatedAt:   now0,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return req
}

func TestOpenRecordsRequest(t *testing.T) {
	req := openRequest(t, now0.Add(48*time.Hour))
	if req.Status != StatusPending || req.Reason != ReasonResourceUnavailable {
		t.Fatalf("unexpected request: %+v", req)
	}
	if got := req.Constraints.RequiredFeatures; len(got) != 1 || got[0] != "projector" {
		t.Fatalf("features not normalized: %v", got)
	}
	evts := req.PendingEvents()
	if len(evts) != 1 || evts[0].EventName() != EventRequested {
		t.Fatalf("expected requested event, got %v", evts)
	}
}

func TestOpenValidates(t *testing.T) {
	_, err := Open(OpenParams{ID: "rr", Deadline: now0, CreatedAt: now0})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExpireOnlyAfterDeadline(t *testing.T) {
	deadline := now0.Add(48 * time.Hour)
	req := openRequest(t, deadline)

	if req.Expire(deadline.Add(-time.Minute)) {
		t.Fatalf("expired before deadline")
	}
	if req.Expire(deadline) {
		t.Fatalf("expired exactly at deadline")
	}
	if req.Status != StatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if !req.Expire(deadline.Add(time.Second)) {
		t.Fatalf("expected expiry after deadline")
	}
	if req.Status != StatusExpired {
		t.Fatalf("expected expired, got %s", req.Status)
	}
	if req.Expire(deadline.Add(time.Hour)) {
		t.Fatalf("second expiry must be a no-op")
	}
}

func TestAcceptAfterDeadlineFails(t *testing.T) {
	deadline := now0.Add(time.Hour)
	req := openRequest(t, deadline)
	err := req.Accept("room-2", deadline.Add(time.Minute))
	if !errors.Is(err, errs.ErrDeadlineExpired) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if req.Status != StatusPending {
		t.Fatalf("lazy check must not change status, got %s", req.Status)
	}
}

func TestResolveTransitions(t *testing.T) {
	req := openRequest(t, now0.Add(time.Hour))
	if err := req.Accept("room-2", now0); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if req.Status != StatusAccepted || req.SelectedResourceID != "room-2" {
		t.Fatalf("unexpected state: %+v", req)
	}
	if err := req.Reject(now0); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if err := req.Cancel("x", now0); !errors.Is(err, errs.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	other := openRequest(t, now0.Add(time.Hour))
	if err := other.AutoApprove("room-3", now0); err != nil {
		t.Fatalf("auto approve: %v", err)
	}
	if other.Status != StatusAutoApproved || other.ResolvedAt.IsZero() {
		t.Fatalf("unexpected state: %+v", other)
	}
}

func TestPolicyAutoCandidate(t *testing.T) {
	p := DefaultPolicy()
	one := Equivalents{Exact: []Candidate{{ResourceID: "a"}}}
	two := Equivalents{Exact: []Candidate{{ResourceID: "a"}, {ResourceID: "b"}}}

	if _, ok := p.AutoCandidate(one, 48); ok {
		t.Fatalf("event beyond threshold must wait for the requester")
	}
	if c, ok := p.AutoCandidate(one, 3); !ok || c.ResourceID != "a" {
		t.Fatalf("expected auto candidate a, got %+v %v", c, ok)
	}
	if _, ok := p.AutoCandidate(two, 3); ok {
		t.Fatalf("ambiguous exact matches must not auto approve")
	}
	if _, ok := p.AutoCandidate(Equivalents{Good: []Candidate{{ResourceID: "g"}}}, 3); ok {
		t.Fatalf("good match must not auto approve")
	}
}

func TestPolicyDeadlineCappedAtEvent(t *testing.T) {
	p := DefaultPolicy()
	event := now0.Add(5 * time.Hour)
	if got := p.Deadline(now0, event); !got.Equal(event) {
		t.Fatalf("expected deadline capped at event start, got %v", got)
	}
	far := now0.Add(10 * 24 * time.Hour)
	if got := p.Deadline(now0, far); !got.Equal(now0.Add(p.ResponseWindow)) {
		t.Fatalf("expected full response window, got %v", got)
	}
}
