package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"

	appoutbox "slotkeeper/internal/app/outbox"
	infraoutbox "slotkeeper/internal/infra/outbox"
)

type memoryInbox struct {
	seen map[string]bool
}

func (m *memoryInbox) Seen(ctx context.Context, id string) (bool, error) {
	if m.seen[id] {
		return true, nil
	}
	m.seen[id] = true
	return false, nil
}

func (m *memoryInbox) Forget(ctx context.Context, id string) error {
	delete(m.seen, id)
	return nil
}

func message(t *testing.T, rec appoutbox.EventRecord) *sarama.ConsumerMessage {
	t.Helper()
	payload, headers, err := infraoutbox.Encode(rec, "app://test")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg := newMessage(infraoutbox.TopicFor("", rec.Name), rec.Aggregate, payload, headers)
	out := &sarama.ConsumerMessage{Topic: msg.Topic, Value: payload}
	for i := range msg.Headers {
		out.Headers = append(out.Headers, &msg.Headers[i])
	}
	return out
}

func TestRouterHandlerSkipsDuplicates(t *testing.T) {
	router := appoutbox.NewRouter()
	calls := 0
	router.Subscribe("waitlist.offered", func(ctx context.Context, rec appoutbox.EventRecord) error {
		calls++
		return nil
	})
	h := RouterHandler{Router: router, Inbox: &memoryInbox{seen: map[string]bool{}}}
	msg := message(t, appoutbox.EventRecord{ID: "ev-1", Name: "waitlist.offered", Payload: []byte(`{}`), OccurredAt: time.Now()})

	for i := 0; i < 2; i++ {
		if err := h.Handle(context.Background(), msg); err != nil {
			t.Fatalf("handle #%d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Fatalf("delivered %d times", calls)
	}
}

func TestRouterHandlerRetriesFailedDelivery(t *testing.T) {
	router := appoutbox.NewRouter()
	fail := true
	router.Subscribe("reservation.cancelled", func(ctx context.Context, rec appoutbox.EventRecord) error {
		if fail {
			return errors.New("store unavailable")
		}
		return nil
	})
	inbox := &memoryInbox{seen: map[string]bool{}}
	h := RouterHandler{Router: router, Inbox: inbox}
	msg := message(t, appoutbox.EventRecord{ID: "ev-2", Name: "reservation.cancelled", Payload: []byte(`{}`), OccurredAt: time.Now()})

	if err := h.Handle(context.Background(), msg); err == nil {
		t.Fatal("expected delivery error")
	}
	if inbox.seen["ev-2"] {
		t.Fatal("failed event must be forgotten")
	}
	fail = false
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestTopicsFollowSubscriptions(t *testing.T) {
	router := appoutbox.NewRouter()
	noop := func(context.Context, appoutbox.EventRecord) error { return nil }
	router.Subscribe("waitlist.offered", noop)
	router.Subscribe("waitlist.expired", noop)
	router.Subscribe("resource.status_changed", noop)

	got := Topics("campus.", router)
	want := []string{"campus.resource.events.v1", "campus.waitlist.events.v1"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("topics = %v", got)
	}
}
