package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	appoutbox "slotkeeper/internal/app/outbox"
)

type fakeStore struct {
	due    []*EventDocument
	sent   []string
	failed map[string]time.Time
}

func (s *fakeStore) Claim(ctx context.Context, workerID string, staleAfter time.Duration) (*EventDocument, error) {
	if len(s.due) == 0 {
		return nil, nil
	}
	doc := s.due[0]
	s.due = s.due[1:]
	return doc, nil
}

func (s *fakeStore) MarkSent(ctx context.Context, id string) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	if s.failed == nil {
		s.failed = map[string]time.Time{}
	}
	s.failed[id] = next
	return nil
}

type publishCall struct {
	topic, key string
	payload    []byte
	headers    map[string]string
}

type fakeProducer struct {
	calls []publishCall
	err   error
}

func (p *fakeProducer) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, publishCall{topic, key, payload, headers})
	return nil
}

func document(id, name string) *EventDocument {
	return &EventDocument{
		ID:         id,
		Name:       name,
		Payload:    []byte(`{"entry_id":"e-1"}`),
		OccurredAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Aggregate:  "e-1",
		Headers:    map[string]string{"traceparent": "00-abc-def-01"},
	}
}

func TestDrainPublishesEnvelopes(t *testing.T) {
	store := &fakeStore{due: []*EventDocument{document("ev-1", "waitlist.offered"), document("ev-2", "reservation.cancelled")}}
	producer := &fakeProducer{}
	w := &Worker{Store: store, Producer: producer, TopicPrefix: "campus."}

	sent, err := w.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if sent != 2 || len(store.sent) != 2 {
		t.Fatalf("sent = %d, marked %v", sent, store.sent)
	}
	first := producer.calls[0]
	if first.topic != "campus.waitlist.events.v1" || first.key != "e-1" {
		t.Fatalf("call = %+v", first)
	}
	if first.headers["content-type"] != ContentType || first.headers["traceparent"] != "00-abc-def-01" {
		t.Fatalf("headers = %v", first.headers)
	}

	rec, err := Decode(first.payload, first.headers)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ID != "ev-1" || rec.Name != "waitlist.offered" || string(rec.Payload) != `{"entry_id":"e-1"}` || rec.Aggregate != "e-1" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestDrainReschedulesFailedPublish(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	doc := document("ev-1", "waitlist.offered")
	doc.Attempts = 1
	store := &fakeStore{due: []*EventDocument{doc}}
	w := &Worker{
		Store:    store,
		Producer: &fakeProducer{err: errors.New("broker down")},
		Backoff:  []time.Duration{time.Second, 30 * time.Second},
		Now:      func() time.Time { return now },
	}
	if _, err := w.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	next, ok := store.failed["ev-1"]
	if !ok || !next.Equal(now.Add(30*time.Second)) {
		t.Fatalf("failed = %v", store.failed)
	}
	if len(store.sent) != 0 {
		t.Fatalf("nothing should be marked sent: %v", store.sent)
	}
}

func TestLocalProducerDeliversToRouter(t *testing.T) {
	router := appoutbox.NewRouter()
	var got []appoutbox.EventRecord
	router.Subscribe("reservation.cancelled", func(ctx context.Context, rec appoutbox.EventRecord) error {
		got = append(got, rec)
		return nil
	})
	store := &fakeStore{due: []*EventDocument{document("ev-9", "reservation.cancelled")}}
	w := &Worker{Store: store, Producer: LocalProducer{Router: router}}
	if _, err := w.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ev-9" || got[0].Headers["traceparent"] == "" {
		t.Fatalf("delivered = %+v", got)
	}
}

func TestDecodeRejectsForeignMessages(t *testing.T) {
	if _, err := Decode([]byte(`{"id":"x","type":"other"}`), nil); !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("expected malformed envelope, got %v", err)
	}
	if _, err := Decode([]byte(`not json`), nil); !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("expected malformed envelope, got %v", err)
	}
}
