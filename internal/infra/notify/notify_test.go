package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"slotkeeper/internal/app/policies"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: "notifications", Type: task.Type()}, nil
}

type captureNotifier struct {
	got []policies.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n policies.Notification) error {
	c.got = append(c.got, n)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sample() policies.Notification {
	return policies.Notification{
		Event:      "waitlist.offered",
		Recipient:  "u-1",
		Subject:    "A slot you are waiting for is available",
		Data:       map[string]any{"entry_id": "e-1"},
		OccurredAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestAsynqNotifierEnqueuesDeliveryTask(t *testing.T) {
	q := &recordingEnqueuer{}
	n := newAsynqNotifier(q, "", discard())

	if err := n.Notify(context.Background(), sample()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(q.tasks) != 1 || q.tasks[0].Type() != TaskDeliver {
		t.Fatalf("tasks = %v", q.tasks)
	}
	var decoded policies.Notification
	if err := json.Unmarshal(q.tasks[0].Payload(), &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.Recipient != "u-1" || decoded.Event != "waitlist.offered" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestAsynqNotifierSurfacesEnqueueError(t *testing.T) {
	boom := errors.New("redis down")
	n := newAsynqNotifier(&recordingEnqueuer{err: boom}, "notifications", discard())
	if err := n.Notify(context.Background(), sample()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped enqueue error, got %v", err)
	}
}

func TestDelivererForwardsToSink(t *testing.T) {
	payload, err := json.Marshal(sample())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sink := &captureNotifier{}
	d := Deliverer{Sink: sink, Logger: discard()}
	if err := d.ProcessTask(context.Background(), asynq.NewTask(TaskDeliver, payload)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(sink.got) != 1 || sink.got[0].Subject != sample().Subject {
		t.Fatalf("sink got %+v", sink.got)
	}
}

func TestDelivererSkipsRetryForMalformedPayload(t *testing.T) {
	d := Deliverer{Sink: &captureNotifier{}, Logger: discard()}
	err := d.ProcessTask(context.Background(), asynq.NewTask(TaskDeliver, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestLogNotifierWritesRecipient(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	if err := n.Notify(context.Background(), sample()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(buf.String(), `"recipient":"u-1"`) {
		t.Fatalf("log = %s", buf.String())
	}
}
