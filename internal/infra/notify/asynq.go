package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"slotkeeper/internal/app/policies"
)

const TaskDeliver = "notification:deliver"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

func (o RedisOptions) clientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: o.Addr, Password: o.Password, DB: o.DB}
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqNotifier enqueues one delivery task per notification. Retries belong
// to the queue, not to the caller.
type AsynqNotifier struct {
	client   enqueuer
	closer   func() error
	queue    string
	maxRetry int
	logger   *slog.Logger
}

func NewAsynqNotifier(opts RedisOptions, queue string, logger *slog.Logger) *AsynqNotifier {
	client := asynq.NewClient(opts.clientOpt())
	n := newAsynqNotifier(client, queue, logger)
	n.closer = client.Close
	return n
}

func newAsynqNotifier(client enqueuer, queue string, logger *slog.Logger) *AsynqNotifier {
	if queue == "" {
		queue = "notifications"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AsynqNotifier{client: client, queue: queue, maxRetry: 5, logger: logger}
}

func (n *AsynqNotifier) Notify(ctx context.Context, note policies.Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	task := asynq.NewTask(TaskDeliver, payload)
	info, err := n.client.EnqueueContext(ctx, task,
		asynq.Queue(n.queue),
		asynq.MaxRetry(n.maxRetry),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	n.logger.DebugContext(ctx, "notification enqueued",
		slog.String("task_id", info.ID),
		slog.String("queue", info.Queue),
		slog.String("event", note.Event),
	)
	return nil
}

func (n *AsynqNotifier) Close() error {
	if n.closer == nil {
		return nil
	}
	return n.closer()
}

var _ policies.Notifier = (*AsynqNotifier)(nil)

// Deliverer consumes delivery tasks. Transmission to the requester is out of
// the engine's hands, so the default Sink only logs.
type Deliverer struct {
	Sink   policies.Notifier
	Logger *slog.Logger
}

func (d Deliverer) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var note policies.Notification
	if err := json.Unmarshal(task.Payload(), &note); err != nil {
		// A malformed payload will never decode; do not retry it.
		return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
	}
	sink := d.Sink
	if sink == nil {
		sink = LogNotifier{Logger: d.Logger}
	}
	return sink.Notify(ctx, note)
}

// DeliveryServer runs the asynq worker that drains the notification queue.
type DeliveryServer struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

func NewDeliveryServer(opts RedisOptions, queue string, d Deliverer) *DeliveryServer {
	if queue == "" {
		queue = "notifications"
	}
	srv := asynq.NewServer(opts.clientOpt(), asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{queue: 1},
	})
	mux := asynq.NewServeMux()
	mux.Handle(TaskDeliver, d)
	return &DeliveryServer{srv: srv, mux: mux}
}

// Start returns once the worker is running.
func (s *DeliveryServer) Start() error {
	return s.srv.Start(s.mux)
}

func (s *DeliveryServer) Shutdown() {
	s.srv.Shutdown()
}
