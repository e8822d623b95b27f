package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/IBM/sarama"

	appoutbox "slotkeeper/internal/app/outbox"
	infraoutbox "slotkeeper/internal/infra/outbox"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
	logger  *slog.Logger
}

func NewConsumer(brokers []string, groupID string, cfg *sarama.Config, handler MessageHandler, logger *slog.Logger) (*Consumer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	g, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{group: g, handler: handler, logger: logger}, nil
}

func (c *Consumer) Run(ctx context.Context, topics []string) error {
	for {
		if err := c.group.Consume(ctx, topics, consumerGroupHandler{handler: c.handler, logger: c.logger}); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler MessageHandler
	logger  *slog.Logger
}

func (h consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim leaves failed messages unmarked; the group resumes from the
// last marked offset after a rebalance.
func (h consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := h.handler.Handle(sess.Context(), message); err != nil {
			h.logger.Warn("kafka message not handled", "topic", message.Topic, "partition", message.Partition, "offset", message.Offset, "error", err)
			continue
		}
		sess.MarkMessage(message, "")
	}
	return nil
}

// Deduper is implemented by the inbox store.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// RouterHandler decodes outbox envelopes and hands them to the in-process
// router, dropping events the inbox has already seen.
type RouterHandler struct {
	Router *appoutbox.Router
	Inbox  Deduper
	Logger *slog.Logger
}

func (h RouterHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	headers := make(map[string]string, len(msg.Headers))
	for _, hdr := range msg.Headers {
		if hdr == nil {
			continue
		}
		headers[string(hdr.Key)] = string(hdr.Value)
	}
	rec, err := infraoutbox.Decode(msg.Value, headers)
	if err != nil {
		// Undecodable messages can never succeed; skip them.
		h.logger().Error("dropping malformed event", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, rec.ID)
		if err != nil {
			return err
		}
		if seen {
			h.logger().Debug("duplicate event skipped", "event_id", rec.ID, "event", rec.Name)
			return nil
		}
	}
	if err := h.Router.Deliver(ctx, rec); err != nil {
		if h.Inbox != nil {
			if ferr := h.Inbox.Forget(ctx, rec.ID); ferr != nil {
				return errors.Join(err, ferr)
			}
		}
		return err
	}
	return nil
}

func (h RouterHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Topics lists the topics carrying the events router has subscribers for.
func Topics(prefix string, router *appoutbox.Router) []string {
	set := map[string]struct{}{}
	for _, name := range router.Names() {
		set[infraoutbox.TopicFor(prefix, name)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for topic := range set {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}
