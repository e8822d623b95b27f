// Package notify delivers requester notifications. Delivery itself is
// fire-and-forget from the engine's point of view.
package notify

import (
	"context"
	"log/slog"

	"slotkeeper/internal/app/policies"
)

// LogNotifier writes notifications to the log. It is the default when no
// queue is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, note policies.Notification) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		slog.String("event", note.Event),
		slog.String("recipient", note.Recipient),
		slog.String("subject", note.Subject),
		slog.Time("occurred_at", note.OccurredAt),
	)
	return nil
}

var _ policies.Notifier = LogNotifier{}
