package policies

import (
	"context"
	"time"
)

// Notification is a fire-and-forget message for a requester.
type Notification struct {
	Event      string         `json:"event"`
	Recipient  string         `json:"recipient"`
	Subject    string         `json:"subject"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Notifier delivers notifications. Callers log failures and move on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
