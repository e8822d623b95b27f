package memory

import (
	"context"
	"log/slog"
	"sync"

	appoutbox "slotkeeper/internal/app/outbox"
)

// Outbox keeps committed records until Flush delivers them to the router.
// Events raised by subscribers are queued and delivered in the same Flush.
type Outbox struct {
	mu       sync.Mutex
	records  []appoutbox.EventRecord
	flushing bool
	router   *appoutbox.Router
	logger   *slog.Logger
}

func NewOutbox(router *appoutbox.Router, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{router: router, logger: logger}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, record)
	return nil
}

// Flush delivers queued records in order. A nested Flush from inside a
// subscriber returns immediately; the outer loop picks up its records.
func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	if o.flushing {
		o.mu.Unlock()
		return nil
	}
	o.flushing = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.flushing = false
		o.mu.Unlock()
	}()

	for {
		o.mu.Lock()
		if len(o.records) == 0 {
			o.mu.Unlock()
			return nil
		}
		rec := o.records[0]
		o.records = o.records[1:]
		o.mu.Unlock()

		if o.router == nil {
			continue
		}
		if err := o.router.Deliver(ctx, rec); err != nil {
			o.logger.Error("event delivery failed", "event", rec.Name, "event_id", rec.ID, "aggregate", rec.Aggregate, "error", err)
		}
	}
}

// Pending reports how many records wait for the next Flush.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.records)
}

var _ appoutbox.Outbox = (*Outbox)(nil)
