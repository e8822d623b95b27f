package reactions

import (
	"context"
	"log/slog"

	"slotkeeper/internal/app/outbox"
	"slotkeeper/internal/app/policies"
	domainreassignment "slotkeeper/internal/domain/reassignment"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainwaitlist "slotkeeper/internal/domain/waitlist"
)

// NotificationRelay turns requester-facing events into notifications.
// Delivery failures are logged and dropped.
type NotificationRelay struct {
	Notifier policies.Notifier
	Logger   *slog.Logger
}

func (n *NotificationRelay) Register(router *outbox.Router) {
	router.Subscribe(domainwaitlist.EventOffered, n.relay(waitlistOffered))
	router.Subscribe(domainwaitlist.EventExpired, n.relay(waitlistExpired))
	router.Subscribe(domainreassignment.EventRequested, n.relay(reassignmentRequested))
	router.Subscribe(domainreassignment.EventAutoApproved, n.relay(reassignmentAutoApproved))
	router.Subscribe(domainreassignment.EventExpired, n.relay(reassignmentExpired))
	router.Subscribe(domainreservation.EventCancelled, n.relay(reservationCancelled))
}

type mapper func(rec outbox.EventRecord) (policies.Notification, error)

func (n *NotificationRelay) relay(m mapper) outbox.Subscriber {
	return func(ctx context.Context, rec outbox.EventRecord) error {
		logger := n.Logger
		if logger == nil {
			logger = slog.Default()
		}
		note, err := m(rec)
		if err != nil {
			logger.WarnContext(ctx, "notification payload unreadable", "event", rec.Name, "event_id", rec.ID, "error", err)
			return nil
		}
		if n.Notifier == nil || note.Recipient == "" {
			return nil
		}
		if err := n.Notifier.Notify(ctx, note); err != nil {
			logger.WarnContext(ctx, "notification failed", "event", rec.Name, "recipient", note.Recipient, "error", err)
		}
		return nil
	}
}

func waitlistOffered(rec outbox.EventRecord) (policies.Notification, error) {
	ev, err := outbox.Decode[domainwaitlist.Offered](rec)
	if err != nil {
		return policies.Notification{}, err
	}
	return policies.Notification{
		Event:     rec.Name,
		Recipient: ev.RequesterID,
		Subject:   "A slot you are waiting for is available",
		Data: map[string]any{
			"entry_id":    string(ev.EntryID),
			"resource_id": string(ev.ResourceID),
			"start":       ev.Window.Start,
			"end":         ev.Window.End,
			"respond_by":  ev.Deadline,
		},
		OccurredAt: ev.At,
	}, nil
}

func waitlistExpired(rec outbox.EventRecord) (policies.Notification, error) {
	ev, err := outbox.Decode[domainwaitlist.Expired](rec)
	if err != nil {
		return policies.Notification{}, err
	}
	return policies.Notification{
		Event:     rec.Name,
		Recipient: ev.RequesterID,
		Subject:   "Your waiting list entry expired",
		Data: map[string]any{
			"entry_id":    string(ev.EntryID),
			"resource_id": string(ev.ResourceID),
			"cause":       ev.Cause,
		},
		OccurredAt: ev.At,
	}, nil
}

func reassignmentRequested(rec outbox.EventRecord) (policies.Notification, error) {
	ev, err := outbox.Decode[domainreassignment.Requested](rec)
	if err != nil {
		return policies.Notification{}, err
	}
	return policies.Notification{
		Event:     rec.Name,
		Recipient: ev.RequesterID,
		Subject:   "Your reservation needs a new resource",
		Data: map[string]any{
			"request_id":     string(ev.RequestID),
			"reservation_id": string(ev.ReservationID),
			"reason":         string(ev.Reason),
			"respond_by":     ev.Deadline,
		},
		OccurredAt: ev.At,
	}, nil
}

func reassignmentAutoApproved(rec outbox.EventRecord) (policies.Notification, error) {
	ev, err := outbox.Decode[domainreassignment.AutoApproved](rec)
	if err != nil {
		return policies.Notification{}, err
	}
	return policies.Notification{
		Event:     rec.Name,
		Recipient: ev.RequesterID,
		Subject:   "Your reservation was moved",
		Data: map[string]any{
			"request_id":     string(ev.RequestID),
			"reservation_id": string(ev.ReservationID),
			"resource_id":    string(ev.ResourceID),
		},
		OccurredAt: ev.At,
	}, nil
}

func reassignmentExpired(rec outbox.EventRecord) (policies.Notification, error) {
	ev, err := outbox.Decode[domainreassignment.Expired](rec)
	if err != nil {
		return policies.Notification{}, err
	}
	data := map[string]any{
		"request_id":     string(ev.RequestID),
		"reservation_id": string(ev.ReservationID),
		"fallback":       string(ev.Fallback),
	}
	if ev.ResourceID != "" {
		data["resource_id"] = string(ev.ResourceID)
	}
	return policies.Notification{
		Event:      rec.Name,
		Recipient:  ev.RequesterID,
		Subject:    "No answer was received for your reassignment",
		Data:       data,
		OccurredAt: ev.At,
	}, nil
}

func reservationCancelled(rec outbox.EventRecord) (policies.Notification, error) {
	ev, err := outbox.Decode[domainreservation.Cancelled](rec)
	if err != nil {
		return policies.Notification{}, err
	}
	return policies.Notification{
		Event:     rec.Name,
		Recipient: ev.RequesterID,
		Subject:   "Your reservation was cancelled",
		Data: map[string]any{
			"reservation_id": string(ev.ReservationID),
			"resource_id":    string(ev.ResourceID),
			"reason":         ev.Reason,
		},
		OccurredAt: ev.At,
	}, nil
}
