package waitlist

import (
	"strings"
	"time"

	"slotkeeper/internal/domain/shared/errs"
)

const (
	joinKey       = "waitlist.join"
	leaveKey      = "waitlist.leave"
	promoteKey    = "waitlist.promote_next"
	acceptKey     = "waitlist.offer.accept"
	declineKey    = "waitlist.offer.decline"
	escalateKey   = "waitlist.sweep.escalate"
	lapseKey      = "waitlist.sweep.lapse_offers"
	expireKey     = "waitlist.sweep.expire_stale"
	listKey       = "waitlist.list"
	getEntryKey   = "waitlist.get"
	allStatusesV  = "ALL"
	maxPromotions = 64
)

type JoinCommand struct {
	EntryID        string
	ResourceID     string
	RequesterID    string
	RequesterClass string
	Start          time.Time
	End            time.Time
}

func (c JoinCommand) Key() string { return joinKey }

func (c JoinCommand) ActingRequester() string { return c.RequesterID }

func (c JoinCommand) Validate() error {
	verr := &errs.ValidationError{}
	if strings.TrimSpace(c.ResourceID) == "" {
		verr.Add("resource_id", "required")
	}
	if strings.TrimSpace(c.RequesterID) == "" {
		verr.Add("requester_id", "required")
	}
	return verr.OrNil()
}

type LeaveCommand struct {
	EntryID string
}

func (c LeaveCommand) Key() string { return leaveKey }

// PromoteNextCommand offers the freed window to the best fitting entry.
// ExcludeEntryID skips an entry that has just turned the slot down.
type PromoteNextCommand struct {
	ResourceID     string
	Start          time.Time
	End            time.Time
	ExcludeEntryID string
}

func (c PromoteNextCommand) Key() string { return promoteKey }

type AcceptOfferCommand struct {
	EntryID string
}

func (c AcceptOfferCommand) Key() string { return acceptKey }

type DeclineOfferCommand struct {
	EntryID string
}

func (c DeclineOfferCommand) Key() string { return declineKey }

type EscalatePriorityCommand struct{}

func (EscalatePriorityCommand) Key() string { return escalateKey }

type LapseOffersCommand struct{}

func (LapseOffersCommand) Key() string { return lapseKey }

type ExpireStaleCommand struct{}

func (ExpireStaleCommand) Key() string { return expireKey }

type ListQuery struct {
	ResourceID string
	Status     string
}

func (q ListQuery) Key() string { return listKey }

type GetEntryQuery struct {
	EntryID string
}

func (q GetEntryQuery) Key() string { return getEntryKey }
