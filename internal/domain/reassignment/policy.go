package reassignment

import (
	"fmt"
	"strings"
	"time"

	"slotkeeper/internal/domain/shared/errs"
)

// Fallback is applied when a request expires without an answer.
type Fallback string

const (
	FallbackAutoApproveGood Fallback = "AUTO_APPROVE_GOOD"
	FallbackWaitlist        Fallback = "WAITLIST"
)

func ParseFallback(raw string) (Fallback, error) {
	switch f := Fallback(strings.ToUpper(strings.TrimSpace(raw))); f {
	case FallbackAutoApproveGood, FallbackWaitlist:
		return f, nil
	}
	return "", errs.Invalid("fallback", fmt.Sprintf("unknown fallback %q", raw))
}

type Policy struct {
	EmergencyThresholdHours         float64
	ResponseWindow                  time.Duration
	Fallback                        Fallback
	AllowPartialReassignment        bool
	DefaultCapacityTolerancePercent int
}

func DefaultPolicy() Policy {
	return Policy{
		EmergencyThresholdHours:         24,
		ResponseWindow:                  48 * time.Hour,
		Fallback:                        FallbackAutoApproveGood,
		DefaultCapacityTolerancePercent: 10,
	}
}

// AutoCandidate returns the match to auto approve: exactly one exact match
// and an event closer than the emergency threshold.
func (p Policy) AutoCandidate(eq Equivalents, hoursUntilEvent float64) (Candidate, bool) {
	if len(eq.Exact) != 1 || hoursUntilEvent >= p.EmergencyThresholdHours {
		return Candidate{}, false
	}
	return eq.Exact[0], true
}

// Deadline caps the response window so an answer is due before the event.
func (p Policy) Deadline(now, eventStart time.Time) time.Time {
	deadline := now.Add(p.ResponseWindow)
	if eventStart.After(now) && eventStart.Before(deadline) {
		return eventStart
	}
	return deadline
}
