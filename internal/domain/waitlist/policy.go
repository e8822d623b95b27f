package waitlist

import "time"

// Policy holds waiting list tuning. Base priorities come from a lookup table
// keyed by requester class so new roles are configuration, not code.
type Policy struct {
	PriorityTable       map[string]int
	DefaultPriority     int
	EscalationInterval  time.Duration
	EscalationStep      int
	MaxEscalation       int
	OfferResponseWindow time.Duration
	MaxOffers           int
	DemotionPenalty     int
	EntryTTL            time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		PriorityTable: map[string]int{
			"admin":   40,
			"faculty": 30,
			"staff":   20,
			"student": 10,
		},
		DefaultPriority:     10,
		EscalationInterval:  24 * time.Hour,
		EscalationStep:      1,
		OfferResponseWindow: 2 * time.Hour,
		MaxOffers:           3,
		DemotionPenalty:     1,
		EntryTTL:            14 * 24 * time.Hour,
	}
}

// BasePriority looks up the requester class, falling back to DefaultPriority.
func (p Policy) BasePriority(class string) int {
	if v, ok := p.PriorityTable[class]; ok {
		return v
	}
	return p.DefaultPriority
}

// BonusAt is the escalation bonus an entry enrolled at enrolled has earned by now.
func (p Policy) BonusAt(enrolled, now time.Time) int {
	if p.EscalationInterval <= 0 || p.EscalationStep <= 0 || !now.After(enrolled) {
		return 0
	}
	bonus := int(now.Sub(enrolled)/p.EscalationInterval) * p.EscalationStep
	if p.MaxEscalation > 0 && bonus > p.MaxEscalation {
		bonus = p.MaxEscalation
	}
	return bonus
}
