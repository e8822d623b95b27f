package main

import (
	"strings"

	"slotkeeper/internal/app/engine"
	"slotkeeper/internal/app/handlers/booking"
	"slotkeeper/internal/app/handlers/series"
	domainreassignment "slotkeeper/internal/domain/reassignment"
	domainwaitlist "slotkeeper/internal/domain/waitlist"
	"slotkeeper/internal/infra/config"
)

func policiesFrom(cfg config.Config) engine.Policies {
	e := cfg.Engine
	return engine.Policies{
		Booking: booking.Policy{
			AutoConfirm: e.Booking.AutoConfirm,
			LockTimeout: e.Booking.LockTimeout,
		},
		Series: series.Policy{
			Horizon:            e.Series.Horizon,
			MaxInstancesPerRun: e.Series.MaxInstancesPerRun,
		},
		Waitlist: domainwaitlist.Policy{
			PriorityTable:       e.Waitlist.PriorityTable,
			DefaultPriority:     e.Waitlist.DefaultPriority,
			EscalationInterval:  e.Waitlist.EscalationInterval,
			EscalationStep:      e.Waitlist.EscalationStep,
			MaxEscalation:       e.Waitlist.MaxEscalation,
			OfferResponseWindow: e.Waitlist.OfferResponseWindow,
			MaxOffers:           e.Waitlist.MaxOffers,
			DemotionPenalty:     e.Waitlist.DemotionPenalty,
			EntryTTL:            e.Waitlist.EntryTTL,
		},
		Reassignment: domainreassignment.Policy{
			EmergencyThresholdHours:         e.Reassignment.EmergencyThresholdHours,
			ResponseWindow:                  e.Reassignment.ResponseWindow,
			Fallback:                        domainreassignment.Fallback(strings.ToUpper(strings.TrimSpace(e.Reassignment.Fallback))),
			AllowPartialReassignment:        e.Reassignment.AllowPartialReassignment,
			DefaultCapacityTolerancePercent: e.Reassignment.CapacityTolerancePercent,
		},
	}
}
