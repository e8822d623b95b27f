package memory

import (
	"time"

	domainreassignment "slotkeeper/internal/domain/reassignment"
	domainrecurrence "slotkeeper/internal/domain/recurrence"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/errs"
	domainwaitlist "slotkeeper/internal/domain/waitlist"
)

// Clones drop pending events: only the caller's copy publishes them.

func cloneResource(r *domainresource.Resource) *domainresource.Resource {
	c := *r
	c.ClearEvents()
	c.Features = append([]string(nil), r.Features...)
	if r.Location.Coordinates != nil {
		coords := *r.Location.Coordinates
		c.Location.Coordinates = &coords
	}
	s := r.Schedule
	c.Schedule.WeeklyHours = append([]domainresource.OperatingHours(nil), s.WeeklyHours...)
	c.Schedule.Exceptions = append([]domainresource.Exception(nil), s.Exceptions...)
	c.Schedule.Maintenance = append([]domainresource.MaintenanceWindow(nil), s.Maintenance...)
	c.Schedule.Restrictions.AllowedUserTypes = append([]string(nil), s.Restrictions.AllowedUserTypes...)
	if s.Restrictions.PriorityWeights != nil {
		weights := make(map[string]int, len(s.Restrictions.PriorityWeights))
		for k, v := range s.Restrictions.PriorityWeights {
			weights[k] = v
		}
		c.Schedule.Restrictions.PriorityWeights = weights
	}
	return &c
}

func cloneReservation(r *domainreservation.Reservation) *domainreservation.Reservation {
	c := *r
	c.ClearEvents()
	return &c
}

func cloneSeries(s *domainrecurrence.Series) *domainrecurrence.Series {
	c := *s
	c.ClearEvents()
	c.Rule.Weekdays = append([]time.Weekday(nil), s.Rule.Weekdays...)
	c.Instances = make([]domainrecurrence.Instance, len(s.Instances))
	for i, inst := range s.Instances {
		inst.Reasons = append([]errs.ConflictReason(nil), inst.Reasons...)
		c.Instances[i] = inst
	}
	return &c
}

func cloneEntry(e *domainwaitlist.Entry) *domainwaitlist.Entry {
	c := *e
	c.ClearEvents()
	return &c
}

func cloneRequest(r *domainreassignment.Request) *domainreassignment.Request {
	c := *r
	c.ClearEvents()
	c.Constraints.RequiredFeatures = append([]string(nil), r.Constraints.RequiredFeatures...)
	c.Constraints.PreferredFeatures = append([]string(nil), r.Constraints.PreferredFeatures...)
	c.Candidates = append([]domainreassignment.Candidate(nil), r.Candidates...)
	return &c
}
