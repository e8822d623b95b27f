package resource

import "time"

type Registered struct {
	ResourceID ResourceID
	Type       string
	At         time.Time
}

func (e Registered) EventName() string     { return "resource.registered" }
func (e Registered) AggregateID() string   { return string(e.ResourceID) }
func (e Registered) OccurredAt() time.Time { return e.At }

type StatusChanged struct {
	ResourceID ResourceID
	From       Status
	To         Status
	Reason     string
	At         time.Time
}

func (e StatusChanged) EventName() string     { return EventStatusChanged }
func (e StatusChanged) AggregateID() string   { return string(e.ResourceID) }
func (e StatusChanged) OccurredAt() time.Time { return e.At }

type ScheduleUpdated struct {
	ResourceID ResourceID
	At         time.Time
}

func (e ScheduleUpdated) EventName() string     { return "resource.schedule_updated" }
func (e ScheduleUpdated) AggregateID() string   { return string(e.ResourceID) }
func (e ScheduleUpdated) OccurredAt() time.Time { return e.At }

const EventStatusChanged = "resource.status_changed"
