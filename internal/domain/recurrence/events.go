package recurrence

import (
	"time"

	"slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/daytime"
)

type Created struct {
	SeriesID    SeriesID
	ResourceID  resource.ResourceID
	RequesterID string
	At          time.Time
}

func (e Created) EventName() string     { return "series.created" }
func (e Created) AggregateID() string   { return string(e.SeriesID) }
func (e Created) OccurredAt() time.Time { return e.At }

type Expanded struct {
	SeriesID    SeriesID
	RequesterID string
	Generated   int
	Conflicts   int
	At          time.Time
}

func (e Expanded) EventName() string     { return EventExpanded }
func (e Expanded) AggregateID() string   { return string(e.SeriesID) }
func (e Expanded) OccurredAt() time.Time { return e.At }

type Cancelled struct {
	SeriesID    SeriesID
	RequesterID string
	Scope       Scope
	Instances   int
	Reason      string
	At          time.Time
}

func (e Cancelled) EventName() string     { return "series.cancelled" }
func (e Cancelled) AggregateID() string   { return string(e.SeriesID) }
func (e Cancelled) OccurredAt() time.Time { return e.At }

type TimesUpdated struct {
	SeriesID  SeriesID
	StartTime daytime.Time
	EndTime   daytime.Time
	Scope     Scope
	At        time.Time
}

func (e TimesUpdated) EventName() string     { return "series.times_updated" }
func (e TimesUpdated) AggregateID() string   { return string(e.SeriesID) }
func (e TimesUpdated) OccurredAt() time.Time { return e.At }

type Completed struct {
	SeriesID SeriesID
	At       time.Time
}

func (e Completed) EventName() string     { return "series.completed" }
func (e Completed) AggregateID() string   { return string(e.SeriesID) }
func (e Completed) OccurredAt() time.Time { return e.At }

const EventExpanded = "series.expanded"
