package mongo

import (
	"time"

	domainreassignment "slotkeeper/internal/domain/reassignment"
	domainrecurrence "slotkeeper/internal/domain/recurrence"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/daytime"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/window"
	domainwaitlist "slotkeeper/internal/domain/waitlist"
)

// Instants are stored as unix milliseconds, zero time as 0.

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timestampToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func windowOf(start, end int64) window.TimeWindow {
	return window.TimeWindow{Start: timestampToTime(start), End: timestampToTime(end)}
}

type resourceDocument struct {
	ID        string           `bson:"_id"`
	Name      string           `bson:"name"`
	Type      string           `bson:"type"`
	Capacity  int              `bson:"capacity"`
	Location  locationDocument `bson:"location"`
	Features  []string         `bson:"features"`
	Status    string           `bson:"status"`
	Schedule  scheduleDocument `bson:"schedule"`
	CreatedAt int64            `bson:"created_at"`
	UpdatedAt int64            `bson:"updated_at"`
	Version   int64            `bson:"version"`
}

type locationDocument struct {
	Building string   `bson:"building"`
	Floor    int      `bson:"floor"`
	Room     string   `bson:"room"`
	Lat      *float64 `bson:"lat,omitempty"`
	Lon      *float64 `bson:"lon,omitempty"`
}

type scheduleDocument struct {
	Timezone     string                `bson:"timezone"`
	WeeklyHours  []hoursDocument       `bson:"weekly_hours"`
	Exceptions   []exceptionDocument   `bson:"exceptions"`
	Maintenance  []maintenanceDocument `bson:"maintenance"`
	Restrictions restrictionsDocument  `bson:"restrictions"`
}

type hoursDocument struct {
	Weekday int `bson:"weekday"`
	Start   int `bson:"start"`
	End     int `bson:"end"`
}

type exceptionDocument struct {
	Date   string `bson:"date"`
	Kind   string `bson:"kind"`
	Start  int    `bson:"start"`
	End    int    `bson:"end"`
	Reason string `bson:"reason"`
}

type maintenanceDocument struct {
	Frequency   string `bson:"frequency"`
	Weekday     int    `bson:"weekday"`
	DayOfMonth  int    `bson:"day_of_month"`
	Start       int    `bson:"start"`
	End         int    `bson:"end"`
	Description string `bson:"description"`
}

type restrictionsDocument struct {
	MinDurationMinutes    int            `bson:"min_duration_minutes"`
	MaxDurationMinutes    int            `bson:"max_duration_minutes"`
	MinAdvanceNoticeHours int            `bson:"min_advance_notice_hours"`
	MaxAdvanceNoticeDays  int            `bson:"max_advance_notice_days"`
	AllowedUserTypes      []string       `bson:"allowed_user_types"`
	PriorityWeights       map[string]int `bson:"priority_weights"`
}

func newResourceDocument(r *domainresource.Resource) resourceDocument {
	loc := locationDocument{Building: r.Location.Building, Floor: r.Location.Floor, Room: r.Location.Room}
	if c := r.Location.Coordinates; c != nil {
		lat, lon := c.Lat, c.Lon
		loc.Lat, loc.Lon = &lat, &lon
	}
	return resourceDocument{
		ID:        string(r.ID),
		Name:      r.Name,
		Type:      r.Type,
		Capacity:  r.Capacity,
		Location:  loc,
		Features:  append([]string(nil), r.Features...),
		Status:    string(r.Status),
		Schedule:  newScheduleDocument(r.Schedule),
		CreatedAt: millis(r.CreatedAt),
		UpdatedAt: millis(r.UpdatedAt),
		Version:   r.Version,
	}
}

func newScheduleDocument(s domainresource.ScheduleRule) scheduleDocument {
	doc := scheduleDocument{
		Timezone: s.Timezone,
		Restrictions: restrictionsDocument{
			MinDurationMinutes:    int(s.Restrictions.MinDuration / time.Minute),
			MaxDurationMinutes:    int(s.Restrictions.MaxDuration / time.Minute),
			MinAdvanceNoticeHours: s.Restrictions.MinAdvanceNoticeHours,
			MaxAdvanceNoticeDays:  s.Restrictions.MaxAdvanceNoticeDays,
			AllowedUserTypes:      append([]string(nil), s.Restrictions.AllowedUserTypes...),
			PriorityWeights:       s.Restrictions.PriorityWeights,
		},
	}
	for _, h := range s.WeeklyHours {
		doc.WeeklyHours = append(doc.WeeklyHours, hoursDocument{Weekday: int(h.Weekday), Start: int(h.Start), End: int(h.End)})
	}
	for _, e := range s.Exceptions {
		doc.Exceptions = append(doc.Exceptions, exceptionDocument{Date: e.Date, Kind: string(e.Kind), Start: int(e.Start), End: int(e.End), Reason: e.Reason})
	}
	for _, m := range s.Maintenance {
		doc.Maintenance = append(doc.Maintenance, maintenanceDocument{
			Frequency:   string(m.Frequency),
			Weekday:     int(m.Weekday),
			DayOfMonth:  m.DayOfMonth,
			Start:       int(m.Start),
			End:         int(m.End),
			Description: m.Description,
		})
	}
	return doc
}

func (d resourceDocument) toAggregate() *domainresource.Resource {
	loc := domainresource.Location{Building: d.Location.Building, Floor: d.Location.Floor, Room: d.Location.Room}
	if d.Location.Lat != nil && d.Location.Lon != nil {
		loc.Coordinates = &domainresource.Coordinates{Lat: *d.Location.Lat, Lon: *d.Location.Lon}
	}
	return &domainresource.Resource{
		ID:        domainresource.ResourceID(d.ID),
		Name:      d.Name,
		Type:      d.Type,
		Capacity:  d.Capacity,
		Location:  loc,
		Features:  d.Features,
		Status:    domainresource.Status(d.Status),
		Schedule:  d.Schedule.toRule(),
		CreatedAt: timestampToTime(d.CreatedAt),
		UpdatedAt: timestampToTime(d.UpdatedAt),
		Version:   d.Version,
	}
}

func (d scheduleDocument) toRule() domainresource.ScheduleRule {
	rule := domainresource.ScheduleRule{
		Timezone: d.Timezone,
		Restrictions: domainresource.Restrictions{
			MinDuration:           time.Duration(d.Restrictions.MinDurationMinutes) * time.Minute,
			MaxDuration:           time.Duration(d.Restrictions.MaxDurationMinutes) * time.Minute,
			MinAdvanceNoticeHours: d.Restrictions.MinAdvanceNoticeHours,
			MaxAdvanceNoticeDays:  d.Restrictions.MaxAdvanceNoticeDays,
			AllowedUserTypes:      d.Restrictions.AllowedUserTypes,
			PriorityWeights:       d.Restrictions.PriorityWeights,
		},
	}
	for _, h := range d.WeeklyHours {
		rule.WeeklyHours = append(rule.WeeklyHours, domainresource.OperatingHours{
			Weekday: time.Weekday(h.Weekday),
			Start:   daytime.Time(h.Start),
			End:     daytime.Time(h.End),
		})
	}
	for _, e := range d.Exceptions {
		rule.Exceptions = append(rule.Exceptions, domainresource.Exception{
			Date:   e.Date,
			Kind:   domainresource.ExceptionKind(e.Kind),
			Start:  daytime.Time(e.Start),
			End:    daytime.Time(e.End),
			Reason: e.Reason,
		})
	}
	for _, m := range d.Maintenance {
		rule.Maintenance = append(rule.Maintenance, domainresource.MaintenanceWindow{
			Frequency:   domainresource.MaintenanceFrequency(m.Frequency),
			Weekday:     time.Weekday(m.Weekday),
			DayOfMonth:  m.DayOfMonth,
			Start:       daytime.Time(m.Start),
			End:         daytime.Time(m.End),
			Description: m.Description,
		})
	}
	return rule
}

type reservationDocument struct {
	ID            string `bson:"_id"`
	ResourceID    string `bson:"resource_id"`
	RequesterID   string `bson:"requester_id"`
	RequesterType string `bson:"requester_type"`
	Start         int64  `bson:"start"`
	End           int64  `bson:"end"`
	Status        string `bson:"status"`
	SeriesID      string `bson:"series_id,omitempty"`
	InstanceIndex int    `bson:"instance_index"`
	CancelReason  string `bson:"cancel_reason,omitempty"`
	CreatedAt     int64  `bson:"created_at"`
	UpdatedAt     int64  `bson:"updated_at"`
	Version       int64  `bson:"version"`
}

func newReservationDocument(r *domainreservation.Reservation) reservationDocument {
	return reservationDocument{
		ID:            string(r.ID),
		ResourceID:    string(r.ResourceID),
		RequesterID:   r.RequesterID,
		RequesterType: r.RequesterType,
		Start:         millis(r.Window.Start),
		End:           millis(r.Window.End),
		Status:        string(r.Status),
		SeriesID:      r.SeriesID,
		InstanceIndex: r.InstanceIndex,
		CancelReason:  r.CancelReason,
		CreatedAt:     millis(r.CreatedAt),
		UpdatedAt:     millis(r.UpdatedAt),
		Version:       r.Version,
	}
}

func (d reservationDocument) toAggregate() *domainreservation.Reservation {
	return &domainreservation.Reservation{
		ID:            domainreservation.ReservationID(d.ID),
		ResourceID:    domainresource.ResourceID(d.ResourceID),
		RequesterID:   d.RequesterID,
		RequesterType: d.RequesterType,
		Window:        windowOf(d.Start, d.End),
		Status:        domainreservation.Status(d.Status),
		SeriesID:      d.SeriesID,
		InstanceIndex: d.InstanceIndex,
		CancelReason:  d.CancelReason,
		CreatedAt:     timestampToTime(d.CreatedAt),
		UpdatedAt:     timestampToTime(d.UpdatedAt),
		Version:       d.Version,
	}
}

type seriesDocument struct {
	ID                 string             `bson:"_id"`
	ResourceID         string             `bson:"resource_id"`
	RequesterID        string             `bson:"requester_id"`
	RequesterType      string             `bson:"requester_type"`
	StartTime          int                `bson:"start_time"`
	EndTime            int                `bson:"end_time"`
	Frequency          string             `bson:"frequency"`
	Interval           int                `bson:"interval"`
	Weekdays           []int              `bson:"weekdays"`
	DayOfMonth         int                `bson:"day_of_month"`
	StartDate          int64              `bson:"start_date"`
	EndDate            int64              `bson:"end_date"`
	Timezone           string             `bson:"timezone"`
	Status             string             `bson:"status"`
	Revision           int                `bson:"revision"`
	Instances          []instanceDocument `bson:"instances"`
	TotalInstances     int                `bson:"total_instances"`
	ConfirmedInstances int                `bson:"confirmed_instances"`
	CancelReason       string             `bson:"cancel_reason,omitempty"`
	CreatedAt          int64              `bson:"created_at"`
	UpdatedAt          int64              `bson:"updated_at"`
	Version            int64              `bson:"version"`
}

type instanceDocument struct {
	ID            string   `bson:"id"`
	Index         int      `bson:"index"`
	Revision      int      `bson:"revision"`
	Start         int64    `bson:"start"`
	End           int64    `bson:"end"`
	Status        string   `bson:"status"`
	ReservationID string   `bson:"reservation_id,omitempty"`
	Reasons       []string `bson:"reasons,omitempty"`
	Superseded    bool     `bson:"superseded"`
}

func newSeriesDocument(s *domainrecurrence.Series) seriesDocument {
	doc := seriesDocument{
		ID:                 string(s.ID),
		ResourceID:         string(s.ResourceID),
		RequesterID:        s.RequesterID,
		RequesterType:      s.RequesterType,
		StartTime:          int(s.StartTime),
		EndTime:            int(s.EndTime),
		Frequency:          string(s.Rule.Frequency),
		Interval:           s.Rule.Interval,
		DayOfMonth:         s.Rule.DayOfMonth,
		StartDate:          millis(s.StartDate),
		EndDate:            millis(s.EndDate),
		Timezone:           s.Timezone,
		Status:             string(s.Status),
		Revision:           s.Revision,
		TotalInstances:     s.TotalInstances,
		ConfirmedInstances: s.ConfirmedInstances,
		CancelReason:       s.CancelReason,
		CreatedAt:          millis(s.CreatedAt),
		UpdatedAt:          millis(s.UpdatedAt),
		Version:            s.Version,
	}
	for _, wd := range s.Rule.Weekdays {
		doc.Weekdays = append(doc.Weekdays, int(wd))
	}
	for _, inst := range s.Instances {
		idoc := instanceDocument{
			ID:            inst.ID,
			Index:         inst.Index,
			Revision:      inst.Revision,
			Start:         millis(inst.Window.Start),
			End:           millis(inst.Window.End),
			Status:        string(inst.Status),
			ReservationID: inst.ReservationID,
			Superseded:    inst.Superseded,
		}
		for _, r := range inst.Reasons {
			idoc.Reasons = append(idoc.Reasons, string(r))
		}
		doc.Instances = append(doc.Instances, idoc)
	}
	return doc
}

func (d seriesDocument) toAggregate() *domainrecurrence.Series {
	s := &domainrecurrence.Series{
		ID:            domainrecurrence.SeriesID(d.ID),
		ResourceID:    domainresource.ResourceID(d.ResourceID),
		RequesterID:   d.RequesterID,
		RequesterType: d.RequesterType,
		StartTime:     daytime.Time(d.StartTime),
		EndTime:       daytime.Time(d.EndTime),
		Rule: domainrecurrence.Rule{
			Frequency:  domainrecurrence.Frequency(d.Frequency),
			Interval:   d.Interval,
			DayOfMonth: d.DayOfMonth,
		},
		StartDate:          timestampToTime(d.StartDate),
		EndDate:            timestampToTime(d.EndDate),
		Timezone:           d.Timezone,
		Status:             domainrecurrence.Status(d.Status),
		Revision:           d.Revision,
		TotalInstances:     d.TotalInstances,
		ConfirmedInstances: d.ConfirmedInstances,
		CancelReason:       d.CancelReason,
		CreatedAt:          timestampToTime(d.CreatedAt),
		UpdatedAt:          timestampToTime(d.UpdatedAt),
		Version:            d.Version,
	}
	for _, wd := range d.Weekdays {
		s.Rule.Weekdays = append(s.Rule.Weekdays, time.Weekday(wd))
	}
	for _, idoc := range d.Instances {
		inst := domainrecurrence.Instance{
			ID:            idoc.ID,
			SeriesID:      s.ID,
			Index:         idoc.Index,
			Revision:      idoc.Revision,
			Window:        windowOf(idoc.Start, idoc.End),
			Status:        domainrecurrence.InstanceStatus(idoc.Status),
			ReservationID: idoc.ReservationID,
			Superseded:    idoc.Superseded,
		}
		for _, r := range idoc.Reasons {
			inst.Reasons = append(inst.Reasons, errs.ConflictReason(r))
		}
		s.Instances = append(s.Instances, inst)
	}
	return s
}

type entryDocument struct {
	ID              string `bson:"_id"`
	ResourceID      string `bson:"resource_id"`
	RequesterID     string `bson:"requester_id"`
	RequesterClass  string `bson:"requester_class"`
	Start           int64  `bson:"start"`
	End             int64  `bson:"end"`
	BasePriority    int    `bson:"base_priority"`
	EscalationBonus int    `bson:"escalation_bonus"`
	Penalty         int    `bson:"penalty"`
	EnrolledAt      int64  `bson:"enrolled_at"`
	ExpiresAt       int64  `bson:"expires_at"`
	Status          string `bson:"status"`
	OfferCount      int    `bson:"offer_count"`
	OfferDeadline   int64  `bson:"offer_deadline"`
	ReservationID   string `bson:"reservation_id,omitempty"`
	UpdatedAt       int64  `bson:"updated_at"`
	Version         int64  `bson:"version"`
}

func newEntryDocument(e *domainwaitlist.Entry) entryDocument {
	return entryDocument{
		ID:              string(e.ID),
		ResourceID:      string(e.ResourceID),
		RequesterID:     e.RequesterID,
		RequesterClass:  e.RequesterClass,
		Start:           millis(e.Window.Start),
		End:             millis(e.Window.End),
		BasePriority:    e.BasePriority,
		EscalationBonus: e.EscalationBonus,
		Penalty:         e.Penalty,
		EnrolledAt:      millis(e.EnrolledAt),
		ExpiresAt:       millis(e.ExpiresAt),
		Status:          string(e.Status),
		OfferCount:      e.OfferCount,
		OfferDeadline:   millis(e.OfferDeadline),
		ReservationID:   e.ReservationID,
		UpdatedAt:       millis(e.UpdatedAt),
		Version:         e.Version,
	}
}

func (d entryDocument) toAggregate() *domainwaitlist.Entry {
	return &domainwaitlist.Entry{
		ID:              domainwaitlist.EntryID(d.ID),
		ResourceID:      domainresource.ResourceID(d.ResourceID),
		RequesterID:     d.RequesterID,
		RequesterClass:  d.RequesterClass,
		Window:          windowOf(d.Start, d.End),
		BasePriority:    d.BasePriority,
		EscalationBonus: d.EscalationBonus,
		Penalty:         d.Penalty,
		EnrolledAt:      timestampToTime(d.EnrolledAt),
		ExpiresAt:       timestampToTime(d.ExpiresAt),
		Status:          domainwaitlist.Status(d.Status),
		OfferCount:      d.OfferCount,
		OfferDeadline:   timestampToTime(d.OfferDeadline),
		ReservationID:   d.ReservationID,
		UpdatedAt:       timestampToTime(d.UpdatedAt),
		Version:         d.Version,
	}
}

type requestDocument struct {
	ID                 string              `bson:"_id"`
	ReservationID      string              `bson:"reservation_id"`
	ResourceID         string              `bson:"resource_id"`
	Start              int64               `bson:"start"`
	End                int64               `bson:"end"`
	RequesterID        string              `bson:"requester_id"`
	PriorityClass      string              `bson:"priority_class"`
	Reason             string              `bson:"reason"`
	Constraints        constraintsDocument `bson:"constraints"`
	ResponseDeadline   int64               `bson:"response_deadline"`
	Status             string              `bson:"status"`
	SelectedResourceID string              `bson:"selected_resource_id,omitempty"`
	Candidates         []candidateDocument `bson:"candidates"`
	Fallback           string              `bson:"fallback,omitempty"`
	Note               string              `bson:"note,omitempty"`
	CreatedAt          int64               `bson:"created_at"`
	UpdatedAt          int64               `bson:"updated_at"`
	ResolvedAt         int64               `bson:"resolved_at"`
	Version            int64               `bson:"version"`
}

type constraintsDocument struct {
	AcceptEquivalent         bool     `bson:"accept_equivalent"`
	AcceptAlternativeTime    bool     `bson:"accept_alternative_time"`
	CapacityTolerancePercent int      `bson:"capacity_tolerance_percent"`
	RequiredFeatures         []string `bson:"required_features"`
	PreferredFeatures        []string `bson:"preferred_features"`
	MaxDistanceMeters        float64  `bson:"max_distance_meters"`
	RequiredCapacity         int      `bson:"required_capacity"`
}

type candidateDocument struct {
	ResourceID     string  `bson:"resource_id"`
	Name           string  `bson:"name"`
	Score          float64 `bson:"score"`
	CapacityFit    float64 `bson:"capacity_fit"`
	FeatureOverlap float64 `bson:"feature_overlap"`
	Proximity      float64 `bson:"proximity"`
	Distance       float64 `bson:"distance"`
	Tier           string  `bson:"tier"`
	HasRequired    bool    `bson:"has_required"`
}

func newRequestDocument(r *domainreassignment.Request) requestDocument {
	doc := requestDocument{
		ID:            string(r.ID),
		ReservationID: string(r.ReservationID),
		ResourceID:    string(r.ResourceID),
		Start:         millis(r.Window.Start),
		End:           millis(r.Window.End),
		RequesterID:   r.RequesterID,
		PriorityClass: r.PriorityClass,
		Reason:        string(r.Reason),
		Constraints: constraintsDocument{
			AcceptEquivalent:         r.Constraints.AcceptEquivalent,
			AcceptAlternativeTime:    r.Constraints.AcceptAlternativeTime,
			CapacityTolerancePercent: r.Constraints.CapacityTolerancePercent,
			RequiredFeatures:         r.Constraints.RequiredFeatures,
			PreferredFeatures:        r.Constraints.PreferredFeatures,
			MaxDistanceMeters:        r.Constraints.MaxDistanceMeters,
			RequiredCapacity:         r.Constraints.RequiredCapacity,
		},
		ResponseDeadline:   millis(r.ResponseDeadline),
		Status:             string(r.Status),
		SelectedResourceID: string(r.SelectedResourceID),
		Fallback:           string(r.Fallback),
		Note:               r.Note,
		CreatedAt:          millis(r.CreatedAt),
		UpdatedAt:          millis(r.UpdatedAt),
		ResolvedAt:         millis(r.ResolvedAt),
		Version:            r.Version,
	}
	for _, c := range r.Candidates {
		doc.Candidates = append(doc.Candidates, candidateDocument{
			ResourceID:     string(c.ResourceID),
			Name:           c.Name,
			Score:          c.Score,
			CapacityFit:    c.CapacityFit,
			FeatureOverlap: c.FeatureOverlap,
			Proximity:      c.Proximity,
			Distance:       c.Distance,
			Tier:           string(c.Tier),
			HasRequired:    c.HasRequired,
		})
	}
	return doc
}

func (d requestDocument) toAggregate() *domainreassignment.Request {
	r := &domainreassignment.Request{
		ID:            domainreassignment.RequestID(d.ID),
		ReservationID: domainreservation.ReservationID(d.ReservationID),
		ResourceID:    domainresource.ResourceID(d.ResourceID),
		Window:        windowOf(d.Start, d.End),
		RequesterID:   d.RequesterID,
		PriorityClass: d.PriorityClass,
		Reason:        domainreassignment.Reason(d.Reason),
		Constraints: domainreassignment.Constraints{
			AcceptEquivalent:         d.Constraints.AcceptEquivalent,
			AcceptAlternativeTime:    d.Constraints.AcceptAlternativeTime,
			CapacityTolerancePercent: d.Constraints.CapacityTolerancePercent,
			RequiredFeatures:         d.Constraints.RequiredFeatures,
			PreferredFeatures:        d.Constraints.PreferredFeatures,
			MaxDistanceMeters:        d.Constraints.MaxDistanceMeters,
			RequiredCapacity:         d.Constraints.RequiredCapacity,
		},
		ResponseDeadline:   timestampToTime(d.ResponseDeadline),
		Status:             domainreassignment.Status(d.Status),
		SelectedResourceID: domainresource.ResourceID(d.SelectedResourceID),
		Fallback:           domainreassignment.Fallback(d.Fallback),
		Note:               d.Note,
		CreatedAt:          timestampToTime(d.CreatedAt),
		UpdatedAt:          timestampToTime(d.UpdatedAt),
		ResolvedAt:         timestampToTime(d.ResolvedAt),
		Version:            d.Version,
	}
	for _, c := range d.Candidates {
		r.Candidates = append(r.Candidates, domainreassignment.Candidate{
			ResourceID:     domainresource.ResourceID(c.ResourceID),
			Name:           c.Name,
			Score:          c.Score,
			CapacityFit:    c.CapacityFit,
			FeatureOverlap: c.FeatureOverlap,
			Proximity:      c.Proximity,
			Distance:       c.Distance,
			Tier:           domainreassignment.Tier(c.Tier),
			HasRequired:    c.HasRequired,
		})
	}
	return r
}
