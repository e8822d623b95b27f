package dto

import (
	"time"

	domainrecurrence "slotkeeper/internal/domain/recurrence"
	"slotkeeper/internal/domain/shared/daytime"
)

type SeriesInstance struct {
	ID            string    `json:"id"`
	Index         int       `json:"index"`
	Revision      int       `json:"revision"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Status        string    `json:"status"`
	ReservationID string    `json:"reservation_id,omitempty"`
	Reasons       []string  `json:"reasons,omitempty"`
	Superseded    bool      `json:"superseded,omitempty"`
}

type Series struct {
	ID                 string           `json:"id"`
	ResourceID         string           `json:"resource_id"`
	RequesterID        string           `json:"requester_id"`
	StartTime          string           `json:"start_time"`
	EndTime            string           `json:"end_time"`
	Frequency          string           `json:"frequency"`
	Interval           int              `json:"interval"`
	Weekdays           []string         `json:"weekdays,omitempty"`
	DayOfMonth         int              `json:"day_of_month,omitempty"`
	StartDate          string           `json:"start_date"`
	EndDate            string           `json:"end_date"`
	Timezone           string           `json:"timezone"`
	Status             string           `json:"status"`
	Revision           int              `json:"revision"`
	TotalInstances     int              `json:"total_instances"`
	ConfirmedInstances int              `json:"confirmed_instances"`
	CancelReason       string           `json:"cancel_reason,omitempty"`
	Instances          []SeriesInstance `json:"instances"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// SeriesExpansion reports what one expansion run produced.
type SeriesExpansion struct {
	Series    Series           `json:"series"`
	Generated []SeriesInstance `json:"generated"`
	Conflicts []SeriesInstance `json:"conflicts"`
}

func MapSeries(s *domainrecurrence.Series) Series {
	weekdays := make([]string, 0, len(s.Rule.Weekdays))
	for _, wd := range s.Rule.Weekdays {
		weekdays = append(weekdays, wd.String())
	}
	return Series{
		ID:                 string(s.ID),
		ResourceID:         string(s.ResourceID),
		RequesterID:        s.RequesterID,
		StartTime:          s.StartTime.String(),
		EndTime:            s.EndTime.String(),
		Frequency:          string(s.Rule.Frequency),
		Interval:           s.Rule.Interval,
		Weekdays:           weekdays,
		DayOfMonth:         s.Rule.DayOfMonth,
		StartDate:          s.StartDate.Format(daytime.DateLayout),
		EndDate:            s.EndDate.Format(daytime.DateLayout),
		Timezone:           s.Timezone,
		Status:             string(s.Status),
		Revision:           s.Revision,
		TotalInstances:     s.TotalInstances,
		ConfirmedInstances: s.ConfirmedInstances,
		CancelReason:       s.CancelReason,
		Instances:          MapInstances(s.Instances),
		UpdatedAt:          s.UpdatedAt,
	}
}

func MapInstances(items []domainrecurrence.Instance) []SeriesInstance {
	out := make([]SeriesInstance, 0, len(items))
	for _, inst := range items {
		out = append(out, SeriesInstance{
			ID:            inst.ID,
			Index:         inst.Index,
			Revision:      inst.Revision,
			Start:         inst.Window.Start,
			End:           inst.Window.End,
			Status:        string(inst.Status),
			ReservationID: inst.ReservationID,
			Reasons:       MapReasons(inst.Reasons),
			Superseded:    inst.Superseded,
		})
	}
	return out
}
