package dto

import "time"

type CalendarBlock struct {
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	Reason string    `json:"reason"`
}

// Calendar is a resource's occupancy over [From, To).
type Calendar struct {
	ResourceID   string          `json:"resource_id"`
	ResourceName string          `json:"resource_name"`
	Timezone     string          `json:"timezone"`
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Reservations []Reservation   `json:"reservations"`
	Blocks       []CalendarBlock `json:"blocks"`
}

// CalendarExport is a rendered calendar feed. URL is set once published.
type CalendarExport struct {
	ResourceID  string `json:"resource_id"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
	Body        []byte `json:"-"`
	URL         string `json:"url,omitempty"`
}
