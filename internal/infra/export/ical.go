// Package export renders resource calendars into feed formats.
package export

import (
	"fmt"
	"strings"

	ics "github.com/arran4/golang-ical"

	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/policies"
	domainreservation "slotkeeper/internal/domain/reservation"
)

const productID = "-//slotkeeper//resource calendar//EN"

// ICalEncoder writes RFC 5545 feeds: one VEVENT per reservation and one per
// unavailable block.
type ICalEncoder struct {
	// Domain suffixes event UIDs.
	Domain string
}

func (ICalEncoder) ContentType() string { return "text/calendar; charset=utf-8" }

func (ICalEncoder) Extension() string { return ".ics" }

func (e ICalEncoder) Encode(cal dto.Calendar) ([]byte, error) {
	if cal.ResourceID == "" {
		return nil, fmt.Errorf("export: calendar without resource id")
	}
	domain := e.Domain
	if domain == "" {
		domain = "slotkeeper"
	}

	feed := ics.NewCalendar()
	feed.SetMethod(ics.MethodPublish)
	feed.SetProductId(productID)
	name := cal.ResourceName
	if name == "" {
		name = cal.ResourceID
	}
	feed.SetXWRCalName(name)
	if cal.Timezone != "" {
		feed.SetXWRTimezone(cal.Timezone)
	}

	for _, r := range cal.Reservations {
		status, ok := reservationStatus(r.Status)
		if !ok {
			continue
		}
		ev := feed.AddEvent(fmt.Sprintf("%s@%s", r.ID, domain))
		ev.SetDtStampTime(r.UpdatedAt.UTC())
		ev.SetCreatedTime(r.CreatedAt.UTC())
		ev.SetStartAt(r.Start.UTC())
		ev.SetEndAt(r.End.UTC())
		ev.SetSummary(fmt.Sprintf("Reserved by %s", r.RequesterID))
		ev.SetLocation(name)
		ev.SetStatus(status)
		ev.SetProperty(ics.ComponentPropertyCategories, "RESERVATION")
		if r.SeriesID != "" {
			ev.SetDescription(fmt.Sprintf("series %s, occurrence %d", r.SeriesID, r.InstanceIndex))
		}
	}

	for i, b := range cal.Blocks {
		ev := feed.AddEvent(fmt.Sprintf("%s-block-%d-%d@%s", cal.ResourceID, b.From.Unix(), i, domain))
		ev.SetDtStampTime(cal.From.UTC())
		ev.SetStartAt(b.From.UTC())
		ev.SetEndAt(b.To.UTC())
		ev.SetSummary("Unavailable: " + strings.ToLower(strings.ReplaceAll(b.Reason, "_", " ")))
		ev.SetLocation(name)
		ev.SetStatus(ics.ObjectStatusConfirmed)
		ev.SetProperty(ics.ComponentPropertyCategories, b.Reason)
	}

	return []byte(feed.Serialize()), nil
}

func reservationStatus(status string) (ics.ObjectStatus, bool) {
	switch domainreservation.Status(status) {
	case domainreservation.StatusConfirmed, domainreservation.StatusCompleted:
		return ics.ObjectStatusConfirmed, true
	case domainreservation.StatusPending:
		return ics.ObjectStatusTentative, true
	default:
		return "", false
	}
}

var _ policies.CalendarEncoder = ICalEncoder{}
