// Package resources is the resource catalog: registration, the tagged
// lifecycle status, schedule rules and the calendar view.
package resources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"slotkeeper/internal/app/clock"
	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/handlers/support"
	"slotkeeper/internal/app/policies"
	"slotkeeper/internal/app/uow"
	domainresource "slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/errs"
	"slotkeeper/internal/domain/shared/window"
)

var (
	ErrEncoderMissing  = errors.New("resources: calendar encoder is not configured")
	ErrUploaderMissing = errors.New("resources: calendar uploader is not configured")
)

type Service struct {
	Exec     *support.Executor
	Clock    clock.Clock
	Encoder  policies.CalendarEncoder
	Uploader policies.Uploader
	Logger   *slog.Logger
	NewID    func() string
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (dto.Resource, error) {
	rule, err := ParseSchedule(cmd.Schedule)
	if err != nil {
		return dto.Resource{}, err
	}
	id := strings.TrimSpace(cmd.ResourceID)
	if id == "" {
		if s.NewID != nil {
			id = s.NewID()
		} else {
			id = uuid.NewString()
		}
	}
	resourceID := domainresource.ResourceID(id)

	var out dto.Resource
	err = s.Exec.Run(ctx, support.ResourceKeys(resourceID), func(ctx context.Context, tx *support.Tx) error {
		if _, err := tx.Resources().ByID(ctx, resourceID); err == nil {
			return errs.Invalid("resource_id", "already registered")
		} else if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		res, err := domainresource.Register(domainresource.RegisterParams{
			ID:        resourceID,
			Name:      cmd.Name,
			Type:      cmd.Type,
			Capacity:  cmd.Capacity,
			Location:  mapLocation(cmd.Location),
			Features:  cmd.Features,
			Schedule:  rule,
			CreatedAt: s.now(),
		})
		if err != nil {
			return err
		}
		if err := tx.Resources().Save(ctx, res); err != nil {
			return err
		}
		tx.Track(res)
		out = dto.MapResource(res)
		return nil
	})
	if err != nil {
		return dto.Resource{}, err
	}
	s.logger().Info("resource registered", "resource_id", out.ID, "type", out.Type)
	return out, nil
}

// SetStatus moves the resource through its single tagged state. Leaving or
// entering ACTIVE is picked up by the reassignment and waiting list reactions.
func (s *Service) SetStatus(ctx context.Context, cmd SetStatusCommand) (dto.Resource, error) {
	status, err := domainresource.ParseStatus(cmd.Status)
	if err != nil {
		return dto.Resource{}, err
	}
	var (
		out  dto.Resource
		from domainresource.Status
	)
	err = s.withResource(ctx, cmd.ResourceID, func(ctx context.Context, tx *support.Tx, res *domainresource.Resource) error {
		from = res.Status
		if err := res.SetStatus(status, strings.TrimSpace(cmd.Reason), s.now()); err != nil {
			return err
		}
		out = dto.MapResource(res)
		return nil
	})
	if err != nil {
		return dto.Resource{}, err
	}
	if from != status {
		s.logger().Info("resource status changed", "resource_id", out.ID, "from", from, "to", status)
	}
	return out, nil
}

func (s *Service) UpdateSchedule(ctx context.Context, cmd UpdateScheduleCommand) (dto.Resource, error) {
	rule, err := ParseSchedule(cmd.Schedule)
	if err != nil {
		return dto.Resource{}, err
	}
	var out dto.Resource
	err = s.withResource(ctx, cmd.ResourceID, func(ctx context.Context, tx *support.Tx, res *domainresource.Resource) error {
		if err := res.UpdateSchedule(rule, s.now()); err != nil {
			return err
		}
		out = dto.MapResource(res)
		return nil
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, q GetQuery) (dto.Resource, error) {
	var out dto.Resource
	err := support.Read(ctx, s.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		res, err := unit.Resources().ByID(ctx, domainresource.ResourceID(strings.TrimSpace(q.ResourceID)))
		if err != nil {
			return err
		}
		out = dto.MapResource(res)
		return nil
	})
	return out, err
}

func (s *Service) List(ctx context.Context, q ListQuery) (dto.ResourceCollection, error) {
	filter := domainresource.Filter{Type: strings.TrimSpace(q.Type)}
	if strings.TrimSpace(q.Status) != "" {
		status, err := domainresource.ParseStatus(q.Status)
		if err != nil {
			return dto.ResourceCollection{}, err
		}
		filter.Status = status
	}
	var out dto.ResourceCollection
	err := support.Read(ctx, s.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		items, err := unit.Resources().List(ctx, filter)
		if err != nil {
			return err
		}
		out = dto.MapResources(items)
		return nil
	})
	return out, err
}

// Calendar returns the active reservations and the closed blocks of the
// resource over [From, To).
func (s *Service) Calendar(ctx context.Context, q CalendarQuery) (dto.Calendar, error) {
	w, err := calendarWindow(q.From, q.To)
	if err != nil {
		return dto.Calendar{}, err
	}
	var out dto.Calendar
	err = support.Read(ctx, s.Exec.Factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		res, err := unit.Resources().ByID(ctx, domainresource.ResourceID(strings.TrimSpace(q.ResourceID)))
		if err != nil {
			return err
		}
		reservations, err := unit.Reservations().FindOverlapping(ctx, res.ID, w)
		if err != nil {
			return err
		}
		collection := dto.MapReservations(reservations)
		sort.SliceStable(collection.Items, func(i, j int) bool {
			return collection.Items[i].Start.Before(collection.Items[j].Start)
		})
		out = dto.Calendar{
			ResourceID:   string(res.ID),
			ResourceName: res.Name,
			Timezone:     res.Schedule.Location().String(),
			From:         w.Start,
			To:           w.End,
			Reservations: collection.Items,
			Blocks:       []dto.CalendarBlock{},
		}
		for _, b := range res.Schedule.BlockedBetween(w.Start, w.End) {
			reason := string(b.Reason)
			if b.Note != "" {
				reason += ": " + b.Note
			}
			out.Blocks = append(out.Blocks, dto.CalendarBlock{From: b.Window.Start, To: b.Window.End, Reason: reason})
		}
		return nil
	})
	return out, err
}

// Export renders the calendar as a feed and optionally publishes it.
func (s *Service) Export(ctx context.Context, cmd ExportCalendarCommand) (dto.CalendarExport, error) {
	if s.Encoder == nil {
		return dto.CalendarExport{}, ErrEncoderMissing
	}
	if cmd.Publish && s.Uploader == nil {
		return dto.CalendarExport{}, ErrUploaderMissing
	}
	cal, err := s.Calendar(ctx, CalendarQuery{ResourceID: cmd.ResourceID, From: cmd.From, To: cmd.To})
	if err != nil {
		return dto.CalendarExport{}, err
	}
	body, err := s.Encoder.Encode(cal)
	if err != nil {
		return dto.CalendarExport{}, fmt.Errorf("resources: encode calendar: %w", err)
	}
	out := dto.CalendarExport{
		ResourceID:  cal.ResourceID,
		ContentType: s.Encoder.ContentType(),
		Filename:    fmt.Sprintf("%s-%s%s", cal.ResourceID, cal.From.Format("20060102"), s.Encoder.Extension()),
		Body:        body,
	}
	if !cmd.Publish {
		return out, nil
	}
	key := fmt.Sprintf("calendars/%s/%s-%s%s", cal.ResourceID, cal.From.Format("20060102"), cal.To.Format("20060102"), s.Encoder.Extension())
	url, err := s.Uploader.Upload(ctx, key, bytes.NewReader(body), out.ContentType)
	if err != nil {
		return dto.CalendarExport{}, fmt.Errorf("resources: publish calendar: %w", err)
	}
	out.URL = url
	s.logger().Info("calendar published", "resource_id", out.ResourceID, "url", url)
	return out, nil
}

func (s *Service) withResource(ctx context.Context, id string, fn func(ctx context.Context, tx *support.Tx, res *domainresource.Resource) error) error {
	resourceID := domainresource.ResourceID(strings.TrimSpace(id))
	if resourceID == "" {
		return errs.Invalid("resource_id", "required")
	}
	return s.Exec.Run(ctx, support.ResourceKeys(resourceID), func(ctx context.Context, tx *support.Tx) error {
		res, err := tx.Resources().ByID(ctx, resourceID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, res); err != nil {
			return err
		}
		if err := tx.Resources().Save(ctx, res); err != nil {
			return err
		}
		tx.Track(res)
		return nil
	})
}

func calendarWindow(from, to time.Time) (window.TimeWindow, error) {
	w, err := window.New(from, to)
	if err != nil {
		return window.TimeWindow{}, err
	}
	if w.Duration() > maxCalendarSpan {
		return window.TimeWindow{}, errs.Invalid("to", "calendar span is limited to one year")
	}
	return w, nil
}

func mapLocation(l dto.Location) domainresource.Location {
	out := domainresource.Location{Building: strings.TrimSpace(l.Building), Floor: l.Floor, Room: strings.TrimSpace(l.Room)}
	if l.Coordinates != nil {
		out.Coordinates = &domainresource.Coordinates{Lat: l.Coordinates.Lat, Lon: l.Coordinates.Lon}
	}
	return out
}
