package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"slotkeeper/internal/app/commands"
	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/handlers/resources"
	"slotkeeper/internal/app/policies"
	"slotkeeper/internal/domain/shared/errs"
)

type resourceFixture struct {
	ID       string                  `json:"id"`
	Name     string                  `json:"name"`
	Type     string                  `json:"type"`
	Capacity int                     `json:"capacity"`
	Location dto.Location            `json:"location"`
	Features []string                `json:"features"`
	Schedule resources.ScheduleInput `json:"schedule"`
}

var seedIdentity = policies.Identity{ID: "system:seed", Roles: []string{policies.RoleAdmin}}

// loadSeed registers the resources listed in path. Resources that already
// exist are left alone.
func loadSeed(ctx context.Context, bus commands.Bus, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("resource seed file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read seed: %w", err)
	}
	if len(data) == 0 {
		logger.Warn("resource seed file empty", "path", path)
		return nil
	}
	var fixtures []resourceFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}

	ctx = policies.ContextWithIdentity(ctx, seedIdentity)
	imported := 0
	for _, fx := range fixtures {
		_, err := commands.Dispatch[resources.RegisterCommand, dto.Resource](ctx, bus, resources.RegisterCommand{
			ResourceID: fx.ID,
			Name:       fx.Name,
			Type:       fx.Type,
			Capacity:   fx.Capacity,
			Location:   fx.Location,
			Features:   fx.Features,
			Schedule:   fx.Schedule,
		})
		switch {
		case err == nil:
			imported++
		case alreadyRegistered(err):
			logger.Debug("seed resource already registered", "resource_id", fx.ID)
		default:
			logger.Error("seed resource rejected", "resource_id", fx.ID, "error", err)
		}
	}
	logger.Info("resource seed loaded", "path", path, "imported", imported, "total", len(fixtures))
	return nil
}

func alreadyRegistered(err error) bool {
	var verr *errs.ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	msg, ok := verr.FieldErrors["resource_id"]
	return ok && msg == "already registered"
}
