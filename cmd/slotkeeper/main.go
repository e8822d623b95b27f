package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"slotkeeper/internal/app/engine"
	"slotkeeper/internal/app/sweep"
	"slotkeeper/internal/infra/config"
	ginserver "slotkeeper/internal/infra/http/gin"
	"slotkeeper/internal/infra/obs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("SLOTKEEPER_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.App.LogLevel)
	logger := obs.NewLogger(cfg.App.Env, level)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("slotkeeper stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("slotkeeper stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	infra, err := buildInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.close(logger)

	eng, err := engine.New(infra.deps, policiesFrom(cfg))
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	infra.start(ctx, eng.Router, logger)

	runner, err := sweep.NewRunner(eng.Commands, sweep.Schedule{
		Instances:    cfg.Engine.Sweep.Instances,
		Waitlist:     cfg.Engine.Sweep.Waitlist,
		Reassignment: cfg.Engine.Sweep.Reassignment,
		Completion:   cfg.Engine.Sweep.Completion,
	}, logger)
	if err != nil {
		return fmt.Errorf("build sweeps: %w", err)
	}

	if cfg.App.SeedFile != "" {
		if err := loadSeed(ctx, eng.Commands, cfg.App.SeedFile, logger); err != nil {
			logger.Warn("resource seed load failed", "error", err, "path", cfg.App.SeedFile)
		}
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Checks: infra.checks}, ginserver.Handlers{
		Resources:     ginserver.ResourceHandler{Commands: eng.Commands, Queries: eng.Queries, Logger: logger},
		Reservations:  ginserver.ReservationHandler{Commands: eng.Commands, Queries: eng.Queries, Logger: logger},
		Series:        ginserver.SeriesHandler{Commands: eng.Commands, Queries: eng.Queries, Logger: logger},
		Waitlist:      ginserver.WaitlistHandler{Commands: eng.Commands, Queries: eng.Queries, Logger: logger},
		Reassignments: ginserver.ReassignmentHandler{Commands: eng.Commands, Queries: eng.Queries, Logger: logger},
		Admin:         ginserver.AdminHandler{Sweeps: runner, Logger: logger},
	})

	runner.Start()
	logger.Info("sweeps scheduled", "jobs", runner.Jobs())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		runner.Stop(shutdownCtx)
	}()

	logger.Info("HTTP server starting", "addr", cfg.App.HTTPAddr, "store", cfg.App.Store)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	infra.wait()
	return nil
}
