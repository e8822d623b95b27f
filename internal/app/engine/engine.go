// Package engine assembles the scheduling services behind the command and
// query buses. It is shared by the server binary and integration tests.
package engine

import (
	"errors"
	"log/slog"
	"time"

	"slotkeeper/internal/app/clock"
	"slotkeeper/internal/app/commands"
	"slotkeeper/internal/app/conflicts"
	"slotkeeper/internal/app/handlers/booking"
	"slotkeeper/internal/app/handlers/reassignment"
	"slotkeeper/internal/app/handlers/resources"
	"slotkeeper/internal/app/handlers/series"
	"slotkeeper/internal/app/handlers/support"
	"slotkeeper/internal/app/handlers/waitlist"
	"slotkeeper/internal/app/lock"
	"slotkeeper/internal/app/middleware"
	"slotkeeper/internal/app/outbox"
	"slotkeeper/internal/app/policies"
	"slotkeeper/internal/app/queries"
	"slotkeeper/internal/app/reactions"
	"slotkeeper/internal/app/uow"
	domainreassignment "slotkeeper/internal/domain/reassignment"
	domainrecurrence "slotkeeper/internal/domain/recurrence"
	domainwaitlist "slotkeeper/internal/domain/waitlist"
)

var ErrMissingDependency = errors.New("engine: missing dependency")

// Deps are the infrastructure pieces the engine runs on.
type Deps struct {
	Factory uow.UoWFactory
	// Outbox is flushed after every command. For the in-memory store this
	// delivers events to Router; a durable outbox leaves that to its worker.
	Outbox      outbox.Outbox
	Router      *outbox.Router
	Locker      lock.Locker
	Idempotency middleware.IdempotencyStore
	Clock       clock.Clock
	Notifier    policies.Notifier
	Encoder     policies.CalendarEncoder
	Uploader    policies.Uploader
	Logger      *slog.Logger
	// NewID overrides uuid generation, for tests.
	NewID func() string
}

type Policies struct {
	Booking      booking.Policy
	Series       series.Policy
	Waitlist     domainwaitlist.Policy
	Reassignment domainreassignment.Policy
	// DefaultClass is the priority class of requesters without an identity.
	DefaultClass string
}

// DefaultPolicies mirrors the configuration defaults.
func DefaultPolicies() Policies {
	return Policies{
		Booking:      booking.Policy{LockTimeout: 5 * time.Second},
		Series:       series.Policy{Horizon: 90 * 24 * time.Hour, MaxInstancesPerRun: 200},
		Waitlist:     domainwaitlist.DefaultPolicy(),
		Reassignment: domainreassignment.DefaultPolicy(),
	}
}

type Engine struct {
	Commands commands.Bus
	Queries  queries.Bus
	Router   *outbox.Router

	Resources    *resources.Service
	Booking      *booking.Service
	Series       *series.Service
	Waitlist     *waitlist.Manager
	Reassignment *reassignment.Resolver
}

func New(deps Deps, pol Policies) (*Engine, error) {
	if deps.Factory == nil || deps.Outbox == nil || deps.Router == nil {
		return nil, ErrMissingDependency
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}

	exec := &support.Executor{
		Factory:     deps.Factory,
		Locker:      locker,
		Encoder:     outbox.JSONEventEncoder{},
		LockTimeout: pol.Booking.LockTimeout,
	}
	detector := conflicts.NewDetector(clk)
	identity := policies.ContextIdentityProvider{DefaultClass: pol.DefaultClass}

	manager := &waitlist.Manager{
		Exec:     exec,
		Detector: detector,
		Clock:    clk,
		Identity: identity,
		Policy:   pol.Waitlist,
		Logger:   logger.With("component", "waitlist"),
		NewID:    deps.NewID,
	}
	resolver := &reassignment.Resolver{
		Exec:     exec,
		Detector: detector,
		Clock:    clk,
		Identity: identity,
		Waitlist: manager,
		Policy:   pol.Reassignment,
		Logger:   logger.With("component", "reassignment"),
		NewID:    deps.NewID,
	}
	bookingSvc := &booking.Service{
		Exec:     exec,
		Detector: detector,
		Clock:    clk,
		Identity: identity,
		Waitlist: manager,
		Policy:   pol.Booking,
		Logger:   logger.With("component", "booking"),
		NewID:    deps.NewID,
	}
	seriesSvc := &series.Service{
		Exec:     exec,
		Detector: detector,
		Clock:    clk,
		Identity: identity,
		Expander: domainrecurrence.Expander{},
		Policy:   pol.Series,
		Logger:   logger.With("component", "series"),
		NewID:    deps.NewID,
	}
	resourceSvc := &resources.Service{
		Exec:     exec,
		Clock:    clk,
		Encoder:  deps.Encoder,
		Uploader: deps.Uploader,
		Logger:   logger.With("component", "resources"),
		NewID:    deps.NewID,
	}

	cmdBus := commands.NewInMemoryBus()
	commands.Register(cmdBus, resourceSvc.Register)
	commands.Register(cmdBus, resourceSvc.SetStatus)
	commands.Register(cmdBus, resourceSvc.UpdateSchedule)
	commands.Register(cmdBus, resourceSvc.Export)

	commands.Register(cmdBus, bookingSvc.Book)
	commands.Register(cmdBus, bookingSvc.Confirm)
	commands.Register(cmdBus, bookingSvc.Cancel)
	commands.Register(cmdBus, bookingSvc.CompleteEnded)

	commands.Register(cmdBus, seriesSvc.Create)
	commands.Register(cmdBus, seriesSvc.Expand)
	commands.Register(cmdBus, seriesSvc.Cancel)
	commands.Register(cmdBus, seriesSvc.UpdateTimes)
	commands.Register(cmdBus, seriesSvc.GenerateDue)

	commands.Register(cmdBus, manager.Join)
	commands.Register(cmdBus, manager.Leave)
	commands.Register(cmdBus, manager.PromoteNext)
	commands.Register(cmdBus, manager.AcceptOffer)
	commands.Register(cmdBus, manager.DeclineOffer)
	commands.Register(cmdBus, manager.EscalatePriority)
	commands.Register(cmdBus, manager.LapseOffers)
	commands.Register(cmdBus, manager.ExpireStale)

	commands.Register(cmdBus, resolver.Open)
	commands.Register(cmdBus, resolver.OpenForResource)
	commands.Register(cmdBus, resolver.AutoProcess)
	commands.Register(cmdBus, resolver.AutoProcessPending)
	commands.Register(cmdBus, resolver.ProcessUserResponse)
	commands.Register(cmdBus, resolver.Cancel)
	commands.Register(cmdBus, resolver.CancelForReservation)
	commands.Register(cmdBus, resolver.ExpireOverdue)

	queryBus := queries.NewInMemoryBus()
	queries.Register(queryBus, resourceSvc.Get)
	queries.Register(queryBus, resourceSvc.List)
	queries.Register(queryBus, resourceSvc.Calendar)
	queries.Register(queryBus, bookingSvc.CheckAvailability)
	queries.Register(queryBus, bookingSvc.Get)
	queries.Register(queryBus, bookingSvc.List)
	queries.Register(queryBus, seriesSvc.Get)
	queries.Register(queryBus, manager.List)
	queries.Register(queryBus, manager.Get)
	queries.Register(queryBus, resolver.FindEquivalents)
	queries.Register(queryBus, resolver.Get)
	queries.Register(queryBus, resolver.List)

	cmdMiddleware := []middleware.CommandMiddleware{
		middleware.Logging(logger),
		middleware.Authorization(policies.RoleAuthorizer{}, logger),
		middleware.Validation(middleware.SelfValidator{}),
	}
	if deps.Idempotency != nil {
		cmdMiddleware = append(cmdMiddleware, middleware.Idempotency(deps.Idempotency, nil))
	}
	cmdMiddleware = append(cmdMiddleware, middleware.OutboxFlush(deps.Outbox, logger))

	(&reactions.Reactions{Waitlist: manager, Reassignment: resolver, Logger: logger.With("component", "reactions")}).Register(deps.Router)
	if deps.Notifier != nil {
		(&reactions.NotificationRelay{Notifier: deps.Notifier, Logger: logger.With("component", "notifications")}).Register(deps.Router)
	}

	return &Engine{
		Commands: middleware.ChainCommands(cmdBus, cmdMiddleware...),
		Queries: middleware.ChainQueries(queryBus,
			middleware.QueryAuthorization(policies.RoleAuthorizer{}, logger),
			middleware.QueryValidation(middleware.SelfValidator{}),
			middleware.ReadOnlyUnit(deps.Factory),
		),
		Router:       deps.Router,
		Resources:    resourceSvc,
		Booking:      bookingSvc,
		Series:       seriesSvc,
		Waitlist:     manager,
		Reassignment: resolver,
	}, nil
}
