package series

import (
	"strings"
	"time"

	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/domain/shared/errs"
)

const (
	createKey      = "series.create"
	expandKey      = "series.expand"
	cancelKey      = "series.cancel"
	updateTimesKey = "series.update_times"
	generateDueKey = "series.sweep.generate_due"
	getKey         = "series.get"
)

// CreateCommand defines a recurring reservation and materializes its first
// instances up to Until (default: the configured horizon).
type CreateCommand struct {
	SeriesID        string
	ResourceID      string
	RequesterID     string
	RequesterType   string
	StartTime       string
	EndTime         string
	Frequency       string
	Interval        int
	Weekdays        []string
	DayOfMonth      int
	StartDate       string
	EndDate         string
	Timezone        string
	SkipConflicts   bool
	Until           time.Time
	MaxInstances    int
	IdempotencyKeyV string
}

func (c CreateCommand) Key() string { return createKey }

func (c CreateCommand) ActingRequester() string { return c.RequesterID }

func (c CreateCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CreateCommand) ResultPrototype() any { return &dto.SeriesExpansion{} }

func (c CreateCommand) Validate() error {
	verr := &errs.ValidationError{}
	if strings.TrimSpace(c.ResourceID) == "" {
		verr.Add("resource_id", "required")
	}
	if strings.TrimSpace(c.RequesterID) == "" {
		verr.Add("requester_id", "required")
	}
	if c.MaxInstances < 0 {
		verr.Add("max_instances", "must not be negative")
	}
	return verr.OrNil()
}

type ExpandCommand struct {
	SeriesID      string
	Until         time.Time
	MaxInstances  int
	SkipConflicts bool
}

func (c ExpandCommand) Key() string { return expandKey }

type CancelCommand struct {
	SeriesID string
	Scope    string
	Reason   string
}

func (c CancelCommand) Key() string { return cancelKey }

// UpdateTimesCommand moves the time of day of the instances in Scope.
type UpdateTimesCommand struct {
	SeriesID      string
	StartTime     string
	EndTime       string
	Scope         string
	SkipConflicts bool
}

func (c UpdateTimesCommand) Key() string { return updateTimesKey }

// GenerateDueCommand extends every active series up to the horizon and
// completes the ones that are over.
type GenerateDueCommand struct{}

func (GenerateDueCommand) Key() string { return generateDueKey }

type GetQuery struct {
	SeriesID string
}

func (q GetQuery) Key() string { return getKey }
