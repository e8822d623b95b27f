package ginserver

import (
	"log/slog"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"slotkeeper/internal/app/commands"
	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/handlers/series"
	"slotkeeper/internal/app/queries"
)

type SeriesHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type createSeriesRequest struct {
	ID            string    `json:"id"`
	ResourceID    string    `json:"resource_id"`
	RequesterID   string    `json:"requester_id"`
	RequesterType string    `json:"requester_type"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	Frequency     string    `json:"frequency"`
	Interval      int       `json:"interval"`
	Weekdays      []string  `json:"weekdays"`
	DayOfMonth    int       `json:"day_of_month"`
	StartDate     string    `json:"start_date"`
	EndDate       string    `json:"end_date"`
	Timezone      string    `json:"timezone"`
	SkipConflicts bool      `json:"skip_conflicts"`
	Until         time.Time `json:"until"`
	MaxInstances  int       `json:"max_instances"`
}

type expandSeriesRequest struct {
	Until         time.Time `json:"until"`
	MaxInstances  int       `json:"max_instances"`
	SkipConflicts bool      `json:"skip_conflicts"`
}

type updateTimesRequest struct {
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Scope         string `json:"scope"`
	SkipConflicts bool   `json:"skip_conflicts"`
}

type cancelSeriesRequest struct {
	Scope  string `json:"scope"`
	Reason string `json:"reason"`
}

func (h SeriesHandler) Create(c *gin.Context) {
	var req createSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	requester, class, err := requesterOf(c, req.RequesterID, req.RequesterType)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := series.CreateCommand{
		SeriesID:        req.ID,
		ResourceID:      req.ResourceID,
		RequesterID:     requester,
		RequesterType:   class,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Frequency:       req.Frequency,
		Interval:        req.Interval,
		Weekdays:        req.Weekdays,
		DayOfMonth:      req.DayOfMonth,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Timezone:        req.Timezone,
		SkipConflicts:   req.SkipConflicts,
		Until:           req.Until,
		MaxInstances:    req.MaxInstances,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[series.CreateCommand, *dto.SeriesExpansion](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Header("Location", "/api/v1/series/"+result.Series.ID)
	c.JSON(http.StatusCreated, result)
}

func (h SeriesHandler) Get(c *gin.Context) {
	result, err := queries.Ask[series.GetQuery, dto.Series](c.Request.Context(), h.Queries, series.GetQuery{SeriesID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h SeriesHandler) Expand(c *gin.Context) {
	var req expandSeriesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	cmd := series.ExpandCommand{
		SeriesID:      c.Param("id"),
		Until:         req.Until,
		MaxInstances:  req.MaxInstances,
		SkipConflicts: req.SkipConflicts,
	}
	result, err := commands.Dispatch[series.ExpandCommand, *dto.SeriesExpansion](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h SeriesHandler) UpdateTimes(c *gin.Context) {
	var req updateTimesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := series.UpdateTimesCommand{
		SeriesID:      c.Param("id"),
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Scope:         req.Scope,
		SkipConflicts: req.SkipConflicts,
	}
	result, err := commands.Dispatch[series.UpdateTimesCommand, *dto.SeriesExpansion](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h SeriesHandler) Cancel(c *gin.Context) {
	var req cancelSeriesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.Scope == "" {
		req.Scope = "ALL"
	}
	cmd := series.CancelCommand{SeriesID: c.Param("id"), Scope: req.Scope, Reason: req.Reason}
	result, err := commands.Dispatch[series.CancelCommand, dto.Series](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
