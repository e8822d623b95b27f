package ginserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"slotkeeper/internal/app/commands"
	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/handlers/resources"
	"slotkeeper/internal/app/queries"
)

type ResourceHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type registerResourceRequest struct {
	ID       string                  `json:"id"`
	Name     string                  `json:"name"`
	Type     string                  `json:"type"`
	Capacity int                     `json:"capacity"`
	Location dto.Location            `json:"location"`
	Features []string                `json:"features"`
	Schedule resources.ScheduleInput `json:"schedule"`
}

type setStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h ResourceHandler) Register(c *gin.Context) {
	var req registerResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := resources.RegisterCommand{
		ResourceID: req.ID,
		Name:       req.Name,
		Type:       req.Type,
		Capacity:   req.Capacity,
		Location:   req.Location,
		Features:   req.Features,
		Schedule:   req.Schedule,
	}
	result, err := commands.Dispatch[resources.RegisterCommand, dto.Resource](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Header("Location", "/api/v1/resources/"+result.ID)
	c.JSON(http.StatusCreated, result)
}

func (h ResourceHandler) Get(c *gin.Context) {
	result, err := queries.Ask[resources.GetQuery, dto.Resource](c.Request.Context(), h.Queries, resources.GetQuery{ResourceID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ResourceHandler) List(c *gin.Context) {
	q := resources.ListQuery{
		Type:   strings.TrimSpace(c.Query("type")),
		Status: strings.TrimSpace(c.Query("status")),
	}
	result, err := queries.Ask[resources.ListQuery, dto.ResourceCollection](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ResourceHandler) UpdateSchedule(c *gin.Context) {
	var schedule resources.ScheduleInput
	if err := c.ShouldBindJSON(&schedule); err != nil {
		badRequest(c, err)
		return
	}
	cmd := resources.UpdateScheduleCommand{ResourceID: c.Param("id"), Schedule: schedule}
	result, err := commands.Dispatch[resources.UpdateScheduleCommand, dto.Resource](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ResourceHandler) SetStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := resources.SetStatusCommand{ResourceID: c.Param("id"), Status: req.Status, Reason: req.Reason}
	result, err := commands.Dispatch[resources.SetStatusCommand, dto.Resource](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ResourceHandler) Calendar(c *gin.Context) {
	from, to, err := queryRange(c, "from", "to")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	q := resources.CalendarQuery{ResourceID: c.Param("id"), From: from, To: to}
	result, err := queries.Ask[resources.CalendarQuery, dto.Calendar](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Export streams the feed, or with publish=true uploads it and returns the URL.
func (h ResourceHandler) Export(c *gin.Context) {
	from, to, err := queryRange(c, "from", "to")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := resources.ExportCalendarCommand{
		ResourceID: c.Param("id"),
		From:       from,
		To:         to,
		Publish:    c.Query("publish") == "true",
	}
	result, err := commands.Dispatch[resources.ExportCalendarCommand, dto.CalendarExport](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if cmd.Publish {
		c.JSON(http.StatusOK, result)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Body)
}
