package ginserver

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	"slotkeeper/internal/app/commands"
	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/handlers/reassignment"
	"slotkeeper/internal/app/queries"
	"slotkeeper/internal/domain/shared/errs"
)

type ReassignmentHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type openReassignmentRequest struct {
	ID                       string   `json:"id"`
	ReservationID            string   `json:"reservation_id"`
	Reason                   string   `json:"reason"`
	PriorityClass            string   `json:"priority_class"`
	AcceptEquivalent         bool     `json:"accept_equivalent"`
	AcceptAlternativeTime    bool     `json:"accept_alternative_time"`
	CapacityTolerancePercent int      `json:"capacity_tolerance_percent"`
	RequiredFeatures         []string `json:"required_features"`
	PreferredFeatures        []string `json:"preferred_features"`
	MaxDistanceMeters        float64  `json:"max_distance_meters"`
	RequiredCapacity         int      `json:"required_capacity"`
}

type respondRequest struct {
	Decision           string `json:"decision"`
	SelectedResourceID string `json:"selected_resource_id"`
}

func (h ReassignmentHandler) Open(c *gin.Context) {
	var req openReassignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := reassignment.OpenCommand{
		RequestID:                req.ID,
		ReservationID:            req.ReservationID,
		Reason:                   req.Reason,
		PriorityClass:            req.PriorityClass,
		AcceptEquivalent:         req.AcceptEquivalent,
		AcceptAlternativeTime:    req.AcceptAlternativeTime,
		CapacityTolerancePercent: req.CapacityTolerancePercent,
		RequiredFeatures:         req.RequiredFeatures,
		PreferredFeatures:        req.PreferredFeatures,
		MaxDistanceMeters:        req.MaxDistanceMeters,
		RequiredCapacity:         req.RequiredCapacity,
	}
	result, err := commands.Dispatch[reassignment.OpenCommand, dto.Reassignment](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Header("Location", "/api/v1/reassignments/"+result.ID)
	c.JSON(http.StatusCreated, result)
}

func (h ReassignmentHandler) Get(c *gin.Context) {
	result, err := queries.Ask[reassignment.GetQuery, dto.Reassignment](c.Request.Context(), h.Queries, reassignment.GetQuery{RequestID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ReassignmentHandler) List(c *gin.Context) {
	q := reassignment.ListQuery{Status: c.Query("status"), ReservationID: c.Query("reservation_id")}
	result, err := queries.Ask[reassignment.ListQuery, dto.ReassignmentCollection](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ReassignmentHandler) AutoProcess(c *gin.Context) {
	cmd := reassignment.AutoProcessCommand{RequestID: c.Param("id")}
	result, err := commands.Dispatch[reassignment.AutoProcessCommand, dto.Reassignment](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ReassignmentHandler) Respond(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := reassignment.RespondCommand{
		RequestID:          c.Param("id"),
		Decision:           strings.ToUpper(strings.TrimSpace(req.Decision)),
		SelectedResourceID: req.SelectedResourceID,
	}
	result, err := commands.Dispatch[reassignment.RespondCommand, dto.Reassignment](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ReassignmentHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	cmd := reassignment.CancelCommand{RequestID: c.Param("id"), Reason: req.Reason}
	result, err := commands.Dispatch[reassignment.CancelCommand, dto.Reassignment](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Equivalents ranks alternatives to a resource for the given window.
func (h ReassignmentHandler) Equivalents(c *gin.Context) {
	start, end, err := queryRange(c, "start", "end")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	capacity, err := queryInt(c, "capacity")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	tolerance, err := queryInt(c, "tolerance")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	var maxDistance float64
	if raw := strings.TrimSpace(c.Query("max_distance")); raw != "" {
		maxDistance, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(c, h.Logger, errs.Invalid("max_distance", "must be a number"))
			return
		}
	}
	q := reassignment.FindEquivalentsQuery{
		ResourceID:           c.Param("id"),
		Start:                start,
		End:                  end,
		RequiredCapacity:     capacity,
		TolerancePercent:     tolerance,
		RequiredFeatures:     queryList(c, "required"),
		PreferredFeatures:    queryList(c, "preferred"),
		MaxDistanceMeters:    maxDistance,
		RequesterType:        c.Query("requester_type"),
		ExcludeReservationID: c.Query("exclude"),
	}
	result, err := queries.Ask[reassignment.FindEquivalentsQuery, dto.Equivalents](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
