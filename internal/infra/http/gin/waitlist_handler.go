package ginserver

import (
	"log/slog"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"slotkeeper/internal/app/commands"
	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/handlers/waitlist"
	"slotkeeper/internal/app/queries"
)

type WaitlistHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type joinWaitlistRequest struct {
	ID             string    `json:"id"`
	ResourceID     string    `json:"resource_id"`
	RequesterID    string    `json:"requester_id"`
	RequesterClass string    `json:"requester_class"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
}

type promoteRequest struct {
	ResourceID string    `json:"resource_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

func (h WaitlistHandler) Join(c *gin.Context) {
	var req joinWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	requester, class, err := requesterOf(c, req.RequesterID, req.RequesterClass)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := waitlist.JoinCommand{
		EntryID:        req.ID,
		ResourceID:     req.ResourceID,
		RequesterID:    requester,
		RequesterClass: class,
		Start:          req.Start,
		End:            req.End,
	}
	result, err := commands.Dispatch[waitlist.JoinCommand, dto.WaitlistEntry](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Header("Location", "/api/v1/waitlist/"+result.ID)
	c.JSON(http.StatusCreated, result)
}

// Promote offers the freed window to the best waiting entry, if any.
func (h WaitlistHandler) Promote(c *gin.Context) {
	var req promoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := waitlist.PromoteNextCommand{ResourceID: req.ResourceID, Start: req.Start, End: req.End}
	result, err := commands.Dispatch[waitlist.PromoteNextCommand, *dto.WaitlistEntry](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if result == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h WaitlistHandler) Get(c *gin.Context) {
	result, err := queries.Ask[waitlist.GetEntryQuery, dto.WaitlistEntry](c.Request.Context(), h.Queries, waitlist.GetEntryQuery{EntryID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h WaitlistHandler) Leave(c *gin.Context) {
	result, err := commands.Dispatch[waitlist.LeaveCommand, dto.WaitlistEntry](c.Request.Context(), h.Commands, waitlist.LeaveCommand{EntryID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h WaitlistHandler) Accept(c *gin.Context) {
	result, err := commands.Dispatch[waitlist.AcceptOfferCommand, dto.OfferAcceptance](c.Request.Context(), h.Commands, waitlist.AcceptOfferCommand{EntryID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h WaitlistHandler) Decline(c *gin.Context) {
	result, err := commands.Dispatch[waitlist.DeclineOfferCommand, dto.WaitlistEntry](c.Request.Context(), h.Commands, waitlist.DeclineOfferCommand{EntryID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h WaitlistHandler) ListByResource(c *gin.Context) {
	q := waitlist.ListQuery{ResourceID: c.Param("id"), Status: c.Query("status")}
	result, err := queries.Ask[waitlist.ListQuery, dto.WaitlistCollection](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
