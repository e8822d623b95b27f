package ginserver

import (
	"log/slog"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"slotkeeper/internal/app/commands"
	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/handlers/booking"
	"slotkeeper/internal/app/queries"
)

type ReservationHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type bookRequest struct {
	ID            string    `json:"id"`
	ResourceID    string    `json:"resource_id"`
	RequesterID   string    `json:"requester_id"`
	RequesterType string    `json:"requester_type"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	JoinWaitlist  bool      `json:"join_waitlist"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h ReservationHandler) Book(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	requester, class, err := requesterOf(c, req.RequesterID, req.RequesterType)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	cmd := booking.BookCommand{
		ReservationID:   req.ID,
		ResourceID:      req.ResourceID,
		RequesterID:     requester,
		RequesterType:   class,
		Start:           req.Start,
		End:             req.End,
		JoinWaitlist:    req.JoinWaitlist,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[booking.BookCommand, *dto.BookingResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if result.Reservation == nil {
		c.JSON(http.StatusAccepted, result)
		return
	}
	c.Header("Location", "/api/v1/reservations/"+result.Reservation.ID)
	c.JSON(http.StatusCreated, result)
}

func (h ReservationHandler) Get(c *gin.Context) {
	result, err := queries.Ask[booking.GetQuery, dto.Reservation](c.Request.Context(), h.Queries, booking.GetQuery{ReservationID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ReservationHandler) Confirm(c *gin.Context) {
	result, err := commands.Dispatch[booking.ConfirmCommand, dto.Reservation](c.Request.Context(), h.Commands, booking.ConfirmCommand{ReservationID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ReservationHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	cmd := booking.CancelCommand{ReservationID: c.Param("id"), Reason: req.Reason}
	result, err := commands.Dispatch[booking.CancelCommand, dto.Reservation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ReservationHandler) ListByResource(c *gin.Context) {
	from, to, err := queryRange(c, "from", "to")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	q := booking.ListQuery{ResourceID: c.Param("id"), From: from, To: to}
	result, err := queries.Ask[booking.ListQuery, dto.ReservationCollection](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Availability is a dry run of the booking checks.
func (h ReservationHandler) Availability(c *gin.Context) {
	start, end, err := queryRange(c, "start", "end")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	requesterType := c.Query("requester_type")
	if requesterType == "" {
		if caller, ok := currentIdentity(c); ok {
			requesterType = caller.PriorityClass
		}
	}
	q := booking.AvailabilityQuery{
		ResourceID:           c.Param("id"),
		Start:                start,
		End:                  end,
		RequesterType:        requesterType,
		ExcludeReservationID: c.Query("exclude"),
	}
	result, err := queries.Ask[booking.AvailabilityQuery, dto.Availability](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
