package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ticket-engine/internal/logger"
	"ticket-engine/internal/models"
	"ticket-engine/internal/services"
	"ticket-engine/internal/utils"
)

// ReservationHandler exposes the numbered-ticket lock lifecycle over HTTP.
type ReservationHandler struct {
	reservation *services.ReservationService
	log         *logger.Logger
}

func NewReservationHandler(reservation *services.ReservationService, log *logger.Logger) *ReservationHandler {
	return &ReservationHandler{reservation: reservation, log: log}
}

// Acquire handles POST /api/v1/reservations/acquire
func (h *ReservationHandler) Acquire(c *gin.Context) {
	var req models.AcquireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("invalid request", err.Error()))
		return
	}

	ticket, err := h.reservation.AcquireLock(c.Request.Context(), req.TicketNumber, req.SessionID)
	if err != nil {
		h.respondReservationError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("ticket soft-locked", ticket))
}

// Confirm handles POST /api/v1/reservations/confirm
func (h *ReservationHandler) Confirm(c *gin.Context) {
	var req models.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("invalid request", err.Error()))
		return
	}

	ticket, err := h.reservation.ConfirmLock(c.Request.Context(), req.TicketNumber, req.SessionID, req.OrderID)
	if err != nil {
		h.respondReservationError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("ticket sold", ticket))
}

// Release handles POST /api/v1/reservations/release
func (h *ReservationHandler) Release(c *gin.Context) {
	var req models.ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("invalid request", err.Error()))
		return
	}

	if err := h.reservation.ReleaseLock(c.Request.Context(), req.TicketNumber, req.SessionID); err != nil {
		h.respondReservationError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("ticket released", nil))
}

// ListAvailable handles GET /api/v1/tickets/available
func (h *ReservationHandler) ListAvailable(c *gin.Context) {
	tickets, err := h.reservation.ListAvailable(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("failed to list tickets", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("available tickets", tickets))
}

// GetTicket handles GET /api/v1/tickets/:number
func (h *ReservationHandler) GetTicket(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number <= 0 {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("invalid ticket number", c.Param("number")))
		return
	}

	ticket, err := h.reservation.GetTicket(c.Request.Context(), number)
	if err != nil {
		h.respondReservationError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("ticket", ticket))
}

// Reset handles POST /api/v1/admin/tickets/:number/reset
func (h *ReservationHandler) Reset(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number <= 0 {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("invalid ticket number", c.Param("number")))
		return
	}

	if err := h.reservation.ResetTicket(c.Request.Context(), number); err != nil {
		h.respondReservationError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("ticket reset to available", nil))
}

func (h *ReservationHandler) respondReservationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, utils.ErrorResponse("ticket not found", ""))
	case errors.Is(err, services.ErrAlreadyLocked):
		c.JSON(http.StatusConflict, utils.ErrorResponse("ticket is locked by another session", ""))
	case errors.Is(err, services.ErrAlreadySold):
		c.JSON(http.StatusConflict, utils.ErrorResponse("ticket is already sold", ""))
	case errors.Is(err, services.ErrNotLockHolder):
		c.JSON(http.StatusConflict, utils.ErrorResponse("lock is not held by this session", ""))
	case errors.Is(err, services.ErrLockExpired):
		c.JSON(http.StatusConflict, utils.ErrorResponse("lock has expired", "acquire the ticket again"))
	default:
		h.log.Error("API", "Reservation error: "+err.Error())
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("internal server error", ""))
	}
}
