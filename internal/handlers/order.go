package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ticket-engine/internal/logger"
	"ticket-engine/internal/models"
	"ticket-engine/internal/services"
	"ticket-engine/internal/utils"
)

// OrderHandler exposes purchase flows: lottery orders against locked tickets
// and direct tier purchases that issue seat tickets.
type OrderHandler struct {
	orders *services.OrderService
	log    *logger.Logger
}

func NewOrderHandler(orders *services.OrderService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, log: log}
}

// Create handles POST /api/v1/orders
func (h *OrderHandler) Create(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("invalid request", err.Error()))
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.respondOrderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, utils.SuccessResponse("order created", order))
}

// Confirm handles POST /api/v1/orders/confirm
func (h *OrderHandler) Confirm(c *gin.Context) {
	var req models.ConfirmOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("invalid request", err.Error()))
		return
	}

	order, err := h.orders.ConfirmOrder(c.Request.Context(), req.OrderID, req.SessionID)
	if err != nil {
		h.respondOrderError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("order confirmed", order))
}

// Get handles GET /api/v1/orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("order", order))
}

// IssueSeatTicket handles POST /api/v1/tickets/issue
func (h *OrderHandler) IssueSeatTicket(c *gin.Context) {
	var req models.IssueSeatTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("invalid request", err.Error()))
		return
	}

	ticket, signed, err := h.orders.IssueSeatTicket(c.Request.Context(), &req)
	if err != nil {
		h.respondOrderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, utils.SuccessResponse("ticket issued", gin.H{
		"ticket":     ticket,
		"qr_payload": signed,
	}))
}

func (h *OrderHandler) respondOrderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, utils.ErrorResponse("not found", err.Error()))
	case errors.Is(err, services.ErrOrderConfirmed):
		c.JSON(http.StatusConflict, utils.ErrorResponse("order is already confirmed", ""))
	case errors.Is(err, services.ErrAlreadySold):
		c.JSON(http.StatusConflict, utils.ErrorResponse("ticket is already sold", ""))
	case errors.Is(err, services.ErrNotLockHolder):
		c.JSON(http.StatusConflict, utils.ErrorResponse("lock is not held by this session", ""))
	case errors.Is(err, services.ErrLockExpired):
		c.JSON(http.StatusConflict, utils.ErrorResponse("lock has expired", "acquire the ticket again"))
	case errors.Is(err, services.ErrTierSoldOut):
		c.JSON(http.StatusConflict, utils.ErrorResponse("tier is sold out", ""))
	case errors.Is(err, services.ErrPaymentNotSettled), errors.Is(err, services.ErrPaymentMismatch):
		c.JSON(http.StatusPaymentRequired, utils.ErrorResponse("payment verification failed", err.Error()))
	default:
		h.log.Error("API", "Order error: "+err.Error())
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("internal server error", ""))
	}
}
