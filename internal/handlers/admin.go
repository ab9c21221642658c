package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"ticket-engine/internal/logger"
	"ticket-engine/internal/models"
	"ticket-engine/internal/storage"
	"ticket-engine/internal/utils"
)

// AdminHandler covers operator-only inventory provisioning.
type AdminHandler struct {
	store storage.Store
	log   *logger.Logger
}

func NewAdminHandler(store storage.Store, log *logger.Logger) *AdminHandler {
	return &AdminHandler{store: store, log: log}
}

// Seed handles POST /api/v1/admin/seed. Seeding is idempotent: tickets that
// already exist are skipped, tiers are upserted.
func (h *AdminHandler) Seed(c *gin.Context) {
	var req models.SeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("invalid request", err.Error()))
		return
	}

	created := 0
	for number := 1; number <= req.TicketCount; number++ {
		err := h.store.SaveTicket(&models.Ticket{Number: number, Status: models.TicketAvailable})
		if errors.Is(err, storage.ErrDuplicate) {
			continue
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, utils.ErrorResponse("seeding failed", err.Error()))
			return
		}
		created++
	}

	for _, tier := range req.Tiers {
		err := h.store.SaveTier(&models.Tier{
			Name:         tier.Name,
			Price:        tier.Price,
			TotalTickets: tier.Total,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, utils.ErrorResponse("seeding failed", err.Error()))
			return
		}
	}

	h.log.LogProcess("SEED", fmt.Sprintf("Created %d ticket(s), upserted %d tier(s)", created, len(req.Tiers)))
	c.JSON(http.StatusOK, utils.SuccessResponse("inventory seeded", gin.H{
		"tickets_created": created,
		"tiers_upserted":  len(req.Tiers),
	}))
}
