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

// ScanHandler exposes gate verification and admission over HTTP.
type ScanHandler struct {
	scan *services.ScanService
	log  *logger.Logger
}

func NewScanHandler(scan *services.ScanService, log *logger.Logger) *ScanHandler {
	return &ScanHandler{scan: scan, log: log}
}

// Verify handles POST /api/v1/scan/verify
func (h *ScanHandler) Verify(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("invalid request", err.Error()))
		return
	}

	result, err := h.scan.Verify(c.Request.Context(), req.QRPayload)
	if err != nil {
		h.respondScanError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("verification result", result))
}

// Scan handles POST /api/v1/scan
func (h *ScanHandler) Scan(c *gin.Context) {
	var req models.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("invalid request", err.Error()))
		return
	}

	result, err := h.scan.Scan(c.Request.Context(), req.TicketID, req.DeviceID, req.QRPayload)
	if err != nil {
		h.respondScanError(c, err)
		return
	}

	message := "ticket admitted"
	if result.AlreadyScanned {
		message = "ticket already admitted"
	}
	c.JSON(http.StatusOK, utils.SuccessResponse(message, result))
}

// Sync handles POST /api/v1/scan/sync
func (h *ScanHandler) Sync(c *gin.Context) {
	var req models.SyncScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("invalid request", err.Error()))
		return
	}

	result, err := h.scan.SyncOfflineScan(c.Request.Context(), &req)
	if err != nil {
		h.respondScanError(c, err)
		return
	}

	message := "offline scan applied"
	switch {
	case result.Duplicate:
		message = "duplicate scan ignored"
	case result.Conflict:
		message = "scan conflict recorded"
	}
	c.JSON(http.StatusOK, utils.SuccessResponse(message, result))
}

// SyncBatch handles POST /api/v1/scan/sync/batch
func (h *ScanHandler) SyncBatch(c *gin.Context) {
	var req models.SyncBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("invalid request", err.Error()))
		return
	}

	results, err := h.scan.SyncBatch(c.Request.Context(), req.DeviceID, req.Reports)
	if err != nil {
		h.respondScanError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("device log synced", results))
}

// Tiers handles GET /api/v1/tiers
func (h *ScanHandler) Tiers(c *gin.Context) {
	summaries, err := h.scan.TierAvailability(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("failed to list tiers", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("tier availability", summaries))
}

func (h *ScanHandler) respondScanError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("qr payload is malformed", ""))
	case errors.Is(err, services.ErrBadSignature):
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("qr signature verification failed", ""))
	case errors.Is(err, services.ErrPayloadMismatch):
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("qr payload does not match ticket", ""))
	case errors.Is(err, services.ErrUnverifiedScan):
		c.JSON(http.StatusForbidden, utils.ErrorResponse("scans without a qr payload are disabled", ""))
	case errors.Is(err, services.ErrSeatTicketNotFound):
		c.JSON(http.StatusNotFound, utils.ErrorResponse("ticket not found", ""))
	case errors.Is(err, services.ErrTicketVoid):
		c.JSON(http.StatusGone, utils.ErrorResponse("ticket is void", ""))
	default:
		h.log.Error("API", "Scan error: "+err.Error())
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("internal server error", ""))
	}
}
