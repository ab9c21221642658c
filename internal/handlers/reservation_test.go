package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-engine/internal/kafka"
	"ticket-engine/internal/logger"
	"ticket-engine/internal/models"
	"ticket-engine/internal/services"
	"ticket-engine/internal/storage"
)

func newTestRouter(t *testing.T) (*gin.Engine, *storage.InMemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewLogger()
	producer, err := kafka.NewProducer(nil, true, log)
	require.NoError(t, err)
	store := storage.NewInMemoryStore()
	reservation := services.NewReservationService(store, producer, 10*time.Minute, log)
	handler := NewReservationHandler(reservation, log)

	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.POST("/reservations/acquire", handler.Acquire)
	v1.POST("/reservations/confirm", handler.Confirm)
	v1.POST("/reservations/release", handler.Release)
	v1.GET("/tickets/:number", handler.GetTicket)
	return router, store
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAcquireConfirmOverHTTP(t *testing.T) {
	router, store := newTestRouter(t)
	require.NoError(t, store.SaveTicket(&models.Ticket{Number: 42, Status: models.TicketAvailable}))

	w := postJSON(t, router, "/api/v1/reservations/acquire", models.AcquireRequest{TicketNumber: 42, SessionID: "sess-a"})
	assert.Equal(t, http.StatusOK, w.Code)

	// A competing session gets a conflict, not an error.
	w = postJSON(t, router, "/api/v1/reservations/acquire", models.AcquireRequest{TicketNumber: 42, SessionID: "sess-b"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = postJSON(t, router, "/api/v1/reservations/confirm", models.ConfirmRequest{TicketNumber: 42, SessionID: "sess-a", OrderID: "ord-1"})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "sold", resp.Data.Status)
}

func TestAcquireValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postJSON(t, router, "/api/v1/reservations/acquire", gin.H{"session_id": "sess-a"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing ticket number")

	w = postJSON(t, router, "/api/v1/reservations/acquire", models.AcquireRequest{TicketNumber: 404, SessionID: "sess-a"})
	assert.Equal(t, http.StatusNotFound, w.Code, "unknown ticket")
}

func TestReleaseOverHTTP(t *testing.T) {
	router, store := newTestRouter(t)
	require.NoError(t, store.SaveTicket(&models.Ticket{Number: 1, Status: models.TicketAvailable}))

	w := postJSON(t, router, "/api/v1/reservations/acquire", models.AcquireRequest{TicketNumber: 1, SessionID: "sess-a"})
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, router, "/api/v1/reservations/release", models.ReleaseRequest{TicketNumber: 1, SessionID: "sess-b"})
	assert.Equal(t, http.StatusConflict, w.Code, "only the holder releases")

	w = postJSON(t, router, "/api/v1/reservations/release", models.ReleaseRequest{TicketNumber: 1, SessionID: "sess-a"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetTicketOverHTTP(t *testing.T) {
	router, store := newTestRouter(t)
	require.NoError(t, store.SaveTicket(&models.Ticket{Number: 5, Status: models.TicketAvailable}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets/5", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/tickets/%d", 999), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tickets/abc", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
