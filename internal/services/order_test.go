package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-engine/internal/config"
	"ticket-engine/internal/kafka"
	"ticket-engine/internal/logger"
	"ticket-engine/internal/models"
	"ticket-engine/internal/notify"
	"ticket-engine/internal/qrsign"
	"ticket-engine/internal/storage"
)

func newTestOrders(t *testing.T) (*OrderService, *ReservationService, *storage.InMemoryStore) {
	t.Helper()
	log := logger.NewLogger()
	producer, err := kafka.NewProducer(nil, true, log)
	require.NoError(t, err)
	codec, err := qrsign.NewCodec("test-secret")
	require.NoError(t, err)
	store := storage.NewInMemoryStore()
	reservation := NewReservationService(store, producer, 10*time.Minute, log)
	verifier := NewPaymentVerifier("", log)
	mailer := notify.NewMailer(config.SMTPConfig{}, log)
	return NewOrderService(store, reservation, verifier, codec, mailer, log), reservation, store
}

func TestCreateOrderRequiresHeldLock(t *testing.T) {
	orders, reservation, store := newTestOrders(t)
	require.NoError(t, store.SaveTicket(&models.Ticket{Number: 1, Status: models.TicketAvailable}))
	ctx := context.Background()

	req := &models.CreateOrderRequest{
		TicketNumber: 1,
		SessionID:    "sess-a",
		BuyerName:    "Lina",
		BuyerEmail:   "lina@example.com",
		Amount:       25,
	}

	_, err := orders.CreateOrder(ctx, req)
	assert.ErrorIs(t, err, ErrNotLockHolder, "no lock held yet")

	_, err = reservation.AcquireLock(ctx, 1, "sess-a")
	require.NoError(t, err)

	_, err = orders.CreateOrder(ctx, &models.CreateOrderRequest{TicketNumber: 1, SessionID: "sess-b", BuyerName: "x", BuyerEmail: "x@example.com", Amount: 25})
	assert.ErrorIs(t, err, ErrNotLockHolder, "lock held by a different session")

	order, err := orders.CreateOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, 1, order.TicketNumber)

	// Creating the order does not consume the ticket yet.
	ticket, _ := store.GetTicket(1)
	assert.Equal(t, models.TicketSoftLocked, ticket.Status)
}

func TestConfirmOrderSellsTicket(t *testing.T) {
	orders, reservation, store := newTestOrders(t)
	require.NoError(t, store.SaveTicket(&models.Ticket{Number: 1, Status: models.TicketAvailable}))
	ctx := context.Background()

	_, err := reservation.AcquireLock(ctx, 1, "sess-a")
	require.NoError(t, err)

	order, err := orders.CreateOrder(ctx, &models.CreateOrderRequest{
		TicketNumber: 1, SessionID: "sess-a", BuyerName: "Lina", BuyerEmail: "lina@example.com", Amount: 25,
	})
	require.NoError(t, err)

	confirmed, err := orders.ConfirmOrder(ctx, order.OrderID, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	ticket, _ := store.GetTicket(1)
	assert.Equal(t, models.TicketSold, ticket.Status)
	assert.Equal(t, order.OrderID, ticket.OrderID)

	_, err = orders.ConfirmOrder(ctx, order.OrderID, "sess-a")
	assert.ErrorIs(t, err, ErrOrderConfirmed)
}

func TestConfirmOrderExpiredLock(t *testing.T) {
	orders, reservation, store := newTestOrders(t)
	require.NoError(t, store.SaveTicket(&models.Ticket{Number: 1, Status: models.TicketAvailable}))
	ctx := context.Background()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reservation.now = func() time.Time { return t0 }

	_, err := reservation.AcquireLock(ctx, 1, "sess-a")
	require.NoError(t, err)
	order, err := orders.CreateOrder(ctx, &models.CreateOrderRequest{
		TicketNumber: 1, SessionID: "sess-a", BuyerName: "Lina", BuyerEmail: "lina@example.com", Amount: 25,
	})
	require.NoError(t, err)

	reservation.now = func() time.Time { return t0.Add(11 * time.Minute) }
	_, err = orders.ConfirmOrder(ctx, order.OrderID, "sess-a")
	assert.ErrorIs(t, err, ErrLockExpired, "payment proof does not revive an expired lock")
}

func TestHandleOrderConfirmedRedelivery(t *testing.T) {
	orders, reservation, store := newTestOrders(t)
	require.NoError(t, store.SaveTicket(&models.Ticket{Number: 1, Status: models.TicketAvailable}))
	ctx := context.Background()

	_, err := reservation.AcquireLock(ctx, 1, "sess-a")
	require.NoError(t, err)
	order, err := orders.CreateOrder(ctx, &models.CreateOrderRequest{
		TicketNumber: 1, SessionID: "sess-a", BuyerName: "Lina", BuyerEmail: "lina@example.com", Amount: 25,
	})
	require.NoError(t, err)

	event := &models.OrderConfirmedEvent{OrderID: order.OrderID, TicketNumber: 1, SessionID: "sess-a"}
	require.NoError(t, orders.HandleOrderConfirmed(ctx, event))

	// Message bus redelivery must be a clean no-op.
	require.NoError(t, orders.HandleOrderConfirmed(ctx, event))

	ticket, _ := store.GetTicket(1)
	assert.Equal(t, models.TicketSold, ticket.Status)
}

func TestIssueSeatTicketConsumesTier(t *testing.T) {
	orders, _, store := newTestOrders(t)
	require.NoError(t, store.SaveTier(&models.Tier{Name: "vip", Price: 150, TotalTickets: 1}))
	ctx := context.Background()

	req := &models.IssueSeatTicketRequest{
		Tier: "vip", BuyerName: "Mo", BuyerEmail: "mo@example.com", PaymentAmount: 150,
	}

	ticket, signed, err := orders.IssueSeatTicket(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.SeatTicketUnused, ticket.Status)
	assert.NotEmpty(t, signed)

	stored, err := store.GetSeatTicket(ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, "vip", stored.Tier)

	_, _, err = orders.IssueSeatTicket(ctx, req)
	assert.ErrorIs(t, err, ErrTierSoldOut)
}

func TestIssueSeatTicketUnknownTier(t *testing.T) {
	orders, _, _ := newTestOrders(t)
	_, _, err := orders.IssueSeatTicket(context.Background(), &models.IssueSeatTicketRequest{
		Tier: "ghost", BuyerName: "Mo", BuyerEmail: "mo@example.com", PaymentAmount: 10,
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
