package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-engine/internal/logger"
	"ticket-engine/internal/models"
	"ticket-engine/internal/notify"
	"ticket-engine/internal/qrsign"
	"ticket-engine/internal/storage"
	"ticket-engine/internal/utils"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrOrderConfirmed = errors.New("order is already confirmed")
	ErrTierSoldOut    = errors.New("tier is sold out")
)

// OrderService ties purchases to the reservation state machine. Lottery
// orders ride on numbered-ticket soft locks; concert purchases draw from
// tier capacity and issue seat tickets directly.
type OrderService struct {
	store       storage.Store
	reservation *ReservationService
	verifier    *PaymentVerifier
	codec       *qrsign.Codec
	mailer      *notify.Mailer
	log         *logger.Logger

	now func() time.Time
}

func NewOrderService(store storage.Store, reservation *ReservationService, verifier *PaymentVerifier, codec *qrsign.Codec, mailer *notify.Mailer, log *logger.Logger) *OrderService {
	return &OrderService{
		store:       store,
		reservation: reservation,
		verifier:    verifier,
		codec:       codec,
		mailer:      mailer,
		log:         log,
		now:         time.Now,
	}
}

// CreateOrder records payment proof against a soft-locked ticket. The lock
// must be held by the submitting session; the ticket stays soft_locked until
// the order is confirmed.
func (s *OrderService) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	ticket, err := s.reservation.GetTicket(ctx, req.TicketNumber)
	if err != nil {
		return nil, err
	}
	if ticket.Status == models.TicketSold {
		return nil, ErrAlreadySold
	}
	if ticket.Status != models.TicketSoftLocked || ticket.HolderSession != req.SessionID {
		return nil, ErrNotLockHolder
	}

	order := &models.Order{
		OrderID:       utils.GenerateOrderID(),
		TicketNumber:  req.TicketNumber,
		BuyerName:     req.BuyerName,
		BuyerEmail:    req.BuyerEmail,
		BuyerPhone:    req.BuyerPhone,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		Status:        models.OrderPending,
		CreatedAt:     s.now(),
	}

	if err := s.store.SaveOrder(order); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	s.log.LogTicket("ORDER", order.OrderID, fmt.Sprintf("Pending order for ticket #%d by %s", req.TicketNumber, req.BuyerEmail))
	return order, nil
}

// ConfirmOrder settles a pending order: the payment is cross-checked, the
// soft lock converts to sold, then the order flips to confirmed. The ticket
// transition happens first because the ticket table is the source of truth;
// a crash between the two writes leaves a sold ticket with a pending order,
// which confirms cleanly on retry.
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID, sessionID string) (*models.Order, error) {
	order, err := s.store.GetOrder(orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	if order.Status == models.OrderConfirmed {
		return nil, ErrOrderConfirmed
	}

	if err := s.verifier.VerifyTransaction(ctx, order.TransactionID, order.Amount); err != nil {
		return nil, err
	}

	if _, err := s.reservation.ConfirmLock(ctx, order.TicketNumber, sessionID, orderID); err != nil {
		// The retry path after a crash: this order already owns the ticket.
		if errors.Is(err, ErrAlreadySold) {
			ticket, getErr := s.reservation.GetTicket(ctx, order.TicketNumber)
			if getErr != nil || ticket.OrderID != orderID {
				return nil, err
			}
		} else {
			return nil, err
		}
	}

	confirmedAt := s.now()
	if err := s.store.ConfirmOrder(orderID, confirmedAt); err != nil && !errors.Is(err, storage.ErrConflict) {
		return nil, fmt.Errorf("failed to confirm order %s: %w", orderID, err)
	}

	order.Status = models.OrderConfirmed
	order.ConfirmedAt = &confirmedAt

	s.log.LogTicket("ORDER_CONFIRM", orderID, fmt.Sprintf("Ticket #%d sold to %s", order.TicketNumber, order.BuyerEmail))
	go s.mailer.SendOrderConfirmation(order)

	return order, nil
}

// HandleOrderConfirmed applies a confirmation that arrived on the message
// bus instead of over HTTP.
func (s *OrderService) HandleOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	_, err := s.ConfirmOrder(ctx, event.OrderID, event.SessionID)
	if errors.Is(err, ErrOrderConfirmed) {
		// Redelivered event; nothing to do.
		return nil
	}
	return err
}

// IssueSeatTicket sells one ticket from a tier's capacity and emails the
// buyer a signed QR code. The capacity check and the increment are one
// conditional write, so concurrent purchases cannot oversell a tier.
func (s *OrderService) IssueSeatTicket(ctx context.Context, req *models.IssueSeatTicketRequest) (*models.SeatTicket, string, error) {
	if err := s.verifier.VerifyTransaction(ctx, req.OrderID, req.PaymentAmount); err != nil {
		return nil, "", err
	}

	if err := s.store.IncrementTierSold(req.Tier); err != nil {
		if errors.Is(err, storage.ErrTierSoldOut) {
			return nil, "", ErrTierSoldOut
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", fmt.Errorf("unknown tier %q: %w", req.Tier, storage.ErrNotFound)
		}
		return nil, "", fmt.Errorf("failed to allocate from tier %s: %w", req.Tier, err)
	}

	ticket := &models.SeatTicket{
		TicketID:      utils.GenerateTicketID(),
		Tier:          req.Tier,
		Status:        models.SeatTicketUnused,
		BuyerName:     req.BuyerName,
		BuyerEmail:    req.BuyerEmail,
		OrderID:       req.OrderID,
		PaymentAmount: req.PaymentAmount,
		IssuedAt:      s.now(),
	}

	if err := s.store.SaveSeatTicket(ticket); err != nil {
		return nil, "", fmt.Errorf("failed to save seat ticket: %w", err)
	}

	signed, err := s.codec.Mint(ticket.TicketID, ticket.Tier, ticket.IssuedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to mint qr payload: %w", err)
	}

	s.log.LogTicket("ISSUE", ticket.TicketID, fmt.Sprintf("%s ticket issued to %s", req.Tier, req.BuyerEmail))

	go func() {
		qrPNG, pngErr := s.codec.PNG(signed, 256)
		if pngErr != nil {
			s.log.Error("EMAIL", fmt.Sprintf("Failed to render qr for %s: %v", ticket.TicketID, pngErr))
			return
		}
		s.mailer.SendSeatTicket(ticket, qrPNG)
	}()

	return ticket, signed, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.store.GetOrder(orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	return order, nil
}
