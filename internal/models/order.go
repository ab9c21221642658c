package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
)

// Order is the lottery purchase record, created when a buyer submits payment
// proof against a soft-locked ticket. One order maps to exactly one sold
// ticket.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID       string      `json:"order_id" bun:"order_id,pk"`
	TicketNumber  int         `json:"ticket_number" bun:"ticket_number"`
	BuyerName     string      `json:"buyer_name" bun:"buyer_name"`
	BuyerEmail    string      `json:"buyer_email" bun:"buyer_email"`
	BuyerPhone    string      `json:"buyer_phone" bun:"buyer_phone"`
	TransactionID string      `json:"transaction_id" bun:"transaction_id"`
	Amount        float64     `json:"amount" bun:"amount"`
	Status        OrderStatus `json:"status" bun:"status"`
	CreatedAt     time.Time   `json:"created_at" bun:"created_at"`
	ConfirmedAt   *time.Time  `json:"confirmed_at,omitempty" bun:"confirmed_at"`
}

type CreateOrderRequest struct {
	TicketNumber  int     `json:"ticket_number" binding:"required,gt=0"`
	SessionID     string  `json:"session_id" binding:"required"`
	BuyerName     string  `json:"buyer_name" binding:"required"`
	BuyerEmail    string  `json:"buyer_email" binding:"required,email"`
	BuyerPhone    string  `json:"buyer_phone"`
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount" binding:"required,gt=0"`
}

type ConfirmOrderRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
}

// TicketEvent is published to Kafka whenever a ticket changes state.
type TicketEvent struct {
	Type         string      `json:"type"`
	TicketNumber int         `json:"ticket_number,omitempty"`
	TicketID     string      `json:"ticket_id,omitempty"`
	OrderID      string      `json:"order_id,omitempty"`
	DeviceID     string      `json:"device_id,omitempty"`
	Ticket       *Ticket     `json:"ticket,omitempty"`
	SeatTicket   *SeatTicket `json:"seat_ticket,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// OrderConfirmedEvent arrives on the order.confirmed topic once an upstream
// payment system has verified a purchase.
type OrderConfirmedEvent struct {
	OrderID       string    `json:"order_id"`
	TicketNumber  int       `json:"ticket_number"`
	SessionID     string    `json:"session_id"`
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}
