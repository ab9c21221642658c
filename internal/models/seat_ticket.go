package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SeatTicketStatus string

const (
	SeatTicketUnused SeatTicketStatus = "unused"
	SeatTicketUsed   SeatTicketStatus = "used"
	SeatTicketVoid   SeatTicketStatus = "void"
)

func ValidSeatTicketStatus(s SeatTicketStatus) bool {
	switch s {
	case SeatTicketUnused, SeatTicketUsed, SeatTicketVoid:
		return true
	}
	return false
}

// SeatTicket is a tier-scoped admission ticket (concert variant). scanned_at
// is set if and only if the status is used; void tickets are never scannable.
type SeatTicket struct {
	bun.BaseModel `bun:"table:seat_tickets"`

	TicketID      string           `json:"ticket_id" bun:"ticket_id,pk"`
	Tier          string           `json:"tier" bun:"tier"`
	Status        SeatTicketStatus `json:"status" bun:"status"`
	ScannedAt     *time.Time       `json:"scanned_at,omitempty" bun:"scanned_at"`
	ScannedBy     string           `json:"scanned_by,omitempty" bun:"scanned_by"`
	BuyerName     string           `json:"buyer_name" bun:"buyer_name"`
	BuyerEmail    string           `json:"buyer_email" bun:"buyer_email"`
	OrderID       string           `json:"order_id" bun:"order_id"`
	PaymentAmount float64          `json:"payment_amount" bun:"payment_amount"`
	IssuedAt      time.Time        `json:"issued_at" bun:"issued_at"`
}

// ScanRecord is the original admission record reported back on duplicate or
// conflicting scans. It is never mutated once written.
type ScanRecord struct {
	ScannedAt time.Time `json:"scanned_at"`
	ScannedBy string    `json:"scanned_by"`
}

type ScanRequest struct {
	TicketID  string `json:"ticket_id" binding:"required"`
	DeviceID  string `json:"device_id" binding:"required"`
	QRPayload string `json:"qr_payload"`
}

type IssueSeatTicketRequest struct {
	Tier          string  `json:"tier" binding:"required"`
	BuyerName     string  `json:"buyer_name" binding:"required"`
	BuyerEmail    string  `json:"buyer_email" binding:"required,email"`
	OrderID       string  `json:"order_id"`
	PaymentAmount float64 `json:"payment_amount" binding:"required,gt=0"`
}

type SyncScanRequest struct {
	TicketID  string    `json:"ticket_id" binding:"required"`
	ScannedAt time.Time `json:"scanned_at" binding:"required"`
	DeviceID  string    `json:"device_id" binding:"required"`
	QRPayload string    `json:"qr_payload"`
}

type SyncBatchRequest struct {
	DeviceID string            `json:"device_id" binding:"required"`
	Reports  []BatchScanReport `json:"reports" binding:"required,min=1,dive"`
}

// BatchScanReport is one entry of an uploaded device log. The device id
// lives on the enclosing batch.
type BatchScanReport struct {
	TicketID  string    `json:"ticket_id" binding:"required"`
	ScannedAt time.Time `json:"scanned_at" binding:"required"`
	QRPayload string    `json:"qr_payload"`
}

type VerifyRequest struct {
	QRPayload string `json:"qr_payload" binding:"required"`
}
