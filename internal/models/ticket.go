package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketAvailable  TicketStatus = "available"
	TicketSoftLocked TicketStatus = "soft_locked"
	TicketSold       TicketStatus = "sold"
)

// ValidTicketStatus reports whether a persisted status string is one the
// engine knows about. Records carrying anything else are rejected at the
// storage boundary instead of flowing through the state machine.
func ValidTicketStatus(s TicketStatus) bool {
	switch s {
	case TicketAvailable, TicketSoftLocked, TicketSold:
		return true
	}
	return false
}

// Ticket is a numbered inventory item (lottery variant). The number
// identifies the physical ticket and never changes after issuance.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	Number        int          `json:"number" bun:"number,pk"`
	Status        TicketStatus `json:"status" bun:"status"`
	HolderSession string       `json:"holder_session,omitempty" bun:"holder_session"`
	LockedAt      *time.Time   `json:"locked_at,omitempty" bun:"locked_at"`
	OrderID       string       `json:"order_id,omitempty" bun:"order_id"`
}

// LockExpired reports whether the ticket's soft lock is older than ttl.
// Only meaningful while the ticket is soft_locked.
func (t *Ticket) LockExpired(now time.Time, ttl time.Duration) bool {
	if t.Status != TicketSoftLocked || t.LockedAt == nil {
		return false
	}
	return !now.Before(t.LockedAt.Add(ttl))
}

type AcquireRequest struct {
	TicketNumber int    `json:"ticket_number" binding:"required,gt=0"`
	SessionID    string `json:"session_id" binding:"required"`
}

type ConfirmRequest struct {
	TicketNumber int    `json:"ticket_number" binding:"required,gt=0"`
	SessionID    string `json:"session_id" binding:"required"`
	OrderID      string `json:"order_id" binding:"required"`
}

type ReleaseRequest struct {
	TicketNumber int    `json:"ticket_number" binding:"required,gt=0"`
	SessionID    string `json:"session_id" binding:"required"`
}
