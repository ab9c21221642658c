package storage

import (
	"errors"
	"time"

	"ticket-engine/internal/models"
)

var (
	// ErrNotFound means the referenced ticket, order or tier does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict means a compare-and-set lost the race: the stored status no
	// longer matched the expected one at write time. Callers branch on this,
	// it is the normal outcome of contention.
	ErrConflict = errors.New("status changed concurrently")

	// ErrInvalidTransition means the requested status edge is not one the
	// state machine allows. The store rejects these regardless of what the
	// caller asked for.
	ErrInvalidTransition = errors.New("illegal status transition")

	// ErrCorruptRecord means a persisted row failed validation on read.
	// Invalid stored data never propagates into the engine.
	ErrCorruptRecord = errors.New("persisted record failed validation")

	// ErrTierSoldOut means sold_tickets already reached total_tickets.
	ErrTierSoldOut = errors.New("tier sold out")

	// ErrDuplicate means an insert collided with an existing primary key.
	ErrDuplicate = errors.New("record already exists")
)

// TicketFields carries the columns written alongside a numbered-ticket status
// change. Zero values clear the corresponding column.
type TicketFields struct {
	HolderSession string
	LockedAt      *time.Time
	OrderID       string
}

// Store is the single source of truth for allocation state. Every status
// transition goes through a conditional write; reading then writing in two
// steps is not part of this interface on purpose.
type Store interface {
	// Numbered tickets (lottery inventory).
	SaveTicket(ticket *models.Ticket) error
	GetTicket(number int) (*models.Ticket, error)
	ListTicketsByStatus(status models.TicketStatus) ([]*models.Ticket, error)

	// CompareAndSetTicketStatus succeeds only if the stored status (and
	// holder session) still equal the expected values at write time. It
	// returns ErrConflict when the race is lost and ErrInvalidTransition
	// when (expected -> next) is not a legal edge. expectedHolder is the
	// empty string for transitions out of available, where no session holds
	// the ticket.
	CompareAndSetTicketStatus(number int, expected models.TicketStatus, expectedHolder string, next models.TicketStatus, fields TicketFields) error

	// ExpireTicketLocks resets every soft-locked ticket whose lock is older
	// than cutoff. Implemented as one conditional write, so it is idempotent
	// and safe to run concurrently with acquisition.
	ExpireTicketLocks(cutoff time.Time) (int64, error)

	// ResetTicket is the administrative escape hatch for a sold ticket.
	ResetTicket(number int) error

	// Seat-class tickets (concert admission).
	SaveSeatTicket(ticket *models.SeatTicket) error
	GetSeatTicket(ticketID string) (*models.SeatTicket, error)

	// MarkSeatTicketUsed transitions unused -> used, recording when and by
	// which device. ErrConflict when the ticket was not unused at write time.
	MarkSeatTicketUsed(ticketID string, scannedAt time.Time, scannedBy string) error

	// Tier inventory.
	SaveTier(tier *models.Tier) error
	ListTierSummary() ([]models.TierSummary, error)

	// IncrementTierSold bumps sold_tickets, conditional on capacity
	// remaining. ErrTierSoldOut when sold already reached total.
	IncrementTierSold(name string) error

	// Orders.
	SaveOrder(order *models.Order) error
	GetOrder(orderID string) (*models.Order, error)

	// ConfirmOrder transitions pending -> confirmed exactly once.
	ConfirmOrder(orderID string, confirmedAt time.Time) error

	HealthCheck() error
	Close() error
}

// legalTicketEdges is the full set of transitions the engine accepts for
// numbered tickets. sold is terminal except for ResetTicket.
var legalTicketEdges = map[models.TicketStatus]map[models.TicketStatus]bool{
	models.TicketAvailable:  {models.TicketSoftLocked: true},
	models.TicketSoftLocked: {models.TicketSold: true, models.TicketAvailable: true},
}

func legalTransition(from, to models.TicketStatus) bool {
	return legalTicketEdges[from][to]
}
