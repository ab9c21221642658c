package storage

import (
	"fmt"
	"sync"
	"time"

	"ticket-engine/internal/models"
)

// InMemoryStore implements Store for tests and mock mode. The single mutex
// gives it the same check-and-write atomicity the MySQL conditional UPDATE
// provides.
type InMemoryStore struct {
	mutex       sync.RWMutex
	tickets     map[int]*models.Ticket
	seatTickets map[string]*models.SeatTicket
	tiers       map[string]*models.Tier
	orders      map[string]*models.Order
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tickets:     make(map[int]*models.Ticket),
		seatTickets: make(map[string]*models.SeatTicket),
		tiers:       make(map[string]*models.Tier),
		orders:      make(map[string]*models.Order),
	}
}

func copyTicket(t *models.Ticket) *models.Ticket {
	clone := *t
	if t.LockedAt != nil {
		lockedAt := *t.LockedAt
		clone.LockedAt = &lockedAt
	}
	return &clone
}

func copySeatTicket(t *models.SeatTicket) *models.SeatTicket {
	clone := *t
	if t.ScannedAt != nil {
		scannedAt := *t.ScannedAt
		clone.ScannedAt = &scannedAt
	}
	return &clone
}

func (s *InMemoryStore) SaveTicket(ticket *models.Ticket) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.tickets[ticket.Number]; exists {
		return ErrDuplicate
	}
	s.tickets[ticket.Number] = copyTicket(ticket)
	return nil
}

func (s *InMemoryStore) GetTicket(number int) (*models.Ticket, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ticket, exists := s.tickets[number]
	if !exists {
		return nil, ErrNotFound
	}
	if !models.ValidTicketStatus(ticket.Status) {
		return nil, fmt.Errorf("%w: ticket #%d status %q", ErrCorruptRecord, number, ticket.Status)
	}
	return copyTicket(ticket), nil
}

func (s *InMemoryStore) ListTicketsByStatus(status models.TicketStatus) ([]*models.Ticket, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var tickets []*models.Ticket
	for _, ticket := range s.tickets {
		if ticket.Status == status {
			tickets = append(tickets, copyTicket(ticket))
		}
	}
	return tickets, nil
}

func (s *InMemoryStore) CompareAndSetTicketStatus(number int, expected models.TicketStatus, expectedHolder string, next models.TicketStatus, fields TicketFields) error {
	if !legalTransition(expected, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected, next)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	ticket, exists := s.tickets[number]
	if !exists {
		return ErrNotFound
	}
	if ticket.Status != expected || ticket.HolderSession != expectedHolder {
		return ErrConflict
	}

	ticket.Status = next
	ticket.HolderSession = fields.HolderSession
	ticket.LockedAt = fields.LockedAt
	ticket.OrderID = fields.OrderID
	return nil
}

func (s *InMemoryStore) ExpireTicketLocks(cutoff time.Time) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var expired int64
	for _, ticket := range s.tickets {
		if ticket.Status == models.TicketSoftLocked && ticket.LockedAt != nil && ticket.LockedAt.Before(cutoff) {
			ticket.Status = models.TicketAvailable
			ticket.HolderSession = ""
			ticket.LockedAt = nil
			ticket.OrderID = ""
			expired++
		}
	}
	return expired, nil
}

func (s *InMemoryStore) ResetTicket(number int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ticket, exists := s.tickets[number]
	if !exists {
		return ErrNotFound
	}
	if ticket.Status != models.TicketSold {
		return ErrConflict
	}

	ticket.Status = models.TicketAvailable
	ticket.HolderSession = ""
	ticket.LockedAt = nil
	ticket.OrderID = ""
	return nil
}

func (s *InMemoryStore) SaveSeatTicket(ticket *models.SeatTicket) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.seatTickets[ticket.TicketID]; exists {
		return ErrDuplicate
	}
	s.seatTickets[ticket.TicketID] = copySeatTicket(ticket)
	return nil
}

func (s *InMemoryStore) GetSeatTicket(ticketID string) (*models.SeatTicket, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ticket, exists := s.seatTickets[ticketID]
	if !exists {
		return nil, ErrNotFound
	}
	if !models.ValidSeatTicketStatus(ticket.Status) {
		return nil, fmt.Errorf("%w: seat ticket %s status %q", ErrCorruptRecord, ticketID, ticket.Status)
	}
	return copySeatTicket(ticket), nil
}

func (s *InMemoryStore) MarkSeatTicketUsed(ticketID string, scannedAt time.Time, scannedBy string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ticket, exists := s.seatTickets[ticketID]
	if !exists {
		return ErrNotFound
	}
	if ticket.Status != models.SeatTicketUnused {
		return ErrConflict
	}

	ticket.Status = models.SeatTicketUsed
	ticket.ScannedAt = &scannedAt
	ticket.ScannedBy = scannedBy
	return nil
}

func (s *InMemoryStore) SaveTier(tier *models.Tier) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if existing, ok := s.tiers[tier.Name]; ok {
		// Upsert keeps the sold counter; only pricing and capacity change.
		existing.Price = tier.Price
		existing.TotalTickets = tier.TotalTickets
		return nil
	}

	clone := *tier
	s.tiers[tier.Name] = &clone
	return nil
}

func (s *InMemoryStore) ListTierSummary() ([]models.TierSummary, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var summaries []models.TierSummary
	for _, tier := range s.tiers {
		summaries = append(summaries, models.TierSummary{
			Tier:      tier.Name,
			Price:     tier.Price,
			Total:     tier.TotalTickets,
			Sold:      tier.SoldTickets,
			Available: tier.Available(),
		})
	}
	return summaries, nil
}

func (s *InMemoryStore) IncrementTierSold(name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tier, exists := s.tiers[name]
	if !exists {
		return ErrNotFound
	}
	if tier.SoldTickets >= tier.TotalTickets {
		return ErrTierSoldOut
	}
	tier.SoldTickets++
	return nil
}

func (s *InMemoryStore) SaveOrder(order *models.Order) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.orders[order.OrderID]; exists {
		return ErrDuplicate
	}
	clone := *order
	s.orders[order.OrderID] = &clone
	return nil
}

func (s *InMemoryStore) GetOrder(orderID string) (*models.Order, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	order, exists := s.orders[orderID]
	if !exists {
		return nil, ErrNotFound
	}
	clone := *order
	return &clone, nil
}

func (s *InMemoryStore) ConfirmOrder(orderID string, confirmedAt time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	order, exists := s.orders[orderID]
	if !exists {
		return ErrNotFound
	}
	if order.Status != models.OrderPending {
		return ErrConflict
	}

	order.Status = models.OrderConfirmed
	order.ConfirmedAt = &confirmedAt
	return nil
}

func (s *InMemoryStore) HealthCheck() error { return nil }

func (s *InMemoryStore) Close() error { return nil }
