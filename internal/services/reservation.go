package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-engine/internal/kafka"
	"ticket-engine/internal/logger"
	"ticket-engine/internal/models"
	"ticket-engine/internal/storage"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrAlreadyLocked  = errors.New("ticket is locked by another session")
	ErrAlreadySold    = errors.New("ticket is already sold")
	ErrNotLockHolder  = errors.New("lock is not held by this session")
	ErrLockExpired    = errors.New("lock has expired")
)

// ReservationService owns the numbered-ticket state machine. All transitions
// go through the store's conditional writes; the service itself holds no
// locks, so any number of instances can run against the same store.
type ReservationService struct {
	store    storage.Store
	producer *kafka.Producer
	log      *logger.Logger
	lockTTL  time.Duration

	now func() time.Time
}

func NewReservationService(store storage.Store, producer *kafka.Producer, lockTTL time.Duration, log *logger.Logger) *ReservationService {
	return &ReservationService{
		store:    store,
		producer: producer,
		log:      log,
		lockTTL:  lockTTL,
		now:      time.Now,
	}
}

// AcquireLock places a soft lock on an available ticket for sessionID. When
// the ticket is held by a stale lock, that one ticket is expired in place and
// the acquisition retried once, so buyers are not blocked on the sweeper
// interval.
func (s *ReservationService) AcquireLock(ctx context.Context, number int, sessionID string) (*models.Ticket, error) {
	now := s.now()

	err := s.casAcquire(number, sessionID, now)
	if errors.Is(err, storage.ErrConflict) {
		ticket, getErr := s.store.GetTicket(number)
		if getErr != nil {
			return nil, s.mapStoreErr(getErr, number)
		}

		switch {
		case ticket.Status == models.TicketSold:
			return nil, ErrAlreadySold
		case ticket.HolderSession == sessionID && !ticket.LockExpired(now, s.lockTTL):
			// Same session re-acquiring its own live lock is a no-op.
			return ticket, nil
		case ticket.LockExpired(now, s.lockTTL):
			if _, expErr := s.store.ExpireTicketLocks(now.Add(-s.lockTTL)); expErr != nil {
				return nil, fmt.Errorf("failed to expire stale lock: %w", expErr)
			}
			err = s.casAcquire(number, sessionID, now)
		default:
			return nil, ErrAlreadyLocked
		}
	}

	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Lost the retry race to another session.
			return nil, ErrAlreadyLocked
		}
		return nil, s.mapStoreErr(err, number)
	}

	s.log.LogTicket("ACQUIRE", fmt.Sprintf("#%d", number), fmt.Sprintf("Soft-locked by session %s until %s", sessionID, now.Add(s.lockTTL).Format(time.RFC3339)))
	return s.store.GetTicket(number)
}

func (s *ReservationService) casAcquire(number int, sessionID string, now time.Time) error {
	lockedAt := now
	return s.store.CompareAndSetTicketStatus(number, models.TicketAvailable, "", models.TicketSoftLocked, storage.TicketFields{
		HolderSession: sessionID,
		LockedAt:      &lockedAt,
	})
}

// ConfirmLock converts a held soft lock into a sale. The session must hold
// the lock and the lock must still be live; an expired lock is refused even
// if the sweeper has not reclaimed it yet.
func (s *ReservationService) ConfirmLock(ctx context.Context, number int, sessionID, orderID string) (*models.Ticket, error) {
	now := s.now()

	ticket, err := s.store.GetTicket(number)
	if err != nil {
		return nil, s.mapStoreErr(err, number)
	}

	switch {
	case ticket.Status == models.TicketSold:
		return nil, ErrAlreadySold
	case ticket.Status != models.TicketSoftLocked || ticket.HolderSession != sessionID:
		return nil, ErrNotLockHolder
	case ticket.LockExpired(now, s.lockTTL):
		return nil, ErrLockExpired
	}

	err = s.store.CompareAndSetTicketStatus(number, models.TicketSoftLocked, sessionID, models.TicketSold, storage.TicketFields{
		OrderID: orderID,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// The lock changed hands between the read and the write.
			current, getErr := s.store.GetTicket(number)
			if getErr == nil && current.Status == models.TicketSold {
				return nil, ErrAlreadySold
			}
			return nil, ErrNotLockHolder
		}
		return nil, s.mapStoreErr(err, number)
	}

	s.log.LogTicket("CONFIRM", fmt.Sprintf("#%d", number), fmt.Sprintf("Sold to session %s under order %s", sessionID, orderID))

	sold, err := s.store.GetTicket(number)
	if err != nil {
		return nil, s.mapStoreErr(err, number)
	}

	if pubErr := s.producer.PublishTicketEvent(&models.TicketEvent{
		Type:         "ticket.sold",
		TicketNumber: number,
		OrderID:      orderID,
		Ticket:       sold,
	}); pubErr != nil {
		s.log.Error("KAFKA", fmt.Sprintf("ticket.sold event for #%d not published: %v", number, pubErr))
	}

	return sold, nil
}

// ReleaseLock voluntarily returns a soft-locked ticket to the pool. Only the
// holding session may release.
func (s *ReservationService) ReleaseLock(ctx context.Context, number int, sessionID string) error {
	err := s.store.CompareAndSetTicketStatus(number, models.TicketSoftLocked, sessionID, models.TicketAvailable, storage.TicketFields{})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			ticket, getErr := s.store.GetTicket(number)
			if getErr != nil {
				return s.mapStoreErr(getErr, number)
			}
			if ticket.Status == models.TicketSold {
				return ErrAlreadySold
			}
			return ErrNotLockHolder
		}
		return s.mapStoreErr(err, number)
	}

	s.log.LogTicket("RELEASE", fmt.Sprintf("#%d", number), fmt.Sprintf("Released by session %s", sessionID))
	return nil
}

// ExpireStaleLocks reclaims every soft lock older than the TTL. Safe to run
// concurrently with acquisition; each reclaim is one conditional write.
func (s *ReservationService) ExpireStaleLocks(now time.Time) (int64, error) {
	expired, err := s.store.ExpireTicketLocks(now.Add(-s.lockTTL))
	if err != nil {
		return 0, fmt.Errorf("lock sweep failed: %w", err)
	}
	if expired > 0 {
		s.log.LogProcess("SWEEP", fmt.Sprintf("Reclaimed %d expired soft lock(s)", expired))
	}
	return expired, nil
}

// StartSweeper runs the periodic lock sweep until ctx is cancelled.
func (s *ReservationService) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.log.LogProcess("SWEEP", fmt.Sprintf("Lock sweeper running every %s (TTL %s)", interval, s.lockTTL))
		for {
			select {
			case <-ctx.Done():
				s.log.LogProcess("SWEEP", "Lock sweeper stopped")
				return
			case <-ticker.C:
				if _, err := s.ExpireStaleLocks(s.now()); err != nil {
					s.log.Error("PROCESS", fmt.Sprintf("Lock sweep error: %v", err))
				}
			}
		}
	}()
}

// ResetTicket is the administrative escape hatch: it returns a sold ticket to
// the pool, for refunds or operator error.
func (s *ReservationService) ResetTicket(ctx context.Context, number int) error {
	if err := s.store.ResetTicket(number); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("ticket #%d is not sold: %w", number, storage.ErrConflict)
		}
		return s.mapStoreErr(err, number)
	}
	s.log.LogSecurity("ADMIN_RESET", fmt.Sprintf("Ticket #%d reset to available", number))
	return nil
}

func (s *ReservationService) ListAvailable(ctx context.Context) ([]*models.Ticket, error) {
	return s.store.ListTicketsByStatus(models.TicketAvailable)
}

func (s *ReservationService) GetTicket(ctx context.Context, number int) (*models.Ticket, error) {
	ticket, err := s.store.GetTicket(number)
	if err != nil {
		return nil, s.mapStoreErr(err, number)
	}
	return ticket, nil
}

func (s *ReservationService) mapStoreErr(err error, number int) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrTicketNotFound
	}
	return fmt.Errorf("store error for ticket #%d: %w", number, err)
}
