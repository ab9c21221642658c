package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-engine/internal/kafka"
	"ticket-engine/internal/logger"
	"ticket-engine/internal/models"
	"ticket-engine/internal/storage"
)

func newTestReservation(t *testing.T, ttl time.Duration) (*ReservationService, *storage.InMemoryStore) {
	t.Helper()
	log := logger.NewLogger()
	producer, err := kafka.NewProducer(nil, true, log)
	require.NoError(t, err)
	store := storage.NewInMemoryStore()
	return NewReservationService(store, producer, ttl, log), store
}

func seedAvailable(t *testing.T, store *storage.InMemoryStore, numbers ...int) {
	t.Helper()
	for _, n := range numbers {
		require.NoError(t, store.SaveTicket(&models.Ticket{Number: n, Status: models.TicketAvailable}))
	}
}

func TestAcquireConfirmLifecycle(t *testing.T) {
	svc, store := newTestReservation(t, 10*time.Minute)
	seedAvailable(t, store, 42)
	ctx := context.Background()

	ticket, err := svc.AcquireLock(ctx, 42, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, models.TicketSoftLocked, ticket.Status)
	assert.Equal(t, "sess-a", ticket.HolderSession)
	require.NotNil(t, ticket.LockedAt)

	sold, err := svc.ConfirmLock(ctx, 42, "sess-a", "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketSold, sold.Status)
	assert.Equal(t, "ord-1", sold.OrderID)

	// sold is terminal for every normal operation.
	_, err = svc.AcquireLock(ctx, 42, "sess-b")
	assert.ErrorIs(t, err, ErrAlreadySold)
	_, err = svc.ConfirmLock(ctx, 42, "sess-a", "ord-2")
	assert.ErrorIs(t, err, ErrAlreadySold)
	assert.ErrorIs(t, svc.ReleaseLock(ctx, 42, "sess-a"), ErrAlreadySold)
}

func TestAcquireContention(t *testing.T) {
	svc, store := newTestReservation(t, 10*time.Minute)
	seedAvailable(t, store, 1)
	ctx := context.Background()

	_, err := svc.AcquireLock(ctx, 1, "sess-a")
	require.NoError(t, err)

	_, err = svc.AcquireLock(ctx, 1, "sess-b")
	assert.ErrorIs(t, err, ErrAlreadyLocked)

	// The holder re-acquiring its own live lock is a no-op, not an error.
	ticket, err := svc.AcquireLock(ctx, 1, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, "sess-a", ticket.HolderSession)
}

func TestAcquireUnknownTicket(t *testing.T) {
	svc, _ := newTestReservation(t, 10*time.Minute)
	_, err := svc.AcquireLock(context.Background(), 404, "sess-a")
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestConfirmRequiresLockHolder(t *testing.T) {
	svc, store := newTestReservation(t, 10*time.Minute)
	seedAvailable(t, store, 1, 2)
	ctx := context.Background()

	_, err := svc.ConfirmLock(ctx, 1, "sess-a", "ord-1")
	assert.ErrorIs(t, err, ErrNotLockHolder, "confirming an unlocked ticket")

	_, err = svc.AcquireLock(ctx, 2, "sess-a")
	require.NoError(t, err)
	_, err = svc.ConfirmLock(ctx, 2, "sess-b", "ord-1")
	assert.ErrorIs(t, err, ErrNotLockHolder, "confirming another session's lock")
}

func TestLockExpiryBoundary(t *testing.T) {
	ttl := 10 * time.Minute
	svc, store := newTestReservation(t, ttl)
	seedAvailable(t, store, 42)
	ctx := context.Background()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }

	_, err := svc.AcquireLock(ctx, 42, "sess-a")
	require.NoError(t, err)

	// One second before expiry the sweep touches nothing.
	expired, err := svc.ExpireStaleLocks(t0.Add(ttl - time.Second))
	require.NoError(t, err)
	assert.Zero(t, expired)

	ticket, _ := store.GetTicket(42)
	assert.Equal(t, models.TicketSoftLocked, ticket.Status)

	// One second past expiry the lock is reclaimed.
	expired, err = svc.ExpireStaleLocks(t0.Add(ttl + time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	ticket, _ = store.GetTicket(42)
	assert.Equal(t, models.TicketAvailable, ticket.Status)
	assert.Empty(t, ticket.HolderSession)
	assert.Nil(t, ticket.LockedAt)
}

func TestAcquireReclaimsStaleLockInline(t *testing.T) {
	ttl := 10 * time.Minute
	svc, store := newTestReservation(t, ttl)
	seedAvailable(t, store, 7)
	ctx := context.Background()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }
	_, err := svc.AcquireLock(ctx, 7, "sess-a")
	require.NoError(t, err)

	// Well past the TTL, a new session takes the ticket without waiting for
	// the background sweep.
	svc.now = func() time.Time { return t0.Add(ttl + time.Minute) }
	ticket, err := svc.AcquireLock(ctx, 7, "sess-b")
	require.NoError(t, err)
	assert.Equal(t, "sess-b", ticket.HolderSession)
	assert.Equal(t, models.TicketSoftLocked, ticket.Status)
}

func TestConfirmRefusesExpiredLock(t *testing.T) {
	ttl := 10 * time.Minute
	svc, store := newTestReservation(t, ttl)
	seedAvailable(t, store, 7)
	ctx := context.Background()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }
	_, err := svc.AcquireLock(ctx, 7, "sess-a")
	require.NoError(t, err)

	svc.now = func() time.Time { return t0.Add(ttl + time.Second) }
	_, err = svc.ConfirmLock(ctx, 7, "sess-a", "ord-1")
	assert.ErrorIs(t, err, ErrLockExpired)
}

func TestReleaseLock(t *testing.T) {
	svc, store := newTestReservation(t, 10*time.Minute)
	seedAvailable(t, store, 3)
	ctx := context.Background()

	_, err := svc.AcquireLock(ctx, 3, "sess-a")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ReleaseLock(ctx, 3, "sess-b"), ErrNotLockHolder)
	require.NoError(t, svc.ReleaseLock(ctx, 3, "sess-a"))

	ticket, _ := store.GetTicket(3)
	assert.Equal(t, models.TicketAvailable, ticket.Status)

	// The ticket is immediately acquirable by someone else.
	_, err = svc.AcquireLock(ctx, 3, "sess-b")
	require.NoError(t, err)
}

func TestResetTicketService(t *testing.T) {
	svc, store := newTestReservation(t, 10*time.Minute)
	seedAvailable(t, store, 9)
	ctx := context.Background()

	_, err := svc.AcquireLock(ctx, 9, "sess-a")
	require.NoError(t, err)
	_, err = svc.ConfirmLock(ctx, 9, "sess-a", "ord-9")
	require.NoError(t, err)

	require.NoError(t, svc.ResetTicket(ctx, 9))
	ticket, _ := store.GetTicket(9)
	assert.Equal(t, models.TicketAvailable, ticket.Status)

	// Reset only applies to sold tickets.
	err = svc.ResetTicket(ctx, 9)
	assert.ErrorIs(t, err, storage.ErrConflict)
}
