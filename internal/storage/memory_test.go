package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-engine/internal/models"
)

func seedTicket(t *testing.T, store *InMemoryStore, number int) {
	t.Helper()
	require.NoError(t, store.SaveTicket(&models.Ticket{Number: number, Status: models.TicketAvailable}))
}

func TestCompareAndSetTicketStatus(t *testing.T) {
	store := NewInMemoryStore()
	seedTicket(t, store, 7)
	lockedAt := time.Now()

	err := store.CompareAndSetTicketStatus(7, models.TicketAvailable, "", models.TicketSoftLocked, TicketFields{
		HolderSession: "sess-a",
		LockedAt:      &lockedAt,
	})
	require.NoError(t, err)

	ticket, err := store.GetTicket(7)
	require.NoError(t, err)
	assert.Equal(t, models.TicketSoftLocked, ticket.Status)
	assert.Equal(t, "sess-a", ticket.HolderSession)

	// Second acquisition loses: the ticket is no longer available.
	err = store.CompareAndSetTicketStatus(7, models.TicketAvailable, "", models.TicketSoftLocked, TicketFields{HolderSession: "sess-b"})
	assert.ErrorIs(t, err, ErrConflict)

	// Confirm by the wrong holder loses even though the status matches.
	err = store.CompareAndSetTicketStatus(7, models.TicketSoftLocked, "sess-b", models.TicketSold, TicketFields{OrderID: "ord-1"})
	assert.ErrorIs(t, err, ErrConflict)

	err = store.CompareAndSetTicketStatus(7, models.TicketSoftLocked, "sess-a", models.TicketSold, TicketFields{OrderID: "ord-1"})
	require.NoError(t, err)

	ticket, err = store.GetTicket(7)
	require.NoError(t, err)
	assert.Equal(t, models.TicketSold, ticket.Status)
	assert.Equal(t, "ord-1", ticket.OrderID)
	assert.Empty(t, ticket.HolderSession)
}

func TestCompareAndSetRejectsIllegalEdges(t *testing.T) {
	store := NewInMemoryStore()
	seedTicket(t, store, 1)

	// available -> sold must go through soft_locked.
	err := store.CompareAndSetTicketStatus(1, models.TicketAvailable, "", models.TicketSold, TicketFields{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// sold is terminal.
	err = store.CompareAndSetTicketStatus(1, models.TicketSold, "", models.TicketAvailable, TicketFields{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompareAndSetMissingTicket(t *testing.T) {
	store := NewInMemoryStore()
	err := store.CompareAndSetTicketStatus(99, models.TicketAvailable, "", models.TicketSoftLocked, TicketFields{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	store := NewInMemoryStore()
	seedTicket(t, store, 42)

	const contenders = 50
	var wg sync.WaitGroup
	wins := make(chan string, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			lockedAt := time.Now()
			session := string(rune('a' + n%26))
			err := store.CompareAndSetTicketStatus(42, models.TicketAvailable, "", models.TicketSoftLocked, TicketFields{
				HolderSession: session,
				LockedAt:      &lockedAt,
			})
			if err == nil {
				wins <- session
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1, "exactly one contender may hold the lock")

	ticket, err := store.GetTicket(42)
	require.NoError(t, err)
	assert.Equal(t, winners[0], ticket.HolderSession)
}

func TestExpireTicketLocks(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Now()

	stale := now.Add(-15 * time.Minute)
	fresh := now.Add(-1 * time.Minute)

	require.NoError(t, store.SaveTicket(&models.Ticket{Number: 1, Status: models.TicketSoftLocked, HolderSession: "old", LockedAt: &stale}))
	require.NoError(t, store.SaveTicket(&models.Ticket{Number: 2, Status: models.TicketSoftLocked, HolderSession: "new", LockedAt: &fresh}))
	require.NoError(t, store.SaveTicket(&models.Ticket{Number: 3, Status: models.TicketSold}))

	expired, err := store.ExpireTicketLocks(now.Add(-10 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	t1, _ := store.GetTicket(1)
	assert.Equal(t, models.TicketAvailable, t1.Status)
	assert.Empty(t, t1.HolderSession)
	assert.Nil(t, t1.LockedAt)

	t2, _ := store.GetTicket(2)
	assert.Equal(t, models.TicketSoftLocked, t2.Status)

	t3, _ := store.GetTicket(3)
	assert.Equal(t, models.TicketSold, t3.Status)
}

func TestResetTicket(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.SaveTicket(&models.Ticket{Number: 5, Status: models.TicketSold, OrderID: "ord-5"}))

	require.NoError(t, store.ResetTicket(5))
	ticket, err := store.GetTicket(5)
	require.NoError(t, err)
	assert.Equal(t, models.TicketAvailable, ticket.Status)
	assert.Empty(t, ticket.OrderID)

	// Only sold tickets reset.
	assert.ErrorIs(t, store.ResetTicket(5), ErrConflict)
	assert.ErrorIs(t, store.ResetTicket(99), ErrNotFound)
}

func TestMarkSeatTicketUsed(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.SaveSeatTicket(&models.SeatTicket{TicketID: "abc", Tier: "vip", Status: models.SeatTicketUnused}))

	scannedAt := time.Now()
	require.NoError(t, store.MarkSeatTicketUsed("abc", scannedAt, "gate-1"))

	ticket, err := store.GetSeatTicket("abc")
	require.NoError(t, err)
	assert.Equal(t, models.SeatTicketUsed, ticket.Status)
	assert.Equal(t, "gate-1", ticket.ScannedBy)
	require.NotNil(t, ticket.ScannedAt)
	assert.True(t, ticket.ScannedAt.Equal(scannedAt))

	// A second mark loses and leaves the original record untouched.
	err = store.MarkSeatTicketUsed("abc", time.Now(), "gate-2")
	assert.ErrorIs(t, err, ErrConflict)

	ticket, _ = store.GetSeatTicket("abc")
	assert.Equal(t, "gate-1", ticket.ScannedBy)
}

func TestIncrementTierSold(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.SaveTier(&models.Tier{Name: "vip", Price: 150, TotalTickets: 2}))

	require.NoError(t, store.IncrementTierSold("vip"))
	require.NoError(t, store.IncrementTierSold("vip"))
	assert.ErrorIs(t, store.IncrementTierSold("vip"), ErrTierSoldOut)
	assert.ErrorIs(t, store.IncrementTierSold("nope"), ErrNotFound)

	summaries, err := store.ListTierSummary()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 0, summaries[0].Available)
	assert.Equal(t, 2, summaries[0].Sold)
}

func TestSaveTierUpsertKeepsSoldCount(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.SaveTier(&models.Tier{Name: "ga", Price: 50, TotalTickets: 10}))
	require.NoError(t, store.IncrementTierSold("ga"))

	require.NoError(t, store.SaveTier(&models.Tier{Name: "ga", Price: 60, TotalTickets: 20}))

	summaries, err := store.ListTierSummary()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, float64(60), summaries[0].Price)
	assert.Equal(t, 20, summaries[0].Total)
	assert.Equal(t, 1, summaries[0].Sold)
}

func TestConfirmOrderOnce(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.SaveOrder(&models.Order{OrderID: "ord-1", TicketNumber: 1, Status: models.OrderPending, CreatedAt: time.Now()}))

	require.NoError(t, store.ConfirmOrder("ord-1", time.Now()))
	assert.ErrorIs(t, store.ConfirmOrder("ord-1", time.Now()), ErrConflict)
	assert.ErrorIs(t, store.ConfirmOrder("missing", time.Now()), ErrNotFound)
}

func TestGetTicketReturnsCopy(t *testing.T) {
	store := NewInMemoryStore()
	seedTicket(t, store, 1)

	ticket, err := store.GetTicket(1)
	require.NoError(t, err)
	ticket.Status = models.TicketSold

	again, err := store.GetTicket(1)
	require.NoError(t, err)
	assert.Equal(t, models.TicketAvailable, again.Status, "mutating a returned ticket must not touch stored state")
}
