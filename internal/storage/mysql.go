package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ticket-engine/internal/config"
	"ticket-engine/internal/logger"
	"ticket-engine/internal/models"

	_ "github.com/go-sql-driver/mysql"
)

type MySQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

func NewMySQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*MySQLStore, error) {
	log.LogDatabase("CONNECT", "mysql", fmt.Sprintf("Connecting to MySQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open MySQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	// Test connection
	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping MySQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &MySQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "mysql", "MySQL connection established and tables initialized")
	return store, nil
}

func (s *MySQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "mysql", "Creating ticket engine tables if not exists")

	queries := []string{
		`CREATE TABLE IF NOT EXISTS tickets (
			number INT PRIMARY KEY,
			status VARCHAR(20) NOT NULL,
			holder_session VARCHAR(64) NOT NULL DEFAULT '',
			locked_at TIMESTAMP NULL DEFAULT NULL,
			order_id VARCHAR(64) NOT NULL DEFAULT '',
			INDEX idx_status (status),
			INDEX idx_locked_at (locked_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS seat_tickets (
			ticket_id VARCHAR(36) PRIMARY KEY,
			tier VARCHAR(50) NOT NULL,
			status VARCHAR(20) NOT NULL,
			scanned_at TIMESTAMP NULL DEFAULT NULL,
			scanned_by VARCHAR(64) NOT NULL DEFAULT '',
			buyer_name VARCHAR(255) NOT NULL DEFAULT '',
			buyer_email VARCHAR(255) NOT NULL DEFAULT '',
			order_id VARCHAR(64) NOT NULL DEFAULT '',
			payment_amount DECIMAL(10,2) NOT NULL DEFAULT 0,
			issued_at TIMESTAMP NULL DEFAULT NULL,
			INDEX idx_tier (tier),
			INDEX idx_seat_status (status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS tiers (
			name VARCHAR(50) PRIMARY KEY,
			price DECIMAL(10,2) NOT NULL,
			total_tickets INT NOT NULL,
			sold_tickets INT NOT NULL DEFAULT 0
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS orders (
			order_id VARCHAR(64) PRIMARY KEY,
			ticket_number INT NOT NULL,
			buyer_name VARCHAR(255) NOT NULL DEFAULT '',
			buyer_email VARCHAR(255) NOT NULL DEFAULT '',
			buyer_phone VARCHAR(50) NOT NULL DEFAULT '',
			transaction_id VARCHAR(128) NOT NULL DEFAULT '',
			amount DECIMAL(10,2) NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			confirmed_at TIMESTAMP NULL DEFAULT NULL,
			INDEX idx_ticket_number (ticket_number),
			INDEX idx_order_status (status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	s.log.LogDatabase("SUCCESS", "mysql", "Ticket engine tables ready")
	return nil
}

func (s *MySQLStore) SaveTicket(ticket *models.Ticket) error {
	s.log.LogDatabase("INSERT", "mysql", fmt.Sprintf("Saving ticket #%d", ticket.Number))

	query := `
    INSERT INTO tickets (number, status, holder_session, locked_at, order_id)
    VALUES (?, ?, ?, ?, ?)
    `

	_, err := s.db.Exec(query,
		ticket.Number, ticket.Status, ticket.HolderSession, ticket.LockedAt, ticket.OrderID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			return ErrDuplicate
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save ticket #%d: %s", ticket.Number, err.Error()))
		return fmt.Errorf("failed to save ticket: %w", err)
	}

	return nil
}

func (s *MySQLStore) GetTicket(number int) (*models.Ticket, error) {
	query := `
    SELECT number, status, holder_session, locked_at, order_id
    FROM tickets WHERE number = ?
    `

	ticket := &models.Ticket{}
	err := s.db.QueryRow(query, number).Scan(
		&ticket.Number, &ticket.Status, &ticket.HolderSession, &ticket.LockedAt, &ticket.OrderID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			s.log.LogDatabase("NOT_FOUND", "mysql", fmt.Sprintf("Ticket #%d not found", number))
			return nil, ErrNotFound
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get ticket #%d: %s", number, err.Error()))
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	if !models.ValidTicketStatus(ticket.Status) {
		s.log.Error("DATABASE", fmt.Sprintf("Ticket #%d carries unknown status %q", number, ticket.Status))
		return nil, fmt.Errorf("%w: ticket #%d status %q", ErrCorruptRecord, number, ticket.Status)
	}

	return ticket, nil
}

func (s *MySQLStore) ListTicketsByStatus(status models.TicketStatus) ([]*models.Ticket, error) {
	query := `
    SELECT number, status, holder_session, locked_at, order_id
    FROM tickets WHERE status = ? ORDER BY number
    `

	rows, err := s.db.Query(query, status)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to list tickets: %s", err.Error()))
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*models.Ticket
	for rows.Next() {
		ticket := &models.Ticket{}
		err := rows.Scan(&ticket.Number, &ticket.Status, &ticket.HolderSession, &ticket.LockedAt, &ticket.OrderID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, ticket)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tickets, nil
}

// CompareAndSetTicketStatus is one conditional UPDATE. The WHERE clause on
// the current status is what serializes competing transitions; there is no
// application-level mutex anywhere above this.
func (s *MySQLStore) CompareAndSetTicketStatus(number int, expected models.TicketStatus, expectedHolder string, next models.TicketStatus, fields TicketFields) error {
	if !legalTransition(expected, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected, next)
	}

	query := `
    UPDATE tickets
    SET status = ?, holder_session = ?, locked_at = ?, order_id = ?
    WHERE number = ? AND status = ? AND holder_session = ?
    `

	result, err := s.db.Exec(query,
		next, fields.HolderSession, fields.LockedAt, fields.OrderID, number, expected, expectedHolder,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to update ticket #%d: %s", number, err.Error()))
		return fmt.Errorf("failed to update ticket: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		// Either the ticket is missing or someone else won the race.
		if _, err := s.GetTicket(number); err != nil {
			return err
		}
		s.log.LogDatabase("CONFLICT", "mysql",
			fmt.Sprintf("Ticket #%d no longer %s, compare-and-set lost", number, expected))
		return ErrConflict
	}

	s.log.LogDatabase("UPDATE", "mysql", fmt.Sprintf("Ticket #%d: %s -> %s", number, expected, next))
	return nil
}

func (s *MySQLStore) ExpireTicketLocks(cutoff time.Time) (int64, error) {
	query := `
    UPDATE tickets
    SET status = ?, holder_session = '', locked_at = NULL, order_id = ''
    WHERE status = ? AND locked_at < ?
    `

	result, err := s.db.Exec(query, models.TicketAvailable, models.TicketSoftLocked, cutoff)
	if err != nil {
		s.log.Error("DATABASE", "Failed to expire stale locks: "+err.Error())
		return 0, fmt.Errorf("failed to expire stale locks: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected > 0 {
		s.log.LogDatabase("EXPIRE", "mysql", fmt.Sprintf("Released %d stale ticket locks", affected))
	}
	return affected, nil
}

func (s *MySQLStore) ResetTicket(number int) error {
	s.log.LogDatabase("RESET", "mysql", fmt.Sprintf("Administrative reset of ticket #%d", number))

	query := `
    UPDATE tickets
    SET status = ?, holder_session = '', locked_at = NULL, order_id = ''
    WHERE number = ? AND status = ?
    `

	result, err := s.db.Exec(query, models.TicketAvailable, number, models.TicketSold)
	if err != nil {
		return fmt.Errorf("failed to reset ticket: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetTicket(number); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (s *MySQLStore) SaveSeatTicket(ticket *models.SeatTicket) error {
	s.log.LogDatabase("INSERT", "mysql", fmt.Sprintf("Saving seat ticket %s (%s)", ticket.TicketID, ticket.Tier))

	query := `
    INSERT INTO seat_tickets (
        ticket_id, tier, status, scanned_at, scanned_by,
        buyer_name, buyer_email, order_id, payment_amount, issued_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	_, err := s.db.Exec(query,
		ticket.TicketID, ticket.Tier, ticket.Status, ticket.ScannedAt, ticket.ScannedBy,
		ticket.BuyerName, ticket.BuyerEmail, ticket.OrderID, ticket.PaymentAmount, ticket.IssuedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			return ErrDuplicate
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save seat ticket %s: %s", ticket.TicketID, err.Error()))
		return fmt.Errorf("failed to save seat ticket: %w", err)
	}

	return nil
}

func (s *MySQLStore) GetSeatTicket(ticketID string) (*models.SeatTicket, error) {
	query := `
    SELECT ticket_id, tier, status, scanned_at, scanned_by,
           buyer_name, buyer_email, order_id, payment_amount, issued_at
    FROM seat_tickets WHERE ticket_id = ?
    `

	ticket := &models.SeatTicket{}
	err := s.db.QueryRow(query, ticketID).Scan(
		&ticket.TicketID, &ticket.Tier, &ticket.Status, &ticket.ScannedAt, &ticket.ScannedBy,
		&ticket.BuyerName, &ticket.BuyerEmail, &ticket.OrderID, &ticket.PaymentAmount, &ticket.IssuedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			s.log.LogDatabase("NOT_FOUND", "mysql", fmt.Sprintf("Seat ticket %s not found", ticketID))
			return nil, ErrNotFound
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get seat ticket %s: %s", ticketID, err.Error()))
		return nil, fmt.Errorf("failed to get seat ticket: %w", err)
	}

	if !models.ValidSeatTicketStatus(ticket.Status) {
		s.log.Error("DATABASE", fmt.Sprintf("Seat ticket %s carries unknown status %q", ticketID, ticket.Status))
		return nil, fmt.Errorf("%w: seat ticket %s status %q", ErrCorruptRecord, ticketID, ticket.Status)
	}

	return ticket, nil
}

func (s *MySQLStore) MarkSeatTicketUsed(ticketID string, scannedAt time.Time, scannedBy string) error {
	query := `
    UPDATE seat_tickets
    SET status = ?, scanned_at = ?, scanned_by = ?
    WHERE ticket_id = ? AND status = ?
    `

	result, err := s.db.Exec(query,
		models.SeatTicketUsed, scannedAt, scannedBy, ticketID, models.SeatTicketUnused,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to mark seat ticket %s used: %s", ticketID, err.Error()))
		return fmt.Errorf("failed to mark seat ticket used: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetSeatTicket(ticketID); err != nil {
			return err
		}
		s.log.LogDatabase("CONFLICT", "mysql",
			fmt.Sprintf("Seat ticket %s not unused, compare-and-set lost", ticketID))
		return ErrConflict
	}

	s.log.LogDatabase("UPDATE", "mysql", fmt.Sprintf("Seat ticket %s marked used by %s", ticketID, scannedBy))
	return nil
}

func (s *MySQLStore) SaveTier(tier *models.Tier) error {
	s.log.LogDatabase("INSERT", "mysql", fmt.Sprintf("Saving tier %s", tier.Name))

	query := `
    INSERT INTO tiers (name, price, total_tickets, sold_tickets)
    VALUES (?, ?, ?, ?)
    ON DUPLICATE KEY UPDATE price = VALUES(price), total_tickets = VALUES(total_tickets)
    `

	_, err := s.db.Exec(query, tier.Name, tier.Price, tier.TotalTickets, tier.SoldTickets)
	if err != nil {
		return fmt.Errorf("failed to save tier: %w", err)
	}
	return nil
}

func (s *MySQLStore) ListTierSummary() ([]models.TierSummary, error) {
	query := `SELECT name, price, total_tickets, sold_tickets FROM tiers ORDER BY price DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		s.log.Error("DATABASE", "Failed to list tiers: "+err.Error())
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}
	defer rows.Close()

	var summaries []models.TierSummary
	for rows.Next() {
		var tier models.Tier
		if err := rows.Scan(&tier.Name, &tier.Price, &tier.TotalTickets, &tier.SoldTickets); err != nil {
			return nil, fmt.Errorf("failed to scan tier: %w", err)
		}
		summaries = append(summaries, models.TierSummary{
			Tier:      tier.Name,
			Price:     tier.Price,
			Total:     tier.TotalTickets,
			Sold:      tier.SoldTickets,
			Available: tier.Available(),
		})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return summaries, nil
}

func (s *MySQLStore) IncrementTierSold(name string) error {
	query := `
    UPDATE tiers SET sold_tickets = sold_tickets + 1
    WHERE name = ? AND sold_tickets < total_tickets
    `

	result, err := s.db.Exec(query, name)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to increment tier %s: %s", name, err.Error()))
		return fmt.Errorf("failed to increment tier sold count: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := s.db.QueryRow(`SELECT 1 FROM tiers WHERE name = ?`, name).Scan(&exists); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return fmt.Errorf("failed to check tier: %w", err)
		}
		return ErrTierSoldOut
	}

	s.log.LogDatabase("UPDATE", "mysql", fmt.Sprintf("Tier %s sold count incremented", name))
	return nil
}

func (s *MySQLStore) SaveOrder(order *models.Order) error {
	s.log.LogDatabase("INSERT", "mysql", fmt.Sprintf("Saving order %s for ticket #%d", order.OrderID, order.TicketNumber))

	query := `
    INSERT INTO orders (
        order_id, ticket_number, buyer_name, buyer_email, buyer_phone,
        transaction_id, amount, status, created_at, confirmed_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	_, err := s.db.Exec(query,
		order.OrderID, order.TicketNumber, order.BuyerName, order.BuyerEmail, order.BuyerPhone,
		order.TransactionID, order.Amount, order.Status, order.CreatedAt, order.ConfirmedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			return ErrDuplicate
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save order %s: %s", order.OrderID, err.Error()))
		return fmt.Errorf("failed to save order: %w", err)
	}

	return nil
}

func (s *MySQLStore) GetOrder(orderID string) (*models.Order, error) {
	query := `
    SELECT order_id, ticket_number, buyer_name, buyer_email, buyer_phone,
           transaction_id, amount, status, created_at, confirmed_at
    FROM orders WHERE order_id = ?
    `

	order := &models.Order{}
	err := s.db.QueryRow(query, orderID).Scan(
		&order.OrderID, &order.TicketNumber, &order.BuyerName, &order.BuyerEmail, &order.BuyerPhone,
		&order.TransactionID, &order.Amount, &order.Status, &order.CreatedAt, &order.ConfirmedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get order %s: %s", orderID, err.Error()))
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return order, nil
}

func (s *MySQLStore) ConfirmOrder(orderID string, confirmedAt time.Time) error {
	query := `
    UPDATE orders SET status = ?, confirmed_at = ?
    WHERE order_id = ? AND status = ?
    `

	result, err := s.db.Exec(query, models.OrderConfirmed, confirmedAt, orderID, models.OrderPending)
	if err != nil {
		return fmt.Errorf("failed to confirm order: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetOrder(orderID); err != nil {
			return err
		}
		return ErrConflict
	}

	s.log.LogDatabase("UPDATE", "mysql", fmt.Sprintf("Order %s confirmed", orderID))
	return nil
}

func (s *MySQLStore) HealthCheck() error {
	return s.db.Ping()
}

func (s *MySQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "mysql", "Closing MySQL connection")
	return s.db.Close()
}
