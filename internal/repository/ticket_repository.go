package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uplink-support/ticketd/internal/domain"
)

// Sentinel errors let the service branch on store outcomes without
// knowing the driver.
var (
	ErrNotFound         = errors.New("ticket not found")
	ErrDuplicateActive  = errors.New("user already has an active ticket")
	ErrDuplicateChannel = errors.New("channel already bound to a ticket")
	ErrStaleStatus      = errors.New("ticket status changed since read")
)

const pgUniqueViolation = "23505"

// TicketRepository encapsulates ticket persistence. The lifecycle
// service is the only caller that issues writes.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error)
	GetActiveByUser(ctx context.Context, userID string) (*domain.Ticket, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Ticket, error)
	ListStaleOpen(ctx context.Context, olderThan time.Time) ([]domain.Ticket, error)
	UpdateStatus(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error
	CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, user_id, user_name, channel_id, reason, description,
               status, close_reason, created_at, paused_at, paused_by, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, user_id, user_name, channel_id, reason, description, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.ID,
		ticket.UserID,
		ticket.UserName,
		ticket.ChannelID,
		ticket.Reason,
		ticket.Description,
		ticket.Status,
	).Scan(&ticket.CreatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE channel_id=$1`
	return r.fetchSingle(ctx, query, channelID)
}

func (r *ticketRepository) GetActiveByUser(ctx context.Context, userID string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
        FROM tickets WHERE user_id=$1 AND status IN ('OPEN','PAUSED')
        ORDER BY created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, userID)
}

func (r *ticketRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT ` + ticketColumns + `
        FROM tickets WHERE user_id=$1 ORDER BY created_at ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListStaleOpen(ctx context.Context, olderThan time.Time) ([]domain.Ticket, error) {
	// Paused tickets are deliberately excluded: pausing exempts a
	// ticket from idle expiry.
	const query = `SELECT ` + ticketColumns + `
        FROM tickets WHERE status='OPEN' AND created_at < $1
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// UpdateStatus writes the transition only when the row still holds the
// status the caller read. A concurrent transition (user close racing a
// sweep close) surfaces as ErrStaleStatus so the service can re-read
// and decide instead of losing the update.
func (r *ticketRepository) UpdateStatus(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error {
	const query = `
        UPDATE tickets SET status=$1, close_reason=$2, paused_at=$3, paused_by=$4, closed_at=$5
        WHERE id=$6 AND status=$7`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Status,
		ticket.CloseReason,
		ticket.PausedAt,
		ticket.PausedBy,
		ticket.ClosedAt,
		ticket.ID,
		expected,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, ticket.ID); err != nil {
			return err
		}
		return ErrStaleStatus
	}
	return nil
}

func (r *ticketRepository) CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error) {
	const query = `SELECT status, COUNT(*) FROM tickets GROUP BY status`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TicketStatus]int)
	for rows.Next() {
		var status domain.TicketStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.UserID,
		&ticket.UserName,
		&ticket.ChannelID,
		&ticket.Reason,
		&ticket.Description,
		&ticket.Status,
		&ticket.CloseReason,
		&ticket.CreatedAt,
		&ticket.PausedAt,
		&ticket.PausedBy,
		&ticket.ClosedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.UserID,
			&ticket.UserName,
			&ticket.ChannelID,
			&ticket.Reason,
			&ticket.Description,
			&ticket.Status,
			&ticket.CloseReason,
			&ticket.CreatedAt,
			&ticket.PausedAt,
			&ticket.PausedBy,
			&ticket.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

// mapUniqueViolation translates Postgres unique violations into the
// package sentinels. The partial index on active tickets is the
// store-level guard for the one-active-ticket-per-user invariant, so
// two racing inserts cannot both land.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case "uq_tickets_active_user":
		return ErrDuplicateActive
	case "uq_tickets_channel":
		return ErrDuplicateChannel
	}
	return err
}
