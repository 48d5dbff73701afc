package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sistec/helpdesk-api/internal/domain"
)

// TicketSort selects the listing order.
type TicketSort int

const (
	// SortNewest lists most recently opened tickets first.
	SortNewest TicketSort = iota
	// SortQueue lists by priority (urgent first), then oldest first.
	SortQueue
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	UserID          *int64
	Statuses        []domain.TicketStatus
	ApprovedBefore  *time.Time
	ForwardedBefore *time.Time
	Sort            TicketSort
	Limit           int
	Offset          int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	// GetForUpdate reads the ticket and, inside a transaction, locks its row
	// until commit or rollback.
	GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error)
	// UpdateStatus moves the ticket from expected to next and writes stamps,
	// failing with ErrStatusConflict when the stored status is not expected.
	UpdateStatus(ctx context.Context, id int64, expected, next domain.TicketStatus, stamps domain.StatusStamps) error
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListRecentByUser(ctx context.Context, userID, excludeID int64, limit int) ([]domain.Ticket, error)
}

type ticketRepository struct {
	db DBTX
}

const ticketColumns = `id, user_id, priority, category, problem_type, description, title, status,
               opened_at, approved_at, rejection_reason, forwarded_at, escalated_at,
               resolved_at, resolver_id, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (user_id, priority, category, problem_type, description, title, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, opened_at`
	err := r.db.QueryRow(ctx, query,
		ticket.UserID,
		ticket.Priority,
		ticket.Category,
		ticket.ProblemType,
		ticket.Description,
		ticket.Title,
		ticket.Status,
	).Scan(&ticket.ID, &ticket.OpenedAt)
	return translateError(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, translateError(err)
	}
	return ticket, nil
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, id int64, expected, next domain.TicketStatus, stamps domain.StatusStamps) error {
	const query = `
        UPDATE tickets SET status=$1,
            approved_at=COALESCE($2, approved_at),
            rejection_reason=COALESCE($3, rejection_reason),
            forwarded_at=COALESCE($4, forwarded_at),
            escalated_at=COALESCE($5, escalated_at),
            resolved_at=COALESCE($6, resolved_at),
            resolver_id=COALESCE($7, resolver_id),
            closed_at=COALESCE($8, closed_at)
        WHERE id=$9 AND status=$10`
	cmd, err := r.db.Exec(ctx, query,
		next,
		stamps.ApprovedAt,
		stamps.RejectionReason,
		stamps.ForwardedAt,
		stamps.EscalatedAt,
		stamps.ResolvedAt,
		stamps.ResolverID,
		stamps.ClosedAt,
		id,
		expected,
	)
	if err != nil {
		return translateError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *ticketRepository) ListRecentByUser(ctx context.Context, userID, excludeID int64, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 5
	}
	query := `SELECT ` + ticketColumns + `
             FROM tickets WHERE user_id=$1 AND id<>$2
             ORDER BY opened_at DESC, id DESC LIMIT $3`
	rows, err := r.db.Query(ctx, query, userID, excludeID, limit)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ApprovedBefore != nil {
		args = append(args, *filter.ApprovedBefore)
		clauses = append(clauses, fmt.Sprintf("approved_at <= $%d", len(args)))
	}
	if filter.ForwardedBefore != nil {
		args = append(args, *filter.ForwardedBefore)
		clauses = append(clauses, fmt.Sprintf("forwarded_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	order := "opened_at DESC, id DESC"
	if filter.Sort == SortQueue {
		order = "priority DESC, opened_at ASC, id ASC"
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), order, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.UserID,
		&ticket.Priority,
		&ticket.Category,
		&ticket.ProblemType,
		&ticket.Description,
		&ticket.Title,
		&ticket.Status,
		&ticket.OpenedAt,
		&ticket.ApprovedAt,
		&ticket.RejectionReason,
		&ticket.ForwardedAt,
		&ticket.EscalatedAt,
		&ticket.ResolvedAt,
		&ticket.ResolverID,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
