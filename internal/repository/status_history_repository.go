package repository

import (
	"context"

	"github.com/sistec/helpdesk-api/internal/domain"
)

// StatusHistoryRepository stores the append-only status trail.
type StatusHistoryRepository interface {
	Append(ctx context.Context, change *domain.StatusChange) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.StatusChange, error)
}

type statusHistoryRepository struct {
	db DBTX
}

func (r *statusHistoryRepository) Append(ctx context.Context, change *domain.StatusChange) error {
	const query = `
        INSERT INTO ticket_status_history (ticket_id, status, changed_by)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query,
		change.TicketID,
		change.Status,
		change.ChangedBy,
	).Scan(&change.ID, &change.CreatedAt)
	return translateError(err)
}

func (r *statusHistoryRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.StatusChange, error) {
	const query = `
        SELECT id, ticket_id, status, changed_by, created_at
        FROM ticket_status_history WHERE ticket_id=$1 ORDER BY id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var result []domain.StatusChange
	for rows.Next() {
		var change domain.StatusChange
		if err := rows.Scan(
			&change.ID,
			&change.TicketID,
			&change.Status,
			&change.ChangedBy,
			&change.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, change)
	}
	return result, rows.Err()
}
