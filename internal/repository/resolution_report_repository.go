package repository

import (
	"context"

	"github.com/sistec/helpdesk-api/internal/domain"
)

// ResolutionReportRepository stores analyst resolution write-ups.
type ResolutionReportRepository interface {
	// Create inserts a report; a second report for the same ticket yields ErrDuplicate.
	Create(ctx context.Context, report *domain.ResolutionReport) error
	GetByTicket(ctx context.Context, ticketID int64) (*domain.ResolutionReport, error)
}

type resolutionReportRepository struct {
	db DBTX
}

func (r *resolutionReportRepository) Create(ctx context.Context, report *domain.ResolutionReport) error {
	const query = `
        INSERT INTO resolution_reports (ticket_id, opener_id, resolver_id, category, problem_type, report)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query,
		report.TicketID,
		report.OpenerID,
		report.ResolverID,
		report.Category,
		report.ProblemType,
		report.Report,
	).Scan(&report.ID, &report.CreatedAt)
	return translateError(err)
}

func (r *resolutionReportRepository) GetByTicket(ctx context.Context, ticketID int64) (*domain.ResolutionReport, error) {
	const query = `
        SELECT id, ticket_id, opener_id, resolver_id, category, problem_type, report, created_at
        FROM resolution_reports WHERE ticket_id=$1`
	var report domain.ResolutionReport
	err := r.db.QueryRow(ctx, query, ticketID).Scan(
		&report.ID,
		&report.TicketID,
		&report.OpenerID,
		&report.ResolverID,
		&report.Category,
		&report.ProblemType,
		&report.Report,
		&report.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return &report, nil
}
