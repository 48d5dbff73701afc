package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sistec/helpdesk-api/internal/domain"
)

// AIResponseRepository stores AI interactions and audit notes.
type AIResponseRepository interface {
	Create(ctx context.Context, resp *domain.AIResponse) error
	LatestByType(ctx context.Context, ticketID int64, kind domain.AIResponseType) (*domain.AIResponse, error)
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.AIResponse, error)
	// RecordFeedback sets feedback once; a record that already carries
	// feedback yields ErrDuplicate.
	RecordFeedback(ctx context.Context, id int64, feedback domain.SolutionFeedback, at time.Time) error
}

type aiResponseRepository struct {
	db DBTX
}

const aiResponseColumns = `id, ticket_id, type, verdict, content, author_id, feedback, feedback_at, created_at`

func (r *aiResponseRepository) Create(ctx context.Context, resp *domain.AIResponse) error {
	verdict, err := resp.VerdictJSON()
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	const query = `
        INSERT INTO ai_responses (ticket_id, type, verdict, content, author_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	err = r.db.QueryRow(ctx, query,
		resp.TicketID,
		resp.Type,
		verdict,
		domain.Truncate(resp.Content, domain.MaxStoredResponseLength),
		resp.AuthorID,
	).Scan(&resp.ID, &resp.CreatedAt)
	return translateError(err)
}

func (r *aiResponseRepository) LatestByType(ctx context.Context, ticketID int64, kind domain.AIResponseType) (*domain.AIResponse, error) {
	query := `SELECT ` + aiResponseColumns + `
        FROM ai_responses WHERE ticket_id=$1 AND type=$2
        ORDER BY id DESC LIMIT 1`
	var (
		resp    domain.AIResponse
		verdict []byte
	)
	err := r.db.QueryRow(ctx, query, ticketID, kind).Scan(
		&resp.ID,
		&resp.TicketID,
		&resp.Type,
		&verdict,
		&resp.Content,
		&resp.AuthorID,
		&resp.Feedback,
		&resp.FeedbackAt,
		&resp.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	if err := decodeVerdict(verdict, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *aiResponseRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.AIResponse, error) {
	query := `SELECT ` + aiResponseColumns + ` FROM ai_responses WHERE ticket_id=$1 ORDER BY id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var result []domain.AIResponse
	for rows.Next() {
		var (
			resp    domain.AIResponse
			verdict []byte
		)
		if err := rows.Scan(
			&resp.ID,
			&resp.TicketID,
			&resp.Type,
			&verdict,
			&resp.Content,
			&resp.AuthorID,
			&resp.Feedback,
			&resp.FeedbackAt,
			&resp.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := decodeVerdict(verdict, &resp); err != nil {
			return nil, err
		}
		result = append(result, resp)
	}
	return result, rows.Err()
}

func (r *aiResponseRepository) RecordFeedback(ctx context.Context, id int64, feedback domain.SolutionFeedback, at time.Time) error {
	const query = `
        UPDATE ai_responses SET feedback=$1, feedback_at=$2
        WHERE id=$3 AND feedback IS NULL`
	cmd, err := r.db.Exec(ctx, query, feedback, at, id)
	if err != nil {
		return translateError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func decodeVerdict(raw []byte, resp *domain.AIResponse) error {
	if len(raw) == 0 {
		return nil
	}
	var verdict domain.TriageVerdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return fmt.Errorf("decode verdict for ai response %d: %w", resp.ID, err)
	}
	resp.Verdict = &verdict
	return nil
}
