package service

import (
	"errors"

	"github.com/sistec/helpdesk-api/internal/domain"
	"github.com/sistec/helpdesk-api/internal/repository"
	apperrors "github.com/sistec/helpdesk-api/pkg/util/errorutil"
)

// MinReasonLength is the minimum trimmed length of rejection, escalation and
// report texts.
const MinReasonLength = 10

func translateRepoError(err error, resource string, id int64) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	case errors.Is(err, repository.ErrStatusConflict):
		return apperrors.NewConflict("ticket status changed concurrently, reload and retry", map[string]any{"id": id})
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict(resource+" already exists", map[string]any{"id": id})
	default:
		return apperrors.NewInternalError(err)
	}
}

func requireReason(field, text string) error {
	if domain.TrimmedLength(text) < MinReasonLength {
		return apperrors.NewValidationError(field+" must have at least 10 characters", map[string]any{
			"field":      field,
			"min_length": MinReasonLength,
		})
	}
	return nil
}

func illegalTransition(ticket *domain.Ticket, next domain.TicketStatus) error {
	return apperrors.NewConflict("transition not allowed from current status", map[string]any{
		"id":      ticket.ID,
		"current": ticket.Status,
		"target":  next,
	})
}

func invalidStatus(status domain.TicketStatus) error {
	return apperrors.NewValidationError("unknown status", map[string]any{"status": status})
}
