package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sistec/helpdesk-api/internal/domain"
	"github.com/sistec/helpdesk-api/internal/events"
	"github.com/sistec/helpdesk-api/internal/repository"
	apperrors "github.com/sistec/helpdesk-api/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TicketService coordinates ticket intake and the read side.
type TicketService struct {
	store      repository.Store
	dispatcher events.Dispatcher
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Clock      func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Category    string
	ProblemType string
	Description string
	Priority    string
}

// TicketListFilter describes listing parameters.
type TicketListFilter struct {
	Statuses []domain.TicketStatus
	Page     int
	PageSize int
}

// TicketDetail is a ticket with its audit trail.
type TicketDetail struct {
	Ticket    domain.Ticket
	History   []domain.StatusChange
	Responses []domain.AIResponse
	Report    *domain.ResolutionReport
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TicketService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		now:        clock,
	}
}

// CreateTicket opens a ticket for the user. The first history row is OPEN.
func (s *TicketService) CreateTicket(ctx context.Context, user *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	category := strings.TrimSpace(input.Category)
	problem := strings.TrimSpace(input.ProblemType)
	description := strings.TrimSpace(input.Description)

	missing := []string{}
	if category == "" {
		missing = append(missing, "categoria")
	}
	if problem == "" {
		missing = append(missing, "problema")
	}
	if description == "" {
		missing = append(missing, "descricao_detalhada")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewValidationError("required fields missing", map[string]any{"fields": missing})
	}

	priority, ok := domain.ParsePriority(input.Priority)
	if !ok {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"prioridade": input.Priority})
	}

	ticket := &domain.Ticket{
		UserID:      user.ID,
		Priority:    priority,
		Category:    category,
		ProblemType: problem,
		Description: description,
		Title:       domain.DeriveTitle(category, problem, description),
		Status:      domain.TicketStatusOpen,
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		return repos.History.Append(ctx, &domain.StatusChange{
			TicketID:  ticket.ID,
			Status:    domain.TicketStatusOpen,
			ChangedBy: &user.ID,
		})
	})
	if err != nil {
		return nil, translateRepoError(err, "ticket", 0)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.Actor{UserID: &user.ID},
		Payload: events.TicketCreatedPayload{
			Priority:    ticket.Priority,
			Category:    ticket.Category,
			ProblemType: ticket.ProblemType,
			Title:       ticket.Title,
		},
	})
	return ticket, nil
}

// ListTickets lists tickets visible to the viewer. Requesters see only their
// own tickets.
func (s *TicketService) ListTickets(ctx context.Context, viewer *domain.User, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := pageFilter(filter)
	if !viewer.AccessLevel.AtLeast(domain.AccessLevelAnalyst) {
		repoFilter.UserID = &viewer.ID
	}
	return s.list(ctx, repoFilter)
}

// ApprovalQueue lists OPEN tickets, most urgent first.
func (s *TicketService) ApprovalQueue(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	return s.queue(ctx, domain.TicketStatusOpen, filter)
}

// AnalystQueue lists tickets waiting for an analyst.
func (s *TicketService) AnalystQueue(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	return s.queue(ctx, domain.TicketStatusWithAnalyst, filter)
}

// EscalatedQueue lists escalated tickets.
func (s *TicketService) EscalatedQueue(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	return s.queue(ctx, domain.TicketStatusEscalated, filter)
}

func (s *TicketService) queue(ctx context.Context, status domain.TicketStatus, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := pageFilter(filter)
	repoFilter.Statuses = []domain.TicketStatus{status}
	repoFilter.Sort = repository.SortQueue
	return s.list(ctx, repoFilter)
}

func (s *TicketService) list(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.store.Repos().Tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, translateRepoError(err, "ticket", 0)
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}

// GetTicket returns the ticket with its history, AI records and report.
func (s *TicketService) GetTicket(ctx context.Context, viewer *domain.User, ticketID int64) (*TicketDetail, error) {
	ticket, err := s.visibleTicket(ctx, viewer, ticketID)
	if err != nil {
		return nil, err
	}
	repos := s.store.Repos()
	detail := &TicketDetail{Ticket: *ticket}

	if detail.History, err = repos.History.ListByTicket(ctx, ticketID); err != nil {
		return nil, translateRepoError(err, "ticket", ticketID)
	}
	if detail.Responses, err = repos.AIResponses.ListByTicket(ctx, ticketID); err != nil {
		return nil, translateRepoError(err, "ticket", ticketID)
	}
	report, err := repos.Reports.GetByTicket(ctx, ticketID)
	switch {
	case err == nil:
		detail.Report = report
	case !errors.Is(err, repository.ErrNotFound):
		return nil, translateRepoError(err, "resolution report", ticketID)
	}
	return detail, nil
}

// ListHistory returns the status history, oldest first.
func (s *TicketService) ListHistory(ctx context.Context, viewer *domain.User, ticketID int64) ([]domain.StatusChange, error) {
	if _, err := s.visibleTicket(ctx, viewer, ticketID); err != nil {
		return nil, err
	}
	history, err := s.store.Repos().History.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, translateRepoError(err, "ticket", ticketID)
	}
	if history == nil {
		history = []domain.StatusChange{}
	}
	return history, nil
}

// CreateReport stores the analyst's write-up of how a ticket was solved. It
// does not change the ticket status and can be submitted once per ticket.
func (s *TicketService) CreateReport(ctx context.Context, resolver *domain.User, ticketID int64, text string) (*domain.ResolutionReport, error) {
	if ticketID <= 0 {
		return nil, apperrors.NewValidationError("chamado_id is required", map[string]any{"field": "chamado_id"})
	}
	if err := requireReason("relatorio", text); err != nil {
		return nil, err
	}

	repos := s.store.Repos()
	ticket, err := repos.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, translateRepoError(err, "ticket", ticketID)
	}
	switch ticket.Status {
	case domain.TicketStatusOpen, domain.TicketStatusRejected:
		return nil, apperrors.NewConflict("ticket was never accepted for handling", map[string]any{
			"id":     ticketID,
			"status": ticket.Status,
		})
	}

	report := &domain.ResolutionReport{
		TicketID:    ticketID,
		OpenerID:    ticket.UserID,
		ResolverID:  resolver.ID,
		Category:    ticket.Category,
		ProblemType: ticket.ProblemType,
		Report:      strings.TrimSpace(text),
	}
	if err := repos.Reports.Create(ctx, report); err != nil {
		return nil, translateRepoError(err, "resolution report", ticketID)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventResolutionReportAdded,
		TicketID: ticketID,
		Actor:    events.Actor{UserID: &resolver.ID},
		Payload: events.ResolutionReportAddedPayload{
			ReportID:   report.ID,
			ResolverID: resolver.ID,
		},
	})
	return report, nil
}

func (s *TicketService) visibleTicket(ctx context.Context, viewer *domain.User, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.store.Repos().Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, translateRepoError(err, "ticket", ticketID)
	}
	if !canView(viewer, ticket) {
		return nil, apperrors.NewForbidden("ticket belongs to another user")
	}
	return ticket, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func canView(viewer *domain.User, ticket *domain.Ticket) bool {
	if viewer == nil {
		return false
	}
	return viewer.AccessLevel.AtLeast(domain.AccessLevelAnalyst) || ticket.UserID == viewer.ID
}

func pageFilter(filter TicketListFilter) repository.TicketFilter {
	size := filter.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	return repository.TicketFilter{
		Statuses: filter.Statuses,
		Limit:    size,
		Offset:   (page - 1) * size,
	}
}
