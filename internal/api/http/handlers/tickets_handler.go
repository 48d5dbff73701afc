package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sistec/helpdesk-api/internal/api/dto"
	"github.com/sistec/helpdesk-api/internal/auth"
	"github.com/sistec/helpdesk-api/internal/domain"
	"github.com/sistec/helpdesk-api/internal/service"
	apperrors "github.com/sistec/helpdesk-api/pkg/util/errorutil"
)

// TicketsHandler serves the /chamados endpoints.
type TicketsHandler struct {
	tickets   *service.TicketService
	lifecycle *service.LifecycleService
	triage    *service.TriageService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, lifecycle *service.LifecycleService, triage *service.TriageService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, lifecycle: lifecycle, triage: triage}
}

// CreateTicket POST /chamados.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.CreateTicket(c.UserContext(), user, service.TicketCreateInput{
		Category:    req.Category,
		ProblemType: req.Problem,
		Description: req.Description,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "Chamado criado com sucesso", ticketResponse(ticket))
}

// ListTickets GET /chamados.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	filter, err := parseListQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.ListTickets(c.UserContext(), user, filter)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Chamados listados", ticketList(tickets))
}

// ApprovalQueue GET /chamados/aprovacao.
func (h *TicketsHandler) ApprovalQueue(c *fiber.Ctx) error {
	return h.listQueue(c, h.tickets.ApprovalQueue)
}

// AnalystQueue GET /chamados/com-analista.
func (h *TicketsHandler) AnalystQueue(c *fiber.Ctx) error {
	return h.listQueue(c, h.tickets.AnalystQueue)
}

// EscalatedQueue GET /chamados/escalados.
func (h *TicketsHandler) EscalatedQueue(c *fiber.Ctx) error {
	return h.listQueue(c, h.tickets.EscalatedQueue)
}

func (h *TicketsHandler) listQueue(c *fiber.Ctx, list func(context.Context, service.TicketListFilter) ([]domain.Ticket, error)) error {
	filter, err := parseListQuery(c)
	if err != nil {
		return err
	}
	tickets, err := list(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Fila listada", ticketList(tickets))
}

// GetTicket GET /chamados/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	user, id, err := userAndID(c)
	if err != nil {
		return err
	}
	detail, err := h.tickets.GetTicket(c.UserContext(), user, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Chamado encontrado", ticketDetail(detail))
}

// ListHistory GET /chamados/:id/historico.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	user, id, err := userAndID(c)
	if err != nil {
		return err
	}
	history, err := h.tickets.ListHistory(c.UserContext(), user, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Histórico do chamado", historyResponses(history))
}

// Approve POST /chamados/:id/aprovar.
func (h *TicketsHandler) Approve(c *fiber.Ctx) error {
	user, id, err := userAndID(c)
	if err != nil {
		return err
	}
	ticket, err := h.lifecycle.Approve(c.UserContext(), id, user.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Chamado aprovado e enviado para triagem", ticketResponse(ticket))
}

// Reject POST /chamados/:id/rejeitar.
func (h *TicketsHandler) Reject(c *fiber.Ctx) error {
	user, id, err := userAndID(c)
	if err != nil {
		return err
	}
	var req dto.ReasonRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.Reject(c.UserContext(), id, user.ID, req.Reason)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Chamado rejeitado", ticketResponse(ticket))
}

// LatestSolution GET /chamados/:id/solucao-ia.
func (h *TicketsHandler) LatestSolution(c *fiber.Ctx) error {
	user, id, err := userAndID(c)
	if err != nil {
		return err
	}
	solution, err := h.triage.LatestSolution(c.UserContext(), user, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Solução da IA", aiResponse(solution))
}

// SubmitFeedback POST /chamados/:id/feedback-ia.
func (h *TicketsHandler) SubmitFeedback(c *fiber.Ctx) error {
	user, id, err := userAndID(c)
	if err != nil {
		return err
	}
	var req dto.FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.triage.SubmitFeedback(c.UserContext(), id, user.ID, req.Feedback)
	if err != nil {
		return err
	}
	message := "Feedback registrado; chamado encaminhado a um analista"
	if ticket.Status == domain.TicketStatusResolved {
		message = "Feedback registrado; chamado resolvido"
	}
	return respond(c, http.StatusOK, message, ticketResponse(ticket))
}

// Resolve POST /chamados/:id/resolver.
func (h *TicketsHandler) Resolve(c *fiber.Ctx) error {
	return h.resolve(c, h.lifecycle.Resolve)
}

// ResolveEscalated POST /chamados/:id/resolver-escalado.
func (h *TicketsHandler) ResolveEscalated(c *fiber.Ctx) error {
	return h.resolve(c, h.lifecycle.ResolveEscalated)
}

func (h *TicketsHandler) resolve(c *fiber.Ctx, fn func(context.Context, int64, int64, string) (*domain.Ticket, error)) error {
	user, id, err := userAndID(c)
	if err != nil {
		return err
	}
	var req dto.ResolveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := fn(c.UserContext(), id, user.ID, req.Note)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Chamado resolvido", ticketResponse(ticket))
}

// Escalate POST /chamados/:id/escalar.
func (h *TicketsHandler) Escalate(c *fiber.Ctx) error {
	user, id, err := userAndID(c)
	if err != nil {
		return err
	}
	var req dto.ReasonRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.Escalate(c.UserContext(), id, user.ID, req.Reason)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Chamado escalado", ticketResponse(ticket))
}

// Close POST /chamados/:id/fechar.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	user, id, err := userAndID(c)
	if err != nil {
		return err
	}
	ticket, err := h.lifecycle.Close(c.UserContext(), id, user.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Chamado fechado", ticketResponse(ticket))
}

// CreateReport POST /chamados/resolver-com-relatorio.
func (h *TicketsHandler) CreateReport(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.ReportRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	report, err := h.tickets.CreateReport(c.UserContext(), user, req.TicketID, req.Report)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "Relatório de resolução registrado", reportResponse(report))
}

func respond(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.Envelope{Status: status, Message: message, Data: data})
}

func currentUser(c *fiber.Ctx) (*domain.User, error) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return user, nil
}

func userAndID(c *fiber.Ctx) (*domain.User, int64, error) {
	user, err := currentUser(c)
	if err != nil {
		return nil, 0, err
	}
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, 0, apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	return user, id, nil
}

func parseListQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{
		Page:     parseInt(c.Query("page"), 1),
		PageSize: parseInt(c.Query("page_size"), 20),
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			status := domain.TicketStatus(strings.ToUpper(strings.TrimSpace(part)))
			if !status.Valid() {
				return filter, apperrors.NewValidationError("invalid status filter", map[string]any{"status": part})
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	return filter, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:              ticket.ID,
		UserID:          ticket.UserID,
		Title:           ticket.Title,
		Category:        ticket.Category,
		Problem:         ticket.ProblemType,
		Description:     ticket.Description,
		Priority:        int(ticket.Priority),
		PriorityLabel:   ticket.Priority.Label(),
		Status:          ticket.Status,
		OpenedAt:        ticket.OpenedAt,
		ApprovedAt:      ticket.ApprovedAt,
		RejectionReason: ticket.RejectionReason,
		ForwardedAt:     ticket.ForwardedAt,
		EscalatedAt:     ticket.EscalatedAt,
		ResolvedAt:      ticket.ResolvedAt,
		ResolverID:      ticket.ResolverID,
		ClosedAt:        ticket.ClosedAt,
	}
}

func ticketList(tickets []domain.Ticket) []dto.TicketResponse {
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return items
}

func ticketDetail(detail *service.TicketDetail) dto.TicketDetailResponse {
	responses := make([]dto.AIResponseResponse, 0, len(detail.Responses))
	for i := range detail.Responses {
		responses = append(responses, aiResponse(&detail.Responses[i]))
	}
	resp := dto.TicketDetailResponse{
		TicketResponse: ticketResponse(&detail.Ticket),
		History:        historyResponses(detail.History),
		Responses:      responses,
	}
	if detail.Report != nil {
		report := reportResponse(detail.Report)
		resp.Report = &report
	}
	return resp
}

func historyResponses(entries []domain.StatusChange) []dto.StatusChangeResponse {
	resp := make([]dto.StatusChangeResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.StatusChangeResponse{
			ID:        entry.ID,
			Status:    entry.Status,
			ChangedBy: entry.ChangedBy,
			CreatedAt: entry.CreatedAt,
		})
	}
	return resp
}

func aiResponse(r *domain.AIResponse) dto.AIResponseResponse {
	return dto.AIResponseResponse{
		ID:         r.ID,
		TicketID:   r.TicketID,
		Type:       r.Type,
		Content:    r.Content,
		Verdict:    r.Verdict,
		AuthorID:   r.AuthorID,
		Feedback:   r.Feedback,
		FeedbackAt: r.FeedbackAt,
		CreatedAt:  r.CreatedAt,
	}
}

func reportResponse(r *domain.ResolutionReport) dto.ReportResponse {
	return dto.ReportResponse{
		ID:         r.ID,
		TicketID:   r.TicketID,
		OpenerID:   r.OpenerID,
		ResolverID: r.ResolverID,
		Category:   r.Category,
		Problem:    r.ProblemType,
		Report:     r.Report,
		CreatedAt:  r.CreatedAt,
	}
}
