package dto

import (
	"time"

	"github.com/sistec/helpdesk-api/internal/domain"
)

// Envelope wraps every response body.
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Category    string `json:"categoria"`
	Problem     string `json:"problema"`
	Description string `json:"descricao_detalhada"`
	Priority    string `json:"prioridade"`
}

// ReasonRequest carries the justification for reject and escalate.
type ReasonRequest struct {
	Reason string `json:"motivo"`
}

// ResolveRequest carries an optional resolution note.
type ResolveRequest struct {
	Note string `json:"nota"`
}

// FeedbackRequest is the owner's verdict on an AI solution.
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
}

// ReportRequest payload for resolver-com-relatorio.
type ReportRequest struct {
	TicketID int64  `json:"chamado_id"`
	Report   string `json:"relatorio"`
}

// TicketResponse is the public ticket shape.
type TicketResponse struct {
	ID              int64               `json:"id"`
	UserID          int64               `json:"usuario_id"`
	Title           string              `json:"titulo"`
	Category        string              `json:"categoria"`
	Problem         string              `json:"problema"`
	Description     string              `json:"descricao_detalhada"`
	Priority        int                 `json:"prioridade"`
	PriorityLabel   string              `json:"prioridade_rotulo"`
	Status          domain.TicketStatus `json:"status"`
	OpenedAt        time.Time           `json:"data_abertura"`
	ApprovedAt      *time.Time          `json:"data_aprovacao"`
	RejectionReason *string             `json:"motivo_rejeicao"`
	ForwardedAt     *time.Time          `json:"data_encaminhamento"`
	EscalatedAt     *time.Time          `json:"data_escalonamento"`
	ResolvedAt      *time.Time          `json:"data_resolucao"`
	ResolverID      *int64              `json:"resolvido_por"`
	ClosedAt        *time.Time          `json:"data_fechamento"`
}

// StatusChangeResponse is one history row.
type StatusChangeResponse struct {
	ID        int64               `json:"id"`
	Status    domain.TicketStatus `json:"status"`
	ChangedBy *int64              `json:"alterado_por"`
	CreatedAt time.Time           `json:"data"`
}

// AIResponseResponse is one AI interaction or audit note.
type AIResponseResponse struct {
	ID         int64                    `json:"id"`
	TicketID   int64                    `json:"chamado_id"`
	Type       domain.AIResponseType    `json:"tipo"`
	Content    string                   `json:"conteudo"`
	Verdict    *domain.TriageVerdict    `json:"classificacao,omitempty"`
	AuthorID   *int64                   `json:"autor_id,omitempty"`
	Feedback   *domain.SolutionFeedback `json:"feedback"`
	FeedbackAt *time.Time               `json:"data_feedback"`
	CreatedAt  time.Time                `json:"data_criacao"`
}

// ReportResponse is a stored resolution report.
type ReportResponse struct {
	ID         int64     `json:"id"`
	TicketID   int64     `json:"chamado_id"`
	OpenerID   int64     `json:"solicitante_id"`
	ResolverID int64     `json:"resolvido_por"`
	Category   string    `json:"categoria"`
	Problem    string    `json:"problema"`
	Report     string    `json:"relatorio"`
	CreatedAt  time.Time `json:"data_criacao"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketResponse
	History   []StatusChangeResponse `json:"historico"`
	Responses []AIResponseResponse   `json:"respostas_ia"`
	Report    *ReportResponse        `json:"relatorio"`
}
