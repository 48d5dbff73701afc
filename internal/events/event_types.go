package events

import (
	"time"

	"github.com/sistec/helpdesk-api/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventSolutionFeedback      EventType = "solution_feedback"
	EventResolutionReportAdded EventType = "resolution_report_added"
)

// Actor identifies who caused an event. A nil UserID means the system.
type Actor struct {
	UserID *int64 `json:"user_id,omitempty"`
}

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Priority    domain.TicketPriority `json:"priority"`
	Category    string                `json:"category"`
	ProblemType string                `json:"problem_type"`
	Title       string                `json:"title"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// SolutionFeedbackPayload payload.
type SolutionFeedbackPayload struct {
	ResponseID int64                   `json:"response_id"`
	Feedback   domain.SolutionFeedback `json:"feedback"`
}

// ResolutionReportAddedPayload payload.
type ResolutionReportAddedPayload struct {
	ReportID   int64 `json:"report_id"`
	ResolverID int64 `json:"resolver_id"`
}
