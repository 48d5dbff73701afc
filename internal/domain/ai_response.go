package domain

import (
	"encoding/json"
	"time"
)

// AIResponseType tags what an AI response record documents.
type AIResponseType string

const (
	AIResponseSolution              AIResponseType = "SOLUTION"
	AIResponseTriageRejectionNote   AIResponseType = "TRIAGE_REJECTION_NOTE"
	AIResponseEscalationNote        AIResponseType = "ESCALATION_NOTE"
	AIResponseAnalystResolutionNote AIResponseType = "ANALYST_RESOLUTION_NOTE"
)

// SolutionFeedback is the ticket owner's verdict on an AI solution.
type SolutionFeedback string

const (
	FeedbackWorked    SolutionFeedback = "DEU_CERTO"
	FeedbackDidntWork SolutionFeedback = "DEU_ERRADO"
)

// Valid reports whether f is one of the two accepted values.
func (f SolutionFeedback) Valid() bool {
	return f == FeedbackWorked || f == FeedbackDidntWork
}

// MaxStoredResponseLength bounds AIResponse.Content at persistence time.
const MaxStoredResponseLength = 4000

// AIResponse is one AI interaction or audit note attached to a ticket.
type AIResponse struct {
	ID         int64
	TicketID   int64
	Type       AIResponseType
	Verdict    *TriageVerdict
	Content    string
	AuthorID   *int64
	Feedback   *SolutionFeedback
	FeedbackAt *time.Time
	CreatedAt  time.Time
}

// VerdictJSON encodes the verdict for storage; nil when absent.
func (r *AIResponse) VerdictJSON() ([]byte, error) {
	if r.Verdict == nil {
		return nil, nil
	}
	return json.Marshal(r.Verdict)
}
