package domain

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen             TicketStatus = "OPEN"
	TicketStatusApproved         TicketStatus = "APPROVED"
	TicketStatusRejected         TicketStatus = "REJECTED"
	TicketStatusAITriage         TicketStatus = "AI_TRIAGE"
	TicketStatusAwaitingResponse TicketStatus = "AWAITING_RESPONSE"
	TicketStatusWithAnalyst      TicketStatus = "WITH_ANALYST"
	TicketStatusEscalated        TicketStatus = "ESCALATED"
	TicketStatusResolved         TicketStatus = "RESOLVED"
	TicketStatusClosed           TicketStatus = "CLOSED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusApproved,
	TicketStatusRejected,
	TicketStatusAITriage,
	TicketStatusAwaitingResponse,
	TicketStatusWithAnalyst,
	TicketStatusEscalated,
	TicketStatusResolved,
	TicketStatusClosed,
}

var statusLabels = map[TicketStatus]string{
	TicketStatusOpen:             "Aberto",
	TicketStatusApproved:         "Aprovado",
	TicketStatusRejected:         "Rejeitado",
	TicketStatusAITriage:         "Triagem IA",
	TicketStatusAwaitingResponse: "Aguardando Resposta",
	TicketStatusWithAnalyst:      "Com Analista",
	TicketStatusEscalated:        "Escalado",
	TicketStatusResolved:         "Resolvido",
	TicketStatusClosed:           "Fechado",
}

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the display name shown to users.
func (s TicketStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Terminal reports whether no transition leaves s.
func (s TicketStatus) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:             {TicketStatusApproved, TicketStatusRejected},
	TicketStatusApproved:         {TicketStatusAITriage},
	TicketStatusRejected:         {},
	TicketStatusAITriage:         {TicketStatusAwaitingResponse, TicketStatusWithAnalyst},
	TicketStatusAwaitingResponse: {TicketStatusResolved, TicketStatusWithAnalyst},
	TicketStatusWithAnalyst:      {TicketStatusResolved, TicketStatusEscalated},
	TicketStatusEscalated:        {TicketStatusResolved},
	TicketStatusResolved:         {TicketStatusClosed},
	TicketStatusClosed:           {},
}

// CanTransition reports whether current -> next is an edge of the lifecycle graph.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from s in one step.
func NextStatuses(s TicketStatus) []TicketStatus {
	return append([]TicketStatus(nil), allowedTransitions[s]...)
}

// ValidWalk reports whether the history starts at OPEN and only follows legal edges.
func ValidWalk(history []TicketStatus) bool {
	if len(history) == 0 || history[0] != TicketStatusOpen {
		return false
	}
	for i := 1; i < len(history); i++ {
		if !CanTransition(history[i-1], history[i]) {
			return false
		}
	}
	return true
}

// ParseStatus accepts either the code or the display label.
func ParseStatus(raw string) (TicketStatus, bool) {
	s := TicketStatus(raw)
	if s.Valid() {
		return s, true
	}
	for status, label := range statusLabels {
		if label == raw {
			return status, true
		}
	}
	return "", false
}
