package domain

import (
	"strings"
	"time"
)

// TicketPriority enumerates SLA urgency, stored as 1..4.
type TicketPriority int

const (
	TicketPriorityLow    TicketPriority = 1
	TicketPriorityMedium TicketPriority = 2
	TicketPriorityHigh   TicketPriority = 3
	TicketPriorityUrgent TicketPriority = 4
)

var priorityLabels = map[TicketPriority]string{
	TicketPriorityLow:    "Baixa",
	TicketPriorityMedium: "Média",
	TicketPriorityHigh:   "Alta",
	TicketPriorityUrgent: "Urgente",
}

var priorityAliases = map[string]TicketPriority{
	"1":       TicketPriorityLow,
	"baixa":   TicketPriorityLow,
	"low":     TicketPriorityLow,
	"2":       TicketPriorityMedium,
	"media":   TicketPriorityMedium,
	"média":   TicketPriorityMedium,
	"medium":  TicketPriorityMedium,
	"3":       TicketPriorityHigh,
	"alta":    TicketPriorityHigh,
	"high":    TicketPriorityHigh,
	"4":       TicketPriorityUrgent,
	"urgente": TicketPriorityUrgent,
	"urgent":  TicketPriorityUrgent,
	"critica": TicketPriorityUrgent,
	"crítica": TicketPriorityUrgent,
}

// Valid reports whether p is within 1..4.
func (p TicketPriority) Valid() bool {
	return p >= TicketPriorityLow && p <= TicketPriorityUrgent
}

// Label returns the Portuguese display name.
func (p TicketPriority) Label() string {
	return priorityLabels[p]
}

// ParsePriority normalizes a free-text priority label. An empty label maps to
// medium; anything unrecognized is reported with ok=false.
func ParsePriority(raw string) (TicketPriority, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return TicketPriorityMedium, true
	}
	p, ok := priorityAliases[key]
	return p, ok
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID              int64
	UserID          int64
	Priority        TicketPriority
	Category        string
	ProblemType     string
	Description     string
	Title           string
	Status          TicketStatus
	OpenedAt        time.Time
	ApprovedAt      *time.Time
	RejectionReason *string
	ForwardedAt     *time.Time
	EscalatedAt     *time.Time
	ResolvedAt      *time.Time
	ResolverID      *int64
	ClosedAt        *time.Time
}

// Clone returns a deep copy so callers can mutate pointer fields safely.
func (t Ticket) Clone() Ticket {
	out := t
	out.ApprovedAt = cloneTime(t.ApprovedAt)
	out.ForwardedAt = cloneTime(t.ForwardedAt)
	out.EscalatedAt = cloneTime(t.EscalatedAt)
	out.ResolvedAt = cloneTime(t.ResolvedAt)
	out.ClosedAt = cloneTime(t.ClosedAt)
	if t.RejectionReason != nil {
		reason := *t.RejectionReason
		out.RejectionReason = &reason
	}
	if t.ResolverID != nil {
		id := *t.ResolverID
		out.ResolverID = &id
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// StatusChange is one row of the append-only status history.
type StatusChange struct {
	ID        int64
	TicketID  int64
	Status    TicketStatus
	ChangedBy *int64
	CreatedAt time.Time
}

// StatusStamps carries the column group updated together with a status change.
type StatusStamps struct {
	ApprovedAt      *time.Time
	RejectionReason *string
	ForwardedAt     *time.Time
	EscalatedAt     *time.Time
	ResolvedAt      *time.Time
	ResolverID      *int64
	ClosedAt        *time.Time
}

// StampsFor returns the timestamp columns a move into status touches.
// AWAITING_RESPONSE and OPEN touch none.
func StampsFor(status TicketStatus, actorID *int64, at time.Time) StatusStamps {
	var stamps StatusStamps
	switch status {
	case TicketStatusApproved, TicketStatusRejected:
		stamps.ApprovedAt = &at
	case TicketStatusAITriage, TicketStatusWithAnalyst:
		stamps.ForwardedAt = &at
	case TicketStatusEscalated:
		stamps.EscalatedAt = &at
	case TicketStatusResolved:
		stamps.ResolvedAt = &at
		stamps.ResolverID = actorID
	case TicketStatusClosed:
		stamps.ClosedAt = &at
	}
	return stamps
}

// Apply copies the non-nil stamps onto the ticket.
func (s StatusStamps) Apply(t *Ticket) {
	if s.ApprovedAt != nil {
		t.ApprovedAt = s.ApprovedAt
	}
	if s.RejectionReason != nil {
		t.RejectionReason = s.RejectionReason
	}
	if s.ForwardedAt != nil {
		t.ForwardedAt = s.ForwardedAt
	}
	if s.EscalatedAt != nil {
		t.EscalatedAt = s.EscalatedAt
	}
	if s.ResolvedAt != nil {
		t.ResolvedAt = s.ResolvedAt
	}
	if s.ResolverID != nil {
		t.ResolverID = s.ResolverID
	}
	if s.ClosedAt != nil {
		t.ClosedAt = s.ClosedAt
	}
}
