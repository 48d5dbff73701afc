package domain

import (
	"testing"
	"time"
)

func TestParsePriority(t *testing.T) {
	cases := map[string]TicketPriority{
		"alta":    TicketPriorityHigh,
		" ALTA ":  TicketPriorityHigh,
		"Média":   TicketPriorityMedium,
		"media":   TicketPriorityMedium,
		"baixa":   TicketPriorityLow,
		"urgente": TicketPriorityUrgent,
		"Crítica": TicketPriorityUrgent,
		"4":       TicketPriorityUrgent,
		"":        TicketPriorityMedium,
	}
	for in, want := range cases {
		got, ok := ParsePriority(in)
		if !ok || got != want {
			t.Errorf("ParsePriority(%q) = %d, %v; want %d", in, got, ok, want)
		}
	}
	if _, ok := ParsePriority("altíssima"); ok {
		t.Error("unknown label accepted")
	}
}

func TestStampsFor(t *testing.T) {
	now := time.Now()
	actor := int64(7)

	if s := StampsFor(TicketStatusApproved, &actor, now); s.ApprovedAt == nil || s.ForwardedAt != nil {
		t.Errorf("approved stamps = %+v", s)
	}
	if s := StampsFor(TicketStatusRejected, &actor, now); s.ApprovedAt == nil {
		t.Errorf("rejected stamps = %+v", s)
	}
	if s := StampsFor(TicketStatusWithAnalyst, nil, now); s.ForwardedAt == nil {
		t.Errorf("with analyst stamps = %+v", s)
	}
	if s := StampsFor(TicketStatusResolved, &actor, now); s.ResolvedAt == nil || s.ResolverID == nil || *s.ResolverID != actor {
		t.Errorf("resolved stamps = %+v", s)
	}
	if s := StampsFor(TicketStatusAwaitingResponse, &actor, now); s != (StatusStamps{}) {
		t.Errorf("awaiting response must not stamp anything, got %+v", s)
	}
}

func TestTicketClone(t *testing.T) {
	now := time.Now()
	reason := "duplicado"
	orig := Ticket{ID: 1, ApprovedAt: &now, RejectionReason: &reason}
	cp := orig.Clone()
	*cp.RejectionReason = "changed"
	later := now.Add(time.Hour)
	*cp.ApprovedAt = later
	if *orig.RejectionReason != "duplicado" || !orig.ApprovedAt.Equal(now) {
		t.Error("Clone shares pointers with the original")
	}
}
