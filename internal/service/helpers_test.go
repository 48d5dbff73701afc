package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sistec/helpdesk-api/internal/domain"
	"github.com/sistec/helpdesk-api/internal/queue"
	"github.com/sistec/helpdesk-api/internal/repository"
	apperrors "github.com/sistec/helpdesk-api/pkg/util/errorutil"
)

var (
	requester = domain.User{ID: 1, Name: "Ana", AccessLevel: domain.AccessLevelRequester, Active: true}
	analyst   = domain.User{ID: 2, Name: "Bruno", AccessLevel: domain.AccessLevelAnalyst, Active: true}
	manager   = domain.User{ID: 3, Name: "Carla", AccessLevel: domain.AccessLevelManager, Active: true}
	admin     = domain.User{ID: 4, Name: "Davi", AccessLevel: domain.AccessLevelAdmin, Active: true}
)

type fakeClassifier struct {
	mu         sync.Mutex
	verdict    domain.TriageVerdict
	classifyFn func(ctx context.Context) error
	solution   string
	solveErr   error
	panicOn    string
	contexts   []domain.TicketContext
}

func (f *fakeClassifier) Classify(ctx context.Context, tc domain.TicketContext) (domain.TriageVerdict, error) {
	f.mu.Lock()
	f.contexts = append(f.contexts, tc)
	f.mu.Unlock()
	if f.panicOn == "classify" {
		panic("classifier exploded")
	}
	if f.classifyFn != nil {
		if err := f.classifyFn(ctx); err != nil {
			return domain.TriageVerdict{}, err
		}
	}
	return f.verdict, nil
}

func (f *fakeClassifier) GenerateSolution(ctx context.Context, tc domain.TicketContext, verdict domain.TriageVerdict) (string, error) {
	if f.panicOn == "solution" {
		panic("resolver exploded")
	}
	return f.solution, f.solveErr
}

type fixture struct {
	store     *repository.MemoryStore
	queue     *queue.MemoryQueue
	ai        *fakeClassifier
	lifecycle *LifecycleService
	triage    *TriageService
	tickets   *TicketService
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: repository.NewMemoryStore(),
		ai:    &fakeClassifier{verdict: domain.TriageVerdict{Recommendation: domain.RecommendAssignToHuman}},
		now:   time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	for _, u := range []domain.User{requester, analyst, manager, admin} {
		f.store.PutUser(u)
	}
	f.queue = queue.NewMemoryQueue(queue.Options{Now: clock})
	f.lifecycle = NewLifecycleService(LifecycleDependencies{
		Store:       f.store,
		Scheduler:   f.queue,
		TriageDelay: 2 * time.Second,
		Clock:       clock,
	})
	f.triage = NewTriageService(TriageDependencies{
		Store:       f.store,
		Lifecycle:   f.lifecycle,
		AI:          f.ai,
		AITimeout:   200 * time.Millisecond,
		SolutionMax: 1200,
		Clock:       clock,
	})
	f.tickets = NewTicketService(TicketDependencies{Store: f.store, Clock: clock})
	return f
}

func (f *fixture) open(t *testing.T, priority string) *domain.Ticket {
	t.Helper()
	user := requester
	ticket, err := f.tickets.CreateTicket(context.Background(), &user, TicketCreateInput{
		Category:    "Rede",
		ProblemType: "Wi-Fi",
		Description: "O Wi-Fi do segundo andar caiu. Ninguém consegue conectar.",
		Priority:    priority,
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	return ticket
}

// atStatus drives a fresh ticket to the wanted status via the public API.
func (f *fixture) atStatus(t *testing.T, status domain.TicketStatus) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket := f.open(t, "")
	if status == domain.TicketStatusOpen {
		return ticket
	}
	mustOK(t)(f.lifecycle.Approve(ctx, ticket.ID, manager.ID))
	f.ai.verdict = domain.TriageVerdict{Recommendation: domain.RecommendAssignToHuman}
	switch status {
	case domain.TicketStatusApproved:
	case domain.TicketStatusWithAnalyst:
		f.process(t, ticket.ID)
	case domain.TicketStatusAwaitingResponse:
		f.ai.verdict = domain.TriageVerdict{Recommendation: domain.RecommendAutomate, SolutionConfidence: 0.9}
		f.ai.solution = "Desligue e ligue o roteador do andar."
		f.process(t, ticket.ID)
	case domain.TicketStatusEscalated:
		f.process(t, ticket.ID)
		mustOK(t)(f.lifecycle.Escalate(ctx, ticket.ID, analyst.ID, "Precisa de acesso ao switch core"))
	case domain.TicketStatusResolved:
		f.process(t, ticket.ID)
		mustOK(t)(f.lifecycle.Resolve(ctx, ticket.ID, analyst.ID, ""))
	default:
		t.Fatalf("atStatus: unsupported %s", status)
	}
	return f.get(t, ticket.ID)
}

func (f *fixture) process(t *testing.T, ticketID int64) TriageOutcome {
	t.Helper()
	outcome, err := f.triage.Process(context.Background(), ticketID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	return outcome
}

func (f *fixture) get(t *testing.T, id int64) *domain.Ticket {
	t.Helper()
	ticket, err := f.store.Repos().Tickets.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return ticket
}

func (f *fixture) history(t *testing.T, id int64) []domain.TicketStatus {
	t.Helper()
	rows, err := f.store.Repos().History.ListByTicket(context.Background(), id)
	if err != nil {
		t.Fatalf("ListByTicket: %v", err)
	}
	out := make([]domain.TicketStatus, len(rows))
	for i, r := range rows {
		out[i] = r.Status
	}
	return out
}

func (f *fixture) responses(t *testing.T, id int64, kind domain.AIResponseType) []domain.AIResponse {
	t.Helper()
	all, err := f.store.Repos().AIResponses.ListByTicket(context.Background(), id)
	if err != nil {
		t.Fatalf("ListByTicket: %v", err)
	}
	var out []domain.AIResponse
	for _, r := range all {
		if r.Type == kind {
			out = append(out, r)
		}
	}
	return out
}

func mustOK(t *testing.T) func(*domain.Ticket, error) {
	return func(_ *domain.Ticket, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func assertHistory(t *testing.T, got []domain.TicketStatus, want ...domain.TicketStatus) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history = %v, want %v", got, want)
		}
	}
	if !domain.ValidWalk(got) {
		t.Fatalf("history %v is not a valid walk", got)
	}
}

func assertHTTPStatus(t *testing.T, err error, want int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d, got nil", want)
	}
	var de *apperrors.DomainError
	if !errors.As(err, &de) {
		t.Fatalf("error %v is not a DomainError", err)
	}
	if de.HTTPStatus != want {
		t.Fatalf("status = %d (%s), want %d", de.HTTPStatus, de.Message, want)
	}
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
