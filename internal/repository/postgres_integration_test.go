//go:build integration

package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sistec/helpdesk-api/internal/domain"
	"github.com/sistec/helpdesk-api/internal/persistence"
)

// Run with: POSTGRES_TEST_DSN=postgres://... go test -tags integration ./internal/repository/
func newPostgresStore(t *testing.T) (Store, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := persistence.RunMigrations(ctx, pool, "../../migrations", zap.NewNop()); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return NewPostgresStore(pool), pool
}

func insertUser(t *testing.T, pool *pgxpool.Pool, level domain.AccessLevel) int64 {
	t.Helper()
	var id int64
	email := fmt.Sprintf("user-%d@sistec.test", time.Now().UnixNano())
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (name, email, access_level) VALUES ($1,$2,$3) RETURNING id`,
		"Teste", email, int(level)).Scan(&id)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

func createTicket(t *testing.T, store Store, userID int64) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		UserID:      userID,
		Priority:    domain.TicketPriorityMedium,
		Category:    "Rede",
		ProblemType: "Wi-Fi",
		Description: "Sem conexão no segundo andar",
		Title:       "Sem conexão no segundo andar",
		Status:      domain.TicketStatusOpen,
	}
	if err := store.Repos().Tickets.Create(context.Background(), ticket); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return ticket
}

func TestPostgres_UpdateStatusKeepsUntouchedStamps(t *testing.T) {
	store, pool := newPostgresStore(t)
	ctx := context.Background()
	tickets := store.Repos().Tickets
	ticket := createTicket(t, store, insertUser(t, pool, domain.AccessLevelRequester))

	approvedAt := time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC)
	if err := tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusOpen, domain.TicketStatusApproved,
		domain.StampsFor(domain.TicketStatusApproved, nil, approvedAt)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	forwardedAt := approvedAt.Add(time.Minute)
	if err := tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusApproved, domain.TicketStatusAITriage,
		domain.StampsFor(domain.TicketStatusAITriage, nil, forwardedAt)); err != nil {
		t.Fatalf("triage: %v", err)
	}

	err := tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusApproved, domain.TicketStatusAITriage, domain.StatusStamps{})
	if !errors.Is(err, ErrStatusConflict) {
		t.Errorf("stale expected status: err = %v, want ErrStatusConflict", err)
	}

	got, err := tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.TicketStatusAITriage {
		t.Errorf("status = %s", got.Status)
	}
	if got.ApprovedAt == nil || !got.ApprovedAt.Equal(approvedAt) {
		t.Errorf("approved_at = %v, want %v", got.ApprovedAt, approvedAt)
	}
	if got.ForwardedAt == nil || !got.ForwardedAt.Equal(forwardedAt) {
		t.Errorf("forwarded_at = %v, want %v", got.ForwardedAt, forwardedAt)
	}

	cutoff := forwardedAt.Add(time.Second)
	stuck, err := tickets.ListWithFilter(ctx, TicketFilter{
		Statuses:        []domain.TicketStatus{domain.TicketStatusAITriage},
		ForwardedBefore: &cutoff,
		Limit:           100,
	})
	if err != nil {
		t.Fatalf("ListWithFilter: %v", err)
	}
	found := false
	for _, s := range stuck {
		found = found || s.ID == ticket.ID
	}
	if !found {
		t.Error("ticket missing from forwarded_at cutoff listing")
	}
}

func TestPostgres_GetForUpdateSerializesWriters(t *testing.T) {
	store, pool := newPostgresStore(t)
	ctx := context.Background()
	ticket := createTicket(t, store, insertUser(t, pool, domain.AccessLevelRequester))

	first, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer first.Rollback(ctx)
	if _, err := reposFor(first).Tickets.GetForUpdate(ctx, ticket.ID); err != nil {
		t.Fatalf("first lock: %v", err)
	}

	seen := make(chan domain.TicketStatus, 1)
	go func() {
		_ = store.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
			locked, err := repos.Tickets.GetForUpdate(ctx, ticket.ID)
			if err != nil {
				seen <- ""
				return err
			}
			seen <- locked.Status
			return nil
		})
	}()

	select {
	case <-seen:
		t.Fatal("second reader did not wait for the row lock")
	case <-time.After(200 * time.Millisecond):
	}

	at := time.Now().UTC()
	if err := reposFor(first).Tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusOpen, domain.TicketStatusApproved,
		domain.StampsFor(domain.TicketStatusApproved, nil, at)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := first.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	select {
	case status := <-seen:
		if status != domain.TicketStatusApproved {
			t.Errorf("second reader saw %q, want APPROVED", status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second reader never acquired the lock")
	}
}

func TestPostgres_AIResponseVerdictAndFeedback(t *testing.T) {
	store, pool := newPostgresStore(t)
	ctx := context.Background()
	ticket := createTicket(t, store, insertUser(t, pool, domain.AccessLevelRequester))
	responses := store.Repos().AIResponses

	verdict := &domain.TriageVerdict{
		Recommendation:     domain.RecommendAutomate,
		SolutionConfidence: 0.87,
		Tags:               []string{"wifi", "roteador"},
	}
	resp := &domain.AIResponse{
		TicketID: ticket.ID,
		Type:     domain.AIResponseSolution,
		Verdict:  verdict,
		Content:  "Reinicie o roteador.",
	}
	if err := responses.Create(ctx, resp); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := responses.LatestByType(ctx, ticket.ID, domain.AIResponseSolution)
	if err != nil {
		t.Fatalf("LatestByType: %v", err)
	}
	if got.Verdict == nil || got.Verdict.SolutionConfidence != 0.87 || len(got.Verdict.Tags) != 2 {
		t.Errorf("verdict = %+v", got.Verdict)
	}

	at := time.Now().UTC()
	if err := responses.RecordFeedback(ctx, resp.ID, domain.FeedbackWorked, at); err != nil {
		t.Fatalf("RecordFeedback: %v", err)
	}
	if err := responses.RecordFeedback(ctx, resp.ID, domain.FeedbackDidntWork, at); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second feedback: err = %v, want ErrDuplicate", err)
	}
}

func TestPostgres_HistoryAndReports(t *testing.T) {
	store, pool := newPostgresStore(t)
	ctx := context.Background()
	opener := insertUser(t, pool, domain.AccessLevelRequester)
	resolver := insertUser(t, pool, domain.AccessLevelAnalyst)
	ticket := createTicket(t, store, opener)
	repos := store.Repos()

	if err := repos.History.Append(ctx, &domain.StatusChange{TicketID: ticket.ID, Status: domain.TicketStatusOpen}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := repos.History.Append(ctx, &domain.StatusChange{TicketID: ticket.ID, Status: domain.TicketStatusApproved, ChangedBy: &resolver}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	history, err := repos.History.ListByTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("ListByTicket: %v", err)
	}
	if len(history) != 2 || history[0].Status != domain.TicketStatusOpen || history[1].ChangedBy == nil {
		t.Errorf("history = %+v", history)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM ticket_status_history WHERE ticket_id=$1`, ticket.ID); err == nil {
		t.Error("status history accepted a delete")
	}

	report := &domain.ResolutionReport{
		TicketID:    ticket.ID,
		OpenerID:    opener,
		ResolverID:  resolver,
		Category:    ticket.Category,
		ProblemType: ticket.ProblemType,
		Report:      "Roteador reiniciado e firmware atualizado.",
	}
	if err := repos.Reports.Create(ctx, report); err != nil {
		t.Fatalf("Create report: %v", err)
	}
	dup := *report
	if err := repos.Reports.Create(ctx, &dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate report: err = %v, want ErrDuplicate", err)
	}

	user, err := repos.Users.GetByID(ctx, resolver)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if user.AccessLevel != domain.AccessLevelAnalyst || !user.Active {
		t.Errorf("user = %+v", user)
	}
	if _, err := repos.Users.GetByID(ctx, -1); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing user: err = %v", err)
	}
}
