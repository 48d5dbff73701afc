package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sistec/helpdesk-api/internal/domain"
	"github.com/sistec/helpdesk-api/internal/events"
	"github.com/sistec/helpdesk-api/internal/observability"
	"github.com/sistec/helpdesk-api/internal/repository"
	apperrors "github.com/sistec/helpdesk-api/pkg/util/errorutil"
)

// forceTimeout bounds the last-resort move to WITH_ANALYST.
const forceTimeout = 10 * time.Second

// Classifier is the generative-AI service as seen by triage.
type Classifier interface {
	Classify(ctx context.Context, tc domain.TicketContext) (domain.TriageVerdict, error)
	GenerateSolution(ctx context.Context, tc domain.TicketContext, verdict domain.TriageVerdict) (string, error)
}

// TriageService classifies approved tickets and, when the model is confident,
// answers them with a self-service solution. Every run leaves the ticket in
// AWAITING_RESPONSE or WITH_ANALYST.
type TriageService struct {
	store       repository.Store
	lifecycle   *LifecycleService
	ai          Classifier
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	aiTimeout   time.Duration
	solutionMax int
	recentLimit int
	now         func() time.Time
}

// TriageDependencies bundles collaborators for the triage service.
type TriageDependencies struct {
	Store       repository.Store
	Lifecycle   *LifecycleService
	AI          Classifier
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	AITimeout   time.Duration
	SolutionMax int
	RecentLimit int
	Clock       func() time.Time
}

// NewTriageService constructs the service.
func NewTriageService(deps TriageDependencies) *TriageService {
	s := &TriageService{
		store:       deps.Store,
		lifecycle:   deps.Lifecycle,
		ai:          deps.AI,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		aiTimeout:   deps.AITimeout,
		solutionMax: deps.SolutionMax,
		recentLimit: deps.RecentLimit,
		now:         deps.Clock,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.aiTimeout <= 0 {
		s.aiTimeout = 30 * time.Second
	}
	if s.solutionMax <= 0 {
		s.solutionMax = 1200
	}
	if s.recentLimit <= 0 {
		s.recentLimit = 5
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// TriageOutcome reports what one Process call did.
type TriageOutcome struct {
	TicketID int64
	Status   domain.TicketStatus
	Verdict  *domain.TriageVerdict
	Skipped  bool
	Fallback bool
}

// Process runs triage for one ticket. It is safe to call more than once for
// the same ticket: tickets that already left APPROVED and AI_TRIAGE are
// skipped. An error means the ticket could not even be forced to
// WITH_ANALYST and the job should be retried.
func (s *TriageService) Process(ctx context.Context, ticketID int64) (TriageOutcome, error) {
	outcome := TriageOutcome{TicketID: ticketID}
	logger := s.logger.With(zap.Int64("ticket_id", ticketID))

	ticket, err := s.store.Repos().Tickets.GetByID(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Warn("triage skipped, ticket not found")
		outcome.Skipped = true
		s.metrics.RecordTriage(observability.TriageOutcomeSkipped)
		return outcome, nil
	}
	if err != nil {
		return outcome, fmt.Errorf("load ticket %d: %w", ticketID, err)
	}
	if ticket.Status != domain.TicketStatusApproved && ticket.Status != domain.TicketStatusAITriage {
		logger.Info("triage skipped, ticket already handled", zap.String("status", string(ticket.Status)))
		outcome.Skipped = true
		outcome.Status = ticket.Status
		s.metrics.RecordTriage(observability.TriageOutcomeSkipped)
		return outcome, nil
	}

	result, runErr := s.run(ctx, ticket)
	if runErr == nil {
		return result, nil
	}

	logger.Error("triage failed, forcing analyst hand-off", zap.Error(runErr))
	status, moved, err := s.forceAnalyst(ctx, ticketID)
	if err != nil {
		s.metrics.RecordTriage(observability.TriageOutcomeFailed)
		return outcome, fmt.Errorf("force ticket %d to analyst: %w", ticketID, errors.Join(runErr, err))
	}
	outcome.Status = status
	outcome.Verdict = result.Verdict
	if !moved {
		logger.Info("triage fail-safe found ticket already handled", zap.String("status", string(status)))
		outcome.Skipped = true
		s.metrics.RecordTriage(observability.TriageOutcomeSkipped)
		return outcome, nil
	}
	s.metrics.RecordTriage(observability.TriageOutcomeFallback)
	outcome.Fallback = true
	return outcome, nil
}

// HandOff parks a ticket still in APPROVED or AI_TRIAGE with an analyst
// without consulting the AI. It is used once automated triage has given up
// on the ticket. Tickets in any other status are left alone.
func (s *TriageService) HandOff(ctx context.Context, ticketID int64) (TriageOutcome, error) {
	status, moved, err := s.forceAnalyst(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return TriageOutcome{TicketID: ticketID, Skipped: true}, nil
	}
	if err != nil {
		return TriageOutcome{TicketID: ticketID}, fmt.Errorf("hand off ticket %d: %w", ticketID, err)
	}
	if !moved {
		return TriageOutcome{TicketID: ticketID, Status: status, Skipped: true}, nil
	}
	s.metrics.RecordTriage(observability.TriageOutcomeFallback)
	return TriageOutcome{TicketID: ticketID, Status: status, Fallback: true}, nil
}

func (s *TriageService) run(ctx context.Context, ticket *domain.Ticket) (outcome TriageOutcome, err error) {
	outcome.TicketID = ticket.ID
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("triage panic: %v", r)
		}
	}()
	logger := s.logger.With(zap.Int64("ticket_id", ticket.ID))

	tc, err := s.loadContext(ctx, ticket)
	if err != nil {
		return outcome, err
	}

	if ticket.Status == domain.TicketStatusApproved {
		if _, err := s.lifecycle.Transition(ctx, TransitionRequest{
			TicketID: ticket.ID,
			From:     []domain.TicketStatus{domain.TicketStatusApproved},
			To:       domain.TicketStatusAITriage,
			Comment:  "triage started",
		}); err != nil {
			return outcome, err
		}
	}

	verdict := s.classify(ctx, tc)
	outcome.Verdict = &verdict
	outcome.Fallback = verdict.Fallback
	logger.Info("ticket classified",
		zap.String("recommendation", string(verdict.Recommendation)),
		zap.Float64("confidence", verdict.SolutionConfidence),
		zap.Bool("fallback", verdict.Fallback))

	if !verdict.Automate() {
		outcome.Status, err = s.toAnalyst(ctx, ticket.ID, "classified for human handling")
		s.recordOutcome(verdict.Fallback, observability.TriageOutcomeHuman, err)
		return outcome, err
	}

	solution, genErr := s.generate(ctx, tc, verdict)
	if genErr != nil || solution == "" {
		reason := "empty solution"
		if genErr != nil {
			reason = genErr.Error()
		}
		logger.Warn("solution generation failed", zap.String("reason", reason))
		outcome.Fallback = true
		outcome.Status, err = s.toAnalyst(ctx, ticket.ID, "solution unavailable")
		s.recordOutcome(true, observability.TriageOutcomeHuman, err)
		return outcome, err
	}

	solution = domain.Truncate(solution, s.solutionMax)
	if _, err := s.lifecycle.Transition(ctx, TransitionRequest{
		TicketID: ticket.ID,
		From:     []domain.TicketStatus{domain.TicketStatusAITriage},
		To:       domain.TicketStatusAwaitingResponse,
		Note: &domain.AIResponse{
			Type:    domain.AIResponseSolution,
			Verdict: &verdict,
			Content: solution,
		},
		Comment: "ai solution sent",
	}); err != nil {
		return outcome, err
	}
	outcome.Status = domain.TicketStatusAwaitingResponse
	s.metrics.RecordTriage(observability.TriageOutcomeAutomated)
	return outcome, nil
}

func (s *TriageService) recordOutcome(fallback bool, normal string, err error) {
	if err != nil {
		return
	}
	if fallback {
		s.metrics.RecordTriage(observability.TriageOutcomeFallback)
		return
	}
	s.metrics.RecordTriage(normal)
}

func (s *TriageService) loadContext(ctx context.Context, ticket *domain.Ticket) (domain.TicketContext, error) {
	repos := s.store.Repos()
	tc := domain.TicketContext{Ticket: ticket.Clone()}

	opener, err := repos.Users.GetByID(ctx, ticket.UserID)
	switch {
	case err == nil:
		tc.Opener = opener
	case !errors.Is(err, repository.ErrNotFound):
		return tc, fmt.Errorf("load opener: %w", err)
	}

	history, err := repos.Tickets.ListRecentByUser(ctx, ticket.UserID, ticket.ID, s.recentLimit)
	if err != nil {
		return tc, fmt.Errorf("load recent tickets: %w", err)
	}
	tc.History = history
	return tc, nil
}

func (s *TriageService) classify(ctx context.Context, tc domain.TicketContext) domain.TriageVerdict {
	if s.ai == nil {
		return domain.FallbackVerdict("serviço de IA não configurado")
	}
	callCtx, cancel := context.WithTimeout(ctx, s.aiTimeout)
	defer cancel()

	start := time.Now()
	verdict, err := s.ai.Classify(callCtx, tc)
	s.metrics.ObserveAICall("classify", time.Since(start), err)
	if err != nil {
		s.logger.Warn("classification failed", zap.Int64("ticket_id", tc.Ticket.ID), zap.Error(err))
		return domain.FallbackVerdict(err.Error())
	}
	return verdict
}

func (s *TriageService) generate(ctx context.Context, tc domain.TicketContext, verdict domain.TriageVerdict) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.aiTimeout)
	defer cancel()

	start := time.Now()
	solution, err := s.ai.GenerateSolution(callCtx, tc, verdict)
	s.metrics.ObserveAICall("solution", time.Since(start), err)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(solution), nil
}

func (s *TriageService) toAnalyst(ctx context.Context, ticketID int64, comment string) (domain.TicketStatus, error) {
	_, err := s.lifecycle.Transition(ctx, TransitionRequest{
		TicketID: ticketID,
		From:     []domain.TicketStatus{domain.TicketStatusAITriage},
		To:       domain.TicketStatusWithAnalyst,
		Comment:  comment,
	})
	if err != nil {
		return "", err
	}
	return domain.TicketStatusWithAnalyst, nil
}

// forceAnalyst is the outer fail-safe. It works on a context detached from
// the caller's cancellation so a shutdown mid-run still parks the ticket. It
// returns the status the ticket ended in and whether this call moved it.
func (s *TriageService) forceAnalyst(ctx context.Context, ticketID int64) (domain.TicketStatus, bool, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forceTimeout)
	defer cancel()

	ticket, err := s.store.Repos().Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return "", false, err
	}
	switch ticket.Status {
	case domain.TicketStatusApproved:
		if _, err := s.lifecycle.Transition(ctx, TransitionRequest{
			TicketID: ticketID,
			From:     []domain.TicketStatus{domain.TicketStatusApproved},
			To:       domain.TicketStatusAITriage,
			Comment:  "triage fail-safe",
		}); err != nil {
			return ticket.Status, false, err
		}
		fallthrough
	case domain.TicketStatusAITriage:
		status, err := s.toAnalyst(ctx, ticketID, "triage fail-safe")
		if err != nil {
			return "", false, err
		}
		return status, true, nil
	default:
		// Someone else already moved the ticket on.
		return ticket.Status, false, nil
	}
}

// SubmitFeedback records the owner's verdict on the AI solution and moves the
// ticket on: DEU_CERTO resolves it with the owner as resolver, DEU_ERRADO
// hands it to an analyst.
func (s *TriageService) SubmitFeedback(ctx context.Context, ticketID, ownerID int64, raw string) (*domain.Ticket, error) {
	feedback := domain.SolutionFeedback(strings.ToUpper(strings.TrimSpace(raw)))
	if !feedback.Valid() {
		return nil, apperrors.NewValidationError("feedback must be DEU_CERTO or DEU_ERRADO", map[string]any{"feedback": raw})
	}

	ticket, err := s.store.Repos().Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, translateRepoError(err, "ticket", ticketID)
	}
	if ticket.UserID != ownerID {
		return nil, apperrors.NewForbidden("only the ticket owner can rate the solution")
	}
	if ticket.Status != domain.TicketStatusAwaitingResponse {
		return nil, illegalTransition(ticket, domain.TicketStatusResolved)
	}

	req := TransitionRequest{
		TicketID: ticketID,
		From:     []domain.TicketStatus{domain.TicketStatusAwaitingResponse},
		ActorID:  &ownerID,
		Comment:  "feedback " + string(feedback),
	}
	if feedback == domain.FeedbackWorked {
		req.To = domain.TicketStatusResolved
	} else {
		req.To = domain.TicketStatusWithAnalyst
		req.Stamps = &domain.StatusStamps{}
	}

	var responseID int64
	req.Hook = func(ctx context.Context, repos repository.Repositories, t *domain.Ticket) error {
		solution, err := repos.AIResponses.LatestByType(ctx, t.ID, domain.AIResponseSolution)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("ai solution", map[string]any{"ticket_id": t.ID})
		}
		if err != nil {
			return err
		}
		if err := repos.AIResponses.RecordFeedback(ctx, solution.ID, feedback, s.now()); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.NewConflict("feedback already recorded", map[string]any{"ticket_id": t.ID})
			}
			return err
		}
		responseID = solution.ID
		return nil
	}

	updated, err := s.lifecycle.Transition(ctx, req)
	if err != nil {
		return nil, err
	}
	s.lifecycle.publishEvent(ctx, events.Event{
		Type:     events.EventSolutionFeedback,
		TicketID: ticketID,
		Actor:    events.Actor{UserID: &ownerID},
		Payload: events.SolutionFeedbackPayload{
			ResponseID: responseID,
			Feedback:   feedback,
		},
	})
	return updated, nil
}

// LatestSolution returns the most recent AI solution for a ticket. Requesters
// only see their own tickets.
func (s *TriageService) LatestSolution(ctx context.Context, viewer *domain.User, ticketID int64) (*domain.AIResponse, error) {
	repos := s.store.Repos()
	ticket, err := repos.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, translateRepoError(err, "ticket", ticketID)
	}
	if !canView(viewer, ticket) {
		return nil, apperrors.NewForbidden("ticket belongs to another user")
	}
	solution, err := repos.AIResponses.LatestByType(ctx, ticketID, domain.AIResponseSolution)
	if err != nil {
		return nil, translateRepoError(err, "ai solution", ticketID)
	}
	return solution, nil
}
