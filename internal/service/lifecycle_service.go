package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sistec/helpdesk-api/internal/domain"
	"github.com/sistec/helpdesk-api/internal/events"
	"github.com/sistec/helpdesk-api/internal/observability"
	"github.com/sistec/helpdesk-api/internal/repository"
	apperrors "github.com/sistec/helpdesk-api/pkg/util/errorutil"
)

// TriageScheduler hands approved tickets to the triage worker.
type TriageScheduler interface {
	Enqueue(ctx context.Context, ticketID int64, runAt time.Time) error
}

// LifecycleService owns ticket status and its legal transitions.
type LifecycleService struct {
	store       repository.Store
	dispatcher  events.Dispatcher
	scheduler   TriageScheduler
	metrics     *observability.Metrics
	logger      *zap.Logger
	triageDelay time.Duration
	now         func() time.Time
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	Store       repository.Store
	Dispatcher  events.Dispatcher
	Scheduler   TriageScheduler
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	TriageDelay time.Duration
	Clock       func() time.Time
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &LifecycleService{
		store:       deps.Store,
		dispatcher:  deps.Dispatcher,
		scheduler:   deps.Scheduler,
		metrics:     deps.Metrics,
		logger:      logger,
		triageDelay: deps.TriageDelay,
		now:         clock,
	}
}

// TransitionHook runs inside the transition's transaction after the status
// write. Returning an error rolls the whole transition back.
type TransitionHook func(ctx context.Context, repos repository.Repositories, ticket *domain.Ticket) error

// TransitionRequest describes one status change.
type TransitionRequest struct {
	TicketID int64
	// From restricts the accepted current statuses. Empty accepts any status
	// with a legal edge to To.
	From []domain.TicketStatus
	To   domain.TicketStatus
	// ActorID is nil for system transitions.
	ActorID *int64
	// Stamps overrides the column group derived from To.
	Stamps          *domain.StatusStamps
	RejectionReason *string
	// Note is inserted as an audit record in the same transaction.
	Note    *domain.AIResponse
	Hook    TransitionHook
	Comment string
}

// Transition performs one status change atomically: row lock, legality check,
// compare-and-swap update, history append, audit insert and hook. Nothing is
// written unless every step succeeds.
func (s *LifecycleService) Transition(ctx context.Context, req TransitionRequest) (*domain.Ticket, error) {
	var (
		updated *domain.Ticket
		from    domain.TicketStatus
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ticket, err := repos.Tickets.GetForUpdate(ctx, req.TicketID)
		if err != nil {
			return err
		}
		if len(req.From) > 0 && !containsStatus(req.From, ticket.Status) {
			return illegalTransition(ticket, req.To)
		}
		if !domain.CanTransition(ticket.Status, req.To) {
			return illegalTransition(ticket, req.To)
		}

		now := s.now()
		stamps := domain.StampsFor(req.To, req.ActorID, now)
		if req.Stamps != nil {
			stamps = *req.Stamps
		}
		if req.RejectionReason != nil {
			stamps.RejectionReason = req.RejectionReason
		}

		from = ticket.Status
		if err := repos.Tickets.UpdateStatus(ctx, ticket.ID, from, req.To, stamps); err != nil {
			return err
		}
		if err := repos.History.Append(ctx, &domain.StatusChange{
			TicketID:  ticket.ID,
			Status:    req.To,
			ChangedBy: req.ActorID,
		}); err != nil {
			return err
		}
		if req.Note != nil {
			req.Note.TicketID = ticket.ID
			if err := repos.AIResponses.Create(ctx, req.Note); err != nil {
				return err
			}
		}

		ticket.Status = req.To
		stamps.Apply(ticket)
		if req.Hook != nil {
			if err := req.Hook(ctx, repos, ticket); err != nil {
				return err
			}
		}
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, translateRepoError(err, "ticket", req.TicketID)
	}

	s.metrics.RecordTransition(string(from), string(req.To))
	s.logger.Info("ticket status changed",
		zap.Int64("ticket_id", updated.ID),
		zap.String("from", string(from)),
		zap.String("to", string(req.To)))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: updated.ID,
		Actor:    events.Actor{UserID: req.ActorID},
		Payload: events.TicketStatusChangedPayload{
			OldStatus: from,
			NewStatus: req.To,
			Comment:   req.Comment,
		},
	})
	return updated, nil
}

// Approve moves an open ticket to APPROVED and schedules triage. It does not
// wait for triage to run.
func (s *LifecycleService) Approve(ctx context.Context, ticketID, managerID int64) (*domain.Ticket, error) {
	ticket, err := s.Transition(ctx, TransitionRequest{
		TicketID: ticketID,
		From:     []domain.TicketStatus{domain.TicketStatusOpen},
		To:       domain.TicketStatusApproved,
		ActorID:  &managerID,
	})
	if err != nil {
		return nil, err
	}
	s.scheduleTriage(ctx, ticketID)
	return ticket, nil
}

// Reject moves an open ticket to REJECTED. The reason is stored verbatim on
// the ticket and in a TRIAGE_REJECTION_NOTE.
func (s *LifecycleService) Reject(ctx context.Context, ticketID, managerID int64, reason string) (*domain.Ticket, error) {
	if err := requireReason("motivo", reason); err != nil {
		return nil, err
	}
	return s.Transition(ctx, TransitionRequest{
		TicketID:        ticketID,
		From:            []domain.TicketStatus{domain.TicketStatusOpen},
		To:              domain.TicketStatusRejected,
		ActorID:         &managerID,
		RejectionReason: &reason,
		Note: &domain.AIResponse{
			Type:     domain.AIResponseTriageRejectionNote,
			Content:  reason,
			AuthorID: &managerID,
		},
		Comment: "rejected",
	})
}

// Resolve closes out a ticket an analyst is working on.
func (s *LifecycleService) Resolve(ctx context.Context, ticketID, analystID int64, note string) (*domain.Ticket, error) {
	return s.resolveFrom(ctx, domain.TicketStatusWithAnalyst, ticketID, analystID, note)
}

// ResolveEscalated resolves an escalated ticket. Callers gate it on manager
// level.
func (s *LifecycleService) ResolveEscalated(ctx context.Context, ticketID, managerID int64, note string) (*domain.Ticket, error) {
	return s.resolveFrom(ctx, domain.TicketStatusEscalated, ticketID, managerID, note)
}

func (s *LifecycleService) resolveFrom(ctx context.Context, from domain.TicketStatus, ticketID, resolverID int64, note string) (*domain.Ticket, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		note = "Chamado resolvido pelo analista."
	}
	return s.Transition(ctx, TransitionRequest{
		TicketID: ticketID,
		From:     []domain.TicketStatus{from},
		To:       domain.TicketStatusResolved,
		ActorID:  &resolverID,
		Note: &domain.AIResponse{
			Type:     domain.AIResponseAnalystResolutionNote,
			Content:  note,
			AuthorID: &resolverID,
		},
		Comment: "resolved",
	})
}

// Escalate hands a ticket from the analyst to a higher tier.
func (s *LifecycleService) Escalate(ctx context.Context, ticketID, analystID int64, reason string) (*domain.Ticket, error) {
	if err := requireReason("motivo", reason); err != nil {
		return nil, err
	}
	return s.Transition(ctx, TransitionRequest{
		TicketID: ticketID,
		From:     []domain.TicketStatus{domain.TicketStatusWithAnalyst},
		To:       domain.TicketStatusEscalated,
		ActorID:  &analystID,
		Note: &domain.AIResponse{
			Type:     domain.AIResponseEscalationNote,
			Content:  reason,
			AuthorID: &analystID,
		},
		Comment: "escalated",
	})
}

// Close archives a resolved ticket. Only administrators reach it.
func (s *LifecycleService) Close(ctx context.Context, ticketID, adminID int64) (*domain.Ticket, error) {
	return s.Transition(ctx, TransitionRequest{
		TicketID: ticketID,
		From:     []domain.TicketStatus{domain.TicketStatusResolved},
		To:       domain.TicketStatusClosed,
		ActorID:  &adminID,
		Comment:  "closed",
	})
}

// UpdateStatus is the generic primitive: it appends a history row and stamps
// the column group that belongs to newStatus, as long as the edge is legal.
func (s *LifecycleService) UpdateStatus(ctx context.Context, ticketID int64, newStatus domain.TicketStatus, actorID *int64) (*domain.Ticket, error) {
	if !newStatus.Valid() {
		return nil, invalidStatus(newStatus)
	}
	if newStatus == domain.TicketStatusResolved && actorID == nil {
		return nil, apperrors.NewValidationError("resolving a ticket requires an acting user", nil)
	}
	return s.Transition(ctx, TransitionRequest{
		TicketID: ticketID,
		To:       newStatus,
		ActorID:  actorID,
	})
}

func (s *LifecycleService) scheduleTriage(ctx context.Context, ticketID int64) {
	if s.scheduler == nil {
		return
	}
	runAt := s.now().Add(s.triageDelay)
	if err := s.scheduler.Enqueue(ctx, ticketID, runAt); err != nil {
		// The reconciler picks the ticket up once it is stale.
		s.logger.Warn("failed to schedule triage",
			zap.Int64("ticket_id", ticketID),
			zap.Error(err))
	}
}

func (s *LifecycleService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func containsStatus(list []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}
