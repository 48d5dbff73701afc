package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sistec/helpdesk-api/internal/domain"
	"github.com/sistec/helpdesk-api/internal/observability"
	"github.com/sistec/helpdesk-api/internal/queue"
	"github.com/sistec/helpdesk-api/internal/repository"
	"github.com/sistec/helpdesk-api/internal/service"
)

// TriageProcessor runs triage for one ticket. HandOff parks a ticket with an
// analyst without consulting the AI, for jobs that ran out of attempts.
type TriageProcessor interface {
	Process(ctx context.Context, ticketID int64) (service.TriageOutcome, error)
	HandOff(ctx context.Context, ticketID int64) (service.TriageOutcome, error)
}

// deadLetterScan bounds how many dead-lettered ids one reconcile pass reads.
const deadLetterScan = 1000

// TriageWorkerConfig tunes polling and retries.
type TriageWorkerConfig struct {
	Workers           int
	Consumer          string
	PollInterval      time.Duration
	ReconcileInterval time.Duration
	StaleAfter        time.Duration
	RetryBase         time.Duration
	RetryMax          time.Duration
}

// TriageWorkerDependencies bundles collaborators for the worker.
type TriageWorkerDependencies struct {
	Queue     queue.Queue
	Processor TriageProcessor
	Store     repository.Store
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	Clock     func() time.Time
	Config    TriageWorkerConfig
}

// TriageWorker drains the triage queue and recovers tickets that were left
// in APPROVED or AI_TRIAGE.
type TriageWorker struct {
	queue     queue.Queue
	processor TriageProcessor
	store     repository.Store
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
	cfg       TriageWorkerConfig
}

// NewTriageWorker constructs the worker with defaults for unset values.
func NewTriageWorker(deps TriageWorkerDependencies) *TriageWorker {
	cfg := deps.Config
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "triage"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 5 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 5 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TriageWorker{
		queue:     deps.Queue,
		processor: deps.Processor,
		store:     deps.Store,
		metrics:   deps.Metrics,
		logger:    logger.Named("triage-worker"),
		now:       clock,
		cfg:       cfg,
	}
}

// Run blocks until ctx is cancelled. It returns nil on a clean shutdown.
func (w *TriageWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Workers; i++ {
		consumer := fmt.Sprintf("%s-%d", w.cfg.Consumer, i)
		g.Go(func() error {
			w.poll(ctx, consumer)
			return nil
		})
	}
	g.Go(func() error {
		w.reconcileLoop(ctx)
		return nil
	})
	w.logger.Info("triage workers started", zap.Int("workers", w.cfg.Workers))
	err := g.Wait()
	w.logger.Info("triage workers stopped")
	return err
}

func (w *TriageWorker) poll(ctx context.Context, consumer string) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		// Drain everything due before sleeping again.
		for ctx.Err() == nil {
			handled, err := w.RunOnce(ctx, consumer)
			if err != nil {
				w.logger.Warn("triage poll failed", zap.String("consumer", consumer), zap.Error(err))
				break
			}
			if !handled {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims and handles at most one job. It reports whether a job was
// claimed.
func (w *TriageWorker) RunOnce(ctx context.Context, consumer string) (bool, error) {
	claim, err := w.queue.Claim(ctx, consumer)
	if errors.Is(err, queue.ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	logger := w.logger.With(
		zap.Int64("ticket_id", claim.TicketID),
		zap.Int("attempt", claim.Attempt),
		zap.String("consumer", consumer))

	outcome, procErr := w.processor.Process(ctx, claim.TicketID)

	// The result must reach the queue even when shutdown started mid-job.
	settleCtx := context.WithoutCancel(ctx)
	if procErr != nil {
		retryAt := w.now().Add(queue.Backoff(claim.Attempt, w.cfg.RetryBase, w.cfg.RetryMax))
		dead, err := w.queue.Nack(settleCtx, *claim, retryAt)
		if err != nil {
			return true, fmt.Errorf("nack ticket %d: %w", claim.TicketID, err)
		}
		if dead {
			w.metrics.RecordDeadLetter()
			logger.Error("triage job dead-lettered", zap.Error(procErr))
			w.handOff(settleCtx, claim.TicketID)
		} else {
			logger.Warn("triage job failed, retry scheduled", zap.Time("retry_at", retryAt), zap.Error(procErr))
		}
		return true, nil
	}

	if err := w.queue.Ack(settleCtx, *claim); err != nil {
		return true, fmt.Errorf("ack ticket %d: %w", claim.TicketID, err)
	}
	logger.Info("triage job done",
		zap.String("status", string(outcome.Status)),
		zap.Bool("skipped", outcome.Skipped),
		zap.Bool("fallback", outcome.Fallback))
	return true, nil
}

func (w *TriageWorker) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		if _, err := w.Reconcile(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("triage reconcile failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Reconcile returns expired leases to the queue and recovers tickets stuck in
// APPROVED or AI_TRIAGE for longer than StaleAfter. Stuck tickets are
// re-enqueued unless their job was dead-lettered, in which case they go
// straight to an analyst. It returns how many tickets were recovered.
func (w *TriageWorker) Reconcile(ctx context.Context) (int, error) {
	if n, err := w.queue.RequeueExpired(ctx); err != nil {
		return 0, fmt.Errorf("requeue expired: %w", err)
	} else if n > 0 {
		w.logger.Info("expired triage leases requeued", zap.Int("count", n))
	}
	if w.store == nil {
		return 0, nil
	}

	cutoff := w.now().Add(-w.cfg.StaleAfter)
	stuck, err := w.listStuck(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(stuck) == 0 {
		return 0, nil
	}
	deadIDs, err := w.queue.DeadLetters(ctx, deadLetterScan)
	if err != nil {
		return 0, fmt.Errorf("list dead letters: %w", err)
	}
	dead := make(map[int64]bool, len(deadIDs))
	for _, id := range deadIDs {
		dead[id] = true
	}

	requeued, handedOff := 0, 0
	for _, id := range stuck {
		if dead[id] {
			if w.handOff(ctx, id) {
				handedOff++
			}
			continue
		}
		if err := w.queue.Enqueue(ctx, id, w.now()); err != nil {
			return requeued + handedOff, fmt.Errorf("enqueue ticket %d: %w", id, err)
		}
		requeued++
	}
	if requeued+handedOff > 0 {
		w.logger.Info("stuck tickets recovered",
			zap.Int("requeued", requeued),
			zap.Int("handed_off", handedOff))
	}
	return requeued + handedOff, nil
}

// listStuck collects ids first so hand-offs during the pass do not shift the
// pages still to be read.
func (w *TriageWorker) listStuck(ctx context.Context, cutoff time.Time) ([]int64, error) {
	const batch = 100
	filters := []repository.TicketFilter{
		{Statuses: []domain.TicketStatus{domain.TicketStatusApproved}, ApprovedBefore: &cutoff},
		{Statuses: []domain.TicketStatus{domain.TicketStatusAITriage}, ForwardedBefore: &cutoff},
	}
	var ids []int64
	for _, filter := range filters {
		filter.Sort = repository.SortQueue
		filter.Limit = batch
		for offset := 0; ; offset += batch {
			filter.Offset = offset
			page, err := w.store.Repos().Tickets.ListWithFilter(ctx, filter)
			if err != nil {
				return nil, fmt.Errorf("list stuck %s tickets: %w", filter.Statuses[0], err)
			}
			for _, t := range page {
				ids = append(ids, t.ID)
			}
			if len(page) < batch {
				break
			}
		}
	}
	return ids, nil
}

func (w *TriageWorker) handOff(ctx context.Context, ticketID int64) bool {
	logger := w.logger.With(zap.Int64("ticket_id", ticketID))
	outcome, err := w.processor.HandOff(ctx, ticketID)
	if err != nil {
		logger.Warn("analyst hand-off failed, reconcile will retry", zap.Error(err))
		return false
	}
	if outcome.Skipped {
		return false
	}
	logger.Info("ticket handed to analyst after triage gave up", zap.String("status", string(outcome.Status)))
	return true
}
