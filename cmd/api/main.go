package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sistec/helpdesk-api/internal/ai"
	httptransport "github.com/sistec/helpdesk-api/internal/api/http"
	"github.com/sistec/helpdesk-api/internal/api/http/handlers"
	"github.com/sistec/helpdesk-api/internal/auth"
	"github.com/sistec/helpdesk-api/internal/config"
	"github.com/sistec/helpdesk-api/internal/domain"
	"github.com/sistec/helpdesk-api/internal/events"
	"github.com/sistec/helpdesk-api/internal/observability"
	"github.com/sistec/helpdesk-api/internal/persistence"
	"github.com/sistec/helpdesk-api/internal/queue"
	"github.com/sistec/helpdesk-api/internal/repository"
	"github.com/sistec/helpdesk-api/internal/service"
	"github.com/sistec/helpdesk-api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(*cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service stopped with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			return err
		}
	}

	rdb := persistence.NewRedis(cfg.Redis, logger)
	defer rdb.Close()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	dependencies := map[string]handlers.Pinger{}

	var store repository.Store
	if pg.Enabled() {
		store = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		mem := repository.NewMemoryStore()
		seedDevelopmentUsers(mem, tokens, cfg.App.Env, logger)
		store = mem
	}
	dependencies["store"] = store

	queueOpts := queue.Options{
		Key:               cfg.Triage.QueueKey,
		VisibilityTimeout: cfg.Triage.VisibilityTimeout(),
		MaxAttempts:       cfg.Triage.MaxAttempts,
	}
	var triageQueue queue.Queue
	if rdb.Enabled() {
		triageQueue = queue.NewRedisQueue(rdb.Client, queueOpts)
		dependencies["redis"] = rdb
	} else {
		triageQueue = queue.NewMemoryQueue(queueOpts)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		return err
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, cfg.Notification))

	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		Store:       store,
		Dispatcher:  dispatcher,
		Scheduler:   triageQueue,
		Metrics:     metrics,
		Logger:      logger,
		TriageDelay: cfg.Triage.Delay(),
	})
	var classifier service.Classifier
	if cfg.AI.APIKey != "" {
		classifier = ai.NewTriager(ai.NewClient(cfg.AI))
	} else {
		logger.Warn("AI_API_KEY not provided; every ticket is routed to an analyst")
	}
	triage := service.NewTriageService(service.TriageDependencies{
		Store:       store,
		Lifecycle:   lifecycle,
		AI:          classifier,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
		AITimeout:   cfg.AI.Timeout(),
		SolutionMax: cfg.Triage.SolutionMaxLength,
		RecentLimit: cfg.Triage.RecentTicketsForContext,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		Store:      store,
		Dispatcher: dispatcher,
	})

	triageWorker := worker.NewTriageWorker(worker.TriageWorkerDependencies{
		Queue:     triageQueue,
		Processor: triage,
		Store:     store,
		Metrics:   metrics,
		Logger:    logger,
		Config: worker.TriageWorkerConfig{
			Workers:           cfg.Triage.Workers,
			Consumer:          cfg.App.Name,
			PollInterval:      cfg.Triage.PollInterval(),
			ReconcileInterval: cfg.Triage.ReconcileInterval(),
			StaleAfter:        cfg.Triage.StaleAfter(),
		},
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		ErrorHandler:          httptransport.ErrorHandler,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies),
		Tickets:        handlers.NewTicketsHandler(tickets, lifecycle, triage),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Repos().Users),
		Gatherer:       registry,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return triageWorker.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// seedDevelopmentUsers fills the in-memory store with one account per access
// level and logs a bearer token for each outside production.
func seedDevelopmentUsers(store *repository.MemoryStore, tokens *auth.TokenManager, env string, logger *zap.Logger) {
	users := []domain.User{
		{ID: 1, Name: "Solicitante", Email: "solicitante@sistec.local", AccessLevel: domain.AccessLevelRequester, Active: true},
		{ID: 2, Name: "Analista", Email: "analista@sistec.local", AccessLevel: domain.AccessLevelAnalyst, Active: true},
		{ID: 3, Name: "Gestor", Email: "gestor@sistec.local", AccessLevel: domain.AccessLevelManager, Active: true},
		{ID: 4, Name: "Administrador", Email: "admin@sistec.local", AccessLevel: domain.AccessLevelAdmin, Active: true},
	}
	for _, u := range users {
		store.PutUser(u)
		if env == "production" {
			continue
		}
		token, _, err := tokens.GenerateToken(u.ID)
		if err != nil {
			logger.Warn("failed to issue development token", zap.Int64("user_id", u.ID), zap.Error(err))
			continue
		}
		logger.Info("development user", zap.Int64("user_id", u.ID), zap.Int("access_level", int(u.AccessLevel)), zap.String("token", token))
	}
}
