package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sistec/helpdesk-api/internal/api/http/handlers"
	"github.com/sistec/helpdesk-api/internal/auth"
	"github.com/sistec/helpdesk-api/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	// Gatherer backs /metrics; nil leaves the endpoint unregistered.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	requester := auth.RequireLevel(domain.AccessLevelRequester)
	analyst := auth.RequireLevel(domain.AccessLevelAnalyst)
	manager := auth.RequireLevel(domain.AccessLevelManager)
	admin := auth.RequireLevel(domain.AccessLevelAdmin)

	t := cfg.Tickets
	chamados := app.Group("/chamados", cfg.AuthMiddleware.Handle)
	chamados.Post("/", requester, t.CreateTicket)
	chamados.Get("/", requester, t.ListTickets)

	// Static paths before /:id.
	chamados.Get("/aprovacao", manager, t.ApprovalQueue)
	chamados.Get("/com-analista", analyst, t.AnalystQueue)
	chamados.Get("/escalados", manager, t.EscalatedQueue)
	chamados.Post("/resolver-com-relatorio", analyst, t.CreateReport)

	chamados.Get("/:id", requester, t.GetTicket)
	chamados.Get("/:id/historico", requester, t.ListHistory)
	chamados.Post("/:id/aprovar", manager, t.Approve)
	chamados.Post("/:id/rejeitar", manager, t.Reject)
	chamados.Get("/:id/solucao-ia", requester, t.LatestSolution)
	chamados.Post("/:id/feedback-ia", requester, t.SubmitFeedback)
	chamados.Post("/:id/resolver", analyst, t.Resolve)
	chamados.Post("/:id/escalar", analyst, t.Escalate)
	chamados.Post("/:id/resolver-escalado", manager, t.ResolveEscalated)
	chamados.Post("/:id/fechar", admin, t.Close)
}
