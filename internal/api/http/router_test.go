package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sistec/helpdesk-api/internal/api/http/handlers"
	"github.com/sistec/helpdesk-api/internal/auth"
	"github.com/sistec/helpdesk-api/internal/domain"
	"github.com/sistec/helpdesk-api/internal/observability"
	"github.com/sistec/helpdesk-api/internal/queue"
	"github.com/sistec/helpdesk-api/internal/repository"
	"github.com/sistec/helpdesk-api/internal/service"
)

type automateClassifier struct{}

func (automateClassifier) Classify(context.Context, domain.TicketContext) (domain.TriageVerdict, error) {
	return domain.TriageVerdict{Recommendation: domain.RecommendAutomate, SolutionConfidence: 0.9}, nil
}

func (automateClassifier) GenerateSolution(context.Context, domain.TicketContext, domain.TriageVerdict) (string, error) {
	return "Reinicie o computador e tente novamente.", nil
}

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
	queue  *queue.MemoryQueue
	triage *service.TriageService
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	for _, u := range []domain.User{
		{ID: 1, Name: "Ana", AccessLevel: domain.AccessLevelRequester, Active: true},
		{ID: 2, Name: "Bruno", AccessLevel: domain.AccessLevelAnalyst, Active: true},
		{ID: 3, Name: "Carla", AccessLevel: domain.AccessLevelManager, Active: true},
		{ID: 4, Name: "Davi", AccessLevel: domain.AccessLevelAdmin, Active: true},
	} {
		store.PutUser(u)
	}
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	q := queue.NewMemoryQueue(queue.Options{})
	logger := zap.NewNop()

	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		Store: store, Scheduler: q, Metrics: metrics, Logger: logger, TriageDelay: time.Second,
	})
	triage := service.NewTriageService(service.TriageDependencies{
		Store: store, Lifecycle: lifecycle, AI: automateClassifier{}, Metrics: metrics, Logger: logger,
	})
	tickets := service.NewTicketService(service.TicketDependencies{Store: store})
	tokens := auth.NewTokenManager("test-secret", 60)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("sistec-helpdesk-api", "test", map[string]handlers.Pinger{"store": store}),
		Tickets:        handlers.NewTicketsHandler(tickets, lifecycle, triage),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Repos().Users),
		Gatherer:       reg,
	})
	return &testServer{app: app, tokens: tokens, queue: q, triage: triage}
}

func (s *testServer) do(t *testing.T, userID int64, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID > 0 {
		token, _, err := s.tokens.GenerateToken(userID)
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		if env.Status != resp.StatusCode {
			t.Errorf("envelope status %d != HTTP status %d", env.Status, resp.StatusCode)
		}
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return out
}

type ticketBody struct {
	ID         int64  `json:"id"`
	Title      string `json:"titulo"`
	Priority   int    `json:"prioridade"`
	Status     string `json:"status"`
	ResolverID *int64 `json:"resolvido_por"`
}

func (s *testServer) create(t *testing.T) ticketBody {
	t.Helper()
	status, env := s.do(t, 1, http.MethodPost, "/chamados", map[string]string{
		"categoria":           "Software",
		"problema":            "Outlook",
		"descricao_detalhada": "O Outlook fecha sozinho ao abrir anexos. Acontece desde ontem.",
		"prioridade":          "alta",
	})
	if status != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", status, env.Message)
	}
	return decode[ticketBody](t, env)
}

func TestRoutes_RequireAuthentication(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, 0, http.MethodGet, "/chamados", nil)
	if status != http.StatusUnauthorized || env.Message == "" {
		t.Errorf("status = %d, message = %q", status, env.Message)
	}
}

func TestRoutes_CreateAndRead(t *testing.T) {
	s := newTestServer(t)
	ticket := s.create(t)
	if ticket.Priority != 3 || ticket.Status != string(domain.TicketStatusOpen) {
		t.Errorf("ticket = %+v", ticket)
	}
	if ticket.Title != "O Outlook fecha sozinho ao abrir anexos" {
		t.Errorf("title = %q", ticket.Title)
	}

	status, env := s.do(t, 1, http.MethodGet, "/chamados/1", nil)
	if status != http.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	detail := decode[struct {
		History []struct {
			Status string `json:"status"`
		} `json:"historico"`
	}](t, env)
	if len(detail.History) != 1 || detail.History[0].Status != "OPEN" {
		t.Errorf("history = %+v", detail.History)
	}

	status, _ = s.do(t, 1, http.MethodGet, "/chamados/abc", nil)
	if status != http.StatusBadRequest {
		t.Errorf("non-numeric id status = %d", status)
	}
	status, _ = s.do(t, 1, http.MethodGet, "/chamados/99", nil)
	if status != http.StatusNotFound {
		t.Errorf("missing ticket status = %d", status)
	}
	status, _ = s.do(t, 1, http.MethodGet, "/chamados?status=BOGUS", nil)
	if status != http.StatusBadRequest {
		t.Errorf("bad status filter = %d", status)
	}
}

func TestRoutes_ValidationErrors(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, 1, http.MethodPost, "/chamados", map[string]string{"categoria": "Rede"})
	if status != http.StatusBadRequest {
		t.Errorf("missing fields status = %d", status)
	}
	if !strings.Contains(string(env.Data), "descricao_detalhada") {
		t.Errorf("details = %s", env.Data)
	}

	s.create(t)
	status, _ = s.do(t, 3, http.MethodPost, "/chamados/1/rejeitar", map[string]string{"motivo": "curto"})
	if status != http.StatusBadRequest {
		t.Errorf("short reason status = %d", status)
	}
}

func TestRoutes_AccessLevels(t *testing.T) {
	s := newTestServer(t)
	s.create(t)

	checks := []struct {
		user   int64
		method string
		path   string
		want   int
	}{
		{1, http.MethodGet, "/chamados/aprovacao", http.StatusForbidden},
		{2, http.MethodGet, "/chamados/aprovacao", http.StatusForbidden},
		{3, http.MethodGet, "/chamados/aprovacao", http.StatusOK},
		{1, http.MethodGet, "/chamados/com-analista", http.StatusForbidden},
		{2, http.MethodGet, "/chamados/com-analista", http.StatusOK},
		{2, http.MethodGet, "/chamados/escalados", http.StatusForbidden},
		{1, http.MethodPost, "/chamados/1/aprovar", http.StatusForbidden},
		{3, http.MethodPost, "/chamados/1/fechar", http.StatusForbidden},
	}
	for _, c := range checks {
		status, _ := s.do(t, c.user, c.method, c.path, nil)
		if status != c.want {
			t.Errorf("user %d %s %s = %d, want %d", c.user, c.method, c.path, status, c.want)
		}
	}
}

func TestRoutes_ApproveTriageFeedbackFlow(t *testing.T) {
	s := newTestServer(t)
	ticket := s.create(t)

	status, env := s.do(t, 3, http.MethodPost, "/chamados/1/aprovar", nil)
	if status != http.StatusOK || decode[ticketBody](t, env).Status != "APPROVED" {
		t.Fatalf("approve = %d %s", status, env.Data)
	}
	if pending := s.queue.Pending(); len(pending) != 1 || pending[0] != ticket.ID {
		t.Fatalf("pending = %v", pending)
	}
	status, _ = s.do(t, 3, http.MethodPost, "/chamados/1/aprovar", nil)
	if status != http.StatusConflict {
		t.Errorf("second approve = %d, want 409", status)
	}

	if _, err := s.triage.Process(context.Background(), ticket.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	status, env = s.do(t, 1, http.MethodGet, "/chamados/1/solucao-ia", nil)
	if status != http.StatusOK {
		t.Fatalf("solution status = %d", status)
	}
	solution := decode[struct {
		Type    string `json:"tipo"`
		Content string `json:"conteudo"`
	}](t, env)
	if solution.Type != "SOLUTION" || solution.Content == "" {
		t.Errorf("solution = %+v", solution)
	}

	status, _ = s.do(t, 1, http.MethodPost, "/chamados/1/feedback-ia", map[string]string{"feedback": "TALVEZ"})
	if status != http.StatusBadRequest {
		t.Errorf("invalid feedback = %d", status)
	}
	status, env = s.do(t, 1, http.MethodPost, "/chamados/1/feedback-ia", map[string]string{"feedback": "DEU_CERTO"})
	if status != http.StatusOK {
		t.Fatalf("feedback = %d (%s)", status, env.Message)
	}
	resolved := decode[ticketBody](t, env)
	if resolved.Status != "RESOLVED" || resolved.ResolverID == nil || *resolved.ResolverID != 1 {
		t.Errorf("resolved = %+v", resolved)
	}

	report := map[string]any{"chamado_id": ticket.ID, "relatorio": "Usuário resolveu reiniciando a máquina."}
	status, _ = s.do(t, 2, http.MethodPost, "/chamados/resolver-com-relatorio", report)
	if status != http.StatusCreated {
		t.Errorf("report = %d", status)
	}
	status, _ = s.do(t, 2, http.MethodPost, "/chamados/resolver-com-relatorio", report)
	if status != http.StatusConflict {
		t.Errorf("duplicate report = %d", status)
	}

	status, env = s.do(t, 4, http.MethodPost, "/chamados/1/fechar", nil)
	if status != http.StatusOK || decode[ticketBody](t, env).Status != "CLOSED" {
		t.Errorf("close = %d %s", status, env.Data)
	}
}

func TestRoutes_UnknownRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, 0, http.MethodGet, "/nada", nil)
	if status != http.StatusNotFound || env.Status != http.StatusNotFound {
		t.Errorf("status = %d, envelope = %+v", status, env)
	}
}

func TestRoutes_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, 0, http.MethodGet, "/health/ready", nil)
	if status != http.StatusOK || !strings.Contains(string(env.Data), `"store":"ok"`) {
		t.Errorf("ready = %d %s", status, env.Data)
	}

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "sistec_http_requests_total") {
		t.Errorf("metrics = %d\n%s", resp.StatusCode, body)
	}
}
