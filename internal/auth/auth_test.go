package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sistec/helpdesk-api/internal/domain"
	"github.com/sistec/helpdesk-api/internal/repository"
	apperrors "github.com/sistec/helpdesk-api/pkg/util/errorutil"
)

type userStub map[int64]domain.User

func (u userStub) GetByID(_ context.Context, id int64) (*domain.User, error) {
	user, ok := u[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func newTestApp(tokens *TokenManager, users repository.UserRepository, min domain.AccessLevel) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.HTTPStatusOf(err))
		},
	})
	mw := NewAuthMiddleware(tokens, users)
	app.Get("/private", mw.Handle, RequireLevel(min), func(c *fiber.Ctx) error {
		user, _ := UserFromContext(c)
		return c.SendString(user.Name)
	})
	return app
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("s3cret", 5)
	token, expires, err := tm.GenerateToken(42)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(expires) > 5*time.Minute || time.Until(expires) < 4*time.Minute {
		t.Errorf("expires = %v", expires)
	}
	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != 42 || claims.Subject != "42" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := NewTokenManager("other", 5).ParseToken(token); err == nil {
		t.Error("token signed with another secret accepted")
	}
}

func TestParseToken_Expired(t *testing.T) {
	tm := NewTokenManager("s3cret", 1)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := tm.GenerateToken(1)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	tm.now = time.Now
	if _, err := tm.ParseToken(token); err == nil {
		t.Error("expired token accepted")
	}
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("s3cret", 60)
	users := userStub{
		1: {ID: 1, Name: "Ana", AccessLevel: domain.AccessLevelRequester, Active: true},
		3: {ID: 3, Name: "Carla", AccessLevel: domain.AccessLevelManager, Active: true},
		5: {ID: 5, Name: "Ex", AccessLevel: domain.AccessLevelAdmin, Active: false},
	}
	app := newTestApp(tm, users, domain.AccessLevelManager)
	bearer := func(id int64) string {
		token, _, err := tm.GenerateToken(id)
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		return "Bearer " + token
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"unknown user", bearer(99), http.StatusUnauthorized},
		{"inactive user", bearer(5), http.StatusUnauthorized},
		{"level too low", bearer(1), http.StatusForbidden},
		{"manager", bearer(3), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
