package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sistec/helpdesk-api/internal/domain"
	apperrors "github.com/sistec/helpdesk-api/pkg/util/errorutil"
)

// RequireLevel ensures the caller's access level is at least min.
func RequireLevel(min domain.AccessLevel) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := UserFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !user.AccessLevel.AtLeast(min) {
			return apperrors.NewForbidden("insufficient access level")
		}
		return c.Next()
	}
}
