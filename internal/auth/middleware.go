package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const userKey = "auth_user"

// SessionMiddleware resolves the session cookie once per request.
type SessionMiddleware struct {
	cookies  *CookieManager
	resolver *Resolver
}

// NewSessionMiddleware constructs middleware.
func NewSessionMiddleware(cookies *CookieManager, resolver *Resolver) *SessionMiddleware {
	return &SessionMiddleware{cookies: cookies, resolver: resolver}
}

// Handle stores the resolved user, if any, in the request locals. Anonymous requests pass.
func (m *SessionMiddleware) Handle(c *fiber.Ctx) error {
	if user, ok := m.resolver.Resolve(c.UserContext(), m.cookies.For(c)); ok {
		c.Locals(userKey, user)
	}
	return c.Next()
}

// RequireUser rejects requests without a resolved user.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := UserFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

// UserFromContext retrieves the user resolved by SessionMiddleware.
func UserFromContext(c *fiber.Ctx) (*domain.User, bool) {
	user, ok := c.Locals(userKey).(*domain.User)
	return user, ok && user != nil
}
