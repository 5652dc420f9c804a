package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// UsersHandler exposes auth endpoints for end-users.
type UsersHandler struct {
	auth    *service.AuthService
	cookies *auth.CookieManager
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService, cookies *auth.CookieManager) *UsersHandler {
	return &UsersHandler{auth: authService, cookies: cookies}
}

// Register handles POST /auth/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	res := h.auth.Register(c.UserContext(), h.cookies.For(c), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	return respondResult(c, res, http.StatusCreated)
}

// Login handles POST /auth/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.UserLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	res := h.auth.Login(c.UserContext(), h.cookies.For(c), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	return respondResult(c, res, http.StatusOK)
}

// Logout handles POST /auth/logout.
func (h *UsersHandler) Logout(c *fiber.Ctx) error {
	res := h.auth.Logout(c.UserContext(), h.cookies.For(c))
	return respondResult(c, res, http.StatusOK)
}

// Me handles GET /auth/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	user, ok := h.auth.Me(c.UserContext(), h.cookies.For(c))
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}
