package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketsHandler manages end-user ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
	cookies *auth.CookieManager
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, cookies *auth.CookieManager) *TicketsHandler {
	return &TicketsHandler{service: ticketService, cookies: cookies}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	res := h.service.Create(c.UserContext(), h.cookies.For(c), service.CreateTicketInput{
		Subject:     req.Subject,
		Description: req.Description,
		Priority:    req.Priority,
	})
	return respondResult(c, res, http.StatusCreated)
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets := h.service.List(c.UserContext(), h.cookies.For(c))
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, ok := h.service.Get(c.UserContext(), c.Params("id"))
	if !ok {
		return apperrors.NewNotFound("ticket", nil)
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// CloseTicket POST /tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	res := h.service.Close(c.UserContext(), h.cookies.For(c), c.Params("id"))
	return respondResult(c, res, http.StatusOK)
}
