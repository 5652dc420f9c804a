package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// respondResult writes a use-case result with the status its code maps to.
func respondResult(c *fiber.Ctx, res domain.Result, successStatus int) error {
	status := apperrors.StatusForCode(res.Code)
	if res.Success {
		status = successStatus
	}
	return c.Status(status).JSON(res)
}

func userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:          ticket.ID,
		Subject:     ticket.Subject,
		Description: ticket.Description,
		Priority:    string(ticket.Priority),
		Status:      string(ticket.Status),
		OwnerID:     ticket.OwnerID,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
}
