package dto

import "time"

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject     string `json:"subject" form:"subject"`
	Description string `json:"description" form:"description"`
	Priority    string `json:"priority" form:"priority"`
}

// TicketResponse is the serialized ticket.
type TicketResponse struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
