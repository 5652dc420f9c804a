package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "Open"
	TicketStatusClosed TicketStatus = "Closed"
)

// TicketPriority enumerates urgency levels chosen by the requester.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "Low"
	TicketPriorityMedium TicketPriority = "Medium"
	TicketPriorityHigh   TicketPriority = "High"
)

// Valid reports whether p is one of the known priorities.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests. OwnerID never changes after creation.
type Ticket struct {
	ID          string
	Subject     string
	Description string
	Priority    TicketPriority
	Status      TicketStatus
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OwnedBy reports whether the ticket belongs to userID.
func (t *Ticket) OwnedBy(userID string) bool {
	return t != nil && userID != "" && t.OwnerID == userID
}
