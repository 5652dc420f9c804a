package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const (
	msgLoginToCreate   = "You must be logged in to create a ticket"
	msgLoginToClose    = "You must be logged in to close a ticket"
	msgInvalidPriority = "Invalid priority"
	msgTicketCreated   = "Ticket created successfully"
	msgCreateFallback  = "An error occurred while trying to create the ticket"
	msgTicketIDMissing = "Ticket ID is required"
	msgTicketForbidden = "Ticket not found or you are not allowed to close it"
	msgTicketClosed    = "Ticket closed successfully"
	msgCloseFallback   = "An error occurred while trying to close the ticket"
)

// TicketsPath is the list view invalidated by every ticket mutation.
const TicketsPath = "/tickets"

// TicketPath returns the detail view path of one ticket.
func TicketPath(id string) string {
	return TicketsPath + "/" + id
}

// ViewCache stores rendered views keyed by path and drops them on Invalidate.
type ViewCache interface {
	Load(ctx context.Context, path, variant string, dst any) (int64, bool, error)
	Store(ctx context.Context, path string, version int64, variant string, value any) error
	Invalidate(ctx context.Context, path string) error
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Subject     string
	Description string
	Priority    string
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	resolver   *auth.Resolver
	views      ViewCache
	dispatcher events.Dispatcher
	telemetry  observability.Telemetry
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service. Views and Dispatcher
// are optional.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Resolver   *auth.Resolver
	Views      ViewCache
	Dispatcher events.Dispatcher
	Telemetry  observability.Telemetry
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	telemetry := deps.Telemetry
	if telemetry == nil {
		telemetry = observability.Nop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		resolver:   deps.Resolver,
		views:      deps.Views,
		dispatcher: deps.Dispatcher,
		telemetry:  telemetry,
		now:        time.Now,
	}
}

// Create opens a ticket owned by the signed-in user.
func (s *TicketService) Create(ctx context.Context, sess auth.Session, input CreateTicketInput) domain.Result {
	out := outcome{telemetry: s.telemetry, category: observability.CategoryTicket, fallback: msgCreateFallback}

	user, ok := s.resolver.Resolve(ctx, sess)
	if !ok {
		return out.fail(errorutil.NewUnauthorized(msgLoginToCreate))
	}
	fields := []zap.Field{zap.String("user_id", user.ID)}

	subject := strings.TrimSpace(input.Subject)
	description := strings.TrimSpace(input.Description)
	priority := domain.TicketPriority(strings.TrimSpace(input.Priority))
	if subject == "" || description == "" || priority == "" {
		return out.fail(errorutil.NewValidationError(msgFieldsRequired, nil), fields...)
	}
	if !priority.Valid() {
		return out.fail(errorutil.NewValidationError(msgInvalidPriority, map[string]any{"priority": priority}), fields...)
	}

	ticket := &domain.Ticket{
		Subject:     subject,
		Description: description,
		Priority:    priority,
		Status:      domain.TicketStatusOpen,
		OwnerID:     user.ID,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return out.fail(errorutil.NewInternalError(err), fields...)
	}

	s.invalidate(ctx, TicketsPath)
	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		UserID:   user.ID,
		TicketID: ticket.ID,
		Payload:  events.TicketCreatedPayload{Subject: ticket.Subject, Priority: ticket.Priority},
	})
	return out.succeed(msgTicketCreated, append(fields, zap.String("ticket_id", ticket.ID))...)
}

// List returns the signed-in user's tickets, newest first. Anonymous callers and store
// failures get an empty list.
func (s *TicketService) List(ctx context.Context, sess auth.Session) []domain.Ticket {
	user, ok := s.resolver.Resolve(ctx, sess)
	if !ok {
		s.telemetry.Log("User not found, cannot fetch tickets", observability.CategoryTicket, observability.SeverityWarning, nil)
		return []domain.Ticket{}
	}

	var cached []domain.Ticket
	version, hit := s.load(ctx, TicketsPath, user.ID, &cached)
	if hit {
		return cached
	}

	tickets, err := s.tickets.ListByOwner(ctx, user.ID)
	if err != nil {
		s.telemetry.Log("Error fetching tickets", observability.CategoryTicket, observability.SeverityError, err,
			zap.String("user_id", user.ID))
		return []domain.Ticket{}
	}
	s.store(ctx, TicketsPath, version, user.ID, tickets)

	s.telemetry.Log("Tickets fetched", observability.CategoryTicket, observability.SeverityInfo, nil,
		zap.String("user_id", user.ID), zap.Int("count", len(tickets)))
	return tickets
}

// Get fetches a ticket by id. Ownership is not checked here.
func (s *TicketService) Get(ctx context.Context, id string) (*domain.Ticket, bool) {
	id, ok := canonicalID(id)
	if !ok {
		s.telemetry.Log("Ticket not found", observability.CategoryTicket, observability.SeverityWarning, nil,
			zap.String("ticket_id", id))
		return nil, false
	}

	path := TicketPath(id)
	var cached domain.Ticket
	version, hit := s.load(ctx, path, "", &cached)
	if hit {
		return &cached, true
	}

	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.telemetry.Log("Ticket not found", observability.CategoryTicket, observability.SeverityWarning, nil,
				zap.String("ticket_id", id))
		} else {
			s.telemetry.Log("Error fetching the ticket details", observability.CategoryTicket, observability.SeverityError, err,
				zap.String("ticket_id", id))
		}
		return nil, false
	}
	s.store(ctx, path, version, "", ticket)
	return ticket, true
}

// Close marks the caller's ticket Closed. Closing an already closed ticket succeeds.
func (s *TicketService) Close(ctx context.Context, sess auth.Session, ticketID string) domain.Result {
	out := outcome{telemetry: s.telemetry, category: observability.CategoryTicket, fallback: msgCloseFallback}

	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return out.fail(errorutil.NewValidationError(msgTicketIDMissing, nil))
	}
	fields := []zap.Field{zap.String("ticket_id", ticketID)}

	user, ok := s.resolver.Resolve(ctx, sess)
	if !ok {
		return out.fail(errorutil.NewUnauthorized(msgLoginToClose), fields...)
	}
	fields = append(fields, zap.String("user_id", user.ID))

	ticket, err := s.ownedTicket(ctx, user.ID, ticketID)
	if err != nil {
		return out.fail(err, fields...)
	}

	previous := ticket.Status
	if _, err := s.tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusClosed); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return out.fail(errorutil.NewForbidden(msgTicketForbidden), fields...)
		}
		return out.fail(errorutil.NewInternalError(err), fields...)
	}

	s.invalidate(ctx, TicketsPath)
	s.invalidate(ctx, TicketPath(ticket.ID))
	s.publish(ctx, events.Event{
		Type:     events.EventTicketClosed,
		UserID:   user.ID,
		TicketID: ticket.ID,
		Payload:  events.TicketClosedPayload{PreviousStatus: previous},
	})
	return out.succeed(msgTicketClosed, fields...)
}

// ownedTicket loads the ticket for a mutation by userID. Missing and foreign tickets are
// indistinguishable to the caller.
func (s *TicketService) ownedTicket(ctx context.Context, userID, ticketID string) (*domain.Ticket, error) {
	ticketID, ok := canonicalID(ticketID)
	if !ok {
		return nil, errorutil.NewForbidden(msgTicketForbidden)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errorutil.NewForbidden(msgTicketForbidden)
		}
		return nil, errorutil.NewInternalError(err)
	}
	if !ticket.OwnedBy(userID) {
		return nil, errorutil.NewForbidden(msgTicketForbidden)
	}
	return ticket, nil
}

// canonicalID returns the lowercase hyphenated form of a ticket id, so every spelling
// of the same UUID shares one cache key.
func canonicalID(id string) (string, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return strings.TrimSpace(id), false
	}
	return parsed.String(), true
}

func (s *TicketService) load(ctx context.Context, path, variant string, dst any) (int64, bool) {
	if s.views == nil {
		return 0, false
	}
	version, hit, err := s.views.Load(ctx, path, variant, dst)
	if err != nil {
		s.telemetry.Log("View cache read failed", observability.CategoryCache, observability.SeverityWarning, err,
			zap.String("path", path))
		return 0, false
	}
	return version, hit
}

func (s *TicketService) store(ctx context.Context, path string, version int64, variant string, value any) {
	if s.views == nil {
		return
	}
	if err := s.views.Store(ctx, path, version, variant, value); err != nil {
		s.telemetry.Log("View cache write failed", observability.CategoryCache, observability.SeverityWarning, err,
			zap.String("path", path))
	}
}

func (s *TicketService) invalidate(ctx context.Context, path string) {
	if s.views == nil {
		return
	}
	if err := s.views.Invalidate(ctx, path); err != nil {
		s.telemetry.Log("View invalidation failed", observability.CategoryCache, observability.SeverityError, err,
			zap.String("path", path))
	}
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.Timestamp = s.now().UTC()
	_ = s.dispatcher.Publish(ctx, event)
}
