package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// MemoryUserRepository is an in-process UserRepository used when no database is configured.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryUserRepository returns an empty store.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := emailKey(user.Email)
	if _, exists := r.byEmail[key]; exists {
		return ErrDuplicate
	}
	now := r.now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := *user
	r.byID[user.ID] = &stored
	r.byEmail[key] = user.ID
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *user
	return &out, nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[emailKey(email)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r.byID[id]
	return &out, nil
}

// Delete removes a user. Only used to simulate externally deleted accounts.
func (r *MemoryUserRepository) Delete(_ context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.byID[id]; ok {
		delete(r.byEmail, emailKey(user.Email))
		delete(r.byID, id)
	}
}

// emailKey mirrors the case-insensitive unique index on users.email.
func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type memoryTicket struct {
	ticket domain.Ticket
	seq    int64
}

// MemoryTicketRepository is an in-process TicketRepository.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]*memoryTicket
	seq     int64
	now     func() time.Time
}

// NewMemoryTicketRepository returns an empty store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets: make(map[string]*memoryTicket),
		now:     time.Now,
	}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	r.seq++
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	r.tickets[ticket.ID] = &memoryTicket{ticket: *ticket, seq: r.seq}
	return nil
}

func (r *MemoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := entry.ticket
	return &out, nil
}

func (r *MemoryTicketRepository) ListByOwner(_ context.Context, ownerID string) ([]domain.Ticket, error) {
	r.mu.RLock()
	entries := make([]*memoryTicket, 0)
	for _, entry := range r.tickets {
		if entry.ticket.OwnerID == ownerID {
			entries = append(entries, entry)
		}
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.ticket.CreatedAt.Equal(b.ticket.CreatedAt) {
			return a.ticket.CreatedAt.After(b.ticket.CreatedAt)
		}
		return a.seq > b.seq
	})

	result := make([]domain.Ticket, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entry.ticket)
	}
	return result, nil
}

func (r *MemoryTicketRepository) UpdateStatus(_ context.Context, id string, status domain.TicketStatus) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	entry.ticket.Status = status
	entry.ticket.UpdatedAt = r.now().UTC()
	out := entry.ticket
	return &out, nil
}
