package service

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/cache"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
)

const testSecret = "service-test-secret"

// memSession is a Session kept in memory instead of a cookie jar.
type memSession struct {
	token    string
	set      bool
	cleared  bool
	setErr   error
	clearErr error
}

func (s *memSession) Set(token string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.token, s.set = token, true
	return nil
}

func (s *memSession) Get() (string, bool) {
	return s.token, s.token != ""
}

func (s *memSession) Clear() error {
	if s.clearErr != nil {
		return s.clearErr
	}
	s.token, s.cleared = "", true
	return nil
}

type fixture struct {
	users     *repository.MemoryUserRepository
	tickets   repository.TicketRepository
	tokens    *auth.TokenService
	resolver  *auth.Resolver
	denylist  auth.Denylist
	views     ViewCache
	auth      *AuthService
	ticket    *TicketService
	logs      *observer.ObservedLogs
	published []events.Event
}

type fixtureOption func(*fixture)

func withTickets(repo repository.TicketRepository) fixtureOption {
	return func(f *fixture) { f.tickets = repo }
}

func withRedis(t *testing.T) fixtureOption {
	return func(f *fixture) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		f.denylist = auth.NewRedisDenylist(client)
		f.views = cache.NewViewCache(client, 0)
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	telemetry := observability.NewTelemetry(zap.New(core), nil)

	f := &fixture{
		users:   repository.NewMemoryUserRepository(),
		tickets: repository.NewMemoryTicketRepository(),
		logs:    logs,
	}
	for _, opt := range opts {
		opt(f)
	}

	dispatcher := events.NewInMemoryDispatcher(telemetry)
	record := func(_ context.Context, e events.Event) error {
		f.published = append(f.published, e)
		return nil
	}
	dispatcher.Subscribe(events.EventUserRegistered, record)
	dispatcher.Subscribe(events.EventTicketCreated, record)
	dispatcher.Subscribe(events.EventTicketClosed, record)

	f.tokens = auth.NewTokenService(testSecret, telemetry)
	f.resolver = auth.NewResolver(f.tokens, f.users, f.denylist, telemetry)
	f.auth = NewAuthService(config.AuthConfig{BcryptCost: bcrypt.MinCost}, AuthDependencies{
		UserRepo:   f.users,
		Tokens:     f.tokens,
		Resolver:   f.resolver,
		Denylist:   f.denylist,
		Dispatcher: dispatcher,
		Telemetry:  telemetry,
	})
	f.ticket = NewTicketService(TicketDependencies{
		TicketRepo: f.tickets,
		Resolver:   f.resolver,
		Views:      f.views,
		Dispatcher: dispatcher,
		Telemetry:  telemetry,
	})
	return f
}

// signUp registers a user and returns the signed-in session.
func (f *fixture) signUp(t *testing.T, name, email string) (*memSession, *domain.User) {
	t.Helper()
	sess := &memSession{}
	res := f.auth.Register(context.Background(), sess, RegisterInput{Name: name, Email: email, Password: "pw123"})
	require.True(t, res.Success, res.Message)
	user, err := f.users.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return sess, user
}

func (f *fixture) openTicket(t *testing.T, sess *memSession, subject string) domain.Ticket {
	t.Helper()
	res := f.ticket.Create(context.Background(), sess, CreateTicketInput{
		Subject:     subject,
		Description: "desc",
		Priority:    "High",
	})
	require.True(t, res.Success, res.Message)
	list := f.ticket.List(context.Background(), sess)
	require.NotEmpty(t, list)
	return list[0]
}

// failingTickets fails every call with err.
type failingTickets struct {
	err error
}

func (r failingTickets) Create(context.Context, *domain.Ticket) error { return r.err }

func (r failingTickets) GetByID(context.Context, string) (*domain.Ticket, error) {
	return nil, r.err
}

func (r failingTickets) ListByOwner(context.Context, string) ([]domain.Ticket, error) {
	return nil, r.err
}

func (r failingTickets) UpdateStatus(context.Context, string, domain.TicketStatus) (*domain.Ticket, error) {
	return nil, r.err
}

var errStoreDown = errors.New("connection refused")
