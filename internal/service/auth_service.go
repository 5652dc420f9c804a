package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const (
	msgFieldsRequired     = "All fields are required"
	msgUserExists         = "User already exists"
	msgRegistered         = "Registration successful"
	msgInvalidCredentials = "Invalid email or password"
	msgLoggedIn           = "Login successful"
	msgLoggedOut          = "Logout successful"
	msgAuthFallback       = "Something went wrong, please try again"
)

// RegisterInput carries the registration form.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginInput carries the login form.
type LoginInput struct {
	Email    string
	Password string
}

// AuthService coordinates registration, login and logout flows.
type AuthService struct {
	users      repository.UserRepository
	tokens     *auth.TokenService
	resolver   *auth.Resolver
	denylist   auth.Denylist
	dispatcher events.Dispatcher
	telemetry  observability.Telemetry
	bcryptCost int
	now        func() time.Time
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Tokens     *auth.TokenService
	Resolver   *auth.Resolver
	Denylist   auth.Denylist
	Dispatcher events.Dispatcher
	Telemetry  observability.Telemetry
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	telemetry := deps.Telemetry
	if telemetry == nil {
		telemetry = observability.Nop()
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = auth.DefaultBcryptCost
	}
	return &AuthService{
		users:      deps.UserRepo,
		tokens:     deps.Tokens,
		resolver:   deps.Resolver,
		denylist:   deps.Denylist,
		dispatcher: deps.Dispatcher,
		telemetry:  telemetry,
		bcryptCost: cost,
		now:        time.Now,
	}
}

func (s *AuthService) outcome() outcome {
	return outcome{telemetry: s.telemetry, category: observability.CategoryAuth, fallback: msgAuthFallback}
}

// Register creates an account and signs the new user in.
func (s *AuthService) Register(ctx context.Context, sess auth.Session, input RegisterInput) domain.Result {
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(input.Email)
	fields := []zap.Field{zap.String("email", email)}

	if name == "" || email == "" || input.Password == "" {
		return s.outcome().fail(errorutil.NewValidationError(msgFieldsRequired, nil), fields...)
	}

	user, err := s.register(ctx, name, email, input.Password)
	if err != nil {
		return s.outcome().fail(err, fields...)
	}
	if err := s.startSession(sess, user.ID); err != nil {
		return s.outcome().fail(err, zap.String("user_id", user.ID))
	}

	s.publish(ctx, events.Event{Type: events.EventUserRegistered, UserID: user.ID})
	return s.outcome().succeed(msgRegistered, zap.String("user_id", user.ID))
}

func (s *AuthService) register(ctx context.Context, name, email, password string) (*domain.User, error) {
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, errorutil.NewConflict(msgUserExists, nil)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, errorutil.NewInternalError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}

	user := &domain.User{Name: name, Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, errorutil.NewConflict(msgUserExists, nil)
		}
		return nil, errorutil.NewInternalError(err)
	}
	return user, nil
}

// Login verifies credentials and establishes a session. Unknown emails and wrong
// passwords are reported identically.
func (s *AuthService) Login(ctx context.Context, sess auth.Session, input LoginInput) domain.Result {
	email := strings.TrimSpace(input.Email)
	fields := []zap.Field{zap.String("email", email)}

	if email == "" || input.Password == "" {
		return s.outcome().fail(errorutil.NewValidationError(msgFieldsRequired, nil), fields...)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.outcome().fail(errorutil.NewInvalidCredentials(msgInvalidCredentials), fields...)
		}
		return s.outcome().fail(errorutil.NewInternalError(err), fields...)
	}
	if err := auth.ComparePassword(user.PasswordHash, input.Password); err != nil {
		return s.outcome().fail(errorutil.NewInvalidCredentials(msgInvalidCredentials), fields...)
	}

	if err := s.startSession(sess, user.ID); err != nil {
		return s.outcome().fail(err, zap.String("user_id", user.ID))
	}
	return s.outcome().succeed(msgLoggedIn, zap.String("user_id", user.ID))
}

// Logout clears the session cookie whether or not a session exists.
func (s *AuthService) Logout(ctx context.Context, sess auth.Session) domain.Result {
	s.revoke(ctx, sess)

	if err := sess.Clear(); err != nil {
		return s.outcome().fail(errorutil.NewInternalError(err))
	}
	return s.outcome().succeed(msgLoggedOut)
}

// Me returns the signed-in user.
func (s *AuthService) Me(ctx context.Context, sess auth.Session) (*domain.User, bool) {
	return s.resolver.Resolve(ctx, sess)
}

func (s *AuthService) startSession(sess auth.Session, userID string) error {
	token, err := s.tokens.Sign(userID)
	if err != nil {
		return err
	}
	// Cookie failures are logged by the session and do not fail the use case.
	_ = sess.Set(token)
	return nil
}

func (s *AuthService) revoke(ctx context.Context, sess auth.Session) {
	if s.denylist == nil || s.resolver == nil {
		return
	}
	claims, ok := s.resolver.Claims(ctx, sess)
	if !ok {
		return
	}
	if err := s.denylist.Revoke(ctx, claims); err != nil {
		s.telemetry.Log("Failed to revoke session", observability.CategoryAuth, observability.SeverityError, err,
			zap.String("user_id", claims.UserID))
	}
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.Timestamp = s.now().UTC()
	_ = s.dispatcher.Publish(ctx, event)
}
