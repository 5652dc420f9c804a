package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// Resolver maps the session cookie of a request to the signed-in user.
type Resolver struct {
	tokens    *TokenService
	users     repository.UserRepository
	denylist  Denylist
	telemetry observability.Telemetry
}

// NewResolver builds a resolver. denylist may be nil when revocation is disabled.
func NewResolver(tokens *TokenService, users repository.UserRepository, denylist Denylist, telemetry observability.Telemetry) *Resolver {
	if telemetry == nil {
		telemetry = observability.Nop()
	}
	return &Resolver{tokens: tokens, users: users, denylist: denylist, telemetry: telemetry}
}

// Resolve returns the current user, or false for anonymous callers. Missing cookies,
// invalid or revoked tokens and vanished users all resolve to anonymous.
func (r *Resolver) Resolve(ctx context.Context, sess Session) (*domain.User, bool) {
	claims, ok := r.Claims(ctx, sess)
	if !ok {
		return nil, false
	}

	user, err := r.users.GetByID(ctx, claims.UserID)
	if err != nil {
		severity := observability.SeverityError
		if errors.Is(err, repository.ErrNotFound) {
			severity = observability.SeverityWarning
			err = nil
		}
		r.telemetry.Log("Session user not found", observability.CategoryAuth, severity, err,
			zap.String("user_id", claims.UserID))
		return nil, false
	}
	return user, true
}

// Claims returns the verified, unrevoked claims behind the session cookie.
func (r *Resolver) Claims(ctx context.Context, sess Session) (*domain.SessionClaims, bool) {
	if sess == nil {
		return nil, false
	}
	token, ok := sess.Get()
	if !ok {
		return nil, false
	}
	claims, err := r.tokens.Verify(token)
	if err != nil {
		return nil, false
	}
	if r.denylist != nil {
		revoked, err := r.denylist.IsRevoked(ctx, claims.TokenID)
		if err != nil {
			r.telemetry.Log("Revocation check failed", observability.CategoryAuth, observability.SeverityError, err,
				zap.String("user_id", claims.UserID))
			return nil, false
		}
		if revoked {
			return nil, false
		}
	}
	return claims, true
}
