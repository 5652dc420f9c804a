package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// SessionTTL is the lifetime of both the session token and its cookie.
const SessionTTL = 24 * time.Hour

const tokenSnippetLen = 10

var errEmptySecret = errors.New("signing secret is empty")

// Claims describes the JWT payload.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies session tokens with a symmetric secret.
type TokenService struct {
	secret    []byte
	ttl       time.Duration
	now       func() time.Time
	telemetry observability.Telemetry
}

// TokenOption customizes a TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) TokenOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.now = now
		}
	}
}

// NewTokenService builds a token service bound to secret.
func NewTokenService(secret string, telemetry observability.Telemetry, opts ...TokenOption) *TokenService {
	if telemetry == nil {
		telemetry = observability.Nop()
	}
	ts := &TokenService{
		secret:    []byte(secret),
		ttl:       SessionTTL,
		now:       time.Now,
		telemetry: telemetry,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

// Sign issues a token for userID that expires SessionTTL after issuance.
func (ts *TokenService) Sign(userID string) (string, error) {
	token, err := ts.sign(userID)
	if err != nil {
		ts.telemetry.Log("Token signing failed", observability.CategoryAuth, observability.SeverityError, err,
			zap.String("user_id", userID))
		return "", apperrors.NewTokenCreationError(err)
	}
	return token, nil
}

func (ts *TokenService) sign(userID string) (string, error) {
	if len(ts.secret) == 0 {
		return "", errEmptySecret
	}
	if userID == "" {
		return "", errors.New("user id is empty")
	}
	issuedAt := ts.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ts.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.secret)
}

// Verify checks the signature and expiry of tokenStr and returns its payload.
func (ts *TokenService) Verify(tokenStr string) (*domain.SessionClaims, error) {
	claims, err := ts.parse(tokenStr)
	if err != nil {
		ts.telemetry.Log("Token verification failed", observability.CategoryAuth, observability.SeverityError, err,
			zap.String("token_snippet", snippet(tokenStr)))
		return nil, apperrors.NewTokenVerificationError(err)
	}
	return &domain.SessionClaims{
		TokenID:   claims.ID,
		UserID:    claims.UserID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (ts *TokenService) parse(tokenStr string) (*Claims, error) {
	if len(ts.secret) == 0 {
		return nil, errEmptySecret
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return ts.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(ts.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, errors.New("token carries no user id")
	}
	return claims, nil
}

func snippet(token string) string {
	if len(token) <= tokenSnippetLen {
		return token
	}
	return token[:tokenSnippetLen]
}
