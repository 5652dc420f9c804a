package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/observability"
)

// SessionCookieName is the cookie that carries the session token.
const SessionCookieName = "auth-token-tds"

var errNoRequest = errors.New("no request bound to session")

// CookieError reports a failure to write or remove the session cookie.
type CookieError struct {
	Op  string
	Err error
}

func (e *CookieError) Error() string {
	return fmt.Sprintf("session cookie %s: %v", e.Op, e.Err)
}

func (e *CookieError) Unwrap() error {
	return e.Err
}

// Session is the per-request view of the session cookie.
type Session interface {
	// Set stores token in the cookie. Callers may ignore the error.
	Set(token string) error
	// Get returns the stored token, if any.
	Get() (string, bool)
	// Clear removes the cookie.
	Clear() error
}

// CookieManager binds session cookies to requests.
type CookieManager struct {
	secure    bool
	telemetry observability.Telemetry
}

// NewCookieManager creates a manager. secure marks cookies for HTTPS-only transport.
func NewCookieManager(secure bool, telemetry observability.Telemetry) *CookieManager {
	if telemetry == nil {
		telemetry = observability.Nop()
	}
	return &CookieManager{secure: secure, telemetry: telemetry}
}

// For returns the Session of the request behind c.
func (m *CookieManager) For(c *fiber.Ctx) Session {
	return &cookieSession{manager: m, ctx: c}
}

type cookieSession struct {
	manager *CookieManager
	ctx     *fiber.Ctx
}

func (s *cookieSession) Set(token string) error {
	if err := s.write(token); err != nil {
		cerr := &CookieError{Op: "set", Err: err}
		s.manager.telemetry.Log("Failed to set auth cookie", observability.CategoryAuth, observability.SeverityError, cerr)
		return cerr
	}
	return nil
}

func (s *cookieSession) write(token string) (err error) {
	if s.ctx == nil {
		return errNoRequest
	}
	if token == "" {
		return errors.New("empty token")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write cookie: %v", r)
		}
	}()
	s.ctx.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionTTL / time.Second),
		Secure:   s.manager.secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return nil
}

func (s *cookieSession) Get() (string, bool) {
	if s.ctx == nil {
		return "", false
	}
	token := s.ctx.Cookies(SessionCookieName)
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *cookieSession) Clear() error {
	if err := s.remove(); err != nil {
		cerr := &CookieError{Op: "clear", Err: err}
		s.manager.telemetry.Log("Failed to remove token cookie", observability.CategoryAuth, observability.SeverityError, cerr)
		return cerr
	}
	return nil
}

func (s *cookieSession) remove() (err error) {
	if s.ctx == nil {
		return errNoRequest
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("expire cookie: %v", r)
		}
	}()
	s.ctx.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		Secure:   s.manager.secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return nil
}
