package http

import (
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/cache"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

type testServer struct {
	app    *fiber.App
	cookie *nethttp.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zap.NewNop()
	metrics := observability.NewMetrics("helpdesk_test")
	telemetry := observability.NewTelemetry(logger, metrics)

	users := repository.NewMemoryUserRepository()
	tickets := repository.NewMemoryTicketRepository()
	tokens := auth.NewTokenService("router-test-secret", telemetry)
	denylist := auth.NewRedisDenylist(client)
	resolver := auth.NewResolver(tokens, users, denylist, telemetry)
	cookies := auth.NewCookieManager(false, telemetry)

	authService := service.NewAuthService(config.AuthConfig{BcryptCost: bcrypt.MinCost}, service.AuthDependencies{
		UserRepo:  users,
		Tokens:    tokens,
		Resolver:  resolver,
		Denylist:  denylist,
		Telemetry: telemetry,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: tickets,
		Resolver:   resolver,
		Views:      cache.NewViewCache(client, 0),
		Telemetry:  telemetry,
	})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:   handlers.NewHealthHandler("helpdesk", "test", &persistence.Postgres{}, &persistence.Redis{Client: client}),
		Users:    handlers.NewUsersHandler(authService, cookies),
		Tickets:  handlers.NewTicketsHandler(ticketService, cookies),
		Sessions: auth.NewSessionMiddleware(cookies, resolver),
		Metrics:  metrics,
	})
	return &testServer{app: app}
}

// do sends a request carrying the current session cookie and keeps any cookie the
// response sets.
func (s *testServer) do(t *testing.T, method, path string, body any) *nethttp.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	for _, c := range resp.Cookies() {
		if c.Name == auth.SessionCookieName {
			cp := *c
			s.cookie = &cp
			if c.Value == "" {
				s.cookie = nil
			}
		}
	}
	return resp
}

func decode[T any](t *testing.T, resp *nethttp.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type listResponse struct {
	Data []dto.TicketResponse `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestRouter_EndToEnd(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, nethttp.MethodPost, "/auth/register", dto.UserRegisterRequest{Name: "Alice", Email: "alice@x.com", Password: "pw123"})
	assert.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	assert.Equal(t, domain.Succeeded("Registration successful"), decode[domain.Result](t, resp))
	require.NotNil(t, s.cookie)

	resp = s.do(t, nethttp.MethodPost, "/tickets", dto.CreateTicketRequest{Subject: "Printer broken", Description: "desc", Priority: "High"})
	assert.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	assert.True(t, decode[domain.Result](t, resp).Success)

	list := decode[listResponse](t, s.do(t, nethttp.MethodGet, "/tickets", nil))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Open", list.Data[0].Status)
	id := list.Data[0].ID

	resp = s.do(t, nethttp.MethodPost, "/tickets/"+id+"/close", nil)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.Succeeded("Ticket closed successfully"), decode[domain.Result](t, resp))

	list = decode[listResponse](t, s.do(t, nethttp.MethodGet, "/tickets", nil))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Closed", list.Data[0].Status)

	resp = s.do(t, nethttp.MethodGet, "/tickets/"+id, nil)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
}

func TestRouter_FormLogin(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, nethttp.MethodPost, "/auth/register", dto.UserRegisterRequest{Name: "Alice", Email: "alice@x.com", Password: "pw123"})
	require.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	s.cookie = nil

	form := url.Values{"email": {"alice@x.com"}, "password": {"pw123"}}
	req := httptest.NewRequest(nethttp.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.Succeeded("Login successful"), decode[domain.Result](t, resp))
	require.NotEmpty(t, resp.Cookies())
	assert.Equal(t, auth.SessionCookieName, resp.Cookies()[0].Name)
}

func TestRouter_FailedResultsCarryStatus(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, nethttp.MethodPost, "/auth/register", dto.UserRegisterRequest{Email: "alice@x.com"})
	assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, domain.Failed(apperrors.CodeValidation, "All fields are required"), decode[domain.Result](t, resp))

	resp = s.do(t, nethttp.MethodPost, "/auth/login", dto.UserLoginRequest{Email: "nobody@x.com", Password: "pw"})
	assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid email or password", decode[domain.Result](t, resp).Message)

	resp = s.do(t, nethttp.MethodPost, "/tickets", dto.CreateTicketRequest{Subject: "s", Description: "d", Priority: "Low"})
	assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "You must be logged in to create a ticket", decode[domain.Result](t, resp).Message)
}

func TestRouter_CloseForeignTicketIsForbidden(t *testing.T) {
	alice := newTestServer(t)
	alice.do(t, nethttp.MethodPost, "/auth/register", dto.UserRegisterRequest{Name: "Alice", Email: "alice@x.com", Password: "pw123"})
	alice.do(t, nethttp.MethodPost, "/tickets", dto.CreateTicketRequest{Subject: "s", Description: "d", Priority: "Low"})
	id := decode[listResponse](t, alice.do(t, nethttp.MethodGet, "/tickets", nil)).Data[0].ID

	bob := &testServer{app: alice.app}
	bob.do(t, nethttp.MethodPost, "/auth/register", dto.UserRegisterRequest{Name: "Bob", Email: "bob@x.com", Password: "pw123"})

	resp := bob.do(t, nethttp.MethodPost, "/tickets/"+id+"/close", nil)
	assert.Equal(t, nethttp.StatusForbidden, resp.StatusCode)
	assert.Equal(t, apperrors.CodeForbidden, decode[domain.Result](t, resp).Code)

	list := decode[listResponse](t, alice.do(t, nethttp.MethodGet, "/tickets", nil))
	assert.Equal(t, "Open", list.Data[0].Status)
}

func TestRouter_LogoutEndsSession(t *testing.T) {
	s := newTestServer(t)
	s.do(t, nethttp.MethodPost, "/auth/register", dto.UserRegisterRequest{Name: "Alice", Email: "alice@x.com", Password: "pw123"})
	stolen := *s.cookie

	resp := s.do(t, nethttp.MethodGet, "/auth/me", nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)

	resp = s.do(t, nethttp.MethodPost, "/auth/logout", nil)
	assert.Equal(t, domain.Succeeded("Logout successful"), decode[domain.Result](t, resp))
	assert.Nil(t, s.cookie)

	resp = s.do(t, nethttp.MethodGet, "/auth/me", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)

	s.cookie = &stolen
	resp = s.do(t, nethttp.MethodGet, "/auth/me", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperrors.CodeUnauthorized, decode[errorResponse](t, resp).Error.Code)
}

func TestRouter_TicketDetailRequiresSession(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, nethttp.MethodGet, "/tickets/"+"0b7e6f3e-3f39-4c49-9a0f-6b1d1f1d0e11", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)

	s.do(t, nethttp.MethodPost, "/auth/register", dto.UserRegisterRequest{Name: "Alice", Email: "alice@x.com", Password: "pw123"})
	resp = s.do(t, nethttp.MethodGet, "/tickets/"+"0b7e6f3e-3f39-4c49-9a0f-6b1d1f1d0e11", nil)
	assert.Equal(t, nethttp.StatusNotFound, resp.StatusCode)
	assert.Equal(t, apperrors.CodeNotFound, decode[errorResponse](t, resp).Error.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, nethttp.MethodGet, "/health/live", nil)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)

	resp = s.do(t, nethttp.MethodGet, "/health/ready", nil)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	ready := decode[map[string]any](t, resp)
	assert.Equal(t, map[string]any{"postgres": "in-memory", "redis": "ok"}, ready["dependencies"])

	resp = s.do(t, nethttp.MethodGet, "/metrics", nil)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "helpdesk_test_http_requests_total")
}

func TestRouter_UnknownRoute(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, nethttp.MethodGet, "/nope", nil)

	assert.Equal(t, nethttp.StatusNotFound, resp.StatusCode)
	assert.Equal(t, apperrors.CodeNotFound, decode[errorResponse](t, resp).Error.Code)
}

func TestRouter_MalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(nethttp.MethodPost, "/auth/login", strings.NewReader("{"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperrors.CodeValidation, decode[errorResponse](t, resp).Error.Code)
}
