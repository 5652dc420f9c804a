package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func TestAuthService_Register(t *testing.T) {
	f := newFixture(t)
	sess := &memSession{}

	res := f.auth.Register(context.Background(), sess, RegisterInput{Name: "Alice", Email: "alice@x.com", Password: "pw123"})

	require.True(t, res.Success)
	assert.Equal(t, "Registration successful", res.Message)
	assert.Empty(t, res.Code)

	user, err := f.users.GetByEmail(context.Background(), "alice@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "pw123", user.PasswordHash)
	assert.NoError(t, auth.ComparePassword(user.PasswordHash, "pw123"))

	require.True(t, sess.set)
	claims, err := f.tokens.Verify(sess.token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	require.Len(t, f.published, 1)
	assert.Equal(t, events.EventUserRegistered, f.published[0].Type)
	assert.Equal(t, user.ID, f.published[0].UserID)
}

func TestAuthService_RegisterRequiresAllFields(t *testing.T) {
	inputs := map[string]RegisterInput{
		"name":     {Email: "a@x.com", Password: "pw"},
		"email":    {Name: "A", Password: "pw"},
		"password": {Name: "A", Email: "a@x.com"},
		"blank":    {Name: "  ", Email: "a@x.com", Password: "pw"},
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			sess := &memSession{}

			res := f.auth.Register(context.Background(), sess, input)

			assert.False(t, res.Success)
			assert.Equal(t, "All fields are required", res.Message)
			assert.Equal(t, errorutil.CodeValidation, res.Code)
			assert.False(t, sess.set)
		})
	}
}

func TestAuthService_RegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "Alice", "alice@x.com")

	sess := &memSession{}
	res := f.auth.Register(context.Background(), sess, RegisterInput{Name: "Other", Email: "ALICE@x.com", Password: "x"})

	assert.False(t, res.Success)
	assert.Equal(t, "User already exists", res.Message)
	assert.Equal(t, errorutil.CodeConflict, res.Code)
	assert.False(t, sess.set)
	assert.Equal(t, 1, f.logs.FilterMessage("User already exists").Len())
}

func TestAuthService_RegisterTokenFailure(t *testing.T) {
	f := newFixture(t)
	svc := NewAuthService(config.AuthConfig{BcryptCost: 4}, AuthDependencies{
		UserRepo: f.users,
		Tokens:   auth.NewTokenService("", nil),
	})
	sess := &memSession{}

	res := svc.Register(context.Background(), sess, RegisterInput{Name: "A", Email: "a@x.com", Password: "pw"})

	assert.False(t, res.Success)
	assert.Equal(t, errorutil.CodeTokenCreation, res.Code)
	assert.Equal(t, "Something went wrong, please try again", res.Message)
	assert.False(t, sess.set)
}

func TestAuthService_CookieFailureDoesNotFailLogin(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "Alice", "alice@x.com")

	sess := &memSession{setErr: &auth.CookieError{Op: "set", Err: errors.New("headers sent")}}
	res := f.auth.Login(context.Background(), sess, LoginInput{Email: "alice@x.com", Password: "pw123"})

	assert.True(t, res.Success)
}

func TestAuthService_Login(t *testing.T) {
	f := newFixture(t)
	_, user := f.signUp(t, "Alice", "alice@x.com")

	sess := &memSession{}
	res := f.auth.Login(context.Background(), sess, LoginInput{Email: "alice@x.com", Password: "pw123"})

	require.True(t, res.Success)
	assert.Equal(t, "Login successful", res.Message)
	claims, err := f.tokens.Verify(sess.token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestAuthService_LoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "Alice", "alice@x.com")

	wrongPassword := f.auth.Login(context.Background(), &memSession{}, LoginInput{Email: "alice@x.com", Password: "nope"})
	unknownEmail := f.auth.Login(context.Background(), &memSession{}, LoginInput{Email: "bob@x.com", Password: "pw123"})

	assert.False(t, wrongPassword.Success)
	assert.Equal(t, wrongPassword, unknownEmail)
	assert.Equal(t, "Invalid email or password", wrongPassword.Message)
	assert.Equal(t, errorutil.CodeInvalidCredentials, wrongPassword.Code)

	for _, entry := range f.logs.All() {
		for _, field := range entry.Context {
			assert.NotEqual(t, "nope", field.String)
			assert.NotEqual(t, "pw123", field.String)
		}
	}
}

func TestAuthService_LoginRequiresFields(t *testing.T) {
	f := newFixture(t)

	res := f.auth.Login(context.Background(), &memSession{}, LoginInput{Email: "alice@x.com"})

	assert.Equal(t, domain.Failed(errorutil.CodeValidation, "All fields are required"), res)
}

func TestAuthService_Logout(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.signUp(t, "Alice", "alice@x.com")

	res := f.auth.Logout(context.Background(), sess)

	assert.Equal(t, domain.Succeeded("Logout successful"), res)
	assert.True(t, sess.cleared)
	_, ok := f.auth.Me(context.Background(), sess)
	assert.False(t, ok)
}

func TestAuthService_LogoutWithoutSession(t *testing.T) {
	f := newFixture(t)
	sess := &memSession{}

	res := f.auth.Logout(context.Background(), sess)

	assert.True(t, res.Success)
	assert.True(t, sess.cleared)
}

func TestAuthService_LogoutClearFailure(t *testing.T) {
	f := newFixture(t)
	sess := &memSession{clearErr: &auth.CookieError{Op: "clear", Err: errors.New("boom")}}

	res := f.auth.Logout(context.Background(), sess)

	assert.False(t, res.Success)
	assert.Equal(t, errorutil.CodeInternal, res.Code)
	assert.Equal(t, "Something went wrong, please try again", res.Message)
}

func TestAuthService_LogoutRevokesToken(t *testing.T) {
	f := newFixture(t, withRedis(t))
	sess, _ := f.signUp(t, "Alice", "alice@x.com")
	token := sess.token

	res := f.auth.Logout(context.Background(), sess)
	require.True(t, res.Success)

	// A copy of the cookie replayed after logout no longer resolves.
	replay := &memSession{token: token}
	_, ok := f.auth.Me(context.Background(), replay)
	assert.False(t, ok)
}

func TestAuthService_MeResolvesUser(t *testing.T) {
	f := newFixture(t)
	sess, user := f.signUp(t, "Alice", "alice@x.com")

	got, ok := f.auth.Me(context.Background(), sess)

	require.True(t, ok)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "Alice", got.Name)
}
