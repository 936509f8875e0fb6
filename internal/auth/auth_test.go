package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"nosqlite/internal/config"
)

func newAuthenticator(t *testing.T, passcode string) *Authenticator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.MinCost)
	require.NoError(t, err)
	return New(config.AuthConfig{PasscodeHash: string(hash), JWTSecret: "test-secret", TokenTTL: time.Hour})
}

func TestLoginAndParse(t *testing.T) {
	a := newAuthenticator(t, "1234")

	_, err := a.Login("0000")
	assert.ErrorIs(t, err, ErrInvalidPasscode)

	tok, err := a.Login("1234")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)

	claims, err := a.Parse(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, Subject, claims.Subject)
	assert.NotEmpty(t, claims.ID)

	other := New(config.AuthConfig{PasscodeHash: "x", JWTSecret: "other-secret"})
	_, err = other.Parse(tok.AccessToken)
	assert.Error(t, err, "wrong secret")
}

func TestParse_Expired(t *testing.T) {
	a := newAuthenticator(t, "1234")
	tok, err := a.Login("1234")
	require.NoError(t, err)

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = a.Parse(tok.AccessToken)
	assert.Error(t, err)
}

func TestHashPasscode(t *testing.T) {
	hash, err := HashPasscode("secret")
	require.NoError(t, err)
	assert.True(t, CheckPasscode("secret", hash))
	assert.False(t, CheckPasscode("nope", hash))
}

func testApp(a *Authenticator) *fiber.App {
	app := fiber.New()
	app.Post("/api/auth/login", NewHandler(a).Login)
	app.Get("/api/ping", Middleware(a), func(c *fiber.Ctx) error {
		return c.SendString("pong:" + GetSubject(c))
	})
	return app
}

func TestMiddleware(t *testing.T) {
	a := newAuthenticator(t, "1234")
	app := testApp(a)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ping", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Token abc")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	login := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"passcode":"1234"}`))
	login.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(login, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	tok, err := a.Login("1234")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "pong:owner", string(body))
}

func TestMiddleware_DisabledWithoutPasscode(t *testing.T) {
	app := testApp(New(config.AuthConfig{}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ping", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	login := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"passcode":"1234"}`))
	login.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(login, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
