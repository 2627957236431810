package server

import (
	"net/http"
	"testing"

	"pulsefeed/internal/middleware"
	"pulsefeed/internal/models"
	"pulsefeed/internal/repository"
	"pulsefeed/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignup(t *testing.T) {
	_, app := newTestServer(t, nil)

	resp := doJSON(t, app, http.MethodPut, "/api/auth/signup", "", map[string]string{
		"email": "Max@Example.com", "password": "secret123", "name": "Max",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody[SignupResponse](t, resp)
	assert.Equal(t, msgUserCreated, body.Message)
	assert.NotZero(t, body.UserID)

	// Emails are matched case-insensitively.
	resp = doJSON(t, app, http.MethodPut, "/api/auth/signup", "", map[string]string{
		"email": "max@example.com", "password": "secret123", "name": "Other Max",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errBody := decodeBody[models.ErrorResponse](t, resp)
	assert.Equal(t, repository.MsgEmailTaken, errBody.Data["email"])
}

func TestSignup_Validation(t *testing.T) {
	_, app := newTestServer(t, nil)

	resp := doJSON(t, app, http.MethodPut, "/api/auth/signup", "", map[string]string{
		"email": "not-an-email", "password": "123", "name": "",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeBody[models.ErrorResponse](t, resp)
	assert.Equal(t, service.MsgValidationFailed, body.Error)
	assert.Contains(t, body.Data, "email")
	assert.Contains(t, body.Data, "password")
	assert.Contains(t, body.Data, "name")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	_, app := newTestServer(t, nil)
	registerUser(t, app, "Max", "max@example.com")

	for _, req := range []LoginRequest{
		{Email: "max@example.com", Password: "wrong-password"},
		{Email: "nobody@example.com", Password: "secret123"},
	} {
		resp := doJSON(t, app, http.MethodPost, "/api/auth/login", "", req)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, req.Email)
		assert.Equal(t, service.MsgInvalidCredentials, decodeBody[models.ErrorResponse](t, resp).Error)
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	_, app := newTestServer(t, rdb)
	token, _ := registerUser(t, app, "Max", "max@example.com")

	resp := doJSON(t, app, http.MethodGet, "/api/feed/status", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, msgLoggedOut, decodeBody[map[string]string](t, resp)["message"])

	resp = doJSON(t, app, http.MethodGet, "/api/feed/status", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, middleware.MsgTokenRevoked, decodeBody[models.ErrorResponse](t, resp).Error)

	// A fresh login is unaffected.
	fresh := doJSON(t, app, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "max@example.com", Password: "secret123"})
	require.Equal(t, http.StatusOK, fresh.StatusCode)
	newToken := decodeBody[LoginResponse](t, fresh).Token

	resp = doJSON(t, app, http.MethodGet, "/api/feed/status", newToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogout_RevokesTokenWithoutRedis(t *testing.T) {
	_, app := newTestServer(t, nil)
	token, _ := registerUser(t, app, "Max", "max@example.com")

	resp := doJSON(t, app, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/api/feed/status", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, middleware.MsgTokenRevoked, decodeBody[models.ErrorResponse](t, resp).Error)
}

func TestLogout_RequiresIdentity(t *testing.T) {
	_, app := newTestServer(t, nil)

	resp := doJSON(t, app, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
