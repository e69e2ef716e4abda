package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volunteerconnect/models"
	"volunteerconnect/utils"
)

type authData struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Body.Success)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.False(t, resp.Body.Success)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodPost, "/auth/register", nil, map[string]interface{}{
		"name":     "Ana",
		"email":    "Ana@Example.org",
		"password": testPassword,
		// role in the body is ignored
		"role": 0,
	})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.raw))

	var registered authData
	resp.decode(t, &registered)
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, "ana@example.org", registered.User.Email)
	assert.Equal(t, models.RoleVolunteerID, registered.User.Role)
	assert.Equal(t, "volunteer", registered.User.UserType)
	assert.True(t, registered.User.IsActive)
	assert.NotContains(t, string(resp.raw), "password_hash")

	resp = env.do(http.MethodPost, "/auth/register", nil, map[string]interface{}{
		"name": "Ana again", "email": "ana@example.org", "password": testPassword,
	})
	assert.Equal(t, http.StatusConflict, resp.Status)

	resp = env.do(http.MethodPost, "/auth/login", nil, map[string]interface{}{
		"email": "ana@example.org", "password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.Status)
	var loggedIn authData
	resp.decode(t, &loggedIn)
	assert.NotEmpty(t, loggedIn.Token)

	resp = env.do(http.MethodPost, "/auth/login", nil, map[string]interface{}{
		"email": "ana@example.org", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, "Invalid email or password", resp.Body.Message)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodPost, "/auth/register", nil, map[string]interface{}{
		"name": "Bo", "email": "not-an-email", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Contains(t, resp.Body.Message, "email must be a valid email")
	assert.Contains(t, resp.Body.Message, "password must be at least 8 characters")
}

func TestLogin_InactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	env.createUser("off@example.org", models.RoleVolunteerID, false)

	resp := env.do(http.MethodPost, "/auth/login", nil, map[string]interface{}{
		"email": "off@example.org", "password": testPassword,
	})
	assert.Equal(t, http.StatusForbidden, resp.Status)
}

func TestForgotPassword_IsGeneric(t *testing.T) {
	env := newTestEnv(t)
	env.volunteer("known@example.org")

	known := env.do(http.MethodPost, "/auth/forgot-password", nil, map[string]interface{}{"email": "known@example.org"})
	unknown := env.do(http.MethodPost, "/auth/forgot-password", nil, map[string]interface{}{"email": "ghost@example.org"})

	assert.Equal(t, http.StatusOK, known.Status)
	assert.Equal(t, http.StatusOK, unknown.Status)
	assert.Equal(t, known.Body, unknown.Body)

	require.Len(t, env.mailer.sent, 1)
	assert.Equal(t, "known@example.org", env.mailer.sent[0].To)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	user := env.volunteer("reset@example.org")
	oldToken := env.token(user)

	resp := env.do(http.MethodPost, "/auth/forgot-password", nil, map[string]interface{}{"email": "reset@example.org"})
	require.Equal(t, http.StatusOK, resp.Status)

	mail, ok := env.mailer.last()
	require.True(t, ok)

	var stored models.User
	require.NoError(t, env.db.First(&stored, user.ID).Error)
	require.NotNil(t, stored.ResetTokenHash)
	assert.Equal(t, utils.HashToken(mail.Token), *stored.ResetTokenHash)
	assert.NotEqual(t, mail.Token, *stored.ResetTokenHash)

	resp = env.do(http.MethodPost, "/auth/verify-reset-token", nil, map[string]interface{}{"token": mail.Token})
	assert.Equal(t, http.StatusOK, resp.Status)

	resp = env.do(http.MethodPost, "/auth/verify-reset-token", nil, map[string]interface{}{"token": "bogus"})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = env.do(http.MethodPost, "/auth/reset-password-with-token", nil, map[string]interface{}{
		"token": mail.Token, "password": "brand-new-password",
	})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.raw))

	// the token is single use
	resp = env.do(http.MethodPost, "/auth/reset-password-with-token", nil, map[string]interface{}{
		"token": mail.Token, "password": "another-password",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = env.do(http.MethodPost, "/auth/login", nil, map[string]interface{}{
		"email": "reset@example.org", "password": "brand-new-password",
	})
	assert.Equal(t, http.StatusOK, resp.Status)

	// tokens issued before the reset no longer authenticate
	req := authorizedRequest(http.MethodGet, "/users/me", oldToken)
	assert.Equal(t, http.StatusUnauthorized, env.send(req).Status)
}

func authorizedRequest(method, path, token string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
