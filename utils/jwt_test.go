package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volunteerconnect/config"
	"volunteerconnect/models"
)

func withJWTConfig(t *testing.T, expiry time.Duration) {
	t.Helper()
	prev := config.AppConfig
	config.AppConfig.JWTSecret = "unit-test-secret"
	config.AppConfig.JWTExpiry = expiry
	t.Cleanup(func() { config.AppConfig = prev })
}

func TestGenerateAndParseJWTToken(t *testing.T) {
	withJWTConfig(t, time.Hour)

	user := &models.User{ID: 42, Email: "ana@example.org", Role: models.RoleAdminID, TokenVersion: 3}
	token, err := GenerateJWTToken(user)
	require.NoError(t, err)

	claims, err := ParseJWTToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "ana@example.org", claims.Email)
	assert.Equal(t, models.RoleAdminID, claims.Role)
	assert.Equal(t, 3, claims.TokenVersion)
}

func TestParseJWTToken_Expired(t *testing.T) {
	withJWTConfig(t, -time.Minute)

	token, err := GenerateJWTToken(&models.User{ID: 1, Email: "a@b.co"})
	require.NoError(t, err)

	_, err = ParseJWTToken(token)
	assert.Error(t, err)
}

func TestParseJWTToken_WrongSecret(t *testing.T) {
	withJWTConfig(t, time.Hour)

	token, err := GenerateJWTToken(&models.User{ID: 1, Email: "a@b.co"})
	require.NoError(t, err)

	config.AppConfig.JWTSecret = "another-secret"
	_, err = ParseJWTToken(token)
	assert.Error(t, err)
}

func TestParseJWTToken_RejectsNoneAlgorithm(t *testing.T) {
	withJWTConfig(t, time.Hour)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseJWTToken(token)
	assert.Error(t, err)
}
