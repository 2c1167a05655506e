package auth

import (
	"testing"
	"time"

	hola_errors "hola-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssueAndParse(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)

	token, expiresAt, err := svc.Issue("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ParseAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	session, err := svc.Session(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, token, session.AccessToken)
	assert.WithinDuration(t, expiresAt, session.ExpiresAt, time.Second)
}

func TestTokenService_RejectsBadTokens(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)
	other := NewTokenService("other-secret", time.Hour)
	foreign, _, err := other.Issue("user-1")
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"wrong secret": foreign,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ParseAccessToken(token)
			assert.ErrorIs(t, err, hola_errors.ErrUnauthorized)

			_, err = svc.Session(token)
			assert.ErrorIs(t, err, hola_errors.ErrAuth)
		})
	}
}

func TestTokenService_ExpiredTokenIsAuthError(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)
	claims := AccessClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ParseAccessToken(token)
	assert.ErrorIs(t, err, hola_errors.ErrAuth)
}

func TestTokenService_IssueRequiresUser(t *testing.T) {
	_, _, err := NewTokenService("secret", 0).Issue("")
	assert.ErrorIs(t, err, hola_errors.ErrInvalidInput)
}
