// Package auth verifies the HMAC-signed access tokens issued by the identity
// provider and turns them into transport sessions.
package auth

import (
	"errors"
	"time"

	"hola-chat/internal/transport"
	hola_errors "hola-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

type AccessClaims struct {
	UserID string `json:"sub"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// Issue signs an access token for userID. Used by the development tooling;
// production tokens come from the identity provider.
func (s *TokenService) Issue(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, hola_errors.ErrInvalidInput
	}
	now := time.Now()
	expiresAt := now.Add(s.ttl)
	claims := AccessClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *TokenService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, hola_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, hola_errors.ErrUnauthorized
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AccessClaims{}, hola_errors.ErrAuth
		}
		return AccessClaims{}, hola_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return AccessClaims{}, hola_errors.ErrUnauthorized
	}

	return *claims, nil
}

// Session resolves a token into the authenticated identity. Any failure is
// reported as ErrAuth.
func (s *TokenService) Session(tokenString string) (*transport.Session, error) {
	claims, err := s.ParseAccessToken(tokenString)
	if err != nil {
		if errors.Is(err, hola_errors.ErrAuth) {
			return nil, err
		}
		return nil, errors.Join(hola_errors.ErrAuth, err)
	}
	session := &transport.Session{UserID: claims.UserID, AccessToken: tokenString}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}
