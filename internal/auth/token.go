package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenExpired = errors.New("access token expired")

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource serves a fixed bearer token. When the token is a JWT its exp claim
// is read without verifying the signature, so an expired token fails locally.
type StaticTokenSource struct {
	token     string
	expiresAt time.Time
	now       func() time.Time
}

func NewStaticTokenSource(token string) *StaticTokenSource {
	s := &StaticTokenSource{
		token: strings.TrimSpace(token),
		now:   time.Now,
	}

	if s.token == "" {
		return s
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.token, &claims); err == nil && claims.ExpiresAt != nil {
		s.expiresAt = claims.ExpiresAt.Time
	}

	return s
}

// ExpiresAt is zero when the token has no readable expiry.
func (s *StaticTokenSource) ExpiresAt() time.Time {
	return s.expiresAt
}

func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	if !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt) {
		return "", ErrTokenExpired
	}
	return s.token, nil
}
