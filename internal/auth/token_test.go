package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "device-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestStaticTokenSource(t *testing.T) {
	ctx := context.Background()

	t.Run("valid jwt", func(t *testing.T) {
		exp := time.Now().Add(time.Hour).Truncate(time.Second)
		raw := signed(t, exp)

		s := NewStaticTokenSource(raw)
		assert.True(t, s.ExpiresAt().Equal(exp))

		got, err := s.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, raw, got)
	})

	t.Run("expired jwt", func(t *testing.T) {
		s := NewStaticTokenSource(signed(t, time.Now().Add(-time.Minute)))

		_, err := s.Token(ctx)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("opaque token", func(t *testing.T) {
		s := NewStaticTokenSource("  opaque-api-key ")
		assert.True(t, s.ExpiresAt().IsZero())

		got, err := s.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "opaque-api-key", got)
	})

	t.Run("empty", func(t *testing.T) {
		got, err := NewStaticTokenSource("").Token(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
