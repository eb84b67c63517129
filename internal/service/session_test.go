package service

import (
	"strings"
	"testing"
	"time"

	"gameshop-api/internal/cache"
	"gameshop-api/internal/model"

	"github.com/stretchr/testify/require"
)

func TestSessionService(t *testing.T) {
	newService := func(t *testing.T, ttl time.Duration) *SessionService {
		c := cache.NewMemoryCache()
		t.Cleanup(func() { _ = c.Close() })
		return NewSessionService(c, ttl)
	}

	t.Run("ok, issue and validate", func(t *testing.T) {
		s := newService(t, 0)
		ctx := t.Context()

		sess, err := s.Issue(ctx, "u1", "An", "an@example.com")
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(sess.Token, SessionTokenPrefix))
		require.WithinDuration(t, time.Now().Add(DefaultSessionTTL), sess.ExpiresAt, time.Second)

		got, err := s.Validate(ctx, sess.Token)
		require.NoError(t, err)
		require.Equal(t, "u1", got.BuyerID)
		require.Equal(t, "an@example.com", got.CustomerEmail)
	})

	t.Run("ok, refresh extends", func(t *testing.T) {
		s := newService(t, time.Minute)
		ctx := t.Context()

		sess, err := s.Issue(ctx, "u1", "", "")
		require.NoError(t, err)
		refreshed, err := s.Refresh(ctx, sess.Token)
		require.NoError(t, err)
		require.False(t, refreshed.ExpiresAt.Before(sess.ExpiresAt))
	})

	t.Run("fail, revoked", func(t *testing.T) {
		s := newService(t, 0)
		ctx := t.Context()

		sess, err := s.Issue(ctx, "u1", "", "")
		require.NoError(t, err)
		require.NoError(t, s.Revoke(ctx, sess.Token))

		_, err = s.Validate(ctx, sess.Token)
		require.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("fail, malformed or unknown token", func(t *testing.T) {
		s := newService(t, 0)
		ctx := t.Context()

		_, err := s.Validate(ctx, "not-a-token")
		require.ErrorIs(t, err, ErrInvalidSession)
		_, err = s.Validate(ctx, SessionTokenPrefix+"deadbeef")
		require.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("fail, no buyer", func(t *testing.T) {
		s := newService(t, 0)
		_, err := s.Issue(t.Context(), " ", "", "")
		require.ErrorIs(t, err, model.ErrInvalidInput)
	})
}
