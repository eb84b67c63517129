package secrets

import (
	"testing"

	"gameshop-api/internal/model"

	"github.com/stretchr/testify/require"
)

func TestSealer(t *testing.T) {
	s, err := NewSealer("a-long-enough-test-secret")
	require.NoError(t, err)

	creds := model.Credentials{Username: "player-one", Password: "hunter2"}

	t.Run("ok, round trip", func(t *testing.T) {
		sealed, err := s.Seal("acc-1", creds)
		require.NoError(t, err)
		require.NotContains(t, string(sealed), "hunter2")

		got, err := s.Open("acc-1", sealed)
		require.NoError(t, err)
		require.Equal(t, creds, *got)
	})

	t.Run("ok, nonces differ", func(t *testing.T) {
		a, err := s.Seal("acc-1", creds)
		require.NoError(t, err)
		b, err := s.Seal("acc-1", creds)
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})

	t.Run("fail, bound to account", func(t *testing.T) {
		sealed, err := s.Seal("acc-1", creds)
		require.NoError(t, err)
		_, err = s.Open("acc-2", sealed)
		require.ErrorIs(t, err, ErrOpen)
	})

	t.Run("fail, tampered", func(t *testing.T) {
		sealed, err := s.Seal("acc-1", creds)
		require.NoError(t, err)
		sealed[len(sealed)-1] ^= 0xff
		_, err = s.Open("acc-1", sealed)
		require.ErrorIs(t, err, ErrOpen)
	})

	t.Run("fail, other secret", func(t *testing.T) {
		sealed, err := s.Seal("acc-1", creds)
		require.NoError(t, err)
		other, err := NewSealer("a-different-test-secret")
		require.NoError(t, err)
		_, err = other.Open("acc-1", sealed)
		require.ErrorIs(t, err, ErrOpen)
	})

	t.Run("fail, short secret", func(t *testing.T) {
		_, err := NewSealer("short")
		require.Error(t, err)
	})
}
