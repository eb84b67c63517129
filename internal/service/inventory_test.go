package service

import (
	"testing"

	"gameshop-api/internal/model"

	"github.com/stretchr/testify/require"
)

func TestInventoryService(t *testing.T) {
	t.Run("ok, credentials are sealed at rest", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		acc := h.account(t, 10000)

		sealed, err := h.store.GetCredentials(ctx, acc.ID)
		require.NoError(t, err)
		require.NotContains(t, string(sealed), "hunter2")
	})

	t.Run("ok, unsold accounts are concealed", func(t *testing.T) {
		h := newHarness(t)
		acc := h.account(t, 10000)

		got, err := h.inventory.GetAccount(t.Context(), acc.ID)
		require.NoError(t, err)
		require.Nil(t, got.Skins)
		require.Nil(t, got.Credentials)
		require.Equal(t, 2, got.SkinCount)
	})

	t.Run("ok, hidden accounts disappear", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		acc := h.account(t, 10000)

		require.NoError(t, h.inventory.SetVisibility(ctx, acc.ID, false))
		_, err := h.inventory.GetAccount(ctx, acc.ID)
		require.ErrorIs(t, err, model.ErrNotFound)

		listed, err := h.inventory.ListAccounts(ctx, model.AccountAvailable)
		require.NoError(t, err)
		require.Empty(t, listed)

		require.NoError(t, h.inventory.SetVisibility(ctx, acc.ID, true))
		listed, err = h.inventory.ListAccounts(ctx, model.AccountAvailable)
		require.NoError(t, err)
		require.Len(t, listed, 1)
	})

	t.Run("fail, pooling an unavailable account", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		b, err := h.inventory.CreateBlindBox(ctx, "Box", nil)
		require.NoError(t, err)

		free := h.account(t, 10000)
		sold := h.account(t, 10000)
		require.NoError(t, h.store.SetAccountStatus(ctx, sold.ID, []model.AccountStatus{model.AccountAvailable}, model.AccountSold))

		_, err = h.inventory.AddToPool(ctx, b.ID, []string{free.ID, sold.ID})
		require.ErrorIs(t, err, model.ErrAccountUnavailable)

		got, err := h.inventory.GetBlindBox(ctx, b.ID)
		require.NoError(t, err)
		require.Zero(t, got.Remaining)
	})

	t.Run("fail, invalid input", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()

		_, err := h.inventory.CreateAccount(ctx, NewAccountInput{Title: "x", Price: 0})
		require.ErrorIs(t, err, model.ErrInvalidInput)
		_, err = h.inventory.CreateAccount(ctx, NewAccountInput{Title: "x", Price: 10})
		require.ErrorIs(t, err, model.ErrInvalidInput)

		zero := int64(0)
		_, err = h.inventory.CreateBlindBox(ctx, "Box", &zero)
		require.ErrorIs(t, err, model.ErrInvalidInput)
		_, err = h.inventory.ListAccounts(ctx, "BOGUS")
		require.ErrorIs(t, err, model.ErrInvalidInput)
	})
}
