package service

import (
	"testing"

	"gameshop-api/internal/model"

	"github.com/stretchr/testify/require"
)

func TestStatusService_CheckStatus(t *testing.T) {
	t.Run("ok, unknown and foreign orders are not found", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		acc := h.account(t, 60000)
		res := h.purchase(t, "u1", acc.ID)

		view, err := h.status.CheckStatus(ctx, "u1", "ORD-missing")
		require.NoError(t, err)
		require.False(t, view.Found)

		view, err = h.status.CheckStatus(ctx, "u2", res.Order.OrderNumber)
		require.NoError(t, err)
		require.False(t, view.Found)
	})

	t.Run("ok, unpaid order stays pending", func(t *testing.T) {
		h := newHarness(t)
		acc := h.account(t, 60000)
		res := h.purchase(t, "u1", acc.ID)

		view, err := h.status.CheckStatus(t.Context(), "u1", res.Order.OrderNumber)
		require.NoError(t, err)
		require.True(t, view.Found)
		require.Equal(t, model.OrderPending, view.Status)
	})

	t.Run("ok, gateway outage is not an error", func(t *testing.T) {
		h := newHarness(t)
		acc := h.account(t, 60000)
		res := h.purchase(t, "u1", acc.ID)
		h.gw.SetUnavailable(true)

		view, err := h.status.CheckStatus(t.Context(), "u1", res.Order.OrderNumber)
		require.NoError(t, err)
		require.Equal(t, model.OrderPending, view.Status)
	})

	t.Run("ok, settled status is cached until the next transition", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		acc := h.account(t, 60000)
		res := h.purchase(t, "u1", acc.ID)
		require.Equal(t, OutcomeApplied, h.pay(t, res.Payment))

		view, err := h.status.CheckStatus(ctx, "u1", res.Order.OrderNumber)
		require.NoError(t, err)
		require.Equal(t, model.OrderCompleted, view.Status)

		exists, err := h.cache.Exists(ctx, orderStatusKey(res.Order.OrderNumber))
		require.NoError(t, err)
		require.True(t, exists)

		view, err = h.status.CheckStatus(ctx, "u2", res.Order.OrderNumber)
		require.NoError(t, err)
		require.False(t, view.Found)

		_, err = h.ledger.Transition(ctx, res.Order.ID, model.OrderRefunded, "")
		require.NoError(t, err)

		view, err = h.status.CheckStatus(ctx, "u1", res.Order.OrderNumber)
		require.NoError(t, err)
		require.Equal(t, model.OrderRefunded, view.Status)
	})

	t.Run("ok, status read before a concurrent refund is not cached", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		acc := h.account(t, 60000)
		res := h.purchase(t, "u1", acc.ID)
		require.Equal(t, OutcomeApplied, h.pay(t, res.Payment))

		// The poll read COMPLETED, then the refund committed and invalidated.
		seen := h.order(t, res.Order.ID)
		require.Equal(t, model.OrderCompleted, seen.Status)
		_, err := h.ledger.Transition(ctx, res.Order.ID, model.OrderRefunded, "")
		require.NoError(t, err)

		h.status.remember(ctx, seen)

		exists, err := h.cache.Exists(ctx, orderStatusKey(res.Order.OrderNumber))
		require.NoError(t, err)
		require.False(t, exists)

		view, err := h.status.CheckStatus(ctx, "u1", res.Order.OrderNumber)
		require.NoError(t, err)
		require.Equal(t, model.OrderRefunded, view.Status)
	})
}
