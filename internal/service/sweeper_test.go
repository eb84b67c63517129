package service

import (
	"testing"
	"time"

	"gameshop-api/internal/model"

	"github.com/stretchr/testify/require"
)

func TestReservationSweeper(t *testing.T) {
	later := func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }

	t.Run("ok, abandoned draw returns to pool", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		b, _ := h.box(t, nil, 2)

		acc, _, err := h.purchases.Tear(ctx, session("u1"), b.ID)
		require.NoError(t, err)

		released, err := h.sweeper.Sweep(ctx)
		require.NoError(t, err)
		require.Zero(t, released)

		h.sweeper.now = later
		released, err = h.sweeper.Sweep(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, released)

		require.Equal(t, model.AccountAvailable, h.accountStatus(t, acc.ID))
		box, err := h.store.GetBlindBox(ctx, b.ID)
		require.NoError(t, err)
		require.Equal(t, 2, box.Remaining)
	})

	t.Run("ok, unpaid order is cancelled", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		b, _ := h.box(t, nil, 1)

		acc, _, err := h.purchases.Tear(ctx, session("u1"), b.ID)
		require.NoError(t, err)
		res := h.purchase(t, "u1", acc.ID)

		h.sweeper.now = later
		released, err := h.sweeper.Sweep(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, released)

		o := h.order(t, res.Order.ID)
		require.Equal(t, model.OrderCancelled, o.Status)
		require.Equal(t, "reservation expired", o.Notes)
		require.Equal(t, model.AccountAvailable, h.accountStatus(t, acc.ID))
	})

	t.Run("ok, order being paid is kept", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		b, _ := h.box(t, nil, 1)

		acc, _, err := h.purchases.Tear(ctx, session("u1"), b.ID)
		require.NoError(t, err)
		res := h.purchase(t, "u1", acc.ID)
		_, err = h.ledger.Transition(ctx, res.Order.ID, model.OrderProcessing, "")
		require.NoError(t, err)

		h.sweeper.now = later
		released, err := h.sweeper.Sweep(ctx)
		require.NoError(t, err)
		require.Zero(t, released)
		require.Equal(t, model.AccountReserved, h.accountStatus(t, acc.ID))
	})

	t.Run("ok, settled payment is kept", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		b, _ := h.box(t, nil, 1)

		acc, _, err := h.purchases.Tear(ctx, session("u1"), b.ID)
		require.NoError(t, err)
		res := h.purchase(t, "u1", acc.ID)
		_, err = h.payments.ApplyStatusUpdate(ctx, res.Payment.ID, model.PaymentSuccess, model.StatusExtra{})
		require.NoError(t, err)

		h.sweeper.now = later
		released, err := h.sweeper.Sweep(ctx)
		require.NoError(t, err)
		require.Zero(t, released)
		require.Equal(t, model.OrderPending, h.order(t, res.Order.ID).Status)
	})
}
