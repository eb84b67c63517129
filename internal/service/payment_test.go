package service

import (
	"testing"
	"time"

	"gameshop-api/internal/gateway"
	"gameshop-api/internal/model"

	"github.com/stretchr/testify/require"
)

func TestPaymentService_IssueTransaction(t *testing.T) {
	t.Run("ok, open attempt is reused", func(t *testing.T) {
		h := newHarness(t)
		acc := h.account(t, 120000)

		first := h.purchase(t, "u1", acc.ID)
		second := h.purchase(t, "u1", acc.ID)

		require.True(t, second.Reused)
		require.Equal(t, first.Payment.ID, second.Payment.ID)
		require.Equal(t, int64(120000), first.Payment.Amount)
		require.Equal(t, model.PaymentPending, first.Payment.Status)
		require.Contains(t, first.Payment.QRURL, first.Payment.GatewayTransactionID)
		require.Regexp(t, `^GS[A-Z2-9]{10}$`, first.Payment.GatewayTransactionID)
	})

	t.Run("ok, expired attempt is replaced", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		acc := h.account(t, 120000)
		first := h.purchase(t, "u1", acc.ID)

		h.payments.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
		second, err := h.payments.IssueTransaction(ctx, first.Order)
		require.NoError(t, err)
		require.NotEqual(t, first.Payment.ID, second.ID)

		old, err := h.store.GetPayment(ctx, first.Payment.ID)
		require.NoError(t, err)
		require.Equal(t, model.PaymentCancelled, old.Status)
		require.Equal(t, "expired", old.FailureReason)
	})

	t.Run("ok, settled order returns its payment", func(t *testing.T) {
		h := newHarness(t)
		acc := h.account(t, 120000)
		res := h.purchase(t, "u1", acc.ID)
		require.Equal(t, OutcomeApplied, h.pay(t, res.Payment))

		p, err := h.payments.IssueTransaction(t.Context(), h.order(t, res.Order.ID))
		require.NoError(t, err)
		require.Equal(t, res.Payment.ID, p.ID)
		require.Equal(t, model.PaymentSuccess, p.Status)
	})

	t.Run("fail, gateway down", func(t *testing.T) {
		h := newHarness(t)
		acc := h.account(t, 120000)
		h.gw.SetUnavailable(true)

		_, err := h.purchases.Purchase(t.Context(), session("u1"), acc.ID, "", "")
		require.ErrorIs(t, err, model.ErrGatewayUnavailable)
	})
}

func TestPaymentService_ApplyStatusUpdate(t *testing.T) {
	t.Run("ok, forward moves only", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		acc := h.account(t, 120000)
		res := h.purchase(t, "u1", acc.ID)

		p, err := h.payments.ApplyStatusUpdate(ctx, res.Payment.ID, model.PaymentSuccess, model.StatusExtra{})
		require.NoError(t, err)
		require.Equal(t, model.PaymentSuccess, p.Status)
		require.NotNil(t, p.PaidAt)

		for _, stale := range []model.PaymentStatus{model.PaymentPending, model.PaymentSuccess, model.PaymentFailed, model.PaymentCancelled} {
			_, err := h.payments.ApplyStatusUpdate(ctx, res.Payment.ID, stale, model.StatusExtra{})
			require.ErrorIs(t, err, model.ErrStaleGatewayUpdate, "update to %s", stale)
		}

		stored, err := h.store.GetPayment(ctx, res.Payment.ID)
		require.NoError(t, err)
		require.Equal(t, model.PaymentSuccess, stored.Status)
	})

	t.Run("ok, late transfer settles a failed attempt", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		acc := h.account(t, 120000)
		res := h.purchase(t, "u1", acc.ID)

		_, err := h.payments.ApplyStatusUpdate(ctx, res.Payment.ID, model.PaymentFailed, model.StatusExtra{FailureReason: "timeout"})
		require.NoError(t, err)
		p, err := h.payments.ApplyStatusUpdate(ctx, res.Payment.ID, model.PaymentSuccess, model.StatusExtra{})
		require.NoError(t, err)
		require.Equal(t, model.PaymentSuccess, p.Status)
		require.Empty(t, p.FailureReason)
	})

	t.Run("ok, second settled transfer is flagged", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		acc := h.account(t, 120000)
		first := h.purchase(t, "u1", acc.ID)

		h.payments.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
		second, err := h.payments.IssueTransaction(ctx, first.Order)
		require.NoError(t, err)

		require.Equal(t, OutcomeApplied, h.pay(t, second))
		require.Equal(t, model.OrderCompleted, h.order(t, first.Order.ID).Status)

		// The buyer also paid the expired QR code.
		require.Equal(t, OutcomeApplied, h.pay(t, first.Payment))
		dup, err := h.store.GetPayment(ctx, first.Payment.ID)
		require.NoError(t, err)
		require.Equal(t, model.PaymentFailed, dup.Status)
		require.Equal(t, DuplicatePaymentReason, dup.FailureReason)
		require.Equal(t, 1, h.notifier.count())

		refunded, err := h.payments.ApplyStatusUpdate(ctx, dup.ID, model.PaymentRefunded, model.StatusExtra{Source: "admin"})
		require.NoError(t, err)
		require.Equal(t, model.PaymentRefunded, refunded.Status)
		require.Equal(t, int64(120000), refunded.RefundAmount)
		require.Equal(t, model.OrderCompleted, h.order(t, first.Order.ID).Status)

		paid, err := h.store.GetPayment(ctx, second.ID)
		require.NoError(t, err)
		require.Equal(t, model.PaymentSuccess, paid.Status)
	})

	t.Run("fail, ordinary failed attempt cannot be refunded", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		acc := h.account(t, 120000)
		res := h.purchase(t, "u1", acc.ID)

		_, err := h.payments.ApplyStatusUpdate(ctx, res.Payment.ID, model.PaymentFailed, model.StatusExtra{FailureReason: "card declined"})
		require.NoError(t, err)
		_, err = h.payments.ApplyStatusUpdate(ctx, res.Payment.ID, model.PaymentRefunded, model.StatusExtra{})
		require.ErrorIs(t, err, model.ErrStaleGatewayUpdate)
	})

	t.Run("ok, gateway refund refunds the order", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		acc := h.account(t, 120000)
		res := h.purchase(t, "u1", acc.ID)
		require.Equal(t, OutcomeApplied, h.pay(t, res.Payment))

		p, err := h.payments.ApplyStatusUpdate(ctx, res.Payment.ID, model.PaymentRefunded,
			model.StatusExtra{RefundAmount: 50000})
		require.NoError(t, err)
		require.Equal(t, int64(50000), p.RefundAmount)
		require.Equal(t, model.OrderRefunded, h.order(t, res.Order.ID).Status)
	})

	t.Run("fail, unknown payment", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.payments.ApplyStatusUpdate(t.Context(), "missing", model.PaymentSuccess, model.StatusExtra{})
		require.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestPaymentService_HandleCallback(t *testing.T) {
	t.Run("ok, unmatched transaction is recorded", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()

		outcome := h.payments.HandleCallback(ctx, &gateway.Result{
			Provider: "sandbox", TransactionID: "GSUNKNOWN000", Kind: gateway.KindPaid, Amount: 1000,
		})
		require.Equal(t, OutcomeUnmatched, outcome)

		events, total, err := h.events.ListGatewayEvents(ctx, 10, 0)
		require.NoError(t, err)
		require.EqualValues(t, 1, total)
		require.Equal(t, OutcomeUnmatched, events[0].Outcome)
		require.Equal(t, "webhook", events[0].Source)
	})

	t.Run("ok, underpayment leaves payment open", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		acc := h.account(t, 120000)
		res := h.purchase(t, "u1", acc.ID)

		outcome := h.payments.HandleCallback(ctx, &gateway.Result{
			Provider: "sandbox", TransactionID: res.Payment.GatewayTransactionID, Kind: gateway.KindPaid, Amount: 1000,
		})
		require.Equal(t, OutcomeUnderpaid, outcome)

		p, err := h.store.GetPayment(ctx, res.Payment.ID)
		require.NoError(t, err)
		require.Equal(t, model.PaymentPending, p.Status)
		require.Equal(t, model.OrderPending, h.order(t, res.Order.ID).Status)
	})

	t.Run("ok, duplicate callback is stale", func(t *testing.T) {
		h := newHarness(t)
		acc := h.account(t, 120000)
		res := h.purchase(t, "u1", acc.ID)

		require.Equal(t, OutcomeApplied, h.pay(t, res.Payment))
		require.Equal(t, OutcomeStale, h.pay(t, res.Payment))
		require.Equal(t, 1, h.notifier.count())
	})

	t.Run("ok, failure is applied", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		acc := h.account(t, 120000)
		res := h.purchase(t, "u1", acc.ID)

		cb, err := h.gw.Fail(res.Payment.GatewayTransactionID, "card declined")
		require.NoError(t, err)
		require.Equal(t, OutcomeApplied, h.payments.HandleCallback(ctx, cb))

		p, err := h.store.GetPayment(ctx, res.Payment.ID)
		require.NoError(t, err)
		require.Equal(t, model.PaymentFailed, p.Status)
		require.Equal(t, "card declined", p.FailureReason)
		require.Equal(t, model.OrderPending, h.order(t, res.Order.ID).Status)
	})
}

func TestPaymentService_LookupStatus(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	acc := h.account(t, 120000)
	res := h.purchase(t, "u1", acc.ID)
	txID := res.Payment.GatewayTransactionID

	for i := 0; i < 5; i++ {
		status, err := h.payments.LookupStatus(ctx, txID)
		require.NoError(t, err)
		require.Equal(t, model.PaymentPending, status)
	}
	require.Equal(t, 1, h.gw.Lookups())

	h.gw.SetUnavailable(true)
	require.NoError(t, h.cache.Delete(ctx, gatewayLookupKey(txID)))
	_, err := h.payments.LookupStatus(ctx, txID)
	require.ErrorIs(t, err, model.ErrGatewayUnavailable)
}

func TestPaymentService_Sync(t *testing.T) {
	t.Run("ok, underpaid attempt is noted once and then expires", func(t *testing.T) {
		h := newHarness(t)
		ctx := t.Context()
		acc := h.account(t, 120000)
		res := h.purchase(t, "u1", acc.ID)

		_, err := h.gw.SettleAmount(res.Payment.GatewayTransactionID, 1)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			require.NoError(t, h.reconciler.ReconcilePending(ctx))
		}
		p, err := h.store.GetPayment(ctx, res.Payment.ID)
		require.NoError(t, err)
		require.Equal(t, model.PaymentPending, p.Status)
		require.Equal(t, "underpaid: got 1, want 120000", p.FailureReason)

		events, total, err := h.events.ListGatewayEvents(ctx, 10, 0)
		require.NoError(t, err)
		require.EqualValues(t, 1, total)
		require.Equal(t, OutcomeUnderpaid, events[0].Outcome)
		require.Equal(t, "lookup", events[0].Source)

		h.payments.now = func() time.Time { return time.Now().UTC().Add(24 * time.Hour) }
		for i := 0; i < 3; i++ {
			require.NoError(t, h.reconciler.ReconcilePending(ctx))
		}

		p, err = h.store.GetPayment(ctx, res.Payment.ID)
		require.NoError(t, err)
		require.Equal(t, model.PaymentCancelled, p.Status)
		require.Equal(t, "expired", p.FailureReason)

		_, total, err = h.events.ListGatewayEvents(ctx, 10, 0)
		require.NoError(t, err)
		require.EqualValues(t, 1, total)

		// The next purchase opens a fresh attempt instead of reusing the short one.
		again := h.purchase(t, "u1", acc.ID)
		require.NotEqual(t, res.Payment.ID, again.Payment.ID)
	})

	t.Run("ok, open attempt within expiry stays pending", func(t *testing.T) {
		h := newHarness(t)
		acc := h.account(t, 120000)
		res := h.purchase(t, "u1", acc.ID)

		p, err := h.payments.Sync(t.Context(), res.Payment)
		require.NoError(t, err)
		require.Equal(t, model.PaymentPending, p.Status)
	})
}
