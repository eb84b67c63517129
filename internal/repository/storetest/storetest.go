// Package storetest is a behavioural suite every repository.Store must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gameshop-api/internal/model"
	"gameshop-api/internal/repository"

	"github.com/stretchr/testify/require"
)

type SetupFunc func(t *testing.T) repository.Store

func TestStoreContract(t *testing.T, setup SetupFunc) {
	t.Run("Accounts", func(t *testing.T) {
		RunAccountTests(t, setup)
	})
	t.Run("Pool", func(t *testing.T) {
		RunPoolTests(t, setup)
	})
	t.Run("Reservations", func(t *testing.T) {
		RunReservationTests(t, setup)
	})
	t.Run("Orders", func(t *testing.T) {
		RunOrderTests(t, setup)
	})
	t.Run("Payments", func(t *testing.T) {
		RunPaymentTests(t, setup)
	})
	t.Run("Transactions", func(t *testing.T) {
		RunTxTests(t, setup)
	})
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NewAccount returns an AVAILABLE account fixture.
func NewAccount(id string, price int64) *model.Account {
	ts := now()
	return &model.Account{
		ID:          id,
		Title:       "Account " + id,
		Price:       price,
		Rank:        "Mythic",
		HeroCount:   90,
		SkinCount:   2,
		Skins:       []string{"Aurora", "Zephyr"},
		Status:      model.AccountAvailable,
		Credentials: []byte("sealed-" + id),
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

// NewOrder returns a PENDING order fixture.
func NewOrder(id, buyer, account string) *model.Order {
	ts := now()
	return &model.Order{
		ID:             id,
		OrderNumber:    "ORD-" + id,
		BuyerID:        buyer,
		CustomerName:   "Buyer " + buyer,
		CustomerEmail:  buyer + "@example.com",
		AccountID:      account,
		Amount:         100000,
		Status:         model.OrderPending,
		DeliveryMethod: model.DeliveryInstant,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
}

// NewPayment returns a PENDING payment fixture.
func NewPayment(id, orderID string) *model.Payment {
	ts := now()
	return &model.Payment{
		ID:                   id,
		OrderID:              orderID,
		Amount:               100000,
		Method:               model.PaymentMethodBankQR,
		Status:               model.PaymentPending,
		GatewayTransactionID: "tx-" + id,
		QRURL:                "https://qr.example/" + id,
		ExpiresAt:            ts.Add(15 * time.Minute),
		CreatedAt:            ts,
		UpdatedAt:            ts,
	}
}

func RunAccountTests(t *testing.T, setup SetupFunc) {
	t.Run("ok, create and get", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		a := NewAccount("acc-1", 250000)
		require.NoError(t, store.CreateAccount(ctx, a))

		got, err := store.GetAccount(ctx, "acc-1")
		require.NoError(t, err)
		require.Equal(t, a.Title, got.Title)
		require.Equal(t, a.Price, got.Price)
		require.Equal(t, a.Skins, got.Skins)
		require.Equal(t, model.AccountAvailable, got.Status)
		require.Empty(t, got.Credentials)

		sealed, err := store.GetCredentials(ctx, "acc-1")
		require.NoError(t, err)
		require.Equal(t, []byte("sealed-acc-1"), sealed)
	})

	t.Run("fail, duplicate id", func(t *testing.T) {
		store := setup(t)
		require.NoError(t, store.CreateAccount(t.Context(), NewAccount("acc-1", 1)))
		err := store.CreateAccount(t.Context(), NewAccount("acc-1", 1))
		require.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("fail, unknown account", func(t *testing.T) {
		store := setup(t)
		_, err := store.GetAccount(t.Context(), "missing")
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("ok, conditional status change", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()
		require.NoError(t, store.CreateAccount(ctx, NewAccount("acc-1", 1)))

		err := store.SetAccountStatus(ctx, "acc-1", []model.AccountStatus{model.AccountReserved}, model.AccountSold)
		require.ErrorIs(t, err, model.ErrConflict)

		err = store.SetAccountStatus(ctx, "acc-1", []model.AccountStatus{model.AccountAvailable, model.AccountReserved}, model.AccountSold)
		require.NoError(t, err)

		sold, err := store.ListAccounts(ctx, model.AccountSold)
		require.NoError(t, err)
		require.Len(t, sold, 1)

		available, err := store.ListAccounts(ctx, model.AccountAvailable)
		require.NoError(t, err)
		require.Empty(t, available)
	})
}

func RunPoolTests(t *testing.T, setup SetupFunc) {
	t.Run("ok, add list remove", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		price := int64(50000)
		require.NoError(t, store.CreateBlindBox(ctx, &model.BlindBox{ID: "box-1", Name: "Lucky", Price: &price, CreatedAt: now()}))
		for i := 1; i <= 3; i++ {
			id := fmt.Sprintf("acc-%d", i)
			require.NoError(t, store.CreateAccount(ctx, NewAccount(id, 1)))
			require.NoError(t, store.AddToPool(ctx, "box-1", id))
		}

		members, err := store.PoolMembers(ctx, "box-1")
		require.NoError(t, err)
		require.Equal(t, []string{"acc-1", "acc-2", "acc-3"}, members)

		box, err := store.GetBlindBox(ctx, "box-1")
		require.NoError(t, err)
		require.Equal(t, 3, box.Remaining)
		require.NotNil(t, box.Price)
		require.Equal(t, price, *box.Price)

		removed, err := store.RemoveFromPool(ctx, "box-1", "acc-2")
		require.NoError(t, err)
		require.True(t, removed)

		removed, err = store.RemoveFromPool(ctx, "box-1", "acc-2")
		require.NoError(t, err)
		require.False(t, removed)

		members, err = store.PoolMembers(ctx, "box-1")
		require.NoError(t, err)
		require.Equal(t, []string{"acc-1", "acc-3"}, members)
	})

	t.Run("fail, account in two pools", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()
		require.NoError(t, store.CreateBlindBox(ctx, &model.BlindBox{ID: "a", Name: "A", CreatedAt: now()}))
		require.NoError(t, store.CreateBlindBox(ctx, &model.BlindBox{ID: "b", Name: "B", CreatedAt: now()}))
		require.NoError(t, store.AddToPool(ctx, "a", "acc-1"))
		require.ErrorIs(t, store.AddToPool(ctx, "b", "acc-1"), model.ErrConflict)
	})
}

func RunReservationTests(t *testing.T, setup SetupFunc) {
	reservation := func(account, buyer string, expires time.Time) *model.Reservation {
		ts := now()
		return &model.Reservation{
			AccountID:  account,
			BlindBoxID: "box-1",
			BuyerID:    buyer,
			Status:     model.ReservationReserved,
			ExpiresAt:  expires,
			CreatedAt:  ts,
			UpdatedAt:  ts,
		}
	}

	t.Run("ok, one reservation per account", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		require.NoError(t, store.CreateReservation(ctx, reservation("acc-1", "u1", now().Add(time.Hour))))
		err := store.CreateReservation(ctx, reservation("acc-1", "u2", now().Add(time.Hour)))
		require.ErrorIs(t, err, model.ErrDuplicateReservation)

		r, err := store.FindActiveReservation(ctx, "box-1", "u1")
		require.NoError(t, err)
		require.Equal(t, "acc-1", r.AccountID)

		_, err = store.FindActiveReservation(ctx, "box-1", "u2")
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("ok, released reservation can be replaced", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		require.NoError(t, store.CreateReservation(ctx, reservation("acc-1", "u1", now().Add(time.Hour))))
		require.NoError(t, store.UpdateReservationStatus(ctx, "acc-1", model.ReservationReserved, model.ReservationReleased))
		require.NoError(t, store.CreateReservation(ctx, reservation("acc-1", "u2", now().Add(time.Hour))))

		r, err := store.GetReservation(ctx, "acc-1")
		require.NoError(t, err)
		require.Equal(t, "u2", r.BuyerID)
	})

	t.Run("ok, compare and set", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		require.NoError(t, store.CreateReservation(ctx, reservation("acc-1", "u1", now().Add(time.Hour))))
		require.NoError(t, store.UpdateReservationStatus(ctx, "acc-1", model.ReservationReserved, model.ReservationSold))
		err := store.UpdateReservationStatus(ctx, "acc-1", model.ReservationReserved, model.ReservationReleased)
		require.ErrorIs(t, err, model.ErrConflict)

		err = store.UpdateReservationStatus(ctx, "missing", model.ReservationReserved, model.ReservationReleased)
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("ok, list expired", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		require.NoError(t, store.CreateReservation(ctx, reservation("old", "u1", now().Add(-time.Minute))))
		require.NoError(t, store.CreateReservation(ctx, reservation("fresh", "u2", now().Add(time.Hour))))

		expired, err := store.ListExpiredReservations(ctx, now(), 10)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		require.Equal(t, "old", expired[0].AccountID)
	})
}

func RunOrderTests(t *testing.T, setup SetupFunc) {
	t.Run("ok, create and lookups", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		o := NewOrder("o1", "u1", "acc-1")
		require.NoError(t, store.CreateOrder(ctx, o))

		got, err := store.GetOrderByNumber(ctx, o.OrderNumber)
		require.NoError(t, err)
		require.Equal(t, o.ID, got.ID)
		require.Equal(t, model.OrderPending, got.Status)
		require.Nil(t, got.DeliveredAt)

		active, err := store.FindActiveOrder(ctx, "u1", "acc-1")
		require.NoError(t, err)
		require.Equal(t, o.ID, active.ID)

		_, err = store.GetOrderByNumber(ctx, "nope")
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("fail, second open order for same buyer and account", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		require.NoError(t, store.CreateOrder(ctx, NewOrder("o1", "u1", "acc-1")))
		require.ErrorIs(t, store.CreateOrder(ctx, NewOrder("o2", "u1", "acc-1")), model.ErrConflict)

		// another buyer may open its own order
		require.NoError(t, store.CreateOrder(ctx, NewOrder("o3", "u2", "acc-1")))

		open, err := store.ListActiveOrdersByAccount(ctx, "acc-1")
		require.NoError(t, err)
		require.Len(t, open, 2)
	})

	t.Run("ok, closed order frees the slot", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		o := NewOrder("o1", "u1", "acc-1")
		require.NoError(t, store.CreateOrder(ctx, o))

		o.Status = model.OrderCancelled
		o.Notes = "changed mind"
		o.UpdatedAt = now()
		require.NoError(t, store.UpdateOrderStatus(ctx, o, model.OrderPending))

		require.NoError(t, store.CreateOrder(ctx, NewOrder("o2", "u1", "acc-1")))

		orders, err := store.ListOrdersByBuyer(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, orders, 2)

		pending, err := store.ListOrdersByStatus(ctx, model.OrderPending, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, "o2", pending[0].ID)

		cancelled, err := store.ListOrdersByStatus(ctx, model.OrderCancelled, 10)
		require.NoError(t, err)
		require.Len(t, cancelled, 1)
	})

	t.Run("fail, stale compare and set", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		o := NewOrder("o1", "u1", "acc-1")
		require.NoError(t, store.CreateOrder(ctx, o))

		o.Status = model.OrderProcessing
		require.NoError(t, store.UpdateOrderStatus(ctx, o, model.OrderPending))

		o.Status = model.OrderCancelled
		require.ErrorIs(t, store.UpdateOrderStatus(ctx, o, model.OrderPending), model.ErrConflict)

		delivered := now()
		o.Status = model.OrderCompleted
		o.DeliveredAt = &delivered
		require.NoError(t, store.UpdateOrderStatus(ctx, o, model.OrderProcessing))

		got, err := store.GetOrder(ctx, "o1")
		require.NoError(t, err)
		require.Equal(t, model.OrderCompleted, got.Status)
		require.NotNil(t, got.DeliveredAt)
		require.WithinDuration(t, delivered, *got.DeliveredAt, time.Millisecond)
	})

	t.Run("ok, delete removes payments", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		require.NoError(t, store.CreateOrder(ctx, NewOrder("o1", "u1", "acc-1")))
		require.NoError(t, store.CreatePayment(ctx, NewPayment("p1", "o1")))
		require.NoError(t, store.DeleteOrder(ctx, "o1"))

		_, err := store.GetOrder(ctx, "o1")
		require.ErrorIs(t, err, model.ErrNotFound)
		_, err = store.GetPayment(ctx, "p1")
		require.ErrorIs(t, err, model.ErrNotFound)
	})
}

func RunPaymentTests(t *testing.T, setup SetupFunc) {
	t.Run("ok, one open payment per order", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		require.NoError(t, store.CreatePayment(ctx, NewPayment("p1", "o1")))
		require.ErrorIs(t, store.CreatePayment(ctx, NewPayment("p2", "o1")), model.ErrConflict)

		open, err := store.FindOpenPayment(ctx, "o1")
		require.NoError(t, err)
		require.Equal(t, "p1", open.ID)

		byTx, err := store.GetPaymentByTransaction(ctx, "tx-p1")
		require.NoError(t, err)
		require.Equal(t, "p1", byTx.ID)
	})

	t.Run("ok, cancelled attempt frees the slot", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		p := NewPayment("p1", "o1")
		require.NoError(t, store.CreatePayment(ctx, p))
		p.Status = model.PaymentCancelled
		p.FailureReason = "expired"
		p.UpdatedAt = now()
		require.NoError(t, store.UpdatePayment(ctx, p, model.PaymentPending))

		require.NoError(t, store.CreatePayment(ctx, NewPayment("p2", "o1")))

		all, err := store.ListPaymentsByOrder(ctx, "o1")
		require.NoError(t, err)
		require.Len(t, all, 2)

		pending, err := store.ListPaymentsByStatus(ctx, model.PaymentPending, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, "p2", pending[0].ID)
	})

	t.Run("fail, stale update", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		p := NewPayment("p1", "o1")
		require.NoError(t, store.CreatePayment(ctx, p))

		paid := now()
		p.Status = model.PaymentSuccess
		p.PaidAt = &paid
		require.NoError(t, store.UpdatePayment(ctx, p, model.PaymentPending))

		p.Status = model.PaymentFailed
		require.ErrorIs(t, store.UpdatePayment(ctx, p, model.PaymentPending), model.ErrConflict)

		got, err := store.GetPayment(ctx, "p1")
		require.NoError(t, err)
		require.Equal(t, model.PaymentSuccess, got.Status)
		require.NotNil(t, got.PaidAt)

		_, err = store.FindOpenPayment(ctx, "o1")
		require.ErrorIs(t, err, model.ErrNotFound)
	})
}

func RunTxTests(t *testing.T, setup SetupFunc) {
	t.Run("ok, commit", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		err := store.InTx(ctx, func(tx repository.Store) error {
			if err := tx.CreateAccount(ctx, NewAccount("acc-1", 1)); err != nil {
				return err
			}
			return tx.CreateOrder(ctx, NewOrder("o1", "u1", "acc-1"))
		})
		require.NoError(t, err)

		_, err = store.GetOrder(ctx, "o1")
		require.NoError(t, err)
	})

	t.Run("ok, rollback on error", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()
		boom := errors.New("boom")

		err := store.InTx(ctx, func(tx repository.Store) error {
			if err := tx.CreateAccount(ctx, NewAccount("acc-1", 1)); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = store.GetAccount(ctx, "acc-1")
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("ok, nested tx joins outer", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()

		err := store.InTx(ctx, func(tx repository.Store) error {
			return tx.InTx(ctx, func(inner repository.Store) error {
				return inner.CreateAccount(ctx, NewAccount("acc-1", 1))
			})
		})
		require.NoError(t, err)

		_, err = store.GetAccount(ctx, "acc-1")
		require.NoError(t, err)
	})

	t.Run("ok, concurrent removals have one winner", func(t *testing.T) {
		store := setup(t)
		ctx := context.Background()
		require.NoError(t, store.CreateBlindBox(ctx, &model.BlindBox{ID: "box-1", Name: "Lucky", CreatedAt: now()}))
		require.NoError(t, store.AddToPool(ctx, "box-1", "acc-1"))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = store.InTx(ctx, func(tx repository.Store) error {
					removed, err := tx.RemoveFromPool(ctx, "box-1", "acc-1")
					if err != nil {
						return err
					}
					if removed {
						mu.Lock()
						wins++
						mu.Unlock()
					}
					return nil
				})
			}()
		}
		wg.Wait()
		require.Equal(t, 1, wins)
	})

	t.Run("ok, stats", func(t *testing.T) {
		store := setup(t)
		ctx := t.Context()
		require.NoError(t, store.CreateOrder(ctx, NewOrder("o1", "u1", "acc-1")))

		stats, err := store.GetStats(ctx)
		require.NoError(t, err)
		require.Contains(t, stats, "orders")
		require.NoError(t, store.Ping(ctx))
	})
}
