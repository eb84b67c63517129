package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gameshop-api/internal/model"
	"gameshop-api/internal/repository"
)

// ReservationSweeper returns expired blind-box draws to their pools.
// Draws whose order is being paid are left alone.
type ReservationSweeper struct {
	store     repository.Store
	ledger    *OrderLedger
	allocator *Allocator
	batch     int
	now       func() time.Time
}

// NewReservationSweeper creates a new sweeper.
func NewReservationSweeper(store repository.Store, ledger *OrderLedger, allocator *Allocator, batch int) *ReservationSweeper {
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &ReservationSweeper{
		store:     store,
		ledger:    ledger,
		allocator: allocator,
		batch:     batch,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sweep releases one batch of expired reservations and returns how many
// went back to a pool.
func (s *ReservationSweeper) Sweep(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredReservations(ctx, s.now(), s.batch)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired reservations: %w", err)
	}

	released := 0
	for _, r := range expired {
		if err := ctx.Err(); err != nil {
			return released, err
		}
		ok, err := s.release(ctx, r)
		if err != nil {
			log.Printf("[ReservationSweeper] Account %s: %v", r.AccountID, err)
			continue
		}
		if ok {
			released++
		}
	}

	if released > 0 {
		log.Printf("[ReservationSweeper] Released %d expired reservations", released)
	}
	return released, nil
}

func (s *ReservationSweeper) release(ctx context.Context, r *model.Reservation) (bool, error) {
	orders, err := s.store.ListActiveOrdersByAccount(ctx, r.AccountID)
	if err != nil {
		return false, err
	}

	var pending *model.Order
	for _, o := range orders {
		if o.BuyerID != r.BuyerID {
			continue
		}
		if o.Status == model.OrderProcessing {
			return false, nil
		}
		pending = o
	}

	if pending == nil {
		err = s.allocator.Release(ctx, r.AccountID)
	} else {
		var payments []*model.Payment
		if payments, err = s.store.ListPaymentsByOrder(ctx, pending.ID); err != nil {
			return false, err
		}
		for _, p := range payments {
			if p.Status == model.PaymentSuccess {
				return false, nil
			}
		}
		// Cancelling releases the draw in the same transaction.
		_, err = s.ledger.Transition(ctx, pending.ID, model.OrderCancelled, "reservation expired")
	}

	if errors.Is(err, model.ErrConflict) || errors.Is(err, model.ErrInvalidTransition) {
		return false, nil
	}
	return err == nil, err
}
