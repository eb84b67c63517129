package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gameshop-api/internal/cache"
	"gameshop-api/internal/model"
	"gameshop-api/internal/repository"
	"gameshop-api/internal/secrets"
	"gameshop-api/pkg/uid"
)

// orderNumberAttempts bounds retries after an order number collision.
const orderNumberAttempts = 3

// PurchaseRequest is a buyer asking to buy one account.
type PurchaseRequest struct {
	BuyerID       string
	AccountID     string
	CustomerName  string
	CustomerEmail string
}

// OrderLedger owns order creation and every order status change.
// Each transition and its cascade commit in one store transaction.
type OrderLedger struct {
	store     repository.Store
	allocator *Allocator
	sealer    *secrets.Sealer
	cache     cache.Cache
	now       func() time.Time
}

// NewOrderLedger creates a new order ledger. c may be nil.
func NewOrderLedger(store repository.Store, allocator *Allocator, sealer *secrets.Sealer, c cache.Cache) *OrderLedger {
	return &OrderLedger{
		store:     store,
		allocator: allocator,
		sealer:    sealer,
		cache:     c,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrReuseOrder returns the buyer's open order for the account, or
// creates one at the current price. The bool is true when an existing order
// was returned.
func (l *OrderLedger) CreateOrReuseOrder(ctx context.Context, req PurchaseRequest) (*model.Order, bool, error) {
	if strings.TrimSpace(req.BuyerID) == "" || strings.TrimSpace(req.AccountID) == "" {
		return nil, false, fmt.Errorf("buyer and account required: %w", model.ErrInvalidInput)
	}

	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		var (
			order  *model.Order
			reused bool
		)

		err := l.store.InTx(ctx, func(tx repository.Store) error {
			existing, err := tx.FindActiveOrder(ctx, req.BuyerID, req.AccountID)
			if err == nil {
				order, reused = existing, true
				return nil
			}
			if !errors.Is(err, model.ErrNotFound) {
				return err
			}

			acc, err := tx.GetAccount(ctx, req.AccountID)
			if err != nil {
				return err
			}
			amount, boxID, err := l.eligibility(ctx, tx, acc, req.BuyerID)
			if err != nil {
				return err
			}

			now := l.now()
			o := &model.Order{
				ID:             uid.New(),
				OrderNumber:    uid.OrderNumber(now),
				BuyerID:        req.BuyerID,
				CustomerName:   req.CustomerName,
				CustomerEmail:  req.CustomerEmail,
				AccountID:      acc.ID,
				BlindBoxID:     boxID,
				Amount:         amount,
				Status:         model.OrderPending,
				DeliveryMethod: model.DeliveryInstant,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.CreateOrder(ctx, o); err != nil {
				return err
			}
			order = o
			return nil
		})

		if errors.Is(err, model.ErrConflict) {
			// Either a concurrent request for the same pair won, or the
			// order number collided.
			if winner, ferr := l.store.FindActiveOrder(ctx, req.BuyerID, req.AccountID); ferr == nil {
				return winner, true, nil
			}
			continue
		}
		if err != nil {
			return nil, false, err
		}

		if !reused {
			log.Printf("[OrderLedger] Created order %s: buyer=%s, account=%s, amount=%d",
				order.OrderNumber, order.BuyerID, order.AccountID, order.Amount)
		}
		return order, reused, nil
	}

	return nil, false, fmt.Errorf("failed to allocate order number: %w", model.ErrConflict)
}

// eligibility returns the price and blind box of a sale of acc to buyerID.
// An account is sellable when AVAILABLE, or when RESERVED for this buyer by
// an unexpired blind-box draw.
func (l *OrderLedger) eligibility(ctx context.Context, tx repository.Store, acc *model.Account, buyerID string) (int64, string, error) {
	switch acc.Status {
	case model.AccountAvailable:
		return acc.Price, "", nil
	case model.AccountReserved:
		r, err := tx.GetReservation(ctx, acc.ID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return 0, "", fmt.Errorf("account %s: %w", acc.ID, model.ErrAccountUnavailable)
			}
			return 0, "", err
		}
		if r.Status != model.ReservationReserved || r.BuyerID != buyerID || r.Expired(l.now()) {
			return 0, "", fmt.Errorf("account %s: %w", acc.ID, model.ErrAccountUnavailable)
		}
		box, err := tx.GetBlindBox(ctx, r.BlindBoxID)
		if err != nil {
			return 0, "", err
		}
		if box.Price != nil {
			return *box.Price, box.ID, nil
		}
		return acc.Price, box.ID, nil
	}
	return 0, "", fmt.Errorf("account %s is %s: %w", acc.ID, acc.Status, model.ErrAccountUnavailable)
}

// GetByOrderNumber returns an order by its public number.
func (l *OrderLedger) GetByOrderNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	return l.store.GetOrderByNumber(ctx, orderNumber)
}

// ListForBuyer returns a buyer's orders, newest first.
func (l *OrderLedger) ListForBuyer(ctx context.Context, buyerID string) ([]*model.Order, error) {
	return l.store.ListOrdersByBuyer(ctx, buyerID)
}

// Transition moves an order to status to, applying its cascade.
func (l *OrderLedger) Transition(ctx context.Context, orderID string, to model.OrderStatus, notes string) (*model.Order, error) {
	var (
		order *model.Order
		from  model.OrderStatus
	)
	err := l.store.InTx(ctx, func(tx repository.Store) error {
		o, prev, err := l.TransitionTx(ctx, tx, orderID, to, notes)
		if err != nil {
			return err
		}
		order, from = o, prev
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Invalidate(ctx, order)
	log.Printf("[OrderLedger] Order %s: %s -> %s", order.OrderNumber, from, order.Status)
	return order, nil
}

// TransitionTx applies a transition inside tx and returns the updated order
// and its previous status. The caller commits and invalidates caches.
func (l *OrderLedger) TransitionTx(ctx context.Context, tx repository.Store, orderID string, to model.OrderStatus, notes string) (*model.Order, model.OrderStatus, error) {
	o, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	from := o.Status
	if !model.CanTransition(from, to) {
		return nil, "", fmt.Errorf("order %s %s -> %s: %w", o.OrderNumber, from, to, model.ErrInvalidTransition)
	}

	now := l.now()
	o.Status = to
	o.UpdatedAt = now
	if notes != "" {
		o.Notes = notes
	}
	if to == model.OrderCompleted {
		o.DeliveredAt = &now
	}
	if err := tx.UpdateOrderStatus(ctx, o, from); err != nil {
		return nil, "", err
	}

	switch to {
	case model.OrderCompleted:
		err = l.sell(ctx, tx, o)
	case model.OrderCancelled:
		if err = l.closeOpenPayment(ctx, tx, o, now); err == nil {
			err = l.releaseHeld(ctx, tx, o)
		}
	case model.OrderRefunded:
		err = l.refundPayments(ctx, tx, o, now)
	}
	if err != nil {
		return nil, "", err
	}
	return o, from, nil
}

func (l *OrderLedger) sell(ctx context.Context, tx repository.Store, o *model.Order) error {
	if o.BlindBoxID != "" {
		return l.allocator.ConfirmTx(ctx, tx, o.AccountID, o.BuyerID)
	}
	err := tx.SetAccountStatus(ctx, o.AccountID, []model.AccountStatus{model.AccountAvailable}, model.AccountSold)
	if errors.Is(err, model.ErrConflict) {
		return fmt.Errorf("account %s: %w", o.AccountID, model.ErrAccountUnavailable)
	}
	return err
}

// releaseHeld returns the buyer's blind-box draw to its pool.
func (l *OrderLedger) releaseHeld(ctx context.Context, tx repository.Store, o *model.Order) error {
	if o.BlindBoxID == "" {
		return nil
	}
	r, err := tx.GetReservation(ctx, o.AccountID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if r.Status != model.ReservationReserved || r.BuyerID != o.BuyerID {
		return nil
	}
	return l.allocator.ReleaseTx(ctx, tx, o.AccountID)
}

// closeOpenPayment cancels the pending attempt of a cancelled order. A
// transfer that still settles afterwards is recorded and flagged for refund.
func (l *OrderLedger) closeOpenPayment(ctx context.Context, tx repository.Store, o *model.Order, now time.Time) error {
	p, err := tx.FindOpenPayment(ctx, o.ID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	p.Status = model.PaymentCancelled
	p.FailureReason = "order cancelled"
	p.UpdatedAt = now
	return tx.UpdatePayment(ctx, p, model.PaymentPending)
}

func (l *OrderLedger) refundPayments(ctx context.Context, tx repository.Store, o *model.Order, now time.Time) error {
	payments, err := tx.ListPaymentsByOrder(ctx, o.ID)
	if err != nil {
		return err
	}
	for _, p := range payments {
		if p.Status != model.PaymentSuccess {
			continue
		}
		p.Status = model.PaymentRefunded
		p.RefundedAt = &now
		if p.RefundAmount == 0 {
			p.RefundAmount = p.Amount
		}
		p.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, p, model.PaymentSuccess); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a PENDING order that has not been paid.
func (l *OrderLedger) Delete(ctx context.Context, orderID string) error {
	var order *model.Order
	err := l.store.InTx(ctx, func(tx repository.Store) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != model.OrderPending {
			return fmt.Errorf("order %s is %s: %w", o.OrderNumber, o.Status, model.ErrUndeletable)
		}
		payments, err := tx.ListPaymentsByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		for _, p := range payments {
			if p.Status == model.PaymentSuccess || p.Status == model.PaymentRefunded {
				return fmt.Errorf("order %s has a settled payment: %w", o.OrderNumber, model.ErrUndeletable)
			}
		}
		if err := l.releaseHeld(ctx, tx, o); err != nil {
			return err
		}
		order = o
		return tx.DeleteOrder(ctx, o.ID)
	})
	if err != nil {
		return err
	}

	l.Invalidate(ctx, order)
	log.Printf("[OrderLedger] Deleted order %s", order.OrderNumber)
	return nil
}

// Credentials opens the login of the account bought by the session's buyer.
func (l *OrderLedger) Credentials(ctx context.Context, sess *model.Session, orderNumber string) (*model.Credentials, error) {
	o, err := l.store.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if sess == nil || o.BuyerID != sess.BuyerID {
		return nil, fmt.Errorf("order %s: %w", orderNumber, model.ErrForbidden)
	}
	_, creds, err := l.Delivered(ctx, o)
	return creds, err
}

// Delivered returns the sold account of a COMPLETED order together with its
// opened credentials.
func (l *OrderLedger) Delivered(ctx context.Context, o *model.Order) (*model.Account, *model.Credentials, error) {
	if o.Status != model.OrderCompleted {
		return nil, nil, fmt.Errorf("order %s is %s: %w", o.OrderNumber, o.Status, model.ErrForbidden)
	}

	acc, err := l.store.GetAccount(ctx, o.AccountID)
	if err != nil {
		return nil, nil, err
	}
	if acc.Status != model.AccountSold {
		return nil, nil, fmt.Errorf("account %s is %s: %w", acc.ID, acc.Status, model.ErrForbidden)
	}

	sealed, err := l.store.GetCredentials(ctx, acc.ID)
	if err != nil {
		return acc, nil, err
	}
	creds, err := l.sealer.Open(acc.ID, sealed)
	if err != nil {
		return acc, nil, fmt.Errorf("failed to open credentials of %s: %w", acc.ID, err)
	}
	return acc, creds, nil
}

// Invalidate drops cached status views of an order.
func (l *OrderLedger) Invalidate(ctx context.Context, o *model.Order) {
	if l.cache == nil || o == nil {
		return
	}
	if err := l.cache.Delete(ctx, orderStatusKey(o.OrderNumber)); err != nil {
		log.Printf("[OrderLedger] Failed to invalidate status of %s: %v", o.OrderNumber, err)
	}
}
